package venue

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	venues := r.Group("/venues")
	{
		venues.POST("/", h.createVenue)
		venues.GET("/code/:code", h.getVenueByCode)
		venues.GET("/:id", h.getVenue)
	}
}

type CreateVenueRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) createVenue(c *gin.Context) {
	var req CreateVenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	venue, err := h.service.CreateVenue(c.Request.Context(), req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to create venue"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "venue": venue})
}

func (h *Handler) getVenue(c *gin.Context) {
	venue, err := h.service.GetVenue(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Venue not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "venue": venue})
}

func (h *Handler) getVenueByCode(c *gin.Context) {
	venue, err := h.service.GetVenueByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Venue not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "venue": venue})
}
