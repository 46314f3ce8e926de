package auth

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/venue-queue-system/pkg/database"
	"github.com/venue-queue-system/pkg/jwt"
	"github.com/venue-queue-system/pkg/models"
	"github.com/venue-queue-system/pkg/redis"
)

const sessionTTL = 12 * time.Hour

type Handler struct {
	db       *database.MySQLDB
	sessions *redis.SessionStore
}

func NewHandler(db *database.MySQLDB, sessions *redis.SessionStore) *Handler {
	return &Handler{db: db, sessions: sessions}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sessions", h.createSession)
}

func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/me", h.me)
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.db.GetUserByID(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

type CreateSessionRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	VenueID     string `json:"venue_id"`
}

// createSession issues a bearer credential for a patron or staff device.
// There is no password flow here; a session is just a named identity the
// rate guard and queue entries can attribute actions to.
func (h *Handler) createSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	user := &models.User{
		ID:          uuid.New(),
		DisplayName: req.DisplayName,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := h.db.CreateUser(user); err != nil {
		log.Printf("Failed to create user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
		return
	}

	expiresAt := time.Now().Add(sessionTTL)
	session := &redis.SessionInfo{
		UserID:      user.ID.String(),
		DisplayName: req.DisplayName,
		VenueID:     req.VenueID,
		ExpiresAt:   expiresAt,
	}
	if err := h.sessions.StoreSession(c.Request.Context(), user.ID.String(), session); err != nil {
		log.Printf("Failed to store session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
		return
	}

	token, err := jwt.GenerateToken(user.ID.String(), sessionTTL)
	if err != nil {
		log.Printf("Failed to sign token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"token":      token,
		"user_id":    user.ID.String(),
		"expires_at": expiresAt,
	})
}
