package queue

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/venue-queue-system/internal/lookup"
	"github.com/venue-queue-system/pkg/breaker"
	"github.com/venue-queue-system/pkg/events"
	"github.com/venue-queue-system/pkg/ratelimit"
)

// Emitter is the gateway's same-process echo: mutations made over HTTP reach
// this process's sockets immediately, without waiting for the bus round-trip.
type Emitter interface {
	EmitToVenue(venueID string, eventType events.EventType, data interface{})
}

// Searcher is the passthrough search the /search route exposes.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]lookup.Video, error)
}

type Handler struct {
	service  *Service
	guard    *ratelimit.Limiter
	breaker  *breaker.CircuitBreaker
	searcher Searcher
	emitter  Emitter
}

func NewHandler(service *Service, guard *ratelimit.Limiter, cb *breaker.CircuitBreaker, searcher Searcher, emitter Emitter) *Handler {
	return &Handler{
		service:  service,
		guard:    guard,
		breaker:  cb,
		searcher: searcher,
		emitter:  emitter,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	venues := r.Group("/venues")
	{
		venues.GET("/:id/queue", h.getQueue)
		venues.POST("/:id/queue", h.guard.Middleware(), h.addSong)
	}

	entries := r.Group("/queue")
	entries.Use(h.guard.Middleware())
	{
		entries.POST("/:entryId/advance", h.advance)
		entries.POST("/:entryId/skip", h.skip)
	}

	r.GET("/search", h.breaker.Middleware(), h.search)
}

func (h *Handler) addSong(c *gin.Context) {
	venueID := c.Param("id")
	userID := c.GetString("user_id")

	var req AddSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	entry, err := h.service.AddSong(c.Request.Context(), venueID, userID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	h.echo(venueID, events.EventTypeSongAdded, events.SongAddedPayload{Song: *songPayload(entry)})
	c.JSON(http.StatusCreated, gin.H{"success": true, "entry": entry})
}

func (h *Handler) getQueue(c *gin.Context) {
	snapshot, err := h.service.GetQueue(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "queue": snapshot})
}

func (h *Handler) advance(c *gin.Context) {
	result, err := h.service.AdvanceQueue(c.Request.Context(), c.Param("entryId"))
	if err != nil {
		writeError(c, err)
		return
	}

	if result.PreviousSong != nil {
		venueID := result.PreviousSong.VenueID.String()
		h.echo(venueID, events.EventTypePlayNext, events.PlayNextPayload{
			PreviousSong: songPayload(result.PreviousSong),
			NextSong:     songPayload(result.NextSong),
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (h *Handler) skip(c *gin.Context) {
	entry, err := h.service.SkipSong(c.Request.Context(), c.Param("entryId"))
	if err != nil {
		writeError(c, err)
		return
	}

	h.echo(entry.VenueID.String(), events.EventTypeSongSkipped, events.SongSkippedPayload{Song: *songPayload(entry)})
	c.JSON(http.StatusOK, gin.H{"success": true, "entry": entry})
}

func (h *Handler) search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "q is required"})
		return
	}

	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	result, err := h.breaker.Execute(c.Request.Context(), func(ctx context.Context) (interface{}, error) {
		return h.searcher.Search(ctx, query, limit)
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "items": result})
}

func (h *Handler) echo(venueID string, eventType events.EventType, data interface{}) {
	if h.emitter == nil {
		return
	}
	h.emitter.EmitToVenue(venueID, eventType, data)
}

// writeError maps the error taxonomy to HTTP. Bodies carry a stable message
// and, for conflicts and open circuits, machine-readable hints.
func writeError(c *gin.Context, err error) {
	var validation *ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": validation.Message})
		return
	}

	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": notFound.Error()})
		return
	}

	var invalidState *InvalidStateError
	if errors.As(err, &invalidState) {
		c.JSON(http.StatusConflict, gin.H{
			"success":        false,
			"message":        invalidState.Error(),
			"current_status": string(invalidState.CurrentStatus),
		})
		return
	}

	var circuitOpen *breaker.CircuitOpenError
	if errors.As(err, &circuitOpen) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success":             false,
			"message":             "Song lookup is temporarily unavailable. Please try again later.",
			"retry_after_seconds": int(circuitOpen.RetryAfter.Seconds()),
		})
		return
	}

	var quota *lookup.QuotaError
	var upstream *lookup.UpstreamError
	if errors.As(err, &quota) || errors.As(err, &upstream) {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Song lookup failed. Please try again."})
		return
	}

	log.Printf("Unhandled error: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
}
