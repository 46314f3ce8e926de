package queue

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/venue-queue-system/internal/lookup"
	"github.com/venue-queue-system/pkg/breaker"
	"github.com/venue-queue-system/pkg/events"
	"github.com/venue-queue-system/pkg/models"
	"github.com/venue-queue-system/pkg/monitoring"
)

// Store is the persistence contract the orchestrator consumes. Updates are
// atomic per entry; UpdateEntryStatusIf is a compare-and-set.
type Store interface {
	FindEntryByID(id string) (*models.QueueEntry, error)
	InsertEntry(entry *models.QueueEntry) error
	GetNextPending(venueID string) (*models.QueueEntry, error)
	GetPendingQueue(venueID string) ([]*models.QueueEntry, error)
	GetPlaying(venueID string) (*models.QueueEntry, error)
	UpdateEntryStatusIf(id string, from, to models.EntryStatus, playedAt *time.Time) (bool, error)
}

// Resolver resolves song metadata from the external search API.
type Resolver interface {
	GetVideo(ctx context.Context, videoID string) (*lookup.Video, error)
}

// Appender is the durable domain-event feed (kafka). Optional; nil disables
// it.
type Appender interface {
	Append(ctx context.Context, eventType events.EventType, venueID, userID string, payload interface{}) error
}

// Service is the queue orchestrator for all venues. Store mutations are the
// only cross-process synchronization point; everything else is fan-out.
type Service struct {
	store    Store
	bus      events.Bus
	eventLog Appender
	resolver Resolver
	breaker  *breaker.CircuitBreaker
}

func NewService(store Store, bus events.Bus, eventLog Appender, resolver Resolver, cb *breaker.CircuitBreaker) *Service {
	return &Service{
		store:    store,
		bus:      bus,
		eventLog: eventLog,
		resolver: resolver,
		breaker:  cb,
	}
}

// AdvanceResult reports a playback advance. NextSong is nil when the queue
// ran empty.
type AdvanceResult struct {
	PreviousSong *models.QueueEntry `json:"previous_song"`
	NextSong     *models.QueueEntry `json:"next_song"`
}

// AdvanceQueue handles "song finished": the playing entry identified by
// entryID becomes played and the first pending entry, if any, becomes
// playing. Both the HTTP route and the websocket action call this one entry
// point so the single-advance invariant holds everywhere.
//
// Under two concurrent calls for the same entry, the store's conditional
// update lets exactly one through; the other gets *InvalidStateError.
func (s *Service) AdvanceQueue(ctx context.Context, entryID string) (*AdvanceResult, error) {
	if _, err := uuid.Parse(entryID); err != nil {
		return nil, &ValidationError{Message: "a valid entry id is required"}
	}

	entry, err := s.store.FindEntryByID(entryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "queue entry", ID: entryID}
		}
		return nil, err
	}

	if entry.Status != models.StatusPlaying {
		return nil, &InvalidStateError{
			EntryID:       entryID,
			CurrentStatus: entry.Status,
			Message:       "entry is not currently playing",
		}
	}

	now := time.Now()
	ok, err := s.store.UpdateEntryStatusIf(entryID, models.StatusPlaying, models.StatusPlayed, &now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race: a concurrent advance already moved this entry on.
		return nil, &InvalidStateError{
			EntryID:       entryID,
			CurrentStatus: models.StatusPlayed,
			Message:       "entry was already advanced",
		}
	}
	entry.Status = models.StatusPlayed
	entry.PlayedAt = &now

	venueID := entry.VenueID.String()
	next, err := s.promoteNext(venueID)
	if err != nil {
		return nil, err
	}

	result := &AdvanceResult{PreviousSong: entry, NextSong: next}

	payload := events.PlayNextPayload{
		PreviousSong: songPayload(entry),
		NextSong:     songPayload(next),
	}
	s.publish(ctx, venueID, events.EventTypePlayNext, payload)
	s.appendLog(ctx, events.EventTypePlayNext, venueID, entry.AddedBy.String(), payload)
	monitoring.RecordQueueOperation("advance", venueID, "success")

	return result, nil
}

// promoteNext claims the first pending entry via compare-and-set. A failed
// claim means another process took it; keep going until the queue is empty or
// a claim lands.
func (s *Service) promoteNext(venueID string) (*models.QueueEntry, error) {
	for {
		next, err := s.store.GetNextPending(venueID)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nil
		}

		ok, err := s.store.UpdateEntryStatusIf(next.ID.String(), models.StatusPending, models.StatusPlaying, nil)
		if err != nil {
			return nil, err
		}
		if ok {
			next.Status = models.StatusPlaying
			return next, nil
		}
	}
}

type AddSongRequest struct {
	SongID       string `json:"song_id" binding:"required"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	ThumbnailURL string `json:"thumbnail_url"`
	Priority     bool   `json:"priority"`
}

// AddSong inserts a pending entry. When the client supplies no display
// metadata the song is resolved through the circuit-protected lookup; a
// client-provided snapshot skips the lookup entirely, so queueing keeps
// working while the search API is down.
func (s *Service) AddSong(ctx context.Context, venueID, userID string, req AddSongRequest) (*models.QueueEntry, error) {
	venueUUID, err := uuid.Parse(venueID)
	if err != nil {
		return nil, &ValidationError{Message: "a valid venue id is required"}
	}
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return nil, &ValidationError{Message: "a valid user id is required"}
	}
	if req.SongID == "" {
		return nil, &ValidationError{Message: "song_id is required"}
	}

	if req.Title == "" {
		result, err := s.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			return s.resolver.GetVideo(ctx, req.SongID)
		})
		if err != nil {
			var notFound *lookup.NotFoundError
			if errors.As(err, &notFound) {
				return nil, &NotFoundError{Resource: "song", ID: req.SongID}
			}
			return nil, err
		}
		video := result.(*lookup.Video)
		req.Title = video.Title
		req.Artist = video.Artist
		req.ThumbnailURL = video.ThumbnailURL
	}

	entry := &models.QueueEntry{
		ID:           uuid.New(),
		VenueID:      venueUUID,
		AddedBy:      userUUID,
		SongID:       req.SongID,
		Title:        req.Title,
		Artist:       req.Artist,
		ThumbnailURL: req.ThumbnailURL,
		Status:       models.StatusPending,
		Priority:     req.Priority,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.store.InsertEntry(entry); err != nil {
		monitoring.RecordQueueOperation("add", venueID, "error")
		return nil, err
	}

	payload := events.SongAddedPayload{Song: *songPayload(entry)}
	s.publish(ctx, venueID, events.EventTypeSongAdded, payload)
	s.appendLog(ctx, events.EventTypeSongAdded, venueID, userID, payload)
	monitoring.RecordQueueOperation("add", venueID, "success")

	return entry, nil
}

// SkipSong removes a pending entry from the playback order. Skipped is
// terminal; the entry keeps its playedAt stamp as the moment it left the
// queue.
func (s *Service) SkipSong(ctx context.Context, entryID string) (*models.QueueEntry, error) {
	if _, err := uuid.Parse(entryID); err != nil {
		return nil, &ValidationError{Message: "a valid entry id is required"}
	}

	entry, err := s.store.FindEntryByID(entryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "queue entry", ID: entryID}
		}
		return nil, err
	}

	if entry.Status != models.StatusPending {
		return nil, &InvalidStateError{
			EntryID:       entryID,
			CurrentStatus: entry.Status,
			Message:       "only pending entries can be skipped",
		}
	}

	now := time.Now()
	ok, err := s.store.UpdateEntryStatusIf(entryID, models.StatusPending, models.StatusSkipped, &now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &InvalidStateError{
			EntryID:       entryID,
			CurrentStatus: entry.Status,
			Message:       "entry left the pending state",
		}
	}
	entry.Status = models.StatusSkipped
	entry.PlayedAt = &now

	venueID := entry.VenueID.String()
	payload := events.SongSkippedPayload{Song: *songPayload(entry)}
	s.publish(ctx, venueID, events.EventTypeSongSkipped, payload)
	s.appendLog(ctx, events.EventTypeSongSkipped, venueID, entry.AddedBy.String(), payload)
	monitoring.RecordQueueOperation("skip", venueID, "success")

	return entry, nil
}

// Snapshot is the full-queue view clients reconcile against after a
// queue-updated hint.
type Snapshot struct {
	NowPlaying *models.QueueEntry   `json:"now_playing"`
	Pending    []*models.QueueEntry `json:"pending"`
}

func (s *Service) GetQueue(ctx context.Context, venueID string) (*Snapshot, error) {
	if _, err := uuid.Parse(venueID); err != nil {
		return nil, &ValidationError{Message: "a valid venue id is required"}
	}

	playing, err := s.store.GetPlaying(venueID)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.GetPendingQueue(venueID)
	if err != nil {
		return nil, err
	}

	return &Snapshot{NowPlaying: playing, Pending: pending}, nil
}

// publish sends one bus event. The store mutation already succeeded by the
// time this runs, so a bus hiccup is logged and swallowed; clients reconcile
// via the queue snapshot endpoint.
func (s *Service) publish(ctx context.Context, venueID string, eventType events.EventType, payload interface{}) {
	envelope, err := events.NewEnvelope(venueID, eventType, payload)
	if err != nil {
		log.Printf("Failed to build %s envelope for venue %s: %v", eventType, venueID, err)
		monitoring.RecordBusEvent(string(eventType), "error")
		return
	}
	if err := s.bus.Publish(ctx, envelope); err != nil {
		log.Printf("Failed to publish %s event for venue %s: %v", eventType, venueID, err)
		monitoring.RecordBusEvent(string(eventType), "error")
		return
	}
	monitoring.RecordBusEvent(string(eventType), "published")
}

func (s *Service) appendLog(ctx context.Context, eventType events.EventType, venueID, userID string, payload interface{}) {
	if s.eventLog == nil {
		return
	}
	if err := s.eventLog.Append(ctx, eventType, venueID, userID, payload); err != nil {
		log.Printf("Failed to append %s event to log for venue %s: %v", eventType, venueID, err)
	}
}

func songPayload(entry *models.QueueEntry) *events.SongPayload {
	if entry == nil {
		return nil
	}
	return &events.SongPayload{
		ID:           entry.ID.String(),
		SongID:       entry.SongID,
		Title:        entry.Title,
		Artist:       entry.Artist,
		ThumbnailURL: entry.ThumbnailURL,
		Status:       string(entry.Status),
		Priority:     entry.Priority,
	}
}
