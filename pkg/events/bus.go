package events

import (
	"context"
	"encoding/json"
	"time"
)

type EventType string

const (
	EventTypeSongAdded   EventType = "song_added"
	EventTypePlayNext    EventType = "play_next"
	EventTypeSongSkipped EventType = "song_skipped"
	// EventTypeQueueUpdated is the generic type every queue mutation is also
	// re-emitted under, for consumers that only want a refresh hint.
	EventTypeQueueUpdated EventType = "queue_updated"
)

// Known reports whether t belongs to the closed tag set. Subscribers log and
// ignore unknown types instead of propagating them.
func Known(t EventType) bool {
	switch t {
	case EventTypeSongAdded, EventTypePlayNext, EventTypeSongSkipped, EventTypeQueueUpdated:
		return true
	}
	return false
}

// Envelope is the one schema that crosses the bus. Data holds the per-type
// payload; consumers deserialize defensively and treat events as refresh
// hints, not as a strict log.
type Envelope struct {
	VenueID   string          `json:"venue_id"`
	EventType EventType       `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope marshals payload into an Envelope for the venue.
func NewEnvelope(venueID string, eventType EventType, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		VenueID:   venueID,
		EventType: eventType,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}

// Bus fans queue-mutation events out to every subscribed process. Delivery is
// at-least-once with best-effort ordering per publisher; there is no total
// order across publishers.
type Bus interface {
	Publish(ctx context.Context, envelope Envelope) error
	Subscribe(ctx context.Context, handler func(Envelope)) error
}

// Event payload types carried in Envelope.Data.

// PlayNextPayload announces a playback advance. NextSong is explicitly null
// when the queue ran empty.
type PlayNextPayload struct {
	PreviousSong *SongPayload `json:"previous_song"`
	NextSong     *SongPayload `json:"next_song"`
}

type SongAddedPayload struct {
	Song SongPayload `json:"song"`
}

type SongSkippedPayload struct {
	Song SongPayload `json:"song"`
}

type SongPayload struct {
	ID           string `json:"id"`
	SongID       string `json:"song_id"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	ThumbnailURL string `json:"thumbnail_url"`
	Status       string `json:"status"`
	Priority     bool   `json:"priority"`
}
