package models

import (
	"time"

	"github.com/google/uuid"
)

type EntryStatus string

const (
	StatusPending EntryStatus = "pending"
	StatusPlaying EntryStatus = "playing"
	StatusPlayed  EntryStatus = "played"
	StatusSkipped EntryStatus = "skipped"
)

// Terminal reports whether the status has no outgoing transitions.
func (s EntryStatus) Terminal() bool {
	return s == StatusPlayed || s == StatusSkipped
}

type User struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Venue struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	Code      string    `json:"code" gorm:"unique"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QueueEntry is one song request in a venue's queue. Song metadata is a
// denormalized snapshot taken at insert time so the queue stays renderable
// when the external lookup is unavailable.
type QueueEntry struct {
	ID           uuid.UUID   `json:"id" gorm:"primaryKey"`
	VenueID      uuid.UUID   `json:"venue_id" gorm:"index"`
	AddedBy      uuid.UUID   `json:"added_by"`
	SongID       string      `json:"song_id"`
	Title        string      `json:"title"`
	Artist       string      `json:"artist"`
	ThumbnailURL string      `json:"thumbnail_url"`
	Status       EntryStatus `json:"status" gorm:"index;default:pending"`
	Priority     bool        `json:"priority"`
	Position     int         `json:"position" gorm:"-"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	PlayedAt     *time.Time  `json:"played_at,omitempty"`
}
