package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/venue-queue-system/pkg/models"
)

func setupTestStore(t *testing.T) *MySQLDB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	db.Exec("PRAGMA busy_timeout=5000;")

	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func insertEntry(t *testing.T, store *MySQLDB, venueID uuid.UUID, title string, priority bool, status models.EntryStatus, createdAt time.Time) *models.QueueEntry {
	t.Helper()

	entry := &models.QueueEntry{
		ID:        uuid.New(),
		VenueID:   venueID,
		AddedBy:   uuid.New(),
		SongID:    "song-" + title,
		Title:     title,
		Status:    status,
		Priority:  priority,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, store.InsertEntry(entry))
	return entry
}

func TestGetNextPending_OrdersByPriorityThenAge(t *testing.T) {
	store := setupTestStore(t)
	venueID := uuid.New()
	base := time.Now().Add(-time.Hour)

	insertEntry(t, store, venueID, "oldest", false, models.StatusPending, base)
	insertEntry(t, store, venueID, "newer", false, models.StatusPending, base.Add(time.Minute))
	prio := insertEntry(t, store, venueID, "late-priority", true, models.StatusPending, base.Add(2*time.Minute))

	next, err := store.GetNextPending(venueID.String())
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, prio.ID, next.ID)
}

func TestGetNextPending_ExcludesPlayingAndTerminal(t *testing.T) {
	store := setupTestStore(t)
	venueID := uuid.New()
	base := time.Now().Add(-time.Hour)

	insertEntry(t, store, venueID, "playing", true, models.StatusPlaying, base)
	insertEntry(t, store, venueID, "played", true, models.StatusPlayed, base)
	pending := insertEntry(t, store, venueID, "pending", false, models.StatusPending, base.Add(time.Minute))

	next, err := store.GetNextPending(venueID.String())
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, pending.ID, next.ID)
}

func TestGetNextPending_EmptyQueueReturnsNil(t *testing.T) {
	store := setupTestStore(t)

	next, err := store.GetNextPending(uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestGetPendingQueue_AssignsPositions(t *testing.T) {
	store := setupTestStore(t)
	venueID := uuid.New()
	base := time.Now().Add(-time.Hour)

	insertEntry(t, store, venueID, "second", false, models.StatusPending, base)
	insertEntry(t, store, venueID, "first", true, models.StatusPending, base.Add(time.Minute))

	entries, err := store.GetPendingQueue(venueID.String())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Title)
	assert.Equal(t, 1, entries[0].Position)
	assert.Equal(t, "second", entries[1].Title)
	assert.Equal(t, 2, entries[1].Position)
}

func TestUpdateEntryStatusIf_CompareAndSet(t *testing.T) {
	store := setupTestStore(t)
	venueID := uuid.New()
	entry := insertEntry(t, store, venueID, "song", false, models.StatusPlaying, time.Now())

	playedAt := time.Now()
	ok, err := store.UpdateEntryStatusIf(entry.ID.String(), models.StatusPlaying, models.StatusPlayed, &playedAt)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second transition from the same expected status must lose.
	ok, err = store.UpdateEntryStatusIf(entry.ID.String(), models.StatusPlaying, models.StatusPlayed, &playedAt)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := store.FindEntryByID(entry.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlayed, stored.Status)
	require.NotNil(t, stored.PlayedAt)
}

func TestUpdateEntryStatusIf_WrongExpectedStatusIsNoop(t *testing.T) {
	store := setupTestStore(t)
	venueID := uuid.New()
	entry := insertEntry(t, store, venueID, "song", false, models.StatusPending, time.Now())

	ok, err := store.UpdateEntryStatusIf(entry.ID.String(), models.StatusPlaying, models.StatusPlayed, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := store.FindEntryByID(entry.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestGetPlaying(t *testing.T) {
	store := setupTestStore(t)
	venueID := uuid.New()

	playing, err := store.GetPlaying(venueID.String())
	require.NoError(t, err)
	assert.Nil(t, playing)

	entry := insertEntry(t, store, venueID, "now", false, models.StatusPlaying, time.Now())

	playing, err = store.GetPlaying(venueID.String())
	require.NoError(t, err)
	require.NotNil(t, playing)
	assert.Equal(t, entry.ID, playing.ID)
}
