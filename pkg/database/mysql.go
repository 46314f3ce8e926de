package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/venue-queue-system/pkg/models"
)

type MySQLDB struct {
	*gorm.DB
}

func NewMySQLDB(host, port, user, password, dbname string) (*MySQLDB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbname)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &MySQLDB{DB: db}, nil
}

// NewStore wraps an already-open gorm connection. Tests use this with the
// sqlite driver.
func NewStore(db *gorm.DB) (*MySQLDB, error) {
	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &MySQLDB{DB: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	return db.AutoMigrate(
		&models.User{},
		&models.Venue{},
		&models.QueueEntry{},
	)
}

// User operations
func (db *MySQLDB) CreateUser(user *models.User) error {
	return db.Create(user).Error
}

func (db *MySQLDB) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Venue operations
func (db *MySQLDB) CreateVenue(venue *models.Venue) error {
	return db.Create(venue).Error
}

func (db *MySQLDB) GetVenueByID(id string) (*models.Venue, error) {
	var venue models.Venue
	if err := db.First(&venue, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &venue, nil
}

func (db *MySQLDB) GetVenueByCode(code string) (*models.Venue, error) {
	var venue models.Venue
	if err := db.First(&venue, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &venue, nil
}

// Queue operations
func (db *MySQLDB) InsertEntry(entry *models.QueueEntry) error {
	return db.Create(entry).Error
}

func (db *MySQLDB) FindEntryByID(id string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := db.First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetPendingQueue returns a venue's pending entries in playback order:
// priority entries first, then oldest first.
func (db *MySQLDB) GetPendingQueue(venueID string) ([]*models.QueueEntry, error) {
	var entries []*models.QueueEntry
	if err := db.Where("venue_id = ? AND status = ?", venueID, models.StatusPending).
		Order("priority DESC, created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	for i, entry := range entries {
		entry.Position = i + 1
	}
	return entries, nil
}

// GetNextPending returns the first pending entry in playback order, or nil
// when the venue's queue is empty.
func (db *MySQLDB) GetNextPending(venueID string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := db.Where("venue_id = ? AND status = ?", venueID, models.StatusPending).
		Order("priority DESC, created_at ASC").
		First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetPlaying returns the venue's currently playing entry, or nil.
func (db *MySQLDB) GetPlaying(venueID string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := db.Where("venue_id = ? AND status = ?", venueID, models.StatusPlaying).
		First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateEntryStatusIf transitions an entry from one status to another as a
// compare-and-set: the write only lands if the entry is still in the expected
// status. Returns false when another caller won the race.
func (db *MySQLDB) UpdateEntryStatusIf(id string, from, to models.EntryStatus, playedAt *time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	if playedAt != nil {
		updates["played_at"] = *playedAt
	}

	result := db.Model(&models.QueueEntry{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
