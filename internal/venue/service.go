package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/venue-queue-system/pkg/database"
	"github.com/venue-queue-system/pkg/models"
)

const (
	venueKeyPrefix = "venue:"
	venueCacheTTL  = 24 * time.Hour
	codeLength     = 6
)

type Service struct {
	db    *database.MySQLDB
	redis *redis.Client
}

func NewService(db *database.MySQLDB, redisClient *redis.Client) *Service {
	return &Service{
		db:    db,
		redis: redisClient,
	}
}

func (s *Service) CreateVenue(ctx context.Context, name string) (*models.Venue, error) {
	venue := &models.Venue{
		ID:        uuid.New(),
		Code:      generateVenueCode(),
		Name:      name,
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.db.CreateVenue(venue); err != nil {
		return nil, fmt.Errorf("failed to create venue: %w", err)
	}

	s.cache(ctx, venue)
	return venue, nil
}

func (s *Service) GetVenue(ctx context.Context, venueID string) (*models.Venue, error) {
	// Try cache first
	key := venueKeyPrefix + venueID
	venueJSON, err := s.redis.Get(ctx, key).Bytes()
	if err == nil {
		var venue models.Venue
		if err := json.Unmarshal(venueJSON, &venue); err == nil {
			return &venue, nil
		}
	}

	// Fallback to database
	venue, err := s.db.GetVenueByID(venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get venue: %w", err)
	}

	s.cache(ctx, venue)
	return venue, nil
}

func (s *Service) GetVenueByCode(ctx context.Context, code string) (*models.Venue, error) {
	venue, err := s.db.GetVenueByCode(code)
	if err != nil {
		return nil, fmt.Errorf("failed to get venue: %w", err)
	}

	s.cache(ctx, venue)
	return venue, nil
}

func (s *Service) cache(ctx context.Context, venue *models.Venue) {
	venueJSON, err := json.Marshal(venue)
	if err != nil {
		return
	}
	key := venueKeyPrefix + venue.ID.String()
	if err := s.redis.Set(ctx, key, venueJSON, venueCacheTTL).Err(); err != nil {
		log.Printf("Warning: failed to cache venue %s: %v", venue.ID, err)
	}
}

func generateVenueCode() string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = charset[rand.Intn(len(charset))]
	}
	return string(code)
}
