package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/venue-queue-system/config"
	"github.com/venue-queue-system/internal/auth"
	"github.com/venue-queue-system/internal/lookup"
	"github.com/venue-queue-system/internal/queue"
	"github.com/venue-queue-system/internal/venue"
	"github.com/venue-queue-system/internal/ws"
	"github.com/venue-queue-system/pkg/breaker"
	"github.com/venue-queue-system/pkg/database"
	"github.com/venue-queue-system/pkg/events"
	"github.com/venue-queue-system/pkg/monitoring"
	"github.com/venue-queue-system/pkg/ratelimit"
	"github.com/venue-queue-system/pkg/redis"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	cfg := config.Load()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize MySQL database
	db, err := database.NewMySQLDB(
		cfg.MySQLHost,
		cfg.MySQLPort,
		cfg.MySQLUser,
		cfg.MySQLPassword,
		cfg.MySQLDatabase,
	)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Initialize Redis client
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// Realtime bus and durable event log
	bus := events.NewRedisBus(redisClient)
	eventLog := events.NewEventLog(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer eventLog.Close()

	// External song lookup behind its circuit breaker
	lookupClient := lookup.NewClient(cfg.LookupBaseURL, cfg.LookupAPIKey)
	lookupBreaker := breaker.New("song-lookup", lookup.Classify)

	// Admission guard shared by the HTTP edge and the gateway
	guard := ratelimit.New(cfg.RateLimit, cfg.RateLimitWindow)

	// Services and handlers
	sessions := redis.NewSessionStore(redisClient)
	queueService := queue.NewService(db, bus, eventLog, lookupClient, lookupBreaker)

	wsHandler := ws.NewHandler(queueService, guard, bus)
	wsHandler.SetHeartbeatIntervals(cfg.PingInterval, cfg.PongTimeout)
	queueHandler := queue.NewHandler(queueService, guard, lookupBreaker, lookupClient, wsHandler)

	authHandler := auth.NewHandler(db, sessions)
	venueService := venue.NewService(db, redisClient)
	venueHandler := venue.NewHandler(venueService)

	// One bus subscription per process feeds the gateway's rooms
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wsHandler.Run(ctx)
	go monitoring.WatchBreaker(ctx, func() string { return lookupBreaker.Status().State })

	// Initialize Gin router
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Health check: breaker state and local room counts. No tenant data.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"breaker": lookupBreaker.Status(),
			"rooms":   wsHandler.RoomCounts(),
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	v1 := router.Group("/api/v1")

	// Public routes
	authHandler.RegisterRoutes(v1)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(auth.Middleware(sessions))
	{
		authHandler.RegisterProtectedRoutes(protected)
		venueHandler.RegisterRoutes(protected)
		queueHandler.RegisterRoutes(protected)

		// WebSocket endpoint
		protected.GET("/ws", wsHandler.HandleWebSocket)
	}

	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
