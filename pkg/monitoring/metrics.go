package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operations_total",
			Help: "Total queue operations by type and outcome",
		},
		[]string{"operation", "venue_id", "status"},
	)

	busEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_total",
			Help: "Realtime bus events by type and outcome",
		},
		[]string{"event_type", "status"},
	)

	roomConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "room_connections",
			Help: "Current websocket connections per venue (process-local)",
		},
		[]string{"venue_id"},
	)

	breakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lookup_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half_open, 2=open)",
		},
	)
)

func RecordQueueOperation(operation, venueID, status string) {
	queueOperations.WithLabelValues(operation, venueID, status).Inc()
}

func RecordBusEvent(eventType, status string) {
	busEvents.WithLabelValues(eventType, status).Inc()
}

func SetRoomConnections(venueID string, count int) {
	roomConnections.WithLabelValues(venueID).Set(float64(count))
}

func RemoveRoom(venueID string) {
	roomConnections.DeleteLabelValues(venueID)
}

func SetBreakerState(state int) {
	breakerState.Set(float64(state))
}

var breakerStateCodes = map[string]int{
	"closed":    0,
	"half_open": 1,
	"open":      2,
}

// WatchBreaker keeps the breaker state gauge current until ctx is cancelled.
func WatchBreaker(ctx context.Context, statusFn func() string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			SetBreakerState(breakerStateCodes[statusFn()])
		}
	}
}
