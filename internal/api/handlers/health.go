package handlers

import (
	"net/http"
	"slices"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-scout/pkg/queue"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// TriggerCounter reports how many queries hold a live trigger.
type TriggerCounter interface {
	Len() int
}

// QueueInspector is satisfied by *asynq.Inspector.
type QueueInspector interface {
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

type HealthHandler struct {
	db        *gorm.DB
	redis     *redis.Client
	scheduler TriggerCounter
	inspector QueueInspector
}

// NewHealthHandler wires the checks. redis, scheduler and inspector are
// optional; nil skips the check.
func NewHealthHandler(db *gorm.DB, redis *redis.Client, scheduler TriggerCounter, inspector QueueInspector) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, scheduler: scheduler, inspector: inspector}
}

type HealthResponse struct {
	Status          string            `json:"status"`
	Services        map[string]string `json:"services"`
	ActiveSchedules *int              `json:"active_schedules,omitempty"`
	Queue           *QueueStats       `json:"queue,omitempty"`
}

type QueueStats struct {
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Scheduled int `json:"scheduled"`
	Retry     int `json:"retry"`
	Archived  int `json:"archived"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	services := make(map[string]string)
	status := "healthy"

	// Check database
	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.PingContext(r.Context()) != nil {
		services["database"] = "unhealthy"
		status = "unhealthy"
	} else {
		services["database"] = "healthy"
	}

	// Check Redis
	if h.redis != nil {
		if err := h.redis.Ping(r.Context()).Err(); err != nil {
			services["redis"] = "unhealthy"
			status = "unhealthy"
		} else {
			services["redis"] = "healthy"
		}
	}

	resp := HealthResponse{Services: services}

	if h.scheduler != nil {
		n := h.scheduler.Len()
		resp.ActiveSchedules = &n
		services["scheduler"] = "healthy"
	}

	if h.inspector != nil {
		stats, err := h.queueStats()
		if err != nil {
			services["queue"] = "unhealthy"
			status = "unhealthy"
		} else {
			services["queue"] = "healthy"
			resp.Queue = stats
		}
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	resp.Status = status
	writeJSON(w, statusCode, resp)
}

// queueStats returns nil stats until the first task creates the queue.
func (h *HealthHandler) queueStats() (*QueueStats, error) {
	names, err := h.inspector.Queues()
	if err != nil {
		return nil, err
	}
	if !slices.Contains(names, queue.QueueScheduled) {
		return nil, nil
	}

	info, err := h.inspector.GetQueueInfo(queue.QueueScheduled)
	if err != nil {
		return nil, err
	}
	return &QueueStats{
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
	}, nil
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
