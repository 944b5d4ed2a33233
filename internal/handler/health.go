package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/segyhp/loan-aggregator/internal/offers"
	"github.com/segyhp/loan-aggregator/pkg/response"
)

// SnapshotProvider reports the active partner snapshot.
type SnapshotProvider interface {
	Snapshot() (*offers.Snapshot, error)
}

// HealthHandler checks the stores the process was started with. A nil db or
// redis client is reported as "disabled".
type HealthHandler struct {
	db       *sqlx.DB
	redis    redis.UniversalClient
	partners SnapshotProvider
	timeout  time.Duration
}

func NewHealthHandler(db *sqlx.DB, redis redis.UniversalClient, partners SnapshotProvider, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{
		db:       db,
		redis:    redis,
		partners: partners,
		timeout:  timeout,
	}
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Health performs a basic health check
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	response.Success(w, status)
}

// Ready checks database and redis connectivity and that a partner snapshot
// is loaded.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	check := func(name string, enabled bool, ping func(context.Context) error) {
		if !enabled {
			status.Checks[name] = "disabled"
			return
		}
		if err := ping(ctx); err != nil {
			status.Status = "error"
			status.Checks[name] = "failed: " + err.Error()
			return
		}
		status.Checks[name] = "ok"
	}

	check("database", h.db != nil, func(ctx context.Context) error {
		return h.db.PingContext(ctx)
	})
	check("redis", h.redis != nil, func(ctx context.Context) error {
		return h.redis.Ping(ctx).Err()
	})

	if snapshot, err := h.partners.Snapshot(); err != nil {
		status.Status = "error"
		status.Checks["partners"] = "failed: " + err.Error()
	} else {
		status.Checks["partners"] = snapshot.Version
	}

	if status.Status == "error" {
		response.ErrorWithCode(w, http.StatusServiceUnavailable, "", "Service not ready", nil, status)
		return
	}

	response.Success(w, status)
}
