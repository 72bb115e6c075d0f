package health

import (
	"context"
	"net/http"
	"time"

	"lv-goldex/internal/httputil"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	db        Pinger
	startedAt time.Time
	timeout   time.Duration
}

func NewHandler(db Pinger, startedAt time.Time) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{db: db, startedAt: start, timeout: time.Second}
}

type response struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	UptimeSec int64        `json:"uptime_sec"`
	Database  *dbReachable `json:"database,omitempty"`
}

type dbReachable struct {
	Reachable bool   `json:"reachable"`
	PingMs    int64  `json:"ping_ms"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) uptime(now time.Time) int64 {
	if d := now.Sub(h.startedAt); d > 0 {
		return int64(d.Seconds())
	}
	return 0
}

// Live does not touch the database.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	httputil.WriteJSON(w, http.StatusOK, response{Status: "ok", Timestamp: now.Format(time.RFC3339), UptimeSec: h.uptime(now)})
}

// Ready answers 503 while the database is unreachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	stat := &dbReachable{}
	if h.db == nil {
		stat.Error = "database is not configured"
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		start := time.Now()
		err := h.db.Ping(ctx)
		cancel()
		stat.PingMs = time.Since(start).Milliseconds()
		if err != nil {
			stat.Error = err.Error()
		} else {
			stat.Reachable = true
		}
	}
	status, code := "ok", http.StatusOK
	if !stat.Reachable {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, response{Status: status, Timestamp: now.Format(time.RFC3339), UptimeSec: h.uptime(now), Database: stat})
}
