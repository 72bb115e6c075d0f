// Package notify delivers user and admin notifications. Delivery is
// fire-and-forget: callers never block on or fail because of a sink.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"lv-goldex/internal/metrics"
	"lv-goldex/internal/model"

	"github.com/google/uuid"
)

// Sink stores or forwards one notification.
type Sink interface {
	Name() string
	Send(ctx context.Context, n model.Notification) error
}

type AdminDirectory interface {
	AdminIDs(ctx context.Context) ([]string, error)
}

type Dispatcher struct {
	sinks   []Sink
	admins  AdminDirectory
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(admins AdminDirectory, logger *slog.Logger, m *metrics.Metrics, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Dispatcher{sinks: sinks, admins: admins, logger: logger, metrics: m, timeout: timeout}
}

// Notify queues a notification for one user and returns immediately.
func (d *Dispatcher) Notify(userID, title, message string, metadata map[string]any) {
	if d == nil || userID == "" {
		return
	}
	n := newNotification(userID, title, message, metadata)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.deliver(ctx, n)
	}()
}

// NotifyAdmins fans a notification out to every admin account.
func (d *Dispatcher) NotifyAdmins(title, message string, metadata map[string]any) {
	if d == nil || d.admins == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		ids, err := d.admins.AdminIDs(ctx)
		if err != nil {
			d.logger.Warn("list admins failed", "error", err)
			return
		}
		for _, id := range ids {
			d.deliver(ctx, newNotification(id, title, message, metadata))
		}
	}()
}

// Wait blocks until queued notifications finish, for shutdown and tests.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, n model.Notification) {
	for _, s := range d.sinks {
		if err := s.Send(ctx, n); err != nil {
			d.metrics.NotifyFailed(s.Name())
			d.logger.Warn("notification sink failed", "sink", s.Name(), "user_id", n.UserID, "title", n.Title, "error", err)
		}
	}
}

func newNotification(userID, title, message string, metadata map[string]any) model.Notification {
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	return model.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
}
