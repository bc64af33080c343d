// Package alert fans fraud alerts out to observers.
//
// Notify is called on the scoring path and never blocks: alerts are queued on
// a bounded channel and delivered by Run. An observer whose delivery fails is
// unsubscribed.
package alert

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"travelguard/antifraud/internal/domain"
	"travelguard/antifraud/internal/metrics"
)

// Observer receives alerts. ID must be stable and unique per dispatcher.
type Observer interface {
	ID() string
	Deliver(ctx context.Context, alert domain.Alert) error
}

// Defaults for Config.
const (
	DefaultQueueSize       = 256
	DefaultDeliveryTimeout = 10 * time.Second
	DefaultMaxConcurrent   = 16
)

// Config tunes a Dispatcher.
type Config struct {
	QueueSize       int
	DeliveryTimeout time.Duration
	MaxConcurrent   int // deliveries in flight per alert
}

// Dispatcher queues alerts and delivers them to subscribed observers.
type Dispatcher struct {
	cfg    Config
	queue  chan domain.Alert
	logger *slog.Logger

	mu        sync.RWMutex
	observers map[string]Observer
}

// NewDispatcher creates a dispatcher. Zero config fields take their defaults.
func NewDispatcher(cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Dispatcher{
		cfg:       cfg,
		queue:     make(chan domain.Alert, cfg.QueueSize),
		logger:    logger.With("component", "alerts"),
		observers: make(map[string]Observer),
	}
}

// Subscribe adds o, replacing any observer with the same ID.
func (d *Dispatcher) Subscribe(o Observer) {
	d.mu.Lock()
	d.observers[o.ID()] = o
	n := len(d.observers)
	d.mu.Unlock()
	metrics.AlertObservers.Set(float64(n))
	d.logger.Info("observer subscribed", "observer", o.ID())
}

// Unsubscribe removes the observer with id and reports whether it was present.
func (d *Dispatcher) Unsubscribe(id string) bool {
	d.mu.Lock()
	_, ok := d.observers[id]
	delete(d.observers, id)
	n := len(d.observers)
	d.mu.Unlock()
	metrics.AlertObservers.Set(float64(n))
	return ok
}

// Observers returns the subscribed observer IDs in sorted order.
func (d *Dispatcher) Observers() []string {
	d.mu.RLock()
	ids := make([]string, 0, len(d.observers))
	for id := range d.observers {
		ids = append(ids, id)
	}
	d.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Notify queues an alert. When the queue is full the alert is dropped.
func (d *Dispatcher) Notify(a domain.Alert) {
	select {
	case d.queue <- a:
		metrics.AlertsTotal.WithLabelValues("queued").Inc()
	default:
		metrics.AlertsTotal.WithLabelValues("dropped").Inc()
		d.logger.Warn("alert queue full, dropping alert", "alert_id", a.ID, "check_id", a.Event.CheckID)
	}
}

// Run delivers queued alerts until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("alert dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("alert dispatcher stopped", "pending", len(d.queue))
			return
		case a := <-d.queue:
			d.deliver(ctx, a)
		}
	}
}

// deliver sends a to every observer concurrently and drops the ones that fail.
func (d *Dispatcher) deliver(ctx context.Context, a domain.Alert) {
	d.mu.RLock()
	targets := make([]Observer, 0, len(d.observers))
	for _, o := range d.observers {
		targets = append(targets, o)
	}
	d.mu.RUnlock()

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []string
	)
	g.SetLimit(d.cfg.MaxConcurrent)
	for _, o := range targets {
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
			defer cancel()
			if err := o.Deliver(dctx, a); err != nil {
				metrics.AlertsTotal.WithLabelValues("failed").Inc()
				d.logger.Warn("alert delivery failed, unsubscribing observer",
					"observer", o.ID(), "alert_id", a.ID, "error", err)
				mu.Lock()
				failed = append(failed, o.ID())
				mu.Unlock()
				return nil
			}
			metrics.AlertsTotal.WithLabelValues("delivered").Inc()
			return nil
		})
	}
	_ = g.Wait()

	for _, id := range failed {
		d.Unsubscribe(id)
	}
}
