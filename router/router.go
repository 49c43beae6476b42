package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/mt5gateway/observe"
)

// Config configures queue bounds, batching, and the default staleness
// filter threshold.
type Config struct {
	MaxQueueSize         int
	BatchSize            int
	ProcessingInterval   time.Duration
	StaleEventThreshold  time.Duration // default 5 minutes if zero
}

func (c Config) withDefaults() Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 10000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.ProcessingInterval <= 0 {
		c.ProcessingInterval = 50 * time.Millisecond
	}
	if c.StaleEventThreshold <= 0 {
		c.StaleEventThreshold = 5 * time.Minute
	}
	return c
}

// Router owns the bounded inbound event queue, the filter chain, the
// subscription registry, and the batch scheduler that drains one into the
// other.
type Router struct {
	cfg    Config
	logger observe.Logger
	tracer observe.Tracer

	globalFilters []Filter
	typeFilters   map[string][]Filter

	queueMu sync.Mutex
	queue   []Event

	subsMu sync.RWMutex
	subs   map[string]*Subscription

	paused  atomic.Bool
	overflowCount atomic.Int64

	queueFullMu       sync.Mutex
	queueFullLastEmit time.Time

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New builds a Router with the default heartbeat/staleness filters
// installed and starts its batch scheduler goroutine.
func New(cfg Config, logger observe.Logger, tracer observe.Tracer) *Router {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = observe.NewNoopLogger()
	}
	if tracer == nil {
		tracer = observe.NewNoopTracer()
	}

	r := &Router{
		cfg:         cfg,
		logger:      logger,
		tracer:      tracer,
		typeFilters: make(map[string][]Filter),
		subs:        make(map[string]*Subscription),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	r.globalFilters = []Filter{dropHeartbeats, dropStale(cfg.StaleEventThreshold)}

	go r.run()
	return r
}

// AddGlobalFilter appends a filter applied to every event before
// type-specific filters and subscription matching.
func (r *Router) AddGlobalFilter(f Filter) {
	r.globalFilters = append(r.globalFilters, f)
}

// AddTypeFilter appends a filter applied only to events of the given type.
func (r *Router) AddTypeFilter(eventType string, f Filter) {
	r.typeFilters[eventType] = append(r.typeFilters[eventType], f)
}

// Submit enqueues an inbound event. On overflow the event is dropped, the
// overflow counter increments, and a rate-limited queueFull signal fires.
func (r *Router) Submit(event Event) {
	r.queueMu.Lock()
	if len(r.queue) >= r.cfg.MaxQueueSize {
		r.queueMu.Unlock()
		r.overflowCount.Add(1)
		r.logger.Warn(context.Background(), "router: queue full, dropping event",
			observe.Field{Key: "event_type", Value: event.Type},
			observe.Field{Key: "overflow_count", Value: r.overflowCount.Load()},
		)
		r.maybeEmitQueueFull()
		return
	}
	r.queue = append(r.queue, event)
	r.queueMu.Unlock()
}

// Subscribe registers a new interest and returns it so the caller can pause,
// resume, or inspect fire stats.
func (r *Router) Subscribe(filter SubscriptionFilter, priority int, handler Handler) *Subscription {
	sub := &Subscription{
		ID:        uuid.NewString(),
		Filter:    filter,
		Priority:  priority,
		CreatedAt: time.Now(),
		handler:   handler,
	}
	sub.active.Store(true)

	r.subsMu.Lock()
	r.subs[sub.ID] = sub
	r.subsMu.Unlock()
	return sub
}

// Unsubscribe removes a subscription entirely.
func (r *Router) Unsubscribe(id string) {
	r.subsMu.Lock()
	delete(r.subs, id)
	r.subsMu.Unlock()
}

// Pause stops batch draining; the queue keeps accepting Submit calls (still
// subject to MaxQueueSize) until Resume. Honored atomically with respect to
// batch boundaries: a batch already popped from the queue always finishes
// dispatching.
func (r *Router) Pause() { r.paused.Store(true) }

// Resume re-enables batch draining.
func (r *Router) Resume() { r.paused.Store(false) }

// Clear empties the pending queue without affecting an in-flight batch.
func (r *Router) Clear() {
	r.queueMu.Lock()
	dropped := len(r.queue)
	r.queue = nil
	r.queueMu.Unlock()
	if dropped > 0 {
		r.logger.Info(context.Background(), "router: queue cleared", observe.Field{Key: "dropped", Value: dropped})
	}
}

// QueueLength reports the number of events currently pending.
func (r *Router) QueueLength() int {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	return len(r.queue)
}

// OverflowCount reports the cumulative number of events dropped for
// exceeding MaxQueueSize.
func (r *Router) OverflowCount() int64 { return r.overflowCount.Load() }

// Shutdown drains the queue once, stops the scheduler, and waits for the
// final batch to finish dispatching.
func (r *Router) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	select {
	case <-r.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.cfg.ProcessingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			for r.QueueLength() > 0 {
				r.processBatch(context.Background())
			}
			return
		case <-ticker.C:
			if r.paused.Load() {
				continue
			}
			r.processBatch(context.Background())
		}
	}
}

func (r *Router) popBatch() []Event {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()

	n := r.cfg.BatchSize
	if n > len(r.queue) {
		n = len(r.queue)
	}
	if n == 0 {
		return nil
	}
	batch := make([]Event, n)
	copy(batch, r.queue[:n])

	remaining := make([]Event, len(r.queue)-n)
	copy(remaining, r.queue[n:])
	r.queue = remaining
	return batch
}

func (r *Router) processBatch(ctx context.Context) {
	batch := r.popBatch()
	if len(batch) == 0 {
		return
	}

	ctx, span := r.tracer.StartSpan(ctx, observe.CallMeta{Component: "router", Operation: "dispatch_batch"})
	defer r.tracer.EndSpan(span, nil)

	g := &errgroup.Group{}
	for _, event := range batch {
		event := event
		g.Go(func() error {
			r.dispatchEvent(ctx, event)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Router) dispatchEvent(ctx context.Context, event Event) {
	for _, f := range r.globalFilters {
		if !f(event) {
			return
		}
	}
	for _, f := range r.typeFilters[event.Type] {
		if !f(event) {
			return
		}
	}

	matches := r.matchingSubscriptions(event)
	for _, sub := range matches {
		r.invokeHandler(ctx, sub, event)
	}
}

func (r *Router) matchingSubscriptions(event Event) []*Subscription {
	r.subsMu.RLock()
	candidates := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		if sub.Active() && sub.Filter.matches(event) {
			candidates = append(candidates, sub)
		}
	}
	r.subsMu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return candidates
}

// invokeHandler runs one subscription's handler for one event, catching
// both returned errors and panics so a single bad handler never aborts the
// batch or its sibling handlers for the same event.
func (r *Router) invokeHandler(ctx context.Context, sub *Subscription, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(ctx, "router: handler panicked",
				observe.Field{Key: "subscription_id", Value: sub.ID},
				observe.Field{Key: "recovered", Value: fmt.Sprint(rec)},
			)
		}
	}()

	if err := sub.handler(ctx, event); err != nil {
		r.logger.Warn(ctx, "router: handler failed",
			observe.Field{Key: "subscription_id", Value: sub.ID},
			observe.Field{Key: "event_id", Value: event.ID},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return
	}
	sub.recordFire(time.Now())
}

// maybeEmitQueueFull delivers a synthetic router-sourced "error" event the
// first time a sweep window overflows, then rate-limits repeats to once per
// second so sustained backpressure doesn't itself flood subscribers.
func (r *Router) maybeEmitQueueFull() {
	now := time.Now()
	r.queueFullMu.Lock()
	emit := r.queueFullLastEmit.IsZero() || now.Sub(r.queueFullLastEmit) >= time.Second
	if emit {
		r.queueFullLastEmit = now
	}
	r.queueFullMu.Unlock()

	if !emit {
		return
	}

	data, _ := json.Marshal(map[string]int64{"overflowCount": r.overflowCount.Load()})
	signal := Event{
		ID:        uuid.NewString(),
		Type:      "error",
		Timestamp: now.UnixMilli(),
		Source:    "router",
		Data:      data,
	}
	r.dispatchEvent(context.Background(), signal)
}
