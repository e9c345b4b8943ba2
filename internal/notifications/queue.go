package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/civicconnect/civic-backend/pkg/logger"
	"github.com/civicconnect/civic-backend/pkg/metrics"
	"github.com/google/uuid"
)

const (
	defaultQueueSize       = 256
	defaultQueueWorkers    = 4
	defaultDeliveryTimeout = 15 * time.Second
)

type eventHandler interface {
	Handle(ctx context.Context, e Event) error
}

// QueueParams configure the dispatch queue.
type QueueParams struct {
	Handler         eventHandler
	Size            int
	Workers         int
	DeliveryTimeout time.Duration
	Metrics         *metrics.DispatchMetrics
	Logger          *logger.Logger
}

// Queue hands committed domain events to dispatch workers so request handlers
// never wait on delivery. A full queue drops the event.
type Queue struct {
	handler eventHandler
	events  chan Event
	workers int
	timeout time.Duration
	metrics *metrics.DispatchMetrics
	logg    *logger.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewQueue(params QueueParams) (*Queue, error) {
	if params.Handler == nil {
		return nil, fmt.Errorf("event handler required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	size := params.Size
	if size <= 0 {
		size = defaultQueueSize
	}
	workers := params.Workers
	if workers <= 0 {
		workers = defaultQueueWorkers
	}
	timeout := params.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &Queue{
		handler: params.Handler,
		events:  make(chan Event, size),
		workers: workers,
		timeout: timeout,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// Start launches the workers. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = cancel
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(workerCtx)
	}
}

// Stop stops accepting events, drains what is buffered, and waits for the
// workers until ctx expires. In-flight events are canceled on expiry.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.events)
	started := q.started
	q.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

// Enqueue offers e to the workers without blocking. It reports false when the
// queue is full or stopped.
func (q *Queue) Enqueue(ctx context.Context, e Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logg.Warn(q.logg.WithEvent(ctx, string(e.Type)), "notification queue stopped; event dropped")
		q.metrics.IncDropped()
		return false
	}

	select {
	case q.events <- e:
		q.metrics.SetQueueDepth(len(q.events))
		return true
	default:
		q.logg.Warn(q.logg.WithEvent(ctx, string(e.Type)), "notification queue full; event dropped")
		q.metrics.IncDropped()
		return false
	}
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	return len(q.events)
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for e := range q.events {
		q.metrics.SetQueueDepth(len(q.events))
		q.process(ctx, e)
	}
}

func (q *Queue) process(ctx context.Context, e Event) {
	eventCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			q.logg.Error(q.logg.WithEvent(eventCtx, string(e.Type)), "notification handler panicked", fmt.Errorf("panic: %v", r))
		}
	}()

	if err := q.handler.Handle(eventCtx, e); err != nil {
		logCtx := q.logg.WithEvent(eventCtx, string(e.Type))
		if id := e.IssueID(); id != uuid.Nil {
			logCtx = q.logg.WithIssueID(logCtx, id.String())
		}
		q.logg.Error(logCtx, "notification dispatch failed", err)
	}
}
