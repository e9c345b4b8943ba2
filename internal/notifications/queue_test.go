package notifications

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/civicconnect/civic-backend/pkg/logger"
	"github.com/civicconnect/civic-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type handlerFunc func(ctx context.Context, e Event) error

func (f handlerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) }

func TestQueueProcessesEvents(t *testing.T) {
	var handled atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)
	q, err := NewQueue(QueueParams{
		Handler: handlerFunc(func(ctx context.Context, e Event) error {
			handled.Add(1)
			wg.Done()
			return nil
		}),
		Size:    8,
		Workers: 2,
		Logger:  logger.Nop(),
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	q.Start(context.Background())

	for i := 0; i < 3; i++ {
		if !q.Enqueue(context.Background(), Event{Type: EventUpvoteReceived}) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	wg.Wait()
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if handled.Load() != 3 {
		t.Fatalf("expected 3 handled, got %d", handled.Load())
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewDispatchMetrics(reg)
	q, err := NewQueue(QueueParams{
		Handler: handlerFunc(func(context.Context, Event) error { return nil }),
		Size:    1,
		Metrics: m,
		Logger:  logger.Nop(),
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	// not started: the single slot fills and the next event is dropped
	if !q.Enqueue(context.Background(), Event{Type: EventCommentAdded}) {
		t.Fatal("first enqueue should fit")
	}
	if q.Enqueue(context.Background(), Event{Type: EventCommentAdded}) {
		t.Fatal("second enqueue should be dropped")
	}

	if dropped := gatherValue(t, reg, "notification_events_dropped_total"); dropped != 1 {
		t.Fatalf("expected 1 dropped event, got %v", dropped)
	}
	if depth := gatherValue(t, reg, "notification_queue_depth"); depth != 1 {
		t.Fatalf("expected depth 1, got %v", depth)
	}
}

func TestQueueAppliesDeliveryTimeout(t *testing.T) {
	deadline := make(chan bool, 1)
	q, err := NewQueue(QueueParams{
		Handler: handlerFunc(func(ctx context.Context, e Event) error {
			_, ok := ctx.Deadline()
			deadline <- ok
			<-ctx.Done()
			return ctx.Err()
		}),
		DeliveryTimeout: 20 * time.Millisecond,
		Logger:          logger.Nop(),
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	q.Start(context.Background())
	defer func() { _ = q.Stop(context.Background()) }()

	q.Enqueue(context.Background(), Event{Type: EventIssueCreated})
	select {
	case ok := <-deadline:
		if !ok {
			t.Fatal("expected handler context to carry a deadline")
		}
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestQueueStopDrainsAndRejects(t *testing.T) {
	var handled atomic.Int32
	q, err := NewQueue(QueueParams{
		Handler: handlerFunc(func(context.Context, Event) error {
			handled.Add(1)
			return errors.New("delivery failed")
		}),
		Size:    4,
		Workers: 1,
		Logger:  logger.Nop(),
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	for i := 0; i < 3; i++ {
		q.Enqueue(context.Background(), Event{Type: EventAnnouncement})
	}
	q.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if handled.Load() != 3 {
		t.Fatalf("expected buffered events drained, got %d", handled.Load())
	}
	if q.Enqueue(context.Background(), Event{Type: EventAnnouncement}) {
		t.Fatal("stopped queue must reject events")
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestQueueRecoversHandlerPanic(t *testing.T) {
	done := make(chan struct{}, 2)
	calls := atomic.Int32{}
	q, err := NewQueue(QueueParams{
		Handler: handlerFunc(func(context.Context, Event) error {
			defer func() { done <- struct{}{} }()
			if calls.Add(1) == 1 {
				panic("boom")
			}
			return nil
		}),
		Workers: 1,
		Logger:  logger.Nop(),
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	q.Start(context.Background())
	defer func() { _ = q.Stop(context.Background()) }()

	q.Enqueue(context.Background(), Event{Type: EventIssueAssigned})
	q.Enqueue(context.Background(), Event{Type: EventIssueAssigned})
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker did not survive the panic")
		}
	}
}

func TestNewQueueRequiresHandler(t *testing.T) {
	if _, err := NewQueue(QueueParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error without handler")
	}
}

func gatherValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()[0]
		if m.GetCounter() != nil {
			return m.GetCounter().GetValue()
		}
		return m.GetGauge().GetValue()
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
