package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"onboarding/pkg/circuitbreaker"
	"onboarding/pkg/trace"
)

type fakeStore struct {
	mu      sync.Mutex
	events  map[int64]*Event
	sent    []int64
	failed  []int64
	listErr error
}

func newFakeStore(events ...*Event) *fakeStore {
	s := &fakeStore{events: map[int64]*Event{}}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *fakeStore) byStatus(status string, limit int) []*Event {
	var out []*Event
	for id := int64(1); id <= int64(len(s.events)) && len(out) < limit; id++ {
		if e, ok := s.events[id]; ok && e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

func (s *fakeStore) GetPendingEvents(_ context.Context, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.byStatus(StatusPending, limit), nil
}

func (s *fakeStore) GetFailedEvents(_ context.Context, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.byStatus(StatusFailed, limit), nil
}

func (s *fakeStore) GetEventByID(_ context.Context, id int64) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return e, nil
}

func (s *fakeStore) MarkAsSent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id].Status = StatusSent
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkAsFailed(_ context.Context, id int64, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.events[id]
	e.RetryCount++
	if e.RetryCount >= maxRetries {
		e.Status = StatusFailed
	}
	s.failed = append(s.failed, id)
	return nil
}

type published struct {
	routingKey string
	payload    any
	traceID    string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{routingKey: routingKey, payload: payload, traceID: trace.FromContext(ctx)})
	return nil
}

func pendingEvent(id int64, routingKey string, payload string) *Event {
	return &Event{ID: id, RoutingKey: routingKey, Payload: json.RawMessage(payload), Status: StatusPending}
}

func TestProcessPendingPublishesAndMarksSent(t *testing.T) {
	store := newFakeStore(
		pendingEvent(1, "journey.task.completed", `{"user_id":3,"trace_id":"abc"}`),
		pendingEvent(2, "journey.completed", `{"user_id":3}`),
	)
	pub := &fakePublisher{}
	d := NewDispatcher(store, pub, zap.NewNop())

	if n := d.ProcessPending(context.Background()); n != 2 {
		t.Fatalf("sent = %d, want 2", n)
	}
	if len(pub.msgs) != 2 || pub.msgs[0].routingKey != "journey.task.completed" {
		t.Fatalf("published = %+v", pub.msgs)
	}
	if pub.msgs[0].traceID != "abc" {
		t.Fatalf("trace id = %q, want abc", pub.msgs[0].traceID)
	}
	if store.events[1].Status != StatusSent || store.events[2].Status != StatusSent {
		t.Fatal("events not marked sent")
	}
	if n := d.ProcessPending(context.Background()); n != 0 {
		t.Fatalf("second pass sent %d", n)
	}
}

func TestProcessPendingMarksFailedUntilMaxRetries(t *testing.T) {
	store := newFakeStore(pendingEvent(1, "journey.completed", `{}`))
	pub := &fakePublisher{err: errors.New("broker down")}
	d := NewDispatcher(store, pub, zap.NewNop()).WithMaxRetries(2).WithBreaker(nil)

	d.ProcessPending(context.Background())
	if store.events[1].Status != StatusPending || store.events[1].RetryCount != 1 {
		t.Fatalf("after first failure: %+v", store.events[1])
	}
	d.ProcessPending(context.Background())
	if store.events[1].Status != StatusFailed {
		t.Fatalf("after max retries: %+v", store.events[1])
	}
}

func TestProcessPendingStopsWhenBreakerOpen(t *testing.T) {
	store := newFakeStore(
		pendingEvent(1, "a", `{}`),
		pendingEvent(2, "b", `{}`),
		pendingEvent(3, "c", `{}`),
	)
	pub := &fakePublisher{err: errors.New("broker down")}
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour, HalfOpenMaxRequests: 1,
	})
	d := NewDispatcher(store, pub, zap.NewNop()).WithBreaker(cb)

	d.ProcessPending(context.Background())
	if len(store.failed) != 1 {
		t.Fatalf("failed marks = %v, want only the first event", store.failed)
	}
	if cb.State() != circuitbreaker.StateOpen {
		t.Fatalf("breaker state = %s", cb.State())
	}
}

func TestProcessPendingBadPayloadFails(t *testing.T) {
	store := newFakeStore(pendingEvent(1, "a", `not json`))
	d := NewDispatcher(store, &fakePublisher{}, zap.NewNop())

	if n := d.ProcessPending(context.Background()); n != 0 {
		t.Fatalf("sent = %d", n)
	}
	if len(store.failed) != 1 {
		t.Fatal("bad payload not marked failed")
	}
}

func TestProcessPendingListError(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("db down")
	d := NewDispatcher(store, &fakePublisher{}, zap.NewNop())

	if n := d.ProcessPending(context.Background()); n != 0 {
		t.Fatalf("sent = %d", n)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	store := newFakeStore(pendingEvent(1, "a", `{}`))
	d := NewDispatcher(store, &fakePublisher{}, zap.NewNop()).WithInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		n := len(store.sent)
		store.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("dispatcher never published")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
