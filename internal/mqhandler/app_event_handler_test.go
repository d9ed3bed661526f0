package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"onboarding/internal/service/journey"
	"onboarding/pkg/mq"
	"onboarding/pkg/util"
)

type fakeEngine struct {
	events []journey.Event
	err    error
}

func (f *fakeEngine) HandleEvent(_ context.Context, evt journey.Event) (*journey.Outcome, error) {
	f.events = append(f.events, evt)
	if f.err != nil {
		return nil, f.err
	}
	return &journey.Outcome{Status: journey.StatusRecorded}, nil
}

func TestHandleForwardsEvent(t *testing.T) {
	engine := &fakeEngine{}
	h := NewAppEventHandler(engine, nil, nil, 3, zap.NewNop())

	raw := json.RawMessage(`{"event_id":"e-1","event_type":"document_created","user_id":3,"metadata":{"doc":7},"occurred_at":"2024-03-01T12:00:00Z"}`)
	if err := h.Handle(context.Background(), raw); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(engine.events) != 1 {
		t.Fatalf("engine calls = %d", len(engine.events))
	}
	evt := engine.events[0]
	if evt.Type != "document_created" || evt.UserID != 3 || evt.Source != "mq" {
		t.Fatalf("event = %+v", evt)
	}
	if string(evt.Metadata) != `{"doc":7}` {
		t.Fatalf("metadata = %s", evt.Metadata)
	}
	if !evt.At.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("at = %s", evt.At)
	}
}

func TestHandleDeadLettersBadMessages(t *testing.T) {
	engine := &fakeEngine{}
	h := NewAppEventHandler(engine, nil, nil, 3, zap.NewNop())

	for _, raw := range []string{
		`not json`,
		`{"event_id":"e","user_id":3}`,
		`{"event_id":"e","event_type":"x","user_id":0}`,
		`{"event_type":"x","user_id":"3"}`,
	} {
		err := h.Handle(context.Background(), json.RawMessage(raw))
		if !errors.Is(err, mq.ErrDeadLetter) {
			t.Errorf("%s: err = %v, want dead letter", raw, err)
		}
	}
	if len(engine.events) != 0 {
		t.Fatalf("engine called for invalid messages: %+v", engine.events)
	}
}

func TestHandleEngineErrors(t *testing.T) {
	raw := json.RawMessage(`{"event_id":"e-2","event_type":"x","user_id":3}`)

	t.Run("non-retryable goes to DLQ", func(t *testing.T) {
		h := NewAppEventHandler(&fakeEngine{err: &pgconn.PgError{Code: "42601"}}, nil, nil, 3, zap.NewNop())
		if err := h.Handle(context.Background(), raw); !errors.Is(err, mq.ErrDeadLetter) {
			t.Fatalf("err = %v, want dead letter", err)
		}
	})

	t.Run("retryable is requeued", func(t *testing.T) {
		cause := errors.New("connection reset by peer")
		h := NewAppEventHandler(&fakeEngine{err: cause}, nil, nil, 3, zap.NewNop())
		err := h.Handle(context.Background(), raw)
		if !errors.Is(err, cause) || errors.Is(err, mq.ErrDeadLetter) {
			t.Fatalf("err = %v, want plain retryable error", err)
		}
	})

	t.Run("retryable past max retries goes to DLQ", func(t *testing.T) {
		h := NewAppEventHandler(&fakeEngine{err: errors.New("connection reset by peer")}, nil, nil, 1, zap.NewNop())
		if err := h.Handle(context.Background(), raw); !errors.Is(err, mq.ErrDeadLetter) {
			t.Fatalf("err = %v, want dead letter", err)
		}
	})
}

func TestHandleDeadLettersAfterMaxRetries(t *testing.T) {
	cases := map[string]json.RawMessage{
		"with event id":    json.RawMessage(`{"event_id":"e-3","event_type":"document_created","user_id":3}`),
		"without event id": json.RawMessage(`{"event_type":"document_created","user_id":3}`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			cause := errors.New("connection reset by peer")
			h := NewAppEventHandler(&fakeEngine{err: cause}, nil, util.NewRetryCounter(nil, 0), 3, zap.NewNop())

			for attempt := 1; attempt <= 2; attempt++ {
				err := h.Handle(context.Background(), raw)
				if !errors.Is(err, cause) || errors.Is(err, mq.ErrDeadLetter) {
					t.Fatalf("attempt %d: err = %v, want requeue", attempt, err)
				}
			}
			if err := h.Handle(context.Background(), raw); !errors.Is(err, mq.ErrDeadLetter) {
				t.Fatalf("attempt 3: err = %v, want dead letter", err)
			}
			if err := h.Handle(context.Background(), raw); errors.Is(err, mq.ErrDeadLetter) {
				t.Fatal("counter not reset after dead-lettering")
			}
		})
	}
}

func TestHandleSuccessResetsRetries(t *testing.T) {
	engine := &fakeEngine{err: errors.New("connection reset by peer")}
	counter := util.NewRetryCounter(nil, 0)
	h := NewAppEventHandler(engine, nil, counter, 2, zap.NewNop())
	raw := json.RawMessage(`{"event_type":"document_created","user_id":3}`)

	_ = h.Handle(context.Background(), raw)
	engine.err = nil
	if err := h.Handle(context.Background(), raw); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	engine.err = errors.New("connection reset by peer")
	if err := h.Handle(context.Background(), raw); errors.Is(err, mq.ErrDeadLetter) {
		t.Fatal("retry count survived a successful delivery")
	}
}

func TestRetryIDDistinguishesBodies(t *testing.T) {
	a := retryID("", json.RawMessage(`{"event_type":"a","user_id":3}`))
	b := retryID("", json.RawMessage(`{"event_type":"b","user_id":3}`))
	if a == b {
		t.Fatal("different bodies share a retry id")
	}
	if retryID("e-1", json.RawMessage(`{}`)) != "e-1" {
		t.Fatal("event id not used as retry id")
	}
}
