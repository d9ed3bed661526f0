package mqhandler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "onboarding/contracts/mq"
	"onboarding/internal/service/journey"
	"onboarding/pkg/logger"
	"onboarding/pkg/mq"
	"onboarding/pkg/util"
)

const handlerName = "journey_app_event"

// EventHandler is the engine entry point the consumer feeds.
type EventHandler interface {
	HandleEvent(ctx context.Context, evt journey.Event) (*journey.Outcome, error)
}

// AppEventHandler turns app.event.* messages into journey events.
type AppEventHandler struct {
	engine       EventHandler
	deduper      *util.Deduper
	retryCounter *util.RetryCounter
	maxRetries   int64
	logger       *zap.Logger
}

func NewAppEventHandler(
	engine EventHandler,
	deduper *util.Deduper,
	retryCounter *util.RetryCounter,
	maxRetries int64,
	logger *zap.Logger,
) *AppEventHandler {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &AppEventHandler{
		engine:       engine,
		deduper:      deduper,
		retryCounter: retryCounter,
		maxRetries:   maxRetries,
		logger:       logger,
	}
}

// Handle returns nil to ack, an mq.ErrDeadLetter wrap to park the message,
// and any other error to requeue it.
func (h *AppEventHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.AppEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal app event (non-retryable, sending to DLQ)", zap.Error(err))
		return mq.DeadLetter(err)
	}
	if p.EventType == "" || p.UserID <= 0 {
		log.Error("Invalid app event (sending to DLQ)",
			zap.String("event_id", p.EventID),
			zap.String("event_type", p.EventType),
			zap.Int("user_id", p.UserID),
		)
		return mq.DeadLetter(fmt.Errorf("invalid app event: event_type=%q user_id=%d", p.EventType, p.UserID))
	}

	log = log.With(
		zap.String("event_id", p.EventID),
		zap.String("event_type", p.EventType),
		zap.Int("user_id", p.UserID),
	)

	// Redis 去重
	if !h.deduper.AcquireOnce(ctx, handlerName, p.EventID) {
		log.Info("Duplicate app event skipped")
		return nil
	}

	evt := journey.Event{
		Type:     p.EventType,
		UserID:   p.UserID,
		Metadata: p.Metadata,
		Source:   "mq",
	}
	if p.OccurredAt != nil {
		evt.At = *p.OccurredAt
	}

	retryKey := util.FormatRetryKey(handlerName, retryID(p.EventID, raw))

	out, err := h.engine.HandleEvent(ctx, evt)
	if err == nil {
		_ = h.retryCounter.Reset(ctx, retryKey)
		log.Info("App event processed", zap.String("outcome", string(out.Status)))
		return nil
	}

	// processing failed; let a redelivery through the deduper
	h.deduper.Release(ctx, handlerName, p.EventID)

	isRetryable, errType := util.IsRetryableError(err)
	log.Error("Failed to handle app event",
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Error(err),
	)
	if !isRetryable {
		return mq.DeadLetter(err)
	}

	retryCount, cerr := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if cerr != nil {
		log.Warn("Failed to get retry count, continuing anyway", zap.Error(cerr))
		return err
	}
	if !util.ShouldRetry(retryCount, h.maxRetries, isRetryable) {
		log.Error("Max retries exceeded, sending to DLQ",
			zap.Int64("retry_count", retryCount),
			zap.Int64("max_retries", h.maxRetries),
		)
		_ = h.retryCounter.Reset(ctx, retryKey)
		return mq.DeadLetter(err)
	}
	return err
}

// retryID is the event id, or a digest of the body for events sent without one.
func retryID(eventID string, raw json.RawMessage) string {
	if eventID != "" {
		return eventID
	}
	sum := sha256.Sum256(raw)
	return "body-" + hex.EncodeToString(sum[:16])
}
