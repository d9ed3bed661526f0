package mq

import (
	"encoding/json"
	"time"
)

// AppEventPayload is an application event published by the host application
// on app.event.<event_type>.
type AppEventPayload struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	UserID     int             `json:"user_id"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	OccurredAt *time.Time      `json:"occurred_at,omitempty"`
}
