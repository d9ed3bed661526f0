package mq

import "time"

const (
	RoutingKeyTaskCompleted    = "journey.task.completed"
	RoutingKeyJourneyCompleted = "journey.completed"
)

type JourneyTaskCompletedPayload struct {
	EventID     string    `json:"event_id"`
	TraceID     string    `json:"trace_id,omitempty"`
	UserID      int       `json:"user_id"`
	JourneyID   int       `json:"journey_id"`
	TaskID      int       `json:"task_id"`
	EventType   string    `json:"event_type"`
	Completed   int       `json:"completed"`
	Total       int       `json:"total"`
	Percentage  int       `json:"percentage"`
	CompletedAt time.Time `json:"completed_at"`
}

type JourneyCompletedPayload struct {
	EventID     string    `json:"event_id"`
	TraceID     string    `json:"trace_id,omitempty"`
	UserID      int       `json:"user_id"`
	JourneyID   int       `json:"journey_id"`
	JourneyName string    `json:"journey_name"`
	CompletedAt time.Time `json:"completed_at"`
}
