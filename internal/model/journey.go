package model

import (
	"encoding/json"
	"time"
)

type Journey struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"-"`
}

type Task struct {
	ID        int    `json:"id"`
	JourneyID int    `json:"journey_id"`
	Title     string `json:"title"`
	EventType string `json:"event_type"`
	SortOrder int    `json:"sort_order"`
}

// TaskWithStatus is a task annotated with the user's completion state.
type TaskWithStatus struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	EventType string `json:"event_type"`
	SortOrder int    `json:"sort_order"`
	Completed bool   `json:"completed"`
}

// JourneyWithTasks is a journey plus its ordered tasks, as listed by admins.
type JourneyWithTasks struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Tasks       []Task  `json:"tasks"`
}

type Progress struct {
	Completed   int  `json:"completed"`
	Total       int  `json:"total"`
	Percentage  int  `json:"percentage"`
	IsCompleted bool `json:"isCompleted"`
}

// TaskInput is one task in a create-journey request.
type TaskInput struct {
	Title     string `json:"title"`
	EventType string `json:"eventType"`
}

// TaskProgress is one completion row.
type TaskProgress struct {
	ID          int             `json:"id"`
	UserID      int             `json:"user_id"`
	JourneyID   int             `json:"journey_id"`
	TaskID      int             `json:"task_id"`
	CompletedAt time.Time       `json:"completed_at"`
	Metadata    json.RawMessage `json:"metadata"`
}

// OverviewEntry is one (user, journey) row of the admin overview.
type OverviewEntry struct {
	UserID         int    `json:"user_id"`
	UserName       string `json:"user_name"`
	JourneyID      int    `json:"journey_id"`
	JourneyName    string `json:"journey_name"`
	TotalTasks     int    `json:"total_tasks"`
	CompletedTasks int    `json:"completed_tasks"`
}
