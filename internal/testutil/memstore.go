package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"onboarding/internal/model"
	"onboarding/internal/repository"
	"onboarding/internal/service/journey"
)

// OutboxEntry is an event captured by MemStore.EnqueueEvent.
type OutboxEntry struct {
	AggregateType string
	AggregateID   int64
	RoutingKey    string
	Payload       any
}

type assignment struct {
	userID, journeyID int
	at                time.Time
}

// MemStore is an in-memory stand-in for the postgres repositories. It
// satisfies journey.Store, admin.Store and auth.UserStore.
type MemStore struct {
	mu sync.Mutex

	users       []model.User
	journeys    []model.Journey
	tasks       []model.Task
	assignments []assignment
	progress    []model.TaskProgress
	outbox      []OutboxEntry
	nextID      int
	clock       time.Time

	// InsertErr, when set, is returned by InsertCompletion.
	InsertErr error
	// EnqueueErr, when set, is returned by EnqueueEvent.
	EnqueueErr error
}

func NewMemStore() *MemStore {
	return &MemStore{nextID: 100, clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// NewDemoStore mirrors the seed data: four users and the three-task document
// journey assigned to user 3.
func NewDemoStore() *MemStore {
	s := NewMemStore()
	s.AddUser(model.User{ID: 1, Name: "admin", Password: "admin", IsAdmin: true})
	s.AddUser(model.User{ID: 2, Name: "Brian", Password: "password123"})
	s.AddUser(model.User{ID: 3, Name: "Lotte fra Kvalitet", Password: "password123"})
	s.AddUser(model.User{ID: 4, Name: "Birthe fra HR", Password: "password123"})
	id, _ := s.Create(context.Background(), "Ny dokumentansvarlig", nil, []model.Task{
		{Title: "Opret første dokument", EventType: "document_created", SortOrder: 1},
		{Title: "Send dokument til godkendelse", EventType: "document_submitted_for_approval", SortOrder: 2},
		{Title: "Godkend et dokument", EventType: "document_approved", SortOrder: 3},
	})
	_, _ = s.Assign(context.Background(), 3, id)
	return s
}

func (s *MemStore) AddUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, u)
}

func (s *MemStore) id() int {
	s.nextID++
	return s.nextID
}

func (s *MemStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

// ProgressRows returns a copy of the stored completion rows.
func (s *MemStore) ProgressRows() []model.TaskProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TaskProgress(nil), s.progress...)
}

// Outbox returns a copy of the enqueued events.
func (s *MemStore) Outbox() []OutboxEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OutboxEntry(nil), s.outbox...)
}

func (s *MemStore) ActiveForUser(_ context.Context, userID int) (*model.Journey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *assignment
	for i := range s.assignments {
		a := &s.assignments[i]
		if a.userID != userID {
			continue
		}
		if best == nil || a.at.Before(best.at) || (a.at.Equal(best.at) && a.journeyID < best.journeyID) {
			best = a
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	for _, j := range s.journeys {
		if j.ID == best.journeyID {
			j := j
			return &j, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *MemStore) TaskByEventType(_ context.Context, journeyID int, eventType string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *model.Task
	for i := range s.tasks {
		t := &s.tasks[i]
		if t.JourneyID != journeyID || t.EventType != eventType {
			continue
		}
		if best == nil || t.SortOrder < best.SortOrder || (t.SortOrder == best.SortOrder && t.ID < best.ID) {
			best = t
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	t := *best
	return &t, nil
}

func (s *MemStore) TasksWithStatus(_ context.Context, userID, journeyID int) ([]model.TaskWithStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.TaskWithStatus{}
	for _, t := range s.tasks {
		if t.JourneyID != journeyID {
			continue
		}
		done := false
		for _, p := range s.progress {
			if p.UserID == userID && p.JourneyID == journeyID && p.TaskID == t.ID {
				done = true
				break
			}
		}
		out = append(out, model.TaskWithStatus{
			ID: t.ID, Title: t.Title, EventType: t.EventType, SortOrder: t.SortOrder, Completed: done,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemStore) InsertCompletion(_ context.Context, userID, journeyID, taskID int, metadata json.RawMessage, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.InsertErr != nil {
		return false, s.InsertErr
	}
	for _, p := range s.progress {
		if p.UserID == userID && p.JourneyID == journeyID && p.TaskID == taskID {
			return false, nil
		}
	}
	if len(metadata) == 0 || string(metadata) == "null" {
		metadata = json.RawMessage(`{}`)
	}
	s.progress = append(s.progress, model.TaskProgress{
		ID: s.id(), UserID: userID, JourneyID: journeyID, TaskID: taskID,
		CompletedAt: at, Metadata: metadata,
	})
	return true, nil
}

func (s *MemStore) DeleteForUserJourney(_ context.Context, userID, journeyID int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	kept := s.progress[:0]
	for _, p := range s.progress {
		if p.UserID == userID && p.JourneyID == journeyID {
			n++
			continue
		}
		kept = append(kept, p)
	}
	s.progress = kept
	return n, nil
}

func (s *MemStore) EnqueueEvent(_ context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.EnqueueErr != nil {
		return s.EnqueueErr
	}
	s.outbox = append(s.outbox, OutboxEntry{
		AggregateType: aggregateType, AggregateID: aggregateID, RoutingKey: routingKey, Payload: payload,
	})
	return nil
}

// InTx runs fn against the store and restores the previous state if fn fails.
func (s *MemStore) InTx(_ context.Context, fn func(tx journey.Store) error) error {
	s.mu.Lock()
	progress := append([]model.TaskProgress(nil), s.progress...)
	outbox := append([]OutboxEntry(nil), s.outbox...)
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.progress = progress
		s.outbox = outbox
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemStore) Create(_ context.Context, name string, description *string, tasks []model.Task) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.id()
	s.journeys = append(s.journeys, model.Journey{ID: id, Name: name, Description: description, CreatedAt: s.tick()})
	for _, t := range tasks {
		t.ID = s.id()
		t.JourneyID = id
		s.tasks = append(s.tasks, t)
	}
	return id, nil
}

func (s *MemStore) ListWithTasks(_ context.Context) ([]model.JourneyWithTasks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.JourneyWithTasks{}
	for _, j := range s.journeys {
		jw := model.JourneyWithTasks{ID: j.ID, Name: j.Name, Description: j.Description, Tasks: []model.Task{}}
		for _, t := range s.tasks {
			if t.JourneyID == j.ID {
				jw.Tasks = append(jw.Tasks, t)
			}
		}
		sort.SliceStable(jw.Tasks, func(a, b int) bool { return jw.Tasks[a].SortOrder < jw.Tasks[b].SortOrder })
		out = append(out, jw)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *MemStore) Delete(_ context.Context, journeyID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteWhere(func(id int) bool { return id == journeyID })
	return nil
}

func (s *MemStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteWhere(func(int) bool { return true })
	return nil
}

func (s *MemStore) deleteWhere(match func(journeyID int) bool) {
	var progress []model.TaskProgress
	for _, p := range s.progress {
		if !match(p.JourneyID) {
			progress = append(progress, p)
		}
	}
	var tasks []model.Task
	for _, t := range s.tasks {
		if !match(t.JourneyID) {
			tasks = append(tasks, t)
		}
	}
	var assignments []assignment
	for _, a := range s.assignments {
		if !match(a.journeyID) {
			assignments = append(assignments, a)
		}
	}
	var journeys []model.Journey
	for _, j := range s.journeys {
		if !match(j.ID) {
			journeys = append(journeys, j)
		}
	}
	s.progress, s.tasks, s.assignments, s.journeys = progress, tasks, assignments, journeys
}

func (s *MemStore) ListNonAdmin(_ context.Context) ([]model.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.UserSummary{}
	for _, u := range s.users {
		if !u.IsAdmin {
			out = append(out, model.UserSummary{ID: u.ID, Name: u.Name})
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *MemStore) FindByName(_ context.Context, name string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.User
	for _, u := range s.users {
		if u.Name == name {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *MemStore) Assign(_ context.Context, userID, journeyID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.assignments {
		if a.userID == userID && a.journeyID == journeyID {
			return false, nil
		}
	}
	s.assignments = append(s.assignments, assignment{userID: userID, journeyID: journeyID, at: s.tick()})
	return true, nil
}

func (s *MemStore) Overview(_ context.Context) ([]model.OverviewEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.OverviewEntry{}
	for _, a := range s.assignments {
		var e model.OverviewEntry
		e.UserID, e.JourneyID = a.userID, a.journeyID
		for _, u := range s.users {
			if u.ID == a.userID {
				e.UserName = u.Name
			}
		}
		for _, j := range s.journeys {
			if j.ID == a.journeyID {
				e.JourneyName = j.Name
			}
		}
		for _, t := range s.tasks {
			if t.JourneyID != a.journeyID {
				continue
			}
			e.TotalTasks++
			for _, p := range s.progress {
				if p.UserID == a.userID && p.JourneyID == a.journeyID && p.TaskID == t.ID {
					e.CompletedTasks++
					break
				}
			}
		}
		if e.TotalTasks == 0 {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UserName != out[j].UserName {
			return out[i].UserName < out[j].UserName
		}
		return out[i].JourneyName < out[j].JourneyName
	})
	return out, nil
}

// ErrBoom is a storage failure for tests that need one.
var ErrBoom = errors.New("boom")
