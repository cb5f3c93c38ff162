package executor

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/taskline/internal/command"
	"github.com/ldi/taskline/internal/recurrence"
	"github.com/ldi/taskline/pkg/models"
)

// Preview runs b against an in-memory copy of the current store and
// reports what Execute would do, without writing anything. Operations that
// would run are reported as planned; skips keep their reason.
func (e *Executor) Preview(ctx context.Context, b command.Batch) (*Report, error) {
	if b.Empty() {
		return &Report{Notices: []Notice{}, Discarded: b.Discarded}, nil
	}

	tasks, err := e.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	sandbox := newDryStore(tasks)

	dry := &Executor{
		store:  sandbox,
		engine: recurrence.NewEngine(sandbox, e.logger),
		logger: e.logger,
	}

	report, err := dry.Execute(ctx, b)
	if err != nil {
		return nil, err
	}
	for i, n := range report.Notices {
		if n.Outcome == OutcomeApplied {
			report.Notices[i].Outcome = OutcomePlanned
		}
		if sandbox.created[n.TaskID] {
			report.Notices[i].TaskID = ""
		}
	}
	return report, nil
}

// dryStore mirrors the SQLite store's semantics on a slice: newest first,
// parent delete cascades, dependency references to deleted tasks are
// cleared. IDs it hands out are remembered so they never leak into a
// preview report.
type dryStore struct {
	tasks   []*models.Task
	created map[string]bool
}

func newDryStore(tasks []*models.Task) *dryStore {
	s := &dryStore{created: make(map[string]bool)}
	for _, t := range tasks {
		c := *t
		c.Subtasks = nil
		s.tasks = append(s.tasks, &c)
	}
	return s
}

func (s *dryStore) CreateTask(ctx context.Context, t *models.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.ApplyDefaults()
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	c := *t
	s.tasks = append([]*models.Task{&c}, s.tasks...)
	s.created[t.ID] = true
	return nil
}

func (s *dryStore) find(id string) *models.Task {
	for _, t := range s.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *dryStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	t := s.find(id)
	if t == nil {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (s *dryStore) ListTasks(ctx context.Context) ([]*models.Task, error) {
	out := make([]*models.Task, len(s.tasks))
	for i, t := range s.tasks {
		c := *t
		out[i] = &c
	}
	return out, nil
}

func (s *dryStore) UpdateTask(ctx context.Context, id string, p models.Patch) error {
	t := s.find(id)
	if t == nil {
		return fmt.Errorf("task %s not found", id)
	}
	applyPatch(t, p)
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *dryStore) DeleteTask(ctx context.Context, id string) error {
	if s.find(id) == nil {
		return fmt.Errorf("task %s not found", id)
	}

	gone := map[string]bool{id: true}
	for grew := true; grew; {
		grew = false
		for _, t := range s.tasks {
			if !gone[t.ID] && t.ParentID != nil && gone[*t.ParentID] {
				gone[t.ID] = true
				grew = true
			}
		}
	}

	s.tasks = slices.DeleteFunc(s.tasks, func(t *models.Task) bool { return gone[t.ID] })
	for _, t := range s.tasks {
		if t.DependsOnID != nil && gone[*t.DependsOnID] {
			t.DependsOnID = nil
		}
	}
	return nil
}

// applyPatch writes the present fields of p onto t the way UpdateTask
// writes them to the tasks table.
func applyPatch(t *models.Task, p models.Patch) {
	if p.Text.Present() {
		t.Text, _ = p.Text.Value()
	}
	if p.Status.Present() {
		t.Status, _ = p.Status.Value()
	}
	if p.Priority.Present() {
		t.Priority, _ = p.Priority.Value()
	}
	if p.Completed.Present() {
		t.Completed, _ = p.Completed.Value()
	}
	if p.Assignee.Present() {
		t.Assignee = optional(p.Assignee)
	}
	if p.Tags.Present() {
		t.Tags, _ = p.Tags.Value()
	}
	if p.Notes.Present() {
		t.Notes, _ = p.Notes.Value()
	}
	if p.Recurrence.Present() {
		t.Recurrence, _ = p.Recurrence.Value()
	}
	if p.DueAt.Present() {
		if v, ok := p.DueAt.Value(); ok {
			t.DueAt = &v
		} else {
			t.DueAt = nil
		}
	}
	if p.DependsOnID.Present() {
		t.DependsOnID = optional(p.DependsOnID)
	}
	if p.Attachments.Present() {
		t.Attachments, _ = p.Attachments.Value()
	}
	t.ApplyDefaults()
}

func optional(f models.Field[string]) *string {
	if v, ok := f.Value(); ok && v != "" {
		return &v
	}
	return nil
}
