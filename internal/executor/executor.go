// Package executor applies a normalized command batch to the task store.
//
// Operations run strictly in sequence: top-level additions, nested
// additions, dependency links, removals, then updates. Every store call
// completes before the next is issued, and a failing operation is recorded
// in the Report without stopping the rest of the batch.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ldi/taskline/internal/command"
	"github.com/ldi/taskline/internal/recurrence"
	"github.com/ldi/taskline/internal/tree"
	"github.com/ldi/taskline/pkg/models"
)

type Store interface {
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context) ([]*models.Task, error)
	UpdateTask(ctx context.Context, id string, p models.Patch) error
	DeleteTask(ctx context.Context, id string) error
}

type Executor struct {
	store  Store
	engine *recurrence.Engine
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:  store,
		engine: recurrence.NewEngine(store, logger),
		logger: logger,
	}
}

// created is the batch-local index of additions that reached the store.
// The first addition with a given text wins.
type created struct {
	ids   map[string]string
	order []createdAddition
}

type createdAddition struct {
	addition command.Addition
	id       string
}

func (c *created) record(a command.Addition, id string) {
	if _, ok := c.ids[a.Text]; !ok {
		c.ids[a.Text] = id
	}
	c.order = append(c.order, createdAddition{addition: a, id: id})
}

// Execute applies b and returns a report of every operation. The returned
// error is non-nil only when the pre-batch snapshot cannot be read, in
// which case nothing has been written.
func (e *Executor) Execute(ctx context.Context, b command.Batch) (*Report, error) {
	report := &Report{Notices: []Notice{}, Discarded: b.Discarded}
	if b.Empty() {
		return report, nil
	}

	before, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	c := &created{ids: make(map[string]string)}

	var nested []command.Addition
	e.logger.Debug("creating top-level additions", "count", len(b.Additions))
	for _, a := range b.Additions {
		if a.Parent == "" {
			e.add(ctx, report, c, a, nil, "")
			continue
		}
		nested = append(nested, a)
	}

	e.logger.Debug("creating nested additions", "count", len(nested))
	e.addNested(ctx, report, c, before, nested)

	e.logger.Debug("linking dependencies")
	e.link(ctx, report, c, before)

	e.logger.Debug("applying removals", "count", len(b.Removals))
	for _, r := range b.Removals {
		e.remove(ctx, report, r)
	}

	e.logger.Debug("applying updates", "count", len(b.Updates))
	for _, u := range b.Updates {
		e.update(ctx, report, u)
	}

	return report, nil
}

// addNested creates additions whose parent is named by text. A parent that
// is another addition of this batch is always created first. Once no
// pending addition can be placed under a same-batch parent, the first one
// left is resolved against the pre-batch snapshot, or placed at the top
// level when that also fails.
func (e *Executor) addNested(ctx context.Context, report *Report, c *created, before *tree.Snapshot, pending []command.Addition) {
	for len(pending) > 0 {
		waiting := make(map[string]struct{}, len(pending))
		for _, a := range pending {
			waiting[a.Text] = struct{}{}
		}

		var next []command.Addition
		progress := false
		for _, a := range pending {
			if id, ok := c.ids[a.Parent]; ok {
				e.add(ctx, report, c, a, &id, "")
				progress = true
				continue
			}
			if _, ok := waiting[a.Parent]; ok && a.Parent != a.Text {
				next = append(next, a)
				continue
			}
			e.addUnderExisting(ctx, report, c, before, a)
			progress = true
		}
		pending = next

		if !progress && len(pending) > 0 {
			e.addUnderExisting(ctx, report, c, before, pending[0])
			pending = pending[1:]
		}
	}
}

func (e *Executor) addUnderExisting(ctx context.Context, report *Report, c *created, before *tree.Snapshot, a command.Addition) {
	if parent := before.FindByText(a.Parent); parent != nil {
		id := parent.ID
		e.add(ctx, report, c, a, &id, "")
		return
	}
	e.logger.Debug("parent not found, adding at top level", "text", a.Text, "parent", a.Parent)
	e.add(ctx, report, c, a, nil, fmt.Sprintf("parent %q not found; added at top level", a.Parent))
}

func (e *Executor) add(ctx context.Context, report *Report, c *created, a command.Addition, parentID *string, message string) {
	t := &models.Task{
		ParentID:   parentID,
		Text:       a.Text,
		Recurrence: a.Recurrence,
		DueAt:      a.DueAt,
	}
	if err := e.store.CreateTask(ctx, t); err != nil {
		e.logger.Warn("failed to create task", "text", a.Text, "error", err)
		report.add(Notice{Op: OpAdd, Ref: a.Text, Outcome: OutcomeFailed, Message: err.Error()})
		return
	}
	c.record(a, t.ID)
	report.add(Notice{Op: OpAdd, Ref: a.Text, TaskID: t.ID, Outcome: OutcomeApplied, Message: message})
}

// link attaches dependencies named by created additions. Unresolved and
// self-referencing dependencies are dropped without a notice.
func (e *Executor) link(ctx context.Context, report *Report, c *created, before *tree.Snapshot) {
	for _, ca := range c.order {
		ref := ca.addition.DependsOn
		if ref == "" {
			continue
		}

		depID, ok := c.ids[ref]
		if !ok {
			if dep := before.FindByText(ref); dep != nil {
				depID, ok = dep.ID, true
			}
		}
		if !ok || depID == ca.id {
			e.logger.Debug("dropping dependency", "text", ca.addition.Text, "depends_on", ref)
			continue
		}

		if err := e.store.UpdateTask(ctx, ca.id, models.Patch{DependsOnID: models.Set(depID)}); err != nil {
			e.logger.Warn("failed to link dependency", "id", ca.id, "depends_on", depID, "error", err)
			report.add(Notice{Op: OpLink, Ref: ca.addition.Text, TaskID: ca.id, Outcome: OutcomeFailed, Message: err.Error()})
		}
	}
}

func (e *Executor) remove(ctx context.Context, report *Report, r command.Removal) {
	current, err := e.snapshot(ctx)
	if err != nil {
		e.logger.Warn("failed to refresh snapshot", "error", err)
		report.add(Notice{Op: OpRemove, Ref: r.Ref, Outcome: OutcomeFailed, Message: err.Error()})
		return
	}

	target := current.FindByText(r.Ref)
	if target == nil {
		report.add(Notice{Op: OpRemove, Ref: r.Ref, Outcome: OutcomeSkipped, Message: "not found"})
		return
	}
	if err := e.store.DeleteTask(ctx, target.ID); err != nil {
		e.logger.Warn("failed to delete task", "id", target.ID, "error", err)
		report.add(Notice{Op: OpRemove, Ref: r.Ref, TaskID: target.ID, Outcome: OutcomeFailed, Message: err.Error()})
		return
	}
	report.add(Notice{Op: OpRemove, Ref: r.Ref, TaskID: target.ID, Outcome: OutcomeApplied})
}

func (e *Executor) update(ctx context.Context, report *Report, u command.Update) {
	current, err := e.snapshot(ctx)
	if err != nil {
		e.logger.Warn("failed to refresh snapshot", "error", err)
		report.add(Notice{Op: OpUpdate, Ref: u.Ref, Outcome: OutcomeFailed, Message: err.Error()})
		return
	}

	target := current.FindByText(u.Ref)
	if target == nil {
		report.add(Notice{Op: OpUpdate, Ref: u.Ref, Outcome: OutcomeSkipped, Message: "not found"})
		return
	}

	patch := u.Patch()
	if u.DependsOn.IsCleared() {
		patch.DependsOnID = models.Cleared[string]()
	} else if ref, ok := u.DependsOn.Value(); ok {
		if dep := current.FindByText(ref); dep != nil && dep.ID != target.ID {
			patch.DependsOnID = models.Set(dep.ID)
		} else {
			e.logger.Debug("dropping dependency", "text", target.Text, "depends_on", ref)
		}
	}
	if patch.Empty() {
		report.add(Notice{Op: OpUpdate, Ref: u.Ref, TaskID: target.ID, Outcome: OutcomeSkipped, Message: "nothing to change"})
		return
	}

	wasCompleted := target.Completed
	rule := target.Recurrence
	var due *time.Time
	if target.DueAt != nil {
		d := *target.DueAt
		due = &d
	}

	if err := e.store.UpdateTask(ctx, target.ID, patch); err != nil {
		e.logger.Warn("failed to update task", "id", target.ID, "error", err)
		report.add(Notice{Op: OpUpdate, Ref: u.Ref, TaskID: target.ID, Outcome: OutcomeFailed, Message: err.Error()})
		return
	}
	report.add(Notice{Op: OpUpdate, Ref: u.Ref, TaskID: target.ID, Outcome: OutcomeApplied})

	if patch.Completes() && !wasCompleted {
		e.recur(ctx, report, target.ID, rule, due)
	}
}

// recur spawns the next occurrence from the stored, post-update task using
// the rule and due date it had before the update.
func (e *Executor) recur(ctx context.Context, report *Report, id string, rule models.Recurrence, due *time.Time) {
	if rule == models.RecurrenceNone || due == nil {
		return
	}

	done, err := e.store.GetTask(ctx, id)
	if err == nil && done == nil {
		err = fmt.Errorf("task %s disappeared after update", id)
	}
	if err != nil {
		e.logger.Warn("failed to reload completed task", "id", id, "error", err)
		report.add(Notice{Op: OpRecur, Ref: id, TaskID: id, Outcome: OutcomeFailed, Message: err.Error()})
		return
	}

	next, err := e.engine.Spawn(ctx, done, rule, due)
	if err != nil {
		e.logger.Warn("failed to spawn next occurrence", "id", id, "error", err)
		report.add(Notice{Op: OpRecur, Ref: done.Text, TaskID: id, Outcome: OutcomeFailed, Message: err.Error()})
		return
	}
	if next != nil {
		report.add(Notice{
			Op:      OpRecur,
			Ref:     done.Text,
			TaskID:  next.ID,
			Outcome: OutcomeApplied,
			Message: fmt.Sprintf("next due %s", next.DueAt.Format("2006-01-02")),
		})
	}
}

func (e *Executor) snapshot(ctx context.Context) (*tree.Snapshot, error) {
	tasks, err := e.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tree.Build(tasks), nil
}
