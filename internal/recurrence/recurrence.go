// Package recurrence spawns the next occurrence of a recurring task once
// the current one is completed.
package recurrence

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/taskline/pkg/models"
)

// Next adds one period of rule to due. It returns false for
// RecurrenceNone and unknown rules. Periods are counted on the local
// calendar: a daily task keeps its wall-clock time across DST changes, and
// months and years follow time.AddDate, so Jan 31 plus one month
// normalizes to early March.
func Next(rule models.Recurrence, due time.Time) (time.Time, bool) {
	due = due.In(time.Local)
	switch rule {
	case models.RecurrenceDaily:
		return due.AddDate(0, 0, 1), true
	case models.RecurrenceWeekly:
		return due.AddDate(0, 0, 7), true
	case models.RecurrenceMonthly:
		return due.AddDate(0, 1, 0), true
	case models.RecurrenceYearly:
		return due.AddDate(1, 0, 0), true
	}
	return time.Time{}, false
}

type Creator interface {
	CreateTask(ctx context.Context, t *models.Task) error
}

type Engine struct {
	store  Creator
	logger *slog.Logger
}

func NewEngine(store Creator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Spawn creates the occurrence following completed. rule and due are the
// values the task carried before the completing update was applied. It
// returns nil without error when there is nothing to spawn. completed
// itself is never modified.
func (e *Engine) Spawn(ctx context.Context, completed *models.Task, rule models.Recurrence, due *time.Time) (*models.Task, error) {
	if completed == nil || due == nil {
		return nil, nil
	}
	next, ok := Next(rule, *due)
	if !ok {
		return nil, nil
	}

	t := &models.Task{
		ParentID:    cloneString(completed.ParentID),
		Text:        completed.Text,
		Tags:        slices.Clone(completed.Tags),
		Priority:    completed.Priority,
		Status:      models.TaskStatusToDo,
		Completed:   false,
		Notes:       completed.Notes,
		Attachments: copyAttachments(completed.Attachments),
		Assignee:    cloneString(completed.Assignee),
		DueAt:       &next,
		Recurrence:  rule,
	}
	if err := e.store.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create next occurrence of %q: %w", completed.Text, err)
	}

	e.logger.Debug("spawned recurring task",
		"from", completed.ID,
		"id", t.ID,
		"rule", rule,
		"due", next.Format(time.RFC3339))
	return t, nil
}

func copyAttachments(in []models.Attachment) []models.Attachment {
	out := make([]models.Attachment, len(in))
	for i, a := range in {
		a.ID = uuid.New().String()
		out[i] = a
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
