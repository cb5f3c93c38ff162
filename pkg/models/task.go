package models

import (
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskStatusToDo       TaskStatus = "To Do"
	TaskStatusInProgress TaskStatus = "In Progress"
	TaskStatusBlocked    TaskStatus = "Blocked"
	TaskStatusDone       TaskStatus = "Done"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityNone   Priority = "none"
)

type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
)

// AttachmentTypeURL is currently the only attachment kind.
const AttachmentTypeURL = "url"

type Attachment struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

type Task struct {
	ID          string       `json:"id"`
	ParentID    *string      `json:"parent_id"`
	Text        string       `json:"text"`
	Tags        []string     `json:"tags"`
	Priority    Priority     `json:"priority"`
	Status      TaskStatus   `json:"status"`
	Completed   bool         `json:"completed"`
	Notes       string       `json:"notes"`
	Attachments []Attachment `json:"attachments"`
	Assignee    *string      `json:"assignee"`
	DueAt       *time.Time   `json:"due_at"`
	Recurrence  Recurrence   `json:"recurrence"`
	DependsOnID *string      `json:"depends_on_id"`
	ShareToken  *string      `json:"share_token,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	// Subtasks is materialized in memory by the tree package; the store
	// only knows about ParentID.
	Subtasks []*Task `json:"subtasks,omitempty"`
}

// ApplyDefaults fills zero-valued enum fields with their defaults.
func (t *Task) ApplyDefaults() {
	if t.Priority == "" {
		t.Priority = PriorityNone
	}
	if t.Status == "" {
		t.Status = TaskStatusToDo
	}
	if t.Recurrence == "" {
		t.Recurrence = RecurrenceNone
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Attachments == nil {
		t.Attachments = []Attachment{}
	}
}

// IsTopLevel reports whether the task has no parent.
func (t *Task) IsTopLevel() bool {
	return t.ParentID == nil || *t.ParentID == ""
}

// ParseStatus matches s case-insensitively against the known statuses.
// Underscores and hyphens are accepted in place of spaces ("in_progress").
func ParseStatus(s string) (TaskStatus, bool) {
	key := normalizeEnum(s)
	for _, st := range []TaskStatus{TaskStatusToDo, TaskStatusInProgress, TaskStatusBlocked, TaskStatusDone} {
		if normalizeEnum(string(st)) == key {
			return st, true
		}
	}
	switch key {
	case "todo", "pending", "open":
		return TaskStatusToDo, true
	case "completed", "complete", "finished":
		return TaskStatusDone, true
	}
	return TaskStatusToDo, false
}

func ParsePriority(s string) (Priority, bool) {
	switch normalizeEnum(s) {
	case "high":
		return PriorityHigh, true
	case "medium":
		return PriorityMedium, true
	case "low":
		return PriorityLow, true
	case "none":
		return PriorityNone, true
	}
	return PriorityNone, false
}

func ParseRecurrence(s string) (Recurrence, bool) {
	switch normalizeEnum(s) {
	case "none":
		return RecurrenceNone, true
	case "daily":
		return RecurrenceDaily, true
	case "weekly":
		return RecurrenceWeekly, true
	case "monthly":
		return RecurrenceMonthly, true
	case "yearly":
		return RecurrenceYearly, true
	}
	return RecurrenceNone, false
}

func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
