// Package command turns the loosely-typed batch produced by the language
// oracle into a canonical Batch the executor can apply.
package command

import (
	"time"

	"github.com/ldi/taskline/pkg/models"
)

// Addition creates a task. Parent and DependsOn are references by text and
// may name another addition in the same batch.
type Addition struct {
	Text       string            `json:"text"`
	Parent     string            `json:"parent,omitempty"`
	Recurrence models.Recurrence `json:"recurrence"`
	DependsOn  string            `json:"depends_on,omitempty"`
	DueAt      *time.Time        `json:"due_at,omitempty"`
}

// Removal deletes the task whose current text is Ref.
type Removal struct {
	Ref string `json:"ref"`
}

// Update patches the task whose current text is Ref. Ref only identifies
// the target; renaming goes through Text. Unset fields are left alone.
type Update struct {
	Ref        string                          `json:"ref"`
	Text       models.Field[string]            `json:"text,omitzero"`
	Status     models.Field[models.TaskStatus] `json:"status,omitzero"`
	Completed  models.Field[bool]              `json:"completed,omitzero"`
	Priority   models.Field[models.Priority]   `json:"priority,omitzero"`
	Assignee   models.Field[string]            `json:"assignee,omitzero"`
	Tags       models.Field[[]string]          `json:"tags,omitzero"`
	Notes      models.Field[string]            `json:"notes,omitzero"`
	Recurrence models.Field[models.Recurrence] `json:"recurrence,omitzero"`
	DueAt      models.Field[time.Time]         `json:"due_at,omitzero"`
	// DependsOn holds a task reference by text, or is cleared to remove
	// the current dependency.
	DependsOn models.Field[string] `json:"depends_on,omitzero"`
}

// Patch converts everything except DependsOn, which needs resolving first.
func (u Update) Patch() models.Patch {
	return models.Patch{
		Text:       u.Text,
		Status:     u.Status,
		Completed:  u.Completed,
		Priority:   u.Priority,
		Assignee:   u.Assignee,
		Tags:       u.Tags,
		Notes:      u.Notes,
		Recurrence: u.Recurrence,
		DueAt:      u.DueAt,
	}
}

type Batch struct {
	Additions []Addition `json:"additions"`
	Removals  []Removal  `json:"removals"`
	Updates   []Update   `json:"updates"`

	// Discarded counts raw entries dropped for lacking a usable reference.
	Discarded int `json:"discarded,omitempty"`
}

// Empty reports whether the batch carries no operations.
func (b Batch) Empty() bool {
	return len(b.Additions) == 0 && len(b.Removals) == 0 && len(b.Updates) == 0
}

// Len returns the number of operations in the batch.
func (b Batch) Len() int {
	return len(b.Additions) + len(b.Removals) + len(b.Updates)
}
