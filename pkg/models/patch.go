package models

import "time"

// Patch is a partial update to a stored task. Only present fields are
// written. Clearing a nullable column stores NULL; clearing a required
// column resets it to its default.
type Patch struct {
	Text        Field[string]       `json:"text,omitzero"`
	Status      Field[TaskStatus]   `json:"status,omitzero"`
	Priority    Field[Priority]     `json:"priority,omitzero"`
	Completed   Field[bool]         `json:"completed,omitzero"`
	Assignee    Field[string]       `json:"assignee,omitzero"`
	Tags        Field[[]string]     `json:"tags,omitzero"`
	Notes       Field[string]       `json:"notes,omitzero"`
	Recurrence  Field[Recurrence]   `json:"recurrence,omitzero"`
	DueAt       Field[time.Time]    `json:"due_at,omitzero"`
	DependsOnID Field[string]       `json:"depends_on_id,omitzero"`
	Attachments Field[[]Attachment] `json:"attachments,omitzero"`
}

func (p Patch) Empty() bool {
	return !p.Text.Present() && !p.Status.Present() && !p.Priority.Present() &&
		!p.Completed.Present() && !p.Assignee.Present() && !p.Tags.Present() &&
		!p.Notes.Present() && !p.Recurrence.Present() && !p.DueAt.Present() &&
		!p.DependsOnID.Present() && !p.Attachments.Present()
}

// Completes reports whether applying the patch marks the task completed.
func (p Patch) Completes() bool {
	v, ok := p.Completed.Value()
	return ok && v
}
