package command

import (
	"testing"
	"time"

	"github.com/ldi/taskline/pkg/models"
)

func mustParse(t *testing.T, data string) map[string]any {
	t.Helper()
	raw, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Failed to parse batch: %v", err)
	}
	return raw
}

func TestParse(t *testing.T) {
	for _, input := range []string{"", "   ", "null"} {
		raw, err := Parse([]byte(input))
		if err != nil {
			t.Fatalf("Failed to parse %q: %v", input, err)
		}
		if len(raw) != 0 {
			t.Errorf("Expected empty payload for %q, got %v", input, raw)
		}
	}

	if _, err := Parse([]byte("not json")); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestNormalizeEmpty(t *testing.T) {
	b := Normalize(nil)
	if !b.Empty() {
		t.Errorf("Expected empty batch, got %d operations", b.Len())
	}
	if b.Additions == nil || b.Removals == nil || b.Updates == nil {
		t.Error("Expected non-nil operation lists")
	}
}

func TestNormalizeAdditions(t *testing.T) {
	raw := mustParse(t, `{
		"additions": [
			{"task": "  Pack bags  ", "parentTask": "Trip", "recurrence": "WEEKLY", "dependsOn": "Book hotel", "dueDate": "2024-03-01"},
			{"task": "Trip"},
			"Water plants",
			{"task": ""},
			{"recurrence": "daily"},
			{"task": "Stretch", "recurrence": "fortnightly", "dueDate": "someday"}
		]
	}`)
	b := Normalize(raw)

	if len(b.Additions) != 4 {
		t.Fatalf("Expected 4 additions, got %d", len(b.Additions))
	}
	if b.Discarded != 2 {
		t.Errorf("Expected 2 discarded entries, got %d", b.Discarded)
	}

	a := b.Additions[0]
	if a.Text != "Pack bags" {
		t.Errorf("Expected trimmed text 'Pack bags', got %q", a.Text)
	}
	if a.Parent != "Trip" || a.DependsOn != "Book hotel" {
		t.Errorf("Unexpected references: parent=%q dependsOn=%q", a.Parent, a.DependsOn)
	}
	if a.Recurrence != models.RecurrenceWeekly {
		t.Errorf("Expected weekly recurrence, got %s", a.Recurrence)
	}
	if a.DueAt == nil {
		t.Fatal("Expected due date to be parsed")
	}
	if y, m, d := a.DueAt.Date(); y != 2024 || m != time.March || d != 1 {
		t.Errorf("Expected 2024-03-01, got %v", a.DueAt)
	}

	if b.Additions[2].Text != "Water plants" {
		t.Errorf("Expected bare string addition, got %q", b.Additions[2].Text)
	}

	last := b.Additions[3]
	if last.Recurrence != models.RecurrenceNone {
		t.Errorf("Expected unknown recurrence to default to none, got %s", last.Recurrence)
	}
	if last.DueAt != nil {
		t.Errorf("Expected unparseable due date to be ignored, got %v", last.DueAt)
	}
}

func TestNormalizeRemovals(t *testing.T) {
	raw := mustParse(t, `{"removals": [{"task": "Old"}, "Older", {"task": "  "}, 42]}`)
	b := Normalize(raw)

	if len(b.Removals) != 2 {
		t.Fatalf("Expected 2 removals, got %d", len(b.Removals))
	}
	if b.Removals[0].Ref != "Old" || b.Removals[1].Ref != "Older" {
		t.Errorf("Unexpected removals: %+v", b.Removals)
	}
	if b.Discarded != 2 {
		t.Errorf("Expected 2 discarded entries, got %d", b.Discarded)
	}
}

func TestNormalizeUpdateStatusCouplesCompleted(t *testing.T) {
	raw := mustParse(t, `{"updates": [
		{"identifier": "A", "status": "Done"},
		{"identifier": "B", "status": "in_progress"},
		{"identifier": "C", "status": "bogus", "priority": "urgent"}
	]}`)
	b := Normalize(raw)
	if len(b.Updates) != 3 {
		t.Fatalf("Expected 3 updates, got %d", len(b.Updates))
	}

	cases := []struct {
		status    models.TaskStatus
		completed bool
	}{
		{models.TaskStatusDone, true},
		{models.TaskStatusInProgress, false},
		{models.TaskStatusToDo, false},
	}
	for i, c := range cases {
		u := b.Updates[i]
		status, ok := u.Status.Value()
		if !ok || status != c.status {
			t.Errorf("Update %d: expected status %q, got %q", i, c.status, status)
		}
		completed, ok := u.Completed.Value()
		if !ok || completed != c.completed {
			t.Errorf("Update %d: expected completed=%v, got %v", i, c.completed, completed)
		}
	}

	if p, _ := b.Updates[2].Priority.Value(); p != models.PriorityNone {
		t.Errorf("Expected unknown priority to default to none, got %s", p)
	}
}

func TestNormalizeUpdateCompletedFlagWins(t *testing.T) {
	b := Normalize(mustParse(t, `{"updates": [
		{"identifier": "a", "completed": true},
		{"identifier": "b", "status": "In Progress", "completed": "true"},
		{"identifier": "c", "status": "Done", "completed": false},
		{"identifier": "d", "status": "Blocked", "completed": false},
		{"identifier": "e", "completed": "maybe"}
	]}`))
	if len(b.Updates) != 5 {
		t.Fatalf("Expected 5 updates, got %d", len(b.Updates))
	}

	tests := []struct {
		ref       string
		completed bool
		status    models.TaskStatus
	}{
		{"a", true, models.TaskStatusDone},
		{"b", true, models.TaskStatusDone},
		{"c", false, models.TaskStatusToDo},
		{"d", false, models.TaskStatusBlocked},
	}
	for i, tt := range tests {
		u := b.Updates[i]
		if u.Ref != tt.ref {
			t.Fatalf("Expected update %q, got %q", tt.ref, u.Ref)
		}
		completed, ok := u.Completed.Value()
		if !ok || completed != tt.completed {
			t.Errorf("%s: expected completed=%v, got %v (set=%v)", tt.ref, tt.completed, completed, ok)
		}
		if status, ok := u.Status.Value(); !ok || status != tt.status {
			t.Errorf("%s: expected status %s, got %s", tt.ref, tt.status, status)
		}
	}

	if e := b.Updates[4]; e.Completed.Present() || e.Status.Present() {
		t.Errorf("Expected unparsable completed flag to be ignored, got %+v", e)
	}
}

func TestNormalizeUpdateAbsentVersusCleared(t *testing.T) {
	raw := mustParse(t, `{"updates": [
		{"identifier": "A", "priority": "high"},
		{"identifier": "B", "dependsOn": null, "dueDate": null, "assignee": "", "tags": [], "notes": null},
		{"identifier": "C", "dependsOn": "A", "assignee": "sam", "tags": ["x", " y ", "x"], "dueDate": "2024-01-31T09:00:00Z"}
	]}`)
	b := Normalize(raw)

	a := b.Updates[0]
	if a.DependsOn.Present() || a.DueAt.Present() || a.Assignee.Present() || a.Tags.Present() || a.Status.Present() {
		t.Error("Expected fields absent from the payload to stay unset")
	}
	if a.Text.Present() {
		t.Error("Expected identifier not to be treated as new text")
	}

	cleared := b.Updates[1]
	if !cleared.DependsOn.IsCleared() {
		t.Error("Expected null dependsOn to clear the dependency")
	}
	if !cleared.DueAt.IsCleared() {
		t.Error("Expected null dueDate to clear the due date")
	}
	if !cleared.Assignee.IsCleared() {
		t.Error("Expected empty assignee to unassign")
	}
	if !cleared.Tags.IsCleared() || !cleared.Notes.IsCleared() {
		t.Error("Expected empty tags and null notes to clear")
	}

	set := b.Updates[2]
	if ref, ok := set.DependsOn.Value(); !ok || ref != "A" {
		t.Errorf("Expected dependsOn 'A', got %q", ref)
	}
	if who, _ := set.Assignee.Value(); who != "sam" {
		t.Errorf("Expected assignee 'sam', got %q", who)
	}
	tags, _ := set.Tags.Value()
	if len(tags) != 2 || tags[0] != "x" || tags[1] != "y" {
		t.Errorf("Expected deduplicated tags [x y], got %v", tags)
	}
	due, ok := set.DueAt.Value()
	if !ok || !due.Equal(time.Date(2024, time.January, 31, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected due date %v", due)
	}
}

func TestNormalizeUpdateRename(t *testing.T) {
	raw := mustParse(t, `{"updates": [
		{"identifier": "Buy milk", "text": "Buy oat milk"},
		{"task": "Call mom", "notes": "after 6pm"},
		{"text": "orphan"}
	]}`)
	b := Normalize(raw)

	if len(b.Updates) != 2 {
		t.Fatalf("Expected 2 updates, got %d", len(b.Updates))
	}
	if b.Discarded != 1 {
		t.Errorf("Expected 1 discarded update, got %d", b.Discarded)
	}
	if text, _ := b.Updates[0].Text.Value(); text != "Buy oat milk" {
		t.Errorf("Expected new text 'Buy oat milk', got %q", text)
	}
	if b.Updates[1].Ref != "Call mom" {
		t.Errorf("Expected 'task' to serve as identifier, got %q", b.Updates[1].Ref)
	}

	patch := b.Updates[1].Patch()
	if notes, _ := patch.Notes.Value(); notes != "after 6pm" {
		t.Errorf("Expected notes to carry into the patch, got %q", notes)
	}
	if patch.Text.Present() {
		t.Error("Expected no text change in the patch")
	}
}
