package tree

import (
	"testing"

	"github.com/ldi/taskline/pkg/models"
)

func ptr(s string) *string { return &s }

func sample() []*models.Task {
	// Store order: newest first.
	return []*models.Task{
		{ID: "g1", Text: "Pack bags", ParentID: ptr("c1")},
		{ID: "r2", Text: "Pack bags"},
		{ID: "c2", Text: "Book hotel", ParentID: ptr("r1"), DependsOnID: ptr("c1")},
		{ID: "c1", Text: "Book flights", ParentID: ptr("r1")},
		{ID: "r1", Text: "Plan vacation", ShareToken: ptr("tok")},
		{ID: "o1", Text: "Orphan", ParentID: ptr("gone")},
	}
}

func TestBuild(t *testing.T) {
	s := Build(sample())

	if s.Len() != 6 {
		t.Fatalf("Expected 6 tasks, got %d", s.Len())
	}
	if len(s.Roots) != 3 {
		t.Fatalf("Expected 3 roots (including orphan), got %d", len(s.Roots))
	}
	if s.Roots[0].ID != "r2" || s.Roots[1].ID != "r1" || s.Roots[2].ID != "o1" {
		t.Errorf("Expected roots in store order, got %s %s %s", s.Roots[0].ID, s.Roots[1].ID, s.Roots[2].ID)
	}

	r1 := s.Get("r1")
	if len(r1.Subtasks) != 2 || r1.Subtasks[0].ID != "c2" {
		t.Errorf("Expected r1 children [c2 c1], got %v", r1.Subtasks)
	}
	if len(s.Get("c1").Subtasks) != 1 {
		t.Errorf("Expected grandchild under c1")
	}
}

func TestBuildDoesNotMutateInput(t *testing.T) {
	in := sample()
	Build(in)
	for _, task := range in {
		if task.Subtasks != nil {
			t.Errorf("Expected input task %s to be untouched", task.ID)
		}
	}
}

func TestFindByText(t *testing.T) {
	s := Build(sample())

	// r2 is a root listed before r1, so its "Pack bags" wins over the
	// nested one under r1 > c1.
	got := s.FindByText("Pack bags")
	if got == nil || got.ID != "r2" {
		t.Errorf("Expected first depth-first match r2, got %v", got)
	}

	nested := s.FindByText("Book flights")
	if nested == nil || nested.ID != "c1" {
		t.Errorf("Expected nested match c1, got %v", nested)
	}

	if s.FindByText("book flights") != nil {
		t.Errorf("Expected exact, case-sensitive matching")
	}
	if s.FindByText("No such task") != nil {
		t.Errorf("Expected nil for unknown text")
	}
}

func TestFindByTextIsStable(t *testing.T) {
	s := Build(sample())
	first := s.FindByText("Book hotel")
	second := s.FindByText("Book hotel")
	if first == nil || first != second {
		t.Errorf("Expected repeated resolution to return the same task")
	}
}

func TestFindByShareToken(t *testing.T) {
	s := Build(sample())

	got := s.FindByShareToken("tok")
	if got == nil || got.ID != "r1" {
		t.Fatalf("Expected r1 for token, got %v", got)
	}
	if len(got.Subtasks) != 2 {
		t.Errorf("Expected shared task to carry its subtree")
	}
	if s.FindByShareToken("nope") != nil || s.FindByShareToken("") != nil {
		t.Errorf("Expected nil for unknown or empty token")
	}
}

func TestIsBlocked(t *testing.T) {
	tasks := sample()
	s := Build(tasks)

	if !s.IsBlocked(s.Get("c2")) {
		t.Errorf("Expected c2 blocked by incomplete c1")
	}
	if s.IsBlocked(s.Get("c1")) {
		t.Errorf("Expected c1 not blocked")
	}

	tasks[3].Completed = true
	s = Build(tasks)
	if s.IsBlocked(s.Get("c2")) {
		t.Errorf("Expected c2 unblocked once c1 is completed")
	}
}
