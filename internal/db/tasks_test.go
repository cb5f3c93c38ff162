package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ldi/taskline/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	return db
}

func strPtr(s string) *string { return &s }

func TestTaskCRUD(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	due := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	task := &models.Task{
		Text:       "Plan vacation",
		Tags:       []string{"travel", "family"},
		Priority:   models.PriorityHigh,
		Notes:      "book early",
		Assignee:   strPtr("sam"),
		DueAt:      &due,
		Recurrence: models.RecurrenceYearly,
	}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	if len(task.ID) != 36 {
		t.Errorf("Expected ID length 36, got %d (%s)", len(task.ID), task.ID)
	}
	if task.Status != models.TaskStatusToDo {
		t.Errorf("Expected default status To Do, got %s", task.Status)
	}

	fetched, err := db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if fetched == nil {
		t.Fatalf("Task not found")
	}
	if fetched.Text != "Plan vacation" {
		t.Errorf("Expected text Plan vacation, got %s", fetched.Text)
	}
	if len(fetched.Tags) != 2 || fetched.Tags[0] != "travel" || fetched.Tags[1] != "family" {
		t.Errorf("Expected tags in insertion order, got %v", fetched.Tags)
	}
	if fetched.DueAt == nil || !fetched.DueAt.Equal(due) {
		t.Errorf("Expected due %v, got %v", due, fetched.DueAt)
	}
	if fetched.Assignee == nil || *fetched.Assignee != "sam" {
		t.Errorf("Expected assignee sam, got %v", fetched.Assignee)
	}
	if fetched.Recurrence != models.RecurrenceYearly {
		t.Errorf("Expected recurrence yearly, got %s", fetched.Recurrence)
	}

	missing, err := db.GetTask(ctx, "no-such-id")
	if err != nil {
		t.Fatalf("Expected nil error for missing task, got %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil task for missing id")
	}

	if err := db.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("Failed to delete task: %v", err)
	}
	err = db.DeleteTask(ctx, task.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestUpdateTaskPartialPatch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	dep := &models.Task{Text: "Dependency"}
	if err := db.CreateTask(ctx, dep); err != nil {
		t.Fatalf("Failed to create dependency: %v", err)
	}
	task := &models.Task{
		Text:        "Write report",
		Tags:        []string{"a", "b"},
		Notes:       "keep me",
		Assignee:    strPtr("alex"),
		DependsOnID: &dep.ID,
	}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	if err := db.UpdateTask(ctx, task.ID, models.Patch{Status: models.Set(models.TaskStatusInProgress)}); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}

	fetched, _ := db.GetTask(ctx, task.ID)
	if fetched.Status != models.TaskStatusInProgress {
		t.Errorf("Expected status In Progress, got %s", fetched.Status)
	}
	if len(fetched.Tags) != 2 || fetched.Notes != "keep me" {
		t.Errorf("Expected tags and notes untouched, got %v / %q", fetched.Tags, fetched.Notes)
	}
	if fetched.DependsOnID == nil || *fetched.DependsOnID != dep.ID {
		t.Errorf("Expected dependency untouched, got %v", fetched.DependsOnID)
	}

	patch := models.Patch{
		Assignee:    models.Set(""),
		DependsOnID: models.Cleared[string](),
		Tags:        models.Set([]string{"c"}),
	}
	if err := db.UpdateTask(ctx, task.ID, patch); err != nil {
		t.Fatalf("Failed to apply clearing patch: %v", err)
	}

	fetched, _ = db.GetTask(ctx, task.ID)
	if fetched.Assignee != nil {
		t.Errorf("Expected assignee cleared, got %v", *fetched.Assignee)
	}
	if fetched.DependsOnID != nil {
		t.Errorf("Expected dependency cleared, got %v", *fetched.DependsOnID)
	}
	if len(fetched.Tags) != 1 || fetched.Tags[0] != "c" {
		t.Errorf("Expected tags [c], got %v", fetched.Tags)
	}

	err := db.UpdateTask(ctx, task.ID, models.Patch{DependsOnID: models.Set(task.ID)})
	if err == nil {
		t.Errorf("Expected error for self dependency")
	}

	err = db.UpdateTask(ctx, "missing", models.Patch{Notes: models.Set("x")})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestListOrderingAndHierarchy(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	parent := &models.Task{Text: "Parent"}
	if err := db.CreateTask(ctx, parent); err != nil {
		t.Fatalf("Failed to create parent: %v", err)
	}
	child1 := &models.Task{Text: "Child 1", ParentID: &parent.ID}
	child2 := &models.Task{Text: "Child 2", ParentID: &parent.ID}
	for _, c := range []*models.Task{child1, child2} {
		if err := db.CreateTask(ctx, c); err != nil {
			t.Fatalf("Failed to create child: %v", err)
		}
	}
	grandchild := &models.Task{Text: "Grandchild", ParentID: &child1.ID}
	if err := db.CreateTask(ctx, grandchild); err != nil {
		t.Fatalf("Failed to create grandchild: %v", err)
	}

	all, err := db.ListTasks(ctx)
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Expected 4 tasks, got %d", len(all))
	}
	if all[0].Text != "Grandchild" || all[3].Text != "Parent" {
		t.Errorf("Expected newest first, got %s ... %s", all[0].Text, all[3].Text)
	}

	children, err := db.ListTasksByParent(ctx, parent.ID)
	if err != nil {
		t.Fatalf("Failed to list children: %v", err)
	}
	if len(children) != 2 {
		t.Errorf("Expected 2 children, got %d", len(children))
	}

	subtree, err := db.ListSubtree(ctx, parent.ID)
	if err != nil {
		t.Fatalf("Failed to list subtree: %v", err)
	}
	if len(subtree) != 3 {
		t.Errorf("Expected 3 descendants, got %d", len(subtree))
	}
}

func TestDeleteParentCascades(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	parent := &models.Task{Text: "Parent"}
	if err := db.CreateTask(ctx, parent); err != nil {
		t.Fatalf("Failed to create parent: %v", err)
	}
	child := &models.Task{Text: "Child", ParentID: &parent.ID}
	if err := db.CreateTask(ctx, child); err != nil {
		t.Fatalf("Failed to create child: %v", err)
	}
	blocked := &models.Task{Text: "Waits on child", DependsOnID: &child.ID}
	if err := db.CreateTask(ctx, blocked); err != nil {
		t.Fatalf("Failed to create dependent: %v", err)
	}

	if err := db.DeleteTask(ctx, parent.ID); err != nil {
		t.Fatalf("Failed to delete parent: %v", err)
	}

	gone, _ := db.GetTask(ctx, child.ID)
	if gone != nil {
		t.Errorf("Expected child to be deleted with its parent")
	}

	fetched, _ := db.GetTask(ctx, blocked.ID)
	if fetched == nil {
		t.Fatalf("Expected dependent task to survive")
	}
	if fetched.DependsOnID != nil {
		t.Errorf("Expected dependency on deleted task to be cleared, got %v", *fetched.DependsOnID)
	}
}

func TestShareTokenAndAttachments(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	task := &models.Task{Text: "Shared"}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	token, err := db.GenerateShareToken(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to generate share token: %v", err)
	}
	if len(token) != 32 {
		t.Errorf("Expected 32 char token, got %q", token)
	}
	fetched, _ := db.GetTask(ctx, task.ID)
	if fetched.ShareToken == nil || *fetched.ShareToken != token {
		t.Errorf("Expected stored share token %s, got %v", token, fetched.ShareToken)
	}

	if _, err := db.GenerateShareToken(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	a, err := db.AddAttachment(ctx, task.ID, "", "https://example.com/itinerary")
	if err != nil {
		t.Fatalf("Failed to add attachment: %v", err)
	}
	if a.Name != "example.com" || a.Type != models.AttachmentTypeURL {
		t.Errorf("Unexpected attachment %+v", a)
	}
	if _, err := db.AddAttachment(ctx, task.ID, "bad", "not a url"); err == nil {
		t.Errorf("Expected error for invalid url")
	}

	fetched, _ = db.GetTask(ctx, task.ID)
	if len(fetched.Attachments) != 1 || fetched.Attachments[0].ID != a.ID {
		t.Errorf("Expected one stored attachment, got %+v", fetched.Attachments)
	}
}
