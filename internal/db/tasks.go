package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/taskline/pkg/models"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const taskColumns = `id, parent_id, text, tags, priority, status, completed, notes, attachments,
	assignee, due_at, recurrence, depends_on_id, share_token, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateTask inserts a new task into the database.
// If t.ID is empty, a new UUID is generated.
func (db *DB) CreateTask(ctx context.Context, t *models.Task) error {
	if err := db.createTask(ctx, db.DB, t); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) createTask(ctx context.Context, exec executor, t *models.Task) error {
	args, err := prepareInsert(t)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// prepareInsert fills generated fields on t and returns the insert arguments
// in taskColumns order.
func prepareInsert(t *models.Task) ([]any, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.ApplyDefaults()

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}

	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	attachments, err := json.Marshal(t.Attachments)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attachments: %w", err)
	}

	return []any{
		t.ID, nullable(t.ParentID), t.Text, string(tags), t.Priority, t.Status, boolInt(t.Completed),
		t.Notes, string(attachments), nullable(t.Assignee), nullableTime(t.DueAt), t.Recurrence,
		nullable(t.DependsOnID), nullable(t.ShareToken), formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	}, nil
}

// GetTask retrieves a task by its ID. It returns nil, nil when no task matches.
func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	t, err := scanTask(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListTasks returns every task, newest first.
func (db *DB) ListTasks(ctx context.Context) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC, rowid DESC`
	return db.queryTasks(ctx, query)
}

// ListTasksByParent returns the direct subtasks of parentID, newest first.
func (db *DB) ListTasksByParent(ctx context.Context, parentID string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE parent_id = ? ORDER BY created_at DESC, rowid DESC`
	return db.queryTasks(ctx, query, parentID)
}

// ListSubtree returns every descendant of rootID (not rootID itself), newest first.
func (db *DB) ListSubtree(ctx context.Context, rootID string) ([]*models.Task, error) {
	query := `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM tasks WHERE parent_id = ?
			UNION ALL
			SELECT t.id FROM tasks t JOIN subtree s ON t.parent_id = s.id
		)
		SELECT ` + taskColumns + ` FROM tasks
		WHERE id IN (SELECT id FROM subtree)
		ORDER BY created_at DESC, rowid DESC
	`
	return db.queryTasks(ctx, query, rootID)
}

// queryTasks is a helper to execute a query that returns a list of tasks.
func (db *DB) queryTasks(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tasks, nil
}

// UpdateTask applies a partial patch. Fields absent from the patch are not touched.
func (db *DB) UpdateTask(ctx context.Context, id string, p models.Patch) error {
	var sets []string
	var args []any
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if p.Text.Present() {
		v, _ := p.Text.Value()
		set("text", v)
	}
	if p.Status.Present() {
		v, ok := p.Status.Value()
		if !ok {
			v = models.TaskStatusToDo
		}
		set("status", v)
	}
	if p.Priority.Present() {
		v, ok := p.Priority.Value()
		if !ok {
			v = models.PriorityNone
		}
		set("priority", v)
	}
	if p.Completed.Present() {
		v, _ := p.Completed.Value()
		set("completed", boolInt(v))
	}
	if p.Assignee.Present() {
		v, ok := p.Assignee.Value()
		if ok && v != "" {
			set("assignee", v)
		} else {
			set("assignee", nil)
		}
	}
	if p.Tags.Present() {
		v, _ := p.Tags.Value()
		if v == nil {
			v = []string{}
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode tags: %w", err)
		}
		set("tags", string(data))
	}
	if p.Notes.Present() {
		v, _ := p.Notes.Value()
		set("notes", v)
	}
	if p.Recurrence.Present() {
		v, ok := p.Recurrence.Value()
		if !ok {
			v = models.RecurrenceNone
		}
		set("recurrence", v)
	}
	if p.DueAt.Present() {
		if v, ok := p.DueAt.Value(); ok {
			set("due_at", formatTime(v))
		} else {
			set("due_at", nil)
		}
	}
	if p.DependsOnID.Present() {
		v, ok := p.DependsOnID.Value()
		if ok && v == id {
			return fmt.Errorf("task %s cannot depend on itself", id)
		}
		if ok && v != "" {
			set("depends_on_id", v)
		} else {
			set("depends_on_id", nil)
		}
	}
	if p.Attachments.Present() {
		v, _ := p.Attachments.Value()
		if v == nil {
			v = []models.Attachment{}
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode attachments: %w", err)
		}
		set("attachments", string(data))
	}

	set("updated_at", formatTime(time.Now().UTC()))
	args = append(args, id)

	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	db.triggerChange(ctx)
	return nil
}

// DeleteTask deletes a task by its ID. Subtasks are deleted with it and
// dependencies on any deleted task are cleared by the schema.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	query := `DELETE FROM tasks WHERE id = ?`
	res, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	db.triggerChange(ctx)
	return nil
}

// GenerateShareToken assigns a fresh share token to the task and returns it.
// Any previous token stops resolving.
func (db *DB) GenerateShareToken(ctx context.Context, id string) (string, error) {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")

	query := `UPDATE tasks SET share_token = ?, updated_at = ? WHERE id = ? RETURNING share_token`
	var stored string
	err := db.QueryRowContext(ctx, query, token, formatTime(time.Now().UTC()), id).Scan(&stored)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate share token: %w", err)
	}

	db.triggerChange(ctx)
	return stored, nil
}

// AddAttachment appends a URL attachment to the task's attachment list.
func (db *DB) AddAttachment(ctx context.Context, taskID, name, rawURL string) (*models.Attachment, error) {
	u, err := url.ParseRequestURI(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid attachment url: %q", rawURL)
	}

	t, err := db.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}

	if strings.TrimSpace(name) == "" {
		name = u.Host
	}
	a := models.Attachment{
		ID:        uuid.New().String(),
		Name:      name,
		Type:      models.AttachmentTypeURL,
		Value:     u.String(),
		CreatedAt: time.Now().UTC(),
	}

	attachments := append(append([]models.Attachment{}, t.Attachments...), a)
	if err := db.UpdateTask(ctx, taskID, models.Patch{Attachments: models.Set(attachments)}); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanTask(row rowScanner) (*models.Task, error) {
	t := &models.Task{}
	var parentID, assignee, dueAt, dependsOnID, shareToken sql.NullString
	var tags, attachments, createdAt, updatedAt string
	var completed int

	err := row.Scan(
		&t.ID, &parentID, &t.Text, &tags, &t.Priority, &t.Status, &completed, &t.Notes, &attachments,
		&assignee, &dueAt, &t.Recurrence, &dependsOnID, &shareToken, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Completed = completed == 1
	t.ParentID = stringPtr(parentID)
	t.Assignee = stringPtr(assignee)
	t.DependsOnID = stringPtr(dependsOnID)
	t.ShareToken = stringPtr(shareToken)

	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags for task %s: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(attachments), &t.Attachments); err != nil {
		return nil, fmt.Errorf("failed to decode attachments for task %s: %w", t.ID, err)
	}

	if dueAt.Valid {
		due, err := time.Parse(timeLayout, dueAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse due date for task %s: %w", t.ID, err)
		}
		t.DueAt = &due
	}
	if t.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at for task %s: %w", t.ID, err)
	}
	if t.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at for task %s: %w", t.ID, err)
	}

	t.ApplyDefaults()
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
