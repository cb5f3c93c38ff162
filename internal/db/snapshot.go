package db

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ldi/taskline/pkg/models"
)

const snapshotVersion = 1

type snapshotMeta struct {
	RecordType string    `json:"record_type"`
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	TaskCount  int       `json:"task_count"`
}

type snapshotTask struct {
	RecordType string `json:"record_type"`
	*models.Task
}

// EnableAutoSnapshot sets up a hook that automatically exports a snapshot
// to the given path after every successful write operation.
func (db *DB) EnableAutoSnapshot(path string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	db.SetOnChange(func(ctx context.Context) {
		// A failed export is logged; it never fails the write that triggered it.
		if err := db.ExportSnapshot(ctx, path); err != nil {
			logger.Warn("failed to export snapshot", "path", path, "error", err)
		}
	})
}

// ExportSnapshot writes every task as one JSON line, parents before their
// subtasks, to the given path atomically using a temporary file.
func (db *DB) ExportSnapshot(ctx context.Context, path string) error {
	tasks, err := db.queryTasks(ctx, `
		WITH RECURSIVE depth(id, level) AS (
			SELECT id, 0 FROM tasks WHERE parent_id IS NULL
			UNION ALL
			SELECT t.id, d.level + 1 FROM tasks t JOIN depth d ON t.parent_id = d.id
		)
		SELECT `+taskColumns+` FROM tasks
		JOIN depth USING (id)
		ORDER BY depth.level, tasks.created_at, tasks.rowid
	`)
	if err != nil {
		return fmt.Errorf("failed to query snapshot tasks: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "snapshot-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempFile.Name())
		}
	}()

	w := bufio.NewWriter(tempFile)
	enc := json.NewEncoder(w)
	meta := snapshotMeta{
		RecordType: "meta",
		Version:    snapshotVersion,
		ExportedAt: time.Now().UTC(),
		TaskCount:  len(tasks),
	}
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("failed to write snapshot meta: %w", err)
	}
	for _, t := range tasks {
		if err := enc.Encode(snapshotTask{RecordType: "task", Task: t}); err != nil {
			return fmt.Errorf("failed to write snapshot line: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	filename := tempFile.Name()
	tempFile = nil // Prevent defer from removing it

	if err := os.Rename(filename, path); err != nil {
		os.Remove(filename)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// ImportSnapshot reads a JSONL snapshot and upserts its tasks by ID in a
// single transaction. Foreign keys are checked at commit so line order
// does not matter.
func (db *DB) ImportSnapshot(ctx context.Context, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "PRAGMA defer_foreign_keys = ON"); err != nil {
		return 0, fmt.Errorf("failed to defer foreign keys: %w", err)
	}

	imported := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var base struct {
			RecordType string `json:"record_type"`
		}
		if err := json.Unmarshal(line, &base); err != nil {
			return 0, fmt.Errorf("failed to unmarshal base record: %w", err)
		}

		switch base.RecordType {
		case "meta":
			var m snapshotMeta
			if err := json.Unmarshal(line, &m); err != nil {
				return 0, fmt.Errorf("failed to unmarshal meta record: %w", err)
			}
			if m.Version > snapshotVersion {
				return 0, fmt.Errorf("unsupported snapshot version %d", m.Version)
			}
		case "task":
			var rec snapshotTask
			if err := json.Unmarshal(line, &rec); err != nil {
				return 0, fmt.Errorf("failed to unmarshal task: %w", err)
			}
			if rec.Task == nil || rec.Task.ID == "" {
				return 0, fmt.Errorf("snapshot task record without id")
			}
			if err := upsertTask(ctx, tx, rec.Task); err != nil {
				return 0, fmt.Errorf("failed to sync task %s: %w", rec.Task.Text, err)
			}
			imported++
		}
	}

	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scanner error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit snapshot import: %w", err)
	}

	db.triggerChange(ctx)
	return imported, nil
}

func upsertTask(ctx context.Context, exec executor, t *models.Task) error {
	args, err := prepareInsert(t)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id, text = excluded.text, tags = excluded.tags,
			priority = excluded.priority, status = excluded.status, completed = excluded.completed,
			notes = excluded.notes, attachments = excluded.attachments, assignee = excluded.assignee,
			due_at = excluded.due_at, recurrence = excluded.recurrence,
			depends_on_id = excluded.depends_on_id, share_token = excluded.share_token,
			created_at = excluded.created_at, updated_at = excluded.updated_at
	`
	_, err = exec.ExecContext(ctx, query, args...)
	return err
}
