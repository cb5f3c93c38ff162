package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ldi/taskline/internal/config"
	"github.com/ldi/taskline/internal/db"
	"github.com/ldi/taskline/pkg/models"
)

func resetGlobals() {
	dbPath = config.DefaultDBPath
	snapshotPath = config.DefaultSnapshotPath
	cfg = config.Default()
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInit(t *testing.T) {
	tmpDir := t.TempDir()
	resetGlobals()

	captureOutput(t, func() error { return runInit([]string{tmpDir}) })

	dir := filepath.Join(tmpDir, config.Dir)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Errorf("%s directory was not created", config.Dir)
	}

	content, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		t.Errorf("failed to read .gitignore: %v", err)
	}
	if string(content) != "taskline.db*\n.env\n" {
		t.Errorf(".gitignore content mismatch, got %q", string(content))
	}

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config.yaml was not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, config.DefaultDBPath)); os.IsNotExist(err) {
		t.Errorf("database file was not created")
	}
}

func TestInitKeepsExistingConfig(t *testing.T) {
	tmpDir := t.TempDir()
	resetGlobals()

	dir := filepath.Join(tmpDir, config.Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	cfgFile := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgFile, []byte("log_level: debug\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	captureOutput(t, func() error { return runInit([]string{tmpDir}) })

	content, err := os.ReadFile(cfgFile)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(content) != "log_level: debug\n" {
		t.Errorf("Expected existing config to be kept, got %q", string(content))
	}
}

func TestInitWithExistingSnapshot(t *testing.T) {
	tmpDir := t.TempDir()

	// Build a snapshot from a scratch database.
	scratch, err := db.Open(filepath.Join(t.TempDir(), "scratch.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	ctx := context.Background()
	if err := scratch.Init(ctx); err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	if err := scratch.CreateTask(ctx, &models.Task{Text: "Water plants"}); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	if err := scratch.ExportSnapshot(ctx, filepath.Join(tmpDir, config.DefaultSnapshotPath)); err != nil {
		t.Fatalf("failed to export snapshot: %v", err)
	}
	scratch.Close()

	resetGlobals()
	captureOutput(t, func() error { return runInit([]string{tmpDir}) })

	database, err := db.Open(filepath.Join(tmpDir, config.DefaultDBPath))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer database.Close()

	tasks, err := database.ListTasks(ctx)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Text != "Water plants" {
		t.Errorf("Expected imported Water plants task, got %v", tasks)
	}
}
