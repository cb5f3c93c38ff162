// Package app wires the interpreter pipeline together: instruction text
// goes through the oracle, the normalizer and the executor, and the task
// tree is rebuilt from the store afterwards.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ldi/taskline/internal/command"
	"github.com/ldi/taskline/internal/db"
	"github.com/ldi/taskline/internal/executor"
	"github.com/ldi/taskline/internal/oracle"
	"github.com/ldi/taskline/internal/tree"
	"github.com/ldi/taskline/pkg/models"
)

type Service struct {
	store    *db.DB
	oracle   oracle.Interpreter
	executor *executor.Executor
	logger   *slog.Logger
}

// New returns a Service. o may be nil when only structured batches are
// applied.
func New(store *db.DB, o oracle.Interpreter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		oracle:   o,
		executor: executor.New(store, logger),
		logger:   logger,
	}
}

// Result is the outcome of one applied or previewed batch.
type Result struct {
	Summary string           `json:"summary"`
	Batch   command.Batch    `json:"batch"`
	Report  *executor.Report `json:"report"`
	Tasks   []*models.Task   `json:"tasks"`
}

// ApplyCommand interprets instruction and applies the resulting batch. An
// oracle failure is logged and treated as an empty batch.
func (s *Service) ApplyCommand(ctx context.Context, instruction string, dryRun bool) (*Result, error) {
	if s.oracle == nil {
		return nil, fmt.Errorf("no oracle configured")
	}
	raw := map[string]any{}
	out, err := s.oracle.Interpret(ctx, instruction)
	if err != nil {
		s.logger.Warn("oracle failed, treating as no action", "error", err)
	} else if out != nil {
		raw = out
	}
	return s.ApplyRaw(ctx, raw, dryRun)
}

// ApplyJSON decodes a batch payload and applies it.
func (s *Service) ApplyJSON(ctx context.Context, data []byte, dryRun bool) (*Result, error) {
	raw, err := command.Parse(data)
	if err != nil {
		return nil, err
	}
	return s.ApplyRaw(ctx, raw, dryRun)
}

func (s *Service) ApplyRaw(ctx context.Context, raw map[string]any, dryRun bool) (*Result, error) {
	b := command.Normalize(raw)
	s.logger.Debug("normalized batch",
		"additions", len(b.Additions),
		"removals", len(b.Removals),
		"updates", len(b.Updates),
		"discarded", b.Discarded)

	var report *executor.Report
	var err error
	if dryRun {
		report, err = s.executor.Preview(ctx, b)
	} else {
		report, err = s.executor.Execute(ctx, b)
	}
	if err != nil {
		return nil, err
	}

	snap, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{
		Summary: report.Summary(),
		Batch:   b,
		Report:  report,
		Tasks:   snap.Roots,
	}, nil
}

// Tree rebuilds the hierarchy from the store.
func (s *Service) Tree(ctx context.Context) (*tree.Snapshot, error) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tree.Build(tasks), nil
}

// Find resolves ref as a task ID first, then as task text.
func (s *Service) Find(ctx context.Context, ref string) (*models.Task, error) {
	snap, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	if t := snap.Get(ref); t != nil {
		return t, nil
	}
	return snap.FindByText(ref), nil
}

// Shared looks up a task and its subtree by share token. It returns nil
// when no task carries the token.
func (s *Service) Shared(ctx context.Context, token string) (*models.Task, error) {
	snap, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	return snap.FindByShareToken(token), nil
}

// Share generates a share token for the task named by ref.
func (s *Service) Share(ctx context.Context, ref string) (*models.Task, string, error) {
	t, err := s.Find(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	if t == nil {
		return nil, "", fmt.Errorf("%w: %s", db.ErrNotFound, ref)
	}
	token, err := s.store.GenerateShareToken(ctx, t.ID)
	if err != nil {
		return nil, "", err
	}
	t.ShareToken = &token
	return t, token, nil
}

// Attach adds a URL attachment to the task named by ref.
func (s *Service) Attach(ctx context.Context, ref, name, url string) (*models.Attachment, error) {
	t, err := s.Find(ctx, ref)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", db.ErrNotFound, ref)
	}
	return s.store.AddAttachment(ctx, t.ID, name, url)
}

type Stats struct {
	Total     int                       `json:"total"`
	ByStatus  map[models.TaskStatus]int `json:"by_status"`
	Blocked   int                       `json:"blocked"`
	Recurring int                       `json:"recurring"`
	Overdue   int                       `json:"overdue"`
}

// Status counts tasks by status. Blocked counts open tasks whose
// dependency is not yet completed, whatever their own status.
func (s *Service) Status(ctx context.Context, now time.Time) (*Stats, error) {
	snap, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}

	st := &Stats{ByStatus: make(map[models.TaskStatus]int)}
	snap.Walk(func(t *models.Task, _ int) bool {
		st.Total++
		st.ByStatus[t.Status]++
		if !t.Completed && snap.IsBlocked(t) {
			st.Blocked++
		}
		if t.Recurrence != models.RecurrenceNone && !t.Completed {
			st.Recurring++
		}
		if !t.Completed && t.DueAt != nil && t.DueAt.Before(now) {
			st.Overdue++
		}
		return true
	})
	return st, nil
}
