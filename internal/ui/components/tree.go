package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/ldi/taskline/internal/tree"
	"github.com/ldi/taskline/pkg/models"
)

var (
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Strikethrough(true)
	blockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	overdueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	metaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	priorityStyles = map[models.Priority]lipgloss.Style{
		models.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		models.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.PriorityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	}
)

// TreeView renders a task snapshot as an indented checklist.
type TreeView struct {
	Snapshot *tree.Snapshot
	Now      time.Time
	ShowIDs  bool
}

func NewTreeView(s *tree.Snapshot) *TreeView {
	return &TreeView{Snapshot: s, Now: time.Now()}
}

func (v *TreeView) View() string {
	if v.Snapshot == nil || v.Snapshot.Len() == 0 {
		return placeholderStyle.Render("No tasks yet")
	}

	var sb strings.Builder
	v.Snapshot.Walk(func(t *models.Task, depth int) bool {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(v.line(t))
		sb.WriteString("\n")
		return true
	})
	return strings.TrimRight(sb.String(), "\n")
}

func (v *TreeView) line(t *models.Task) string {
	box := "[ ]"
	text := t.Text
	switch {
	case t.Completed:
		box = "[x]"
		text = doneStyle.Render(text)
	case v.Snapshot.IsBlocked(t):
		box = "[!]"
		text = blockedStyle.Render(text)
	case t.Status == models.TaskStatusInProgress:
		box = "[~]"
	}

	parts := []string{box, text}
	if style, ok := priorityStyles[t.Priority]; ok {
		parts = append(parts, style.Render(string(t.Priority)))
	}

	var meta []string
	if t.Assignee != nil {
		meta = append(meta, "@"+*t.Assignee)
	}
	if len(t.Tags) > 0 {
		meta = append(meta, "#"+strings.Join(t.Tags, " #"))
	}
	if t.Recurrence != models.RecurrenceNone && t.Recurrence != "" {
		meta = append(meta, "↻ "+string(t.Recurrence))
	}
	if len(meta) > 0 {
		parts = append(parts, metaStyle.Render(strings.Join(meta, " ")))
	}

	if t.DueAt != nil {
		due := "due " + humanize.RelTime(*t.DueAt, v.Now, "ago", "from now")
		if !t.Completed && t.DueAt.Before(v.Now) {
			due = overdueStyle.Render(due)
		} else {
			due = metaStyle.Render(due)
		}
		parts = append(parts, due)
	}
	if v.ShowIDs {
		parts = append(parts, metaStyle.Render(fmt.Sprintf("(%s)", t.ID)))
	}
	return strings.Join(parts, " ")
}
