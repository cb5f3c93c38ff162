package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/ldi/taskline/internal/executor"
)

var (
	appliedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("42")).
			Padding(0, 1)

	skippedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 1)

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(0, 1)

	plannedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	subTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	placeholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true).
				Padding(0, 1)
)

// ReportView renders a batch report as one box per outcome.
type ReportView struct {
	Report *executor.Report
	Width  int
	Title  string
}

func NewReportView(report *executor.Report, width int) *ReportView {
	return &ReportView{
		Report: report,
		Width:  width,
		Title:  report.Summary(),
	}
}

func (v *ReportView) View() string {
	var boxes []string

	if n := v.Report.Planned(); len(n) > 0 {
		boxes = append(boxes, v.renderBox("Planned", n, plannedStyle, "→"))
	}
	if n := v.Report.Applied(); len(n) > 0 {
		boxes = append(boxes, v.renderBox("Applied", n, appliedStyle, "✓"))
	}
	if n := v.Report.Skipped(); len(n) > 0 {
		boxes = append(boxes, v.renderBox("Skipped", n, skippedStyle, "–"))
	}
	if n := v.Report.Failed(); len(n) > 0 {
		boxes = append(boxes, v.renderBox("Failed", n, failedStyle, "✗"))
	}

	var content string
	if len(boxes) == 0 {
		content = placeholderStyle.Render("No action identified")
	} else {
		content = strings.Join(boxes, "\n")
	}

	if v.Title != "" {
		return headerStyle.Render(v.Title) + "\n" + content
	}
	return content
}

func (v *ReportView) renderBox(title string, notices []executor.Notice, style lipgloss.Style, icon string) string {
	boxWidth := v.Width

	subTitle := subTitleStyle.Foreground(style.GetForeground()).Render(title)

	// Border and padding take two columns on each side.
	innerWidth := max(boxWidth-4, 0)
	lineWidth := max(innerWidth-2, 0)

	var lines []string
	for _, n := range notices {
		wrapped := lipgloss.NewStyle().Width(lineWidth).Render(describe(n))
		for i, line := range strings.Split(wrapped, "\n") {
			if i == 0 {
				lines = append(lines, fmt.Sprintf("%s %s", icon, line))
			} else {
				lines = append(lines, fmt.Sprintf("  %s", line))
			}
		}
	}

	body := strings.Join(lines, "\n")
	return style.Width(boxWidth).Render(subTitle + "\n" + body)
}

func describe(n executor.Notice) string {
	s := fmt.Sprintf("%s %s", n.Op, n.Ref)
	if n.Message != "" {
		s += ": " + n.Message
	}
	return s
}
