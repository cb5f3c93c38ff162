package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)

// PromptModel reads one line of free text, such as an instruction for apply.
type PromptModel struct {
	label     string
	value     []rune
	submitted bool
	quitting  bool
}

func NewPromptModel(label string) PromptModel {
	return PromptModel{label: label}
}

func (m PromptModel) Init() tea.Cmd {
	return nil
}

func (m PromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyEnter:
		m.submitted = true
		return m, tea.Quit
	case tea.KeyBackspace:
		if len(m.value) > 0 {
			m.value = m.value[:len(m.value)-1]
		}
	case tea.KeySpace:
		m.value = append(m.value, ' ')
	case tea.KeyRunes:
		m.value = append(m.value, key.Runes...)
	}
	return m, nil
}

func (m PromptModel) View() string {
	if m.quitting || m.submitted {
		return ""
	}
	return promptStyle.Render(m.label) + " " + string(m.value) + "█\n\n(enter to submit, esc to cancel)\n"
}

// Value returns the submitted text, or "" when the prompt was cancelled.
func (m PromptModel) Value() string {
	if !m.submitted {
		return ""
	}
	return strings.TrimSpace(string(m.value))
}

func RunPrompt(label string) (string, error) {
	p := tea.NewProgram(NewPromptModel(label))
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}
	return finalModel.(PromptModel).Value(), nil
}
