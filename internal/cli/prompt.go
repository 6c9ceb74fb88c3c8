package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/release"
	csemver "github.com/matzehuels/cratestack/pkg/semver"
	"github.com/matzehuels/cratestack/pkg/workspace"
)

var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
	promptErrStyle    = lipgloss.NewStyle().Foreground(colorRed)
)

// =============================================================================
// BumpModel - Interactive bump selection
// =============================================================================

// bumpOption is one row of the bump list.
type bumpOption struct {
	bump csemver.Bump
	next string // resulting version, empty for custom
}

// BumpModel is the bubbletea model for choosing a unit's bump.
type BumpModel struct {
	Title   string
	Current *semver.Version
	Options []bumpOption
	Cursor  int

	// custom mode edits an explicit version
	custom   bool
	input    textinput.Model
	errMsg   string
	Selected *release.Choice
	Aborted  bool
}

// NewBumpModel lists every bump with the version it produces from current.
func NewBumpModel(title string, current *semver.Version, preid string) BumpModel {
	m := BumpModel{Title: title, Current: current}
	for _, b := range csemver.Bumps {
		opt := bumpOption{bump: b}
		switch b {
		case csemver.Custom:
		case csemver.Skip:
			opt.next = current.String()
		default:
			next, err := csemver.Apply(current, b, preid)
			if err != nil {
				continue
			}
			opt.next = next.String()
		}
		m.Options = append(m.Options, opt)
	}
	ti := textinput.New()
	ti.Placeholder = current.String()
	ti.Prompt = "version: "
	m.input = ti
	return m
}

func (m BumpModel) Init() tea.Cmd {
	return nil
}

func (m BumpModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.custom {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	switch key.String() {
	case "ctrl+c", "esc":
		m.Aborted = true
		return m, tea.Quit
	}

	if m.custom {
		if key.String() == "enter" {
			val := strings.TrimSpace(m.input.Value())
			if _, err := csemver.ApplyCustom(m.Current, val); err != nil {
				m.errMsg = err.Error()
				return m, nil
			}
			m.Selected = &release.Choice{Bump: csemver.Custom, Custom: val}
			return m, tea.Quit
		}
		m.errMsg = ""
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "q":
		m.Aborted = true
		return m, tea.Quit
	case "up", "k":
		if m.Cursor > 0 {
			m.Cursor--
		}
	case "down", "j":
		if m.Cursor < len(m.Options)-1 {
			m.Cursor++
		}
	case "enter":
		opt := m.Options[m.Cursor]
		if opt.bump == csemver.Custom {
			m.custom = true
			return m, m.input.Focus()
		}
		m.Selected = &release.Choice{Bump: opt.bump}
		return m, tea.Quit
	}
	return m, nil
}

func (m BumpModel) View() string {
	if m.Selected != nil || m.Aborted {
		return ""
	}
	var b strings.Builder
	b.WriteString(StyleTitle.Render(m.Title))
	b.WriteString(" " + listDimStyle.Render("(current "+m.Current.String()+")"))
	b.WriteString("\n")

	if m.custom {
		b.WriteString(m.input.View() + "\n")
		if m.errMsg != "" {
			b.WriteString(promptErrStyle.Render(m.errMsg) + "\n")
		}
		return b.String()
	}

	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ select  q quit"))
	b.WriteString("\n\n")
	for i, opt := range m.Options {
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		next := opt.next
		if opt.bump == csemver.Custom {
			next = "…"
		}
		line := fmt.Sprintf("%s%-11s %s", cursor, opt.bump, next)
		if i == m.Cursor {
			b.WriteString(listSelectedStyle.Render(line))
		} else {
			b.WriteString(listNormalStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// promptChooser asks for each unit's bump on the terminal.
type promptChooser struct{}

var _ release.BumpChooser = promptChooser{}

func (promptChooser) Choose(ctx context.Context, unit *workspace.ReleaseUnit, current *semver.Version, preid string) (release.Choice, error) {
	title := "Select a version for " + unitTitle(unit)
	result, err := tea.NewProgram(NewBumpModel(title, current, preid),
		tea.WithContext(ctx), tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		if ctx.Err() != nil {
			return release.Choice{}, ctx.Err()
		}
		return release.Choice{}, fmt.Errorf("bump prompt: %w", err)
	}
	m := result.(BumpModel)
	if m.Aborted || m.Selected == nil {
		return release.Choice{}, errors.Aborted("version selection cancelled")
	}
	return *m.Selected, nil
}

func unitTitle(u *workspace.ReleaseUnit) string {
	switch u.Kind {
	case workspace.UnitFixed:
		return "the workspace (" + strings.Join(u.Names(), ", ") + ")"
	case workspace.UnitGroup:
		return "group " + string(u.Group) + " (" + strings.Join(u.Names(), ", ") + ")"
	default:
		return strings.Join(u.Names(), ", ")
	}
}

// =============================================================================
// ConfirmModel - Yes/no confirmation
// =============================================================================

// ConfirmModel is the bubbletea model for a yes/no question.
type ConfirmModel struct {
	Title   string
	Value   bool
	Done    bool
	Aborted bool
}

func (m ConfirmModel) Init() tea.Cmd {
	return nil
}

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "esc":
		m.Aborted = true
		return m, tea.Quit
	case "enter":
		m.Done = true
		return m, tea.Quit
	case "y", "Y":
		m.Value, m.Done = true, true
		return m, tea.Quit
	case "n", "N":
		m.Value, m.Done = false, true
		return m, tea.Quit
	case "left", "right", "tab", "h", "l":
		m.Value = !m.Value
	}
	return m, nil
}

func (m ConfirmModel) View() string {
	if m.Done || m.Aborted {
		return ""
	}
	yes, no := " Yes ", " No "
	if m.Value {
		yes = listSelectedStyle.Render("[Yes]")
	} else {
		no = listSelectedStyle.Render("[No]")
	}
	return fmt.Sprintf("%s %s / %s\n", StyleTitle.Render(m.Title), yes, no)
}

// promptConfirm asks title on the terminal.
func promptConfirm(ctx context.Context, title string) (bool, error) {
	result, err := tea.NewProgram(ConfirmModel{Title: title},
		tea.WithContext(ctx), tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("confirm prompt: %w", err)
	}
	m := result.(ConfirmModel)
	if m.Aborted {
		return false, errors.Aborted("release cancelled")
	}
	return m.Value, nil
}
