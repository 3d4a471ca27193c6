package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"pkt.systems/ascart/schema"
)

// Controller applies user input to widget sessions. core.Bridge satisfies it.
type Controller interface {
	ControlPresentation(id schema.WidgetID, action schema.WidgetAction) (schema.WidgetSnapshot, error)
	RelocatePresentation(id schema.WidgetID, dx, dy int) error
	ClosePresentation(ctx context.Context, id schema.WidgetID) bool
}

// Options tunes the terminal model.
type Options struct {
	Title string
	// Theme is a name accepted by ParseTheme.
	Theme string
	// QuitWhenEmpty ends the program once every opened widget is closed.
	QuitWhenEmpty bool
}

var keyActions = map[string]schema.WidgetAction{
	" ":     schema.ActionToggle,
	"p":     schema.ActionToggle,
	"right": schema.ActionNext,
	"l":     schema.ActionNext,
	"left":  schema.ActionPrev,
	"h":     schema.ActionPrev,
	"+":     schema.ActionLarger,
	"=":     schema.ActionLarger,
	"-":     schema.ActionSmaller,
	"_":     schema.ActionSmaller,
	"c":     schema.ActionToggleControls,
}

var keyMoves = map[string][2]int{
	"W": {0, -1},
	"A": {-1, 0},
	"S": {0, 1},
	"D": {1, 0},
}

type changedMsg struct{}

type screenClosedMsg struct{}

// Model renders the widgets of a Screen and routes keys to a Controller.
type Model struct {
	screen   *Screen
	ctl      Controller
	opts     Options
	styles   styles
	views    []schema.WidgetSnapshot
	focus    int
	width    int
	height   int
	err      error
	quitting bool
}

// NewModel constructs a model over screen.
func NewModel(screen *Screen, ctl Controller, opts Options) Model {
	if opts.Title == "" {
		opts.Title = "ascart"
	}
	return Model{
		screen: screen,
		ctl:    ctl,
		opts:   opts,
		styles: newStyles(opts.Theme),
		views:  screen.Views(),
		width:  80,
		height: 24,
	}
}

func (m Model) Init() tea.Cmd {
	return m.listen()
}

func (m Model) listen() tea.Cmd {
	screen := m.screen
	return func() tea.Msg {
		select {
		case <-screen.Changed():
			return changedMsg{}
		case <-screen.Done():
			return screenClosedMsg{}
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case changedMsg:
		m.views = m.screen.Views()
		m.clampFocus()
		if m.opts.QuitWhenEmpty && len(m.views) == 0 && m.screen.Opened() > 0 {
			m.quitting = true
			return m, tea.Quit
		}
		return m, m.listen()
	case screenClosedMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "esc", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "tab":
		if len(m.views) > 0 {
			m.focus = (m.focus + 1) % len(m.views)
		}
		return m, nil
	case "shift+tab":
		if len(m.views) > 0 {
			m.focus = (m.focus - 1 + len(m.views)) % len(m.views)
		}
		return m, nil
	}
	current, ok := m.focused()
	if !ok {
		return m, nil
	}
	if key == "x" {
		m.ctl.ClosePresentation(context.Background(), current.ID)
		return m, nil
	}
	if delta, ok := keyMoves[key]; ok {
		m.err = m.ctl.RelocatePresentation(current.ID, delta[0], delta[1])
		if m.err == nil {
			m.views[m.focus].OffsetX += delta[0]
			m.views[m.focus].OffsetY += delta[1]
		}
		return m, nil
	}
	if action, ok := keyActions[key]; ok {
		snapshot, err := m.ctl.ControlPresentation(current.ID, action)
		m.err = err
		if err == nil {
			m.views[m.focus] = snapshot
		}
	}
	return m, nil
}

func (m Model) focused() (schema.WidgetSnapshot, bool) {
	if m.focus < 0 || m.focus >= len(m.views) {
		return schema.WidgetSnapshot{}, false
	}
	return m.views[m.focus], true
}

func (m *Model) clampFocus() {
	if m.focus >= len(m.views) {
		m.focus = max(0, len(m.views)-1)
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.styles.title.Render(m.opts.Title))
	b.WriteString(m.styles.dim.Render(fmt.Sprintf("%d widget(s)", len(m.views))))
	b.WriteString("\n")
	if len(m.views) == 0 {
		b.WriteString(m.styles.dim.Render("waiting for a result..."))
		b.WriteString("\n")
	}
	blocks := make([]string, 0, len(m.views))
	for i, view := range m.views {
		blocks = append(blocks, m.renderWidget(view, i == m.focus))
	}
	b.WriteString(lipgloss.JoinVertical(lipgloss.Left, blocks...))
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(m.styles.err.Render(m.err.Error()))
	}
	b.WriteString("\n")
	b.WriteString(m.styles.help.Render("space play/pause  ←/→ frame  +/- size  c controls  WASD move  tab focus  x close  q quit"))
	return b.String()
}

func (m Model) renderWidget(view schema.WidgetSnapshot, focused bool) string {
	style := m.styles.frame
	if focused {
		style = m.styles.focusedFrame
	}
	body := view.Text
	if view.ControlsVisible {
		body += "\n" + m.styles.controls.Render(controlsLine(view))
	}
	return style.
		MarginLeft(max(0, view.OffsetX)).
		MarginTop(max(0, view.OffsetY)).
		Render(body)
}

func controlsLine(view schema.WidgetSnapshot) string {
	parts := make([]string, 0, 4)
	if view.Animated {
		label := "Play"
		if view.State == schema.PlaybackPlaying {
			label = "Pause"
		}
		parts = append(parts, "◀ "+label+" ▶", view.FrameLabel())
	}
	parts = append(parts, fmt.Sprintf("A- %dpx A+", view.FontSizePx), "✕")
	return strings.Join(parts, "  ")
}

// Run drives a bubbletea program over screen until the user quits, the
// screen closes or ctx is cancelled.
func Run(ctx context.Context, screen *Screen, ctl Controller, opts Options, programOpts ...tea.ProgramOption) error {
	programOpts = append([]tea.ProgramOption{tea.WithContext(ctx)}, programOpts...)
	program := tea.NewProgram(NewModel(screen, ctl, opts), programOpts...)
	_, err := program.Run()
	if err != nil && errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
