package chatcmder

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"go.uber.org/zap"

	"github.com/stevejgoodman/hotmesscoach/pkg/conversation"
)

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	coachStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	timeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	chartStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	userBodyIndent = lipgloss.NewStyle().PaddingLeft(2)
)

// resultMsg reports the end of a submitted line.
type resultMsg struct {
	notice string
	err    error
}

type model struct {
	ctx     context.Context
	session *session
	logger  *zap.Logger

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer
	style    string

	width  int
	height int
	ready  bool

	// busy disables the input from the moment a line is dispatched until
	// its result arrives, so sends never overlap.
	busy     bool
	notice   string
	failed   bool
	showHelp bool
}

func newModel(ctx context.Context, s *session, style string, logger *zap.Logger) model {
	ti := textinput.New()
	ti.Placeholder = "Share what's on your mind... (/help for commands)"
	ti.Prompt = "› "
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = coachStyle

	return model{
		ctx:     ctx,
		session: s,
		logger:  logger,
		input:   ti,
		spinner: sp,
		style:   style,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = msg.Width - 4
		vpHeight := msg.Height - 3
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width, m.viewport.Height = msg.Width, vpHeight
		}
		m.renderer = m.newRenderer(msg.Width)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			line := m.input.Value()
			m.input.Reset()
			m.busy = true
			m.notice, m.failed = "", false
			return m, m.submit(line)
		}
		if m.busy {
			// Only scrolling while a message is in flight.
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case resultMsg:
		m.busy = false
		if errors.Is(msg.err, errQuit) {
			return m, tea.Quit
		}
		m.showHelp = msg.notice == helpText
		switch {
		case msg.err != nil:
			m.notice, m.failed = msg.err.Error(), true
		case !m.showHelp:
			m.notice = msg.notice
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.busy {
			// The user message is appended as soon as the send starts.
			m.refresh()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m model) submit(line string) tea.Cmd {
	return func() tea.Msg {
		notice, err := m.session.handle(m.ctx, line)
		return resultMsg{notice: notice, err: err}
	}
}

func (m model) newRenderer(width int) *glamour.TermRenderer {
	wrap := width - 4
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.style),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		m.logger.Warn("could not create markdown renderer", zap.Error(err))
		return nil
	}
	return r
}

// refresh re-renders the history into the viewport and keeps it scrolled to
// the newest message.
func (m *model) refresh() {
	if !m.ready {
		return
	}

	var b strings.Builder
	for _, msg := range m.session.manager.Messages() {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	if m.showHelp {
		b.WriteString(statusStyle.Render(helpText))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m model) renderMessage(msg conversation.Message) string {
	stamp := timeStyle.Render(msg.CreatedAt.Format("15:04"))

	if msg.Role == conversation.RoleUser {
		return userStyle.Render("You") + " " + stamp + "\n" +
			userBodyIndent.Width(m.width-2).Render(msg.Content) + "\n"
	}

	body := msg.Content
	if m.renderer != nil {
		if out, err := m.renderer.Render(msg.Content); err == nil {
			body = strings.TrimRight(out, "\n")
		}
	}
	if msg.HasImage() {
		body += "\n  " + chartStyle.Render(describeImage(msg))
	}
	return coachStyle.Render("Coach") + " " + stamp + "\n" + body + "\n"
}

func (m model) View() string {
	if !m.ready {
		return "\n  starting..."
	}

	var status string
	switch {
	case m.busy:
		status = m.spinner.View() + " thinking..."
	case m.notice != "" && m.failed:
		status = errorStyle.Render(m.notice)
	case m.notice != "":
		status = statusStyle.Render(m.notice)
	}
	if p := m.session.manager.Pending(); p != nil {
		if status != "" {
			status += "  "
		}
		status += statusStyle.Render(describeAttachment(p))
	}
	status = ansi.Truncate(strings.ReplaceAll(status, "\n", " "), m.width, "…")

	return m.viewport.View() + "\n" + status + "\n" + m.input.View()
}
