// Package console implements a chat-style REPL that drives the engine
// in-process, for local development without the HTTP gateway.
package console

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"boardpilot/internal/domain"
	"boardpilot/internal/usecase"
)

// CommandService is the slice of the engine the console needs.
type CommandService interface {
	SubmitCommand(ctx context.Context, req domain.CommandRequest) (*domain.ExecutionResult, error)
}

// Deps are the collaborators injected into the console.
type Deps struct {
	Engine   CommandService
	Canvas   domain.CanvasStore
	CanvasID string
	UserID   string
	Version  string
	Logger   *slog.Logger
}

const inputHeight = 3

// nominalViewport stands in for a camera position: the console has no canvas
// view, so placement-sensitive paths target a fixed 1080p viewport at origin.
var nominalViewport = domain.Viewport{X: 0, Y: 0, Width: 1920, Height: 1080}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"})
	userStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"})
	botStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"})
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"})
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"})
)

const helpText = "**Commands**\n\n" +
	"- `/summary` describe the canvas contents\n" +
	"- `/clear` clear the transcript\n" +
	"- `/quit` exit\n\n" +
	"Anything else is sent to the engine as a canvas command."

type role int

const (
	roleUser role = iota
	roleBot
	roleError
	roleNote
)

// entry is one transcript line group: who said it, the text, and an optional
// faint metadata line (tier, elapsed, change counts).
type entry struct {
	role role
	text string
	meta string
}

// Model is the root Bubble Tea model for the console.
type Model struct {
	deps Deps

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	entries  []entry
	waiting  bool
	ready    bool
	width    int
	height   int
	quitting bool

	// gen is incremented on every submitted command; results and progress
	// notes tagged with an older gen are discarded.
	gen       uint64
	onGenBump func(gen uint64)

	mdRenderer *glamour.TermRenderer
}

// NewModel creates the console model.
func NewModel(deps Deps) Model {
	ta := textarea.New()
	ta.Placeholder = `Describe a change, e.g. "add a yellow note that says hello"`
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"})

	return Model{deps: deps, input: ta, spinner: s}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			if !m.waiting {
				return m.handleSubmit(strings.TrimSpace(m.input.Value()))
			}
			return m, nil
		}

	case resultMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.handleResult(msg)
		return m, nil

	case progressMsg:
		if msg.gen != m.gen || !m.waiting {
			return m, nil
		}
		m.addEntry(entry{role: roleNote, text: msg.note})
		return m, nil

	case summaryMsg:
		m.waiting = false
		m.input.Focus()
		if msg.err != nil {
			m.addEntry(entry{role: roleError, text: msg.err.Error()})
		} else {
			m.addEntry(entry{role: roleBot, text: "```\n" + msg.digest + "```"})
		}
		return m, nil

	case quitMsg:
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if !m.waiting {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View renders the console: title, transcript, input, and a help or
// spinner line.
func (m Model) View() string {
	if m.quitting {
		return "Bye.\n"
	}
	if !m.ready {
		return "  starting..."
	}

	title := titleStyle.Render("boardpilot") +
		mutedStyle.Render(fmt.Sprintf("  canvas %s  v%s", m.deps.CanvasID, m.deps.Version))
	divider := mutedStyle.Render(strings.Repeat("─", max(m.width, 1)))

	bottom := m.input.View()
	help := mutedStyle.Render("Enter send · /help commands · Ctrl+C quit")
	if m.waiting {
		bottom = mutedStyle.Render("> working...")
		help = m.spinner.View() + mutedStyle.Render(" waiting for the engine")
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, m.viewport.View(), divider, bottom, help)
}

func (m Model) handleSubmit(value string) (tea.Model, tea.Cmd) {
	if value == "" {
		return m, nil
	}
	m.input.Reset()

	if strings.HasPrefix(value, "/") {
		return m.handleSlash(value)
	}

	m.gen++
	if m.onGenBump != nil {
		m.onGenBump(m.gen)
	}
	m.addEntry(entry{role: roleUser, text: value})
	m.waiting = true
	m.input.Blur()

	req := domain.CommandRequest{
		Command:  value,
		CanvasID: m.deps.CanvasID,
		UserID:   m.deps.UserID,
		JobID:    usecase.NewJobID(),
		Viewport: nominalViewport,
	}
	return m, tea.Batch(submitCmd(m.deps.Engine, req, m.gen), m.spinner.Tick)
}

func (m Model) handleSlash(value string) (tea.Model, tea.Cmd) {
	switch cmd := strings.ToLower(strings.Fields(value)[0]); cmd {
	case "/quit", "/exit":
		m.quitting = true
		return m, tea.Quit
	case "/clear":
		m.entries = nil
		m.refreshViewport()
		return m, nil
	case "/summary":
		m.waiting = true
		m.input.Blur()
		return m, tea.Batch(summaryCmd(m.deps.Canvas, m.deps.CanvasID), m.spinner.Tick)
	case "/help":
		m.addEntry(entry{role: roleBot, text: helpText})
		return m, nil
	default:
		m.addEntry(entry{role: roleError, text: fmt.Sprintf("unknown command %s (try /help)", cmd)})
		return m, nil
	}
}

func (m *Model) handleResult(msg resultMsg) {
	m.waiting = false
	m.input.Focus()

	if msg.err != nil {
		text := msg.err.Error()
		if msg.res != nil && msg.res.Message != "" {
			text = msg.res.Message + "\n" + text
		}
		m.addEntry(entry{role: roleError, text: text})
		return
	}
	m.addEntry(entry{role: roleBot, text: msg.res.Message, meta: resultMeta(msg.res, msg.elapsed)})
}

func resultMeta(res *domain.ExecutionResult, elapsed time.Duration) string {
	var parts []string
	if res.ModelTier != "" {
		parts = append(parts, res.ModelTier)
	}
	parts = append(parts, elapsed.Round(time.Millisecond).String())
	if n := len(res.CreatedIDs); n > 0 {
		parts = append(parts, fmt.Sprintf("%d created", n))
	}
	if n := len(res.UpdatedIDs); n > 0 {
		parts = append(parts, fmt.Sprintf("%d updated", n))
	}
	if n := len(res.DeletedIDs); n > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted", n))
	}
	if res.ToolCalls > 0 {
		parts = append(parts, fmt.Sprintf("%d tool calls", res.ToolCalls))
	}
	return strings.Join(parts, " • ")
}

func (m *Model) addEntry(e entry) {
	m.entries = append(m.entries, e)
	m.refreshViewport()
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m *Model) transcript() string {
	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n")
		}
		switch e.role {
		case roleUser:
			b.WriteString(userStyle.Render("You") + "\n")
			b.WriteString(e.text + "\n")
		case roleBot:
			b.WriteString(botStyle.Render("boardpilot") + "\n")
			b.WriteString(m.renderMarkdown(e.text))
			if e.meta != "" {
				b.WriteString(mutedStyle.Render(e.meta) + "\n")
			}
		case roleError:
			b.WriteString(errorStyle.Render("✗ "+e.text) + "\n")
		case roleNote:
			b.WriteString(mutedStyle.Render("  "+e.text) + "\n")
		}
	}
	return b.String()
}

func (m *Model) renderMarkdown(content string) string {
	if m.mdRenderer == nil {
		width := m.width - 4
		if width < 20 {
			width = 76
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return content + "\n"
		}
		m.mdRenderer = r
	}
	rendered, err := m.mdRenderer.Render(content)
	if err != nil {
		return content + "\n"
	}
	return strings.TrimRight(rendered, "\n") + "\n"
}

func (m *Model) layout() {
	titleH, dividerH, helpH := 1, 1, 1
	contentH := m.height - titleH - dividerH - inputHeight - helpH
	if contentH < 3 {
		contentH = 3
	}

	if !m.ready {
		m.viewport = viewport.New(m.width, contentH)
		m.viewport.MouseWheelEnabled = true
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = contentH
	}
	m.input.SetWidth(m.width - 2)
	// Word wrap follows the width, so the renderer is rebuilt lazily.
	m.mdRenderer = nil
	m.refreshViewport()
}

// Runner owns the Bubble Tea program and bridges engine progress events
// into it.
type Runner struct {
	deps    Deps
	program *tea.Program
	gen     atomic.Uint64
}

// NewRunner creates a console runner.
func NewRunner(deps Deps) *Runner {
	return &Runner{deps: deps}
}

// NotifyProgress implements the engine's progress notifier. Notes for other
// canvases are ignored.
func (r *Runner) NotifyProgress(canvasID, _ string, _ domain.JobStatus, p domain.ProgressEntry) {
	if canvasID != r.deps.CanvasID || r.program == nil {
		return
	}
	r.program.Send(progressMsg{note: p.Note, gen: r.gen.Load()})
}

// Start runs the REPL and blocks until the user quits or ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	model := NewModel(r.deps)
	model.onGenBump = func(gen uint64) { r.gen.Store(gen) }

	r.program = tea.NewProgram(model, tea.WithAltScreen())

	go func() {
		<-ctx.Done()
		if r.program != nil {
			r.program.Send(quitMsg{})
		}
	}()

	_, err := r.program.Run()
	return err
}
