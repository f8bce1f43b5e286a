// Package tui is the interactive terminal front end: a conversation pane on
// the left, live agent activity on the right, and a single input line that
// doubles as the review-decision prompt while a turn is suspended.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"orchat/internal/api"
	"orchat/internal/applog"
	"orchat/internal/turn"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

type Options struct {
	Client     *api.Client
	Controller *turn.Controller
	Logger     *applog.Logger

	// SpeakTo, when set, renders each completed answer to audio and writes
	// it to this file.
	SpeakTo string
}

// Run drives the interactive session until the user quits.
func Run(ctx context.Context, in io.Reader, out io.Writer, opts Options) error {
	if opts.Client == nil || opts.Controller == nil {
		return errors.New("tui requires a client and a controller")
	}
	if f, ok := out.(*os.File); ok {
		if !term.IsTerminal(int(f.Fd())) {
			return fmt.Errorf("stdout is not a TTY")
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := newModel(ctx, opts)
	prog := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	_, err := prog.Run()
	return err
}

// entry is one finished conversation item. The in-flight turn renders from
// the live snapshot instead.
type entry struct {
	Role     string
	Content  string
	Thoughts string
}

type model struct {
	ctx        context.Context
	client     *api.Client
	controller *turn.Controller
	log        *applog.Logger
	speakTo    string

	width  int
	height int

	input    textinput.Model
	viewport viewport.Model

	history []entry
	loading bool

	phase    turn.Phase
	snapshot turn.Snapshot
	question string

	showThoughts  bool
	stickToBottom bool
	spinnerFrame  int
	notice        string
	fatal         error
}

type historyLoadedMsg struct {
	Messages []turn.ReplayedMessage
	Err      error
}

type turnUpdateMsg struct {
	Update turn.Update
}

type tickMsg struct{}

type spokenMsg struct {
	Err error
}

func newModel(ctx context.Context, opts Options) model {
	inp := textinput.New()
	inp.Placeholder = "Ask something…"
	inp.Prompt = "› "
	inp.CharLimit = 0
	inp.Focus()

	vp := viewport.New(0, 0)
	vp.SetContent("")

	return model{
		ctx:           ctx,
		client:        opts.Client,
		controller:    opts.Controller,
		log:           opts.Logger,
		speakTo:       strings.TrimSpace(opts.SpeakTo),
		input:         inp,
		viewport:      vp,
		loading:       true,
		phase:         turn.PhaseIdle,
		stickToBottom: true,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		loadHistoryCmd(m.ctx, m.client, m.controller.ThreadID()),
		waitUpdateCmd(m.controller.Updates()),
		tickCmd(),
	)
}

func loadHistoryCmd(ctx context.Context, client *api.Client, threadID string) tea.Cmd {
	return func() tea.Msg {
		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		msgs, err := client.History(reqCtx, threadID)
		return historyLoadedMsg{Messages: turn.ReplayHistory(msgs), Err: err}
	}
}

func waitUpdateCmd(ch <-chan turn.Update) tea.Cmd {
	return func() tea.Msg {
		return turnUpdateMsg{Update: <-ch}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

func speakCmd(ctx context.Context, client *api.Client, text, path string) tea.Cmd {
	return func() tea.Msg {
		reqCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
		audio, err := client.Speak(reqCtx, text)
		if err == nil {
			err = os.WriteFile(path, audio, 0o644)
		}
		return spokenMsg{Err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.rerender()
		return m, nil

	case historyLoadedMsg:
		m.loading = false
		if msg.Err != nil {
			// An unreachable history endpoint is not fatal; the session
			// simply starts empty.
			m.notice = "history unavailable: " + msg.Err.Error()
		}
		m.history = m.history[:0]
		for _, rm := range msg.Messages {
			m.history = append(m.history, entry{Role: rm.Role, Content: rm.Content, Thoughts: rm.Thoughts})
		}
		m.rerender()
		return m, nil

	case turnUpdateMsg:
		cmd := m.applyUpdate(msg.Update)
		m.rerender()
		return m, tea.Batch(waitUpdateCmd(m.controller.Updates()), cmd)

	case tickMsg:
		if m.busy() {
			m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
			m.rerender()
		}
		return m, tickCmd()

	case spokenMsg:
		if msg.Err != nil {
			m.notice = "speak failed: " + msg.Err.Error()
			m.rerender()
		}
		return m, nil

	case tea.KeyMsg:
		handled, cmd := m.handleKey(msg)
		if handled {
			return m, cmd
		}
		var inputCmd tea.Cmd
		m.input, inputCmd = m.input.Update(msg)
		return m, inputCmd

	default:
		return m, nil
	}
}

// applyUpdate folds one controller update into the view and returns any
// follow-up command (speech synthesis after completion).
func (m *model) applyUpdate(u turn.Update) tea.Cmd {
	m.phase = u.Phase
	m.snapshot = u.Snapshot

	switch u.Phase {
	case turn.PhaseCompleted, turn.PhaseFailed, turn.PhaseAborted:
		m.history = append(m.history, m.settledEntries(u)...)
		m.question = ""
		m.snapshot = turn.Snapshot{}
		m.stickToBottom = true
		if u.Phase == turn.PhaseCompleted && m.speakTo != "" && u.Snapshot.Response != "" {
			return speakCmd(m.ctx, m.client, u.Snapshot.Response, m.speakTo)
		}
	case turn.PhaseAwaitingDecision:
		m.input.Placeholder = "Enter to approve, or type change instructions…"
	default:
	}
	if u.Err != nil {
		m.notice = u.Err.Error()
	}
	return nil
}

// settledEntries converts a terminal update into durable conversation items.
func (m *model) settledEntries(u turn.Update) []entry {
	var out []entry
	if m.question != "" {
		out = append(out, entry{Role: "user", Content: m.question})
	}
	content := u.Snapshot.Response
	if u.Phase == turn.PhaseAborted {
		if content == "" {
			content = "(interrupted)"
		} else {
			content += "\n(interrupted)"
		}
	}
	if content != "" {
		out = append(out, entry{Role: "assistant", Content: content, Thoughts: u.Snapshot.Thoughts})
	}
	return out
}

func (m *model) busy() bool {
	switch m.phase {
	case turn.PhaseSending, turn.PhaseStreaming:
		return true
	}
	return false
}

func (m *model) handleKey(msg tea.KeyMsg) (bool, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return true, tea.Quit
	case "esc":
		if m.busy() {
			m.controller.Cancel()
			return true, nil
		}
		return false, nil
	case "ctrl+t":
		m.showThoughts = !m.showThoughts
		m.rerender()
		return true, nil
	case "ctrl+l":
		m.stickToBottom = true
		m.rerender()
		return true, nil
	case "up":
		m.scroll(-1)
		return true, nil
	case "down":
		m.scroll(1)
		return true, nil
	case "pgup":
		m.scroll(-m.viewport.Height)
		return true, nil
	case "pgdown":
		m.scroll(m.viewport.Height)
		return true, nil
	case "enter":
		return true, m.submitInput()
	}
	return false, nil
}

func (m *model) scroll(delta int) {
	m.stickToBottom = false
	m.viewport.SetYOffset(m.viewport.YOffset + delta)
	if m.viewport.AtBottom() {
		m.stickToBottom = true
	}
}

func (m *model) submitInput() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())

	if m.phase == turn.PhaseAwaitingDecision {
		m.input.SetValue("")
		m.input.Placeholder = "Ask something…"
		var err error
		if text == "" {
			err = m.controller.Approve(m.ctx)
		} else {
			err = m.controller.RequestChanges(m.ctx, text)
		}
		if err != nil {
			m.notice = err.Error()
		}
		m.rerender()
		return nil
	}

	if text == "" {
		return nil
	}
	switch text {
	case "/exit", "/quit":
		return tea.Quit
	case "/clear":
		m.input.SetValue("")
		return m.clearHistoryCmd()
	}
	if m.busy() {
		m.notice = "a turn is already running; Esc interrupts it"
		m.rerender()
		return nil
	}

	if err := m.controller.StartTurn(m.ctx, text); err != nil {
		m.notice = err.Error()
		m.rerender()
		return nil
	}
	m.question = text
	m.input.SetValue("")
	m.notice = ""
	m.stickToBottom = true
	m.rerender()
	return nil
}

func (m *model) clearHistoryCmd() tea.Cmd {
	ctx := m.ctx
	client := m.client
	threadID := m.controller.ThreadID()
	return func() tea.Msg {
		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		err := client.ClearHistory(reqCtx, threadID)
		if err != nil {
			return historyLoadedMsg{Err: err}
		}
		return historyLoadedMsg{}
	}
}

func (m *model) spinner() string {
	return spinnerFrames[m.spinnerFrame%len(spinnerFrames)]
}
