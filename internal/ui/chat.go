package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/docchat/internal/chat"
	"github.com/Aman-CERP/docchat/internal/store"
)

// Slash commands understood by both chat front ends.
const (
	CommandReset = "/reset"
	CommandQuit  = "/quit"
	CommandExit  = "/exit"
)

// Backend is the chat service as seen by the terminal front ends.
type Backend interface {
	Chat(ctx context.Context, message string) (*chat.Reply, error)
	History(ctx context.Context) ([]store.Message, error)
	Reset(ctx context.Context) (int64, error)
}

type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entrySystem
	entryError
)

type entry struct {
	kind    entryKind
	text    string
	sources []string
}

type (
	replyMsg struct {
		reply *chat.Reply
		err   error
	}
	resetMsg struct {
		removed int64
		err     error
	}
	historyMsg struct {
		messages []store.Message
		err      error
	}
)

// footer lines below the viewport: status line and input.
const chromeHeight = 3

// chatModel is the bubbletea model of the chat screen.
type chatModel struct {
	ctx      context.Context
	backend  Backend
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	styles   Styles
	entries  []entry
	busy     bool
	ready    bool
	width    int
	quitting bool
}

func newChatModel(ctx context.Context, backend Backend, styles Styles) *chatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask about your documents (/reset clears history)"
	ti.Prompt = "> "
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	return &chatModel{
		ctx:      ctx,
		backend:  backend,
		input:    ti,
		spinner:  sp,
		styles:   styles,
		viewport: viewport.New(80, 20),
		width:    80,
	}
}

// Init implements tea.Model.
func (m *chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadHistory)
}

func (m *chatModel) loadHistory() tea.Msg {
	messages, err := m.backend.History(m.ctx)
	return historyMsg{messages: messages, err: err}
}

func (m *chatModel) send(text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := m.backend.Chat(m.ctx, text)
		return replyMsg{reply: reply, err: err}
	}
}

func (m *chatModel) reset() tea.Msg {
	n, err := m.backend.Reset(m.ctx)
	return resetMsg{removed: n, err: err}
}

// Update implements tea.Model.
func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-chromeHeight)
		m.input.Width = max(10, msg.Width-4)
		m.ready = true
		m.refresh()
		return m, nil

	case historyMsg:
		if msg.err != nil {
			m.entries = append(m.entries, entry{kind: entryError, text: "could not load history: " + msg.err.Error()})
		}
		for _, hm := range msg.messages {
			kind := entryAssistant
			if hm.Role == store.RoleUser {
				kind = entryUser
			}
			m.entries = append(m.entries, entry{kind: kind, text: hm.Content})
		}
		m.refresh()
		return m, nil

	case replyMsg:
		m.busy = false
		if msg.err != nil {
			m.entries = append(m.entries, entry{kind: entryError, text: msg.err.Error()})
		} else {
			kind := entryAssistant
			if msg.reply.CompletionFailed {
				kind = entryError
			}
			m.entries = append(m.entries, entry{kind: kind, text: msg.reply.Content, sources: SourceNames(msg.reply)})
		}
		m.refresh()
		return m, nil

	case resetMsg:
		m.busy = false
		if msg.err != nil {
			m.entries = append(m.entries, entry{kind: entryError, text: "reset failed: " + msg.err.Error()})
		} else {
			m.entries = []entry{{kind: entrySystem, text: fmt.Sprintf("History cleared (%d messages removed).", msg.removed)}}
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit handles the enter key.
func (m *chatModel) submit() tea.Cmd {
	if m.busy {
		return nil
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	m.input.Reset()

	switch text {
	case CommandQuit, CommandExit:
		m.quitting = true
		return tea.Quit
	case CommandReset:
		m.busy = true
		return tea.Batch(m.reset, m.spinner.Tick)
	}

	m.entries = append(m.entries, entry{kind: entryUser, text: text})
	m.busy = true
	m.refresh()
	return tea.Batch(m.send(text), m.spinner.Tick)
}

// refresh re-renders the transcript into the viewport and scrolls to the end.
func (m *chatModel) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m *chatModel) transcript() string {
	if len(m.entries) == 0 {
		return m.styles.System.Render("No messages yet. Upload documents, then ask a question.")
	}

	wrap := lipgloss.NewStyle().Width(max(20, m.width-2))
	var blocks []string
	for _, e := range m.entries {
		var b strings.Builder
		switch e.kind {
		case entryUser:
			b.WriteString(m.styles.User.Render("You: "))
			b.WriteString(e.text)
		case entryAssistant:
			b.WriteString(m.styles.Assistant.Render("Assistant: "))
			b.WriteString(e.text)
		case entrySystem:
			b.WriteString(m.styles.System.Render(e.text))
		case entryError:
			b.WriteString(m.styles.Error.Render(e.text))
		}
		if len(e.sources) > 0 {
			b.WriteString("\n")
			b.WriteString(m.styles.Sources.Render("Sources: " + strings.Join(e.sources, ", ")))
		}
		blocks = append(blocks, wrap.Render(b.String()))
	}
	return strings.Join(blocks, "\n\n")
}

// View implements tea.Model.
func (m *chatModel) View() string {
	if m.quitting {
		return ""
	}

	status := m.styles.Dim.Render("enter to send  •  pgup/pgdn to scroll  •  esc to quit")
	if m.busy {
		status = m.spinner.View() + " " + m.styles.Label.Render("Thinking...")
	}
	return m.viewport.View() + "\n" + status + "\n" + m.input.View()
}

// RunTUI runs the full-screen chat until the user quits or ctx is cancelled.
func RunTUI(ctx context.Context, backend Backend, noColor bool) error {
	styles := GetStyles(noColor || DetectNoColor())
	p := tea.NewProgram(newChatModel(ctx, backend, styles), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
