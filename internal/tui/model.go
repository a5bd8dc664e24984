package tui

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docsearch/internal/domain"
)

// Asker is the TUI-facing subset of the RAG service.
type Asker interface {
	Query(ctx context.Context, req domain.QueryRequest) iter.Seq[domain.StreamToken]
}

// Session fixes the provider and document scope of a chat.
type Session struct {
	Provider   string
	Model      string
	DocumentID string
	UseRAG     bool
}

type exchange struct {
	question string
	answer   strings.Builder
	err      string
}

// stream holds a pulled token sequence. Only the Bubble Tea command
// goroutine calls next; stop runs after the final token.
type stream struct {
	next   func() (domain.StreamToken, bool)
	stop   func()
	cancel context.CancelFunc
}

type tokenMsg struct {
	tok domain.StreamToken
	ok  bool
}

// Model is the Bubble Tea model of the streaming chat.
type Model struct {
	asker    Asker
	session  Session
	input    textinput.Model
	viewport viewport.Model
	history  []*exchange
	active   *stream
	status   string
	ready    bool
}

// New creates a new chat model.
func New(asker Asker, session Session) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{asker: asker, session: session, input: ti, viewport: vp, status: sessionLine(session)}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and token events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		bw, bh := transcriptStyle.GetFrameSize()
		qw, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 + bh // header, status, input box, input line
		m.viewport.Width = max(20, msg.Width-bw)
		m.input.Width = max(10, msg.Width-qw-len(m.input.Prompt)-1)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.refresh()
		return m, nil
	case tokenMsg:
		return m.handleToken(msg)
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			if m.active != nil {
				m.active.cancel()
			}
			return m, tea.Quit
		case tea.KeyEsc:
			if m.active != nil {
				m.active.cancel()
				m.status = "Cancelling..."
				return m, nil
			}
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.active != nil {
				return m, nil
			}
			m.input.SetValue("")
			cmd := m.ask(q)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) ask(question string) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	next, stop := iter.Pull(m.asker.Query(ctx, domain.QueryRequest{
		Query:      question,
		Provider:   m.session.Provider,
		Model:      m.session.Model,
		DocumentID: m.session.DocumentID,
		UseRAG:     m.session.UseRAG,
	}))
	m.active = &stream{next: next, stop: stop, cancel: cancel}
	m.history = append(m.history, &exchange{question: question})
	m.status = "Streaming... (Esc to cancel)"
	m.refresh()
	return m.active.pull
}

func (s *stream) pull() tea.Msg {
	tok, ok := s.next()
	return tokenMsg{tok: tok, ok: ok}
}

func (m Model) handleToken(msg tokenMsg) (tea.Model, tea.Cmd) {
	if m.active == nil {
		return m, nil
	}
	cur := m.history[len(m.history)-1]
	switch {
	case !msg.ok || msg.tok.Done:
		m.active.stop()
		m.active.cancel()
		m.active = nil
		m.status = sessionLine(m.session)
		m.refresh()
		return m, nil
	case msg.tok.IsError():
		cur.err = msg.tok.Error
	default:
		cur.answer.WriteString(msg.tok.Content)
	}
	m.refresh()
	return m, m.active.pull
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Document Search Chat")
	transcript := transcriptStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.history) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	width := max(10, m.viewport.Width-4)
	for i, ex := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: " + ex.question))
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Render(ex.answer.String()))
		if ex.err != "" {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render("Error: " + ex.err))
		}
	}
	return b.String()
}

func sessionLine(s Session) string {
	line := fmt.Sprintf("%s/%s", s.Provider, s.Model)
	if s.DocumentID != "" && s.UseRAG {
		line += "  grounded in " + s.DocumentID
	}
	return line + "  (Ctrl+C to quit)"
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)
