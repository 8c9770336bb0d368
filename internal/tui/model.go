package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"askmydocs/internal/client"
)

// Model is the Bubble Tea model for the chat client.
type Model struct {
	api        *client.Client
	input      textinput.Model
	viewport   viewport.Model
	transcript []string
	status     string
	waiting    bool
	ready      bool
	documentID string
}

type answerMsg struct {
	question string
	result   *client.QueryResult
	err      error
}

// New creates a chat model talking to the given API client. A non-empty
// documentID scopes every question to that document.
func New(api *client.Client, documentID, banner string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about your documents"
	ti.Focus()
	ti.CharLimit = 500
	vp := viewport.New(0, 0)
	m := Model{
		api:        api,
		input:      ti,
		viewport:   vp,
		status:     "Connected. Type a question and press Enter.",
		documentID: documentID,
	}
	if banner != "" {
		m.transcript = append(m.transcript, subtleStyle.Render(banner))
	}
	return m
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input frame, spacer
		vh := msg.Height - reserved - th
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = vh
		m.viewport.SetContent(strings.Join(m.transcript, "\n"))
		return m, nil
	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.transcript = append(m.transcript, renderAnswer(msg.result))
			m.status = fmt.Sprintf("Answered in %dms (confidence %.2f)", msg.result.ProcessingTimeMs, msg.result.Confidence)
		}
		m.viewport.SetContent(strings.Join(m.transcript, "\n"))
		m.viewport.GotoBottom()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.waiting {
				m.waiting = true
				m.status = "Thinking..."
				m.input.Reset()
				m.transcript = append(m.transcript, questionStyle.Render("You: ")+q)
				m.viewport.SetContent(strings.Join(m.transcript, "\n"))
				m.viewport.GotoBottom()
				return m, m.ask(q)
			}
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Ask My Docs")
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) ask(question string) tea.Cmd {
	api, docID := m.api, m.documentID
	return func() tea.Msg {
		res, err := api.Query(context.Background(), question, docID, 0)
		return answerMsg{question: question, result: res, err: err}
	}
}

func renderAnswer(res *client.QueryResult) string {
	var b strings.Builder
	b.WriteString(answerStyle.Render("Bot: "))
	b.WriteString(res.Answer)
	for i, src := range res.Sources {
		b.WriteString("\n")
		b.WriteString(subtleStyle.Render(fmt.Sprintf("  [%d] %s (score %.3f)", i+1, src.Source, src.Score)))
	}
	b.WriteString("\n")
	return b.String()
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	answerStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	subtleStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
