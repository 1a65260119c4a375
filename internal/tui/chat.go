// Package tui provides the terminal chat box.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"docchat/internal/models"
)

const (
	Prompt   = "Please enter your question:"
	Farewell = "Thanks for the chat!"
	exitWord = "exit"
)

// Asker is satisfied by session.Session.
type Asker interface {
	Ask(ctx context.Context, question string) (*models.PromptResponse, error)
}

type answerMsg struct {
	answer string
	err    error
}

type entry struct {
	question string
	answer   string
	err      error
	done     bool
}

var (
	promptStyle = lipgloss.NewStyle().Bold(true)
	userStyle   = lipgloss.NewStyle().Bold(true)
	botStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFA500"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
)

// Model is the bubbletea model of the chat box.
type Model struct {
	ctx      context.Context
	asker    Asker
	input    textinput.Model
	spinner  spinner.Model
	entries  []entry
	pending  bool
	quitting bool
}

func New(ctx context.Context, asker Asker) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask something about your documents, or type exit"
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Width = 80
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{ctx: ctx, asker: asker, input: ti, spinner: sp}
}

// Run starts the chat box and blocks until the user leaves.
func Run(ctx context.Context, asker Asker) error {
	final, err := tea.NewProgram(New(ctx, asker), tea.WithContext(ctx)).Run()
	if m, ok := final.(Model); ok {
		log.Debug().Int("exchanges", len(m.Transcript())).Msg("Chat ended")
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		//nolint:exhaustive // only quit and submit keys are handled here
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case tea.WindowSizeMsg:
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case answerMsg:
		m.pending = false
		last := &m.entries[len(m.entries)-1]
		last.answer, last.err, last.done = msg.answer, msg.err, true
		return m, nil

	case spinner.TickMsg:
		if !m.pending {
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

func (m Model) submit() (tea.Model, tea.Cmd) {
	question := strings.TrimSpace(m.input.Value())
	if question == "" || m.pending {
		return m, nil
	}
	m.input.SetValue("")

	if strings.EqualFold(question, exitWord) {
		m.quitting = true
		return m, tea.Quit
	}

	m.entries = append(m.entries, entry{question: question})
	m.pending = true
	return m, tea.Batch(m.ask(question), m.spinner.Tick)
}

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.asker.Ask(m.ctx, question)
		if err != nil {
			return answerMsg{err: err}
		}
		return answerMsg{answer: resp.Content}
	}
}

func (m Model) View() string {
	sections := make([]string, 0, len(m.entries)*2+4)
	sections = append(sections, promptStyle.Render(Prompt), "")

	for _, e := range m.entries {
		sections = append(sections, userStyle.Render("User:")+" "+e.question)
		switch {
		case !e.done:
			sections = append(sections, botStyle.Render("Chatbot:")+" "+m.spinner.View())
		case e.err != nil:
			sections = append(sections, botStyle.Render("Chatbot:")+" "+errorStyle.Render("Error: "+e.err.Error()))
		default:
			sections = append(sections, botStyle.Render("Chatbot:")+" "+e.answer)
		}
		sections = append(sections, "")
	}

	if m.quitting {
		sections = append(sections, Farewell, "")
		return lipgloss.JoinVertical(lipgloss.Left, sections...)
	}

	sections = append(sections, m.input.View(), mutedStyle.Render("enter to send, exit or esc to quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// Transcript returns the completed exchanges shown so far.
func (m Model) Transcript() []models.Exchange {
	out := make([]models.Exchange, 0, len(m.entries))
	for _, e := range m.entries {
		if e.done && e.err == nil {
			out = append(out, models.Exchange{Question: e.question, Answer: e.answer})
		}
	}
	return out
}
