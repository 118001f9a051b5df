// Package tui provides the terminal viewer that follows one support ticket
// live: the conversation so far, then every new message and status change.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"freeda-support/src/contracts"
)

// EventMsg delivers one ticket event to the model.
type EventMsg struct {
	Event contracts.Event
}

// StreamClosedMsg reports that the event channel was closed.
type StreamClosedMsg struct{}

// entry is one rendered conversation line.
type entry struct {
	id        string
	kind      contracts.MessageType
	author    string
	content   string
	timestamp time.Time
}

// Model is the Bubble Tea model of the ticket viewer.
type Model struct {
	ticketID string
	events   <-chan contracts.Event

	header   Header
	progress ProgressModel
	viewport viewport.Model
	styles   *StyleConfig

	entries  []entry
	seen     map[string]bool
	snapshot bool
	closed   bool

	width  int
	height int
	ready  bool
}

// NewModel builds a viewer for ticketID fed by events.
func NewModel(ticketID string, events <-chan contracts.Event) Model {
	styles := DefaultStyles()
	return Model{
		ticketID: ticketID,
		events:   events,
		header:   NewHeaderWithStyles(ticketID, styles),
		progress: NewProgressModel("Connexion à " + ticketID),
		styles:   styles,
		seen:     make(map[string]bool),
	}
}

// Start runs the viewer until the user quits.
func Start(ticketID string, events <-chan contracts.Event) error {
	p := tea.NewProgram(NewModel(ticketID, events), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(listenForEvent(m.events), SpinnerTick())
}

// listenForEvent blocks until the next event arrives.
func listenForEvent(ch <-chan contracts.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeComponents()
		return m, nil

	case EventMsg:
		m.apply(msg.Event)
		return m, listenForEvent(m.events)

	case StreamClosedMsg:
		m.closed = true
		m.header.SetLive(false)
		return m, nil

	case SpinnerTickMsg, ProgressMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "g", "home":
			m.viewport.GotoTop()
			return m, nil
		case "G", "end":
			m.viewport.GotoBottom()
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply folds one event into the conversation.
func (m *Model) apply(ev contracts.Event) {
	switch ev.Type {
	case contracts.EventTicketSnapshot:
		if ev.Snapshot == nil {
			return
		}
		m.snapshot = true
		m.header.SetTicket(ev.Snapshot)
		m.entries = m.entries[:0]
		m.seen = make(map[string]bool, len(ev.Snapshot.Messages))
		for _, msg := range ev.Snapshot.Messages {
			m.add(entry{id: msg.ID, kind: msg.Type, author: msg.Author, content: msg.Content, timestamp: msg.Timestamp})
		}
		m.progress, _ = m.progress.Update(ProgressMsg{Stage: "complete"})

	case contracts.EventTicketCreated:
		if ev.Ticket != nil {
			m.header.SetStatus(ev.Ticket.Status)
		}

	case contracts.EventNewMessage:
		if ev.Message == nil {
			return
		}
		kind, author := contracts.MessageClient, "Client"
		if ev.Message.Role == contracts.RoleAssistant {
			kind, author = contracts.MessageAssistant, "Assistant Free"
		}
		m.add(entry{id: ev.Message.ID, kind: kind, author: author, content: ev.Message.Content, timestamp: ev.Message.Timestamp})

	case contracts.EventStatusUpdated:
		m.header.SetStatus(ev.Status)
	}

	m.header.SetMessageCount(len(m.entries))
	m.refreshContent()
}

// add appends e unless a message with the same id is already shown. A
// relayed event can arrive after the snapshot that already contains it.
func (m *Model) add(e entry) {
	if e.id != "" {
		if m.seen[e.id] {
			return
		}
		m.seen[e.id] = true
	}
	m.entries = append(m.entries, e)
}

// refreshContent re-renders the conversation, following the bottom when the
// user has not scrolled up.
func (m *Model) refreshContent() {
	if !m.ready {
		return
	}
	follow := m.viewport.AtBottom() || m.viewport.TotalLineCount() == 0
	m.viewport.SetContent(m.renderConversation(m.viewport.Width - 2))
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) renderConversation(width int) string {
	if len(m.entries) == 0 {
		return lipgloss.NewStyle().Foreground(m.styles.TextSecondary).Render("Aucun message pour le moment.")
	}
	timeStyle := lipgloss.NewStyle().Foreground(m.styles.TextSecondary)

	blocks := make([]string, len(m.entries))
	for i, e := range m.entries {
		head := fmt.Sprintf("%s %s",
			timeStyle.Render(e.timestamp.Local().Format("15:04")),
			m.styles.AuthorStyle(e.kind).Render(e.author))
		body := Indent(Wrap(e.content, width-2), "  ")
		blocks[i] = head + "\n" + body
	}
	return strings.Join(blocks, "\n\n")
}
