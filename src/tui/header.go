package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"freeda-support/src/contracts"
)

// Header represents the top status bar component.
type Header struct {
	ticketID     string
	customer     string
	channel      string
	status       contracts.Status
	messageCount int
	live         bool
	styles       *StyleConfig
}

// NewHeader creates a new header with default styles
func NewHeader(ticketID string) Header {
	return NewHeaderWithStyles(ticketID, DefaultStyles())
}

// NewHeaderWithStyles creates a new header with custom styles
func NewHeaderWithStyles(ticketID string, styles *StyleConfig) Header {
	return Header{
		ticketID: ticketID,
		status:   contracts.StatusNew,
		live:     true,
		styles:   styles,
	}
}

// SetTicket copies the descriptive fields of t.
func (h *Header) SetTicket(t *contracts.Ticket) {
	h.customer = t.CustomerName
	h.channel = t.Channel
	h.status = t.Status
}

// SetStatus updates the status badge.
func (h *Header) SetStatus(s contracts.Status) {
	h.status = s
}

// SetMessageCount updates the message counter.
func (h *Header) SetMessageCount(n int) {
	h.messageCount = n
}

// SetLive flags whether the event stream is still connected.
func (h *Header) SetLive(live bool) {
	h.live = live
}

// Render renders the header
func (h Header) Render(width int) string {
	titleStyle := lipgloss.NewStyle().
		Foreground(h.styles.PrimaryRed).
		Bold(true).
		Padding(0, 2)
	title := titleStyle.Render("🎫 " + h.ticketID)

	badge := h.styles.StatusBadge(h.status)

	infoStyle := lipgloss.NewStyle().
		Foreground(h.styles.TextSecondary).
		Padding(0, 2)
	info := fmt.Sprintf("%d messages", h.messageCount)
	if h.customer != "" {
		info = fmt.Sprintf("%s • %s • %s", h.customer, h.channel, info)
	}

	connStyle := lipgloss.NewStyle().Foreground(h.styles.AssistantColor).Padding(0, 2)
	conn := "● en direct"
	if !h.live {
		connStyle = connStyle.Foreground(h.styles.TextSecondary)
		conn = "○ déconnecté"
	}

	left := lipgloss.JoinHorizontal(lipgloss.Left, title, badge, infoStyle.Render(info))
	right := connStyle.Render(conn)

	spacerWidth := width - lipgloss.Width(left) - lipgloss.Width(right)
	if spacerWidth < 0 {
		spacerWidth = 0
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	headerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(h.styles.BorderColor).
		Width(width)

	return headerStyle.Render(lipgloss.JoinHorizontal(lipgloss.Left, left, spacer, right))
}
