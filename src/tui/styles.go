package tui

import (
	"github.com/charmbracelet/lipgloss"

	"freeda-support/src/contracts"
	"freeda-support/src/ticket"
)

// StyleConfig holds all customizable style colors for the ticket viewer.
type StyleConfig struct {
	PrimaryRed     lipgloss.Color
	DarkBackground lipgloss.Color
	CardBackground lipgloss.Color
	TextPrimary    lipgloss.Color
	TextSecondary  lipgloss.Color
	BorderColor    lipgloss.Color

	// Author colors
	ClientColor    lipgloss.Color
	AssistantColor lipgloss.Color
	AgentColor     lipgloss.Color

	// Badge colors keyed by ticket.StatusInfo.Color
	BadgeColors map[string]lipgloss.Color
}

// DefaultStyles returns the default color palette
func DefaultStyles() *StyleConfig {
	return &StyleConfig{
		PrimaryRed:     lipgloss.Color("#E2001A"),
		DarkBackground: lipgloss.Color("#1E1E1E"),
		CardBackground: lipgloss.Color("#2D2D2D"),
		TextPrimary:    lipgloss.Color("#E8EAED"),
		TextSecondary:  lipgloss.Color("#9AA0A6"),
		BorderColor:    lipgloss.Color("#5F6368"),
		ClientColor:    lipgloss.Color("#8AB4F8"),
		AssistantColor: lipgloss.Color("#34A853"),
		AgentColor:     lipgloss.Color("#A142F4"),
		BadgeColors: map[string]lipgloss.Color{
			"blue":   lipgloss.Color("#4285F4"),
			"orange": lipgloss.Color("#FBBC04"),
			"green":  lipgloss.Color("#34A853"),
			"gray":   lipgloss.Color("#9AA0A6"),
		},
	}
}

// AuthorStyle colors a message header by who wrote it.
func (s *StyleConfig) AuthorStyle(kind contracts.MessageType) lipgloss.Style {
	color := s.ClientColor
	switch kind {
	case contracts.MessageAssistant:
		color = s.AssistantColor
	case contracts.MessageAgent:
		color = s.AgentColor
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true)
}

// StatusBadge renders a ticket status as a colored pill.
func (s *StyleConfig) StatusBadge(status contracts.Status) string {
	info := ticket.Info(status)
	bg, ok := s.BadgeColors[info.Color]
	if !ok {
		bg = s.TextSecondary
	}
	return lipgloss.NewStyle().
		Background(bg).
		Foreground(s.DarkBackground).
		Bold(true).
		Padding(0, 1).
		Render(info.Label)
}

// HelpStyle returns a help text lipgloss style using this config
func (s *StyleConfig) HelpStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.TextSecondary).
		Padding(0, 2)
}

// ViewportStyle returns a viewport container lipgloss style using this config
func (s *StyleConfig) ViewportStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.TextPrimary).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(s.BorderColor)
}
