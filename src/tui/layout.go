package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
)

// conversationHeight computes the viewport height left by the header, the
// help line (1) and the viewport borders (2).
func (m Model) conversationHeight() int {
	headerHeight := lipgloss.Height(m.header.Render(m.width))
	return max(1, m.height-headerHeight-1-2)
}

// View renders the complete TUI layout
func (m Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	header := m.header.Render(m.width)

	if !m.snapshot && !m.closed {
		centered := lipgloss.NewStyle().
			Width(m.width).
			Align(lipgloss.Center).
			PaddingTop(2).
			Render(m.progress.View())
		return lipgloss.JoinVertical(lipgloss.Left, header, centered)
	}

	body := m.styles.ViewportStyle().Render(m.viewport.View())
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderHelpText())
}

// renderHelpText renders the key help at the bottom
func (m Model) renderHelpText() string {
	keyStyle := lipgloss.NewStyle().Foreground(m.styles.PrimaryRed).Bold(true)
	sepStyle := lipgloss.NewStyle().Foreground(m.styles.TextSecondary)

	help := fmt.Sprintf("%s: Défiler %s %s: Début/Fin %s %s: Quitter",
		keyStyle.Render("j/k"), sepStyle.Render("•"),
		keyStyle.Render("g/G"), sepStyle.Render("•"),
		keyStyle.Render("q"))
	if m.closed {
		help += sepStyle.Render("  (flux terminé)")
	}
	return m.styles.HelpStyle().Render(help)
}

// resizeComponents handles window resize events
func (m *Model) resizeComponents() {
	width := max(1, m.width-2)
	height := m.conversationHeight()
	if !m.ready {
		m.viewport = viewport.New(width, height)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = height
	}
	m.refreshContent()
}
