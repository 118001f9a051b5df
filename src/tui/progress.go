package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ASCII art logo lines for the connecting screen
var freedaLogo = []string{
	"███████ ██████  ███████ ███████ ██████   █████ ",
	"██      ██   ██ ██      ██      ██   ██ ██   ██",
	"█████   ██████  █████   █████   ██   ██ ███████",
	"██      ██   ██ ██      ██      ██   ██ ██   ██",
	"██      ██   ██ ███████ ███████ ██████  ██   ██",
}

// Gradient colors from light (top) to dark (bottom)
var logoGradientColors = []string{
	"#FF4D5E",
	"#F5283B",
	"#E2001A",
	"#C40017",
	"#A30013",
}

// Spinner frames for the connecting animation
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// ProgressMsg updates the connecting stage. The stage "complete" stops the
// spinner.
type ProgressMsg struct {
	Stage string
}

// SpinnerTickMsg triggers spinner animation frame advance
type SpinnerTickMsg time.Time

// ProgressModel is shown until the ticket snapshot arrives.
type ProgressModel struct {
	stage        string
	done         bool
	spinnerFrame int
}

func NewProgressModel(stage string) ProgressModel {
	return ProgressModel{stage: stage}
}

// SpinnerTick returns a command that sends SpinnerTickMsg after a delay
func SpinnerTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return SpinnerTickMsg(t)
	})
}

func (m ProgressModel) Update(msg tea.Msg) (ProgressModel, tea.Cmd) {
	switch msg := msg.(type) {
	case ProgressMsg:
		m.stage = msg.Stage
		if msg.Stage == "complete" {
			m.done = true
		}
	case SpinnerTickMsg:
		if m.done {
			return m, nil
		}
		m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		return m, SpinnerTick()
	}
	return m, nil
}

func (m ProgressModel) View() string {
	logoLines := make([]string, len(freedaLogo))
	for i, line := range freedaLogo {
		style := lipgloss.NewStyle().
			Foreground(lipgloss.Color(logoGradientColors[i%len(logoGradientColors)])).
			Bold(true)
		logoLines[i] = style.Render(line)
	}
	logo := strings.Join(logoLines, "\n")

	if m.done {
		status := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Render("✓ Connecté")
		return lipgloss.JoinVertical(lipgloss.Center, logo, "", status)
	}

	spinner := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")).Render(spinnerFrames[m.spinnerFrame])
	stage := m.stage
	if stage == "" {
		stage = "Connexion"
	}
	return lipgloss.JoinVertical(lipgloss.Center, logo, "", fmt.Sprintf("%s %s...", spinner, stage))
}
