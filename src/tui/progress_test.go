package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestProgressModel_InitialState(t *testing.T) {
	model := NewProgressModel("Connexion à FRE-1A2B3C4D")

	if model.done {
		t.Error("expected not done initially")
	}
	if view := model.View(); !strings.Contains(view, "Connexion à FRE-1A2B3C4D...") {
		t.Errorf("expected view to contain stage, got: %s", view)
	}
}

func TestProgressModel_DefaultStage(t *testing.T) {
	if view := NewProgressModel("").View(); !strings.Contains(view, "Connexion...") {
		t.Errorf("expected default stage, got: %s", view)
	}
}

func TestProgressModel_SpinnerAdvances(t *testing.T) {
	model := NewProgressModel("")

	model, cmd := model.Update(SpinnerTickMsg(time.Now()))

	if model.spinnerFrame != 1 {
		t.Errorf("spinnerFrame = %d, expected 1", model.spinnerFrame)
	}
	if cmd == nil {
		t.Error("expected another tick to be scheduled")
	}
}

func TestProgressModel_Complete(t *testing.T) {
	model := NewProgressModel("")

	model, _ = model.Update(ProgressMsg{Stage: "complete"})

	if !model.done {
		t.Error("expected model to be done after 'complete' stage")
	}
	if _, cmd := model.Update(SpinnerTickMsg(time.Now())); cmd != nil {
		t.Error("spinner should stop once complete")
	}
	if view := model.View(); !strings.Contains(view, "Connecté") {
		t.Errorf("expected view to contain 'Connecté', got: %s", view)
	}
}

func TestProgressModel_ImplementsUpdate(t *testing.T) {
	var _ interface {
		Update(tea.Msg) (ProgressModel, tea.Cmd)
	} = ProgressModel{}
}
