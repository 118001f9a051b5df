package smartreply

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMatch_Defaults(t *testing.T) {
	m := Default()

	tests := []struct {
		message string
		rule    string
	}{
		{"Bonjour", "greeting"},
		{"  SALUT !", "greeting"},
		{"merci beaucoup", "thanks"},
		{"Quels sont vos horaires ?", "opening_hours"},
		{"Vous êtes ouvert le dimanche ?", "opening_hours"},
		{"Bonjour, ma box est en panne depuis hier", ""},
		{"Merci de rétablir ma ligne au plus vite svp", ""},
		{"Ma facture est fausse", ""},
		{"", ""},
	}

	byName := map[string]string{}
	for _, r := range DefaultRules {
		byName[r.Name] = r.Response
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got, ok := m.Match(tt.message)
			if tt.rule == "" {
				if ok {
					t.Errorf("Match(%q) = %q, want no match", tt.message, got)
				}
				return
			}
			if !ok || got != byName[tt.rule] {
				t.Errorf("Match(%q) = %q, %v; want rule %s", tt.message, got, ok, tt.rule)
			}
		})
	}
}

func TestMatch_AccentInsensitive(t *testing.T) {
	m, err := New([]Rule{{Name: "resil", Keywords: []string{"résiliation"}, Response: "Voici la procédure."}})
	if err != nil {
		t.Fatal(err)
	}
	for _, msg := range []string{"RESILIATION", "ma résiliation", "Résiliation ?"} {
		if _, ok := m.Match(msg); !ok {
			t.Errorf("Match(%q) did not match", msg)
		}
	}
	if _, ok := m.Match("résilier"); ok {
		t.Error("partial word should not match")
	}
}

func TestMatch_FirstRuleWins(t *testing.T) {
	m, err := New([]Rule{
		{Name: "a", Keywords: []string{"box"}, Response: "A"},
		{Name: "b", Keywords: []string{"box"}, Response: "B"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := m.Match("ma box"); got != "A" {
		t.Errorf("Match() = %q, want A", got)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New([]Rule{{Name: "x", Keywords: []string{"a"}}}); err == nil {
		t.Error("expected error for empty response")
	}
	if _, err := New([]Rule{{Name: "x", Keywords: []string{"  "}, Response: "r"}}); err == nil {
		t.Error("expected error for missing keywords")
	}
}

func TestNilMatcher(t *testing.T) {
	var m *Matcher
	if _, ok := m.Match("bonjour"); ok {
		t.Error("nil matcher should never match")
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replies.yaml")
	data := `rules:
  - name: livebox
    keywords: ["code wifi", "mot de passe wifi"]
    response: "Le code wifi est au dos de votre Freebox."
  - name: hi
    keywords: [bonjour]
    response: "Bonjour !"
    max_words: 2
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	if got, ok := m.Match("Où trouver mon code WiFi ?"); !ok || got != "Le code wifi est au dos de votre Freebox." {
		t.Errorf("Match() = %q, %v", got, ok)
	}
	if _, ok := m.Match("bonjour à tous ici"); ok {
		t.Error("max_words not honored")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("rules: [oops"), 0o644)
	if _, err := LoadRules(bad); err == nil {
		t.Error("expected parse error")
	}
}
