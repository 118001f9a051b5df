// Package smartreply answers common, low-value messages (greetings, thanks,
// opening hours) with canned text so they never reach the gateway.
package smartreply

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"freeda-support/src/sanitize"
)

// Rule maps keywords to a canned response. A rule with MaxWords > 0 only
// applies to messages of at most that many words, so "bonjour" answers a
// bare greeting but not "bonjour, ma box est en panne".
type Rule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Response string   `yaml:"response"`
	MaxWords int      `yaml:"max_words"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}']+`)

// DefaultRules are used when no rules file is configured.
var DefaultRules = []Rule{
	{
		Name:     "greeting",
		Keywords: []string{"bonjour", "bonsoir", "salut", "hello", "coucou"},
		Response: "Bonjour ! Je suis l'assistant Free. Décrivez-moi votre problème et je vous aide tout de suite.",
		MaxWords: 3,
	},
	{
		Name:     "thanks",
		Keywords: []string{"merci", "thanks", "parfait merci", "super merci"},
		Response: "Avec plaisir ! N'hésitez pas si vous avez une autre question.",
		MaxWords: 4,
	},
	{
		Name:     "opening_hours",
		Keywords: []string{"horaires", "heures d'ouverture", "ouvert le dimanche", "horaire du service client"},
		Response: "Le service client Free est joignable au 3244 du lundi au samedi de 8h à 22h, et le dimanche de 9h à 19h.",
	},
}

type compiledRule struct {
	Rule
	keywords [][]string
}

// Matcher checks messages against an ordered rule list. The first matching
// rule wins. A Matcher is safe for concurrent use.
type Matcher struct {
	rules []compiledRule
}

// New compiles rules into a Matcher.
func New(rules []Rule) (*Matcher, error) {
	m := &Matcher{}
	for i, r := range rules {
		if strings.TrimSpace(r.Response) == "" {
			return nil, fmt.Errorf("rule %d (%s): response is required", i, r.Name)
		}
		cr := compiledRule{Rule: r}
		for _, kw := range r.Keywords {
			if words := tokenize(kw); len(words) > 0 {
				cr.keywords = append(cr.keywords, words)
			}
		}
		if len(cr.keywords) == 0 {
			return nil, fmt.Errorf("rule %d (%s): at least one keyword is required", i, r.Name)
		}
		m.rules = append(m.rules, cr)
	}
	return m, nil
}

// Default returns a Matcher over DefaultRules.
func Default() *Matcher {
	m, err := New(DefaultRules)
	if err != nil {
		panic(err)
	}
	return m
}

// LoadRules reads a YAML document of the form `rules: [{name, keywords,
// response, max_words}]`.
func LoadRules(path string) (*Matcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read canned replies %s: %w", path, err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse canned replies %s: %w", path, err)
	}
	return New(f.Rules)
}

// Match returns the canned response for message, if any.
func (m *Matcher) Match(message string) (string, bool) {
	if m == nil {
		return "", false
	}
	words := tokenize(message)
	if len(words) == 0 {
		return "", false
	}
	for _, r := range m.rules {
		if r.MaxWords > 0 && len(words) > r.MaxWords {
			continue
		}
		for _, kw := range r.keywords {
			if containsPhrase(words, kw) {
				return r.Response, true
			}
		}
	}
	return "", false
}

// Len is the number of rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}

func tokenize(s string) []string {
	return wordPattern.FindAllString(sanitize.Fold(s), -1)
}

// containsPhrase reports whether phrase occurs as consecutive words.
func containsPhrase(words, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, p := range phrase {
			if words[i+j] != p {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
