// Package analytics scores a ticket conversation (sentiment, category,
// urgency, churn risk) by asking the conversational gateway for a JSON
// verdict.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"freeda-support/src/clock"
	"freeda-support/src/contracts"
	"freeda-support/src/gateway"
	"freeda-support/src/logger"
)

const (
	// AlertRetention flags a conversation whose churn risk is critical.
	AlertRetention = "URGENT_RETENTION"

	churnAlertThreshold = 80
	historyWindow       = 5
	maxTextLen          = 100
	minMessageLen       = 5
	temperature         = 0.1
	maxTokens           = 300
)

var trivialMessages = map[string]bool{
	"ok":       true,
	"merci":    true,
	"d'accord": true,
	"non":      true,
	"oui":      true,
}

const prompt = `Tu es un expert en analyse de support client pour Free.

TACHE : Analyser la conversation et extraire les indicateurs clés.

CONVERSATION :
%s

FORMAT DE REPONSE ATTENDU (JSON UNIQUEMENT) :
{
  "sentiment": "positif" | "neutre" | "negatif",
  "category": "facturation" | "technique" | "commercial" | "resiliation" | "autre",
  "urgency": "basse" | "moyenne" | "haute",
  "churn_risk": 0 à 100 (probabilité de départ),
  "summary": "résumé TRES PRECIS du problème technique ou commercial (max 15 mots)",
  "next_action": "action recommandée pour l'agent"
}

CRITERES STRICTS :
- Sentiment :
    * 'negatif' : Problème technique, panne, plainte, insatisfaction, résiliation.
    * 'neutre' : Demande d'information, question simple, procédure administrative sans plainte.
    * 'positif' : Remerciement, satisfaction, confirmation de résolution.
- Summary : Ne jamais mettre "Demande de support". Etre précis (ex: "Panne fibre depuis 3 jours", "Erreur facture 49€").
- Churn Risk : > 80 si mention de 'résiliation', 'concurrent', 'trop cher', 'départ'.
- Urgence : 'haute' si panne totale, blocage bloquant ou risque de churn élevé.

REPONDS UNIQUEMENT AVEC LE JSON.`

var (
	codeFence  = regexp.MustCompile("```json\\s*|\\s*```")
	jsonObject = regexp.MustCompile(`(?s)\{.*\}`)
)

// Chatter is the gateway capability analytics needs.
type Chatter interface {
	Chat(ctx context.Context, req gateway.Request) (string, error)
}

// Service computes ticket analytics.
type Service struct {
	gateway Chatter
	clock   clock.Clock
	logger  logger.Logger
}

// NewService creates a Service. A nil gateway makes every analysis return
// the default record.
func NewService(gw Chatter, clk clock.Clock, log logger.Logger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logger.NewSilentLogger()
	}
	return &Service{gateway: gw, clock: clk, logger: log}
}

// Default returns the neutral record used when analysis is skipped or fails.
func (s *Service) Default() contracts.Analytics {
	return Default(s.clock)
}

// Default returns the neutral analytics record stamped with clk's time.
func Default(clk clock.Clock) contracts.Analytics {
	return contracts.Analytics{
		Sentiment:  "neutre",
		Category:   "autre",
		Urgency:    "moyenne",
		ChurnRisk:  0,
		Summary:    "En attente d'analyse",
		NextAction: "À traiter",
		AnalyzedAt: clk.Now(),
	}
}

// AnalyzeTicket scores the last turns of history. Trivial closing messages
// ("ok", "merci", ...) are not sent to the gateway. On a gateway or parse
// failure the default record is returned together with the error.
func (s *Service) AnalyzeTicket(ctx context.Context, history []contracts.ChatMessage) (contracts.Analytics, error) {
	if s.gateway == nil || len(history) == 0 {
		return s.Default(), nil
	}

	last := history[len(history)-1].Content
	if IsTrivial(last) {
		s.logger.Debug("[Analytics] Skipping trivial message")
		return s.Default(), nil
	}

	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		role := m.Role
		if role == "" {
			role = contracts.RoleUser
		}
		lines = append(lines, strings.ToUpper(role)+": "+m.Content)
	}

	reply, err := s.gateway.Chat(ctx, gateway.Request{
		Messages:    []contracts.ChatMessage{{Role: contracts.RoleUser, Content: fmt.Sprintf(prompt, strings.Join(lines, "\n"))}},
		Temperature: gateway.Temperature(temperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return s.Default(), fmt.Errorf("failed to analyze ticket: %w", err)
	}

	result, err := Parse(reply)
	if err != nil {
		s.logger.Warn("[Analytics] Unparseable verdict: %v", err)
		return s.Default(), err
	}
	result.AnalyzedAt = s.clock.Now()

	if result.ChurnRisk > churnAlertThreshold {
		result.Alert = AlertRetention
		s.logger.Error("[Analytics] Churn alert: risk %d%% - %s", result.ChurnRisk, result.Summary)
	}
	return result, nil
}

// IsTrivial reports whether msg is too short or generic to be worth scoring.
func IsTrivial(msg string) bool {
	msg = strings.TrimSpace(msg)
	return utf8.RuneCountInString(msg) < minMessageLen || trivialMessages[strings.ToLower(msg)]
}

type verdict struct {
	Sentiment  string      `json:"sentiment"`
	Category   string      `json:"category"`
	Urgency    string      `json:"urgency"`
	ChurnRisk  flexibleInt `json:"churn_risk"`
	Summary    string      `json:"summary"`
	NextAction string      `json:"next_action"`
}

// Parse extracts the analytics JSON from a model reply, tolerating code
// fences and surrounding prose. Missing fields get their defaults, churn
// risk is clamped to 0..100 and free text is cut to 100 characters.
func Parse(reply string) (contracts.Analytics, error) {
	clean := strings.TrimSpace(codeFence.ReplaceAllString(reply, ""))
	if m := jsonObject.FindString(clean); m != "" {
		clean = m
	}

	var v verdict
	if err := json.Unmarshal([]byte(clean), &v); err != nil {
		return contracts.Analytics{}, fmt.Errorf("failed to parse analytics response: %w", err)
	}

	return contracts.Analytics{
		Sentiment:  orDefault(v.Sentiment, "neutre"),
		Category:   orDefault(v.Category, "autre"),
		Urgency:    orDefault(v.Urgency, "moyenne"),
		ChurnRisk:  clamp(int(v.ChurnRisk), 0, 100),
		Summary:    truncate(orDefault(v.Summary, "Analyse en cours"), maxTextLen),
		NextAction: truncate(orDefault(v.NextAction, "Vérifier le dossier"), maxTextLen),
	}, nil
}

// flexibleInt accepts 85, 85.0 or "85".
type flexibleInt int

func (f *flexibleInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("churn_risk %q is not a number", s)
	}
	*f = flexibleInt(v)
	return nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
