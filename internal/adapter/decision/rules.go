package decision

import (
	"context"
	"regexp"
	"strings"

	"webpilot/internal/domain"
)

// RulesModel is a deterministic, offline decision model. It matches goal
// keywords against the snapshot's interactable elements and proposes the
// closest hits. It exists so the engine works without an API key, and as the
// fallback when the remote model's circuit is open.
type RulesModel struct{}

// NewRulesModel creates a RulesModel.
func NewRulesModel() *RulesModel { return &RulesModel{} }

// Decide implements domain.DecisionModel.
func (m *RulesModel) Decide(_ context.Context, snapshot domain.PageSnapshot, goal string) ([]domain.ProposedAction, error) {
	lower := strings.ToLower(goal)
	keywords := significantWords(lower)
	destructive := containsAny(lower, "order", "checkout", "send", "delete", "pay", "purchase")

	var actions []domain.ProposedAction
	for _, el := range snapshot.Elements {
		score := matchScore(el, keywords)
		if score == 0 {
			continue
		}
		kind := domain.ActionClick
		var params map[string]string
		if el.Kind == "input" || el.Kind == "editable" {
			kind = domain.ActionTypeText
			params = map[string]string{"text": typedText(goal, keywords)}
		}
		actions = append(actions, domain.ProposedAction{
			Kind:         kind,
			SelectorHint: el.Selector,
			Parameters:   params,
			Destructive:  destructive && el.Kind == "button",
			Confidence:   score,
			Reason:       "text matches goal keywords",
		})
		if len(actions) >= 3 {
			break
		}
	}

	if len(actions) == 0 {
		// Nothing matched; waiting lets a slow page settle before the
		// orchestrator treats the step as failed.
		actions = append(actions, domain.ProposedAction{
			Kind:       domain.ActionWait,
			Confidence: 0.1,
			Reason:     "no matching elements yet",
		})
	}
	return actions, nil
}

// Name implements domain.DecisionModel.
func (m *RulesModel) Name() string { return "rules" }

func matchScore(el domain.ElementSummary, keywords []string) float64 {
	text := strings.ToLower(el.Text)
	if text == "" {
		return 0
	}
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	return float64(hits) / float64(len(keywords))
}

// significantWords drops filler so "add it to the cart" matches on
// "add"/"cart", not "the".
func significantWords(s string) []string {
	var words []string
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, `"'.,()`)
		switch w {
		case "the", "a", "an", "to", "for", "and", "it", "of", "on", "in", "best", "matching":
			continue
		}
		if len(w) > 2 {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		words = []string{s}
	}
	return words
}

// typedText picks what to put in a field: the goal's quoted phrase when it
// has one, the significant words otherwise. A type proposal without text is
// useless to the executor.
func typedText(goal string, keywords []string) string {
	if m := quotedPhrase.FindStringSubmatch(goal); m != nil {
		return m[1]
	}
	return strings.Join(keywords, " ")
}

var quotedPhrase = regexp.MustCompile(`["']([^"']+)["']`)

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
