package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"webpilot/internal/domain"
)

// Platform and service catalogs. Keyword order does not matter here; intent
// precedence is decided by the classifier, not the catalog.
var messagingSites = map[string]string{
	"telegram":  "https://web.telegram.org",
	"whatsapp":  "https://web.whatsapp.com",
	"whats app": "https://web.whatsapp.com",
	"discord":   "https://discord.com/app",
	"messenger": "https://www.messenger.com",
}

var searchEngines = map[string]string{
	"google":     "https://www.google.com",
	"bing":       "https://www.bing.com",
	"duckduckgo": "https://duckduckgo.com",
}

var mailSites = map[string]string{
	"gmail":   "https://mail.google.com",
	"outlook": "https://outlook.live.com",
	"yahoo":   "https://mail.yahoo.com",
}

const (
	defaultSearchEngine = "https://www.google.com"
	defaultMailSite     = "https://mail.google.com"
)

// Extraction patterns, in priority order. The first match wins; when none
// match, the parser asks the operator instead of guessing.
var (
	recipientPatterns = []*regexp.Regexp{
		regexp.MustCompile(`@([A-Za-z0-9_.-]+)`),
		regexp.MustCompile(`(?i)to\s+(?:a\s+person\s+named\s+)?([A-Za-z0-9_@.-]+)`),
		regexp.MustCompile(`(?i)contact\s+([A-Za-z0-9_@.-]+)`),
		regexp.MustCompile(`(?i)user\s+([A-Za-z0-9_@.-]+)`),
	}

	quotedTextPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:message|send|write|saying|say)\s+(?:like\s+)?"([^"]+)"`),
		regexp.MustCompile(`(?i)(?:message|send|write|saying|say)\s+(?:like\s+)?'([^']+)'`),
		regexp.MustCompile(`"([^"]+)"`),
		regexp.MustCompile(`'([^']+)'`),
	}

	queryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)search\s+(?:for\s+)?"([^"]+)"`),
		regexp.MustCompile(`(?i)search\s+(?:for\s+)?'([^']+)'`),
		regexp.MustCompile(`(?i)search\s+(?:\w+\s+)?for\s+(.+)`),
		regexp.MustCompile(`(?i)search\s+(.+)`),
	}

	urlPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(https?://\S+)`),
		regexp.MustCompile(`(?i)(?:open|visit|go\s+to|navigate\s+to)\s+([A-Za-z0-9][A-Za-z0-9.-]*\.[A-Za-z]{2,}\S*)`),
		regexp.MustCompile(`(?i)(?:open|visit|go\s+to|navigate\s+to)\s+([A-Za-z0-9.-]+)`),
	}

	subjectPattern   = regexp.MustCompile(`(?i)subject\s+["']([^"']+)["']`)
	emailAddrPattern = regexp.MustCompile(`([A-Za-z0-9_.+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,})`)

	orderItemPattern = regexp.MustCompile(`(?i)(?:order|buy|purchase)\s+(?:a\s+|an\s+|some\s+)?(.+?)(?:\s+(?:on|from|at)\s+\S+)?$`)
	orderSitePattern = regexp.MustCompile(`(?i)(?:on|from|at)\s+([A-Za-z0-9.-]+)`)
)

// ParseResult is the outcome of analyzing one task description.
type ParseResult struct {
	Intent   domain.Intent
	Entities domain.Entities
	Site     string
	// Missing is the first required entity that could not be extracted; the
	// orchestrator turns it into a RequiresInput question. Nil when complete.
	Missing *domain.Question
}

// Parser classifies a task description and extracts its entities using
// ordered keyword and pattern matching. Precedence among overlapping
// triggers ("message" vs "write" vs "send") follows the order below; an
// unclassifiable task escalates to a clarification prompt.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser { return &Parser{} }

// Parse analyzes the task text. It never guesses a required entity: a gap
// becomes a Question for the operator.
func (p *Parser) Parse(input string) ParseResult {
	lower := strings.ToLower(input)

	switch {
	case strings.Contains(lower, "email"):
		return p.parseEmail(input, lower)
	case containsAny(lower, "send", "write", "message", "msg"):
		return p.parseMessaging(input, lower)
	case strings.Contains(lower, "search"):
		return p.parseSearch(input, lower)
	case containsAny(lower, "order", "buy", "purchase"):
		return p.parseOrdering(input, lower)
	case containsAny(lower, "open", "go to", "visit", "navigate"):
		return p.parseNavigation(input)
	default:
		return ParseResult{
			Intent: domain.IntentUnknown,
			Missing: &domain.Question{
				Kind: domain.QuestionClarify,
				Text: fmt.Sprintf("I'm not sure how to handle %q. What should I do?", input),
				Options: []string{
					"send a message",
					"search the web",
					"open a website",
					"compose an email",
					"place an order",
				},
			},
		}
	}
}

func (p *Parser) parseMessaging(input, lower string) ParseResult {
	r := ParseResult{Intent: domain.IntentMessaging}

	for keyword, site := range messagingSites {
		if strings.Contains(lower, keyword) {
			r.Site = site
			break
		}
	}

	r.Entities.Recipient = firstMatch(recipientPatterns, input)
	r.Entities.Message = extractMessage(input, r.Entities.Recipient)

	switch {
	case r.Site == "":
		r.Missing = &domain.Question{
			Kind:    domain.QuestionEntity,
			Field:   "platform",
			Text:    "Which messaging platform? (telegram/whatsapp/discord/messenger, or a direct link)",
			Options: []string{"telegram", "whatsapp", "discord", "messenger"},
		}
	case r.Entities.Recipient == "":
		r.Missing = &domain.Question{
			Kind:  domain.QuestionEntity,
			Field: "recipient",
			Text:  "Who should receive the message? (contact name)",
		}
	case r.Entities.Message == "":
		r.Missing = &domain.Question{
			Kind:  domain.QuestionEntity,
			Field: "message",
			Text:  "What message should I send?",
		}
	}
	return r
}

func (p *Parser) parseEmail(input, lower string) ParseResult {
	r := ParseResult{Intent: domain.IntentEmail, Site: defaultMailSite}

	for keyword, site := range mailSites {
		if strings.Contains(lower, keyword) {
			r.Site = site
			break
		}
	}

	// A full address beats the generic recipient patterns, which would stop
	// at the @ and capture only the domain.
	if m := emailAddrPattern.FindStringSubmatch(input); m != nil {
		r.Entities.Recipient = m[1]
	} else {
		r.Entities.Recipient = firstMatch(recipientPatterns, input)
	}
	if m := subjectPattern.FindStringSubmatch(input); m != nil {
		r.Entities.Subject = m[1]
	}
	r.Entities.Message = firstMatch(quotedTextPatterns, input)

	if r.Entities.Recipient == "" {
		r.Missing = &domain.Question{
			Kind:  domain.QuestionEntity,
			Field: "recipient",
			Text:  "Who is the email for? (address)",
		}
	}
	return r
}

func (p *Parser) parseSearch(input, lower string) ParseResult {
	r := ParseResult{Intent: domain.IntentSearch, Site: defaultSearchEngine}

	for keyword, site := range searchEngines {
		if strings.Contains(lower, keyword) {
			r.Site = site
			break
		}
	}

	r.Entities.Query = strings.TrimSpace(firstMatch(queryPatterns, input))
	// Engine names leak into the broadest pattern ("search google for x"
	// without "for" would capture "google x"); strip a leading engine word.
	for keyword := range searchEngines {
		r.Entities.Query = strings.TrimSpace(strings.TrimPrefix(r.Entities.Query, keyword+" "))
		if strings.EqualFold(r.Entities.Query, keyword) {
			r.Entities.Query = ""
		}
	}

	if r.Entities.Query == "" {
		r.Missing = &domain.Question{
			Kind:  domain.QuestionEntity,
			Field: "query",
			Text:  "What should I search for?",
		}
	}
	return r
}

func (p *Parser) parseNavigation(input string) ParseResult {
	r := ParseResult{Intent: domain.IntentNavigation}

	r.Entities.URL = firstMatch(urlPatterns, input)
	if r.Entities.URL != "" {
		r.Site = normalizeURL(r.Entities.URL)
	} else {
		r.Missing = &domain.Question{
			Kind:  domain.QuestionEntity,
			Field: "url",
			Text:  "Which website? (name or direct link)",
		}
	}
	return r
}

func (p *Parser) parseOrdering(input, lower string) ParseResult {
	r := ParseResult{Intent: domain.IntentOrdering}

	if m := orderItemPattern.FindStringSubmatch(input); m != nil {
		r.Entities.Item = strings.TrimSpace(m[1])
	}
	if m := orderSitePattern.FindStringSubmatch(input); m != nil {
		r.Site = normalizeURL(m[1])
	}

	switch {
	case r.Site == "":
		r.Missing = &domain.Question{
			Kind:  domain.QuestionEntity,
			Field: "site",
			Text:  "Which site should I order from? (name or direct link)",
		}
	case r.Entities.Item == "":
		r.Missing = &domain.Question{
			Kind:  domain.QuestionEntity,
			Field: "item",
			Text:  "What should I order?",
		}
	}
	return r
}

// ApplyAnswer folds an operator answer for a missing entity back into the
// result and re-checks for the next gap.
func (p *Parser) ApplyAnswer(r ParseResult, field, answer string) ParseResult {
	answer = strings.TrimSpace(answer)

	switch field {
	case "platform":
		lower := strings.ToLower(answer)
		if site, ok := messagingSites[lower]; ok {
			r.Site = site
		} else {
			r.Site = normalizeURL(answer)
		}
	case "recipient":
		r.Entities.Recipient = answer
	case "message":
		r.Entities.Message = answer
	case "query":
		r.Entities.Query = answer
	case "url":
		r.Entities.URL = answer
		r.Site = normalizeURL(answer)
	case "site":
		r.Site = normalizeURL(answer)
	case "item":
		r.Entities.Item = answer
	case "subject":
		r.Entities.Subject = answer
	}

	r.Missing = nextGap(r)
	return r
}

// nextGap re-derives the first missing required entity after an answer.
func nextGap(r ParseResult) *domain.Question {
	switch r.Intent {
	case domain.IntentMessaging:
		switch {
		case r.Site == "":
			return &domain.Question{Kind: domain.QuestionEntity, Field: "platform",
				Text: "Which messaging platform? (telegram/whatsapp/discord/messenger, or a direct link)"}
		case r.Entities.Recipient == "":
			return &domain.Question{Kind: domain.QuestionEntity, Field: "recipient",
				Text: "Who should receive the message? (contact name)"}
		case r.Entities.Message == "":
			return &domain.Question{Kind: domain.QuestionEntity, Field: "message",
				Text: "What message should I send?"}
		}
	case domain.IntentEmail:
		if r.Entities.Recipient == "" {
			return &domain.Question{Kind: domain.QuestionEntity, Field: "recipient",
				Text: "Who is the email for? (address)"}
		}
	case domain.IntentSearch:
		if r.Entities.Query == "" {
			return &domain.Question{Kind: domain.QuestionEntity, Field: "query",
				Text: "What should I search for?"}
		}
	case domain.IntentNavigation:
		if r.Site == "" {
			return &domain.Question{Kind: domain.QuestionEntity, Field: "url",
				Text: "Which website? (name or direct link)"}
		}
	case domain.IntentOrdering:
		switch {
		case r.Site == "":
			return &domain.Question{Kind: domain.QuestionEntity, Field: "site",
				Text: "Which site should I order from? (name or direct link)"}
		case r.Entities.Item == "":
			return &domain.Question{Kind: domain.QuestionEntity, Field: "item",
				Text: "What should I order?"}
		}
	}
	return nil
}

// Reclassify maps a clarification answer to an intent, reusing the normal
// classifier so "send a message" routes the same way a fresh task would.
func (p *Parser) Reclassify(original, answer string) ParseResult {
	r := p.Parse(answer)
	if r.Intent != domain.IntentUnknown {
		return r
	}
	// The answer itself was no clearer; treat it as a direct address.
	return ParseResult{
		Intent:   domain.IntentNavigation,
		Site:     normalizeURL(answer),
		Entities: domain.Entities{URL: answer},
	}
}

func firstMatch(patterns []*regexp.Regexp, input string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(input); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// extractMessage pulls the message body: quoted text first, then the
// trailing words after an @-mention ("message @alice hello there").
func extractMessage(input, recipient string) string {
	if msg := firstMatch(quotedTextPatterns, input); msg != "" {
		return msg
	}
	if recipient != "" {
		for _, token := range []string{"@" + recipient, recipient} {
			if idx := strings.Index(input, token); idx >= 0 {
				rest := strings.TrimSpace(input[idx+len(token):])
				if rest != "" {
					return rest
				}
			}
		}
	}
	return ""
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
