package usecase

import (
	"fmt"
	"strings"

	"webpilot/internal/domain"
)

// Selector candidate lists, most specific first. A locator sweeps these in
// order, so an early generic match would shadow a better one below it.
var searchBoxCandidates = []domain.Selector{
	domain.CSS("input[name='q']"),
	domain.CSS("textarea[name='q']"),
	domain.CSS("input[type='search']"),
	domain.CSS("input[placeholder*='Search' i]"),
	domain.CSS("[role='combobox']"),
	domain.XPath("//input[contains(@aria-label, 'Search')]"),
	domain.XPath("//input[contains(@title, 'Search')]"),
}

var resultsCandidates = []domain.Selector{
	domain.CSS("#search"),
	domain.CSS("#results"),
	domain.CSS("[role='main']"),
	domain.CSS("ol#b_results"),
}

var contactSearchCandidates = []domain.Selector{
	domain.CSS("input[placeholder*='Search' i]"),
	domain.CSS("[contenteditable='true'][data-tab='3']"),
	domain.CSS(".input-search input"),
	domain.CSS("input[type='text']"),
	domain.XPath("//input[contains(@placeholder, 'Search')]"),
}

var contactEntryCandidates = []domain.Selector{
	domain.CSS("[data-testid='cell-frame-container']"),
	domain.CSS(".chatlist-chat"),
	domain.CSS("ul.chatlist > li"),
	domain.CSS("[role='listitem']"),
	domain.XPath("//div[contains(@class, 'chat-item')]"),
}

var messageInputCandidates = []domain.Selector{
	domain.CSS("[contenteditable='true'][data-tab='10']"),
	domain.CSS("div.input-message-input[contenteditable='true']"),
	domain.CSS("[contenteditable='true'][role='textbox']"),
	domain.CSS("div[aria-label*='Message' i]"),
	domain.CSS("textarea[placeholder*='Message' i]"),
	domain.XPath("//div[@contenteditable='true']"),
}

var composeButtonCandidates = []domain.Selector{
	domain.CSS("[gh='cm']"),
	domain.CSS("div[role='button'][jscontroller]"),
	domain.CSS("button[aria-label*='New' i]"),
	domain.XPath("//div[text()='Compose']"),
	domain.XPath("//button[contains(., 'New message')]"),
}

var mailToCandidates = []domain.Selector{
	domain.CSS("input[aria-label*='To' i]"),
	domain.CSS("textarea[name='to']"),
	domain.CSS("input[role='combobox'][aria-label*='recipients' i]"),
}

var mailSubjectCandidates = []domain.Selector{
	domain.CSS("input[name='subjectbox']"),
	domain.CSS("input[aria-label*='Subject' i]"),
	domain.CSS("input[placeholder*='Subject' i]"),
}

var mailBodyCandidates = []domain.Selector{
	domain.CSS("div[aria-label*='Message Body' i]"),
	domain.CSS("div[role='textbox'][contenteditable='true']"),
	domain.CSS("textarea[name='body']"),
}

var productSearchCandidates = []domain.Selector{
	domain.CSS("input[id*='search' i]"),
	domain.CSS("input[name*='search' i]"),
	domain.CSS("input[type='search']"),
	domain.CSS("input[placeholder*='Search' i]"),
}

// Planner turns a parsed task into an ordered workflow. Plans are static
// per intent; the decision model refines individual steps at execution
// time when the static selectors come up empty.
type Planner struct{}

// NewPlanner creates a Planner.
func NewPlanner() *Planner { return &Planner{} }

// Plan builds the workflow for a parse result. The result must be complete
// (no missing entities).
func (p *Planner) Plan(r ParseResult) ([]domain.WorkflowStep, error) {
	switch r.Intent {
	case domain.IntentSearch:
		return p.planSearch(r), nil
	case domain.IntentMessaging:
		return p.planMessaging(r), nil
	case domain.IntentEmail:
		return p.planEmail(r), nil
	case domain.IntentNavigation:
		return p.planNavigation(r), nil
	case domain.IntentOrdering:
		return p.planOrdering(r), nil
	default:
		return nil, domain.NewDomainError("planner.plan", domain.ErrInvalidInput,
			fmt.Sprintf("no workflow for intent %q", r.Intent))
	}
}

func (p *Planner) planSearch(r ParseResult) []domain.WorkflowStep {
	return []domain.WorkflowStep{
		{
			Name:   "open search engine",
			Kind:   domain.StepNavigate,
			Target: r.Site,
			NewTab: true,
		},
		{
			Name:      "type query",
			Kind:      domain.StepInteract,
			Target:    "search box",
			Selectors: searchBoxCandidates,
			Effect:    domain.EffectType,
			Text:      r.Entities.Query,
		},
		{
			Name:      "submit search",
			Kind:      domain.StepInteract,
			Target:    "search box",
			Selectors: searchBoxCandidates,
			Effect:    domain.EffectSubmit,
		},
		{
			Name:        "confirm results",
			Kind:        domain.StepVerify,
			Target:      "results",
			Selectors:   resultsCandidates,
			URLContains: "q=",
		},
	}
}

func (p *Planner) planMessaging(r ParseResult) []domain.WorkflowStep {
	return []domain.WorkflowStep{
		{
			Name:   "open platform",
			Kind:   domain.StepNavigate,
			Target: r.Site,
			NewTab: true,
		},
		{
			Name:      "find contact search",
			Kind:      domain.StepInteract,
			Target:    "contact search",
			Selectors: contactSearchCandidates,
			Effect:    domain.EffectType,
			Text:      r.Entities.Recipient,
		},
		{
			Name:      "open conversation",
			Kind:      domain.StepInteract,
			Target:    "contact entry",
			Selectors: contactEntryCandidates,
			Effect:    domain.EffectClick,
		},
		{
			Name:      "type message",
			Kind:      domain.StepInteract,
			Target:    "message input",
			Selectors: messageInputCandidates,
			Effect:    domain.EffectType,
			Text:      r.Entities.Message,
		},
		{
			Name:        "send message",
			Kind:        domain.StepInteract,
			Target:      "message input",
			Selectors:   messageInputCandidates,
			Effect:      domain.EffectSubmit,
			Destructive: true,
		},
	}
}

func (p *Planner) planEmail(r ParseResult) []domain.WorkflowStep {
	steps := []domain.WorkflowStep{
		{
			Name:   "open mail",
			Kind:   domain.StepNavigate,
			Target: r.Site,
			NewTab: true,
		},
		{
			Name:      "open compose",
			Kind:      domain.StepInteract,
			Target:    "compose button",
			Selectors: composeButtonCandidates,
			Effect:    domain.EffectClick,
		},
		{
			Name:      "fill recipient",
			Kind:      domain.StepInteract,
			Target:    "to field",
			Selectors: mailToCandidates,
			Effect:    domain.EffectType,
			Text:      r.Entities.Recipient,
		},
	}
	if r.Entities.Subject != "" {
		steps = append(steps, domain.WorkflowStep{
			Name:      "fill subject",
			Kind:      domain.StepInteract,
			Target:    "subject field",
			Selectors: mailSubjectCandidates,
			Effect:    domain.EffectType,
			Text:      r.Entities.Subject,
		})
	}
	if r.Entities.Message != "" {
		steps = append(steps, domain.WorkflowStep{
			Name:      "fill body",
			Kind:      domain.StepInteract,
			Target:    "body field",
			Selectors: mailBodyCandidates,
			Effect:    domain.EffectType,
			Text:      r.Entities.Message,
		})
	}
	steps = append(steps, domain.WorkflowStep{
		Name:        "send email",
		Kind:        domain.StepInteract,
		Target:      "body field",
		Selectors:   mailBodyCandidates,
		Effect:      domain.EffectSubmit,
		Destructive: true,
	})
	return steps
}

func (p *Planner) planNavigation(r ParseResult) []domain.WorkflowStep {
	return []domain.WorkflowStep{
		{
			Name:   "open site",
			Kind:   domain.StepNavigate,
			Target: r.Site,
			NewTab: true,
		},
		{
			Name:        "confirm arrival",
			Kind:        domain.StepVerify,
			Target:      "page",
			URLContains: domainMarker(r.Site),
		},
	}
}

func (p *Planner) planOrdering(r ParseResult) []domain.WorkflowStep {
	return []domain.WorkflowStep{
		{
			Name:   "open store",
			Kind:   domain.StepNavigate,
			Target: r.Site,
			NewTab: true,
		},
		{
			Name:      "search product",
			Kind:      domain.StepInteract,
			Target:    "product search",
			Selectors: productSearchCandidates,
			Effect:    domain.EffectType,
			Text:      r.Entities.Item,
		},
		{
			Name:      "submit product search",
			Kind:      domain.StepInteract,
			Target:    "product search",
			Selectors: productSearchCandidates,
			Effect:    domain.EffectSubmit,
		},
		{
			// Stores differ too much past the results page for a static
			// plan; hand the rest to the decision model.
			Name: "select product",
			Kind: domain.StepDecide,
			Goal: fmt.Sprintf("pick the best matching result for %q and add it to the cart", r.Entities.Item),
		},
		{
			Name:        "place order",
			Kind:        domain.StepDecide,
			Goal:        "proceed to checkout and place the order",
			Destructive: true,
		},
	}
}

// domainMarker extracts the bare host for URL verification, so that a
// redirect to a regional or www variant still verifies.
func domainMarker(rawURL string) string {
	host, err := domainOf(normalizeURL(rawURL))
	if err != nil {
		return rawURL
	}
	return strings.TrimPrefix(host, "www.")
}
