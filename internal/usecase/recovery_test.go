package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webpilot/internal/domain"
)

func chooseLabel(label string) func(string, []string) int {
	return func(_ string, options []string) int {
		for i, opt := range options {
			if opt == label {
				return i
			}
		}
		return -1
	}
}

func TestRecovery_OperatorPicksRetry(t *testing.T) {
	ui := &fakeUI{chooseFn: chooseLabel("retry the step")}
	r := NewRecovery(ui, 3, "", testLogger())

	d, err := r.Decide(context.Background(), domain.WorkflowStep{Name: "type query"}, fmt.Errorf("boom"), 0)

	require.NoError(t, err)
	assert.Equal(t, domain.PolicyRetry, d.Policy)
	assert.NotEmpty(t, ui.notices, "failure is announced before the menu")
}

func TestRecovery_MenuDropsRetryWhenBudgetSpent(t *testing.T) {
	var seen []string
	ui := &fakeUI{
		chooseFn: func(_ string, options []string) int {
			seen = options
			return 0
		},
		answers: []string{"#alt-search"},
	}
	r := NewRecovery(ui, 3, "", testLogger())

	d, err := r.Decide(context.Background(), domain.WorkflowStep{Name: "type query"}, fmt.Errorf("boom"), 3)

	require.NoError(t, err)
	assert.NotContains(t, seen, "retry the step")
	require.Len(t, seen, 4)
	assert.Equal(t, domain.PolicySubstitute, d.Policy, "substitute moves to the top without retry")
	assert.Equal(t, map[string]string{"selector": "#alt-search"}, d.Substituted)
}

func TestRecovery_StepBudgetOverridesDefault(t *testing.T) {
	var seen []string
	ui := &fakeUI{chooseFn: func(_ string, options []string) int {
		seen = options
		return len(options) - 1
	}}
	r := NewRecovery(ui, 3, "", testLogger())
	step := domain.WorkflowStep{Name: "fragile", RetryBudget: 1}

	_, err := r.Decide(context.Background(), step, fmt.Errorf("boom"), 1)

	require.NoError(t, err)
	assert.NotContains(t, seen, "retry the step", "step budget of 1 is already spent")
}

func TestRecovery_SubstituteSelectorPrompted(t *testing.T) {
	ui := &fakeUI{
		chooseFn: chooseLabel("try an alternative (link or selector)"),
		answers:  []string{"input[name='search']"},
	}
	r := NewRecovery(ui, 3, "", testLogger())
	step := domain.WorkflowStep{Name: "type query", Kind: domain.StepInteract, Target: "search box"}

	d, err := r.Decide(context.Background(), step, fmt.Errorf("boom"), 0)

	require.NoError(t, err)
	assert.Equal(t, domain.PolicySubstitute, d.Policy)
	assert.Equal(t, map[string]string{"selector": "input[name='search']"}, d.Substituted)
}

func TestRecovery_SubstituteLinkDetected(t *testing.T) {
	ui := &fakeUI{
		chooseFn: chooseLabel("try an alternative (link or selector)"),
		answers:  []string{"https://web.whatsapp.com"},
	}
	r := NewRecovery(ui, 3, "", testLogger())
	step := domain.WorkflowStep{Name: "find contact search", Kind: domain.StepInteract, Target: "contact search"}

	d, err := r.Decide(context.Background(), step, fmt.Errorf("boom"), 0)

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"url": "https://web.whatsapp.com"}, d.Substituted)
}

func TestRecovery_SubstituteOnNavigateStepIsAlwaysURL(t *testing.T) {
	ui := &fakeUI{
		chooseFn: chooseLabel("try an alternative (link or selector)"),
		answers:  []string{"web.telegram.org"},
	}
	r := NewRecovery(ui, 3, "", testLogger())
	step := domain.WorkflowStep{Name: "open platform", Kind: domain.StepNavigate, Target: "https://telegram.org"}

	d, err := r.Decide(context.Background(), step, fmt.Errorf("boom"), 0)

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"url": "web.telegram.org"}, d.Substituted)
}

func TestRecovery_ManualWalksThroughAndBlocks(t *testing.T) {
	ui := &fakeUI{
		chooseFn: chooseLabel("do it manually, then continue"),
		answers:  []string{""},
	}
	r := NewRecovery(ui, 3, "", testLogger())
	step := domain.WorkflowStep{
		Name:   "type message",
		Kind:   domain.StepInteract,
		Target: "message input",
		Effect: domain.EffectType,
		Text:   "hello",
	}

	d, err := r.Decide(context.Background(), step, fmt.Errorf("boom"), 0)

	require.NoError(t, err)
	assert.Equal(t, domain.PolicyManual, d.Policy)
	require.Len(t, ui.notices, 2, "failure notice plus guidance")
	assert.Contains(t, ui.notices[1], "Type: hello")
	assert.NotEmpty(t, ui.prompts, "must wait for the operator to finish")
}

func TestRecovery_AutoPolicySkipsPrompting(t *testing.T) {
	ui := &fakeUI{}
	r := NewRecovery(ui, 3, string(domain.PolicySkip), testLogger())

	d, err := r.Decide(context.Background(), domain.WorkflowStep{Name: "x"}, fmt.Errorf("boom"), 0)

	require.NoError(t, err)
	assert.Equal(t, domain.PolicySkip, d.Policy)
	assert.Empty(t, ui.notices)
	assert.Empty(t, ui.prompts)
}

func TestRecovery_AutoRetryDegradesToSkipWhenSpent(t *testing.T) {
	r := NewRecovery(&fakeUI{}, 2, string(domain.PolicyRetry), testLogger())

	d, err := r.Decide(context.Background(), domain.WorkflowStep{Name: "x"}, fmt.Errorf("boom"), 2)

	require.NoError(t, err)
	assert.Equal(t, domain.PolicySkip, d.Policy)
}

func TestRecovery_AutoRetryWithinBudget(t *testing.T) {
	r := NewRecovery(&fakeUI{}, 2, string(domain.PolicyRetry), testLogger())

	d, err := r.Decide(context.Background(), domain.WorkflowStep{Name: "x"}, fmt.Errorf("boom"), 1)

	require.NoError(t, err)
	assert.Equal(t, domain.PolicyRetry, d.Policy)
}

func TestManualGuidanceShapes(t *testing.T) {
	nav := manualGuidance(domain.WorkflowStep{Kind: domain.StepNavigate, Target: "https://example.com"})
	assert.Contains(t, nav, "go to https://example.com")

	click := manualGuidance(domain.WorkflowStep{Kind: domain.StepInteract, Effect: domain.EffectClick, Target: "compose button"})
	assert.Contains(t, click, "Click it")

	submit := manualGuidance(domain.WorkflowStep{Kind: domain.StepInteract, Effect: domain.EffectSubmit, Target: "message input"})
	assert.Contains(t, submit, "press Enter")
}

func TestLooksLikeLink(t *testing.T) {
	assert.True(t, looksLikeLink("https://example.com"))
	assert.True(t, looksLikeLink("example.com/path"))
	assert.False(t, looksLikeLink("input[name='q']"))
	assert.False(t, looksLikeLink("div > span.label"))
}
