package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"webpilot/internal/domain"
)

// recoveryMenu is the fixed option order presented to the operator. Retry
// is dropped from the menu once the step's budget is spent.
var recoveryMenu = []struct {
	label  string
	policy domain.RecoveryPolicy
}{
	{"retry the step", domain.PolicyRetry},
	{"try an alternative (link or selector)", domain.PolicySubstitute},
	{"do it manually, then continue", domain.PolicyManual},
	{"skip this step", domain.PolicySkip},
	{"abort the task", domain.PolicyAbort},
}

// Recovery coordinates the response to a failed workflow step. It owns the
// retry budget and the operator dialogue; the orchestrator only applies the
// decision it returns.
type Recovery struct {
	ui         domain.UserInterface
	logger     *slog.Logger
	budget     int
	autoPolicy domain.RecoveryPolicy
}

// NewRecovery creates a Recovery. budget caps retries per step; autoPolicy,
// when non-empty, answers every failure without prompting.
func NewRecovery(ui domain.UserInterface, budget int, autoPolicy string, logger *slog.Logger) *Recovery {
	if budget < 0 {
		budget = 0
	}
	return &Recovery{
		ui:         ui,
		logger:     logger,
		budget:     budget,
		autoPolicy: domain.RecoveryPolicy(autoPolicy),
	}
}

// Decide picks a recovery policy for a failed step. retries is how many
// times the step has already been retried; fatal errors (browser gone,
// destructive block) never reach this path.
func (r *Recovery) Decide(ctx context.Context, step domain.WorkflowStep, stepErr error, retries int) (domain.RecoveryDecision, error) {
	budget := r.budget
	if step.RetryBudget > 0 {
		budget = step.RetryBudget
	}
	canRetry := retries < budget

	if r.autoPolicy != "" {
		return r.decideAuto(step, canRetry), nil
	}

	r.ui.Notify(fmt.Sprintf("step %q failed: %v", step.Name, stepErr), domain.SeverityWarning)

	options := make([]string, 0, len(recoveryMenu))
	policies := make([]domain.RecoveryPolicy, 0, len(recoveryMenu))
	for _, item := range recoveryMenu {
		if item.policy == domain.PolicyRetry && !canRetry {
			continue
		}
		options = append(options, item.label)
		policies = append(policies, item.policy)
	}

	idx, err := r.ui.Choose(ctx, fmt.Sprintf("How should I proceed with %q?", step.Name), options)
	if err != nil {
		return domain.RecoveryDecision{}, domain.WrapOp("recovery.decide", err)
	}
	if idx < 0 || idx >= len(policies) {
		return domain.RecoveryDecision{Policy: domain.PolicyAbort}, nil
	}

	decision := domain.RecoveryDecision{Policy: policies[idx]}
	switch decision.Policy {
	case domain.PolicySubstitute:
		sub, err := r.promptSubstitute(ctx, step)
		if err != nil {
			return domain.RecoveryDecision{}, err
		}
		decision.Substituted = sub
	case domain.PolicyManual:
		if err := r.walkManual(ctx, step); err != nil {
			return domain.RecoveryDecision{}, err
		}
	}

	r.logger.Info("recovery decision",
		slog.String("step", step.Name),
		slog.String("policy", string(decision.Policy)),
		slog.Int("retries", retries))
	return decision, nil
}

// decideAuto applies the configured unattended policy. An auto retry with a
// spent budget degrades to skip so an unattended run cannot loop forever.
func (r *Recovery) decideAuto(step domain.WorkflowStep, canRetry bool) domain.RecoveryDecision {
	policy := r.autoPolicy
	if policy == domain.PolicyRetry && !canRetry {
		policy = domain.PolicySkip
	}
	r.logger.Info("unattended recovery",
		slog.String("step", step.Name),
		slog.String("policy", string(policy)))
	return domain.RecoveryDecision{Policy: policy}
}

func (r *Recovery) promptSubstitute(ctx context.Context, step domain.WorkflowStep) (map[string]string, error) {
	var text string
	if step.Kind == domain.StepNavigate {
		text = "Alternative link to open:"
	} else {
		text = fmt.Sprintf("Alternative CSS selector for %s (or a link to open first):", step.Target)
	}

	answer, err := r.ui.Prompt(ctx, text)
	if err != nil {
		return nil, domain.WrapOp("recovery.substitute", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, nil
	}

	if step.Kind == domain.StepNavigate || looksLikeLink(answer) {
		return map[string]string{"url": answer}, nil
	}
	return map[string]string{"selector": answer}, nil
}

// walkManual shows the manual path for the step and blocks until the
// operator confirms they finished it.
func (r *Recovery) walkManual(ctx context.Context, step domain.WorkflowStep) error {
	r.ui.Notify(manualGuidance(step), domain.SeverityInfo)
	_, err := r.ui.Prompt(ctx, "Press enter when done (the step will be marked complete).")
	if err != nil {
		return domain.WrapOp("recovery.manual", err)
	}
	return nil
}

// manualGuidance renders operator instructions for completing a step by
// hand in the already-open browser.
func manualGuidance(step domain.WorkflowStep) string {
	var b strings.Builder
	b.WriteString("Manual steps:\n")
	switch step.Kind {
	case domain.StepNavigate:
		fmt.Fprintf(&b, "  1. In the open browser, go to %s\n", step.Target)
		b.WriteString("  2. Wait for the page to finish loading\n")
	case domain.StepInteract:
		switch step.Effect {
		case domain.EffectType:
			fmt.Fprintf(&b, "  1. Click the %s on the page\n", step.Target)
			fmt.Fprintf(&b, "  2. Type: %s\n", step.Text)
		case domain.EffectClick:
			fmt.Fprintf(&b, "  1. Find the %s on the page\n", step.Target)
			b.WriteString("  2. Click it\n")
		case domain.EffectSubmit:
			fmt.Fprintf(&b, "  1. With the %s focused, press Enter\n", step.Target)
			b.WriteString("  2. Or click the send/submit button next to it\n")
		}
	case domain.StepVerify:
		fmt.Fprintf(&b, "  1. Check that the %s is visible\n", step.Target)
	default:
		fmt.Fprintf(&b, "  1. Complete %q by hand\n", step.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}

func looksLikeLink(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") ||
		(strings.Contains(s, ".") && !strings.ContainsAny(s, " []#>"))
}
