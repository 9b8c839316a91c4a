package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"webpilot/internal/domain"
)

// Orchestrator drives one task at a time through
// parsing -> planning -> executing and into a terminal state. A task that
// needs operator input suspends with a typed question; Resume feeds the
// answer back and continues from the exact step it left off.
type Orchestrator struct {
	parser     *Parser
	planner    *Planner
	locator    *Locator
	interactor *Interactor
	navigator  *Navigator
	recovery   *Recovery
	driver     domain.Driver
	model      domain.DecisionModel
	store      domain.RunStore // nil disables history
	logger     *slog.Logger

	locateTimeout time.Duration
	taskDeadline  time.Duration

	mu      sync.Mutex
	pending *pendingTask
}

// pendingTask is the suspended or in-flight execution state. It survives a
// RequiresInput suspension so Resume can pick up mid-workflow.
type pendingTask struct {
	task     domain.TaskContext
	parse    ParseResult
	steps    []domain.WorkflowStep
	index    int // next step to execute
	question domain.Question
	retries  map[int]int
	// confirmed marks the current step's destructive gate as passed.
	confirmed bool
}

// OrchestratorConfig bundles the engine tunables.
type OrchestratorConfig struct {
	LocateTimeout time.Duration
	TaskDeadline  time.Duration
}

// NewOrchestrator wires the task engine. store may be nil.
func NewOrchestrator(
	parser *Parser,
	planner *Planner,
	locator *Locator,
	interactor *Interactor,
	navigator *Navigator,
	recovery *Recovery,
	driver domain.Driver,
	model domain.DecisionModel,
	store domain.RunStore,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		parser:        parser,
		planner:       planner,
		locator:       locator,
		interactor:    interactor,
		navigator:     navigator,
		recovery:      recovery,
		driver:        driver,
		model:         model,
		store:         store,
		logger:        logger,
		locateTimeout: cfg.LocateTimeout,
		taskDeadline:  cfg.TaskDeadline,
	}
}

// Run starts a new task from free-form operator text. Starting a task
// discards any previously suspended one.
func (o *Orchestrator) Run(ctx context.Context, input string) (domain.TaskResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p := &pendingTask{
		task: domain.TaskContext{
			TaskID:    ulid.Make().String(),
			Input:     input,
			StartedAt: time.Now(),
			Located:   make(map[string]domain.LocatedElement),
		},
		retries: make(map[int]int),
	}
	o.pending = p

	o.logger.Info("task started", slog.String("task_id", p.task.TaskID), slog.String("input", input))

	p.parse = o.parser.Parse(input)
	p.task.Intent = p.parse.Intent
	p.task.Site = p.parse.Site
	p.task.Entities = p.parse.Entities

	if p.parse.Missing != nil {
		return o.suspend(p, *p.parse.Missing), nil
	}
	return o.planAndExecute(ctx, p)
}

// Resume answers the question a suspended task asked and continues it.
func (o *Orchestrator) Resume(ctx context.Context, answer string) (domain.TaskResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p := o.pending
	if p == nil {
		return domain.TaskResult{}, domain.NewDomainError("orchestrator.resume", domain.ErrNoPendingTask, "")
	}

	switch p.question.Kind {
	case domain.QuestionClarify:
		p.parse = o.parser.Reclassify(p.task.Input, answer)
		p.task.Intent = p.parse.Intent
		p.task.Site = p.parse.Site
		p.task.Entities = p.parse.Entities
		if p.parse.Missing != nil {
			return o.suspend(p, *p.parse.Missing), nil
		}
		return o.planAndExecute(ctx, p)

	case domain.QuestionEntity:
		p.parse = o.parser.ApplyAnswer(p.parse, p.question.Field, answer)
		p.task.Site = p.parse.Site
		p.task.Entities = p.parse.Entities
		if p.parse.Missing != nil {
			return o.suspend(p, *p.parse.Missing), nil
		}
		return o.planAndExecute(ctx, p)

	case domain.QuestionConfirm:
		if !isAffirmative(answer) {
			step := p.steps[p.index]
			err := domain.NewDomainError("orchestrator.confirm", domain.ErrDestructiveBlocked,
				fmt.Sprintf("operator declined %q", step.Name))
			p.task.Completed = append(p.task.Completed, domain.StepRecord{
				Step: step, Status: domain.StepFailed, Error: err.Error(),
			})
			return o.finish(ctx, p, domain.StateFailed, err), nil
		}
		p.confirmed = true
		return o.executeFrom(ctx, p)

	default:
		return domain.TaskResult{}, domain.NewDomainError("orchestrator.resume", domain.ErrInvalidInput,
			fmt.Sprintf("unanswerable question kind %q", p.question.Kind))
	}
}

// Pending reports whether a suspended task is waiting for input, and the
// question it asked.
func (o *Orchestrator) Pending() (domain.Question, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil || o.pending.question.Kind == "" {
		return domain.Question{}, false
	}
	return o.pending.question, true
}

func (o *Orchestrator) planAndExecute(ctx context.Context, p *pendingTask) (domain.TaskResult, error) {
	steps, err := o.planner.Plan(p.parse)
	if err != nil {
		return o.finish(ctx, p, domain.StateFailed, err), nil
	}
	p.steps = steps
	p.index = 0

	o.logger.Info("workflow planned",
		slog.String("task_id", p.task.TaskID),
		slog.String("intent", string(p.task.Intent)),
		slog.Int("steps", len(steps)))

	return o.executeFrom(ctx, p)
}

// executeFrom runs steps strictly in order starting at p.index. It returns
// either a terminal result or a RequiresInput suspension; recoverable step
// failures are routed through the recovery coordinator in place.
func (o *Orchestrator) executeFrom(ctx context.Context, p *pendingTask) (domain.TaskResult, error) {
	deadline := p.task.StartedAt.Add(o.taskDeadline)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for p.index < len(p.steps) {
		// Cancellation is honored at step boundaries only; a step in
		// flight finishes its current technique first.
		if err := runCtx.Err(); err != nil {
			return o.finish(ctx, p, domain.StateFailed, o.boundaryError(err, deadline)), nil
		}

		step := p.steps[p.index]

		if step.Destructive && !p.confirmed {
			return o.suspend(p, domain.Question{
				Kind:    domain.QuestionConfirm,
				Field:   step.Name,
				Text:    confirmText(step, p.task),
				Options: []string{"yes", "no"},
			}), nil
		}

		rec := o.runStep(runCtx, p, step)
		if rec.Status == domain.StepCompleted {
			p.task.Completed = append(p.task.Completed, rec.StepRecord)
			p.index++
			p.confirmed = false
			continue
		}

		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			p.task.Completed = append(p.task.Completed, rec.StepRecord)
			return o.finish(ctx, p, domain.StateFailed,
				domain.NewDomainError("orchestrator.execute", domain.ErrTaskDeadline, step.Name)), nil
		case errors.Is(rec.err, domain.ErrInputRequired):
			// The model proposed something irreversible the plan did not
			// mark. Gate it like a planned destructive step: the operator
			// confirms, and the re-run sees a sanctioned step.
			p.steps[p.index].Destructive = true
			return o.suspend(p, domain.Question{
				Kind:    domain.QuestionConfirm,
				Field:   step.Name,
				Text:    confirmText(p.steps[p.index], p.task),
				Options: []string{"yes", "no"},
			}), nil
		case !rec.recoverable:
			p.task.Completed = append(p.task.Completed, rec.StepRecord)
			return o.finish(ctx, p, domain.StateFailed, rec.err), nil
		}

		decision, err := o.recovery.Decide(runCtx, step, rec.err, p.retries[p.index])
		if err != nil {
			p.task.Completed = append(p.task.Completed, rec.StepRecord)
			return o.finish(ctx, p, domain.StateFailed, err), nil
		}

		switch decision.Policy {
		case domain.PolicyRetry:
			// The retried step re-locates its element; reusing the handle
			// that just failed would only fail the same way.
			delete(p.task.Located, step.Target)
			p.retries[p.index]++
		case domain.PolicySubstitute:
			// A substitute link for a non-navigation step means "go here
			// first, then try the step again".
			if u := decision.Substituted["url"]; u != "" && step.Kind != domain.StepNavigate {
				if err := o.navigator.Goto(runCtx, u, TabReuse); err == nil {
					p.task.InvalidateHandles()
				}
			}
			delete(p.task.Located, step.Target)
			p.steps[p.index] = applySubstitution(step, decision.Substituted)
			p.retries[p.index]++
		case domain.PolicyManual:
			// The operator completed the step by hand; anything may have
			// changed on the page, so stale handles are dropped.
			rec.Status = domain.StepCompleted
			rec.Error = ""
			p.task.Completed = append(p.task.Completed, rec.StepRecord)
			p.task.InvalidateHandles()
			p.index++
			p.confirmed = false
		case domain.PolicySkip:
			rec.Status = domain.StepUnresolved
			p.task.Completed = append(p.task.Completed, rec.StepRecord)
			p.index++
			p.confirmed = false
		default: // abort
			p.task.Completed = append(p.task.Completed, rec.StepRecord)
			return o.finish(ctx, p, domain.StateFailed,
				domain.NewDomainError("orchestrator.execute", domain.ErrTaskAborted, step.Name)), nil
		}
	}

	return o.finish(ctx, p, domain.StateCompleted, nil), nil
}

// stepOutcome extends the domain record with routing info the orchestrator
// needs but the log does not.
type stepOutcome struct {
	domain.StepRecord
	err         error
	recoverable bool
}

// runStep executes one step and classifies the outcome.
func (o *Orchestrator) runStep(ctx context.Context, p *pendingTask, step domain.WorkflowStep) stepOutcome {
	start := time.Now()
	attempts, err := o.dispatch(ctx, p, step)

	out := stepOutcome{StepRecord: domain.StepRecord{
		Step:     step,
		Status:   domain.StepCompleted,
		Attempts: attempts,
		Duration: time.Since(start),
	}}
	if err != nil {
		out.Status = domain.StepFailed
		out.Error = err.Error()
		out.err = err
		out.recoverable = domain.IsStepRecoverable(err)
		o.logger.Warn("step failed",
			slog.String("task_id", p.task.TaskID),
			slog.String("step", step.Name),
			slog.String("error", err.Error()))
	} else {
		o.logger.Info("step completed",
			slog.String("task_id", p.task.TaskID),
			slog.String("step", step.Name),
			slog.Duration("took", out.Duration))
	}
	return out
}

func (o *Orchestrator) dispatch(ctx context.Context, p *pendingTask, step domain.WorkflowStep) ([]domain.Attempt, error) {
	switch step.Kind {
	case domain.StepNavigate:
		policy := TabReuse
		if step.NewTab {
			policy = TabPreserve
		}
		if err := o.navigator.Goto(ctx, step.Target, policy); err != nil {
			return nil, err
		}
		p.task.InvalidateHandles()
		return nil, nil

	case domain.StepLocate:
		_, err := o.locateCached(ctx, p, step.Target, step.Selectors)
		return nil, err

	case domain.StepInteract:
		el, err := o.locateCached(ctx, p, step.Target, step.Selectors)
		if err != nil {
			return nil, err
		}
		switch step.Effect {
		case domain.EffectType:
			return o.interactor.TypeInto(ctx, el, step.Text)
		case domain.EffectClick:
			return o.interactor.Click(ctx, el)
		case domain.EffectSubmit:
			return o.interactor.Submit(ctx, el, o.locator)
		default:
			return nil, domain.NewDomainError("orchestrator.step", domain.ErrInvalidInput,
				fmt.Sprintf("unknown effect %q", step.Effect))
		}

	case domain.StepVerify:
		return nil, o.verify(ctx, step)

	case domain.StepDecide:
		return o.runDecide(ctx, p, step)

	default:
		return nil, domain.NewDomainError("orchestrator.step", domain.ErrInvalidInput,
			fmt.Sprintf("unknown step kind %q", step.Kind))
	}
}

// locateCached reuses a handle located earlier on the same page, re-locating
// only after a navigation invalidated it.
func (o *Orchestrator) locateCached(ctx context.Context, p *pendingTask, name string, candidates []domain.Selector) (domain.LocatedElement, error) {
	if el, ok := p.task.Located[name]; ok {
		return el, nil
	}
	el, err := o.locator.Locate(ctx, candidates, name, o.locateTimeout)
	if err != nil {
		return domain.LocatedElement{}, err
	}
	p.task.Located[name] = el
	return el, nil
}

// verify checks the page converged where the plan expects: the address
// carries the marker, or one of the landmark selectors is present.
func (o *Orchestrator) verify(ctx context.Context, step domain.WorkflowStep) error {
	if step.URLContains != "" {
		loc, err := o.driver.Location(ctx)
		if err != nil {
			return domain.WrapOp("orchestrator.verify", err)
		}
		if strings.Contains(loc, step.URLContains) {
			return nil
		}
	}
	if len(step.Selectors) > 0 {
		_, err := o.locator.Locate(ctx, step.Selectors, step.Target, o.locateTimeout)
		return err
	}
	return domain.NewDomainError("orchestrator.verify", domain.ErrElementNotFound,
		fmt.Sprintf("%s not confirmed", step.Target))
}

// runDecide hands the page to the decision model and executes its proposals
// in preference order until one succeeds. Destructive proposals are only
// eligible after the step's confirmation gate passed.
func (o *Orchestrator) runDecide(ctx context.Context, p *pendingTask, step domain.WorkflowStep) ([]domain.Attempt, error) {
	snap, err := o.driver.Snapshot(ctx)
	if err != nil {
		return nil, domain.WrapOp("orchestrator.decide", err)
	}

	actions, err := o.model.Decide(ctx, *snap, step.Goal)
	if err != nil {
		return nil, domain.NewDomainError("orchestrator.decide", domain.ErrDecisionFailed, err.Error())
	}
	if len(actions) == 0 {
		return nil, domain.NewDomainError("orchestrator.decide", domain.ErrDecisionFailed,
			"model proposed no actions")
	}

	var attempts []domain.Attempt
	for _, action := range actions {
		if action.Destructive && !step.Destructive {
			// The model wants something the plan did not sanction; the
			// operator gets to decide before anything executes.
			return attempts, domain.NewDomainError("orchestrator.decide", domain.ErrInputRequired,
				fmt.Sprintf("destructive proposal %q needs confirmation", action.Kind))
		}
		err := o.applyAction(ctx, p, action)
		attempts = append(attempts, domain.Attempt{
			Technique: "model:" + string(action.Kind),
			OK:        err == nil,
			Error:     errText(err),
		})
		if err == nil {
			return attempts, nil
		}
	}
	return attempts, domain.NewDomainError("orchestrator.decide", domain.ErrInteractionFailed,
		"all proposed actions failed")
}

func (o *Orchestrator) applyAction(ctx context.Context, p *pendingTask, action domain.ProposedAction) error {
	el := domain.LocatedElement{
		Name:     string(action.Kind) + " target",
		Selector: domain.CSS(action.SelectorHint),
		FoundAt:  time.Now(),
	}

	switch action.Kind {
	case domain.ActionNavigate:
		if err := o.navigator.Goto(ctx, action.Parameters["url"], TabReuse); err != nil {
			return err
		}
		p.task.InvalidateHandles()
		return nil
	case domain.ActionClick:
		_, err := o.interactor.Click(ctx, el)
		return err
	case domain.ActionTypeText:
		// Typing "" would clear the field and read back clean, turning a
		// parameterless proposal into a silent no-op.
		text := action.Parameters["text"]
		if text == "" {
			return domain.NewDomainError("orchestrator.action", domain.ErrInvalidInput,
				"type proposal carries no text")
		}
		_, err := o.interactor.TypeInto(ctx, el, text)
		return err
	case domain.ActionSubmit:
		_, err := o.interactor.Submit(ctx, el, o.locator)
		return err
	case domain.ActionWait:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	default:
		return domain.NewDomainError("orchestrator.action", domain.ErrInvalidInput,
			fmt.Sprintf("unknown action kind %q", action.Kind))
	}
}

func (o *Orchestrator) suspend(p *pendingTask, q domain.Question) domain.TaskResult {
	p.question = q
	o.logger.Info("task requires input",
		slog.String("task_id", p.task.TaskID),
		slog.String("kind", string(q.Kind)),
		slog.String("field", q.Field))
	return domain.TaskResult{
		TaskID:   p.task.TaskID,
		State:    domain.StateRequiresInput,
		Question: &q,
		Steps:    p.task.Completed,
	}
}

// finish produces the terminal result, persists the run, and clears the
// pending slot. History failures are logged, never surfaced.
func (o *Orchestrator) finish(ctx context.Context, p *pendingTask, state domain.TaskState, taskErr error) domain.TaskResult {
	o.pending = nil

	result := domain.TaskResult{
		TaskID: p.task.TaskID,
		State:  state,
		Steps:  p.task.Completed,
		Error:  errText(taskErr),
	}

	o.logger.Info("task finished",
		slog.String("task_id", p.task.TaskID),
		slog.String("state", string(state)),
		slog.Int("steps", len(p.task.Completed)))

	if o.store != nil {
		run := domain.TaskRun{
			ID:         p.task.TaskID,
			Input:      p.task.Input,
			Intent:     p.task.Intent,
			Site:       p.task.Site,
			State:      state,
			Error:      result.Error,
			Steps:      p.task.Completed,
			StartedAt:  p.task.StartedAt,
			FinishedAt: time.Now(),
		}
		if err := o.store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
			o.logger.Warn("history write failed",
				slog.String("task_id", p.task.TaskID),
				slog.String("error", err.Error()))
		}
	}
	return result
}

func (o *Orchestrator) boundaryError(ctxErr error, deadline time.Time) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) || !time.Now().Before(deadline) {
		return domain.NewDomainError("orchestrator.execute", domain.ErrTaskDeadline, "")
	}
	return domain.NewDomainError("orchestrator.execute", domain.ErrTaskAborted, ctxErr.Error())
}

// confirmText phrases the destructive-action confirmation for the operator.
func confirmText(step domain.WorkflowStep, task domain.TaskContext) string {
	switch {
	case task.Intent == domain.IntentMessaging:
		return fmt.Sprintf("About to send %q to %s. Proceed? (yes/no)",
			task.Entities.Message, task.Entities.Recipient)
	case task.Intent == domain.IntentEmail:
		return fmt.Sprintf("About to send the email to %s. Proceed? (yes/no)", task.Entities.Recipient)
	case task.Intent == domain.IntentOrdering:
		return fmt.Sprintf("About to place an order for %q. Proceed? (yes/no)", task.Entities.Item)
	default:
		return fmt.Sprintf("Step %q cannot be undone. Proceed? (yes/no)", step.Name)
	}
}

// applySubstitution rewrites a step with the operator's alternative. A URL
// replaces a navigation target; a selector goes to the head of the
// candidate list so it is tried first on the re-run.
func applySubstitution(step domain.WorkflowStep, sub map[string]string) domain.WorkflowStep {
	if u, ok := sub["url"]; ok && u != "" {
		if step.Kind == domain.StepNavigate {
			step.Target = u
		}
	}
	if sel, ok := sub["selector"]; ok && sel != "" {
		step.Selectors = append([]domain.Selector{domain.CSS(sel)}, step.Selectors...)
	}
	return step
}

func isAffirmative(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes", "ok", "confirm", "proceed", "sure":
		return true
	}
	return false
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
