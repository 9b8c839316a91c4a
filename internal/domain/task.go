package domain

import (
	"context"
	"time"
)

// Intent is the task category inferred from the operator's free text.
type Intent string

const (
	IntentMessaging  Intent = "messaging"
	IntentEmail      Intent = "email"
	IntentSearch     Intent = "search"
	IntentNavigation Intent = "navigation"
	IntentOrdering   Intent = "ordering"
	IntentUnknown    Intent = "unknown"
)

// Entities holds the parameters extracted from the task text. Empty fields
// that an intent requires trigger a clarification prompt, never a guess.
type Entities struct {
	Recipient string `json:"recipient,omitempty"`
	Message   string `json:"message,omitempty"`
	Query     string `json:"query,omitempty"`
	URL       string `json:"url,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Item      string `json:"item,omitempty"`
}

// StepKind identifies a workflow step's behavior.
type StepKind string

const (
	StepNavigate StepKind = "navigate"
	StepLocate   StepKind = "locate"
	StepInteract StepKind = "interact"
	StepVerify   StepKind = "verify"
	StepDecide   StepKind = "decide"
)

// InteractionEffect is the intended effect of an interact step.
type InteractionEffect string

const (
	EffectType   InteractionEffect = "type"
	EffectClick  InteractionEffect = "click"
	EffectSubmit InteractionEffect = "submit"
)

// WorkflowStep is one immutable unit of a planned workflow. A workflow is an
// ordered slice of steps built once per task.
type WorkflowStep struct {
	Name        string            `json:"name"`
	Kind        StepKind          `json:"kind"`
	Target      string            `json:"target,omitempty"`    // URL for navigate, element name otherwise
	Selectors   []Selector        `json:"selectors,omitempty"` // priority-ordered candidates
	Effect      InteractionEffect `json:"effect,omitempty"`
	Text        string            `json:"text,omitempty"`         // text to type
	URLContains string            `json:"url_contains,omitempty"` // verify: address marker
	NewTab      bool              `json:"new_tab,omitempty"`      // navigate: prefer a fresh tab
	Destructive bool              `json:"destructive,omitempty"`  // requires operator confirmation
	RetryBudget int               `json:"retry_budget,omitempty"` // 0 = recovery default
	Goal        string            `json:"goal,omitempty"`         // decide: instruction for the model
}

// StepStatus records how a step ended.
type StepStatus string

const (
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
	StepUnresolved StepStatus = "unresolved" // skipped by recovery, marked for the operator
)

// StepRecord is the log entry for one executed step.
type StepRecord struct {
	Step     WorkflowStep  `json:"step"`
	Status   StepStatus    `json:"status"`
	Error    string        `json:"error,omitempty"`
	Attempts []Attempt     `json:"attempts,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Attempt records one technique or candidate tried during a step.
type Attempt struct {
	Technique string `json:"technique"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// TaskContext is the mutable accumulator for one task execution. It is
// created at task start and discarded at completion or abort; tasks run one
// at a time, so it is never shared.
type TaskContext struct {
	TaskID    string       `json:"task_id"`
	Input     string       `json:"input"`
	Intent    Intent       `json:"intent"`
	Site      string       `json:"site,omitempty"`
	Entities  Entities     `json:"entities"`
	StartedAt time.Time    `json:"started_at"`
	Completed []StepRecord `json:"completed,omitempty"`

	// Located handles from earlier steps of the same page. Invalidated
	// (cleared) by every navigation.
	Located map[string]LocatedElement `json:"-"`
}

// InvalidateHandles drops all located-element handles. Called after any
// navigation: stale handles must never survive a page change.
func (c *TaskContext) InvalidateHandles() {
	c.Located = make(map[string]LocatedElement)
}

// TaskState is the orchestrator's state machine position.
type TaskState string

const (
	StateParsing       TaskState = "parsing"
	StatePlanning      TaskState = "planning"
	StateExecuting     TaskState = "executing"
	StateCompleted     TaskState = "completed"
	StateRequiresInput TaskState = "requires_input"
	StateFailed        TaskState = "failed"
)

// QuestionKind types the operator question carried by a RequiresInput result.
type QuestionKind string

const (
	QuestionEntity      QuestionKind = "entity"      // a required entity is missing
	QuestionClarify     QuestionKind = "clarify"     // intent could not be determined
	QuestionConfirm     QuestionKind = "confirm"     // destructive action confirmation
	QuestionAlternative QuestionKind = "alternative" // substitute parameter (URL, selector)
)

// Question is the typed suspend/resume payload: a task that needs operator
// input returns RequiresInput carrying one of these, and the caller supplies
// the answer through Resume.
type Question struct {
	Kind    QuestionKind `json:"kind"`
	Field   string       `json:"field,omitempty"` // entity or parameter name
	Text    string       `json:"text"`            // prompt shown to the operator
	Options []string     `json:"options,omitempty"`
}

// TaskResult is the orchestrator's report after Run or Resume returns.
type TaskResult struct {
	TaskID   string       `json:"task_id"`
	State    TaskState    `json:"state"`
	Question *Question    `json:"question,omitempty"` // set when State == StateRequiresInput
	Steps    []StepRecord `json:"steps,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// RecoveryPolicy names a strategy for continuing after a step failure.
type RecoveryPolicy string

const (
	// PolicyRetry re-runs the failed step unchanged, within the retry budget.
	PolicyRetry RecoveryPolicy = "retry"
	// PolicySubstitute re-runs the step with an operator-supplied parameter.
	PolicySubstitute RecoveryPolicy = "substitute"
	// PolicyManual surfaces step-by-step instructions and suspends
	// automation for the step.
	PolicyManual RecoveryPolicy = "manual"
	// PolicySkip continues the workflow, marking the step unresolved.
	PolicySkip RecoveryPolicy = "skip"
	// PolicyAbort stops the task.
	PolicyAbort RecoveryPolicy = "abort"
)

// RecoveryDecision is produced by the recovery coordinator and consumed once
// by the orchestrator resuming the workflow.
type RecoveryDecision struct {
	Policy RecoveryPolicy `json:"policy"`
	// Substituted parameters for PolicySubstitute: a replacement URL,
	// selector expression, or entity value keyed by parameter name.
	Substituted map[string]string `json:"substituted,omitempty"`
}

// ActionKind identifies a decision-model proposal.
type ActionKind string

const (
	ActionClick    ActionKind = "click"
	ActionTypeText ActionKind = "type"
	ActionNavigate ActionKind = "navigate"
	ActionSubmit   ActionKind = "submit"
	ActionWait     ActionKind = "wait"
)

// ProposedAction is one action suggested by the decision model, in the
// model's preference order. Destructive proposals are never executed without
// explicit operator confirmation.
type ProposedAction struct {
	Kind         ActionKind        `json:"kind"`
	SelectorHint string            `json:"selector_hint,omitempty"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	Destructive  bool              `json:"destructive"`
	Confidence   float64           `json:"confidence"` // 0..1
	Reason       string            `json:"reason,omitempty"`
}

// DecisionModel is the external AI collaborator: given a page snapshot and a
// goal, it proposes an ordered list of actions.
type DecisionModel interface {
	Decide(ctx context.Context, snapshot PageSnapshot, goal string) ([]ProposedAction, error)
	Name() string
}

// TaskRun is the persisted record of one finished task.
type TaskRun struct {
	ID         string       `json:"id"`
	Input      string       `json:"input"`
	Intent     Intent       `json:"intent"`
	Site       string       `json:"site,omitempty"`
	State      TaskState    `json:"state"`
	Error      string       `json:"error,omitempty"`
	Steps      []StepRecord `json:"steps,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// RunStore persists task-run history. Live task state stays in memory; the
// store is diagnostics only, and implementations must never block a task on
// history write failures.
type RunStore interface {
	SaveRun(ctx context.Context, run TaskRun) error
	GetRun(ctx context.Context, id string) (*TaskRun, error)
	ListRuns(ctx context.Context, limit int) ([]TaskRun, error)
}
