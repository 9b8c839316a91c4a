package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer. Step-local sentinels (element not
// found, interaction failed, navigation timeout) are recoverable: the
// orchestrator hands them to the recovery coordinator instead of failing the
// task. ErrBrowserUnavailable is systemic and fails the task immediately.
var (
	ErrElementNotFound    = fmt.Errorf("element not found")
	ErrInteractionFailed  = fmt.Errorf("interaction failed")
	ErrNavigationTimeout  = fmt.Errorf("navigation did not converge")
	ErrDestructiveBlocked = fmt.Errorf("destructive action blocked")
	ErrBrowserUnavailable = fmt.Errorf("browser unavailable")

	ErrInputRequired     = fmt.Errorf("operator input required")
	ErrRecoveryExhausted = fmt.Errorf("recovery attempts exhausted")
	ErrTaskDeadline      = fmt.Errorf("task deadline exceeded")
	ErrTaskAborted       = fmt.Errorf("task aborted")
	ErrNoPendingTask     = fmt.Errorf("no task awaiting input")
	ErrInvalidInput      = fmt.Errorf("invalid input")
	ErrDecisionFailed    = fmt.Errorf("decision model failed")
	ErrConfigLoad        = fmt.Errorf("failed to load configuration")
	ErrRunNotFound       = fmt.Errorf("task run not found")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g., "Locator.Locate")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsStepRecoverable reports whether err is a step-local failure the recovery
// coordinator can act on. Systemic errors (browser unavailable, deadline,
// abort) are not recoverable and terminate the task.
func IsStepRecoverable(err error) bool {
	return errors.Is(err, ErrElementNotFound) ||
		errors.Is(err, ErrInteractionFailed) ||
		errors.Is(err, ErrNavigationTimeout)
}

// ErrorCode is a machine-parseable error category for monitoring and logging.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeElementNotFound    ErrorCode = "ELEMENT_NOT_FOUND"
	CodeInteractionFailed  ErrorCode = "INTERACTION_FAILED"
	CodeNavigationTimeout  ErrorCode = "NAVIGATION_TIMEOUT"
	CodeDestructiveBlocked ErrorCode = "DESTRUCTIVE_BLOCKED"
	CodeBrowserUnavailable ErrorCode = "BROWSER_UNAVAILABLE"
	CodeInputRequired      ErrorCode = "INPUT_REQUIRED"
	CodeRecoveryExhausted  ErrorCode = "RECOVERY_EXHAUSTED"
	CodeTaskDeadline       ErrorCode = "TASK_DEADLINE"
	CodeTaskAborted        ErrorCode = "TASK_ABORTED"
	CodeNoPendingTask      ErrorCode = "NO_PENDING_TASK"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeDecisionFailed     ErrorCode = "DECISION_FAILED"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeRunNotFound        ErrorCode = "RUN_NOT_FOUND"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrElementNotFound:    CodeElementNotFound,
	ErrInteractionFailed:  CodeInteractionFailed,
	ErrNavigationTimeout:  CodeNavigationTimeout,
	ErrDestructiveBlocked: CodeDestructiveBlocked,
	ErrBrowserUnavailable: CodeBrowserUnavailable,
	ErrInputRequired:      CodeInputRequired,
	ErrRecoveryExhausted:  CodeRecoveryExhausted,
	ErrTaskDeadline:       CodeTaskDeadline,
	ErrTaskAborted:        CodeTaskAborted,
	ErrNoPendingTask:      CodeNoPendingTask,
	ErrInvalidInput:       CodeInvalidInput,
	ErrDecisionFailed:     CodeDecisionFailed,
	ErrConfigLoad:         CodeConfigLoad,
	ErrRunNotFound:        CodeRunNotFound,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}
