package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrNoCandidate      = fmt.Errorf("no candidate agent exceeded the confidence threshold")
	ErrAgentNotFound    = fmt.Errorf("agent not found")
	ErrAgentDuplicate   = fmt.Errorf("agent already registered")
	ErrAgentUnavailable = fmt.Errorf("agent has no live binding")
	ErrAgentTimeout     = fmt.Errorf("agent invocation timed out")
	ErrAgentExecution   = fmt.Errorf("agent execution failed")
	ErrEscalationCycle  = fmt.Errorf("escalation target already visited in chain")
	ErrEscalationDepth  = fmt.Errorf("escalation depth limit reached")
	ErrSessionNotFound  = fmt.Errorf("session not found")
	ErrStoreUnavailable = fmt.Errorf("session store unavailable")
	ErrCompletion       = fmt.Errorf("completion provider error")
	ErrCapability       = fmt.Errorf("capability call failed")
	ErrRateLimit        = fmt.Errorf("rate limit exceeded")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrInvalidInput     = fmt.Errorf("invalid input")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Scheduler.Dispatch")
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

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeNoCandidate      ErrorCode = "NO_CANDIDATE"
	CodeAgentNotFound    ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentDuplicate   ErrorCode = "AGENT_DUPLICATE"
	CodeAgentUnavailable ErrorCode = "AGENT_UNAVAILABLE"
	CodeAgentTimeout     ErrorCode = "AGENT_TIMEOUT"
	CodeAgentExecution   ErrorCode = "AGENT_EXECUTION"
	CodeEscalationCycle  ErrorCode = "ESCALATION_CYCLE"
	CodeEscalationDepth  ErrorCode = "ESCALATION_DEPTH"
	CodeSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	CodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	CodeCompletion       ErrorCode = "COMPLETION_ERROR"
	CodeCapability       ErrorCode = "CAPABILITY_ERROR"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNoCandidate:      CodeNoCandidate,
	ErrAgentNotFound:    CodeAgentNotFound,
	ErrAgentDuplicate:   CodeAgentDuplicate,
	ErrAgentUnavailable: CodeAgentUnavailable,
	ErrAgentTimeout:     CodeAgentTimeout,
	ErrAgentExecution:   CodeAgentExecution,
	ErrEscalationCycle:  CodeEscalationCycle,
	ErrEscalationDepth:  CodeEscalationDepth,
	ErrSessionNotFound:  CodeSessionNotFound,
	ErrStoreUnavailable: CodeStoreUnavailable,
	ErrCompletion:       CodeCompletion,
	ErrCapability:       CodeCapability,
	ErrRateLimit:        CodeRateLimit,
	ErrConfigLoad:       CodeConfigLoad,
	ErrInvalidInput:     CodeInvalidInput,
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

// IsRetryableError reports whether err is a transient error that may succeed
// on a later request. Used by observability consumers, never for in-flight
// retries: an invocation performs at most one completion round-trip.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrStoreUnavailable)
}
