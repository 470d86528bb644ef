package domain

import (
	"errors"
	"fmt"
)

// Category sentinels — use with NewSubSystemError for subsystem-specific
// errors; ErrorCodeOf resolves the (sentinel, subsystem) pair to a code.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrLimitReached  = fmt.Errorf("limit reached")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
	ErrStoreFailure  = fmt.Errorf("store operation failed")
)

// Sentinel errors for the engine.
var (
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrMaxIterations    = fmt.Errorf("orchestrator reached max iterations")
	ErrRateLimit        = fmt.Errorf("rate limit exceeded")
	ErrPlanRejected     = fmt.Errorf("plan rejected by validation")
	ErrJobTerminal      = fmt.Errorf("job already in terminal state")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrDecryption       = fmt.Errorf("decryption failed")
	ErrEncryption       = fmt.Errorf("encryption operation failed")
	ErrAuthInvalid      = fmt.Errorf("authentication failed")
	ErrGatewayAuth      = fmt.Errorf("gateway: %w", ErrAuthInvalid)
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Planner.Generate")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "planner", "tool"); used for ErrorCode dispatch
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

// NewSubSystemError creates a DomainError tagged with a subsystem so that
// ErrorCodeOf can map the combination of sentinel + subsystem to a specific
// ErrorCode.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is transient enough that a fallback
// path may still succeed.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrProviderError) || errors.Is(err, ErrPlanRejected)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

// Error codes. Every sentinel maps to exactly one code; subsystem-specific
// codes refine category sentinels for monitoring.
const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeProviderNotFound ErrorCode = "PROVIDER_NOT_FOUND"
	CodeToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	CodeMaxIterations    ErrorCode = "MAX_ITERATIONS"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodePlanRejected     ErrorCode = "PLAN_REJECTED"
	CodeJobTerminal      ErrorCode = "JOB_TERMINAL"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	CodeEncryption       ErrorCode = "ENCRYPTION"
	CodeDecryption       ErrorCode = "DECRYPTION"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"
	CodeGatewayAuth      ErrorCode = "GATEWAY_AUTH"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodeObjectNotFound    ErrorCode = "OBJECT_NOT_FOUND"
	CodeFrameNotFound     ErrorCode = "FRAME_NOT_FOUND"
	CodeConnectorNotFound ErrorCode = "CONNECTOR_NOT_FOUND"
	CodeJobNotFound       ErrorCode = "JOB_NOT_FOUND"
	CodeCanvasNotFound    ErrorCode = "CANVAS_NOT_FOUND"
	CodeTemplateNotFound  ErrorCode = "TEMPLATE_NOT_FOUND"
	CodeJobDuplicate      ErrorCode = "JOB_DUPLICATE"
	CodePlannerTimeout    ErrorCode = "PLANNER_TIMEOUT"
	CodeModelTimeout      ErrorCode = "MODEL_TIMEOUT"
	CodeExtractorTimeout  ErrorCode = "EXTRACTOR_TIMEOUT"
	CodePlanBudget        ErrorCode = "PLAN_BUDGET_EXCEEDED"
	CodeLoopBudget        ErrorCode = "LOOP_BUDGET_EXCEEDED"
	CodeObjectBudget      ErrorCode = "OBJECT_BUDGET_EXCEEDED"
	CodeToolInvalidArgs   ErrorCode = "TOOL_INVALID_ARGS"
	CodePlanInvalid       ErrorCode = "PLAN_INVALID"
	CodeStoreWrite        ErrorCode = "STORE_WRITE"
	CodeStoreRead         ErrorCode = "STORE_READ"

	// Category fallback codes.
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeDuplicate     ErrorCode = "DUPLICATE"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeLimitReached  ErrorCode = "LIMIT_REACHED"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeProviderError ErrorCode = "PROVIDER_ERROR"
	CodeStoreFailure  ErrorCode = "STORE_FAILURE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:      CodeNotFound,
	ErrDuplicate:     CodeDuplicate,
	ErrTimeout:       CodeTimeout,
	ErrLimitReached:  CodeLimitReached,
	ErrInvalidInput:  CodeInvalidInput,
	ErrProviderError: CodeProviderError,
	ErrStoreFailure:  CodeStoreFailure,

	ErrProviderNotFound: CodeProviderNotFound,
	ErrToolNotFound:     CodeToolNotFound,
	ErrMaxIterations:    CodeMaxIterations,
	ErrRateLimit:        CodeRateLimit,
	ErrPlanRejected:     CodePlanRejected,
	ErrJobTerminal:      CodeJobTerminal,
	ErrConfigLoad:       CodeConfigLoad,
	ErrDecryption:       CodeDecryption,
	ErrEncryption:       CodeEncryption,
	ErrAuthInvalid:      CodeAuthInvalid,
	ErrGatewayAuth:      CodeGatewayAuth,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific
// ErrorCodes so monitoring can tell an object miss from a job miss without
// a sentinel per case.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"object":    CodeObjectNotFound,
		"frame":     CodeFrameNotFound,
		"connector": CodeConnectorNotFound,
		"job":       CodeJobNotFound,
		"canvas":    CodeCanvasNotFound,
		"template":  CodeTemplateNotFound,
	},
	ErrDuplicate: {
		"job": CodeJobDuplicate,
	},
	ErrTimeout: {
		"planner":   CodePlannerTimeout,
		"model":     CodeModelTimeout,
		"extractor": CodeExtractorTimeout,
	},
	ErrLimitReached: {
		"plan":         CodePlanBudget,
		"orchestrator": CodeLoopBudget,
		"objects":      CodeObjectBudget,
	},
	ErrInvalidInput: {
		"tool": CodeToolInvalidArgs,
		"plan": CodePlanInvalid,
	},
	ErrStoreFailure: {
		"write": CodeStoreWrite,
		"read":  CodeStoreRead,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors; for
// DomainErrors with a SubSystem it checks subSystemCodeMap first.
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
		if de.SubSystem != "" {
			if subsysMap, ok := subSystemCodeMap[de.Err]; ok {
				if code, ok := subsysMap[de.SubSystem]; ok {
					return code
				}
			}
		}
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

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
