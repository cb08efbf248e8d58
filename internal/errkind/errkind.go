// Package errkind tags errors with a flat kind enum, a cause, and an
// HTTP-like status, rather than a type hierarchy. Callers branch on
// the Kind; the administrative surface maps it to a Code.
package errkind

import "fmt"

// Kind tags the category of an error for propagation/logging decisions.
type Kind string

const (
	Configuration          Kind = "configuration"
	TransientExternal      Kind = "transient_external"
	DegradedExternal       Kind = "degraded_external"
	LLMValidation          Kind = "llm_validation"
	PersistenceNonCritical Kind = "persistence_non_critical"
	Programmer             Kind = "programmer"
)

// Code is the administrative-surface error code a Kind maps onto.
type Code string

const (
	CodeConfiguration  Code = "CONFIGURATION_ERROR"
	CodeExternalAPI    Code = "EXTERNAL_API_ERROR"
	CodeDatabase       Code = "DATABASE_ERROR"
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeAnalysis       Code = "ANALYSIS_ERROR"
	CodeCache          Code = "CACHE_ERROR"
	CodeAuthentication Code = "AUTHENTICATION_ERROR"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// Error wraps a cause with a Kind and an HTTP-like status.
type Error struct {
	Kind   Kind
	Status int
	Cause  error
	Msg    string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Code maps a Kind to the administrative-surface error code and an
// HTTP-like status.
func (e *Error) Code() (Code, int) {
	switch e.Kind {
	case Configuration:
		return CodeConfiguration, 400
	case TransientExternal, DegradedExternal:
		return CodeExternalAPI, 502
	case LLMValidation:
		return CodeAnalysis, 503
	case PersistenceNonCritical:
		return CodeCache, 500
	case Programmer:
		return CodeInternal, 500
	default:
		return CodeInternal, 500
	}
}

// New constructs a tagged error.
func New(kind Kind, status int, msg string, cause error) *Error {
	return &Error{Kind: kind, Status: status, Msg: msg, Cause: cause}
}

// NewConfiguration wraps a configuration-load/validation failure (fatal at load).
func NewConfiguration(msg string, cause error) *Error {
	return New(Configuration, 400, msg, cause)
}

// NewTransientExternal wraps a retryable external failure.
func NewTransientExternal(msg string, cause error) *Error {
	return New(TransientExternal, 502, msg, cause)
}

// NewDegradedExternal wraps a non-retried partial-data failure.
func NewDegradedExternal(msg string, cause error) *Error {
	return New(DegradedExternal, 502, msg, cause)
}

// NewLLMValidation wraps a schema-invalid LLM response or an open circuit.
func NewLLMValidation(msg string, cause error) *Error {
	return New(LLMValidation, 503, msg, cause)
}

// NewPersistenceNonCritical wraps a best-effort persistence failure that must
// never propagate to the caller beyond logging.
func NewPersistenceNonCritical(msg string, cause error) *Error {
	return New(PersistenceNonCritical, 500, msg, cause)
}

// NewProgrammer wraps an invariant violation that should surface to the
// workflow and short-circuit downstream stages.
func NewProgrammer(msg string, cause error) *Error {
	return New(Programmer, 500, msg, cause)
}

// Of extracts the tagged *Error from any error in the chain, if present.
func Of(err error) (*Error, bool) {
	var e *Error
	for err != nil {
		if ek, ok := err.(*Error); ok {
			e = ek
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e, e != nil
}
