package app

import "fmt"

// ValidationError reports malformed or incomplete caller input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// PreconditionError reports an entity that exists but is not in a state that
// permits the operation, e.g. a seller that cannot receive funds yet.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return e.Reason }

// ProviderError wraps a failed call to the payments provider. The provider's
// message is relayed unchanged.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string { return e.Err.Error() }

func (e *ProviderError) Unwrap() error { return e.Err }

// SignatureError reports a webhook payload whose authenticity check failed.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	if e.Err == nil {
		return "missing signature"
	}
	return e.Err.Error()
}

func (e *SignatureError) Unwrap() error { return e.Err }

// CorrelationError reports a verified event whose payload cannot be matched
// to local records. It is never worth retrying.
type CorrelationError struct {
	EventID string
	Reason  string
}

func (e *CorrelationError) Error() string {
	return fmt.Sprintf("event %s: %s", e.EventID, e.Reason)
}

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
