package tool

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a toolkit error. Kinds are stable strings so they can flow
// through result payloads and logs unchanged.
type Kind string

const (
	// KindConfig indicates missing or malformed configuration. Fatal at
	// startup, never retried.
	KindConfig Kind = "config"
	// KindAuth indicates the identity provider rejected the credential.
	// Fatal for the current operation, never retried.
	KindAuth Kind = "auth"
	// KindValidation indicates invocation arguments failed the declared
	// parameter schema. Raised before any network call is made.
	KindValidation Kind = "validation"
	// KindNotFound indicates a tool name or remote resource does not exist.
	KindNotFound Kind = "not_found"
	// KindTransient indicates a timeout, 429, or 5xx from a remote endpoint
	// after the retry budget was exhausted.
	KindTransient Kind = "transient"
	// KindUpstream indicates the remote endpoint rejected the request with a
	// non-retryable status that is none of the kinds above.
	KindUpstream Kind = "upstream"
	// KindExport indicates the catalog cannot be serialized to the wire
	// format. Fatal for the export command only.
	KindExport Kind = "export"
)

// Error is the structured toolkit error. It carries enough context (tool
// name, HTTP status where applicable) for the dispatch layer to decide how
// to surface the failure.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Tool    string `json:"tool,omitempty"`
	Status  int    `json:"status,omitempty"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Tool != "" {
		return fmt.Sprintf("%s: %s: %s", e.Tool, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Retryable reports whether the failure is worth retrying. Only transient
// failures are; credential rejection and validation failures never are.
func (e *Error) Retryable() bool {
	return e != nil && e.Kind == KindTransient
}

// Errorf builds an Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapErr builds an Error of the given kind around a cause.
func WrapErr(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// AsError extracts a toolkit *Error from err, if present.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindUpstream when err is not a toolkit
// error. A nil err has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if te, ok := AsError(err); ok {
		return te.Kind
	}
	return KindUpstream
}

// ErrorPayload is the structured error body returned to the orchestration
// platform in place of a result. A failed tool call must not abort the
// hosting process.
func ErrorPayload(err error) map[string]any {
	if err == nil {
		return nil
	}
	body := map[string]any{
		"kind":    string(KindOf(err)),
		"message": err.Error(),
	}
	if te, ok := AsError(err); ok {
		body["message"] = te.Message
		if te.Message == "" && te.Cause != nil {
			body["message"] = te.Cause.Error()
		}
		if te.Status != 0 {
			body["status"] = te.Status
		}
	}
	return map[string]any{"error": body}
}
