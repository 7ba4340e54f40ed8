// Package laferrors implements the error taxonomy of §7: typed errors that
// know their own HTTP status code and how to render as the framework's
// "_error" envelope document.
package laferrors

import (
	"fmt"
	"strings"
	"time"
)

// Envelope is the "_error" document shape shared by the CLI and HTTP gateway.
type Envelope struct {
	Why   any    `yaml:"why" json:"why"`
	Who   string `yaml:"who" json:"who"`
	Where string `yaml:"where" json:"where"`
	When  string `yaml:"when" json:"when"`
	Verb  string `yaml:"verb" json:"verb"`
	PK    any    `yaml:"pk" json:"pk"`
	In    any    `yaml:"in" json:"in"`
	From  string `yaml:"from" json:"from"`
}

// Context carries the invocation details needed to render an Envelope; it is
// populated from the request envelope at the point an error is surfaced.
type Context struct {
	Who   string
	Where string
	Verb  string
	PK    any
	In    any
	From  string
}

// Render builds the "_error" envelope document for a given error and context.
func Render(err error, ctx Context) map[string]Envelope {
	return map[string]Envelope{
		"_error": {
			Why:   why(err),
			Who:   ctx.Who,
			Where: ctx.Where,
			When:  time.Now().UTC().Format("2006-01-02 15:04:05") + " GMT",
			Verb:  ctx.Verb,
			PK:    ctx.PK,
			In:    ctx.In,
			From:  ctx.From,
		},
	}
}

func why(err error) any {
	if fe, ok := err.(FieldErrors); ok {
		return fe.Details()
	}
	return err.Error()
}

// StatusError is implemented by every typed error in this package so callers
// can map an error to its HTTP status without a type switch.
type StatusError interface {
	error
	Status() int
}

// UsageError is malformed CLI input; surfaced as an _error document with a
// zero (success) process exit code.
type UsageError struct{ Msg string }

func (e *UsageError) Error() string { return e.Msg }
func (e *UsageError) Status() int   { return 0 }

// FieldError is one JSON-Schema validation failure at a given instance path.
type FieldError struct {
	Path    string
	Message string
}

func (e *FieldError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// FieldErrors collects schema validation failures into a single ValidationError.
type FieldErrors []*FieldError

func (fe FieldErrors) Error() string {
	msgs := make([]string, len(fe))
	for i, e := range fe {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("validation failed with %d error(s):\n  - %s", len(fe), strings.Join(msgs, "\n  - "))
}

func (fe FieldErrors) Status() int { return 400 }

func (fe FieldErrors) Details() []string {
	out := make([]string, len(fe))
	for i, e := range fe {
		out[i] = e.Error()
	}
	return out
}

// AuthorizationError is returned when the external authorization service
// denies a request or itself fails. Per SPEC_FULL.md §9 Open Questions, this
// surfaces as 500 to preserve observed behavior, not 401/403.
type AuthorizationError struct {
	Payload any
}

func (e *AuthorizationError) Error() string { return fmt.Sprintf("authorization denied: %v", e.Payload) }
func (e *AuthorizationError) Status() int   { return 500 }

// PolicyError is a missing change-management ticket on a gated operation.
type PolicyError struct{ Msg string }

func (e *PolicyError) Error() string { return e.Msg }
func (e *PolicyError) Status() int   { return 400 }

// HandlerDomainError is raised by user handler code with an explicit payload/status.
type HandlerDomainError struct {
	Payload any
	Code    int
}

func (e *HandlerDomainError) Error() string { return fmt.Sprintf("handler domain error: %v", e.Payload) }
func (e *HandlerDomainError) Status() int   { return e.Code }

// HandlerInternalError wraps an unexpected panic/error from handler invocation.
type HandlerInternalError struct{ Err error }

func (e *HandlerInternalError) Error() string { return fmt.Sprintf("internal error: %v", e.Err) }
func (e *HandlerInternalError) Status() int   { return 500 }
func (e *HandlerInternalError) Unwrap() error { return e.Err }

// TransportError is a connection failure to a dependent service (auth,
// validation, journal, notification).
type TransportError struct {
	Service string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport error: %v", e.Service, e.Err)
}
func (e *TransportError) Status() int   { return 500 }
func (e *TransportError) Unwrap() error { return e.Err }

// Busy is returned by the dispatch broker when no worker is idle.
type Busy struct{}

func (e *Busy) Error() string { return "Try again server busy" }
func (e *Busy) Status() int   { return 503 }

// StatusCode extracts the HTTP status implied by err, defaulting to 500 for
// untyped errors.
func StatusCode(err error) int {
	if se, ok := err.(StatusError); ok {
		return se.Status()
	}
	return 500
}
