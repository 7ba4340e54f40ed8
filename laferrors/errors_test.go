package laferrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusCodeByType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"usage error", &UsageError{Msg: "bad flag"}, 0},
		{"field errors", FieldErrors{{Path: "name", Message: "required"}}, 400},
		{"authorization error", &AuthorizationError{Payload: "denied"}, 500},
		{"policy error", &PolicyError{Msg: "missing ticket"}, 400},
		{"handler domain error", &HandlerDomainError{Code: 409}, 409},
		{"handler internal error", &HandlerInternalError{Err: errors.New("boom")}, 500},
		{"transport error", &TransportError{Service: "authz", Err: errors.New("timeout")}, 500},
		{"busy", &Busy{}, 503},
		{"untyped error", errors.New("plain"), 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestRenderFieldErrorsUsesDetails(t *testing.T) {
	fe := FieldErrors{{Path: "email", Message: "required"}, {Path: "age", Message: "must be a number"}}
	envelope := Render(fe, Context{Who: "alice", Where: "account", Verb: "create"})

	e := envelope["_error"]
	require.Equal(t, "alice", e.Who)
	require.Equal(t, "account", e.Where)
	require.Equal(t, "create", e.Verb)

	details, ok := e.Why.([]string)
	require.True(t, ok, "expected FieldErrors.Why to render as []string")
	require.Equal(t, []string{"email: required", "age: must be a number"}, details)
}

func TestRenderPlainErrorUsesErrorString(t *testing.T) {
	envelope := Render(errors.New("connection refused"), Context{Who: "bob"})
	require.Equal(t, "connection refused", envelope["_error"].Why)
}

func TestHandlerInternalErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	wrapped := &HandlerInternalError{Err: inner}
	require.ErrorIs(t, wrapped, inner)
}

func TestFieldErrorsErrorMessage(t *testing.T) {
	fe := FieldErrors{{Path: "name", Message: "required"}}
	require.Contains(t, fe.Error(), "1 error(s)")
	require.Contains(t, fe.Error(), "name: required")
}
