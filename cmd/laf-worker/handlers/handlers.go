// Package handlers is the extension point where a deployment wires its own
// resource handler functions into a loaded lone. Register is called once per
// lone at worker startup; the business logic behind each operation is
// deployment-specific and lives outside this framework.
package handlers

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/laf/handler"
	"github.com/GoCodeAlone/laf/lone"
	"github.com/GoCodeAlone/laf/specloader"
)

// Register installs a handler for every compiled operation on descriptor. A
// real deployment replaces or augments this with its own handler functions
// (descriptor.Register("create", "", myCreateHandler), ...); the stub below
// keeps a freshly generated lone servable end to end, replying with a 501
// domain error for any operation nobody has implemented yet.
func Register(descriptor *lone.Descriptor, ops map[string]*specloader.OperationSpec) {
	for operationID := range ops {
		descriptor.Register(operationID, "", notImplemented(descriptor.Name, operationID))
	}
}

func notImplemented(loneName, operationID string) handler.Func {
	return func(ctx context.Context, pk *string, obj map[string]any) (any, error) {
		return nil, &handler.DomainError{
			Status:  501,
			Payload: map[string]any{"_error": fmt.Sprintf("%s.%s has no registered handler", loneName, operationID)},
		}
	}
}
