package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GoCodeAlone/laf/envelope"
	"github.com/GoCodeAlone/laf/handler"
	"github.com/GoCodeAlone/laf/laferrors"
	"github.com/GoCodeAlone/laf/policy"
	"github.com/GoCodeAlone/laf/reply"
	"github.com/GoCodeAlone/laf/specloader"
)

// Authorizer is the "who is authorized?" collaborator; nil disables
// authorization entirely.
type Authorizer interface {
	Authorize(ctx context.Context, req *envelope.Request) error
	AuthorizeOBO(ctx context.Context, req *envelope.Request) error
}

// Journaler records state-machine transitions; entries are best-effort.
type Journaler interface {
	Write(ctx context.Context, entry policy.Entry)
}

// Notifier publishes a terminal-step notification keyed by transaction id;
// nil disables notification entirely. Satisfied by *policy.StreamNotifier
// and *policy.KafkaNotifier.
type Notifier interface {
	Notify(txid string, body any)
}

// StatusPublisher propagates a long-running task's terminal outcome outside
// this process. AcceptAndRun always completes the request in its own local
// TaskStore, but in a real deployment the gateway serving /status/<rqid>
// polls and the worker that ran the task are separate OS processes with
// separate TaskStores; a nil Publisher restricts status polling to a single
// combined process. Satisfied by *dispatch.StatusPublisher.
type StatusPublisher interface {
	PublishStatus(rqid string, code int, payload any)
}

// Runtime executes the per-request state machine described in §4.D:
//
//	begin -> auth (if authorization enabled)
//	      -> authobo (if obo != null)
//	      -> invoke handler
//	         success        -> commit -> reply (200/204)
//	         domain error   -> abort  -> reply (status from handler)
//	         unexpected err -> abort  -> reply (500)
type Runtime struct {
	Registry     *Registry
	Authorizer   Authorizer // nil disables the auth/authobo steps
	Journal      Journaler
	Notify       Notifier // nil disables terminal-step notification
	Tasks        *TaskStore
	Publisher    StatusPublisher // nil disables cross-process status propagation
	FamilyID     string
	FamilyDeploy string
	Logger       *slog.Logger
}

// Handle runs the full state machine for one request envelope and returns
// the final Reply, synchronously. Long-running handlers are instead driven
// through AcceptAndRun; Handle is used for in-process (ModeLone) invocation
// and for non-long-running remote requests.
func (rt *Runtime) Handle(ctx context.Context, req *envelope.Request) reply.Reply {
	fn, spec, err := rt.lookupHandler(req)
	if err != nil {
		return reply.Internal(err)
	}

	rt.journal(ctx, req, policy.StepBegin, nil)

	if err := rt.authenticate(ctx, req); err != nil {
		rt.journal(ctx, req, policy.StepAbort, err.Error())
		return rt.classify(err)
	}

	out, err := invoke(ctx, fn, req)
	if err != nil {
		rt.journal(ctx, req, policy.StepAbort, err.Error())
		rt.notify(req, err.Error())
		return rt.classify(err)
	}

	if rt.journaled(spec, req) {
		rt.journal(ctx, req, policy.StepCommit, out)
	}
	rt.notify(req, out)
	return reply.Ok(out)
}

// AcceptAndRun handles a long-running handler: it records rqid as accepted,
// then in a goroutine journals begin/auth/authobo, runs the handler, and
// records the terminal step + task outcome when it completes. The goroutine
// keeps ctx's values but not its cancellation, so it outlives the request
// that returned 202. The caller is expected to have already decided (via
// IsLongRunning) to return 202 before calling this.
func (rt *Runtime) AcceptAndRun(ctx context.Context, req *envelope.Request) {
	rt.Tasks.Accept(req.Rqid)
	ctx = context.WithoutCancel(ctx)

	go func() {
		fn, spec, err := rt.lookupHandler(req)
		if err != nil {
			rt.complete(req.Rqid, 500, nil)
			return
		}

		rt.journal(ctx, req, policy.StepBegin, nil)
		if err := rt.authenticate(ctx, req); err != nil {
			rt.journal(ctx, req, policy.StepAbort, err.Error())
			rt.complete(req.Rqid, laferrors.StatusCode(err), err.Error())
			return
		}

		out, err := invoke(ctx, fn, req)
		if err != nil {
			rt.journal(ctx, req, policy.StepAbort, err.Error())
			rp := rt.classify(err)
			payload := statusPayload(rp)
			rt.notify(req, payload)
			rt.complete(req.Rqid, rp.StatusCode(), payload)
			return
		}

		// Long-running handlers are always journaled on completion, per §4.D.
		rt.journal(ctx, req, policy.StepCommit, out)
		rt.notify(req, out)
		rt.complete(req.Rqid, 200, out)
	}()
}

// complete records rqid's terminal outcome locally and, when a Publisher is
// configured, propagates it to every other process serving this family so a
// /status/<rqid> poll against a different gateway instance than the one that
// dispatched the request still observes completion.
func (rt *Runtime) complete(rqid string, code int, payload any) {
	rt.Tasks.Complete(rqid, code, payload)
	if rt.Publisher != nil {
		rt.Publisher.PublishStatus(rqid, code, payload)
	}
}

// IsLongRunning reports whether the operation req targets carries the
// x-laf-long-running annotation in its OpenAPI document (and has a registered
// handler), so the caller can short-circuit to a 202 accept.
func (rt *Runtime) IsLongRunning(req *envelope.Request) bool {
	_, spec, err := rt.lookupHandler(req)
	if err != nil {
		return false
	}
	return spec != nil && spec.LongRunning
}

func (rt *Runtime) lookupHandler(req *envelope.Request) (handler.Func, *specloader.OperationSpec, error) {
	l, ok := rt.Registry.Lone(req.Lone)
	if !ok {
		return nil, nil, fmt.Errorf("unknown lone %q", req.Lone)
	}
	fn, ok := l.Handler(req.Verb, req.Subhandler)
	if !ok {
		return nil, nil, fmt.Errorf("no handler registered for %s.%s", req.Lone, req.Verb)
	}
	spec, _ := l.Operation(req.Verb)
	return fn, spec, nil
}

func (rt *Runtime) authenticate(ctx context.Context, req *envelope.Request) error {
	if rt.Authorizer == nil {
		return nil
	}
	rt.journal(ctx, req, policy.StepAuth, nil)
	if err := rt.Authorizer.Authorize(ctx, req); err != nil {
		return err
	}
	if req.Obo != "" {
		rt.journal(ctx, req, policy.StepAuthOBO, nil)
		if err := rt.Authorizer.AuthorizeOBO(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

func invoke(ctx context.Context, fn handler.Func, req *envelope.Request) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &laferrors.HandlerInternalError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	obj, _ := req.Obj.(map[string]any)
	out, handlerErr := fn(ctx, req.PK, obj)
	if handlerErr == nil {
		return out, nil
	}

	if de, ok := handlerErr.(*handler.DomainError); ok {
		return nil, &laferrors.HandlerDomainError{Payload: de.Payload, Code: de.Status}
	}
	return nil, &laferrors.HandlerInternalError{Err: handlerErr}
}

// statusPayload extracts the response body to store alongside a terminal
// task outcome, regardless of which Reply branch produced it.
func statusPayload(r reply.Reply) any {
	if payload, _, ok := r.DomainError(); ok {
		return payload
	}
	if err, ok := r.InternalErr(); ok {
		return err.Error()
	}
	value, _ := r.Value()
	return value
}

// classify converts a state-machine error into its Reply.
func (rt *Runtime) classify(err error) reply.Reply {
	if de, ok := err.(*laferrors.HandlerDomainError); ok {
		return reply.Domain(de.Payload, de.Code)
	}
	if se, ok := err.(laferrors.StatusError); ok {
		return reply.Domain(map[string]any{"_error": se.Error()}, se.Status())
	}
	return reply.Internal(err)
}

// journaled decides whether the terminal step should be journaled, per §4.D:
// explicit annotation, journaling-verb-set membership, or long-running.
func (rt *Runtime) journaled(spec *specloader.OperationSpec, req *envelope.Request) bool {
	if spec != nil && (spec.Journaled || spec.LongRunning) {
		return true
	}
	return envelope.IsJournalingVerb(req.Verb)
}

// notify publishes the terminal-step body to the transaction's notification
// topic, per §4.G. Best-effort: a nil Notify field disables it entirely.
func (rt *Runtime) notify(req *envelope.Request, body any) {
	if rt.Notify == nil {
		return
	}
	rt.Notify.Notify(req.Txid, body)
}

func (rt *Runtime) journal(ctx context.Context, req *envelope.Request, step policy.Step, payload any) {
	if rt.Journal == nil {
		return
	}
	rt.Journal.Write(ctx, policy.Entry{
		AuthUserID:    req.User,
		UserID:        req.EffectiveUser,
		Role:          req.Role,
		RequestID:     req.Rqid,
		TransactionID: req.Txid,
		Step:          step,
		Host:          req.Host,
		LoneFamily:    rt.FamilyID,
		Lone:          req.Lone,
		Verb:          req.Verb,
		LonePK:        req.PK,
		Payload:       payload,
		CM:            req.CM,
	})
}
