// Package envelope defines the per-invocation Request record that is carried
// through the whole lifecycle: CLI assembly or HTTP decoding, dispatch to a
// worker, handler invocation, and journaling.
package envelope

import "github.com/google/uuid"

// Mode indicates which execution regime produced this Request.
type Mode string

const (
	ModeClient Mode = "client" // CLI talking to a remote gateway
	ModeServer Mode = "server" // gateway/worker serving a remote call
	ModeLone   Mode = "lone"   // CLI invoking the handler in-process
)

// Request is the per-invocation record threaded through the pipeline.
//
// Invariant: Rqid is a freshly generated unique id per invocation. Txid
// defaults to Rqid if the caller did not pin one via LAF-TX-ID. EffectiveUser
// equals Obo when Obo is non-empty, else it equals User.
type Request struct {
	Lone          string
	Verb          string // resolved to an operationId by the Spec Loader
	Subhandler    string // optional verb sub-selector ("_<name>" suffix)
	PK            *string
	Path          []string       // ordered sub-path after pk
	URLVars       map[string]any // path-part name -> typed value
	QueryVars     map[string]any // query name -> typed value
	Body          any            // opaque decoded document
	Obj           any            // merged input passed to the handler
	User          string
	EffectiveUser string
	Obo           string
	Role          string
	CM            string // change-management ticket
	Host          string
	Txid          string
	Rqid          string
	Mode          Mode
}

// New constructs a Request with a fresh Rqid and Txid defaulted to Rqid.
// Callers that have a pinned incoming txid (LAF-TX-ID) should set Txid after
// construction to override the default.
func New(lone, verb string) *Request {
	rqid := uuid.NewString()
	return &Request{
		Lone: lone,
		Verb: verb,
		Rqid: rqid,
		Txid: rqid,
		Mode: ModeLone,
	}
}

// ResolveIdentity fixes EffectiveUser from User/Obo per the invariant. Callers
// must invoke this once User and Obo are both known (e.g. after auth).
func (r *Request) ResolveIdentity() {
	if r.Obo != "" {
		r.EffectiveUser = r.Obo
		return
	}
	r.EffectiveUser = r.User
}

// PinTxid overrides Txid with an externally supplied value (LAF-TX-ID header
// or environment variable), per spec.md §6 "pin an incoming txid to an
// outgoing one".
func (r *Request) PinTxid(txid string) {
	if txid != "" {
		r.Txid = txid
	}
}

// IsJournalingVerb reports whether verb is exactly one of the journaling
// verbs used by the worker runtime to decide whether a terminal step is
// journaled for otherwise-unannotated handlers. The whole verb is compared;
// no stem is extracted, so a suffixed verb such as "create_bulk" does not match.
func IsJournalingVerb(verb string) bool {
	switch verb {
	case "insert", "create", "delete", "update", "remove", "put", "post":
		return true
	default:
		return false
	}
}
