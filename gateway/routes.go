package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/laf/envelope"
	"github.com/GoCodeAlone/laf/family"
	"github.com/GoCodeAlone/laf/laferrors"
	"github.com/GoCodeAlone/laf/metrics"
	"github.com/GoCodeAlone/laf/policy"
	"github.com/GoCodeAlone/laf/specloader"
	"github.com/GoCodeAlone/laf/worker"
)

// Dispatcher is satisfied by *dispatch.Client; mockable for tests.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload []byte) ([]byte, error)
}

// Identity resolves the authenticated caller and origin host for an incoming
// request. This is the pluggable "who is the caller?" authentication
// middleware hook, intentionally out of scope per §1: the Server wires in
// whichever Identity implementation the deployment configures (JWT,
// Kerberos, mutual TLS, ...).
type Identity interface {
	Resolve(r *http.Request) (user, host string, err error)
}

// Server is the HTTP Gateway of §4.D: it owns the compiled operation
// registry, talks to the dispatch fabric, and enforces CM policy before
// handing a request off.
type Server struct {
	Family     *family.Descriptor
	Registry   *specloader.Registry
	Dispatch   Dispatcher
	Identity   Identity
	Validation *policy.ValidationClient // nil disables the optional external validation call
	Tasks      *worker.TaskStore
	Logger     *slog.Logger
	Metrics    *metrics.Collector // nil disables request metrics and /metrics

	mux *http.ServeMux
}

// NewServer builds a gateway Server and installs routes for every compiled
// operation known to registry.
func NewServer(fam *family.Descriptor, reg *specloader.Registry, d Dispatcher, identity Identity, logger *slog.Logger) *Server {
	s := &Server{
		Family:   fam,
		Registry: reg,
		Dispatch: d,
		Identity: identity,
		Tasks:    worker.NewTaskStore(),
		Logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.installRoutes()
	return s
}

func (s *Server) installRoutes() {
	for _, lone := range s.Family.Server.Lones {
		s.mux.HandleFunc("/"+lone+"/", s.handleOperation(lone))
		s.mux.HandleFunc("/"+lone, s.handleOperation(lone))
	}
	s.mux.HandleFunc("/status/", s.handleStatusOrStream)
}

// handleStatusOrStream dispatches /status/<rqid> to the plain polling
// handler and /status/<rqid>/stream to the websocket relay.
func (s *Server) handleStatusOrStream(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/stream") {
		s.handleStatusStream(w, r)
		return
	}
	s.handleStatus(w, r)
}

// EnableMetrics wires c into the server for per-request recording and
// mounts its Prometheus handler at /metrics.
func (s *Server) EnableMetrics(c *metrics.Collector) {
	s.Metrics = c
	s.mux.Handle("/metrics", c.Handler())
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleOperation routes one lone's requests: it reads the escaped path so
// that a literal %2F inside a trailing sub-path is never silently decoded
// into a path separator by the standard mux, per SPEC_FULL.md §9 "monkey-
// patched URL unquoting".
func (s *Server) handleOperation(lone string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		defer r.Body.Close()
		start := time.Now()
		var verb string
		status := 0
		defer func() {
			if s.Metrics != nil && status != 0 {
				s.Metrics.RecordRequest(lone, verb, status, time.Since(start))
			}
		}()
		escaped := r.URL.EscapedPath()
		rest := strings.TrimPrefix(escaped, "/"+lone)
		rest = strings.TrimPrefix(rest, "/")

		var pk *string
		var subPath []string
		var customVerb string
		verb, pk, subPath, customVerb = parseRouteRest(rest, r.Method)

		operationID := verb
		if customVerb != "" {
			operationID = customVerb
		}

		spec, ok := s.Registry.Operation(lone, operationID)
		if !ok {
			status = s.writeError(w, r, &laferrors.UsageError{Msg: fmt.Sprintf("unknown operation %s", operationID)}, lone, verb, pk)
			return
		}

		mt, err := Negotiate(r.Header.Get("Accept"), r.Method)
		if err != nil {
			w.WriteHeader(http.StatusNotAcceptable)
			return
		}

		urlVars, queryVars, err := decodeVars(spec, pk, subPath, r.URL.Query())
		if err != nil {
			status = s.writeError(w, r, err, lone, verb, pk)
			return
		}

		var body any
		if r.ContentLength != 0 || r.Method == http.MethodPost || r.Method == http.MethodPut {
			ct := r.Header.Get("Content-Type")
			bodyMT, ok := ParseMediaType(ct)
			if !ok && ct != "" {
				w.WriteHeader(http.StatusUnsupportedMediaType)
				return
			}
			raw, _ := io.ReadAll(r.Body)
			if len(raw) > 0 {
				if err := Decode(bodyMT, raw, &body); err != nil {
					status = s.writeError(w, r, laferrors.FieldErrors{{Path: "body", Message: err.Error()}}, lone, verb, pk)
					return
				}
			}
		}

		validators, _ := s.Registry.Validators(operationID)
		if validators != nil {
			inputDoc := map[string]any{"path": urlVars, "query": queryVars}
			if body != nil {
				inputDoc["body"] = body
			}
			if err := validators.ValidateInput(inputDoc); err != nil {
				status = s.writeError(w, r, err, lone, verb, pk)
				return
			}
		}

		user, host := "", r.Host
		if s.Identity != nil {
			var err error
			user, host, err = s.Identity.Resolve(r)
			if err != nil {
				status = s.writeError(w, r, &laferrors.AuthorizationError{Payload: err.Error()}, lone, verb, pk)
				return
			}
		}

		req := envelope.New(lone, operationID)
		req.PK = pk
		req.Path = subPath
		req.URLVars = urlVars
		req.QueryVars = queryVars
		req.Body = body
		req.Obj = body
		req.User = user
		req.Host = host
		req.Role = r.Header.Get("LAF-ROLE")
		req.CM = r.Header.Get("LAF-CM")
		req.Obo = r.Header.Get("LAF-OBO")
		req.Mode = envelope.ModeServer
		req.PinTxid(r.Header.Get("LAF-TX-ID"))
		req.ResolveIdentity()

		if err := policy.CheckCM(s.Family, req, operationID); err != nil {
			status = s.writeError(w, r, err, lone, verb, pk)
			return
		}

		if s.Validation != nil {
			augmented, err := s.Validation.Validate(map[string]any{"req": req})
			if err != nil {
				status = s.writeError(w, r, err, lone, verb, pk)
				return
			}
			if augmented != nil {
				req.Obj = augmented
			}
		}

		wire := worker.WireRequest{Request: req}
		payload, err := json.Marshal(wire)
		if err != nil {
			status = s.writeError(w, r, err, lone, verb, pk)
			return
		}

		replyBytes, err := s.Dispatch.Dispatch(ctx, payload)
		if err != nil {
			status = s.writeError(w, r, &laferrors.TransportError{Service: "dispatch", Err: err}, lone, verb, pk)
			return
		}

		var wireReply worker.WireReply
		if err := json.Unmarshal(replyBytes, &wireReply); err != nil {
			status = s.writeError(w, r, err, lone, verb, pk)
			return
		}

		if wireReply.Status == 202 {
			status = 202
			s.Tasks.Accept(strings.TrimPrefix(wireReply.Location, "/status/"))
			w.Header().Set("Location", wireReply.Location)
			w.WriteHeader(202)
			return
		}

		if validators != nil && wireReply.Body != nil {
			if err := validators.ValidateResponse(strconv.Itoa(wireReply.Status), wireReply.Body); err != nil {
				s.Logger.Warn("response failed schema validation", "error", err, "operation", operationID)
			}
		}

		status = s.writeBody(w, mt, wireReply.Status, wireReply.Body, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rqid := strings.TrimPrefix(r.URL.Path, "/status/")
	rec, ok := s.Tasks.Lookup(rqid)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if rec.Status == worker.TaskProcessing {
		w.WriteHeader(102)
		return
	}
	mt, _ := Negotiate(r.Header.Get("Accept"), r.Method)
	s.writeBody(w, mt, rec.Code, rec.Payload, r)
}

// writeBody writes the encoded body and returns the status code written, so
// callers can feed it to request metrics.
func (s *Server) writeBody(w http.ResponseWriter, mt MediaType, status int, body any, r *http.Request) int {
	if status == 204 || body == nil {
		w.WriteHeader(status)
		return status
	}

	if bodyMap, ok := body.(map[string]any); ok && r.Method == http.MethodGet {
		InjectPagination(bodyMap, selfURL(r), r.URL.Query().Get("_cursor"))
		body = bodyMap
	}

	encoded, err := Encode(mt, body)
	if err != nil {
		w.WriteHeader(500)
		return 500
	}
	w.Header().Set("Content-Type", mt.ContentType())
	w.WriteHeader(status)
	_, _ = w.Write(encoded)
	return status
}

// writeError renders err as the family's "_error" document and returns the
// status code written, so callers can feed it to request metrics.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, lone, verb string, pk *string) int {
	status := laferrors.StatusCode(err)
	ctx := laferrors.Context{
		Who:   r.Header.Get("LAF-USER"),
		Where: fmt.Sprintf("%s/%s/%s", s.Family.Deployment, s.Family.ID, lone),
		Verb:  verb,
		PK:    pkOrNil(pk),
		From:  r.Host,
	}
	envelope := laferrors.Render(err, ctx)
	mt, negErr := Negotiate(r.Header.Get("Accept"), r.Method)
	if negErr != nil {
		mt = MediaType{Encoding: "yaml"}
	}
	encoded, encErr := Encode(mt, envelope)
	if encErr != nil {
		w.WriteHeader(500)
		return 500
	}
	w.Header().Set("Content-Type", mt.ContentType())
	w.WriteHeader(status)
	_, _ = w.Write(encoded)
	return status
}

func pkOrNil(pk *string) any {
	if pk == nil {
		return nil
	}
	return *pk
}

func selfURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.Path)
}

// parseRouteRest splits the escaped rest-of-path into verb resolution
// inputs: a primary key (if present), the ordered sub-path, and a custom
// verb name when the segment is ":<verb>".
func parseRouteRest(rest, method string) (verb string, pk *string, subPath []string, customVerb string) {
	verb = map[string]string{
		http.MethodGet:    "get",
		http.MethodDelete: "delete",
		http.MethodPut:    "update",
		http.MethodPost:   "create",
	}[method]

	if rest == "" {
		return verb, nil, nil, ""
	}

	pieces := strings.Split(rest, "/")
	first := pieces[0]
	if idx := strings.IndexByte(first, ':'); idx >= 0 {
		customVerb = first[idx+1:]
		first = first[:idx]
	}
	if first != "" {
		decoded, _ := url.PathUnescape(first)
		pk = &decoded
	}
	if len(pieces) > 1 {
		subPath = pieces[1:]
	}
	return verb, pk, subPath, customVerb
}

// decodeVars parses typed path/query variables per the operation's compiled
// parameter table.
func decodeVars(spec *specloader.OperationSpec, pk *string, subPath []string, query url.Values) (map[string]any, map[string]any, error) {
	urlVars := make(map[string]any)
	if pk != nil && len(spec.PathParams) > 0 {
		urlVars[spec.PathParams[0].Name] = typedValue(spec.PathParams[0], *pk)
	}
	for i, piece := range subPath {
		if i+1 < len(spec.PathParams) {
			urlVars[spec.PathParams[i+1].Name] = typedValue(spec.PathParams[i+1], piece)
		}
	}

	queryVars := make(map[string]any)
	for _, p := range spec.QueryParams {
		if v := query.Get(p.Name); v != "" {
			queryVars[p.Name] = typedValue(p, v)
		} else if p.Required {
			return nil, nil, laferrors.FieldErrors{{Path: "query/" + p.Name, Message: "required"}}
		}
	}
	return urlVars, queryVars, nil
}

// typedValue decodes one raw path/query string per the parameter's declared
// OpenAPI type and serialization style. Object-typed parameters deserialize
// per §4.A: path params via simple/exploded ("k1=v1,k2=v2"), query params via
// form/non-exploded (comma-separated alternating key/value).
func typedValue(p specloader.Parameter, raw string) any {
	switch p.Type {
	case "integer":
		n, err := strconv.Atoi(raw)
		if err != nil {
			return raw
		}
		return n
	case "number":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw
		}
		return f
	case "object":
		if p.In == specloader.LocPath {
			return decodeSimpleExplodedObject(raw)
		}
		return decodeFormObject(raw)
	default:
		return raw
	}
}

// decodeSimpleExplodedObject parses a simple/exploded object path parameter:
// "k1=v1,k2=v2" -> {"k1":"v1","k2":"v2"}.
func decodeSimpleExplodedObject(raw string) map[string]any {
	out := make(map[string]any)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

// decodeFormObject parses a form/non-exploded object query parameter: CSV
// becomes alternating key/value, e.g. "k1,v1,k2,v2" -> {"k1":"v1","k2":"v2"}.
func decodeFormObject(raw string) map[string]any {
	parts := strings.Split(raw, ",")
	out := make(map[string]any, len(parts)/2)
	for i := 0; i+1 < len(parts); i += 2 {
		out[parts[i]] = parts[i+1]
	}
	return out
}

// NewRqid is exposed for callers that need to pre-generate a correlation id
// before constructing a Request (e.g. the websocket status stream).
func NewRqid() string { return uuid.NewString() }
