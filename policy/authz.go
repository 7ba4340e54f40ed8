// Package policy implements thin clients to the external authorization,
// validation, journal, and notification services, all out-of-scope
// collaborators per §1 spoken to over unix-domain sockets, per §4.G.
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/GoCodeAlone/laf/envelope"
	"github.com/GoCodeAlone/laf/laferrors"
)

// AuthzRequest is the body POSTed to the authorization/OBO-authorization services.
type AuthzRequest struct {
	Req     *envelope.Request `json:"req"`
	Version string            `json:"version"`
}

// AuthzResponse is the decoded authorization service reply.
type AuthzResponse struct {
	Authorized bool           `json:"authorized"`
	Detail     map[string]any `json:"-"`
}

func (r *AuthzResponse) UnmarshalJSON(data []byte) error {
	type alias AuthzResponse
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = AuthzResponse(a)
	if err := json.Unmarshal(data, &r.Detail); err != nil {
		return err
	}
	return nil
}

// AuthzClient talks http+unix to the authorization microservice.
type AuthzClient struct {
	SocketPath string
	Version    string
	httpClient *http.Client
}

// NewAuthzClient creates a client bound to a unix-domain socket path.
func NewAuthzClient(socketPath, version string) *AuthzClient {
	return &AuthzClient{
		SocketPath: socketPath,
		Version:    version,
		httpClient: unixHTTPClient(socketPath),
	}
}

// unixHTTPClient builds an *http.Client whose transport dials a unix socket,
// so request URLs can stay ordinary http://... paths.
func unixHTTPClient(socketPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 10 * time.Second,
	}
}

// Authorize calls POST /<user>/<lone>/<verb>. A non-200 response or a
// connection failure surfaces as *laferrors.AuthorizationError or
// *laferrors.TransportError, per §4.G and §7.
func (c *AuthzClient) Authorize(ctx context.Context, req *envelope.Request) error {
	return c.call(ctx, fmt.Sprintf("/%s/%s/%s", req.User, req.Lone, req.Verb), req)
}

// AuthorizeOBO calls POST /obo/<user>/<lone>/<verb>, only invoked when
// req.Obo is set.
func (c *AuthzClient) AuthorizeOBO(ctx context.Context, req *envelope.Request) error {
	return c.call(ctx, fmt.Sprintf("/obo/%s/%s/%s", req.Obo, req.Lone, req.Verb), req)
}

func (c *AuthzClient) call(ctx context.Context, path string, req *envelope.Request) error {
	body, err := json.Marshal(AuthzRequest{Req: req, Version: c.Version})
	if err != nil {
		return fmt.Errorf("marshaling authorization request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://unix"+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building authorization request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &laferrors.TransportError{Service: "authorization", Err: err}
	}
	defer resp.Body.Close()

	var decoded AuthzResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return &laferrors.TransportError{Service: "authorization", Err: err}
	}

	if resp.StatusCode != http.StatusOK || !decoded.Authorized {
		return &laferrors.AuthorizationError{Payload: decoded.Detail}
	}
	return nil
}
