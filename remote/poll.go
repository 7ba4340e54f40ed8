package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/GoCodeAlone/laf/envelope"
	"github.com/GoCodeAlone/laf/gateway"
	"github.com/GoCodeAlone/laf/laferrors"
)

// Response is the decoded outcome of one remote invocation.
type Response struct {
	Status int
	Body   any
}

// Dispatch sends req to the gateway and, for a 202 long-running acceptance,
// polls /status/<rqid> at PollEvery until the task reaches a terminal state.
func (c *Client) Dispatch(ctx context.Context, req *envelope.Request) (*Response, error) {
	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, &laferrors.TransportError{Service: "gateway", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		location := resp.Header.Get("Location")
		return c.poll(ctx, location)
	}

	return c.decodeResponse(resp)
}

func (c *Client) newHTTPRequest(ctx context.Context, req *envelope.Request) (*http.Request, error) {
	method := methodFor(req)
	target := c.buildURL(req)

	var bodyBytes []byte
	if req.Obj != nil {
		encoded, err := gateway.Encode(c.mediaType(), req.Obj)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyBytes = encoded
	}

	var bodyIO io.Reader
	if len(bodyBytes) > 0 {
		bodyIO = bytes.NewReader(bodyBytes)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, bodyIO)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Accept", c.acceptHeader())
	if len(bodyBytes) > 0 {
		httpReq.Header.Set("Content-Type", c.mediaType().ContentType())
	}
	if req.Txid != "" {
		httpReq.Header.Set("LAF-TX-ID", req.Txid)
	}
	if req.Role != "" {
		httpReq.Header.Set("LAF-ROLE", req.Role)
	}
	if req.CM != "" {
		httpReq.Header.Set("LAF-CM", req.CM)
	}
	if req.Obo != "" {
		httpReq.Header.Set("LAF-OBO", req.Obo)
	}
	return httpReq, nil
}

// poll blocks until the task at location reaches a terminal (non-102) state.
func (c *Client) poll(ctx context.Context, location string) (*Response, error) {
	target := c.BaseURL + location
	ticker := time.NewTicker(c.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return nil, err
			}
			httpReq.Header.Set("Accept", c.acceptHeader())

			resp, err := c.HTTP.Do(httpReq)
			if err != nil {
				return nil, &laferrors.TransportError{Service: "gateway", Err: err}
			}
			if resp.StatusCode == http.StatusProcessing {
				resp.Body.Close()
				continue
			}
			defer resp.Body.Close()
			return c.decodeResponse(resp)
		}
	}
}

func (c *Client) pollInterval() time.Duration {
	if c.PollEvery <= 0 {
		return 5 * time.Second
	}
	return c.PollEvery
}

func (c *Client) decodeResponse(resp *http.Response) (*Response, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(raw) == 0 {
		return &Response{Status: resp.StatusCode}, nil
	}

	mt, ok := gateway.ParseMediaType(resp.Header.Get("Content-Type"))
	if !ok {
		mt = gateway.MediaType{Encoding: "yaml"}
	}
	var body any
	if err := gateway.Decode(mt, raw, &body); err != nil {
		return nil, fmt.Errorf("decoding response body: %w", err)
	}
	return &Response{Status: resp.StatusCode, Body: body}, nil
}
