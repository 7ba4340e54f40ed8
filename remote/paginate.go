package remote

import (
	"context"
	"net/http"

	"github.com/GoCodeAlone/laf/laferrors"
)

// Page is one page of a paginated GET, with the next page's URL if any.
type Page struct {
	Body any
	Next string // "_links._next.href", empty once exhausted
}

// Pages follows a GET response's "_links._next.href" chain, yielding one
// Page per call until the union of all pages has been delivered. Callers
// drive iteration explicitly rather than via a channel, since the CLI's
// event loop already owns cancellation via ctx.
type Pages struct {
	client *Client
	next   string
	done   bool
}

// FirstPage wraps a decoded GET response as the head of a Pages iterator.
func (c *Client) FirstPage(resp *Response) *Pages {
	p := &Pages{client: c}
	p.advance(resp.Body)
	return p
}

// Next fetches and returns the next page, or (nil, false) once exhausted.
func (p *Pages) Next(ctx context.Context) (*Page, bool, error) {
	if p.done {
		return nil, false, nil
	}
	if p.next == "" {
		p.done = true
		return nil, false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.next, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", p.client.acceptHeader())

	resp, err := p.client.HTTP.Do(req)
	if err != nil {
		return nil, false, &laferrors.TransportError{Service: "gateway", Err: err}
	}
	defer resp.Body.Close()

	decoded, err := p.client.decodeResponse(resp)
	if err != nil {
		return nil, false, err
	}
	p.advance(decoded.Body)
	return &Page{Body: decoded.Body, Next: p.next}, true, nil
}

func (p *Pages) advance(body any) {
	doc, ok := body.(map[string]any)
	if !ok {
		p.next = ""
		return
	}
	links, ok := doc["_links"].(map[string]any)
	if !ok {
		p.next = ""
		return
	}
	nextLink, ok := links["_next"].(map[string]any)
	if !ok {
		p.next = ""
		return
	}
	href, _ := nextLink["href"].(string)
	p.next = href
}
