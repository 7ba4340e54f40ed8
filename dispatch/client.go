package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Client is the gateway-side half of the dispatch fabric: it publishes a
// request to the broker's frontend subject and waits for the reply NATS
// correlates automatically via the inbox reply subject, standing in for the
// spec's ROUTER/ROUTER "(client_addr, empty, request_bytes)" frame.
type Client struct {
	nc      *nats.Conn
	family  string
	Timeout time.Duration
}

// NewClient creates a dispatch Client bound to nc for one family.
func NewClient(nc *nats.Conn, family string) *Client {
	return &Client{nc: nc, family: family, Timeout: 30 * time.Second}
}

// Dispatch sends payload to the broker's frontend subject and returns the
// raw reply bytes, or an error if the broker is unreachable within Timeout.
func (c *Client) Dispatch(ctx context.Context, payload []byte) ([]byte, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	msg, err := c.nc.RequestWithContext(ctx, fmt.Sprintf("laf.%s.frontend", c.family), payload)
	if err != nil {
		return nil, fmt.Errorf("dispatching to broker: %w", err)
	}
	return msg.Data, nil
}
