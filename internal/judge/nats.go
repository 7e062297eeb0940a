package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSClient sends judge requests over NATS request/reply. Payloads are the
// same JSON documents the HTTP transport uses.
type NATSClient struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
}

// NewNATSClient returns a client publishing on subject. A non-positive
// timeout selects DefaultTimeout.
func NewNATSClient(conn *nats.Conn, subject string, timeout time.Duration) *NATSClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &NATSClient{conn: conn, subject: subject, timeout: timeout}
}

func (c *NATSClient) Judge(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode judge request: %w", err)
	}

	msg, err := c.conn.RequestWithContext(ctx, c.subject, body)
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			return Result{}, &Error{Kind: ErrTimeout, Err: err}
		}
		return Result{}, classify(err)
	}
	return decodeResult(msg.Data)
}
