package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient calls the judge's POST /submit endpoint.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPClient returns a client for the judge at baseURL. A non-positive
// timeout selects DefaultTimeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{},
	}
}

// Judge posts req and decodes the verdict. The judge answers some
// outcomes, such as compilation errors, with a 4xx status and a verdict in
// the body; those count as results.
func (c *HTTPClient) Judge(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode judge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submit", bytes.NewReader(body))
	if err != nil {
		return Result{}, &Error{Kind: ErrUnreachable, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Result{}, classify(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, classify(err)
	}

	result, err := decodeResult(data)
	if err == nil {
		return result, nil
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{}, &Error{Kind: ErrUnreachable, Err: fmt.Errorf("judge returned %s", resp.Status)}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return Result{}, &Error{Kind: ErrMalformedResponse, Err: errors.Join(fmt.Errorf("judge returned %s", resp.Status), err)}
	}
	return Result{}, err
}
