package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/wsdtool/wsdtool/internal/logging"
)

const (
	// ContentType is the media type of every SOAP request.
	ContentType = "application/soap+xml"

	// UserAgent is sent with every request. Some devices only answer
	// clients that identify like the Windows WSD stack.
	UserAgent = "WSDAPI"

	// DefaultTimeout bounds a single HTTP attempt
	DefaultTimeout = 5 * time.Second

	// DefaultMaxRetries is the number of additional attempts after a timeout
	DefaultMaxRetries = 2

	// RetryDelayMin and RetryDelayMax bound the random first retry delay
	RetryDelayMin = 50 * time.Millisecond
	RetryDelayMax = 250 * time.Millisecond

	// RetryDelayCap caps the doubled delay
	RetryDelayCap = 500 * time.Millisecond

	maxResponseSize = 32 << 20
)

// Response is a device reply. Non-2xx replies that carry a body are
// returned as responses too, since WSD services report SOAP faults with
// status 400 or 500.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client posts SOAP requests over HTTP
type Client struct {
	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// MaxRetries is the number of additional attempts after a timeout
	MaxRetries int

	// NewBackOff returns the delay policy used between attempts
	NewBackOff func() backoff.BackOff
}

// NewClient creates a client whose attempts time out after timeout
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		MaxRetries: DefaultMaxRetries,
		NewBackOff: func() backoff.BackOff { return NewRetryPolicy() },
	}
}

// Post sends body to addr. Timeouts are retried up to MaxRetries times;
// any other failure is returned immediately.
func (c *Client) Post(ctx context.Context, addr string, body []byte) (*Response, error) {
	var resp *Response
	attempt := 0

	operation := func() error {
		attempt++
		r, err := c.do(ctx, addr, body)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}

	notify := func(err error, next time.Duration) {
		logging.Debug("Retrying request",
			zap.String("addr", addr),
			zap.Int("attempt", attempt),
			zap.Duration("delay", next),
			zap.Error(err),
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.NewBackOff(), uint64(c.MaxRetries)), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return resp, nil
}

// PostAny tries addrs in order and returns the first reply together with
// the address that produced it. ErrUnreachable is returned when none
// answers.
func (c *Client) PostAny(ctx context.Context, addrs []string, body []byte) (*Response, string, error) {
	var lastErr error
	for _, addr := range addrs {
		resp, err := c.Post(ctx, addr, body)
		if err == nil {
			return resp, addr, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		logging.Debug("Transport address failed", zap.String("addr", addr), zap.Error(err))
		lastErr = err
	}
	if lastErr == nil {
		return nil, "", fmt.Errorf("%w: no transport address", ErrUnreachable)
	}
	return nil, "", fmt.Errorf("%w: %w", ErrUnreachable, lastErr)
}

func (c *Client) do(ctx context.Context, addr string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "invalid request", Addr: addr, Err: err}
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("User-Agent", UserAgent)

	logging.LogSOAPMessage("send", addr, body)

	httpResp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, Classify(err, addr)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, Classify(err, addr)
	}

	logging.LogSOAPMessage("recv", addr, data)

	if httpResp.StatusCode/100 != 2 && len(bytes.TrimSpace(data)) == 0 {
		return nil, NewHTTPError(addr, httpResp.StatusCode)
	}

	return &Response{
		StatusCode:  httpResp.StatusCode,
		ContentType: httpResp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

// RetryPolicy implements backoff.BackOff with a random first delay in
// [RetryDelayMin, RetryDelayMax] that doubles on every step up to
// RetryDelayCap.
type RetryPolicy struct {
	current time.Duration
}

// NewRetryPolicy returns a policy in its initial state
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{}
}

// NextBackOff returns the next delay
func (p *RetryPolicy) NextBackOff() time.Duration {
	if p.current == 0 {
		p.current = RetryDelayMin + rand.N(RetryDelayMax-RetryDelayMin+1)
	} else {
		p.current *= 2
	}
	if p.current > RetryDelayCap {
		p.current = RetryDelayCap
	}
	return p.current
}

// Reset restarts the sequence
func (p *RetryPolicy) Reset() {
	p.current = 0
}

var _ backoff.BackOff = (*RetryPolicy)(nil)

// IsConnectionError reports whether err comes from a failed connection
// rather than from the device's answer. A target with no transport
// address counts as a connection failure.
func IsConnectionError(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind != KindHTTP
	}
	return errors.Is(err, ErrUnreachable)
}
