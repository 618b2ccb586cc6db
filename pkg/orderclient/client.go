// Package orderclient is a small client for the order status API, used to
// wait for the outcome of a mobile-money checkout.
package orderclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Status is the subset of an order the poller inspects.
type Status struct {
	OrderID       string
	PickupCode    string
	PaymentStatus string
	OrderStatus   string
}

// StatusError is a non-2xx response of the API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("order api: status %d", e.Code)
	}
	return fmt.Sprintf("order api: status %d: %s", e.Code, e.Message)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	switch {
	case e.Code >= http.StatusInternalServerError:
		return true
	case e.Code == http.StatusRequestTimeout, e.Code == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// Client reads orders on behalf of one session.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New returns a Client for the API at baseURL authenticating with token.
// A nil httpClient uses an instrumented default.
func New(baseURL, token string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{base: u, token: token, http: httpClient}, nil
}

// Status fetches the current status of an order.
func (c *Client) Status(ctx context.Context, orderID string) (*Status, error) {
	u := c.base.JoinPath("api", "orders", orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(data)}
	}
	return decodeStatus(data)
}

func decodeStatus(data []byte) (*Status, error) {
	var s Status
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId":
			s.OrderID, err = d.Str()
		case "pickupCode":
			s.PickupCode, err = d.Str()
		case "paymentStatus":
			s.PaymentStatus, err = d.Str()
		case "orderStatus":
			s.OrderStatus, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	if s.PaymentStatus == "" || s.OrderStatus == "" {
		return nil, errors.New("order response without status")
	}
	return &s, nil
}

// errorMessage extracts "message" from an API error body.
func errorMessage(data []byte) string {
	var msg string
	_ = jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "message" || d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		msg = v
		return err
	})
	return msg
}

// Outcome is the terminal result of a Poll.
type Outcome string

const (
	OutcomePaid      Outcome = "PAID"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeCancelled Outcome = "CANCELLED"
	// OutcomeInconclusive means the timeout passed before a terminal state.
	// The order is left untouched and may still be paid later.
	OutcomeInconclusive Outcome = "INCONCLUSIVE"
)

// PollConfig bounds a Poll.
type PollConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (c PollConfig) withDefaults() PollConfig {
	if c.Interval <= 0 {
		c.Interval = 3 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	return c
}

// Result of a Poll. Last is the most recent status read, nil if none
// succeeded.
type Result struct {
	Outcome Outcome
	Last    *Status
}

func outcomeOf(s *Status) (Outcome, bool) {
	switch {
	case s.PaymentStatus == "PAID":
		return OutcomePaid, true
	case s.PaymentStatus == "FAILED":
		return OutcomeFailed, true
	case s.OrderStatus == "CANCELLED":
		return OutcomeCancelled, true
	default:
		return "", false
	}
}

// Poll re-reads the order every Interval until its payment settles or
// Timeout passes. Transient failures are logged and polling continues;
// client errors such as 401 or 404 end the poll with an error.
func (c *Client) Poll(ctx context.Context, orderID string, cfg PollConfig) (Result, error) {
	cfg = cfg.withDefaults()
	lg := zctx.From(ctx).With(zap.String("order_id", orderID))

	// Requests in flight share the poll deadline.
	pollCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	tick := time.NewTicker(cfg.Interval)
	defer tick.Stop()

	var last *Status
	timedOut := func() (Result, error) {
		if err := ctx.Err(); err != nil {
			return Result{Last: last}, err
		}
		lg.Info("Payment verification timed out")
		return Result{Outcome: OutcomeInconclusive, Last: last}, nil
	}
	for {
		select {
		case <-pollCtx.Done():
			return timedOut()
		case <-tick.C:
		}

		s, err := c.Status(pollCtx, orderID)
		if err != nil {
			if pollCtx.Err() != nil {
				return timedOut()
			}
			var se *StatusError
			if errors.As(err, &se) && !se.Temporary() {
				return Result{Last: last}, err
			}
			lg.Warn("Poll order status", zap.Error(err))
			continue
		}
		last = s
		if o, ok := outcomeOf(s); ok {
			lg.Debug("Order settled", zap.String("outcome", string(o)))
			return Result{Outcome: o, Last: s}, nil
		}
	}
}
