// Package mpesa is a client for the Safaricom Daraja API: OAuth tokens, STK
// push (Lipa na M-Pesa Online) and the asynchronous STK callback.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/campusbite/campusbite-api/internal/domain/order"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	stkPath   = "/mpesa/stkpush/v1/processrequest"

	// tokenMargin is subtracted from expires_in so a token is never used in
	// its last minute.
	tokenMargin = 60 * time.Second

	transactionType = "CustomerPayBillOnline"
	transactionDesc = "CampusBite Food Order"
)

// eat is East Africa Time, the zone Daraja expects timestamps in.
var eat = time.FixedZone("EAT", 3*60*60)

// Config holds Daraja credentials and endpoints.
type Config struct {
	BaseURL        string        `default:"https://sandbox.safaricom.co.ke" usage:"Daraja API base URL"`
	ConsumerKey    string        `usage:"Daraja app consumer key"`
	ConsumerSecret string        `usage:"Daraja app consumer secret"`
	ShortCode      string        `default:"174379" usage:"Paybill or till number"`
	Passkey        string        `usage:"Lipa na M-Pesa Online passkey"`
	CallbackURL    string        `usage:"Public HTTPS URL of the STK callback endpoint"`
	Timeout        time.Duration `default:"30s" usage:"HTTP timeout per Daraja request"`
	TokenRetries   uint64        `default:"3" usage:"Retries for token requests on network errors and 5xx"`
}

// Options carries optional dependencies of a Client.
type Options struct {
	HTTPClient     *http.Client
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Client talks to Daraja. It is safe for concurrent use; the access token is
// shared and refreshed under a mutex.
type Client struct {
	cfg    Config
	http   *http.Client
	tracer trace.Tracer

	now     func() time.Time
	backoff func() backoff.BackOff

	mu      sync.Mutex
	token   string
	expires time.Time
}

var _ order.Gateway = (*Client)(nil)

// NewClient creates a Client. A nil HTTPClient gets an otelhttp-instrumented
// one with cfg.Timeout.
func NewClient(cfg Config, opts Options) *Client {
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := opts.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(tp),
				otelhttp.WithMeterProvider(mp),
			),
		}
	}
	return &Client{
		cfg:    cfg,
		http:   hc,
		tracer: tp.Tracer("github.com/campusbite/campusbite-api/internal/mpesa"),
		now:    time.Now,
		backoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// Token returns a cached access token, fetching a new one when the cached
// token is missing or about to expire.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expires) {
		return c.token, nil
	}

	var (
		token string
		ttl   time.Duration
	)
	op := func() error {
		var err error
		token, ttl, err = c.fetchToken(ctx)
		return err
	}
	notify := func(err error, d time.Duration) {
		zctx.From(ctx).Warn("Daraja token request failed, retrying",
			zap.Error(err),
			zap.Duration("backoff", d),
		)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(c.backoff(), c.cfg.TokenRetries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return "", errors.Wrap(err, "get access token")
	}

	c.token = token
	c.expires = c.now().Add(ttl - tokenMargin)
	return token, nil
}

// invalidate drops the cached token if it is still tok.
func (c *Client) invalidate(tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == tok {
		c.token = ""
	}
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+tokenPath, http.NoBody)
	if err != nil {
		return "", 0, backoff.Permanent(errors.Wrap(err, "create request"))
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, errors.Wrap(err, "read body")
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", 0, &AuthError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	case resp.StatusCode != http.StatusOK:
		return "", 0, backoff.Permanent(&AuthError{StatusCode: resp.StatusCode, Message: errorMessage(body)})
	}

	token, ttl, err := decodeToken(body)
	if err != nil {
		return "", 0, backoff.Permanent(errors.Wrap(err, "decode token"))
	}
	return token, ttl, nil
}

// decodeToken parses {"access_token": "...", "expires_in": "3599"}.
// expires_in is documented as a string but some environments send a number.
func decodeToken(body []byte) (string, time.Duration, error) {
	var (
		token   string
		seconds = 3599
	)
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "access_token":
			v, err := d.Str()
			token = v
			return err
		case "expires_in":
			switch d.Next() {
			case jx.String:
				v, err := d.Str()
				if err != nil {
					return err
				}
				n, err := strconv.Atoi(v)
				if err != nil {
					return errors.Wrap(err, "expires_in")
				}
				seconds = n
				return nil
			case jx.Number:
				n, err := d.Int()
				seconds = n
				return err
			default:
				return d.Skip()
			}
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return "", 0, err
	}
	if token == "" {
		return "", 0, errors.New("empty access_token")
	}
	return token, time.Duration(seconds) * time.Second, nil
}

// STKPush prompts the payer to authorize the payment on their handset. The
// amount is rounded up to whole shillings. The request is not retried.
func (c *Client) STKPush(ctx context.Context, req order.PushRequest) (_ *order.PushResult, rerr error) {
	ctx, span := c.tracer.Start(ctx, "mpesa.STKPush",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("order.id", req.OrderID)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	body := c.encodePush(req, c.now())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+stkPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidate(token)
	}

	res, err := decodePushResponse(data)
	if err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, errors.Wrap(err, "decode response")
	}
	if res.ErrorMessage != "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Code: res.ErrorCode, Message: res.ErrorMessage}
	}
	if resp.StatusCode != http.StatusOK || res.ResponseCode != "0" {
		return nil, &APIError{StatusCode: resp.StatusCode, Code: res.ResponseCode, Message: res.ResponseDescription}
	}

	span.SetAttributes(attribute.String("mpesa.checkout_request_id", res.CheckoutRequestID))
	return &order.PushResult{
		MerchantRequestID: res.MerchantRequestID,
		CheckoutRequestID: res.CheckoutRequestID,
		CustomerMessage:   res.CustomerMessage,
	}, nil
}

// Password derives the STK password for a timestamp.
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

// Timestamp formats t as Daraja expects: YYYYMMDDHHmmss in EAT.
func Timestamp(t time.Time) string {
	return t.In(eat).Format("20060102150405")
}

func (c *Client) encodePush(req order.PushRequest, now time.Time) []byte {
	ts := Timestamp(now)
	amount := req.Amount.Ceil().IntPart()

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("BusinessShortCode", func(e *jx.Encoder) { e.Str(c.cfg.ShortCode) })
		e.Field("Password", func(e *jx.Encoder) { e.Str(Password(c.cfg.ShortCode, c.cfg.Passkey, ts)) })
		e.Field("Timestamp", func(e *jx.Encoder) { e.Str(ts) })
		e.Field("TransactionType", func(e *jx.Encoder) { e.Str(transactionType) })
		e.Field("Amount", func(e *jx.Encoder) { e.Int64(amount) })
		e.Field("PartyA", func(e *jx.Encoder) { e.Str(req.Phone) })
		e.Field("PartyB", func(e *jx.Encoder) { e.Str(c.cfg.ShortCode) })
		e.Field("PhoneNumber", func(e *jx.Encoder) { e.Str(req.Phone) })
		e.Field("CallBackURL", func(e *jx.Encoder) { e.Str(c.cfg.CallbackURL) })
		e.Field("AccountReference", func(e *jx.Encoder) { e.Str("Order " + req.OrderID) })
		e.Field("TransactionDesc", func(e *jx.Encoder) { e.Str(transactionDesc) })
	})
	return e.Bytes()
}

type pushResponse struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string
	ErrorCode           string
	ErrorMessage        string
}

func decodePushResponse(data []byte) (pushResponse, error) {
	var r pushResponse
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var dst *string
		switch key {
		case "MerchantRequestID":
			dst = &r.MerchantRequestID
		case "CheckoutRequestID":
			dst = &r.CheckoutRequestID
		case "ResponseCode":
			dst = &r.ResponseCode
		case "ResponseDescription":
			dst = &r.ResponseDescription
		case "CustomerMessage":
			dst = &r.CustomerMessage
		case "errorCode":
			dst = &r.ErrorCode
		case "errorMessage":
			dst = &r.ErrorMessage
		default:
			return d.Skip()
		}
		v, err := scalar(d)
		*dst = v
		return err
	})
	return r, err
}

// errorMessage extracts errorMessage from a Daraja error body, if any.
func errorMessage(body []byte) string {
	r, err := decodePushResponse(body)
	if err != nil {
		return ""
	}
	return r.ErrorMessage
}

// scalar reads a string, number or null as text.
func scalar(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		return string(n), err
	case jx.Null:
		return "", d.Null()
	default:
		return "", d.Skip()
	}
}
