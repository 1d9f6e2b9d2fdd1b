package atlantic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/topup/internal/config"
)

const (
	pathDepositCreate     = "/deposit/create"
	pathDepositStatus     = "/deposit/status"
	pathDepositCancel     = "/deposit/cancel"
	pathDepositMethods    = "/deposit/metode"
	pathTransactionCreate = "/transaksi/create"
	pathTransactionStatus = "/transaksi/status"
	pathPriceList         = "/layanan/price_list"

	productTypePrepaid = "prabayar"
	maxResponseBytes   = 4 << 20
)

var gatewayTracer = otel.Tracer("github.com/Additional-Code/topup/atlantic")

// Module provides the Atlantic client to Fx.
var Module = fx.Provide(New)

// Client talks to the Atlantic H2H API. Creates are sent once; status reads and
// catalog listings are retried on transport failures.
type Client struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// New builds a Client from configuration.
func New(cfg config.Config, logger *zap.Logger) *Client {
	return NewWithHTTPClient(cfg.Atlantic, &http.Client{Timeout: cfg.Atlantic.Timeout}, logger)
}

// NewWithHTTPClient builds a Client using the supplied HTTP client.
func NewWithHTTPClient(cfg config.Atlantic, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		http:       httpClient,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger.Named("atlantic"),
	}
}

// OpenDeposit opens a deposit for the order total.
func (c *Client) OpenDeposit(ctx context.Context, req DepositRequest) Result[Deposit] {
	form := url.Values{
		"reff_id": {req.ReffID},
		"nominal": {req.Nominal.StringFixed(0)},
		"type":    {req.Type},
		"metode":  {req.Method},
	}
	env, err := c.call(ctx, pathDepositCreate, form, false)
	return recordResult(env, err, toDeposit)
}

// DepositStatus fetches the current state of a deposit.
func (c *Client) DepositStatus(ctx context.Context, depositID string) Result[Deposit] {
	env, err := c.call(ctx, pathDepositStatus, url.Values{"id": {depositID}}, true)
	return recordResult(env, err, toDeposit)
}

// CancelDeposit asks the provider to cancel an unpaid deposit.
func (c *Client) CancelDeposit(ctx context.Context, depositID string) Result[Deposit] {
	env, err := c.call(ctx, pathDepositCancel, url.Values{"id": {depositID}}, false)
	return recordResult(env, err, toDeposit)
}

// CreateTransaction starts fulfilment of a product to a target.
func (c *Client) CreateTransaction(ctx context.Context, req TransactionRequest) Result[Transaction] {
	form := url.Values{
		"code":    {req.ProductCode},
		"reff_id": {req.ReffID},
		"target":  {req.Target},
	}
	env, err := c.call(ctx, pathTransactionCreate, form, false)
	return recordResult(env, err, toTransaction)
}

// TransactionStatus fetches the current state of a fulfilment.
func (c *Client) TransactionStatus(ctx context.Context, transactionID string) Result[Transaction] {
	form := url.Values{"id": {transactionID}, "type": {productTypePrepaid}}
	env, err := c.call(ctx, pathTransactionStatus, form, true)
	return recordResult(env, err, toTransaction)
}

// PriceList lists the prepaid products on sale.
func (c *Client) PriceList(ctx context.Context) Result[[]PriceItem] {
	env, err := c.call(ctx, pathPriceList, url.Values{"type": {productTypePrepaid}}, true)
	return listResult(env, err, toPriceItem)
}

// DepositMethods lists the payment channels accepted for deposits.
func (c *Client) DepositMethods(ctx context.Context) Result[[]DepositMethod] {
	env, err := c.call(ctx, pathDepositMethods, url.Values{}, true)
	return listResult(env, err, toDepositMethod)
}

func recordResult[T any](env *envelope, err error, build func(map[string]any) T) Result[T] {
	if err != nil {
		return unreachable[T](err)
	}
	if !env.ok() {
		return rejected[T](env.Message)
	}
	data, err := env.record()
	if err != nil {
		return unreachable[T](&TransportError{Err: err})
	}
	return accepted(build(data), env.Message)
}

func listResult[T any](env *envelope, err error, build func(map[string]any) T) Result[[]T] {
	if err != nil {
		return unreachable[[]T](err)
	}
	if !env.ok() {
		return rejected[[]T](env.Message)
	}
	rows, err := env.records()
	if err != nil {
		return unreachable[[]T](&TransportError{Err: err})
	}
	items := make([]T, 0, len(rows))
	for _, row := range rows {
		items = append(items, build(row))
	}
	return accepted(items, env.Message)
}

func (c *Client) call(ctx context.Context, path string, form url.Values, retry bool) (*envelope, error) {
	ctx, span := gatewayTracer.Start(ctx, "atlantic"+path, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("atlantic.endpoint", path)))
	defer span.End()

	attempts := 1
	if retry {
		attempts += c.maxRetries
	}
	delay := c.retryDelay

	var lastErr error
retries:
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				lastErr = &TransportError{Endpoint: path, Err: ctx.Err()}
				break retries
			case <-timer.C:
			}
			delay *= 2
		}

		env, err := c.post(ctx, path, form)
		if err == nil {
			span.SetAttributes(attribute.Int("atlantic.attempts", attempt))
			return env, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			c.logger.Warn("atlantic call failed; retrying",
				zap.String("endpoint", path),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "transport failure")
	return nil, lastErr
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (*envelope, error) {
	body := url.Values{}
	for k, v := range form {
		body[k] = v
	}
	body.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body.Encode()))
	if err != nil {
		return nil, &TransportError{Endpoint: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: path, Err: scrub(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Endpoint: path, StatusCode: resp.StatusCode, Err: err}
	}

	var env envelope
	if err := decodeNumbers(raw, &env); err != nil || len(env.Status) == 0 {
		if err == nil {
			err = errors.New("missing status field")
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, &TransportError{Endpoint: path, StatusCode: resp.StatusCode, Err: err}
		}
		return nil, &TransportError{Endpoint: path, Err: fmt.Errorf("decode response: %w", err)}
	}

	// A non-2xx reply with a readable envelope is the provider's own verdict.
	if resp.StatusCode >= http.StatusBadRequest && env.ok() {
		return nil, &TransportError{Endpoint: path, StatusCode: resp.StatusCode, Err: errors.New("unexpected success envelope")}
	}
	return &env, nil
}

// scrub drops the request URL from url.Error so upstream hosts and query
// strings do not leak into client-facing messages.
func scrub(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

func decodeNumbers(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}
