// Package swap is the client for the boleto settlement API. It layers
// a cached OAuth token, an api-key header and a circuit breaker over
// plain HTTP, and exposes the two domain operations: checking a boleto
// and paying it.
package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/paynet/cnab/pkg/cnab"
	"github.com/paynet/cnab/pkg/money"
)

// Per-environment API hosts, overridable through BaseURL.
var environmentURLs = map[string]string{
	"staging":    "https://api-stag.contaswap.io",
	"production": "https://api-prod.contaswap.io",
}

// Config holds the settlement API settings.
type Config struct {
	// Environment selects the API host ("staging" or "production")
	// when BaseURL is not set explicitly.
	Environment  string
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	APIKey       string

	// CompanyCNPJ is the payer document used when the caller supplies
	// none.
	CompanyCNPJ string
	AccountID   string

	// Payment window, local time, HH:MM. Defaults 07:00..23:00.
	WindowStart string
	WindowEnd   string

	Timeout          time.Duration
	TokenSkew        time.Duration
	BreakerThreshold int32
	BreakerCooldown  time.Duration

	// Observe, when set, receives the outcome label of every request:
	// success, circuit_open, network_error, upstream_error,
	// auth_failed or client_error.
	Observe func(outcome string)
}

// Client talks to the settlement API.
type Client struct {
	cfg     Config
	http    *http.Client
	tokens  *tokenSource
	breaker *CircuitBreaker
	log     *zap.Logger
	now     func() time.Time
}

// New builds a settlement client.
func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.WindowStart == "" {
		cfg.WindowStart = "07:00"
	}
	if cfg.WindowEnd == "" {
		cfg.WindowEnd = "23:00"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = environmentURLs[cfg.Environment]
	}
	if cfg.TokenURL == "" && cfg.BaseURL != "" {
		cfg.TokenURL = cfg.BaseURL + "/oauth/token"
	}
	hc := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		cfg:     cfg,
		http:    hc,
		tokens:  newTokenSource(cfg, hc),
		breaker: NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, log),
		log:     log,
		now:     time.Now,
	}
}

// Breaker exposes the circuit breaker for status queries.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

// BoletoCheck is the settlement API's view of a boleto, enriched with
// the local payability flags.
type BoletoCheck struct {
	ID              string       `json:"id"`
	Barcode         string       `json:"barcode"`
	Amount          money.Amount `json:"amount"`
	DueDate         string       `json:"due_date"`
	Assignor        string       `json:"assignor,omitempty"`
	PayerName       string       `json:"payer_name,omitempty"`
	Status          string       `json:"status,omitempty"`
	CanPayToday     bool         `json:"canPayToday"`
	InPaymentWindow bool         `json:"isInPaymentWindow"`
}

// PaymentResult is the settlement API's answer to a payment order.
type PaymentResult struct {
	ID       string       `json:"id"`
	BoletoID string       `json:"boleto_id"`
	Amount   money.Amount `json:"amount"`
	Status   string       `json:"status"`
}

// CheckBoleto consults the settlement API about one barcode. The
// barcode must be digits only, 47 (linha digitável) or 48 long; that
// is checked before any network round trip.
func (c *Client) CheckBoleto(ctx context.Context, barcode string) (*BoletoCheck, error) {
	if err := checkFormat(barcode); err != nil {
		return nil, err
	}

	body, err := c.do(ctx, http.MethodPost, "/ledger/payments/boletos", map[string]string{"barcode": barcode})
	if err != nil {
		return nil, err
	}
	if emptyPayload(body) {
		return nil, &Error{Code: CodeEmptyResponse, Message: "settlement API returned no boleto data"}
	}

	var check BoletoCheck
	if err := json.Unmarshal(body, &check); err != nil {
		return nil, &Error{Code: CodeUpstream, Message: "boleto response malformed", Err: err}
	}
	c.enrich(&check)
	return &check, nil
}

// PayBoleto checks the boleto and orders its payment. An empty
// document falls back to the configured company CNPJ.
func (c *Client) PayBoleto(ctx context.Context, barcode, document string) (*PaymentResult, error) {
	check, err := c.CheckBoleto(ctx, barcode)
	if err != nil {
		return nil, err
	}
	if check.ID == "" {
		return nil, &Error{Code: CodeEmptyResponse, Message: "boleto check returned no id"}
	}
	if document == "" {
		document = c.cfg.CompanyCNPJ
	}

	payload := map[string]any{
		"amount":     check.Amount,
		"document":   document,
		"account_id": c.cfg.AccountID,
	}
	body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/ledger/payments/boletos/%s/pay", check.ID), payload)
	if err != nil {
		return nil, err
	}

	var result PaymentResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &Error{Code: CodeUpstream, Message: "payment response malformed", Err: err}
	}
	c.log.Info("boleto payment ordered",
		zap.String("boleto_id", check.ID),
		zap.String("payment_id", result.ID),
		zap.String("amount", check.Amount.String()))
	return &result, nil
}

// do runs one authenticated exchange under the circuit breaker. A 401
// invalidates the token cache and retries exactly once with a fresh
// credential.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if !c.breaker.Allow() {
		c.observe("circuit_open")
		return nil, &Error{Code: CodeCircuitOpen, Message: "settlement API circuit is open"}
	}

	body, status, err := c.exchange(ctx, method, path, payload)
	if status == http.StatusUnauthorized {
		c.tokens.Invalidate()
		c.log.Warn("settlement API rejected token, retrying once")
		body, status, err = c.exchange(ctx, method, path, payload)
	}

	switch {
	case err != nil:
		c.breaker.Failure()
		c.observe("network_error")
		return nil, &Error{Code: CodeUpstream, Message: "settlement API unreachable", Err: err}
	case status >= 500:
		c.breaker.Failure()
		c.observe("upstream_error")
		return nil, &Error{Code: CodeUpstream, Status: status,
			Message: fmt.Sprintf("settlement API answered %d", status)}
	case status == http.StatusUnauthorized:
		c.breaker.Success()
		c.observe("auth_failed")
		return nil, &Error{Code: CodeAuthFailed, Status: status, Message: "settlement API rejected credentials"}
	case status >= 400:
		c.breaker.Success()
		c.observe("client_error")
		return nil, &Error{Code: CodeUpstream, Status: status,
			Message: fmt.Sprintf("settlement API answered %d: %s", status, truncate(body, 200))}
	}
	c.breaker.Success()
	c.observe("success")
	return body, nil
}

func (c *Client) observe(outcome string) {
	if c.cfg.Observe != nil {
		c.cfg.Observe(outcome)
	}
}

func (c *Client) exchange(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, 0, err
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// enrich fills the payability flags from the due date and the
// configured payment window.
func (c *Client) enrich(check *BoletoCheck) {
	now := c.now()
	if check.DueDate != "" {
		if due, err := time.ParseInLocation("2006-01-02", check.DueDate, now.Location()); err == nil {
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			check.CanPayToday = !due.Before(today)
		}
	}
	check.InPaymentWindow = inWindow(now, c.cfg.WindowStart, c.cfg.WindowEnd)
}

func inWindow(now time.Time, start, end string) bool {
	parse := func(s string) (int, bool) {
		var h, m int
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, false
		}
		return h*60 + m, true
	}
	s, okS := parse(start)
	e, okE := parse(end)
	if !okS || !okE {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	return cur >= s && cur <= e
}

func checkFormat(barcode string) error {
	digits := cnab.DigitsOnly(barcode)
	if digits != barcode || (len(digits) != 47 && len(digits) != 48) {
		return &Error{Code: CodeInvalidFormat,
			Message: fmt.Sprintf("barcode must be 47 or 48 digits, got %d characters", len(barcode))}
	}
	return nil
}

func emptyPayload(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}"))
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
