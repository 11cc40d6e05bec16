// Package webhook delivers processing results to an external endpoint
// with linear backoff retries. Delivery is best effort: a failed
// webhook never affects the ingest that triggered it.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Error classes reported on a failed delivery.
const (
	ClassTimeout  = "timeout"
	ClassNetwork  = "network"
	ClassAuth     = "auth"
	ClassUpstream = "upstream"
	ClassClient   = "client"
)

// Config holds the dispatcher settings.
type Config struct {
	Enabled       bool
	URL           string        // default target; Send may override
	CNABURL       string        // file-ingest target, preferred over URL when set
	RetryAttempts int           // default 3
	RetryDelay    time.Duration // backoff unit, delay before attempt k+1 is RetryDelay*k
	Timeout       time.Duration // per attempt
	Source        string        // X-Webhook-Source header
	Version       string        // X-Webhook-Version header
}

// Result reports one delivery: whether any attempt landed a 2xx, how
// many attempts ran and how long the whole exchange took.
type Result struct {
	Delivered  bool          `json:"entregue"`
	Attempts   int           `json:"tentativas"`
	StatusCode int           `json:"statusCode,omitempty"`
	ErrorClass string        `json:"classeErro,omitempty"`
	Error      string        `json:"erro,omitempty"`
	Reason     string        `json:"motivo,omitempty"`
	Elapsed    time.Duration `json:"-"`
}

// Dispatcher posts JSON payloads.
type Dispatcher struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

// New builds a dispatcher.
func New(cfg Config, log *zap.Logger) *Dispatcher {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Source == "" {
		cfg.Source = "cnab-ingest"
	}
	return &Dispatcher{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// Send delivers payload to url, falling back to the configured CNAB
// target and then the generic URL when url is empty. A disabled
// dispatcher returns immediately without any I/O.
func (d *Dispatcher) Send(ctx context.Context, operationID string, payload any, url string) *Result {
	if !d.cfg.Enabled {
		return &Result{Reason: "disabled"}
	}
	if url == "" {
		url = d.cfg.CNABURL
	}
	if url == "" {
		url = d.cfg.URL
	}
	if url == "" {
		return &Result{Reason: "no url configured"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &Result{ErrorClass: ClassClient, Error: err.Error()}
	}

	start := time.Now()
	result := &Result{}
	var lastErr error
	for attempt := 1; attempt <= d.cfg.RetryAttempts; attempt++ {
		result.Attempts = attempt

		status, err := d.post(ctx, url, operationID, attempt, body)
		result.StatusCode = status
		if err == nil && status >= 200 && status < 300 {
			result.Delivered = true
			result.Elapsed = time.Since(start)
			d.log.Info("webhook delivered",
				zap.String("operation_id", operationID),
				zap.Int("attempts", attempt),
				zap.Duration("elapsed", result.Elapsed))
			return result
		}

		class, cause := classify(status, err)
		result.ErrorClass = class
		lastErr = cause
		d.log.Warn("webhook attempt failed",
			zap.String("operation_id", operationID),
			zap.Int("attempt", attempt),
			zap.Int("status", status),
			zap.String("class", class),
			zap.Error(cause))

		// Auth and other plain 4xx answers are final; retrying would
		// repeat the same rejection. 408 and 429 classify as
		// timeout/upstream and stay in the loop.
		if class == ClassAuth || class == ClassClient {
			break
		}
		if attempt == d.cfg.RetryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			result.Elapsed = time.Since(start)
			result.Error = ctx.Err().Error()
			return result
		case <-time.After(d.cfg.RetryDelay * time.Duration(attempt)):
		}
	}

	result.Elapsed = time.Since(start)
	if lastErr != nil {
		result.Error = lastErr.Error()
	}
	return result
}

func (d *Dispatcher) post(ctx context.Context, url, operationID string, attempt int, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.cfg.Source+"/"+d.cfg.Version)
	req.Header.Set("X-Webhook-Source", d.cfg.Source)
	req.Header.Set("X-Webhook-Version", d.cfg.Version)
	req.Header.Set("X-Tentativa", fmt.Sprintf("%d", attempt))
	req.Header.Set("X-Operation-Id", operationID)

	resp, err := d.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func classify(status int, err error) (string, error) {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ClassTimeout, err
		}
		return ClassNetwork, err
	}
	switch {
	case status == http.StatusUnauthorized:
		return ClassAuth, fmt.Errorf("endpoint answered 401")
	case status == http.StatusRequestTimeout:
		return ClassTimeout, fmt.Errorf("endpoint answered 408")
	case status == http.StatusTooManyRequests || status >= 500:
		return ClassUpstream, fmt.Errorf("endpoint answered %d", status)
	default:
		return ClassClient, fmt.Errorf("endpoint answered %d", status)
	}
}
