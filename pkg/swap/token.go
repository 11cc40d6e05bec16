package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// minSkew is the floor on the expiry safety margin.
const minSkew = 30 * time.Second

type token struct {
	access           string
	refresh          string
	expiresAt        time.Time
	refreshExpiresAt time.Time
}

func (t token) valid(now time.Time, skew time.Duration) bool {
	return t.access != "" && t.expiresAt.After(now.Add(skew))
}

func (t token) refreshable(now time.Time) bool {
	return t.refresh != "" && t.refreshExpiresAt.After(now)
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

// tokenSource caches the settlement API credential. Refresh is
// coalesced through a single-flight group so that any number of
// concurrent callers trigger at most one token request.
type tokenSource struct {
	cfg  Config
	http *http.Client
	skew time.Duration

	mu    sync.RWMutex
	tok   token
	group singleflight.Group
}

func newTokenSource(cfg Config, client *http.Client) *tokenSource {
	skew := cfg.TokenSkew
	if skew < minSkew {
		skew = minSkew
	}
	return &tokenSource{cfg: cfg, http: client, skew: skew}
}

// Token returns a valid access token, fetching or refreshing as
// needed.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.RLock()
	tok := ts.tok
	ts.mu.RUnlock()
	if tok.valid(time.Now(), ts.skew) {
		return tok.access, nil
	}

	v, err, _ := ts.group.Do("token", func() (any, error) {
		// A concurrent caller may have refreshed while this one waited
		// on the group.
		ts.mu.RLock()
		cur := ts.tok
		ts.mu.RUnlock()
		now := time.Now()
		if cur.valid(now, ts.skew) {
			return cur.access, nil
		}

		var fresh token
		var err error
		if cur.refreshable(now) {
			fresh, err = ts.request(ctx, map[string]string{
				"grant_type":    "refresh_token",
				"refresh_token": cur.refresh,
				"client_id":     ts.cfg.ClientID,
			})
		}
		if fresh.access == "" {
			fresh, err = ts.request(ctx, map[string]string{
				"grant_type":    "client_credentials",
				"client_id":     ts.cfg.ClientID,
				"client_secret": ts.cfg.ClientSecret,
			})
		}
		if err != nil {
			return "", err
		}

		ts.mu.Lock()
		ts.tok = fresh
		ts.mu.Unlock()
		return fresh.access, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token, forcing the next caller to
// authenticate again. Used after an upstream 401.
func (ts *tokenSource) Invalidate() {
	ts.mu.Lock()
	ts.tok = token{}
	ts.mu.Unlock()
}

func (ts *tokenSource) request(ctx context.Context, grant map[string]string) (token, error) {
	body, err := json.Marshal(grant)
	if err != nil {
		return token{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.cfg.TokenURL, bytes.NewReader(body))
	if err != nil {
		return token{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", ts.cfg.APIKey)

	resp, err := ts.http.Do(req)
	if err != nil {
		return token{}, &Error{Code: CodeAuthFailed, Message: "token request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return token{}, &Error{Code: CodeAuthFailed, Message: "token response unreadable", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return token{}, &Error{Code: CodeAuthFailed, Status: resp.StatusCode,
			Message: fmt.Sprintf("token endpoint answered %d", resp.StatusCode)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return token{}, &Error{Code: CodeAuthFailed, Message: "token response malformed", Err: err}
	}
	if tr.AccessToken == "" {
		return token{}, &Error{Code: CodeAuthFailed, Message: "token endpoint returned no access token"}
	}

	now := time.Now()
	return token{
		access:           tr.AccessToken,
		refresh:          tr.RefreshToken,
		expiresAt:        now.Add(time.Duration(tr.ExpiresIn) * time.Second),
		refreshExpiresAt: now.Add(time.Duration(tr.RefreshExpiresIn) * time.Second),
	}, nil
}
