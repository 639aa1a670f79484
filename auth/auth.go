// Package auth owns the bearer-token lifecycle: exchanging the long-lived
// IBM Cloud API key for short-lived IAM access tokens, caching the current
// token, and refreshing it ahead of expiry.
//
// The token cache is the one piece of shared mutable state in the toolkit.
// Reads of a still-valid token take a shared lock and do not block each
// other; a refresh is a single critical section, so concurrent callers that
// arrive while an exchange is in flight wait for and receive its result
// instead of issuing their own request.
package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/watsonhub/ibmcloudkit/config"
	"github.com/watsonhub/ibmcloudkit/tool"
)

// Refresh policy constants. IAM tokens are valid for 60 minutes; refreshing
// 5 minutes early means a token handed to a caller always has usable life
// left even if the caller holds it across a slow request.
const (
	DefaultMargin      = 5 * time.Minute
	defaultMaxAttempts = 3
	defaultBackoff     = 500 * time.Millisecond
	defaultTimeout     = 30 * time.Second
)

// Token is one short-lived bearer credential. Tokens are replaced on
// refresh, never mutated in place. The value must not appear in logs or
// tool results.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// fresh reports whether the token is still usable at now, with the refresh
// margin applied: a token inside the margin is treated as expired.
func (t Token) fresh(now time.Time, margin time.Duration) bool {
	return t.Value != "" && now.Add(margin).Before(t.ExpiresAt)
}

// RefreshObservation captures one token-exchange outcome for observability.
// It never carries the credential or the token value.
type RefreshObservation struct {
	Attempts   int
	DurationMS int64
	Success    bool
	ErrorKind  tool.Kind
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Credential config.Credential
	// TokenURL is the IAM token exchange endpoint. Defaults to the public
	// IBM Cloud IAM endpoint.
	TokenURL string
	// HTTPClient is used for the exchange request. Defaults to a client
	// with a 30 s timeout.
	HTTPClient *http.Client
	// Margin is the refresh safety window. Defaults to 5 minutes.
	Margin time.Duration
	// MaxAttempts bounds retries of transient exchange failures. Defaults
	// to 3. Credential rejection is never retried.
	MaxAttempts int
	// Backoff is the linear backoff unit between attempts (unit × attempt).
	// Defaults to 500 ms.
	Backoff time.Duration
	// OnRefresh, when set, receives one observation per exchange attempt
	// sequence (not per attempt).
	OnRefresh func(RefreshObservation)
}

// Manager acquires, caches, and refreshes IAM bearer tokens. Safe for
// concurrent use.
type Manager struct {
	iam         *iamClient
	apiKey      string
	margin      time.Duration
	maxAttempts int
	backoff     time.Duration
	onRefresh   func(RefreshObservation)

	// now is replaceable in tests.
	now func() time.Time

	mu     sync.RWMutex
	cached Token
}

// NewManager creates a token manager for the given credential.
func NewManager(cfg ManagerConfig) *Manager {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = config.DefaultIAMTokenURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	margin := cfg.Margin
	if margin <= 0 {
		margin = DefaultMargin
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	return &Manager{
		iam:         &iamClient{tokenURL: tokenURL, httpClient: httpClient},
		apiKey:      cfg.Credential.APIKey,
		margin:      margin,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		onRefresh:   cfg.OnRefresh,
		now:         time.Now,
	}
}

// Token returns a bearer token whose expiry is strictly beyond the refresh
// margin. It returns the cached token when still fresh, otherwise performs
// one synchronous exchange and replaces the cache.
func (m *Manager) Token(ctx context.Context) (Token, error) {
	m.mu.RLock()
	cached := m.cached
	m.mu.RUnlock()

	if cached.fresh(m.now(), m.margin) {
		return cached, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if m.cached.fresh(m.now(), m.margin) {
		return m.cached, nil
	}

	token, err := m.exchangeWithRetry(ctx)
	if err != nil {
		return Token{}, err
	}
	m.cached = token
	return token, nil
}

// exchangeWithRetry performs the IAM exchange, retrying transient failures
// with linear backoff. Credential rejection propagates immediately.
func (m *Manager) exchangeWithRetry(ctx context.Context) (Token, error) {
	start := m.now()
	var lastErr error

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Token{}, tool.WrapErr(tool.KindTransient, err, "token exchange canceled")
		}

		token, err := m.iam.exchange(ctx, m.apiKey)
		if err == nil {
			m.observe(attempt, start, nil)
			return token, nil
		}
		lastErr = err

		if tool.KindOf(err) != tool.KindTransient || attempt == m.maxAttempts {
			break
		}

		timer := time.NewTimer(m.backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Token{}, tool.WrapErr(tool.KindTransient, ctx.Err(), "token exchange canceled")
		case <-timer.C:
		}
	}

	m.observe(m.maxAttempts, start, lastErr)
	return Token{}, lastErr
}

func (m *Manager) observe(attempts int, start time.Time, err error) {
	if m.onRefresh == nil {
		return
	}
	obs := RefreshObservation{
		Attempts:   attempts,
		DurationMS: m.now().Sub(start).Milliseconds(),
		Success:    err == nil,
	}
	if err != nil {
		obs.ErrorKind = tool.KindOf(err)
	}
	m.onRefresh(obs)
}
