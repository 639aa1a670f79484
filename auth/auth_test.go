package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/watsonhub/ibmcloudkit/config"
	"github.com/watsonhub/ibmcloudkit/tool"
)

func iamStub(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func tokenHandler(calls *atomic.Int64, token string, expiresIn int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("apikey") == "" {
			http.Error(w, "missing apikey", http.StatusBadRequest)
			return
		}
		if got := r.PostForm.Get("grant_type"); got != apikeyGrantType {
			http.Error(w, "bad grant type", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": token,
			"expires_in":   expiresIn,
		})
	}
}

func newTestManager(url string) *Manager {
	return NewManager(ManagerConfig{
		Credential: config.Credential{APIKey: "test-key", Region: "us-south"},
		TokenURL:   url,
		Backoff:    time.Millisecond,
	})
}

func TestToken_ConcurrentCallersShareOneExchange(t *testing.T) {
	var calls atomic.Int64
	srv := iamStub(t, func(w http.ResponseWriter, r *http.Request) {
		// Slow the exchange down so every goroutine arrives mid-refresh.
		time.Sleep(20 * time.Millisecond)
		tokenHandler(&calls, "tok-1", 3600)(w, r)
	})

	m := newTestManager(srv.URL)

	const n = 16
	tokens := make([]Token, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.Token(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if tokens[i].Value != "tok-1" {
			t.Fatalf("caller %d got token %q, want tok-1", i, tokens[i].Value)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("exchange requests = %d, want exactly 1", got)
	}
}

func TestToken_LargeJWTResponseSucceeds(t *testing.T) {
	// IAM success bodies carry the full JWT and grow with the account's
	// memberships; a response well past the error-body cap must still parse.
	largeToken := strings.Repeat("claimdata.", 1024) // ~10 KiB
	var calls atomic.Int64
	srv := iamStub(t, tokenHandler(&calls, largeToken, 3600))

	m := newTestManager(srv.URL)
	token, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token.Value != largeToken {
		t.Errorf("token value truncated: got %d bytes, want %d", len(token.Value), len(largeToken))
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("exchange requests = %d, want 1 (no retry on a large body)", got)
	}
}

func TestToken_SafetyWindowScenario(t *testing.T) {
	// 60-minute validity, 5-minute margin: a call at minute 56 refreshes,
	// a call at minute 10 does not.
	var calls atomic.Int64
	srv := iamStub(t, tokenHandler(&calls, "tok-fresh", 3600))

	m := newTestManager(srv.URL)
	base := time.Now()
	m.cached = Token{Value: "tok-old", ExpiresAt: base.Add(60 * time.Minute)}

	m.now = func() time.Time { return base.Add(10 * time.Minute) }
	got, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token at minute 10: %v", err)
	}
	if got.Value != "tok-old" {
		t.Errorf("minute 10: got %q, want cached tok-old", got.Value)
	}
	if calls.Load() != 0 {
		t.Errorf("minute 10 triggered %d exchanges, want 0", calls.Load())
	}

	m.now = func() time.Time { return base.Add(56 * time.Minute) }
	got, err = m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token at minute 56: %v", err)
	}
	if got.Value != "tok-fresh" {
		t.Errorf("minute 56: got %q, want refreshed tok-fresh", got.Value)
	}
	if calls.Load() != 1 {
		t.Errorf("minute 56 triggered %d exchanges, want 1", calls.Load())
	}
}

func TestToken_CredentialRejectionIsNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := iamStub(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"errorCode":    "BXNIM0415E",
			"errorMessage": "Provided API key could not be found",
		})
	})

	m := newTestManager(srv.URL)
	_, err := m.Token(context.Background())
	if tool.KindOf(err) != tool.KindAuth {
		t.Fatalf("KindOf = %q, want %q (err=%v)", tool.KindOf(err), tool.KindAuth, err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("exchange requests = %d, want 1 (no retry on credential rejection)", got)
	}

	// The cache must stay empty; a later call goes back to the provider.
	if m.cached.Value != "" {
		t.Error("failed exchange must not populate the cache")
	}
}

func TestToken_TransientFailuresRetryWithBudget(t *testing.T) {
	var calls atomic.Int64
	srv := iamStub(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream hiccup", http.StatusServiceUnavailable)
			return
		}
		tokenHandler(new(atomic.Int64), "tok-after-retry", 3600)(w, r)
	})

	m := newTestManager(srv.URL)
	got, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got.Value != "tok-after-retry" {
		t.Errorf("Value = %q, want tok-after-retry", got.Value)
	}
	if calls.Load() != 3 {
		t.Errorf("exchange requests = %d, want 3", calls.Load())
	}
}

func TestToken_RetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int64
	srv := iamStub(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	})

	var observed []RefreshObservation
	m := newTestManager(srv.URL)
	m.onRefresh = func(o RefreshObservation) { observed = append(observed, o) }

	_, err := m.Token(context.Background())
	if tool.KindOf(err) != tool.KindTransient {
		t.Fatalf("KindOf = %q, want %q", tool.KindOf(err), tool.KindTransient)
	}
	if calls.Load() != 3 {
		t.Errorf("exchange requests = %d, want 3 (default budget)", calls.Load())
	}
	if len(observed) != 1 || observed[0].Success || observed[0].ErrorKind != tool.KindTransient {
		t.Errorf("observations = %+v, want one failed transient observation", observed)
	}
}

func TestTokenFresh(t *testing.T) {
	now := time.Now()
	tok := Token{Value: "t", ExpiresAt: now.Add(10 * time.Minute)}
	if !tok.fresh(now, 5*time.Minute) {
		t.Error("token 10m from expiry with 5m margin should be fresh")
	}
	if tok.fresh(now.Add(6*time.Minute), 5*time.Minute) {
		t.Error("token 4m from expiry with 5m margin should not be fresh")
	}
	if (Token{}).fresh(now, 0) {
		t.Error("zero token is never fresh")
	}
}
