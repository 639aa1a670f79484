package ibmcloud

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/watsonhub/ibmcloudkit/auth"
	"github.com/watsonhub/ibmcloudkit/tool"
)

type staticTokens struct{}

func (staticTokens) Token(context.Context) (auth.Token, error) {
	return auth.Token{Value: "test-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func newTestClient() *Client {
	return NewClient(ClientConfig{
		Tokens: staticTokens{},
		Retry:  RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
	})
}

func TestGetJSON_InjectsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"projects":[],"limit":100}`))
	}))
	defer srv.Close()

	var out struct {
		Projects []any `json:"projects"`
	}
	if err := newTestClient().GetJSON(context.Background(), srv.URL+"/v2/projects", nil, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want Bearer test-token", gotAuth)
	}
}

func TestDoJSON_RetriesTransientThenSucceeds(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient()
	var out map[string]any
	if err := c.GetJSON(context.Background(), srv.URL, nil, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3", hits.Load())
	}
	if c.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", c.Calls())
	}
}

func TestDoJSON_StatusClassification(t *testing.T) {
	cases := []struct {
		status   int
		wantKind tool.Kind
		wantHits int64 // transient statuses burn the whole retry budget
	}{
		{http.StatusUnauthorized, tool.KindAuth, 1},
		{http.StatusForbidden, tool.KindAuth, 1},
		{http.StatusNotFound, tool.KindNotFound, 1},
		{http.StatusBadRequest, tool.KindUpstream, 1},
		{http.StatusTooManyRequests, tool.KindTransient, 3},
		{http.StatusInternalServerError, tool.KindTransient, 3},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			var hits atomic.Int64
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				http.Error(w, "nope", tc.status)
			}))
			defer srv.Close()

			err := newTestClient().GetJSON(context.Background(), srv.URL, nil, nil)
			if tool.KindOf(err) != tc.wantKind {
				t.Errorf("KindOf = %q, want %q", tool.KindOf(err), tc.wantKind)
			}
			te, ok := tool.AsError(err)
			if !ok || te.Status != tc.status {
				t.Errorf("Status = %v, want %d", err, tc.status)
			}
			if hits.Load() != tc.wantHits {
				t.Errorf("hits = %d, want %d", hits.Load(), tc.wantHits)
			}
		})
	}
}

func TestDoJSON_QueryEncoding(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	q := url.Values{"resource_id": {"logs"}, "limit": {"50"}}
	if err := newTestClient().GetJSON(context.Background(), srv.URL, q, nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if gotQuery.Get("resource_id") != "logs" || gotQuery.Get("limit") != "50" {
		t.Errorf("query = %v, want resource_id=logs limit=50", gotQuery)
	}
}

func TestDoJSON_ExtraHeaders(t *testing.T) {
	var gotInstance string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotInstance = r.Header.Get("IBMInstanceID")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	err := newTestClient().DoJSON(context.Background(), Request{
		Method: http.MethodGet,
		URL:    srv.URL,
		Header: http.Header{"IBMInstanceID": {"guid-1"}},
	}, nil)
	if err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if gotInstance != "guid-1" {
		t.Errorf("IBMInstanceID = %q, want guid-1", gotInstance)
	}
}

func TestDoJSON_ErrorMessageRedactsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newTestClient().GetJSON(context.Background(), srv.URL+"/v2/things", url.Values{"secret": {"hunter2"}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if msg := err.Error(); strings.Contains(msg, "hunter2") || strings.Contains(msg, "secret=") {
		t.Errorf("error message leaks query values: %q", msg)
	}
}
