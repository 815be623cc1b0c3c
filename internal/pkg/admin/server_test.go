package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/endorses/trustpeer/internal/pkg/checker"
	"github.com/endorses/trustpeer/internal/pkg/metrics"
	"github.com/endorses/trustpeer/internal/pkg/output"
	"github.com/endorses/trustpeer/internal/pkg/tagsink"
	"github.com/endorses/trustpeer/internal/pkg/trusted"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, loaded bool) *Server {
	t.Helper()
	store := trusted.NewStore(nil)
	if loaded {
		tbl, err := trusted.New(trusted.DefaultConfig())
		require.NoError(t, err)
		tag, pattern, bad := "peerA", "^sip:alice@", "(oops"
		_, err = tbl.Insert("10.0.0.5", "udp", nil, &tag)
		require.NoError(t, err)
		_, err = tbl.Insert("10.0.0.6", "any", &pattern, nil)
		require.NoError(t, err)
		_, err = tbl.Insert("10.0.0.7", "any", &bad, nil)
		require.NoError(t, err)
		store.Swap(tbl)
	}
	col := metrics.New()
	m := trusted.NewMatcher(store, trusted.MatcherConfig{MaxURISize: 64})
	binding, err := tagsink.ParseBinding("peer_tag")
	require.NoError(t, err)
	return New(Config{
		Store:   store,
		Checker: checker.New(m, binding, col),
		Metrics: col,
	})
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, get(t, newServer(t, false).Handler(), "/healthz").Code)

	rec := get(t, newServer(t, true).Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Trusted-Generation"))

	builtAt, err := time.Parse(time.RFC3339Nano, rec.Header().Get("X-Trusted-Built-At"))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), builtAt, time.Minute)
}

func TestDump(t *testing.T) {
	rec := get(t, newServer(t, true).Handler(), "/trusted")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<10.0.0.5, 1, NULL, peerA>")
	assert.Contains(t, body, "<10.0.0.6, 0, ^sip:alice@, NULL>")
	assert.Equal(t, 3, strings.Count(body, "\n"))

	assert.Equal(t, http.StatusServiceUnavailable, get(t, newServer(t, false).Handler(), "/trusted").Code)
}

func TestCheck(t *testing.T) {
	h := newServer(t, true).Handler()

	tests := []struct {
		name    string
		target  string
		status  int
		matched bool
		tag     string
		errSub  string
	}{
		{"match with tag", "/check?src=10.0.0.5&proto=udp&uri=sip:x@y", http.StatusOK, true, "peerA", ""},
		{"default proto is udp", "/check?src=10.0.0.5", http.StatusOK, true, "peerA", ""},
		{"protocol mismatch", "/check?src=10.0.0.5&proto=tcp", http.StatusOK, false, "", ""},
		{"pattern gate", "/check?src=10.0.0.6&proto=tls&uri=sip:alice@example.com", http.StatusOK, true, "", ""},
		{"pattern reject", "/check?src=10.0.0.6&proto=tls&uri=sip:bob@example.com", http.StatusOK, false, "", ""},
		{"invalid pattern", "/check?src=10.0.0.7&proto=tcp&uri=sip:a@b", http.StatusInternalServerError, false, "", "invalid pattern"},
		{"uri too long", "/check?src=10.0.0.5&uri=" + strings.Repeat("a", 65), http.StatusBadRequest, false, "", "too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.target)
			require.Equal(t, tt.status, rec.Code)
			var d output.Decision
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
			assert.Equal(t, tt.matched, d.Matched)
			assert.Equal(t, tt.tag, d.Tag)
			if tt.tag != "" {
				assert.Equal(t, tt.tag, d.Attribute)
			}
			if tt.errSub != "" {
				assert.Contains(t, d.Error, tt.errSub)
			}
		})
	}
}

func TestCheck_BadRequests(t *testing.T) {
	h := newServer(t, true).Handler()
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/check").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/check?src=10.0.0.5&proto=none").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/check?src=10.0.0.5&proto=ws").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newServer(t, true).Handler()
	get(t, h, "/check?src=10.0.0.5")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `trustpeer_lookups_total{result="match"} 1`)
}

func TestStartShutdown(t *testing.T) {
	s := newServer(t, true)
	s.cfg.Listen = "127.0.0.1:0"
	addr, err := s.Start()
	require.NoError(t, err)

	_, err = s.Start()
	assert.Error(t, err)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, s.Shutdown(ctx))
}
