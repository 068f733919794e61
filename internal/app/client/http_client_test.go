package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"fieldsync/internal/app/client/config"
	"fieldsync/internal/domain/mutation"
)

func newTestHTTPClient(t *testing.T, handler http.HandlerFunc) *httpClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewHTTPClient(&config.Config{
		ServerAddress: strings.TrimPrefix(srv.URL, "http://"),
		SyncTimeout:   5 * time.Second,
	}, slog.Default())
	c.SetToken("secret")
	return c
}

func TestHTTPClient_SubmitBatch(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sync/batch", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body struct {
			Mutations []mutation.Mutation `json:"mutations"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Mutations, 1)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"outcomes": []mutation.Outcome{mutation.Completed(body.Mutations[0].ID, "job:1")},
		})
	})

	out, err := c.SubmitBatch(context.Background(), []mutation.Mutation{
		{ID: "m-1", Resource: mutation.ResourceJob, Operation: mutation.OpCreate, Payload: json.RawMessage(`{}`)},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "job:1", out[0].ResultRef)
}

func TestHTTPClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, want: ErrUnauthenticated},
		{name: "forbidden", status: http.StatusForbidden, want: ErrForbidden},
		{name: "busy", status: http.StatusServiceUnavailable, want: ErrOffline},
		{name: "internal", status: http.StatusInternalServerError, want: ErrOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestHTTPClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"detail":"nope"}`))
			})

			_, err := c.SubmitBatch(context.Background(), nil)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	c := NewHTTPClient(&config.Config{ServerAddress: addr, SyncTimeout: time.Second}, slog.Default())

	assert.ErrorIs(t, c.HealthCheck(context.Background()), ErrOffline)
	_, err := c.SubmitBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrOffline)
}

func TestHTTPClient_Claims(t *testing.T) {
	expires := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)

	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/tasks/t-1/claim":
			_ = json.NewEncoder(w).Encode(map[string]any{"claimed": true, "expires_at": expires, "claimed_by": "tech-1"})
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/tasks/t-1/release":
			_ = json.NewEncoder(w).Encode(map[string]any{"released": true})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/tasks/t-1/claim":
			_ = json.NewEncoder(w).Encode(map[string]any{"claimed": false})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	res, err := c.Claim(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, res.Claimed)
	assert.Equal(t, "tech-1", res.ClaimedBy)
	assert.True(t, expires.Equal(res.ExpiresAt))

	ok, err := c.Release(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, ok)

	state, err := c.GetClaim(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, state.Claimed)

	_, err = c.Claim(ctx, "t-2")
	assert.Error(t, err)
}
