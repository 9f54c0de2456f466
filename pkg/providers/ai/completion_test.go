package ai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest

		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))

	t.Cleanup(server.Close)

	return server
}

func TestCompletion_Complete(t *testing.T) {
	server := completionServer(t, http.StatusOK,
		`{"choices":[{"message":{"role":"assistant","content":"three headlines"}}]}`)

	provider := NewCompletion(server.URL, "test-key", "")

	text, err := provider.Complete(t.Context(), Request{Prompt: "summarize the news"})
	require.NoError(t, err)
	assert.Equal(t, "three headlines", text)
}

func TestCompletion_RateLimitIsTransient(t *testing.T) {
	server := completionServer(t, http.StatusTooManyRequests,
		`{"error":{"message":"rate limit exceeded","type":"rate_limit"}}`)

	provider := NewCompletion(server.URL, "test-key", "")

	_, err := provider.Complete(t.Context(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, IsPermanent(err))
}

func TestCompletion_BadRequestIsPermanent(t *testing.T) {
	server := completionServer(t, http.StatusUnauthorized,
		`{"error":{"message":"invalid api key","type":"auth"}}`)

	provider := NewCompletion(server.URL, "test-key", "")

	_, err := provider.Complete(t.Context(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestCompletion_EmptyChoicesIsMalformed(t *testing.T) {
	server := completionServer(t, http.StatusOK, `{"choices":[]}`)

	provider := NewCompletion(server.URL, "test-key", "")

	_, err := provider.Complete(t.Context(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.True(t, IsTransient(err))
}

func TestCompletion_StepModelOverridesDefault(t *testing.T) {
	var gotModel string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest

		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel = req.Model

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	t.Cleanup(server.Close)

	provider := NewCompletion(server.URL, "test-key", "default-model")

	_, err := provider.Complete(t.Context(), Request{Prompt: "x", Model: "step-model"})
	require.NoError(t, err)
	assert.Equal(t, "step-model", gotModel)
}
