package mail

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_ListMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "news@example.com", r.URL.Query().Get("from"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"m1","subject":"Daily digest","from":"news@example.com"}]`))
	}))
	t.Cleanup(server.Close)

	client := NewHTTPClient(server.URL, "key")

	refs, err := client.ListMessages(t.Context(), Filter{From: "news@example.com"})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "m1", refs[0].ID)
	assert.Equal(t, "Daily digest", refs[0].Subject)
}

func TestHTTPClient_FetchMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages/m1", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m1","subject":"Daily digest","body":"headlines..."}`))
	}))
	t.Cleanup(server.Close)

	client := NewHTTPClient(server.URL, "key")

	message, err := client.FetchMessage(t.Context(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "headlines...", message.Body)
}

func TestHTTPClient_FetchMessage_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	client := NewHTTPClient(server.URL, "key")

	_, err := client.FetchMessage(t.Context(), "gone")
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.True(t, IsMessageNotFound(err))
}
