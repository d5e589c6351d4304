package points

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAward(t *testing.T) {
	assert := assert.New(t)

	var seenKeys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/points/award", r.URL.Path)
		var body awardBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal("voter-1", body.UserID)
		assert.Equal(5, body.Amount)
		seenKeys = append(seenKeys, r.Header.Get("Idempotency-Key"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := c.Award(context.Background(), "voter-1", 5, ReasonOverrideVindicated, "key-1")
	assert.NoError(err)
	assert.Equal([]string{"key-1"}, seenKeys)
}

func TestAwardConflictIsSuccess(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	// a duplicate delivery already landed; treated as success
	assert.NoError(c.Award(context.Background(), "voter-1", 5, ReasonOverrideVindicated, "key-1"))
}

func TestAwardUnconfiguredIsNoop(t *testing.T) {
	c := NewClient("", nil)
	assert.NoError(t, c.Award(context.Background(), "voter-1", 5, ReasonFeedbackVote, "key-1"))
}
