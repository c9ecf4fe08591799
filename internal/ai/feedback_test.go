package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfawz/hifz/pkg/models"
)

func TestNewWithoutKey(t *testing.T) {
	w, err := New(Config{})
	assert.True(t, errors.Is(err, ErrDisabled))
	assert.False(t, w.Enabled())

	r := Review{Unit: models.Unit{SurahID: 1, AyahID: 1}, Passed: false}
	assert.Equal(t, Fallback(r), w.WriteWithFallback(context.Background(), r))
}

func TestWrite(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Beautiful recitation.  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	w, err := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	text, err := w.Write(context.Background(), Review{
		Unit: models.Unit{SurahID: 67, AyahID: 2}, Confidence: 0.9, Quality: 5, Passed: true, Interval: 6,
	})
	require.NoError(t, err)
	assert.Equal(t, "Beautiful recitation.", text)
	assert.Equal(t, "gpt-4o-mini", got["model"])

	messages, ok := got["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]interface{})["content"].(string)
	assert.Contains(t, user, "Al-Mulk ayah 2 (67:2)")
	assert.Contains(t, user, "Next review in 6 day(s).")
}

func TestWriteWithFallbackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	w, err := New(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	r := Review{Unit: models.Unit{SurahID: 2, AyahID: 255}, Quality: 4, Passed: true, Interval: 6}
	assert.Equal(t, "Good work. Review it again in 6 day(s).", w.WriteWithFallback(context.Background(), r))
}

func TestFallback(t *testing.T) {
	assert.Contains(t, Fallback(Review{Mastered: true, Passed: true}), "firmly memorized")
	assert.Contains(t, Fallback(Review{Quality: 5, Passed: true, Interval: 1}), "Excellent")
	assert.Contains(t, Fallback(Review{Quality: 1}), "tomorrow")
}
