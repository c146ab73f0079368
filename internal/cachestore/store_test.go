package cachestore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tmdbhelper/models"
)

func TestStoreRoundTripAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, 7)
	require.NoError(t, err)
	rec := models.CacheRecord{Response: json.RawMessage(`{"id":42}`), Token: "2024-01-01T00:00:00.000Z"}
	require.NoError(t, s.Set("details:tv:42", rec, 7))
	require.NoError(t, s.Close())

	s, err = Open(dir, 7)
	require.NoError(t, err)
	defer s.Close()

	got, ok := s.Get("details:tv:42")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":42}`, string(got.Response))
	assert.Equal(t, rec.Token, got.Token)
	assert.False(t, got.WrittenAt.IsZero())
}

func TestStoreExpiry(t *testing.T) {
	s, err := Open("", 1)
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	require.NoError(t, s.Set("k", models.CacheRecord{Response: json.RawMessage(`[1]`)}, 0.5))

	now = now.Add(11 * time.Hour)
	_, ok := s.Get("k")
	assert.True(t, ok, "record should live for half a day")

	now = now.Add(2 * time.Hour)
	_, ok = s.Get("k")
	assert.False(t, ok, "record should have expired")
}

func TestStoreNonPositiveDaysUsesDefault(t *testing.T) {
	s, err := Open("", 2)
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	require.NoError(t, s.Set("k", models.CacheRecord{Response: json.RawMessage(`[1]`)}, 0))

	now = now.Add(47 * time.Hour)
	_, ok := s.Get("k")
	assert.True(t, ok)
}

func TestStoreDeletePrefix(t *testing.T) {
	s, err := Open(t.TempDir(), 7)
	require.NoError(t, err)
	defer s.Close()

	for _, k := range []string{"watched:movie", "watched:show", "details:movie:1"} {
		require.NoError(t, s.Set(k, models.CacheRecord{Response: json.RawMessage(`[1]`)}, 1))
	}
	s.DeletePrefix("watched:")

	_, ok := s.Get("watched:movie")
	assert.False(t, ok)
	_, ok = s.Get("watched:show")
	assert.False(t, ok)
	_, ok = s.Get("details:movie:1")
	assert.True(t, ok)
}
