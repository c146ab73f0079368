package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	mgr := NewManager(afero.NewMemMapFs(), "/etc/tmdbhelper/config.yaml")

	s, err := mgr.Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7878", s.Server.Listen)
	assert.Equal(t, 30*time.Second, s.Listing.UnitTimeout)
	assert.True(t, s.Listing.TraktWatchedIndicators)
	assert.Equal(t, 7.0, s.Cache.TMDbDays)
	assert.Equal(t, 15*time.Minute, s.Scheduler.WatchStateInterval)
}

func TestLoadMergesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg/config.yaml", []byte(`
tmdb:
  api_key: abc
listing:
  widgets_hidewatched: true
  unit_timeout: 5s
cache:
  tmdb_days: 2
scheduler:
  lists_interval: 0s
`), 0o644))

	s, err := NewManager(fs, "/cfg/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "abc", s.TMDb.APIKey)
	assert.Equal(t, "en-US", s.TMDb.Language)
	assert.True(t, s.Listing.WidgetsHideWatched)
	assert.Equal(t, 5*time.Second, s.Listing.UnitTimeout)
	assert.Equal(t, 2.0, s.Cache.TMDbDays)
	assert.Equal(t, 7.0, s.Cache.FanartTVDays)
	assert.Zero(t, s.Scheduler.ListsInterval)
	assert.Equal(t, 6*time.Hour, s.Scheduler.ReauthInterval)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TMDBHELPER_TMDB_API_KEY", "from-env")

	s, err := NewManager(afero.NewMemMapFs(), "/cfg/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", s.TMDb.APIKey)
}

func TestSaveTraktToken(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg/config.yaml", []byte("trakt:\n  client_id: cid\n"), 0o644))
	mgr := NewManager(fs, "/cfg/config.yaml")

	expires := time.Unix(1700000000, 0)
	require.NoError(t, mgr.SaveTraktToken("access", "refresh", expires))

	s, err := mgr.Load()
	require.NoError(t, err)
	assert.Equal(t, "cid", s.Trakt.ClientID)
	assert.Equal(t, "access", s.Trakt.AccessToken)
	assert.Equal(t, "refresh", s.Trakt.RefreshToken)
	assert.Equal(t, expires.Unix(), s.Trakt.ExpiresAt)
}
