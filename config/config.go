package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Settings holds all application configuration
type Settings struct {
	Server    ServerSettings    `mapstructure:"server" json:"server"`
	TMDb      TMDbSettings      `mapstructure:"tmdb" json:"tmdb"`
	Trakt     TraktSettings     `mapstructure:"trakt" json:"trakt"`
	FanartTV  FanartTVSettings  `mapstructure:"fanarttv" json:"fanarttv"`
	Library   LibrarySettings   `mapstructure:"library" json:"library"`
	Cache     CacheSettings     `mapstructure:"cache" json:"cache"`
	Listing   ListingSettings   `mapstructure:"listing" json:"listing"`
	Logging   LoggingSettings   `mapstructure:"logging" json:"logging"`
	Scheduler SchedulerSettings `mapstructure:"scheduler" json:"scheduler"`
}

type ServerSettings struct {
	Listen string `mapstructure:"listen" json:"listen"`
	APIKey string `mapstructure:"api_key" json:"apiKey"`
}

type TMDbSettings struct {
	APIKey   string `mapstructure:"api_key" json:"apiKey"`
	Language string `mapstructure:"language" json:"language"`
	BaseURL  string `mapstructure:"base_url" json:"baseUrl"`
}

type TraktSettings struct {
	ClientID     string `mapstructure:"client_id" json:"clientId"`
	ClientSecret string `mapstructure:"client_secret" json:"clientSecret"`
	AccessToken  string `mapstructure:"access_token" json:"accessToken"`
	RefreshToken string `mapstructure:"refresh_token" json:"refreshToken"`
	ExpiresAt    int64  `mapstructure:"expires_at" json:"expiresAt"` // unix seconds
}

type FanartTVSettings struct {
	APIKey    string `mapstructure:"api_key" json:"apiKey"`
	ClientKey string `mapstructure:"client_key" json:"clientKey"`
}

// LibrarySettings points at the local Kodi video database.
type LibrarySettings struct {
	Path string `mapstructure:"path" json:"path"`
}

// CacheSettings controls where responses are stored and for how long, in days.
type CacheSettings struct {
	Dir          string  `mapstructure:"dir" json:"dir"`
	DefaultDays  float64 `mapstructure:"default_days" json:"defaultDays"`
	TMDbDays     float64 `mapstructure:"tmdb_days" json:"tmdbDays"`
	FanartTVDays float64 `mapstructure:"fanarttv_days" json:"fanarttvDays"`
	TraktDays    float64 `mapstructure:"trakt_days" json:"traktDays"`
}

// ListingSettings are the switches consulted while building a listing.
type ListingSettings struct {
	WidgetsHideWatched     bool          `mapstructure:"widgets_hidewatched" json:"widgetsHideWatched"`
	WidgetsNextPage        bool          `mapstructure:"widgets_nextpage" json:"widgetsNextPage"`
	FlattenSeasons         bool          `mapstructure:"flatten_seasons" json:"flattenSeasons"`
	TraktWatchedIndicators bool          `mapstructure:"trakt_watchedindicators" json:"traktWatchedIndicators"`
	TraktPlayProgress      bool          `mapstructure:"trakt_playprogress" json:"traktPlayProgress"`
	FanartTVLookup         bool          `mapstructure:"fanarttv_lookup" json:"fanarttvLookup"`
	WidgetFanartTVLookup   bool          `mapstructure:"widget_fanarttv_lookup" json:"widgetFanarttvLookup"`
	TMDbDetails            bool          `mapstructure:"tmdb_details" json:"tmdbDetails"`
	NoDateIsUnaired        bool          `mapstructure:"nodate_is_unaired" json:"nodateIsUnaired"`
	LocalDB                bool          `mapstructure:"local_db" json:"localDb"`
	TimerReports           bool          `mapstructure:"timer_reports" json:"timerReports"`
	UnitTimeout            time.Duration `mapstructure:"unit_timeout" json:"unitTimeout"`
}

type LoggingSettings struct {
	File       string `mapstructure:"file" json:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" json:"maxSizeMb"`
	MaxBackups int    `mapstructure:"max_backups" json:"maxBackups"`
	MaxAgeDays int    `mapstructure:"max_age_days" json:"maxAgeDays"`
}

// SchedulerSettings controls background cache warming. A zero interval
// disables the task.
type SchedulerSettings struct {
	CheckInterval      time.Duration `mapstructure:"check_interval" json:"checkInterval"`
	WatchStateInterval time.Duration `mapstructure:"watchstate_interval" json:"watchStateInterval"`
	ReauthInterval     time.Duration `mapstructure:"reauth_interval" json:"reauthInterval"`
	ListsInterval      time.Duration `mapstructure:"lists_interval" json:"listsInterval"`
}

// DefaultSettings returns the configuration used when no file is present.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Listen: "127.0.0.1:7878"},
		TMDb:   TMDbSettings{Language: "en-US"},
		Cache: CacheSettings{
			Dir:          defaultCacheDir(),
			DefaultDays:  14,
			TMDbDays:     7,
			FanartTVDays: 7,
			TraktDays:    30,
		},
		Listing: ListingSettings{
			WidgetsNextPage:        true,
			TraktWatchedIndicators: true,
			TraktPlayProgress:      true,
			FanartTVLookup:         true,
			TMDbDetails:            true,
			UnitTimeout:            30 * time.Second,
		},
		Logging: LoggingSettings{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Scheduler: SchedulerSettings{
			CheckInterval:      time.Minute,
			WatchStateInterval: 15 * time.Minute,
			ReauthInterval:     6 * time.Hour,
			ListsInterval:      6 * time.Hour,
		},
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tmdbhelper")
}

// DefaultPath returns config.yaml under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "tmdbhelper", "config.yaml")
}

// Manager loads and updates the YAML config file. Environment variables
// prefixed TMDBHELPER_ (dots become underscores) override file values.
type Manager struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

func NewManager(fs afero.Fs, path string) *Manager {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if path == "" {
		path = DefaultPath()
	}
	return &Manager{fs: fs, path: path}
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) viper() (*viper.Viper, error) {
	v := viper.New()
	v.SetFs(m.fs)
	v.SetConfigFile(m.path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TMDBHELPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultSettings())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		exists, _ := afero.Exists(m.fs, m.path)
		if !errors.As(err, &notFound) && exists {
			return nil, fmt.Errorf("read config %s: %w", m.path, err)
		}
	}
	return v, nil
}

// Load returns the settings with defaults filled in.
func (m *Manager) Load() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, err := m.viper()
	if err != nil {
		return Settings{}, err
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("parse config: %w", err)
	}
	return s, nil
}

// SaveTraktToken writes the Trakt tokens back to the config file, keeping
// every other value as it is.
func (m *Manager) SaveTraktToken(accessToken, refreshToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, err := m.viper()
	if err != nil {
		return err
	}
	v.Set("trakt.access_token", accessToken)
	v.Set("trakt.refresh_token", refreshToken)
	v.Set("trakt.expires_at", expiresAt.Unix())

	if err := m.fs.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := v.WriteConfigAs(m.path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper, s Settings) {
	defaults := map[string]any{
		"server.listen":                   s.Server.Listen,
		"server.api_key":                  s.Server.APIKey,
		"tmdb.api_key":                    s.TMDb.APIKey,
		"tmdb.language":                   s.TMDb.Language,
		"tmdb.base_url":                   s.TMDb.BaseURL,
		"trakt.client_id":                 s.Trakt.ClientID,
		"trakt.client_secret":             s.Trakt.ClientSecret,
		"trakt.access_token":              s.Trakt.AccessToken,
		"trakt.refresh_token":             s.Trakt.RefreshToken,
		"trakt.expires_at":                s.Trakt.ExpiresAt,
		"fanarttv.api_key":                s.FanartTV.APIKey,
		"fanarttv.client_key":             s.FanartTV.ClientKey,
		"library.path":                    s.Library.Path,
		"cache.dir":                       s.Cache.Dir,
		"cache.default_days":              s.Cache.DefaultDays,
		"cache.tmdb_days":                 s.Cache.TMDbDays,
		"cache.fanarttv_days":             s.Cache.FanartTVDays,
		"cache.trakt_days":                s.Cache.TraktDays,
		"listing.widgets_hidewatched":     s.Listing.WidgetsHideWatched,
		"listing.widgets_nextpage":        s.Listing.WidgetsNextPage,
		"listing.flatten_seasons":         s.Listing.FlattenSeasons,
		"listing.trakt_watchedindicators": s.Listing.TraktWatchedIndicators,
		"listing.trakt_playprogress":      s.Listing.TraktPlayProgress,
		"listing.fanarttv_lookup":         s.Listing.FanartTVLookup,
		"listing.widget_fanarttv_lookup":  s.Listing.WidgetFanartTVLookup,
		"listing.tmdb_details":            s.Listing.TMDbDetails,
		"listing.nodate_is_unaired":       s.Listing.NoDateIsUnaired,
		"listing.local_db":                s.Listing.LocalDB,
		"listing.timer_reports":           s.Listing.TimerReports,
		"listing.unit_timeout":            s.Listing.UnitTimeout,
		"logging.file":                    s.Logging.File,
		"logging.max_size_mb":             s.Logging.MaxSizeMB,
		"logging.max_backups":             s.Logging.MaxBackups,
		"logging.max_age_days":            s.Logging.MaxAgeDays,
		"scheduler.check_interval":        s.Scheduler.CheckInterval,
		"scheduler.watchstate_interval":   s.Scheduler.WatchStateInterval,
		"scheduler.reauth_interval":       s.Scheduler.ReauthInterval,
		"scheduler.lists_interval":        s.Scheduler.ListsInterval,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}
