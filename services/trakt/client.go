package trakt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"
)

var traktAPIBaseURL = "https://api.trakt.tv"

const traktAPIVersion = "2"

func setBaseURL(u string) { traktAPIBaseURL = u }

// ErrUnauthorized is returned when Trakt rejects the access token.
var ErrUnauthorized = errors.New("trakt: unauthorized")

// StatusError carries a non-success Trakt response.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("trakt %s failed: %d - %s", e.Op, e.Status, e.Body)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// Client handles Trakt API interactions for OAuth and sync data
type Client struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	limiter      *rate.Limiter
	attempts     uint
	retryDelay   time.Duration
}

// DeviceCodeResponse represents the response from /oauth/device/code
type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// TokenResponse represents the response from /oauth/device/token
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	CreatedAt    int64  `json:"created_at"`
}

// IDs holds external identifiers for a media item
type IDs struct {
	Trakt int    `json:"trakt,omitempty"`
	Slug  string `json:"slug,omitempty"`
	IMDB  string `json:"imdb,omitempty"`
	TMDB  int    `json:"tmdb,omitempty"`
	TVDB  int    `json:"tvdb,omitempty"`
}

// Movie represents a Trakt movie
type Movie struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
	IDs   IDs    `json:"ids"`
}

// Show represents a Trakt TV show
type Show struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
	IDs   IDs    `json:"ids"`
}

// Episode represents a Trakt episode
type Episode struct {
	Season int    `json:"season"`
	Number int    `json:"number"`
	Title  string `json:"title"`
	IDs    IDs    `json:"ids"`
}

// WatchedMovie is one row of /sync/watched/movies
type WatchedMovie struct {
	Plays         int       `json:"plays"`
	LastWatchedAt time.Time `json:"last_watched_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	Movie         Movie     `json:"movie"`
}

// WatchedEpisode is an episode inside a watched season
type WatchedEpisode struct {
	Number int `json:"number"`
	Plays  int `json:"plays"`
}

// WatchedSeason is a season inside a watched show
type WatchedSeason struct {
	Number   int              `json:"number"`
	Episodes []WatchedEpisode `json:"episodes"`
}

// WatchedShow is one row of /sync/watched/shows
type WatchedShow struct {
	Plays         int             `json:"plays"`
	LastWatchedAt time.Time       `json:"last_watched_at"`
	LastUpdatedAt string          `json:"last_updated_at"`
	Show          Show            `json:"show"`
	Seasons       []WatchedSeason `json:"seasons"`
}

// PlaybackItem is a paused playback position from /sync/playback
type PlaybackItem struct {
	ID       int64     `json:"id"`
	Progress float64   `json:"progress"`
	PausedAt time.Time `json:"paused_at"`
	Type     string    `json:"type"` // "movie" or "episode"
	Movie    *Movie    `json:"movie,omitempty"`
	Episode  *Episode  `json:"episode,omitempty"`
	Show     *Show     `json:"show,omitempty"`
}

// SeasonProgress is the per-season part of a show progress response
type SeasonProgress struct {
	Number    int `json:"number"`
	Aired     int `json:"aired"`
	Completed int `json:"completed"`
}

// ShowProgress is the response of /shows/{id}/progress/watched
type ShowProgress struct {
	Aired     int              `json:"aired"`
	Completed int              `json:"completed"`
	Seasons   []SeasonProgress `json:"seasons"`
}

// WatchlistItem represents an item from the Trakt watchlist
type WatchlistItem struct {
	Rank     int       `json:"rank"`
	ListedAt time.Time `json:"listed_at"`
	Type     string    `json:"type"` // "movie" or "show"
	Movie    *Movie    `json:"movie,omitempty"`
	Show     *Show     `json:"show,omitempty"`
}

// HistoryItem represents an item from Trakt watch history
type HistoryItem struct {
	ID        int64     `json:"id"`
	WatchedAt time.Time `json:"watched_at"`
	Action    string    `json:"action"` // "watch" or "scrobble"
	Type      string    `json:"type"`   // "movie" or "episode"
	Movie     *Movie    `json:"movie,omitempty"`
	Episode   *Episode  `json:"episode,omitempty"`
	Show      *Show     `json:"show,omitempty"`
}

// CollectionItem represents an item from the user's collection
type CollectionItem struct {
	CollectedAt time.Time `json:"collected_at"`
	LastUpdated time.Time `json:"last_updated_at"`
	Movie       *Movie    `json:"movie,omitempty"`
	Show        *Show     `json:"show,omitempty"`
}

// NewClient creates a new Trakt API client. Requests are limited to Trakt's
// documented rate of 1000 calls per five minutes.
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		clientID:     clientID,
		clientSecret: clientSecret,
		limiter:      rate.NewLimiter(rate.Every(300*time.Millisecond), 10),
		attempts:     3,
		retryDelay:   500 * time.Millisecond,
	}
}

// setTraktHeaders adds required Trakt API headers to a request
func (c *Client) setTraktHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", traktAPIVersion)
	req.Header.Set("trakt-api-key", c.clientID)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// send performs one request, retrying rate limited and server errors with backoff.
// Any other status is returned to the caller for interpretation.
func (c *Client) send(ctx context.Context, method, path, accessToken string, payload any) (*response, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	return retry.DoWithData(func() (*response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, retry.Unrecoverable(err)
		}
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, traktAPIBaseURL+path, reader)
		if err != nil {
			return nil, retry.Unrecoverable(fmt.Errorf("create request: %w", err))
		}
		c.setTraktHeaders(req, accessToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("trakt api request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if retryable(resp.StatusCode) {
			return nil, &StatusError{Op: path, Status: resp.StatusCode, Body: string(data)}
		}
		return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
	},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// getJSON performs an authorized GET and decodes a 200 response into out.
func (c *Client) getJSON(ctx context.Context, op, path, accessToken string, out any) (http.Header, error) {
	resp, err := c.send(ctx, http.MethodGet, path, accessToken, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.status != http.StatusOK:
		return nil, &StatusError{Op: op, Status: resp.status, Body: string(resp.body)}
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return resp.header, nil
}

// GetDeviceCode initiates the device code OAuth flow
func (c *Client) GetDeviceCode(ctx context.Context) (*DeviceCodeResponse, error) {
	resp, err := c.send(ctx, http.MethodPost, "/oauth/device/code", "", map[string]string{
		"client_id": c.clientID,
	})
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, &StatusError{Op: "device code", Status: resp.status, Body: string(resp.body)}
	}

	var deviceCode DeviceCodeResponse
	if err := json.Unmarshal(resp.body, &deviceCode); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &deviceCode, nil
}

// PollForToken polls for the OAuth token after user has authorized
// Returns nil, nil if still pending authorization
func (c *Client) PollForToken(ctx context.Context, deviceCode string) (*TokenResponse, error) {
	resp, err := c.send(ctx, http.MethodPost, "/oauth/device/token", "", map[string]string{
		"code":          deviceCode,
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	})
	if err != nil {
		return nil, err
	}

	switch resp.status {
	case http.StatusOK:
		var token TokenResponse
		if err := json.Unmarshal(resp.body, &token); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return &token, nil
	case http.StatusBadRequest:
		// still waiting for the user
		return nil, nil
	case http.StatusGone:
		return nil, fmt.Errorf("device code expired")
	case http.StatusConflict:
		return nil, fmt.Errorf("device code already used")
	case 418:
		return nil, fmt.Errorf("device code denied by user")
	default:
		return nil, &StatusError{Op: "token poll", Status: resp.status, Body: string(resp.body)}
	}
}

// RefreshAccessToken refreshes an expired access token
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	resp, err := c.send(ctx, http.MethodPost, "/oauth/token", "", map[string]string{
		"refresh_token": refreshToken,
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"redirect_uri":  "urn:ietf:wg:oauth:2.0:oob",
		"grant_type":    "refresh_token",
	})
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, &StatusError{Op: "token refresh", Status: resp.status, Body: string(resp.body)}
	}

	var token TokenResponse
	if err := json.Unmarshal(resp.body, &token); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &token, nil
}

// LastActivities maps an activity type ("movies", "episodes", "shows"...) to
// its activity keys ("watched_at", "paused_at"...) and their timestamps.
type LastActivities map[string]map[string]string

// GetLastActivities returns the user's per-stream change timestamps.
func (c *Client) GetLastActivities(ctx context.Context, accessToken string) (LastActivities, error) {
	var raw map[string]json.RawMessage
	if _, err := c.getJSON(ctx, "last activities", "/sync/last_activities", accessToken, &raw); err != nil {
		return nil, err
	}
	out := make(LastActivities, len(raw))
	for activityType, msg := range raw {
		var keys map[string]any
		if err := json.Unmarshal(msg, &keys); err != nil {
			// top-level "all" is a bare timestamp
			var ts string
			if json.Unmarshal(msg, &ts) == nil {
				out[activityType] = map[string]string{"": ts}
			}
			continue
		}
		m := make(map[string]string, len(keys))
		for k, v := range keys {
			if s, ok := v.(string); ok {
				m[k] = s
			}
		}
		out[activityType] = m
	}
	return out, nil
}

// GetWatchedMovies returns every movie the user has played with its play count.
func (c *Client) GetWatchedMovies(ctx context.Context, accessToken string) ([]WatchedMovie, error) {
	var items []WatchedMovie
	if _, err := c.getJSON(ctx, "watched movies", "/sync/watched/movies", accessToken, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) GetWatchedShows(ctx context.Context, accessToken string) ([]WatchedShow, error) {
	var items []WatchedShow
	if _, err := c.getJSON(ctx, "watched shows", "/sync/watched/shows", accessToken, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetPlayback returns paused playback positions for "movies" or "episodes".
func (c *Client) GetPlayback(ctx context.Context, accessToken, mediaType string) ([]PlaybackItem, error) {
	var items []PlaybackItem
	if _, err := c.getJSON(ctx, "playback", "/sync/playback/"+url.PathEscape(mediaType), accessToken, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetShowProgress returns aired/completed counts for a show by trakt id or slug.
func (c *Client) GetShowProgress(ctx context.Context, accessToken, showID string) (*ShowProgress, error) {
	var progress ShowProgress
	path := fmt.Sprintf("/shows/%s/progress/watched?hidden=false&specials=false", url.PathEscape(showID))
	if _, err := c.getJSON(ctx, "show progress", path, accessToken, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

func pageCount(h http.Header) int {
	n, _ := strconv.Atoi(h.Get("X-Pagination-Page-Count"))
	return n
}

// GetWatchlist retrieves a page of the user's watchlist for "movies" or "shows"
// Returns items, total page count, and error
func (c *Client) GetWatchlist(ctx context.Context, accessToken, mediaType string, page, limit int) ([]WatchlistItem, int, error) {
	var items []WatchlistItem
	path := fmt.Sprintf("/users/me/watchlist/%s?page=%d&limit=%d", url.PathEscape(mediaType), page, limit)
	h, err := c.getJSON(ctx, "watchlist", path, accessToken, &items)
	if err != nil {
		return nil, 0, err
	}
	return items, pageCount(h), nil
}

// GetWatchHistory retrieves a page of watch history for "movies" or "episodes"
func (c *Client) GetWatchHistory(ctx context.Context, accessToken, mediaType string, page, limit int) ([]HistoryItem, int, error) {
	var items []HistoryItem
	path := fmt.Sprintf("/users/me/history/%s?page=%d&limit=%d", url.PathEscape(mediaType), page, limit)
	h, err := c.getJSON(ctx, "history", path, accessToken, &items)
	if err != nil {
		return nil, 0, err
	}
	return items, pageCount(h), nil
}

// GetCollection retrieves the user's collection for "movies" or "shows"
func (c *Client) GetCollection(ctx context.Context, accessToken, mediaType string) ([]CollectionItem, error) {
	var items []CollectionItem
	path := fmt.Sprintf("/users/me/collection/%s", url.PathEscape(mediaType))
	if _, err := c.getJSON(ctx, "collection", path, accessToken, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// IDsToMap converts Trakt IDs into the unique id map used by listing entries
func IDsToMap(ids IDs) map[string]string {
	m := make(map[string]string)
	if ids.TMDB > 0 {
		m["tmdb"] = strconv.Itoa(ids.TMDB)
	}
	if ids.IMDB != "" {
		m["imdb"] = ids.IMDB
	}
	if ids.TVDB > 0 {
		m["tvdb"] = strconv.Itoa(ids.TVDB)
	}
	if ids.Trakt > 0 {
		m["trakt"] = strconv.Itoa(ids.Trakt)
	}
	if ids.Slug != "" {
		m["slug"] = ids.Slug
	}
	return m
}
