// Package fanarttv looks up artwork from fanart.tv for movies and shows.
package fanarttv

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"tmdbhelper/services/cache"
)

const (
	fanartBaseURL = "https://webservice.fanart.tv/v3"
	// DefaultDays is how long artwork responses are kept.
	DefaultDays = 7
)

var errNotFound = errors.New("fanarttv: not found")

type image struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Lang   string `json:"lang"`
	Likes  string `json:"likes"`
	Season string `json:"season,omitempty"`
}

// response is the union of the movie and tv payloads; fanart.tv uses
// distinct keys per media kind.
type response struct {
	MoviePoster     []image `json:"movieposter"`
	MovieBackground []image `json:"moviebackground"`
	MovieLogo       []image `json:"hdmovielogo"`
	MovieClearArt   []image `json:"hdmovieclearart"`
	MovieThumb      []image `json:"moviethumb"`
	MovieBanner     []image `json:"moviebanner"`
	MovieDisc       []image `json:"moviedisc"`

	TVPoster       []image `json:"tvposter"`
	ShowBackground []image `json:"showbackground"`
	TVLogo         []image `json:"hdtvlogo"`
	TVClearArt     []image `json:"hdclearart"`
	TVThumb        []image `json:"tvthumb"`
	TVBanner       []image `json:"tvbanner"`
	SeasonPoster   []image `json:"seasonposter"`
	SeasonThumb    []image `json:"seasonthumb"`
}

// Client resolves artwork maps. Responses are cached for a fixed number of days.
type Client struct {
	http      *resty.Client
	apiKey    string
	clientKey string
	language  string
	limiter   *rate.Limiter
	store     cache.Store
	days      float64
}

func NewClient(apiKey, clientKey, language, baseURL string, store cache.Store, days float64) *Client {
	if baseURL == "" {
		baseURL = fanartBaseURL
	}
	if days <= 0 {
		days = DefaultDays
	}
	lang := strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if lang == "" {
		lang = "en"
	}

	r := resty.New()
	r.SetBaseURL(strings.TrimRight(baseURL, "/"))
	r.SetTimeout(10 * time.Second)
	r.SetHeader("Accept", "application/json")
	r.SetRetryCount(1)
	r.SetRetryWaitTime(500 * time.Millisecond)
	r.AddRetryCondition(func(resp *resty.Response, err error) bool {
		return err != nil || resp.StatusCode() >= 500
	})

	return &Client{
		http:      r,
		apiKey:    apiKey,
		clientKey: clientKey,
		language:  lang,
		limiter:   rate.NewLimiter(rate.Limit(10), 5),
		store:     store,
		days:      days,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Artwork returns the art map for a movie (tmdb id) or tv show (tvdb id).
// ftvType is "movies" or "tv". Season number selects season posters and
// thumbs when positive. Under a cache-only context only stored responses are used.
func (c *Client) Artwork(ctx context.Context, ftvType, id string, season int) (map[string]string, error) {
	if !c.Enabled() || id == "" {
		return nil, nil
	}
	if ftvType != "movies" && ftvType != "tv" {
		return nil, fmt.Errorf("fanarttv: unsupported type %q", ftvType)
	}
	call := cache.WithTTL(c.store, cache.Key("fanarttv", ftvType, id), c.days, func(ctx context.Context) (*response, error) {
		return c.fetch(ctx, ftvType, id)
	})
	resp, err := call(ctx)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil || resp == nil {
		return nil, err
	}
	return c.artMap(resp, ftvType, season), nil
}

func (c *Client) fetch(ctx context.Context, ftvType, id string) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var out response
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("api_key", c.apiKey).
		ForceContentType("application/json").
		SetResult(&out)
	if c.clientKey != "" {
		req.SetQueryParam("client_key", c.clientKey)
	}
	resp, err := req.Get("/" + ftvType + "/" + id)
	if err != nil {
		return nil, fmt.Errorf("fanarttv request %s/%s: %w", ftvType, id, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fanarttv %s/%s failed: %s", ftvType, id, resp.Status())
	}
	return &out, nil
}

func (c *Client) artMap(r *response, ftvType string, season int) map[string]string {
	art := make(map[string]string)
	set := func(key string, images []image) {
		if u := c.pick(images); u != "" {
			art[key] = u
		}
	}
	if ftvType == "movies" {
		set("poster", r.MoviePoster)
		set("fanart", r.MovieBackground)
		set("clearlogo", r.MovieLogo)
		set("clearart", r.MovieClearArt)
		set("landscape", r.MovieThumb)
		set("banner", r.MovieBanner)
		set("discart", r.MovieDisc)
		return art
	}
	set("poster", r.TVPoster)
	set("fanart", r.ShowBackground)
	set("clearlogo", r.TVLogo)
	set("clearart", r.TVClearArt)
	set("landscape", r.TVThumb)
	set("banner", r.TVBanner)
	if season > 0 {
		set("poster", seasonOnly(r.SeasonPoster, season))
		set("landscape", seasonOnly(r.SeasonThumb, season))
	}
	return art
}

func seasonOnly(images []image, season int) []image {
	want := fmt.Sprint(season)
	var out []image
	for _, img := range images {
		if img.Season == want {
			out = append(out, img)
		}
	}
	return out
}

// pick prefers the configured language, then English, then language neutral art.
func (c *Client) pick(images []image) string {
	if len(images) == 0 {
		return ""
	}
	for _, lang := range []string{c.language, "en", "00", ""} {
		for _, img := range images {
			if img.Lang == lang && img.URL != "" {
				return img.URL
			}
		}
	}
	return images[0].URL
}
