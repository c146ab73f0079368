package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	tmdbBaseURL      = "https://api.themoviedb.org/3"
	tmdbImageBaseURL = "https://image.tmdb.org/t/p/"
	tmdbPosterSize   = "w780"
	tmdbBackdropSize = "w1280"
	tmdbStillSize    = "w300"
)

// ErrNotFound is returned when TMDb has no record for the requested id.
var ErrNotFound = errors.New("tmdb: not found")

type tmdbClient struct {
	client   *resty.Client
	apiKey   string
	language string
	limiter  *rate.Limiter
}

func newTMDBClient(apiKey, language, baseURL string) *tmdbClient {
	if baseURL == "" {
		baseURL = tmdbBaseURL
	}
	c := resty.New()
	c.SetBaseURL(strings.TrimRight(baseURL, "/"))
	c.SetTimeout(15 * time.Second)
	c.SetHeader("Accept", "application/json")
	c.SetRetryCount(2)
	c.SetRetryWaitTime(250 * time.Millisecond)
	c.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})

	return &tmdbClient{
		client:   c,
		apiKey:   apiKey,
		language: normalizeLanguage(language),
		// TMDb allows roughly 50 requests per second per IP
		limiter: rate.NewLimiter(rate.Limit(40), 20),
	}
}

func (c *tmdbClient) get(ctx context.Context, path string, query map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("api_key", c.apiKey).
		SetQueryParam("language", c.language).
		ForceContentType("application/json").
		SetResult(out)
	for k, v := range query {
		if v != "" {
			req.SetQueryParam(k, v)
		}
	}

	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("tmdb request %s: %w", path, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.IsError() {
		return fmt.Errorf("tmdb %s failed: %s - %s", path, resp.Status(), resp.String())
	}
	return nil
}

// normalizeLanguage turns user supplied language codes into TMDb's xx-YY form.
func normalizeLanguage(lang string) string {
	lang = strings.TrimSpace(strings.ReplaceAll(lang, "_", "-"))
	if lang == "" {
		return "en-US"
	}
	parts := strings.SplitN(lang, "-", 2)
	base := strings.ToLower(parts[0])
	if len(parts) == 2 && parts[1] != "" {
		return base + "-" + strings.ToUpper(parts[1])
	}
	return base + "-US"
}

func buildTMDBImage(path, size string) string {
	if path == "" {
		return ""
	}
	return tmdbImageBaseURL + size + path
}

func parseTMDBYear(dates ...string) int {
	for _, d := range dates {
		if len(d) < 4 {
			continue
		}
		if y, err := strconv.Atoi(d[:4]); err == nil {
			return y
		}
	}
	return 0
}

type tmdbGenre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type tmdbCompany struct {
	Name string `json:"name"`
}

type tmdbExternalIDs struct {
	IMDBID string `json:"imdb_id"`
	TVDBID int    `json:"tvdb_id"`
}

type tmdbCollectionRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type tmdbMovie struct {
	ID                  int                `json:"id"`
	IMDBID              string             `json:"imdb_id"`
	Title               string             `json:"title"`
	OriginalTitle       string             `json:"original_title"`
	Overview            string             `json:"overview"`
	Tagline             string             `json:"tagline"`
	ReleaseDate         string             `json:"release_date"`
	Runtime             int                `json:"runtime"`
	Status              string             `json:"status"`
	VoteAverage         float64            `json:"vote_average"`
	VoteCount           int                `json:"vote_count"`
	PosterPath          string             `json:"poster_path"`
	BackdropPath        string             `json:"backdrop_path"`
	Genres              []tmdbGenre        `json:"genres"`
	ProductionCompanies []tmdbCompany      `json:"production_companies"`
	BelongsToCollection *tmdbCollectionRef `json:"belongs_to_collection"`
}

type tmdbSeasonRef struct {
	SeasonNumber int    `json:"season_number"`
	Name         string `json:"name"`
	Overview     string `json:"overview"`
	AirDate      string `json:"air_date"`
	EpisodeCount int    `json:"episode_count"`
	PosterPath   string `json:"poster_path"`
}

type tmdbShow struct {
	ID               int             `json:"id"`
	Name             string          `json:"name"`
	OriginalName     string          `json:"original_name"`
	Overview         string          `json:"overview"`
	FirstAirDate     string          `json:"first_air_date"`
	Status           string          `json:"status"`
	NumberOfEpisodes int             `json:"number_of_episodes"`
	NumberOfSeasons  int             `json:"number_of_seasons"`
	EpisodeRunTime   []int           `json:"episode_run_time"`
	VoteAverage      float64         `json:"vote_average"`
	VoteCount        int             `json:"vote_count"`
	PosterPath       string          `json:"poster_path"`
	BackdropPath     string          `json:"backdrop_path"`
	Genres           []tmdbGenre     `json:"genres"`
	Networks         []tmdbCompany   `json:"networks"`
	Seasons          []tmdbSeasonRef `json:"seasons"`
	ExternalIDs      tmdbExternalIDs `json:"external_ids"`
}

type tmdbEpisode struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	Overview      string  `json:"overview"`
	AirDate       string  `json:"air_date"`
	SeasonNumber  int     `json:"season_number"`
	EpisodeNumber int     `json:"episode_number"`
	Runtime       int     `json:"runtime"`
	VoteAverage   float64 `json:"vote_average"`
	VoteCount     int     `json:"vote_count"`
	StillPath     string  `json:"still_path"`
}

type tmdbSeason struct {
	ID           int           `json:"id"`
	Name         string        `json:"name"`
	Overview     string        `json:"overview"`
	AirDate      string        `json:"air_date"`
	SeasonNumber int           `json:"season_number"`
	PosterPath   string        `json:"poster_path"`
	Episodes     []tmdbEpisode `json:"episodes"`
}

type tmdbListResult struct {
	ID           int     `json:"id"`
	MediaType    string  `json:"media_type"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	VoteAverage  float64 `json:"vote_average"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
}

type tmdbListResponse struct {
	Page         int              `json:"page"`
	TotalPages   int              `json:"total_pages"`
	TotalResults int              `json:"total_results"`
	Results      []tmdbListResult `json:"results"`
}

type tmdbCollection struct {
	ID           int              `json:"id"`
	Name         string           `json:"name"`
	Overview     string           `json:"overview"`
	PosterPath   string           `json:"poster_path"`
	BackdropPath string           `json:"backdrop_path"`
	Parts        []tmdbListResult `json:"parts"`
}

type tmdbFindResponse struct {
	MovieResults []tmdbListResult `json:"movie_results"`
	TVResults    []tmdbListResult `json:"tv_results"`
}
