package metadata

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tmdbhelper/models"
	"tmdbhelper/services/cache"
)

// DefaultDays is how long TMDb responses are kept when no lifetime is configured.
const DefaultDays = 7

// Service resolves TMDb lists and details into listing descriptors and detail
// sets. Every request is cached for a fixed number of days.
type Service struct {
	client *tmdbClient
	store  cache.Store
	days   float64
}

func NewService(apiKey, language, baseURL string, store cache.Store, days float64) *Service {
	if days <= 0 {
		days = DefaultDays
	}
	return &Service{
		client: newTMDBClient(apiKey, language, baseURL),
		store:  store,
		days:   days,
	}
}

// ListPage is one page of list results.
type ListPage struct {
	Items []models.Descriptor `json:"items"`
	Pages int                 `json:"pages"`
}

type listRoute struct {
	path      string // %s is replaced by the tmdb type when fixedType is empty
	fixedType string
}

var listRoutes = map[string]listRoute{
	"popular":       {path: "/%s/popular"},
	"top_rated":     {path: "/%s/top_rated"},
	"upcoming":      {path: "/movie/upcoming", fixedType: "movie"},
	"now_playing":   {path: "/movie/now_playing", fixedType: "movie"},
	"airing_today":  {path: "/tv/airing_today", fixedType: "tv"},
	"on_the_air":    {path: "/tv/on_the_air", fixedType: "tv"},
	"trending_day":  {path: "/trending/%s/day"},
	"trending_week": {path: "/trending/%s/week"},
}

// IsList reports whether name is a TMDb list route.
func IsList(name string) bool {
	_, ok := listRoutes[name]
	return ok
}

// MediaTypeFor maps a TMDb type to the listing media type.
func MediaTypeFor(tmdbType string) string {
	switch tmdbType {
	case "movie":
		return models.MediaTypeMovie
	case "tv":
		return models.MediaTypeTVShow
	case "season":
		return models.MediaTypeSeason
	case "episode":
		return models.MediaTypeEpisode
	case "collection":
		return models.MediaTypeSet
	}
	return ""
}

func cached[T any](s *Service, key string, call cache.Call[T]) cache.Call[T] {
	return cache.WithTTL(s.store, key, s.days, call)
}

// List returns one page of a named TMDb list such as "popular" or "trending_week".
func (s *Service) List(ctx context.Context, name, tmdbType string, page int) (ListPage, error) {
	route, ok := listRoutes[name]
	if !ok {
		return ListPage{}, fmt.Errorf("unknown tmdb list %q", name)
	}
	if route.fixedType != "" {
		tmdbType = route.fixedType
	}
	if tmdbType != "movie" && tmdbType != "tv" {
		return ListPage{}, fmt.Errorf("tmdb list %s: unsupported type %q", name, tmdbType)
	}
	path := route.path
	if route.fixedType == "" {
		path = fmt.Sprintf(route.path, tmdbType)
	}
	return s.listPage(ctx, path, tmdbType, page)
}

// Related returns "recommendations" or "similar" titles for one item.
func (s *Service) Related(ctx context.Context, kind, tmdbType string, tmdbID, page int) (ListPage, error) {
	if kind != "recommendations" && kind != "similar" {
		return ListPage{}, fmt.Errorf("unknown related list %q", kind)
	}
	return s.listPage(ctx, fmt.Sprintf("/%s/%d/%s", tmdbType, tmdbID, kind), tmdbType, page)
}

func (s *Service) listPage(ctx context.Context, path, tmdbType string, page int) (ListPage, error) {
	if page < 1 {
		page = 1
	}
	call := cached(s, cache.Key("tmdb.list", path, page, s.client.language), func(ctx context.Context) (ListPage, error) {
		var resp tmdbListResponse
		if err := s.client.get(ctx, path, map[string]string{"page": strconv.Itoa(page)}, &resp); err != nil {
			return ListPage{}, err
		}
		out := ListPage{Pages: resp.TotalPages, Items: make([]models.Descriptor, 0, len(resp.Results))}
		for _, r := range resp.Results {
			if d, ok := listDescriptor(r, tmdbType); ok {
				out.Items = append(out.Items, d)
			}
		}
		return out, nil
	})
	return call(ctx)
}

func listDescriptor(r tmdbListResult, tmdbType string) (models.Descriptor, bool) {
	if r.MediaType == "movie" || r.MediaType == "tv" {
		tmdbType = r.MediaType
	}
	if r.ID == 0 || (tmdbType != "movie" && tmdbType != "tv") {
		return models.Descriptor{}, false
	}
	label := r.Title
	premiered := r.ReleaseDate
	if tmdbType == "tv" {
		label, premiered = r.Name, r.FirstAirDate
	}
	id := strconv.Itoa(r.ID)
	return models.Descriptor{
		Label:  label,
		Params: map[string]string{"info": "details", "tmdb_type": tmdbType, "tmdb_id": id},
		InfoLabels: map[string]any{
			"mediatype": MediaTypeFor(tmdbType),
			"title":     label,
			"year":      parseTMDBYear(premiered),
			"premiered": premiered,
			"plot":      r.Overview,
			"rating":    r.VoteAverage,
		},
		UniqueIDs: map[string]string{"tmdb": id},
		Art: map[string]string{
			"poster": buildTMDBImage(r.PosterPath, tmdbPosterSize),
			"fanart": buildTMDBImage(r.BackdropPath, tmdbBackdropSize),
		},
	}, true
}

func (s *Service) movie(ctx context.Context, id int) (*tmdbMovie, error) {
	return cached(s, cache.Key("tmdb.movie", id, s.client.language), func(ctx context.Context) (*tmdbMovie, error) {
		var m tmdbMovie
		if err := s.client.get(ctx, fmt.Sprintf("/movie/%d", id), nil, &m); err != nil {
			return nil, err
		}
		return &m, nil
	})(ctx)
}

func (s *Service) show(ctx context.Context, id int) (*tmdbShow, error) {
	return cached(s, cache.Key("tmdb.tv", id, s.client.language), func(ctx context.Context) (*tmdbShow, error) {
		var sh tmdbShow
		if err := s.client.get(ctx, fmt.Sprintf("/tv/%d", id), map[string]string{"append_to_response": "external_ids"}, &sh); err != nil {
			return nil, err
		}
		return &sh, nil
	})(ctx)
}

func (s *Service) season(ctx context.Context, id, season int) (*tmdbSeason, error) {
	return cached(s, cache.Key("tmdb.season", id, season, s.client.language), func(ctx context.Context) (*tmdbSeason, error) {
		var se tmdbSeason
		if err := s.client.get(ctx, fmt.Sprintf("/tv/%d/season/%d", id, season), nil, &se); err != nil {
			return nil, err
		}
		return &se, nil
	})(ctx)
}

// Details returns the detail set for a movie, show, season or episode.
// tmdbType is one of movie, tv, season, episode; tmdbID is always the movie or show id.
func (s *Service) Details(ctx context.Context, tmdbType string, tmdbID, season, episode int) (*models.Details, error) {
	switch tmdbType {
	case "movie":
		m, err := s.movie(ctx, tmdbID)
		if err != nil || m == nil {
			return nil, err
		}
		return movieDetails(m), nil
	case "tv":
		sh, err := s.show(ctx, tmdbID)
		if err != nil || sh == nil {
			return nil, err
		}
		return showDetails(sh), nil
	case "season":
		se, err := s.season(ctx, tmdbID, season)
		if err != nil || se == nil {
			return nil, err
		}
		return seasonDetails(tmdbID, se), nil
	case "episode":
		se, err := s.season(ctx, tmdbID, season)
		if err != nil || se == nil {
			return nil, err
		}
		for _, ep := range se.Episodes {
			if ep.EpisodeNumber == episode {
				return episodeDetails(tmdbID, &ep), nil
			}
		}
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("tmdb details: unsupported type %q", tmdbType)
}

// Seasons lists the seasons of a show in TMDb order, specials included.
func (s *Service) Seasons(ctx context.Context, tmdbID int) ([]models.Descriptor, error) {
	sh, err := s.show(ctx, tmdbID)
	if err != nil || sh == nil {
		return nil, err
	}
	id := strconv.Itoa(tmdbID)
	out := make([]models.Descriptor, 0, len(sh.Seasons))
	for _, se := range sh.Seasons {
		n := strconv.Itoa(se.SeasonNumber)
		out = append(out, models.Descriptor{
			Label:  se.Name,
			Params: map[string]string{"info": "episodes", "tmdb_type": "tv", "tmdb_id": id, "season": n},
			InfoLabels: map[string]any{
				"mediatype":   models.MediaTypeSeason,
				"title":       se.Name,
				"tvshowtitle": sh.Name,
				"season":      se.SeasonNumber,
				"episode":     se.EpisodeCount,
				"premiered":   se.AirDate,
				"year":        parseTMDBYear(se.AirDate),
				"plot":        se.Overview,
			},
			InfoProperties: map[string]string{"tvshow.tmdb_id": id},
			UniqueIDs:      map[string]string{"tmdb": id, "tvshow.tmdb": id},
			Art:            map[string]string{"poster": buildTMDBImage(se.PosterPath, tmdbPosterSize)},
		})
	}
	return out, nil
}

// Episodes lists the episodes of one season.
func (s *Service) Episodes(ctx context.Context, tmdbID, season int) ([]models.Descriptor, error) {
	se, err := s.season(ctx, tmdbID, season)
	if err != nil || se == nil {
		return nil, err
	}
	out := make([]models.Descriptor, 0, len(se.Episodes))
	for i := range se.Episodes {
		d := episodeDetails(tmdbID, &se.Episodes[i])
		ep := se.Episodes[i]
		out = append(out, models.Descriptor{
			Label: ep.Name,
			Params: map[string]string{
				"info": "details", "tmdb_type": "tv", "tmdb_id": strconv.Itoa(tmdbID),
				"season": strconv.Itoa(ep.SeasonNumber), "episode": strconv.Itoa(ep.EpisodeNumber),
			},
			InfoLabels:     d.InfoLabels,
			InfoProperties: d.InfoProperties,
			UniqueIDs:      d.UniqueIDs,
			Art:            d.Art,
		})
	}
	return out, nil
}

// Collection lists the movies of a TMDb collection.
func (s *Service) Collection(ctx context.Context, collectionID int) ([]models.Descriptor, error) {
	col, err := cached(s, cache.Key("tmdb.collection", collectionID, s.client.language), func(ctx context.Context) (*tmdbCollection, error) {
		var c tmdbCollection
		if err := s.client.get(ctx, fmt.Sprintf("/collection/%d", collectionID), nil, &c); err != nil {
			return nil, err
		}
		return &c, nil
	})(ctx)
	if err != nil || col == nil {
		return nil, err
	}
	out := make([]models.Descriptor, 0, len(col.Parts))
	for _, p := range col.Parts {
		if d, ok := listDescriptor(p, "movie"); ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// FindID resolves a TMDb id from external ids, falling back to a title search.
func (s *Service) FindID(ctx context.Context, tmdbType, query string, year int, imdbID, tvdbID string) (int, error) {
	if tmdbType != "collection" && (imdbID != "" || tvdbID != "") {
		source, external := "imdb_id", imdbID
		if external == "" {
			source, external = "tvdb_id", tvdbID
		}
		resp, err := cached(s, cache.Key("tmdb.find", source, external), func(ctx context.Context) (*tmdbFindResponse, error) {
			var r tmdbFindResponse
			if err := s.client.get(ctx, "/find/"+external, map[string]string{"external_source": source}, &r); err != nil {
				return nil, err
			}
			return &r, nil
		})(ctx)
		if err != nil {
			return 0, err
		}
		if resp != nil {
			results := resp.MovieResults
			if tmdbType == "tv" {
				results = resp.TVResults
			}
			if len(results) > 0 {
				return results[0].ID, nil
			}
		}
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return 0, ErrNotFound
	}
	params := map[string]string{"query": query}
	if year > 0 && tmdbType != "collection" {
		if tmdbType == "tv" {
			params["first_air_date_year"] = strconv.Itoa(year)
		} else {
			params["year"] = strconv.Itoa(year)
		}
	}
	resp, err := cached(s, cache.Key("tmdb.search", tmdbType, query, year), func(ctx context.Context) (*tmdbListResponse, error) {
		var r tmdbListResponse
		if err := s.client.get(ctx, "/search/"+tmdbType, params, &r); err != nil {
			return nil, err
		}
		return &r, nil
	})(ctx)
	if err != nil {
		return 0, err
	}
	if resp == nil || len(resp.Results) == 0 {
		return 0, ErrNotFound
	}
	return resp.Results[0].ID, nil
}

func joinNames[T any](items []T, name func(T) string) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if n := name(it); n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, " / ")
}

func movieDetails(m *tmdbMovie) *models.Details {
	id := strconv.Itoa(m.ID)
	d := &models.Details{
		InfoLabels: map[string]any{
			"mediatype":     models.MediaTypeMovie,
			"title":         m.Title,
			"originaltitle": m.OriginalTitle,
			"year":          parseTMDBYear(m.ReleaseDate),
			"premiered":     m.ReleaseDate,
			"plot":          m.Overview,
			"tagline":       m.Tagline,
			"duration":      m.Runtime * 60,
			"rating":        m.VoteAverage,
			"votes":         m.VoteCount,
			"status":        m.Status,
			"genre":         joinNames(m.Genres, func(g tmdbGenre) string { return g.Name }),
			"studio":        joinNames(m.ProductionCompanies, func(c tmdbCompany) string { return c.Name }),
		},
		InfoProperties: map[string]string{"tmdb_type": "movie"},
		UniqueIDs:      map[string]string{"tmdb": id},
		Art: map[string]string{
			"poster": buildTMDBImage(m.PosterPath, tmdbPosterSize),
			"fanart": buildTMDBImage(m.BackdropPath, tmdbBackdropSize),
		},
	}
	if m.IMDBID != "" {
		d.UniqueIDs["imdb"] = m.IMDBID
	}
	if c := m.BelongsToCollection; c != nil {
		d.InfoLabels["set"] = c.Name
		d.InfoProperties["set.tmdb_id"] = strconv.Itoa(c.ID)
	}
	return d
}

func showDetails(sh *tmdbShow) *models.Details {
	id := strconv.Itoa(sh.ID)
	runtime := 0
	if len(sh.EpisodeRunTime) > 0 {
		runtime = sh.EpisodeRunTime[0] * 60
	}
	d := &models.Details{
		InfoLabels: map[string]any{
			"mediatype":     models.MediaTypeTVShow,
			"title":         sh.Name,
			"tvshowtitle":   sh.Name,
			"originaltitle": sh.OriginalName,
			"year":          parseTMDBYear(sh.FirstAirDate),
			"premiered":     sh.FirstAirDate,
			"plot":          sh.Overview,
			"status":        sh.Status,
			"season":        sh.NumberOfSeasons,
			"episode":       sh.NumberOfEpisodes,
			"duration":      runtime,
			"rating":        sh.VoteAverage,
			"votes":         sh.VoteCount,
			"genre":         joinNames(sh.Genres, func(g tmdbGenre) string { return g.Name }),
			"studio":        joinNames(sh.Networks, func(c tmdbCompany) string { return c.Name }),
		},
		InfoProperties: map[string]string{
			"tmdb_type":     "tv",
			"totalseasons":  strconv.Itoa(sh.NumberOfSeasons),
			"totalepisodes": strconv.Itoa(sh.NumberOfEpisodes),
		},
		UniqueIDs: map[string]string{"tmdb": id},
		Art: map[string]string{
			"poster": buildTMDBImage(sh.PosterPath, tmdbPosterSize),
			"fanart": buildTMDBImage(sh.BackdropPath, tmdbBackdropSize),
		},
	}
	if sh.ExternalIDs.IMDBID != "" {
		d.UniqueIDs["imdb"] = sh.ExternalIDs.IMDBID
	}
	if sh.ExternalIDs.TVDBID > 0 {
		d.UniqueIDs["tvdb"] = strconv.Itoa(sh.ExternalIDs.TVDBID)
	}
	return d
}

func seasonDetails(showID int, se *tmdbSeason) *models.Details {
	return &models.Details{
		InfoLabels: map[string]any{
			"mediatype": models.MediaTypeSeason,
			"title":     se.Name,
			"season":    se.SeasonNumber,
			"episode":   len(se.Episodes),
			"premiered": se.AirDate,
			"year":      parseTMDBYear(se.AirDate),
			"plot":      se.Overview,
		},
		InfoProperties: map[string]string{"tmdb_type": "season"},
		UniqueIDs:      map[string]string{"tmdb": strconv.Itoa(showID), "tvshow.tmdb": strconv.Itoa(showID)},
		Art:            map[string]string{"poster": buildTMDBImage(se.PosterPath, tmdbPosterSize)},
	}
}

func episodeDetails(showID int, ep *tmdbEpisode) *models.Details {
	return &models.Details{
		InfoLabels: map[string]any{
			"mediatype": models.MediaTypeEpisode,
			"title":     ep.Name,
			"season":    ep.SeasonNumber,
			"episode":   ep.EpisodeNumber,
			"premiered": ep.AirDate,
			"year":      parseTMDBYear(ep.AirDate),
			"plot":      ep.Overview,
			"duration":  ep.Runtime * 60,
			"rating":    ep.VoteAverage,
			"votes":     ep.VoteCount,
		},
		InfoProperties: map[string]string{"tmdb_type": "episode", "episode.tmdb_id": strconv.Itoa(ep.ID)},
		UniqueIDs:      map[string]string{"tmdb": strconv.Itoa(showID), "tvshow.tmdb": strconv.Itoa(showID)},
		Art:            map[string]string{"thumb": buildTMDBImage(ep.StillPath, tmdbStillSize)},
	}
}
