package container

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"tmdbhelper/config"
	"tmdbhelper/models"
	"tmdbhelper/services/items"
	"tmdbhelper/services/metadata"
	"tmdbhelper/services/trakt"
	"tmdbhelper/utils/filter"
)

// TMDb is the metadata provider used for routing and item details.
type TMDb interface {
	items.DetailsProvider
	List(ctx context.Context, name, tmdbType string, page int) (metadata.ListPage, error)
	Related(ctx context.Context, kind, tmdbType string, tmdbID, page int) (metadata.ListPage, error)
	Seasons(ctx context.Context, tmdbID int) ([]models.Descriptor, error)
	Episodes(ctx context.Context, tmdbID, season int) ([]models.Descriptor, error)
	Collection(ctx context.Context, collectionID int) ([]models.Descriptor, error)
	FindID(ctx context.Context, tmdbType, query string, year int, imdbID, tvdbID string) (int, error)
}

// Trakt is the user's sync data: watch state plus the lists it can route to.
type Trakt interface {
	WatchState
	Watchlist(ctx context.Context, mediaType string, page, limit int) (trakt.Page[trakt.WatchlistItem], error)
	History(ctx context.Context, mediaType string, page, limit int) (trakt.Page[trakt.HistoryItem], error)
	Collection(ctx context.Context, mediaType string) ([]trakt.CollectionItem, error)
}

// Providers are the router's dependencies. Artwork, Trakt and Library may be nil.
type Providers struct {
	TMDb    TMDb
	Artwork items.ArtworkProvider
	Trakt   Trakt
	Library LocalLibrary
}

// ErrTraktUnavailable is returned for Trakt routes when no Trakt client is configured.
var ErrTraktUnavailable = errors.New("trakt is not configured")

const traktPageLimit = 20

// Router dispatches directory requests to list routes and renders the result
// into a sink.
type Router struct {
	providers Providers
	settings  config.ListingSettings
	intn      func(n int) int
}

func NewRouter(providers Providers, settings config.ListingSettings) *Router {
	return &Router{providers: providers, settings: settings, intn: rand.IntN}
}

// request is the state of one directory call.
type request struct {
	params       map[string]string
	parentParams map[string]string
	paramstring  string

	isWidget         bool
	cacheOnly        string
	ftvForcedLookup  string
	pagination       bool
	pluginCategory   string
	containerContent string
	thumbOverride    int
}

func (r *Router) newRequest(params map[string]string) *request {
	p := make(map[string]string, len(params))
	for k, v := range params {
		p[k] = v
	}
	req := &request{paramstring: encodeParams(p)}

	req.isWidget = strings.EqualFold(p["widget"], "true")
	delete(p, "widget")
	req.cacheOnly = p["cacheonly"]
	delete(p, "cacheonly")
	req.ftvForcedLookup = p["fanarttv"]
	delete(p, "fanarttv")
	nextPage := p["nextpage"]
	delete(p, "nextpage")
	req.thumbOverride = cast.ToInt(p["thumb_override"])
	delete(p, "thumb_override")

	req.pagination = true
	if strings.EqualFold(nextPage, "false") || (req.isWidget && !r.settings.WidgetsNextPage) {
		req.pagination = false
	}
	req.params = p
	req.parentParams = make(map[string]string, len(p))
	for k, v := range p {
		req.parentParams[k] = v
	}
	return req
}

func encodeParams(p map[string]string) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	v := url.Values{}
	for _, k := range keys {
		v.Set(k, p[k])
	}
	return v.Encode()
}

// fanartCacheOnly decides whether fanart.tv may be queried live.
func (r *Router) fanartCacheOnly(req *request) bool {
	switch {
	case strings.EqualFold(req.cacheOnly, "true"):
		return true
	case strings.EqualFold(req.ftvForcedLookup, "true"):
		return false
	case strings.EqualFold(req.ftvForcedLookup, "false"):
		return true
	case req.isWidget && r.settings.WidgetFanartTVLookup:
		return false
	case !req.isWidget && r.settings.FanartTVLookup:
		return false
	}
	return true
}

// tmdbCacheOnly decides whether TMDb details may be fetched live.
func (r *Router) tmdbCacheOnly(req *request) bool {
	switch {
	case strings.EqualFold(req.cacheOnly, "true"):
		return true
	case r.providers.Artwork != nil:
		return false
	case r.settings.TMDbDetails:
		return false
	}
	return true
}

// Directory routes params to a list, builds it and emits it to sink.
func (r *Router) Directory(ctx context.Context, params map[string]string, sink Sink) error {
	buildID := uuid.NewString()
	timers := NewTimers()
	stopTotal := timers.Start("total")
	req := r.newRequest(params)
	log.Printf("[router] directory build=%s %s", buildID, req.paramstring)

	stop := timers.Start("get_list")
	descriptors, err := r.items(ctx, req, req.params)
	stop()
	if err != nil {
		stopTotal()
		return err
	}
	if len(descriptors) == 0 {
		stopTotal()
		return nil
	}
	if pc := req.params["plugin_category"]; pc != "" {
		req.pluginCategory = pc
	}

	properties := r.setParamsToContainer(sink, req.params)
	builder := items.NewBuilder(r.providers.TMDb, r.providers.Artwork, items.Options{
		TMDbCacheOnly:   r.tmdbCacheOnly(req),
		FanartCacheOnly: r.fanartCacheOnly(req),
	})
	var watch WatchState
	if r.providers.Trakt != nil {
		watch = r.providers.Trakt
	}
	c := New(builder, watch, r.providers.Library, r.settings, timers)

	stop = timers.Start("add_items")
	c.AddItems(ctx, sink, descriptors, Options{
		ParentParams:     req.parentParams,
		Filter:           filter.FromParams(req.params),
		Pagination:       req.pagination,
		ContainerContent: req.containerContent,
		PluginCategory:   req.pluginCategory,
		ThumbOverride:    req.thumbOverride,
		PropertyParams:   properties,
		HideWatched:      req.isWidget && r.settings.WidgetsHideWatched,
		FtvForcedLookup:  req.ftvForcedLookup,
		Extended:         req.params["extended"],
		CacheOnly:        req.cacheOnly,
	})
	stop()

	err = sink.Finish(false, req.pluginCategory, req.containerContent)
	stopTotal()
	if r.settings.TimerReports {
		log.Print(timers.Report(buildID, req.paramstring))
	}
	if err != nil {
		return fmt.Errorf("finish listing: %w", err)
	}
	return nil
}

// setParamsToContainer mirrors params into Param.<key> container properties.
func (r *Router) setParamsToContainer(sink Sink, params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if k == "" || v == "" {
			continue
		}
		key := "Param." + k
		out[key] = v
		if err := sink.SetProperty(key, v); err != nil {
			log.Printf("[router] set container property %s: %v", key, err)
		}
	}
	return out
}

// containerContent maps a tmdb type and depth to a container content type.
func containerContent(tmdbType string, season, episode bool) string {
	switch {
	case tmdbType == "tv" && season && episode:
		return "episodes"
	case tmdbType == "tv" && season:
		return "seasons"
	}
	switch tmdbType {
	case "movie":
		return "movies"
	case "tv":
		return "tvshows"
	case "collection":
		return "sets"
	}
	return ""
}

func typeName(tmdbType string) string {
	if tmdbType == "tv" {
		return "TV Shows"
	}
	return "Movies"
}

func titleCase(info string) string {
	words := strings.Fields(strings.ReplaceAll(info, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func (r *Router) items(ctx context.Context, req *request, params map[string]string) ([]models.Descriptor, error) {
	info := params["info"]
	tmdbType := params["tmdb_type"]
	if tmdbType == "" {
		tmdbType = "movie"
	}

	switch {
	case strings.HasPrefix(info, "random_"):
		return r.randomItems(ctx, req, params)
	case metadata.IsList(info):
		page := max(cast.ToInt(params["page"]), 1)
		res, err := r.providers.TMDb.List(ctx, info, tmdbType, page)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", info, err)
		}
		req.pluginCategory = titleCase(info) + " " + typeName(tmdbType)
		req.containerContent = containerContent(tmdbType, false, false)
		return withNextPage(res.Items, params, page, res.Pages), nil
	case info == "trakt_watchlist", info == "trakt_history", info == "trakt_collection":
		return r.traktItems(ctx, req, info, tmdbType, params)
	}

	switch info {
	case "details", "play", "seasons", "flatseasons", "episodes", "recommendations", "similar", "collection", "related":
	default:
		return baseDirectory(), nil
	}

	if info == "collection" {
		tmdbType = "collection"
		params["tmdb_type"] = tmdbType
	}
	tmdbID := cast.ToInt(params["tmdb_id"])
	if tmdbID == 0 {
		id, err := r.providers.TMDb.FindID(ctx, tmdbType, params["query"], cast.ToInt(params["year"]), params["imdb_id"], params["tvdb_id"])
		if err != nil {
			log.Printf("[router] find id for %s: %v", info, err)
			return nil, nil
		}
		tmdbID = id
		params["tmdb_id"] = strconv.Itoa(id)
		req.parentParams["tmdb_id"] = params["tmdb_id"]
	}
	season := cast.ToInt(params["season"])

	switch info {
	case "details", "play":
		d := models.Descriptor{
			Params:    map[string]string{"info": "details", "tmdb_type": tmdbType, "tmdb_id": strconv.Itoa(tmdbID)},
			UniqueIDs: map[string]string{"tmdb": strconv.Itoa(tmdbID)},
		}
		if s := params["season"]; s != "" {
			d.Params["season"] = s
		}
		if ep := params["episode"]; ep != "" {
			d.Params["episode"] = ep
		}
		req.containerContent = containerContent(tmdbType, params["season"] != "", params["episode"] != "")
		return []models.Descriptor{d}, nil
	case "seasons":
		req.containerContent = "seasons"
		return r.providers.TMDb.Seasons(ctx, tmdbID)
	case "flatseasons":
		req.containerContent = "episodes"
		return r.flatSeasons(ctx, tmdbID)
	case "episodes":
		req.containerContent = "episodes"
		return r.providers.TMDb.Episodes(ctx, tmdbID, season)
	case "recommendations", "similar":
		page := max(cast.ToInt(params["page"]), 1)
		res, err := r.providers.TMDb.Related(ctx, info, tmdbType, tmdbID, page)
		if err != nil {
			return nil, fmt.Errorf("%s %d: %w", info, tmdbID, err)
		}
		req.pluginCategory = titleCase(info)
		req.containerContent = containerContent(tmdbType, false, false)
		return withNextPage(res.Items, params, page, res.Pages), nil
	case "collection":
		req.containerContent = "movies"
		return r.providers.TMDb.Collection(ctx, tmdbID)
	case "related":
		return relatedLists(tmdbType, tmdbID), nil
	}
	return nil, nil
}

func (r *Router) flatSeasons(ctx context.Context, tmdbID int) ([]models.Descriptor, error) {
	seasons, err := r.providers.TMDb.Seasons(ctx, tmdbID)
	if err != nil {
		return nil, err
	}
	var out []models.Descriptor
	for _, s := range seasons {
		n := cast.ToInt(s.Param("season"))
		if n == 0 {
			continue
		}
		eps, err := r.providers.TMDb.Episodes(ctx, tmdbID, n)
		if err != nil {
			return nil, fmt.Errorf("season %d: %w", n, err)
		}
		out = append(out, eps...)
	}
	return out, nil
}

// randomItems lists the base route, picks one item and routes to it.
func (r *Router) randomItems(ctx context.Context, req *request, params map[string]string) ([]models.Descriptor, error) {
	base := make(map[string]string, len(params))
	for k, v := range params {
		base[k] = v
	}
	base["info"] = strings.TrimPrefix(params["info"], "random_")
	if strings.HasPrefix(base["info"], "random_") {
		return nil, fmt.Errorf("nested random list %q", params["info"])
	}
	delete(base, "page")
	list, err := r.items(ctx, req, base)
	if err != nil {
		return nil, err
	}
	candidates := list[:0:0]
	for _, d := range list {
		if !d.NextPage {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	pick := candidates[r.intn(len(candidates))]
	next := make(map[string]string, len(pick.Params))
	for k, v := range pick.Params {
		next[k] = v
	}
	req.pluginCategory = pick.Label
	req.parentParams = next
	return r.items(ctx, req, next)
}

func (r *Router) traktItems(ctx context.Context, req *request, info, tmdbType string, params map[string]string) ([]models.Descriptor, error) {
	if r.providers.Trakt == nil {
		return nil, ErrTraktUnavailable
	}
	page := max(cast.ToInt(params["page"]), 1)
	req.pluginCategory = titleCase(strings.TrimPrefix(info, "trakt_")) + " " + typeName(tmdbType)
	req.containerContent = containerContent(tmdbType, false, false)

	var out []models.Descriptor
	switch info {
	case "trakt_watchlist":
		res, err := r.providers.Trakt.Watchlist(ctx, traktType(tmdbType), page, traktPageLimit)
		if err != nil {
			return nil, fmt.Errorf("trakt watchlist: %w", err)
		}
		for _, it := range res.Items {
			if d, ok := traktDescriptor(it.Movie, it.Show); ok {
				out = append(out, d)
			}
		}
		return withNextPage(out, params, page, res.Pages), nil
	case "trakt_history":
		mediaType := "movies"
		if tmdbType == "tv" {
			mediaType = "episodes"
			req.containerContent = "episodes"
		}
		res, err := r.providers.Trakt.History(ctx, mediaType, page, traktPageLimit)
		if err != nil {
			return nil, fmt.Errorf("trakt history: %w", err)
		}
		for _, it := range res.Items {
			var d models.Descriptor
			var ok bool
			if it.Episode != nil {
				d, ok = episodeDescriptor(it.Show, it.Episode)
			} else {
				d, ok = traktDescriptor(it.Movie, nil)
			}
			if ok {
				out = append(out, d)
			}
		}
		return withNextPage(out, params, page, res.Pages), nil
	default:
		res, err := r.providers.Trakt.Collection(ctx, traktType(tmdbType))
		if err != nil {
			return nil, fmt.Errorf("trakt collection: %w", err)
		}
		for _, it := range res {
			if d, ok := traktDescriptor(it.Movie, it.Show); ok {
				out = append(out, d)
			}
		}
		return out, nil
	}
}

func traktType(tmdbType string) string {
	if tmdbType == "tv" {
		return "shows"
	}
	return "movies"
}

func traktDescriptor(m *trakt.Movie, s *trakt.Show) (models.Descriptor, bool) {
	tmdbType, title, year, ids := "movie", "", 0, trakt.IDs{}
	switch {
	case m != nil:
		title, year, ids = m.Title, m.Year, m.IDs
	case s != nil:
		tmdbType, title, year, ids = "tv", s.Title, s.Year, s.IDs
	default:
		return models.Descriptor{}, false
	}
	if ids.TMDB == 0 {
		return models.Descriptor{}, false
	}
	id := strconv.Itoa(ids.TMDB)
	return models.Descriptor{
		Label:      title,
		Params:     map[string]string{"info": "details", "tmdb_type": tmdbType, "tmdb_id": id},
		InfoLabels: map[string]any{"mediatype": metadata.MediaTypeFor(tmdbType), "title": title, "year": year},
		UniqueIDs:  trakt.IDsToMap(ids),
	}, true
}

func episodeDescriptor(s *trakt.Show, ep *trakt.Episode) (models.Descriptor, bool) {
	if s == nil || s.IDs.TMDB == 0 {
		return models.Descriptor{}, false
	}
	id := strconv.Itoa(s.IDs.TMDB)
	uids := map[string]string{}
	for k, v := range trakt.IDsToMap(s.IDs) {
		uids["tvshow."+k] = v
	}
	for k, v := range trakt.IDsToMap(ep.IDs) {
		if k != "tmdb" {
			uids[k] = v
		}
	}
	return models.Descriptor{
		Label: ep.Title,
		Params: map[string]string{
			"info": "details", "tmdb_type": "tv", "tmdb_id": id,
			"season": strconv.Itoa(ep.Season), "episode": strconv.Itoa(ep.Number),
		},
		InfoLabels: map[string]any{
			"mediatype":   models.MediaTypeEpisode,
			"title":       ep.Title,
			"tvshowtitle": s.Title,
			"season":      ep.Season,
			"episode":     ep.Number,
		},
		UniqueIDs: uids,
	}, true
}

// withNextPage appends a next page placeholder while pages remain.
func withNextPage(list []models.Descriptor, params map[string]string, page, pages int) []models.Descriptor {
	if page >= pages || len(list) == 0 {
		return list
	}
	next := make(map[string]string, len(params)+1)
	for k, v := range params {
		next[k] = v
	}
	next["page"] = strconv.Itoa(page + 1)
	return append(slices.Clip(list), models.Descriptor{Label: "Next page", Params: next, NextPage: true})
}

func folder(label string, params map[string]string) models.Descriptor {
	return models.Descriptor{Label: label, Params: params}
}

// baseDirectory is the listing for an unknown or empty info param.
func baseDirectory() []models.Descriptor {
	var out []models.Descriptor
	for _, tmdbType := range []string{"movie", "tv"} {
		for _, info := range []string{"popular", "top_rated", "trending_day", "trending_week"} {
			out = append(out, folder(titleCase(info)+" "+typeName(tmdbType), map[string]string{"info": info, "tmdb_type": tmdbType}))
		}
	}
	out = append(out,
		folder("Upcoming Movies", map[string]string{"info": "upcoming", "tmdb_type": "movie"}),
		folder("Now Playing Movies", map[string]string{"info": "now_playing", "tmdb_type": "movie"}),
		folder("Airing Today TV Shows", map[string]string{"info": "airing_today", "tmdb_type": "tv"}),
		folder("On The Air TV Shows", map[string]string{"info": "on_the_air", "tmdb_type": "tv"}),
	)
	for _, tmdbType := range []string{"movie", "tv"} {
		for _, info := range []string{"trakt_watchlist", "trakt_history", "trakt_collection"} {
			label := titleCase(strings.TrimPrefix(info, "trakt_")) + " " + typeName(tmdbType)
			out = append(out, folder("Trakt "+label, map[string]string{"info": info, "tmdb_type": tmdbType}))
		}
	}
	return out
}

// relatedLists are the lists reachable from one item's context menu.
func relatedLists(tmdbType string, tmdbID int) []models.Descriptor {
	id := strconv.Itoa(tmdbID)
	out := []models.Descriptor{
		folder("Recommendations", map[string]string{"info": "recommendations", "tmdb_type": tmdbType, "tmdb_id": id}),
		folder("Similar", map[string]string{"info": "similar", "tmdb_type": tmdbType, "tmdb_id": id}),
	}
	if tmdbType == "tv" {
		out = append(out, folder("Seasons", map[string]string{"info": "seasons", "tmdb_type": "tv", "tmdb_id": id}))
	}
	return out
}
