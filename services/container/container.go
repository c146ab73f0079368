// Package container turns a list of raw descriptors into a finished, ordered
// listing: concurrent item builds, filtering, watch state and emission.
package container

import (
	"context"
	"log"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cast"

	"tmdbhelper/config"
	"tmdbhelper/models"
	"tmdbhelper/services/trakt"
	"tmdbhelper/utils/filter"
)

// ItemBuilder resolves descriptors into entries.
type ItemBuilder interface {
	Parents(ctx context.Context, tmdbType string, tmdbID, season int)
	Build(ctx context.Context, d models.Descriptor) (*models.ListingEntry, error)
}

// WatchState is the user's Trakt watch state.
type WatchState interface {
	Watched(ctx context.Context, mediaType string) (*trakt.WatchedIndex, error)
	Playback(ctx context.Context, mediaType string) (*trakt.PlaybackIndex, error)
	ShowProgress(ctx context.Context, showID, lastUpdatedAt string) (*trakt.ShowProgress, error)
}

// LocalLibrary returns library details for an entry, or nil when it is not in
// the library.
type LocalLibrary interface {
	Lookup(ctx context.Context, e *models.ListingEntry) *models.Details
}

// parent listings whose children share one show
var pregameParent = map[string]bool{
	"seasons":               true,
	"episodes":              true,
	"episode_groups":        true,
	"trakt_upnext":          true,
	"episode_group_seasons": true,
}

// listings that show unaired items as they are
var noLabelFormatting = map[string]bool{
	"details":            true,
	"upcoming":           true,
	"trakt_calendar":     true,
	"trakt_myairing":     true,
	"trakt_anticipated":  true,
	"library_nextaired":  true,
	"videos":             true,
	"trakt_upnext":       true,
	"trakt_nextepisodes": true,
}

const (
	minResumeProgress = 4
	maxResumeProgress = 96
)

// Options describe one listing request. PropertyParams are copied into every
// entry's properties.
type Options struct {
	ParentParams     map[string]string
	Filter           filter.Rules
	Pagination       bool
	ContainerContent string
	PluginCategory   string
	ThumbOverride    int
	PropertyParams   map[string]string
	HideWatched      bool
	FtvForcedLookup  string
	Extended         string
	CacheOnly        string
}

// Container builds one listing. Watch and library may be nil.
type Container struct {
	builder  ItemBuilder
	watch    WatchState
	library  LocalLibrary
	settings config.ListingSettings
	timers   *Timers
	now      func() time.Time
}

func New(builder ItemBuilder, watch WatchState, library LocalLibrary, settings config.ListingSettings, timers *Timers) *Container {
	return &Container{
		builder:  builder,
		watch:    watch,
		library:  library,
		settings: settings,
		timers:   timers,
		now:      time.Now,
	}
}

// AddItems builds the listing and emits it to sink in order. It returns the
// number of entries emitted.
func (c *Container) AddItems(ctx context.Context, sink Sink, descriptors []models.Descriptor, opts Options) int {
	entries := c.Build(ctx, descriptors, opts)
	for _, e := range entries {
		if err := sink.AddItem(e.URL(), e, e.IsFolder); err != nil {
			log.Printf("[container] add item %q: %v", e.Label, err)
		}
	}
	return len(entries)
}

// Build resolves descriptors into entries. Entries keep the relative order of
// their descriptors; failed or filtered descriptors are dropped.
func (c *Container) Build(ctx context.Context, descriptors []models.Descriptor, opts Options) []*models.ListingEntry {
	if len(descriptors) == 0 {
		return nil
	}
	c.prime(ctx, opts.ParentParams)

	var prefetch conc.WaitGroup
	var watched *trakt.WatchedIndex
	if c.settings.TraktWatchedIndicators && c.watch != nil {
		prefetch.Go(func() { watched = c.prefetch(ctx, opts.ContainerContent) })
	}

	slots := make([]*models.ListingEntry, len(descriptors))
	var wg conc.WaitGroup
	for i, d := range descriptors {
		if d.NextPage && !opts.Pagination {
			continue
		}
		wg.Go(func() { slots[i] = c.buildUnit(ctx, i, d) })
	}
	if r := wg.WaitAndRecover(); r != nil {
		log.Printf("[container] item build panicked: %v", r.Value)
	}

	stop := c.timers.Start("item_make")
	survivors := c.firstPass(slots, opts)
	stop()

	stop = c.timers.Start("item_join")
	if r := prefetch.WaitAndRecover(); r != nil {
		log.Printf("[container] watch state prefetch panicked: %v", r.Value)
		watched = nil
	}
	stop()

	return c.enrich(ctx, survivors, watched, opts)
}

func (c *Container) prime(ctx context.Context, parentParams map[string]string) {
	info := parentParams["info"]
	if !pregameParent[info] {
		return
	}
	season := 0
	if info == "episodes" {
		season = cast.ToInt(parentParams["season"])
	}
	c.builder.Parents(ctx, "tv", cast.ToInt(parentParams["tmdb_id"]), season)
}

func (c *Container) prefetch(ctx context.Context, containerContent string) *trakt.WatchedIndex {
	var mediaType string
	switch containerContent {
	case "movies":
		mediaType = "movie"
	case "tvshows", "seasons", "episodes":
		mediaType = "show"
	default:
		return nil
	}
	idx, err := c.watch.Watched(ctx, mediaType)
	if err != nil {
		log.Printf("[container] watch state prefetch %s: %v", mediaType, err)
		return nil
	}
	return idx
}

type unitResult struct {
	entry *models.ListingEntry
	err   error
}

// buildUnit runs one item build bounded by the unit timeout.
func (c *Container) buildUnit(ctx context.Context, i int, d models.Descriptor) *models.ListingEntry {
	defer c.timers.Start("item_api")()

	if c.settings.UnitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.settings.UnitTimeout)
		defer cancel()
	}

	done := make(chan unitResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[container] item %d panicked: %v", i, r)
				done <- unitResult{}
			}
		}()
		e, err := c.builder.Build(ctx, d)
		done <- unitResult{entry: e, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			log.Printf("[container] item %d failed: %v", i, res.err)
			return nil
		}
		return res.entry
	case <-ctx.Done():
		log.Printf("[container] item %d failed: %v", i, ctx.Err())
		return nil
	}
}

func (c *Container) firstPass(slots []*models.ListingEntry, opts Options) []*models.ListingEntry {
	hideUnaired := !noLabelFormatting[opts.ParentParams["info"]]
	now := c.now()
	out := make([]*models.ListingEntry, 0, len(slots))
	for _, e := range slots {
		if e == nil {
			continue
		}
		if !e.NextPage && opts.Filter.Excluded(e) {
			continue
		}
		e.SetEpisodeLabel()
		if hideUnaired && e.InfoProperties["specialseason"] == "" && e.IsUnaired(c.settings.NoDateIsUnaired, now) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (c *Container) enrich(ctx context.Context, entries []*models.ListingEntry, watched *trakt.WatchedIndex, opts Options) []*models.ListingEntry {
	playback := make(map[string]*trakt.PlaybackIndex)
	out := entries[:0]
	for _, e := range entries {
		if c.library != nil && c.settings.LocalDB && !e.NextPage {
			e.SetDetails(c.library.Lookup(ctx, e), true)
		}
		e.SetPlaycount(c.playcount(ctx, e, watched))
		if opts.HideWatched && e.Playcount() != 0 {
			continue
		}
		e.SetContextMenu()
		e.SetUIDsToInfo()
		if opts.ThumbOverride != 0 {
			e.SetThumbToArt(opts.ThumbOverride == 2)
		}
		e.SetParamsReroute(opts.FtvForcedLookup, c.settings.FlattenSeasons, opts.Extended, opts.CacheOnly)
		e.SetParamsToInfo(opts.PluginCategory)
		for k, v := range opts.PropertyParams {
			e.InfoProperties[k] = v
		}
		if opts.ThumbOverride != 0 {
			delete(e.InfoLabels, "dbid")
		}
		if e.NextPage {
			e.Params["plugin_category"] = opts.PluginCategory
		}
		c.setResume(ctx, e, playback)
		out = append(out, e)
	}
	return out
}

func showTMDB(e *models.ListingEntry) int {
	if id := cast.ToInt(e.UniqueIDs["tvshow.tmdb"]); id != 0 {
		return id
	}
	return cast.ToInt(e.UniqueIDs["tmdb"])
}

// playcount returns the watched count for e, or nil when it is unknown.
func (c *Container) playcount(ctx context.Context, e *models.ListingEntry, watched *trakt.WatchedIndex) *int {
	if watched == nil || e.NextPage {
		return nil
	}
	var n int
	switch e.MediaType() {
	case models.MediaTypeMovie:
		n = watched.MoviePlays(cast.ToInt(e.UniqueIDs["tmdb"]))
	case models.MediaTypeEpisode:
		n = watched.EpisodePlays(showTMDB(e), e.Season(), e.Episode())
	case models.MediaTypeTVShow, models.MediaTypeSeason:
		tmdbID := showTMDB(e)
		aired := c.airedCount(ctx, e, watched, tmdbID)
		if aired == 0 {
			return nil
		}
		e.InfoLabels["episode"] = aired
		if e.MediaType() == models.MediaTypeSeason {
			n = watched.SeasonWatched(tmdbID, e.Season())
		} else {
			n = watched.ShowWatched(tmdbID)
		}
	default:
		return nil
	}
	return &n
}

// airedCount asks Trakt for the number of aired episodes of a watched show, or
// of the entry's season.
func (c *Container) airedCount(ctx context.Context, e *models.ListingEntry, watched *trakt.WatchedIndex, tmdbID int) int {
	id, lastUpdatedAt, ok := watched.Show(tmdbID)
	if !ok || c.watch == nil {
		return 0
	}
	progress, err := c.watch.ShowProgress(ctx, id, lastUpdatedAt)
	if err != nil {
		log.Printf("[container] show progress %s: %v", id, err)
		return 0
	}
	if progress == nil {
		return 0
	}
	if e.MediaType() != models.MediaTypeSeason {
		return progress.Aired
	}
	for _, s := range progress.Seasons {
		if s.Number == e.Season() {
			return s.Aired
		}
	}
	return 0
}

func (c *Container) setResume(ctx context.Context, e *models.ListingEntry, playback map[string]*trakt.PlaybackIndex) {
	if !c.settings.TraktPlayProgress || c.watch == nil {
		return
	}
	mediaType := e.MediaType()
	if mediaType != models.MediaTypeMovie && mediaType != models.MediaTypeEpisode {
		return
	}
	duration := e.Duration()
	if duration <= 0 {
		return
	}
	idx, ok := playback[mediaType]
	if !ok {
		var err error
		idx, err = c.watch.Playback(ctx, mediaType)
		if err != nil {
			log.Printf("[container] playback %s: %v", mediaType, err)
		}
		playback[mediaType] = idx
	}
	var progress float64
	if mediaType == models.MediaTypeMovie {
		progress = idx.Movie(cast.ToInt(e.UniqueIDs["tmdb"]))
	} else {
		progress = idx.Episode(showTMDB(e), e.Season(), e.Episode())
	}
	if progress < minResumeProgress || progress > maxResumeProgress {
		return
	}
	e.Resume = &models.ResumePoint{
		Position: int(float64(duration) * progress / 100),
		Total:    duration,
	}
}
