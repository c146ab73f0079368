// Package items resolves raw list descriptors into decorated listing entries.
package items

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/spf13/cast"

	"tmdbhelper/models"
	"tmdbhelper/services/cache"
)

// DetailsProvider returns TMDb details for a movie, show, season or episode.
type DetailsProvider interface {
	Details(ctx context.Context, tmdbType string, tmdbID, season, episode int) (*models.Details, error)
}

// ArtworkProvider returns an art map for fanart.tv type "movies" or "tv".
type ArtworkProvider interface {
	Artwork(ctx context.Context, ftvType, id string, season int) (map[string]string, error)
}

// Options are fixed for the lifetime of one listing.
type Options struct {
	// TMDbCacheOnly limits details to stored responses.
	TMDbCacheOnly bool
	// FanartCacheOnly limits artwork to stored responses.
	FanartCacheOnly bool
}

type parent struct {
	show   *models.Details
	season *models.Details
}

// Builder turns descriptors into entries. It is safe for concurrent use.
type Builder struct {
	details DetailsProvider
	artwork ArtworkProvider
	opts    Options

	mu      sync.Mutex
	parents map[string]*parent
}

func NewBuilder(details DetailsProvider, artwork ArtworkProvider, opts Options) *Builder {
	return &Builder{details: details, artwork: artwork, opts: opts, parents: make(map[string]*parent)}
}

func parentKey(tmdbID, season int) string {
	return fmt.Sprintf("%d:%d", tmdbID, season)
}

func (b *Builder) detailsCtx(ctx context.Context) context.Context {
	if b.opts.TMDbCacheOnly {
		return cache.WithCacheOnly(ctx)
	}
	return ctx
}

func (b *Builder) artworkCtx(ctx context.Context) context.Context {
	if b.opts.FanartCacheOnly {
		return cache.WithCacheOnly(ctx)
	}
	return ctx
}

// Parents resolves the show (and season when positive) shared by every child
// of a listing, so concurrent child builds reuse it.
func (b *Builder) Parents(ctx context.Context, tmdbType string, tmdbID, season int) {
	if tmdbType != "tv" || tmdbID == 0 || b.details == nil {
		return
	}
	b.parent(ctx, tmdbID, season)
}

func (b *Builder) parent(ctx context.Context, tmdbID, season int) *parent {
	key := parentKey(tmdbID, season)
	b.mu.Lock()
	p, ok := b.parents[key]
	b.mu.Unlock()
	if ok {
		return p
	}

	p = &parent{}
	show, err := b.details.Details(b.detailsCtx(ctx), "tv", tmdbID, 0, 0)
	if err != nil {
		log.Printf("[items] parent show %d: %v", tmdbID, err)
	}
	if show != nil {
		p.show = show
		if art := b.lookupArtwork(ctx, "tv", show.UniqueIDs["tvdb"], 0); len(art) > 0 {
			if show.Art == nil {
				show.Art = make(map[string]string, len(art))
			}
			for k, v := range art {
				show.Art[k] = v
			}
		}
	}
	if season > 0 {
		se, err := b.details.Details(b.detailsCtx(ctx), "season", tmdbID, season, 0)
		if err != nil {
			log.Printf("[items] parent season %d/%d: %v", tmdbID, season, err)
		}
		p.season = se
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.parents[key]; ok {
		return existing
	}
	b.parents[key] = p
	return p
}

func (b *Builder) lookupArtwork(ctx context.Context, ftvType, id string, season int) map[string]string {
	if b.artwork == nil || id == "" {
		return nil
	}
	art, err := b.artwork.Artwork(b.artworkCtx(ctx), ftvType, id, season)
	if err != nil {
		log.Printf("[items] artwork %s/%s: %v", ftvType, id, err)
		return nil
	}
	return art
}

type target struct {
	detailType string
	tmdbID     int
	season     int
	episode    int
}

func targetOf(d models.Descriptor) target {
	t := target{
		tmdbID:  cast.ToInt(d.Param("tmdb_id")),
		season:  cast.ToInt(d.Param("season")),
		episode: cast.ToInt(d.Param("episode")),
	}
	if t.tmdbID == 0 {
		t.tmdbID = cast.ToInt(d.UniqueIDs["tmdb"])
	}
	switch tmdbType := d.Param("tmdb_type"); {
	case tmdbType == "tv" && d.Param("episode") != "":
		t.detailType = "episode"
	case tmdbType == "tv" && d.Param("season") != "":
		t.detailType = "season"
	case tmdbType == "movie" || tmdbType == "tv":
		t.detailType = tmdbType
	}
	return t
}

// Build resolves one descriptor. A nil entry without error means the
// descriptor carries nothing to show.
func (b *Builder) Build(ctx context.Context, d models.Descriptor) (*models.ListingEntry, error) {
	e := models.NewListingEntry(d)
	if d.NextPage {
		return e, nil
	}

	t := targetOf(d)
	if t.detailType != "" && t.tmdbID != 0 && b.details != nil {
		det, err := b.details.Details(b.detailsCtx(ctx), t.detailType, t.tmdbID, t.season, t.episode)
		if err != nil {
			return nil, fmt.Errorf("details %s %d: %w", t.detailType, t.tmdbID, err)
		}
		e.SetDetails(det, true)
	}

	if t.tmdbID == 0 {
		t.detailType = ""
	}
	switch t.detailType {
	case "movie":
		if art := b.lookupArtwork(ctx, "movies", strconv.Itoa(t.tmdbID), 0); len(art) > 0 {
			e.SetDetails(&models.Details{Art: art}, false)
		}
	case "tv":
		if art := b.lookupArtwork(ctx, "tv", e.UniqueIDs["tvdb"], 0); len(art) > 0 {
			e.SetDetails(&models.Details{Art: art}, false)
		}
	case "season", "episode":
		b.inherit(ctx, e, t)
	}

	if e.Label == "" {
		e.Label = cast.ToString(e.InfoLabels["title"])
	}
	if e.Label == "" {
		return nil, nil
	}
	return e, nil
}

// inherit copies show level ids, title and art onto a season or episode.
func (b *Builder) inherit(ctx context.Context, e *models.ListingEntry, t target) {
	if b.details == nil {
		return
	}
	parentSeason := 0
	if t.detailType == "episode" {
		parentSeason = t.season
	}
	p := b.parent(ctx, t.tmdbID, parentSeason)
	if p.show == nil {
		return
	}
	show := p.show
	for k, v := range show.UniqueIDs {
		if v != "" {
			e.UniqueIDs["tvshow."+k] = v
		}
	}
	if title := cast.ToString(show.InfoLabels["title"]); title != "" {
		if _, ok := e.InfoLabels["tvshowtitle"]; !ok {
			e.InfoLabels["tvshowtitle"] = title
		}
	}
	for k, v := range show.Art {
		if v == "" {
			continue
		}
		e.Art["tvshow."+k] = v
		if _, ok := e.Art[k]; !ok && k != "poster" {
			e.Art[k] = v
		}
	}
	if _, ok := e.Art["poster"]; !ok {
		if p.season != nil && p.season.Art["poster"] != "" {
			e.Art["poster"] = p.season.Art["poster"]
		} else if show.Art["poster"] != "" {
			e.Art["poster"] = show.Art["poster"]
		}
	}
	if t.detailType == "season" {
		if art := b.lookupArtwork(ctx, "tv", show.UniqueIDs["tvdb"], t.season); art["poster"] != "" {
			e.Art["poster"] = art["poster"]
		}
	}
	e.InfoProperties["tvshow.tmdb_id"] = strconv.Itoa(t.tmdbID)
}
