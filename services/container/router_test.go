package container

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tmdbhelper/config"
	"tmdbhelper/models"
	"tmdbhelper/services/metadata"
	"tmdbhelper/services/trakt"
)

type fakeTMDb struct {
	mu      sync.Mutex
	details []int
	findID  int
	pages   int

	findType     string
	collectionID int
}

func (f *fakeTMDb) Details(ctx context.Context, tmdbType string, tmdbID, season, episode int) (*models.Details, error) {
	f.mu.Lock()
	f.details = append(f.details, tmdbID)
	f.mu.Unlock()
	return &models.Details{
		InfoLabels: map[string]any{"mediatype": metadata.MediaTypeFor(tmdbType), "title": "Title " + strconv.Itoa(tmdbID)},
		UniqueIDs:  map[string]string{"tmdb": strconv.Itoa(tmdbID)},
	}, nil
}

func listItem(tmdbType string, id int) models.Descriptor {
	return models.Descriptor{
		Label:      "Item " + strconv.Itoa(id),
		Params:     map[string]string{"info": "details", "tmdb_type": tmdbType, "tmdb_id": strconv.Itoa(id)},
		InfoLabels: map[string]any{"mediatype": metadata.MediaTypeFor(tmdbType)},
		UniqueIDs:  map[string]string{"tmdb": strconv.Itoa(id)},
	}
}

func (f *fakeTMDb) List(ctx context.Context, name, tmdbType string, page int) (metadata.ListPage, error) {
	return metadata.ListPage{Items: []models.Descriptor{listItem(tmdbType, 10), listItem(tmdbType, 11)}, Pages: f.pages}, nil
}

func (f *fakeTMDb) Related(ctx context.Context, kind, tmdbType string, tmdbID, page int) (metadata.ListPage, error) {
	return metadata.ListPage{Items: []models.Descriptor{listItem(tmdbType, tmdbID + 1)}, Pages: 1}, nil
}

func (f *fakeTMDb) Seasons(ctx context.Context, tmdbID int) ([]models.Descriptor, error) {
	var out []models.Descriptor
	for _, n := range []int{0, 1, 2} {
		out = append(out, models.Descriptor{
			Label:  "Season " + strconv.Itoa(n),
			Params: map[string]string{"info": "episodes", "tmdb_type": "tv", "tmdb_id": strconv.Itoa(tmdbID), "season": strconv.Itoa(n)},
		})
	}
	return out, nil
}

func (f *fakeTMDb) Episodes(ctx context.Context, tmdbID, season int) ([]models.Descriptor, error) {
	return []models.Descriptor{{
		Label:      "Episode " + strconv.Itoa(season) + "-1",
		Params:     map[string]string{"tmdb_type": "tv", "tmdb_id": strconv.Itoa(tmdbID), "season": strconv.Itoa(season), "episode": "1"},
		InfoLabels: map[string]any{"mediatype": "episode", "season": season, "episode": 1},
	}}, nil
}

func (f *fakeTMDb) Collection(ctx context.Context, collectionID int) ([]models.Descriptor, error) {
	f.mu.Lock()
	f.collectionID = collectionID
	f.mu.Unlock()
	return []models.Descriptor{listItem("movie", 1), listItem("movie", 2)}, nil
}

func (f *fakeTMDb) FindID(ctx context.Context, tmdbType, query string, year int, imdbID, tvdbID string) (int, error) {
	f.mu.Lock()
	f.findType = tmdbType
	f.mu.Unlock()
	if f.findID == 0 {
		return 0, metadata.ErrNotFound
	}
	return f.findID, nil
}

type fakeTrakt struct {
	fakeWatch
	err error
}

func (f *fakeTrakt) Watchlist(ctx context.Context, mediaType string, page, limit int) (trakt.Page[trakt.WatchlistItem], error) {
	if f.err != nil {
		return trakt.Page[trakt.WatchlistItem]{}, f.err
	}
	return trakt.Page[trakt.WatchlistItem]{Pages: 1, Items: []trakt.WatchlistItem{
		{Type: "movie", Movie: &trakt.Movie{Title: "Arrival", Year: 2016, IDs: trakt.IDs{TMDB: 329865, IMDB: "tt2543164"}}},
		{Type: "movie", Movie: &trakt.Movie{Title: "No TMDb id"}},
	}}, nil
}

func (f *fakeTrakt) History(ctx context.Context, mediaType string, page, limit int) (trakt.Page[trakt.HistoryItem], error) {
	return trakt.Page[trakt.HistoryItem]{Pages: 1, Items: []trakt.HistoryItem{{
		Type:    "episode",
		Show:    &trakt.Show{Title: "Game of Thrones", IDs: trakt.IDs{TMDB: 1399}},
		Episode: &trakt.Episode{Season: 1, Number: 2, Title: "The Kingsroad", IDs: trakt.IDs{TMDB: 63057}},
	}}}, nil
}

func (f *fakeTrakt) Collection(ctx context.Context, mediaType string) ([]trakt.CollectionItem, error) {
	return nil, nil
}

func labelsOf(c *Collector) []string {
	out := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, it.Entry.Label)
	}
	return out
}

func TestDirectoryPopular(t *testing.T) {
	tmdb := &fakeTMDb{pages: 3}
	r := NewRouter(Providers{TMDb: tmdb}, config.ListingSettings{TMDbDetails: true})
	sink := NewCollector()

	err := r.Directory(context.Background(), map[string]string{"info": "popular", "tmdb_type": "movie"}, sink)
	require.NoError(t, err)

	assert.Equal(t, []string{"Item 10", "Item 11", "Next page"}, labelsOf(sink))
	next := sink.Items[2]
	assert.Equal(t, "2", next.Entry.Params["page"])
	assert.Equal(t, "Popular Movies", next.Entry.Params["plugin_category"])
	assert.True(t, sink.Finished)
	assert.Equal(t, "movies", sink.Content)
	assert.Equal(t, "Popular Movies", sink.Category)
	assert.Equal(t, "popular", sink.Properties["Param.info"])
	assert.Equal(t, "popular", sink.Items[0].Entry.InfoProperties["Param.info"])
}

func TestDirectoryWidgetWithoutNextPage(t *testing.T) {
	r := NewRouter(Providers{TMDb: &fakeTMDb{pages: 3}}, config.ListingSettings{})
	sink := NewCollector()

	err := r.Directory(context.Background(), map[string]string{"info": "popular", "tmdb_type": "tv", "widget": "true"}, sink)
	require.NoError(t, err)
	assert.Equal(t, []string{"Item 10", "Item 11"}, labelsOf(sink))
	assert.NotContains(t, sink.Properties, "Param.widget")
	assert.Equal(t, "tvshows", sink.Content)
}

func TestDirectoryFindsMissingID(t *testing.T) {
	tmdb := &fakeTMDb{findID: 603}
	r := NewRouter(Providers{TMDb: tmdb}, config.ListingSettings{})
	sink := NewCollector()

	err := r.Directory(context.Background(), map[string]string{"info": "details", "tmdb_type": "movie", "imdb_id": "tt0133093"}, sink)
	require.NoError(t, err)
	require.Len(t, sink.Items, 1)
	assert.Equal(t, "Title 603", sink.Items[0].Entry.Label)
	assert.Equal(t, []int{603}, tmdb.details)
	assert.Equal(t, "603", sink.Properties["Param.tmdb_id"])
}

func TestDirectoryCollectionFindsID(t *testing.T) {
	tmdb := &fakeTMDb{findID: 1241}
	r := NewRouter(Providers{TMDb: tmdb}, config.ListingSettings{})
	sink := NewCollector()

	err := r.Directory(context.Background(), map[string]string{"info": "collection", "query": "Harry Potter"}, sink)
	require.NoError(t, err)
	assert.Equal(t, "collection", tmdb.findType)
	assert.Equal(t, 1241, tmdb.collectionID)
	assert.Len(t, sink.Items, 2)
	assert.Equal(t, "1241", sink.Properties["Param.tmdb_id"])
	assert.Equal(t, "collection", sink.Properties["Param.tmdb_type"])
}

func TestWithNextPageDoesNotShareBackingArray(t *testing.T) {
	list := make([]models.Descriptor, 2, 3)
	list[0], list[1] = listItem("movie", 1), listItem("movie", 2)

	a := withNextPage(list, map[string]string{"info": "popular", "filter_key": "A"}, 1, 3)
	b := withNextPage(list, map[string]string{"info": "popular", "filter_key": "B"}, 1, 3)

	require.Len(t, a, 3)
	require.Len(t, b, 3)
	assert.Equal(t, "A", a[2].Params["filter_key"])
	assert.Equal(t, "B", b[2].Params["filter_key"])
	assert.Equal(t, "2", a[2].Params["page"])
}

func TestDirectoryUnresolvedIDListsNothing(t *testing.T) {
	r := NewRouter(Providers{TMDb: &fakeTMDb{}}, config.ListingSettings{})
	sink := NewCollector()

	err := r.Directory(context.Background(), map[string]string{"info": "details", "tmdb_type": "movie", "query": "nothing"}, sink)
	require.NoError(t, err)
	assert.Empty(t, sink.Items)
	assert.False(t, sink.Finished)
}

func TestDirectoryBaseListing(t *testing.T) {
	r := NewRouter(Providers{TMDb: &fakeTMDb{}}, config.ListingSettings{})
	sink := NewCollector()

	require.NoError(t, r.Directory(context.Background(), map[string]string{"info": "no_such_list"}, sink))
	require.Len(t, sink.Items, len(baseDirectory()))
	assert.Equal(t, "Popular Movies", sink.Items[0].Entry.Label)
	assert.True(t, sink.Items[0].IsFolder)
	assert.Contains(t, sink.Items[0].URL, "info=popular")
}

func TestDirectoryFlatSeasons(t *testing.T) {
	r := NewRouter(Providers{TMDb: &fakeTMDb{}}, config.ListingSettings{})
	sink := NewCollector()

	require.NoError(t, r.Directory(context.Background(), map[string]string{"info": "flatseasons", "tmdb_type": "tv", "tmdb_id": "1399"}, sink))
	assert.Equal(t, []string{"1x01. Episode 1-1", "2x01. Episode 2-1"}, labelsOf(sink))
	assert.Equal(t, "episodes", sink.Content)
}

func TestDirectoryRandom(t *testing.T) {
	tmdb := &fakeTMDb{pages: 5}
	r := NewRouter(Providers{TMDb: tmdb}, config.ListingSettings{})
	r.intn = func(n int) int { return n - 1 }
	sink := NewCollector()

	require.NoError(t, r.Directory(context.Background(), map[string]string{"info": "random_popular", "tmdb_type": "movie"}, sink))
	require.Len(t, sink.Items, 1)
	assert.Equal(t, "Title 11", sink.Items[0].Entry.Label)
	assert.Equal(t, "Item 11", sink.Category)
}

func TestDirectoryTraktWatchlist(t *testing.T) {
	tr := &fakeTrakt{}
	r := NewRouter(Providers{TMDb: &fakeTMDb{}, Trakt: tr}, config.ListingSettings{})
	sink := NewCollector()

	require.NoError(t, r.Directory(context.Background(), map[string]string{"info": "trakt_watchlist", "tmdb_type": "movie"}, sink))
	require.Len(t, sink.Items, 1)
	e := sink.Items[0].Entry
	assert.Equal(t, "Arrival", e.Label)
	assert.Equal(t, "tt2543164", e.UniqueIDs["imdb"])
	assert.Equal(t, "Watchlist Movies", sink.Category)
}

func TestDirectoryTraktHistoryEpisodes(t *testing.T) {
	r := NewRouter(Providers{TMDb: &fakeTMDb{}, Trakt: &fakeTrakt{}}, config.ListingSettings{})
	sink := NewCollector()

	require.NoError(t, r.Directory(context.Background(), map[string]string{"info": "trakt_history", "tmdb_type": "tv"}, sink))
	require.Len(t, sink.Items, 1)
	e := sink.Items[0].Entry
	assert.Equal(t, "1399", e.UniqueIDs["tvshow.tmdb"])
	assert.Equal(t, "episodes", sink.Content)
}

func TestDirectoryTraktErrors(t *testing.T) {
	r := NewRouter(Providers{TMDb: &fakeTMDb{}}, config.ListingSettings{})
	err := r.Directory(context.Background(), map[string]string{"info": "trakt_watchlist"}, NewCollector())
	assert.ErrorIs(t, err, ErrTraktUnavailable)

	boom := errors.New("trakt down")
	r = NewRouter(Providers{TMDb: &fakeTMDb{}, Trakt: &fakeTrakt{err: boom}}, config.ListingSettings{})
	err = r.Directory(context.Background(), map[string]string{"info": "trakt_watchlist"}, NewCollector())
	assert.ErrorIs(t, err, boom)
}

type stubArtwork struct{}

func (stubArtwork) Artwork(ctx context.Context, ftvType, id string, season int) (map[string]string, error) {
	return nil, nil
}

func TestCacheOnlyDecisions(t *testing.T) {
	tests := []struct {
		name     string
		params   map[string]string
		settings config.ListingSettings
		fanart   bool
	}{
		{"cacheonly param", map[string]string{"cacheonly": "true", "fanarttv": "true"}, config.ListingSettings{FanartTVLookup: true}, true},
		{"forced lookup", map[string]string{"fanarttv": "true"}, config.ListingSettings{}, false},
		{"forced off", map[string]string{"fanarttv": "false"}, config.ListingSettings{FanartTVLookup: true}, true},
		{"widget lookup", map[string]string{"widget": "true"}, config.ListingSettings{WidgetFanartTVLookup: true}, false},
		{"widget without lookup", map[string]string{"widget": "true"}, config.ListingSettings{FanartTVLookup: true}, true},
		{"listing lookup", map[string]string{}, config.ListingSettings{FanartTVLookup: true}, false},
		{"default", map[string]string{}, config.ListingSettings{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(Providers{TMDb: &fakeTMDb{}}, tt.settings)
			assert.Equal(t, tt.fanart, r.fanartCacheOnly(r.newRequest(tt.params)))
		})
	}

	r := NewRouter(Providers{TMDb: &fakeTMDb{}}, config.ListingSettings{})
	assert.True(t, r.tmdbCacheOnly(r.newRequest(map[string]string{})))
	assert.True(t, r.tmdbCacheOnly(r.newRequest(map[string]string{"cacheonly": "true"})))
	r = NewRouter(Providers{TMDb: &fakeTMDb{}, Artwork: stubArtwork{}}, config.ListingSettings{})
	assert.False(t, r.tmdbCacheOnly(r.newRequest(map[string]string{})))
}

func TestContainerContent(t *testing.T) {
	assert.Equal(t, "episodes", containerContent("tv", true, true))
	assert.Equal(t, "seasons", containerContent("tv", true, false))
	assert.Equal(t, "tvshows", containerContent("tv", false, false))
	assert.Equal(t, "movies", containerContent("movie", true, true))
}
