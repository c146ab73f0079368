package library

import (
	"context"
	"database/sql"
	"testing"

	"tmdbhelper/models"
)

const schema = `
CREATE TABLE movie_view (idMovie INTEGER, c00 TEXT, premiered TEXT, playCount INTEGER,
	resumeTimeInSeconds REAL, totalTimeInSeconds REAL, strPath TEXT, strFileName TEXT);
CREATE TABLE tvshow_view (idShow INTEGER, c00 TEXT, c05 TEXT);
CREATE TABLE season_view (idSeason INTEGER, idShow INTEGER, season INTEGER);
CREATE TABLE episode_view (idEpisode INTEGER, idShow INTEGER, c00 TEXT, c12 INTEGER, c13 INTEGER,
	playCount INTEGER, resumeTimeInSeconds REAL, totalTimeInSeconds REAL, strPath TEXT, strFileName TEXT);
CREATE TABLE uniqueid (media_id INTEGER, media_type TEXT, type TEXT, value TEXT);

INSERT INTO movie_view VALUES (1, 'Amélie', '2001-04-25', 2, 0, 0, '/movies/', 'amelie.mkv');
INSERT INTO movie_view VALUES (2, 'Dune', '2021-09-15', 0, 1200, 9300, '/movies/', 'dune.mkv');
INSERT INTO movie_view VALUES (3, 'Dune', '1984-12-14', 1, 0, 0, '/movies/', 'dune84.mkv');
INSERT INTO uniqueid VALUES (2, 'movie', 'tmdb', '438631');
INSERT INTO uniqueid VALUES (2, 'movie', 'imdb', 'tt1160419');

INSERT INTO tvshow_view VALUES (10, 'Game of Thrones', '2011-04-17');
INSERT INTO uniqueid VALUES (10, 'tvshow', 'tmdb', '1399');
INSERT INTO season_view VALUES (100, 10, 1);
INSERT INTO episode_view VALUES (1000, 10, 'Winter Is Coming', 1, 1, 1, 0, 0, '/tv/got/', 's01e01.mkv');
INSERT INTO episode_view VALUES (1001, 10, 'The Kingsroad', 1, 2, 0, 0, 0, '/tv/got/', 's01e02.mkv');
`

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return New(db)
}

func TestGetInfo(t *testing.T) {
	d := newTestDatabase(t)

	tests := []struct {
		name  string
		field string
		match Match
		want  string
	}{
		{"by tmdb id", "dbid", Match{DBType: "movie", TMDB: "438631"}, "2"},
		{"by imdb id", "title", Match{DBType: "movie", IMDB: "tt1160419"}, "Dune"},
		{"title ascii folded", "dbid", Match{DBType: "movie", Title: "AMELIE"}, "1"},
		{"title with year", "dbid", Match{DBType: "movie", Title: "Dune", Year: 1984}, "3"},
		{"unique id field", "imdb", Match{DBType: "movie", TMDB: "438631"}, "tt1160419"},
		{"show", "dbid", Match{DBType: "tvshow", TMDB: "1399"}, "10"},
		{"no match", "dbid", Match{DBType: "movie", Title: "Missing"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.GetInfo(tt.field, tt.match); got != tt.want {
				t.Errorf("GetInfo(%q) = %q, want %q", tt.field, got, tt.want)
			}
		})
	}
}

func TestLookupMovie(t *testing.T) {
	d := newTestDatabase(t)
	e := models.NewListingEntry(models.Descriptor{
		InfoLabels: map[string]any{"mediatype": "movie", "title": "Dune", "year": 2021},
		UniqueIDs:  map[string]string{"tmdb": "438631"},
	})

	det := d.Lookup(context.Background(), e)
	if det == nil {
		t.Fatal("expected library details")
	}
	if det.InfoLabels["dbid"] != 2 || det.InfoLabels["path"] != "/movies/dune.mkv" {
		t.Errorf("unexpected details: %+v", det.InfoLabels)
	}
	if det.InfoProperties["resumetime"] != "1200" || det.InfoProperties["totaltime"] != "9300" {
		t.Errorf("unexpected resume: %+v", det.InfoProperties)
	}
}

func TestLookupEpisode(t *testing.T) {
	d := newTestDatabase(t)
	e := models.NewListingEntry(models.Descriptor{
		InfoLabels: map[string]any{"mediatype": "episode", "season": 1, "episode": 2},
		UniqueIDs:  map[string]string{"tvshow.tmdb": "1399"},
	})

	det := d.Lookup(context.Background(), e)
	if det == nil {
		t.Fatal("expected library details")
	}
	if det.InfoLabels["dbid"] != 1001 || det.InfoProperties["tvshow.dbid"] != "10" {
		t.Errorf("unexpected details: %+v %+v", det.InfoLabels, det.InfoProperties)
	}

	e.InfoLabels["episode"] = 9
	if det := d.Lookup(context.Background(), e); det != nil {
		t.Errorf("missing episode should not match, got %+v", det)
	}
}

func TestShowCacheFirstWriterWins(t *testing.T) {
	c := NewShowCache()
	first := &ShowIndex{Seasons: map[int]int{1: 100}}
	second := &ShowIndex{Seasons: map[int]int{1: 200}}
	if got := c.Put(10, first); got != first {
		t.Fatal("first put should store the index")
	}
	if got := c.Put(10, second); got != first {
		t.Fatal("second put should return the existing index")
	}
	got, ok := c.Get(10)
	if !ok || got.Seasons[1] != 100 {
		t.Errorf("unexpected cached index: %+v", got)
	}
}

func TestNormalizeTitle(t *testing.T) {
	if got := normalizeTitle("Amélie: Le Fabuleux Destin"); got != "amelielefabuleuxdestin" {
		t.Errorf("unexpected normalized title %q", got)
	}
}

func TestShowErrorIsNotCached(t *testing.T) {
	d := newTestDatabase(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Show(ctx, 10); err == nil {
		t.Fatal("expected an error for a cancelled read")
	}
	if _, ok := d.shows.Get(10); ok {
		t.Fatal("failed read must not be cached")
	}

	idx, err := d.Show(context.Background(), 10)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if idx.Seasons[1] != 100 || idx.Episodes[EpisodeKey{Season: 1, Episode: 2}] != 1001 {
		t.Errorf("unexpected index: %+v", idx)
	}
}
