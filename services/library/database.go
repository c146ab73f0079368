// Package library reads the local Kodi video database so listings can be
// matched against items the user already has.
package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"unicode"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mozillazg/go-unidecode"

	"tmdbhelper/models"
)

// Match selects a library item. The first populated id wins; title and year
// are the fallback.
type Match struct {
	DBType string // movie or tvshow
	IMDB   string
	TMDB   string
	TVDB   string
	Title  string
	Year   int
}

type item struct {
	DBID  int
	Title string
	Year  int
	IDs   map[string]string
}

type index struct {
	items   map[int]*item
	byID    map[string]*item // "<provider>:<value>"
	byTitle map[string][]*item
}

func newIndex() *index {
	return &index{items: map[int]*item{}, byID: map[string]*item{}, byTitle: map[string][]*item{}}
}

func (idx *index) add(it *item) {
	idx.items[it.DBID] = it
	key := normalizeTitle(it.Title)
	idx.byTitle[key] = append(idx.byTitle[key], it)
}

func (idx *index) find(m Match) *item {
	for _, p := range []struct{ provider, value string }{{"imdb", m.IMDB}, {"tmdb", m.TMDB}, {"tvdb", m.TVDB}} {
		if p.value == "" {
			continue
		}
		if it, ok := idx.byID[p.provider+":"+p.value]; ok {
			return it
		}
	}
	if m.Title == "" {
		return nil
	}
	candidates := idx.byTitle[normalizeTitle(m.Title)]
	for _, it := range candidates {
		if m.Year == 0 || it.Year == 0 || it.Year == m.Year {
			return it
		}
	}
	return nil
}

// normalizeTitle folds a title to lower case ASCII letters and digits.
func normalizeTitle(title string) string {
	ascii := unidecode.Unidecode(title)
	var b strings.Builder
	for _, r := range strings.ToLower(ascii) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Database is a read-only view of a Kodi MyVideos database.
type Database struct {
	db    *sql.DB
	shows *ShowCache

	mu      sync.Mutex
	indexes map[string]*index
}

// Open opens the database file read only.
func Open(ctx context.Context, path string) (*Database, error) {
	if path == "" {
		return nil, errors.New("open library: path is empty")
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping library: %w", err)
	}
	return New(db), nil
}

// New wraps an open connection.
func New(db *sql.DB) *Database {
	return &Database{db: db, shows: NewShowCache(), indexes: map[string]*index{}}
}

func (d *Database) Close() error {
	return d.db.Close()
}

// index loads the movie or tvshow index on first use. A load failure is
// logged and leaves an empty index so lookups simply miss.
func (d *Database) index(ctx context.Context, dbType string) *index {
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx, ok := d.indexes[dbType]; ok {
		return idx
	}
	idx, err := d.load(ctx, dbType)
	if err != nil {
		log.Printf("[library] load %s index: %v", dbType, err)
		idx = newIndex()
	}
	d.indexes[dbType] = idx
	return idx
}

func (d *Database) load(ctx context.Context, dbType string) (*index, error) {
	var query string
	switch dbType {
	case models.MediaTypeMovie:
		query = "SELECT idMovie, c00, premiered FROM movie_view"
	case models.MediaTypeTVShow:
		query = "SELECT idShow, c00, c05 FROM tvshow_view"
	default:
		return nil, fmt.Errorf("unsupported library type %q", dbType)
	}

	idx := newIndex()
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", dbType, err)
	}
	for rows.Next() {
		var (
			id        int
			title     string
			premiered sql.NullString
		)
		if err := rows.Scan(&id, &title, &premiered); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan %s: %w", dbType, err)
		}
		idx.add(&item{DBID: id, Title: title, Year: yearOf(premiered.String), IDs: map[string]string{}})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids, err := d.db.QueryContext(ctx, "SELECT media_id, type, value FROM uniqueid WHERE media_type = ?", dbType)
	if err != nil {
		return nil, fmt.Errorf("query %s ids: %w", dbType, err)
	}
	defer ids.Close()
	for ids.Next() {
		var (
			id              int
			provider, value string
		)
		if err := ids.Scan(&id, &provider, &value); err != nil {
			return nil, fmt.Errorf("scan %s ids: %w", dbType, err)
		}
		it, ok := idx.items[id]
		if !ok || value == "" {
			continue
		}
		it.IDs[provider] = value
		idx.byID[provider+":"+value] = it
	}
	return idx, ids.Err()
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, _ := strconv.Atoi(date[:4])
	return y
}

// GetInfo returns one field of the matched item: dbid, title, year, or a
// unique id provider such as imdb. Empty when nothing matches.
func (d *Database) GetInfo(field string, m Match) string {
	it := d.index(context.Background(), m.DBType).find(m)
	if it == nil {
		return ""
	}
	switch field {
	case "dbid":
		return strconv.Itoa(it.DBID)
	case "title":
		return it.Title
	case "year":
		if it.Year == 0 {
			return ""
		}
		return strconv.Itoa(it.Year)
	}
	return it.IDs[field]
}

// Lookup finds the library record for a listing entry and returns its
// details, or nil when the entry is not in the library.
func (d *Database) Lookup(ctx context.Context, e *models.ListingEntry) *models.Details {
	switch e.MediaType() {
	case models.MediaTypeMovie:
		it := d.index(ctx, models.MediaTypeMovie).find(matchFor(models.MediaTypeMovie, e.UniqueIDs, e))
		if it == nil {
			return nil
		}
		return d.fileDetails(ctx, "movie_view", "idMovie", it.DBID)
	case models.MediaTypeTVShow:
		it := d.index(ctx, models.MediaTypeTVShow).find(matchFor(models.MediaTypeTVShow, e.UniqueIDs, e))
		if it == nil {
			return nil
		}
		return &models.Details{
			InfoLabels: map[string]any{"dbid": it.DBID},
			UniqueIDs:  copyIDs(it.IDs),
		}
	case models.MediaTypeSeason, models.MediaTypeEpisode:
		show := d.index(ctx, models.MediaTypeTVShow).find(showMatchFor(e))
		if show == nil {
			return nil
		}
		seasons, err := d.Show(ctx, show.DBID)
		if err != nil {
			log.Printf("[library] show %d index: %v", show.DBID, err)
			return nil
		}
		if e.MediaType() == models.MediaTypeSeason {
			id, ok := seasons.Seasons[e.Season()]
			if !ok {
				return nil
			}
			return &models.Details{
				InfoLabels:     map[string]any{"dbid": id},
				InfoProperties: map[string]string{"tvshow.dbid": strconv.Itoa(show.DBID)},
			}
		}
		id, ok := seasons.Episodes[EpisodeKey{Season: e.Season(), Episode: e.Episode()}]
		if !ok {
			return nil
		}
		det := d.fileDetails(ctx, "episode_view", "idEpisode", id)
		if det != nil {
			det.InfoProperties["tvshow.dbid"] = strconv.Itoa(show.DBID)
		}
		return det
	}
	return nil
}

func matchFor(dbType string, ids map[string]string, e *models.ListingEntry) Match {
	title, _ := e.Field("title")
	year, _ := e.Field("year")
	y, _ := strconv.Atoi(year)
	return Match{DBType: dbType, IMDB: ids["imdb"], TMDB: ids["tmdb"], TVDB: ids["tvdb"], Title: title, Year: y}
}

func showMatchFor(e *models.ListingEntry) Match {
	title, _ := e.Field("tvshowtitle")
	return Match{
		DBType: models.MediaTypeTVShow,
		IMDB:   e.UniqueIDs["tvshow.imdb"],
		TMDB:   e.UniqueIDs["tvshow.tmdb"],
		TVDB:   e.UniqueIDs["tvshow.tvdb"],
		Title:  title,
	}
}

func copyIDs(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (d *Database) fileDetails(ctx context.Context, view, idColumn string, dbid int) *models.Details {
	query := fmt.Sprintf(`SELECT playCount, resumeTimeInSeconds, totalTimeInSeconds, strPath, strFileName
		FROM %s WHERE %s = ?`, view, idColumn)
	var (
		playcount      sql.NullInt64
		resume, total  sql.NullFloat64
		path, filename sql.NullString
	)
	err := d.db.QueryRowContext(ctx, query, dbid).Scan(&playcount, &resume, &total, &path, &filename)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("[library] details %s %d: %v", view, dbid, err)
		}
		return nil
	}
	det := &models.Details{
		InfoLabels:     map[string]any{"dbid": dbid, "playcount": int(playcount.Int64)},
		InfoProperties: map[string]string{},
	}
	if path.String != "" || filename.String != "" {
		det.InfoLabels["path"] = path.String + filename.String
	}
	if resume.Float64 > 0 {
		det.InfoProperties["resumetime"] = strconv.Itoa(int(resume.Float64))
		det.InfoProperties["totaltime"] = strconv.Itoa(int(total.Float64))
	}
	return det
}
