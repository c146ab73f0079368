package library

import (
	"context"
	"fmt"
	"sync"
)

// EpisodeKey addresses one episode of a show.
type EpisodeKey struct {
	Season  int
	Episode int
}

// ShowIndex maps season and episode numbers of one show to library ids.
type ShowIndex struct {
	Seasons  map[int]int
	Episodes map[EpisodeKey]int
}

// ShowCache holds show indexes for the lifetime of a listing. The first index
// stored for a show is kept.
type ShowCache struct {
	mu    sync.Mutex
	shows map[int]*ShowIndex
}

func NewShowCache() *ShowCache {
	return &ShowCache{shows: make(map[int]*ShowIndex)}
}

func (c *ShowCache) Get(showID int) (*ShowIndex, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.shows[showID]
	return idx, ok
}

// Put stores idx unless an index already exists, and returns the stored one.
func (c *ShowCache) Put(showID int, idx *ShowIndex) *ShowIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.shows[showID]; ok {
		return existing
	}
	c.shows[showID] = idx
	return idx
}

// Show returns the season and episode index for a library show.
func (d *Database) Show(ctx context.Context, showID int) (*ShowIndex, error) {
	if idx, ok := d.shows.Get(showID); ok {
		return idx, nil
	}
	idx := &ShowIndex{Seasons: map[int]int{}, Episodes: map[EpisodeKey]int{}}

	rows, err := d.db.QueryContext(ctx, "SELECT idSeason, season FROM season_view WHERE idShow = ?", showID)
	if err != nil {
		return nil, fmt.Errorf("query seasons: %w", err)
	}
	for rows.Next() {
		var id, number int
		if err := rows.Scan(&id, &number); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan season: %w", err)
		}
		idx.Seasons[number] = id
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("read seasons: %w", err)
	}

	rows, err = d.db.QueryContext(ctx, "SELECT idEpisode, c12, c13 FROM episode_view WHERE idShow = ?", showID)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, season, episode int
		if err := rows.Scan(&id, &season, &episode); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		idx.Episodes[EpisodeKey{Season: season, Episode: episode}] = id
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return d.shows.Put(showID, idx), nil
}
