package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"tmdbhelper/services/metadata"
	"tmdbhelper/services/trakt"
)

const (
	TaskTraktWatchState = "trakt_watchstate"
	TaskTraktReauth     = "trakt_reauthorize"
	TaskTMDbLists       = "tmdb_lists"
)

// WatchStateSource is the Trakt sync surface warmed by the scheduler.
type WatchStateSource interface {
	Watched(ctx context.Context, mediaType string) (*trakt.WatchedIndex, error)
	Playback(ctx context.Context, mediaType string) (*trakt.PlaybackIndex, error)
}

// Reauthorizer refreshes an expiring Trakt token.
type Reauthorizer interface {
	Reauthorize(ctx context.Context) error
}

// ListSource fetches one page of a TMDb list.
type ListSource interface {
	List(ctx context.Context, name, tmdbType string, page int) (metadata.ListPage, error)
}

// WatchStateTask refreshes the watched and playback indexes so the first
// listing after a sync on another device does not wait on Trakt.
func WatchStateTask(src WatchStateSource, interval time.Duration) Task {
	return Task{
		Name:     TaskTraktWatchState,
		Interval: interval,
		Run: func(ctx context.Context) error {
			var errs []error
			for _, mediaType := range []string{"movie", "show"} {
				if _, err := src.Watched(ctx, mediaType); err != nil {
					errs = append(errs, err)
				}
			}
			for _, mediaType := range []string{"movie", "episode"} {
				if _, err := src.Playback(ctx, mediaType); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}

// ReauthorizeTask refreshes the stored Trakt token ahead of expiry.
func ReauthorizeTask(auth Reauthorizer, interval time.Duration) Task {
	return Task{
		Name:     TaskTraktReauth,
		Interval: interval,
		Run:      auth.Reauthorize,
	}
}

// ListWarm names a TMDb list fetched by ListsTask.
type ListWarm struct {
	Name     string
	TMDbType string
}

// DefaultListWarms are the lists home screen widgets usually show.
var DefaultListWarms = []ListWarm{
	{"popular", "movie"},
	{"popular", "tv"},
	{"trending_week", "movie"},
	{"trending_week", "tv"},
	{"now_playing", "movie"},
	{"airing_today", "tv"},
}

// ListsTask fetches page one of each list with at most four requests in flight.
func ListsTask(src ListSource, lists []ListWarm, interval time.Duration) Task {
	return Task{
		Name:     TaskTMDbLists,
		Interval: interval,
		Run: func(ctx context.Context) error {
			p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(4)
			for _, l := range lists {
				p.Go(func(ctx context.Context) error {
					if _, err := src.List(ctx, l.Name, l.TMDbType, 1); err != nil {
						return fmt.Errorf("%s %s: %w", l.Name, l.TMDbType, err)
					}
					return nil
				})
			}
			return p.Wait()
		},
	}
}
