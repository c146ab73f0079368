package trakt

import (
	"context"
	"fmt"

	"tmdbhelper/services/cache"
)

// Page is one cached page of a paginated Trakt list.
type Page[T any] struct {
	Items []T `json:"items"`
	Pages int `json:"pages"`
}

// Sync exposes the user's Trakt sync data behind the activity cache and the
// authorization gate.
type Sync struct {
	client *Client
	auth   *Authorizer
	oracle cache.Oracle
	store  cache.Store
	days   float64
}

func NewSync(client *Client, auth *Authorizer, oracle cache.Oracle, store cache.Store, days float64) *Sync {
	return &Sync{client: client, auth: auth, oracle: oracle, store: store, days: days}
}

func (s *Sync) activity(activityType, activityKey string) cache.Activity {
	return cache.Activity{Type: activityType, Key: activityKey, Days: s.days, AllowFallback: true}
}

// Watched returns the watched index for "movie" or "show" content.
func (s *Sync) Watched(ctx context.Context, mediaType string) (*WatchedIndex, error) {
	switch mediaType {
	case "movie":
		call := cache.WithActivity(s.store, s.oracle, s.activity("movies", "watched_at"),
			cache.Key("trakt.sync.watched", "movie"),
			func(ctx context.Context) ([]WatchedMovie, error) {
				return s.client.GetWatchedMovies(ctx, s.auth.AccessToken())
			})
		items, err := Gate[[]WatchedMovie](s.auth, true, call)(ctx)
		if err != nil {
			return nil, fmt.Errorf("sync watched movies: %w", err)
		}
		return NewMovieIndex(items), nil
	case "show":
		call := cache.WithActivity(s.store, s.oracle, s.activity("episodes", "watched_at"),
			cache.Key("trakt.sync.watched", "show"),
			func(ctx context.Context) ([]WatchedShow, error) {
				return s.client.GetWatchedShows(ctx, s.auth.AccessToken())
			})
		items, err := Gate[[]WatchedShow](s.auth, true, call)(ctx)
		if err != nil {
			return nil, fmt.Errorf("sync watched shows: %w", err)
		}
		return NewShowIndex(items), nil
	}
	return nil, fmt.Errorf("sync watched: unsupported media type %q", mediaType)
}

// Playback returns paused progress for "movie" or "episode" content.
func (s *Sync) Playback(ctx context.Context, mediaType string) (*PlaybackIndex, error) {
	var path, activityType string
	switch mediaType {
	case "movie":
		path, activityType = "movies", "movies"
	case "episode":
		path, activityType = "episodes", "episodes"
	default:
		return nil, fmt.Errorf("sync playback: unsupported media type %q", mediaType)
	}
	call := cache.WithActivity(s.store, s.oracle, s.activity(activityType, "paused_at"),
		cache.Key("trakt.sync.playback", mediaType),
		func(ctx context.Context) ([]PlaybackItem, error) {
			return s.client.GetPlayback(ctx, s.auth.AccessToken(), path)
		})
	items, err := Gate[[]PlaybackItem](s.auth, true, call)(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync playback: %w", err)
	}
	return NewPlaybackIndex(items), nil
}

// ShowProgress returns aired and completed counts for a show. The response is
// cached against the show's last_updated_at marker from the watched payload.
func (s *Sync) ShowProgress(ctx context.Context, showID, lastUpdatedAt string) (*ShowProgress, error) {
	call := cache.WithLastUpdated(s.store, cache.Key("trakt.show.progress", showID), cache.Token(lastUpdatedAt),
		func(ctx context.Context) (*ShowProgress, error) {
			return s.client.GetShowProgress(ctx, s.auth.AccessToken(), showID)
		})
	progress, err := Gate[*ShowProgress](s.auth, true, call)(ctx)
	if err != nil {
		return nil, fmt.Errorf("show progress %s: %w", showID, err)
	}
	return progress, nil
}

// Watchlist returns one page of the watchlist for "movies" or "shows".
func (s *Sync) Watchlist(ctx context.Context, mediaType string, page, limit int) (Page[WatchlistItem], error) {
	call := cache.WithActivity(s.store, s.oracle, s.activity(mediaType, "watchlisted_at"),
		cache.Key("trakt.sync.watchlist", mediaType, page, limit),
		func(ctx context.Context) (Page[WatchlistItem], error) {
			items, pages, err := s.client.GetWatchlist(ctx, s.auth.AccessToken(), mediaType, page, limit)
			return Page[WatchlistItem]{Items: items, Pages: pages}, err
		})
	return Gate[Page[WatchlistItem]](s.auth, true, call)(ctx)
}

// History returns one page of watch history for "movies" or "episodes".
func (s *Sync) History(ctx context.Context, mediaType string, page, limit int) (Page[HistoryItem], error) {
	call := cache.WithActivity(s.store, s.oracle, s.activity(mediaType, "watched_at"),
		cache.Key("trakt.sync.history", mediaType, page, limit),
		func(ctx context.Context) (Page[HistoryItem], error) {
			items, pages, err := s.client.GetWatchHistory(ctx, s.auth.AccessToken(), mediaType, page, limit)
			return Page[HistoryItem]{Items: items, Pages: pages}, err
		})
	return Gate[Page[HistoryItem]](s.auth, true, call)(ctx)
}

// Collection returns the collection for "movies" or "shows".
func (s *Sync) Collection(ctx context.Context, mediaType string) ([]CollectionItem, error) {
	activityType := mediaType
	if mediaType == "shows" {
		activityType = "episodes"
	}
	call := cache.WithActivity(s.store, s.oracle, s.activity(activityType, "collected_at"),
		cache.Key("trakt.sync.collection", mediaType),
		func(ctx context.Context) ([]CollectionItem, error) {
			return s.client.GetCollection(ctx, s.auth.AccessToken(), mediaType)
		})
	return Gate[[]CollectionItem](s.auth, true, call)(ctx)
}
