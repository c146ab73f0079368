package trakt

import "strconv"

// WatchedIndex provides O(1) play count lookups keyed by TMDb id.
// Built with a single pass over a /sync/watched payload.
type WatchedIndex struct {
	movies map[int]int
	shows  map[int]*showState
}

type episodeKey struct {
	season, episode int
}

type showState struct {
	id            string // trakt slug or numeric id
	lastUpdatedAt string
	episodes      map[episodeKey]int
	seasons       map[int]int // watched episode count per season
	watched       int         // watched episodes outside specials
}

// NewMovieIndex indexes /sync/watched/movies.
func NewMovieIndex(items []WatchedMovie) *WatchedIndex {
	idx := &WatchedIndex{movies: make(map[int]int, len(items))}
	for _, m := range items {
		if m.Movie.IDs.TMDB == 0 {
			continue
		}
		idx.movies[m.Movie.IDs.TMDB] += m.Plays
	}
	return idx
}

// NewShowIndex indexes /sync/watched/shows.
func NewShowIndex(items []WatchedShow) *WatchedIndex {
	idx := &WatchedIndex{shows: make(map[int]*showState, len(items))}
	for _, s := range items {
		if s.Show.IDs.TMDB == 0 {
			continue
		}
		st := &showState{
			id:            s.Show.IDs.Slug,
			lastUpdatedAt: s.LastUpdatedAt,
			episodes:      make(map[episodeKey]int),
			seasons:       make(map[int]int),
		}
		if st.id == "" && s.Show.IDs.Trakt > 0 {
			st.id = strconv.Itoa(s.Show.IDs.Trakt)
		}
		for _, season := range s.Seasons {
			for _, ep := range season.Episodes {
				if ep.Plays <= 0 {
					continue
				}
				st.episodes[episodeKey{season.Number, ep.Number}] = ep.Plays
				st.seasons[season.Number]++
				if season.Number > 0 {
					st.watched++
				}
			}
		}
		idx.shows[s.Show.IDs.TMDB] = st
	}
	return idx
}

// MoviePlays returns how often the movie was played.
func (idx *WatchedIndex) MoviePlays(tmdbID int) int {
	if idx == nil {
		return 0
	}
	return idx.movies[tmdbID]
}

// EpisodePlays returns how often one episode of a show was played.
func (idx *WatchedIndex) EpisodePlays(showTMDB, season, episode int) int {
	if idx == nil {
		return 0
	}
	st := idx.shows[showTMDB]
	if st == nil {
		return 0
	}
	return st.episodes[episodeKey{season, episode}]
}

// ShowWatched returns the number of watched episodes of a show, excluding specials.
func (idx *WatchedIndex) ShowWatched(showTMDB int) int {
	if idx == nil || idx.shows[showTMDB] == nil {
		return 0
	}
	return idx.shows[showTMDB].watched
}

// SeasonWatched returns the number of watched episodes in one season.
func (idx *WatchedIndex) SeasonWatched(showTMDB, season int) int {
	if idx == nil || idx.shows[showTMDB] == nil {
		return 0
	}
	return idx.shows[showTMDB].seasons[season]
}

// Show returns the Trakt id and last update marker of a watched show.
func (idx *WatchedIndex) Show(showTMDB int) (id, lastUpdatedAt string, ok bool) {
	if idx == nil {
		return "", "", false
	}
	st := idx.shows[showTMDB]
	if st == nil {
		return "", "", false
	}
	return st.id, st.lastUpdatedAt, true
}

// PlaybackIndex holds paused progress percentages keyed by TMDb id.
type PlaybackIndex struct {
	movies   map[int]float64
	episodes map[int]map[episodeKey]float64
}

func NewPlaybackIndex(items []PlaybackItem) *PlaybackIndex {
	idx := &PlaybackIndex{
		movies:   make(map[int]float64),
		episodes: make(map[int]map[episodeKey]float64),
	}
	for _, it := range items {
		switch {
		case it.Movie != nil && it.Movie.IDs.TMDB > 0:
			if it.Progress > idx.movies[it.Movie.IDs.TMDB] {
				idx.movies[it.Movie.IDs.TMDB] = it.Progress
			}
		case it.Episode != nil && it.Show != nil && it.Show.IDs.TMDB > 0:
			eps := idx.episodes[it.Show.IDs.TMDB]
			if eps == nil {
				eps = make(map[episodeKey]float64)
				idx.episodes[it.Show.IDs.TMDB] = eps
			}
			k := episodeKey{it.Episode.Season, it.Episode.Number}
			if it.Progress > eps[k] {
				eps[k] = it.Progress
			}
		}
	}
	return idx
}

// Movie returns the paused percentage of a movie.
func (idx *PlaybackIndex) Movie(tmdbID int) float64 {
	if idx == nil {
		return 0
	}
	return idx.movies[tmdbID]
}

// Episode returns the paused percentage of an episode.
func (idx *PlaybackIndex) Episode(showTMDB, season, episode int) float64 {
	if idx == nil {
		return 0
	}
	return idx.episodes[showTMDB][episodeKey{season, episode}]
}
