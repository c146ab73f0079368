package trakt

import "testing"

func TestShowIndex(t *testing.T) {
	idx := NewShowIndex([]WatchedShow{{
		LastUpdatedAt: "2024-01-01T00:00:00.000Z",
		Show:          Show{IDs: IDs{TMDB: 1399, Trakt: 1390}},
		Seasons: []WatchedSeason{
			{Number: 0, Episodes: []WatchedEpisode{{Number: 1, Plays: 1}}},
			{Number: 1, Episodes: []WatchedEpisode{{Number: 1, Plays: 2}, {Number: 2, Plays: 1}}},
			{Number: 2, Episodes: []WatchedEpisode{{Number: 1, Plays: 0}}},
		},
	}})

	if got := idx.EpisodePlays(1399, 1, 1); got != 2 {
		t.Errorf("expected 2 plays for 1x01, got %d", got)
	}
	if got := idx.ShowWatched(1399); got != 2 {
		t.Errorf("specials must not count toward show watched, got %d", got)
	}
	if got := idx.SeasonWatched(1399, 2); got != 0 {
		t.Errorf("unplayed episodes must not count, got %d", got)
	}
	id, updated, ok := idx.Show(1399)
	if !ok || id != "1390" || updated != "2024-01-01T00:00:00.000Z" {
		t.Errorf("unexpected show lookup: %q %q %v", id, updated, ok)
	}
	if _, _, ok := idx.Show(1); ok {
		t.Error("unknown show should not be found")
	}
}

func TestNilIndexes(t *testing.T) {
	var w *WatchedIndex
	var p *PlaybackIndex
	if w.MoviePlays(1) != 0 || w.EpisodePlays(1, 1, 1) != 0 || w.ShowWatched(1) != 0 {
		t.Error("nil watched index should report zero")
	}
	if p.Movie(1) != 0 || p.Episode(1, 1, 1) != 0 {
		t.Error("nil playback index should report zero")
	}
}

func TestPlaybackIndexKeepsHighestProgress(t *testing.T) {
	idx := NewPlaybackIndex([]PlaybackItem{
		{Progress: 12.5, Movie: &Movie{IDs: IDs{TMDB: 42}}},
		{Progress: 40, Movie: &Movie{IDs: IDs{TMDB: 42}}},
		{Progress: 55, Episode: &Episode{Season: 1, Number: 3}, Show: &Show{IDs: IDs{TMDB: 7}}},
	})
	if got := idx.Movie(42); got != 40 {
		t.Errorf("expected 40, got %v", got)
	}
	if got := idx.Episode(7, 1, 3); got != 55 {
		t.Errorf("expected 55, got %v", got)
	}
}
