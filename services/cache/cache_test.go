package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"tmdbhelper/internal/cachestore"
	"tmdbhelper/models"
)

func newStore(t *testing.T) *cachestore.Store {
	t.Helper()
	s, err := cachestore.Open("", 1)
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, s Store, key string, v any, token Token) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, s.Set(key, models.CacheRecord{Response: data, Token: string(token)}, 1))
}

func counting[T any](calls *int32, res T, err error) Call[T] {
	return func(context.Context) (T, error) {
		atomic.AddInt32(calls, 1)
		return res, err
	}
}

func TestKeyDeterministicAndCollisionFree(t *testing.T) {
	assert.Equal(t, Key("watched", "movie", 1), Key("watched", "movie", 1))
	assert.NotEqual(t, Key("details", "a:b", "c"), Key("details", "a", "b:c"))
	assert.NotEqual(t, Key("details", "a", "b"), Key("details", "b", "a"))
	assert.NotEqual(t, Key("details", "ab"), Key("details", "a", "b"))
}

func TestIsEmpty(t *testing.T) {
	var nilMap map[string]int
	var nilPtr *models.CacheRecord
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(nilMap))
	assert.True(t, IsEmpty(nilPtr))
	assert.True(t, IsEmpty([]int{}))
	assert.True(t, IsEmpty(""))
	assert.True(t, IsEmpty(0))
	assert.False(t, IsEmpty([]int{1}))
	assert.False(t, IsEmpty(map[string]int{"a": 1}))
	assert.False(t, IsEmpty(&models.CacheRecord{}))
}

func TestWithActivityHitSkipsCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	oracle := NewMockOracle(ctrl)
	store := newStore(t)
	key := Key("watched", "movie")
	seed(t, store, key, []int{42}, "T1")

	oracle.EXPECT().LastActivity(gomock.Any(), "movies", "watched_at").Return(Token("T1"), nil)

	var calls int32
	wrapped := WithActivity(store, oracle, Activity{Type: "movies", Key: "watched_at"}, key, counting(&calls, []int{7}, nil))
	got, err := wrapped(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int{42}, got)
	assert.Equal(t, int32(0), calls)
}

func TestWithActivityTokenChangeRefreshesStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	oracle := NewMockOracle(ctrl)
	store := newStore(t)
	key := Key("watched", "show")
	seed(t, store, key, []int{1}, "T1")

	oracle.EXPECT().LastActivity(gomock.Any(), "episodes", "watched_at").Return(Token("T2"), nil)

	var calls int32
	wrapped := WithActivity(store, oracle, Activity{Type: "episodes", Key: "watched_at", Days: 30}, key, counting(&calls, []int{1, 2}, nil))
	got, err := wrapped(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, int32(1), calls)

	rec, ok := store.Get(key)
	require.True(t, ok)
	assert.Equal(t, "T2", rec.Token)
	assert.JSONEq(t, `[1,2]`, string(rec.Response))
}

func TestWithActivityUnauthorizedNeverCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	oracle := NewMockOracle(ctrl)
	store := newStore(t)
	oracle.EXPECT().LastActivity(gomock.Any(), gomock.Any(), gomock.Any()).Return(Token(""), ErrNotAuthorized).Times(2)

	var calls int32
	act := Activity{Type: "movies", Key: "watched_at"}

	got, err := WithActivity(store, oracle, act, "empty", counting(&calls, []int{9}, nil))(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)

	seed(t, store, "stale", []int{3}, "old")
	got, err = WithActivity(store, oracle, act, "stale", counting(&calls, []int{9}, nil))(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{3}, got)

	assert.Equal(t, int32(0), calls)
}

func TestWithActivityCacheOnlyContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	oracle := NewMockOracle(ctrl)
	store := newStore(t)
	seed(t, store, "k", []int{5}, "T1")

	var calls int32
	got, err := WithActivity(store, oracle, Activity{Type: "movies", Key: "watched_at"}, "k", counting(&calls, []int{6}, nil))(WithCacheOnly(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, []int{5}, got)
	assert.Equal(t, int32(0), calls)
}

func TestWithActivityFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	oracle := NewMockOracle(ctrl)
	store := newStore(t)
	seed(t, store, "k", []int{5}, "T1")
	oracle.EXPECT().LastActivity(gomock.Any(), gomock.Any(), gomock.Any()).Return(Token("T2"), nil).Times(2)

	var calls int32
	boom := errors.New("boom")

	got, err := WithActivity(store, oracle, Activity{Type: "movies", Key: "paused_at"}, "k", counting[[]int](&calls, nil, boom))(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got)

	got, err = WithActivity(store, oracle, Activity{Type: "movies", Key: "paused_at", AllowFallback: true}, "k", counting[[]int](&calls, nil, boom))(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{5}, got)

	rec, _ := store.Get("k")
	assert.Equal(t, "T1", rec.Token, "failed calls must not overwrite the stored token")
}

func TestWithActivityRefreshForcesCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	oracle := NewMockOracle(ctrl)
	store := newStore(t)
	seed(t, store, "k", []int{5}, "T1")
	oracle.EXPECT().LastActivity(gomock.Any(), gomock.Any(), gomock.Any()).Return(Token("T1"), nil)

	var calls int32
	got, err := WithActivity(store, oracle, Activity{Type: "movies", Key: "watched_at", Refresh: true}, "k", counting(&calls, []int{8}, nil))(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{8}, got)
	assert.Equal(t, int32(1), calls)
}

func TestWithActivityCollapsesConcurrentMisses(t *testing.T) {
	ctrl := gomock.NewController(t)
	oracle := NewMockOracle(ctrl)
	store := newStore(t)
	oracle.EXPECT().LastActivity(gomock.Any(), gomock.Any(), gomock.Any()).Return(Token("T1"), nil).AnyTimes()

	var calls int32
	release := make(chan struct{})
	slow := func(context.Context) ([]int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []int{1}, nil
	}
	wrapped := WithActivity(store, oracle, Activity{Type: "movies", Key: "watched_at"}, "collapse", slow)

	var started, done sync.WaitGroup
	for i := 0; i < 5; i++ {
		started.Add(1)
		done.Add(1)
		go func() {
			defer done.Done()
			started.Done()
			got, err := wrapped(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, []int{1}, got)
		}()
	}
	started.Wait()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	close(release)
	done.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCollapsedCallersGetIndependentResults(t *testing.T) {
	store := newStore(t)
	release := make(chan struct{})
	shared := func(context.Context) ([]int, error) {
		<-release
		out := make([]int, 2, 8)
		out[0], out[1] = 1, 2
		return out, nil
	}
	wrapped := WithTTL(store, "list", 1, shared)

	const callers = 4
	results := make([][]int, callers)
	var started, done sync.WaitGroup
	for i := 0; i < callers; i++ {
		started.Add(1)
		done.Add(1)
		go func(i int) {
			defer done.Done()
			started.Done()
			got, err := wrapped(context.Background())
			assert.NoError(t, err)
			results[i] = append(got, 100+i)
		}(i)
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	done.Wait()

	for i, got := range results {
		assert.Equal(t, []int{1, 2, 100 + i}, got)
	}
}

func TestWithLastUpdatedNoTokenNeverPersists(t *testing.T) {
	store := newStore(t)
	seed(t, store, "progress", []int{1}, "2024-01-01")

	var calls int32
	got, err := WithLastUpdated(store, "progress", "", counting(&calls, []int{2}, nil))(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2}, got)
	assert.Equal(t, int32(1), calls)

	rec, ok := store.Get("progress")
	require.True(t, ok)
	assert.Equal(t, "2024-01-01", rec.Token)
	assert.JSONEq(t, `[1]`, string(rec.Response))

	got, err = WithLastUpdated(store, "fresh", "", counting(&calls, []int{3}, nil))(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{3}, got)
	_, ok = store.Get("fresh")
	assert.False(t, ok)
}

func TestWithLastUpdatedNoTokenCacheOnlyNeverCalls(t *testing.T) {
	store := newStore(t)
	seed(t, store, "progress", []int{1}, "2024-01-01")

	var calls int32
	got, err := WithLastUpdated(store, "progress", "", counting(&calls, []int{2}, nil))(WithCacheOnly(context.Background()))
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int32(0), calls)
}

func TestWithLastUpdatedHitAndMiss(t *testing.T) {
	store := newStore(t)
	seed(t, store, "progress", []int{1}, "A")

	var calls int32
	got, err := WithLastUpdated(store, "progress", "A", counting(&calls, []int{2}, nil))(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, got)
	assert.Equal(t, int32(0), calls)

	got, err = WithLastUpdated(store, "progress", "B", counting(&calls, []int{2}, nil))(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2}, got)
	assert.Equal(t, int32(1), calls)
	rec, _ := store.Get("progress")
	assert.Equal(t, "B", rec.Token)

	// empty responses are returned but never stored
	got, err = WithLastUpdated(store, "progress", "C", counting[[]int](&calls, nil, nil))(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
	rec, _ = store.Get("progress")
	assert.Equal(t, "B", rec.Token)
}

func TestWithTTL(t *testing.T) {
	store := newStore(t)

	var calls int32
	wrapped := WithTTL(store, "details", 1, counting(&calls, map[string]string{"title": "Dune"}, nil))

	got, err := wrapped(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Dune", got["title"])

	got, err = wrapped(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Dune", got["title"])
	assert.Equal(t, int32(1), calls)

	got, err = WithTTL(store, "missing", 1, counting(&calls, map[string]string{"x": "y"}, nil))(WithCacheOnly(context.Background()))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(1), calls)
}
