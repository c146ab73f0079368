package cache

import (
	"context"
	"errors"
	"log"
)

// Activity names the provider activity whose token validates a response.
type Activity struct {
	Type string // e.g. "movies", "episodes"
	Key  string // e.g. "watched_at", "paused_at"
	Days float64
	// AllowFallback serves the last stored response when a live call fails or returns nothing.
	AllowFallback bool
	// Refresh forces a live call even when the token matches.
	Refresh bool
}

// WithActivity serves the stored response for key while the provider's activity
// token is unchanged. When the oracle reports no authorization, or ctx is cache
// only, the stored response (possibly empty) is returned and call never runs.
func WithActivity[T any](c Store, oracle Oracle, act Activity, key string, call Call[T]) Call[T] {
	return func(ctx context.Context) (T, error) {
		cached, rec, ok := load[T](c, key)
		if CacheOnly(ctx) {
			return cached, nil
		}

		token, err := oracle.LastActivity(ctx, act.Type, act.Key)
		if errors.Is(err, ErrNotAuthorized) {
			return cached, nil
		}
		if err != nil {
			log.Printf("[cache] last activity %s.%s unavailable: %v", act.Type, act.Key, err)
			token = ""
		}
		if ok && token != "" && !act.Refresh && Token(rec.Token) == token && !IsEmpty(cached) {
			return cached, nil
		}

		return collapse(key, func() (T, error) {
			// a flight that finished after our load may already have stored it
			if !act.Refresh && token != "" {
				if fresh, frec, fok := load[T](c, key); fok && Token(frec.Token) == token && !IsEmpty(fresh) {
					return fresh, nil
				}
			}
			res, err := call(ctx)
			if err != nil || IsEmpty(res) {
				if act.AllowFallback && ok && !IsEmpty(cached) {
					log.Printf("[cache] fallback to stored response key=%s (%s)", key, describe(err))
					return cached, nil
				}
				return res, err
			}
			save(c, key, res, token, act.Days)
			return res, nil
		})
	}
}
