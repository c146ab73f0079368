package cache

import "context"

// WithLastUpdated serves the stored response when it was written under the same
// last-updated token. Without a token the call runs uncached and nothing is
// read or written; under a cache-only context that yields the zero value.
func WithLastUpdated[T any](c Store, key string, token Token, call Call[T]) Call[T] {
	return func(ctx context.Context) (T, error) {
		if token == "" {
			if CacheOnly(ctx) {
				var zero T
				return zero, nil
			}
			return call(ctx)
		}
		cached, rec, ok := load[T](c, key)
		if CacheOnly(ctx) {
			return cached, nil
		}
		if ok && Token(rec.Token) == token && !IsEmpty(cached) {
			return cached, nil
		}
		res, err := call(ctx)
		if err != nil {
			return res, err
		}
		if !IsEmpty(res) {
			save(c, key, res, token, 0)
		}
		return res, nil
	}
}
