package cache

import "context"

// WithTTL serves the stored response for key until it expires after days, then
// calls through and stores non-empty results. Under a cache-only context the
// stored value (or the zero value) is returned without calling.
func WithTTL[T any](c Store, key string, days float64, call Call[T]) Call[T] {
	return func(ctx context.Context) (T, error) {
		cached, _, ok := load[T](c, key)
		if ok && !IsEmpty(cached) {
			return cached, nil
		}
		if CacheOnly(ctx) {
			return cached, nil
		}
		return collapse(key, func() (T, error) {
			// a flight that finished after our load may already have stored it
			if fresh, _, ok := load[T](c, key); ok && !IsEmpty(fresh) {
				return fresh, nil
			}
			res, err := call(ctx)
			if err != nil {
				return res, err
			}
			if !IsEmpty(res) {
				save(c, key, res, "", days)
			}
			return res, nil
		})
	}
}
