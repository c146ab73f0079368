// Package cache wraps provider calls with stored responses whose validity is
// tied to a time-to-live, a provider last-updated value or a provider activity token.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"reflect"

	"golang.org/x/sync/singleflight"

	"tmdbhelper/models"
)

// ErrNotAuthorized is returned by an Oracle when no valid provider authorization exists.
var ErrNotAuthorized = errors.New("not authorized")

// Token is a provider change marker such as a last-activity timestamp. Empty means absent.
type Token string

// Store persists records. A missing or expired key reports false.
type Store interface {
	Get(key string) (models.CacheRecord, bool)
	Set(key string, rec models.CacheRecord, days float64) error
}

// Oracle reports the provider's current token for an activity.
type Oracle interface {
	LastActivity(ctx context.Context, activityType, activityKey string) (Token, error)
}

// Call is a provider call whose result can be cached.
type Call[T any] func(ctx context.Context) (T, error)

type cacheOnlyKey struct{}

// WithCacheOnly marks ctx so wrapped calls only read stored responses.
func WithCacheOnly(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheOnlyKey{}, true)
}

// CacheOnly reports whether ctx forbids live provider calls.
func CacheOnly(ctx context.Context) bool {
	v, _ := ctx.Value(cacheOnlyKey{}).(bool)
	return v
}

var inflight singleflight.Group

// collapse runs fn once per key for concurrent callers. The result is shared
// in encoded form and every caller decodes its own copy.
func collapse[T any](key string, fn func() (T, error)) (T, error) {
	v, err, _ := inflight.Do(key, func() (any, error) {
		res, err := fn()
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	})
	var out T
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(v.([]byte), &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

// IsEmpty reports whether v carries no payload: nil, the zero value, or an
// empty slice, map or string.
func IsEmpty(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array, reflect.Chan:
		return rv.Len() == 0
	}
	return rv.IsZero()
}

func load[T any](c Store, key string) (T, models.CacheRecord, bool) {
	var v T
	rec, ok := c.Get(key)
	if !ok {
		return v, rec, false
	}
	if err := json.Unmarshal(rec.Response, &v); err != nil {
		log.Printf("[cache] discarding unreadable record key=%s: %v", key, err)
		var zero T
		return zero, rec, false
	}
	return v, rec, true
}

func save[T any](c Store, key string, v T, token Token, days float64) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[cache] encode key=%s: %v", key, err)
		return
	}
	if err := c.Set(key, models.CacheRecord{Response: data, Token: string(token)}, days); err != nil {
		log.Printf("[cache] store key=%s: %v", key, err)
	}
}

func describe(err error) string {
	if err == nil {
		return "empty response"
	}
	return fmt.Sprintf("error: %v", err)
}
