package trakt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tmdbhelper/services/cache"
)

// Activities answers last-activity queries from /sync/last_activities. The
// response is held in memory briefly so one listing costs a single request.
type Activities struct {
	client *Client
	auth   *Authorizer
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	fetched time.Time
	last    LastActivities
}

func NewActivities(client *Client, auth *Authorizer) *Activities {
	return &Activities{client: client, auth: auth, ttl: time.Minute, now: time.Now}
}

// LastActivity returns the timestamp for activityType.activityKey, or
// cache.ErrNotAuthorized when no usable token exists.
func (a *Activities) LastActivity(ctx context.Context, activityType, activityKey string) (cache.Token, error) {
	token := a.auth.AccessToken()
	if token == "" || a.auth.State() == Unauthorized {
		return "", cache.ErrNotAuthorized
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil || a.now().Sub(a.fetched) > a.ttl {
		last, err := a.client.GetLastActivities(ctx, token)
		if errors.Is(err, ErrUnauthorized) {
			return "", cache.ErrNotAuthorized
		}
		if err != nil {
			return "", fmt.Errorf("last activities: %w", err)
		}
		a.last = last
		a.fetched = a.now()
	}
	return cache.Token(a.last[activityType][activityKey]), nil
}

// Invalidate forces the next query to refetch.
func (a *Activities) Invalidate() {
	a.mu.Lock()
	a.last = nil
	a.mu.Unlock()
}
