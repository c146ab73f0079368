package models

import (
	"encoding/json"
	"time"
)

// CacheRecord is a stored provider response together with the invalidation
// token that was current when it was written.
type CacheRecord struct {
	Response  json.RawMessage `json:"response"`
	Token     string          `json:"token,omitempty"`
	WrittenAt time.Time       `json:"written_at"`
}
