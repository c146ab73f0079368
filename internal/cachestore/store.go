package cachestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"tmdbhelper/models"
)

var bucketResponses = []byte("responses")

// DefaultDays applies when a write asks for a non-positive lifetime.
const DefaultDays = 14

type envelope struct {
	Expires time.Time          `json:"expires"`
	Record  models.CacheRecord `json:"record"`
}

// Store persists provider responses in BoltDB and promotes hot keys into memory.
type Store struct {
	db *bolt.DB
	mu sync.RWMutex

	cache       map[string][]byte
	defaultDays float64
	now         func() time.Time
}

// Open opens (or creates) cache.db under dir. An empty dir yields a memory-only store.
func Open(dir string, defaultDays float64) (*Store, error) {
	if defaultDays <= 0 {
		defaultDays = DefaultDays
	}
	s := &Store{cache: make(map[string][]byte), defaultDays: defaultDays, now: time.Now}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(filepath.Join(dir, "cache.db"), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketResponses)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	s.db = db
	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns the record stored under key unless it is missing or expired.
func (s *Store) Get(key string) (models.CacheRecord, bool) {
	data := s.read(key)
	if data == nil {
		return models.CacheRecord{}, false
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return models.CacheRecord{}, false
	}
	if !env.Expires.IsZero() && s.now().After(env.Expires) {
		s.Delete(key)
		return models.CacheRecord{}, false
	}
	return env.Record, true
}

// Set stores rec under key for the given number of days.
func (s *Store) Set(key string, rec models.CacheRecord, days float64) error {
	if days <= 0 {
		days = s.defaultDays
	}
	now := s.now()
	if rec.WrittenAt.IsZero() {
		rec.WrittenAt = now
	}
	data, err := json.Marshal(envelope{
		Expires: now.Add(time.Duration(days * float64(24*time.Hour))),
		Record:  rec,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[key] = data
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResponses).Put([]byte(key), data)
	})
}

func (s *Store) read(key string) []byte {
	s.mu.RLock()
	if data, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return data
	}
	s.mu.RUnlock()

	if s.db == nil {
		return nil
	}

	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResponses)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if data == nil {
		return nil
	}

	s.mu.Lock()
	s.cache[key] = data
	s.mu.Unlock()
	return data
}

func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	if s.db == nil {
		return
	}
	s.db.Update(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketResponses); b != nil {
			b.Delete([]byte(key))
		}
		return nil
	})
}

// DeletePrefix drops every key that starts with prefix, e.g. all responses of one operation.
func (s *Store) DeletePrefix(prefix string) {
	s.mu.Lock()
	for k := range s.cache {
		if strings.HasPrefix(k, prefix) {
			delete(s.cache, k)
		}
	}
	s.mu.Unlock()

	if s.db == nil {
		return
	}
	s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResponses)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		p := []byte(prefix)
		var keys [][]byte
		for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			b.Delete(k)
		}
		return nil
	})
}
