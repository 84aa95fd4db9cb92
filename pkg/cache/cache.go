package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrKeyNotFound is returned when a key is not found in the cache
var ErrKeyNotFound = errors.New("key not found in cache")

// Cache is the TTL key-value store used for LLM response caching and
// episode content-hash deduplication.
type Cache interface {
	// Set stores a value with a TTL
	Set(key string, value []byte, ttl time.Duration) error
	// Get retrieves a value
	Get(key string) ([]byte, error)
	// Delete removes a value
	Delete(key string) error
	// Close closes the cache
	Close() error
}

// BadgerCache implements Cache using BadgerDB
type BadgerCache struct {
	db *badger.DB
}

// NewBadgerCache opens a BadgerDB-backed cache at path. Pass an empty
// path for an in-memory store.
func NewBadgerCache(path string) (*BadgerCache, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

// Set stores a value with a TTL
func (c *BadgerCache) Set(key string, value []byte, ttl time.Duration) error {
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Get retrieves a value
func (c *BadgerCache) Get(key string) ([]byte, error) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return val, nil
}

// Delete removes a value
func (c *BadgerCache) Delete(key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close closes the cache
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

// MemoryCache is a map-backed Cache for tests and single-process use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Set stores a value; ttl <= 0 means no expiry.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

// Get retrieves a value, expiring it lazily.
func (c *MemoryCache) Get(key string) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrKeyNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

// Delete removes a value
func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Close clears the cache
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	return nil
}
