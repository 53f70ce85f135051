// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix is prepended to every cache key stored in Redis.
const RedisKeyPrefix = "revgeo:geocode:"

// Store persists lookup results for the CachedGeocoder. Get reports false for missing and expired
// entries.
type Store interface {
	Get(ctx context.Context, key string) ([]Address, bool, error)
	Set(ctx context.Context, key string, addrs []Address, ttl time.Duration) error
	Purge(ctx context.Context) (int, error)
}

type memoryEntry struct {
	addrs  []Address
	expiry time.Time
}

// MemoryStore keeps cache entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]Address, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[key]
	if !ok || !time.Now().Before(entry.expiry) {
		return nil, false, nil
	}
	return entry.addrs, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, addrs []Address, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{addrs: addrs, expiry: time.Now().Add(ttl)}
	return nil
}

// Purge removes all expired entries and returns how many were removed.
func (m *MemoryStore) Purge(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	purged := 0
	for key, entry := range m.entries {
		if !now.Before(entry.expiry) {
			delete(m.entries, key)
			purged++
		}
	}
	return purged, nil
}

// Len returns the number of entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// RedisStore keeps cache entries in Redis, JSON encoded. Expiry is left to Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis server at the given URL (redis://host:port/db) and verifies
// the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]Address, bool, error) {
	data, err := r.client.Get(ctx, RedisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry from redis: %w", err)
	}

	addrs, err := decodeEntry(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return addrs, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, addrs []Address, ttl time.Duration) error {
	data, err := encodeEntry(addrs)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err = r.client.Set(ctx, RedisKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry to redis: %w", err)
	}
	return nil
}

// Purge is a no-op, Redis expires the entries on its own.
func (r *RedisStore) Purge(context.Context) (int, error) {
	return 0, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

const (
	kindFloat = "float"
	kindInt   = "int"
)

// storedField is the Redis form of a Field. Kind keeps the numeric type, which plain JSON loses for
// whole numbers like 37.0.
type storedField struct {
	Key   string `json:"k"`
	Kind  string `json:"t,omitempty"`
	Value any    `json:"v"`
}

func encodeEntry(addrs []Address) ([]byte, error) {
	entry := make([][]storedField, 0, len(addrs))
	for _, addr := range addrs {
		fields := make([]storedField, 0, addr.Len())
		for _, field := range addr.Fields() {
			stored := storedField{Key: field.Key, Value: field.Value}
			switch field.Value.(type) {
			case float64:
				stored.Kind = kindFloat
			case int64:
				stored.Kind = kindInt
			}
			fields = append(fields, stored)
		}
		entry = append(entry, fields)
	}
	return json.Marshal(entry)
}

func decodeEntry(data []byte) ([]Address, error) {
	var entry [][]storedField
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&entry); err != nil {
		return nil, err
	}

	addrs := make([]Address, 0, len(entry))
	for _, fields := range entry {
		addr := Address{}
		for _, field := range fields {
			value, err := restoreValue(field)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field.Key, err)
			}
			addr.Set(field.Key, value)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func restoreValue(field storedField) (any, error) {
	number, ok := field.Value.(json.Number)
	if !ok {
		return field.Value, nil
	}
	switch field.Kind {
	case kindFloat:
		return number.Float64()
	case kindInt:
		return number.Int64()
	default:
		return number, nil
	}
}
