package objstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type memObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// Memory is an in-process Store. Buckets must be created with EnsureBucket
// (or implicitly by Put) before use.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memObject
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{buckets: map[string]map[string]memObject{}}
}

// List implements Store. Non-recursive listing returns direct children and
// common prefixes ending in "/".
func (m *Memory) List(_ context.Context, bucket, prefix string, recursive bool) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("%w: bucket %s", ErrNotFound, bucket)
	}
	seen := map[string]struct{}{}
	var keys []string
	for k := range b {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !recursive {
			if i := strings.Index(k[len(prefix):], "/"); i >= 0 {
				k = k[:len(prefix)+i+1]
			}
		}
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	return append([]byte(nil), obj.data...), nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, bucket, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		b = map[string]memObject{}
		m.buckets[bucket] = b
	}
	b[key] = memObject{data: append([]byte(nil), data...), contentType: contentType, modified: time.Now()}
	return nil
}

// Stat implements Store.
func (m *Memory) Stat(_ context.Context, bucket, key string) (ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.buckets[bucket][key]
	if !ok {
		return ObjectInfo{}, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	return ObjectInfo{Key: key, Size: int64(len(obj.data)), LastModified: obj.modified, ContentType: obj.contentType}, nil
}

// EnsureBucket implements Store.
func (m *Memory) EnsureBucket(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = map[string]memObject{}
	}
	return nil
}
