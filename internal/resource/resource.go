// Package resource implements the process-wide resource cache: a
// keyed cache for expensive shared handles (ML models, GPU contexts) that
// plugin-backed nodes deduplicate and share across node instances.
package resource

import (
	"fmt"
	"sync"
	"time"
)

// Resource is a shared handle a node keeps alive beyond its own lifetime.
// SizeBytes and ResourceType exist purely for LRU accounting and
// observability.
type Resource interface {
	SizeBytes() int
	ResourceType() string
}

// Key identifies a cached resource by plugin kind and a hash of the
// parameters that affect how it's constructed.
type Key struct {
	PluginKind string
	ParamsHash string
}

func (k Key) String() string { return fmt.Sprintf("%s:%s", k.PluginKind, k.ParamsHash) }

// Policy governs resource lifecycle. KeepLoaded disables eviction entirely;
// otherwise MaxMemoryBytes, if nonzero, triggers LRU eviction.
type Policy struct {
	KeepLoaded     bool
	MaxMemoryBytes int64
}

// DefaultPolicy keeps everything loaded with no memory bound.
func DefaultPolicy() Policy { return Policy{KeepLoaded: true} }

type entry struct {
	resource     Resource
	lastAccessed time.Time
}

// Manager is the process-wide resource cache. It is safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	resources map[Key]*entry
	policy    Policy
}

// New creates a Manager under the given policy.
func New(policy Policy) *Manager {
	return &Manager{resources: make(map[Key]*entry), policy: policy}
}

// GetOrCreate returns the cached resource for key, or calls factory to build
// one and caches it. factory runs at most once per key per cache miss; two
// concurrent misses for the same key may both invoke factory (the first
// result cached is kept and the later one discarded) — callers with expensive factories should guard construction
// themselves if that matters; per-key construction locks are out of scope
// for this cache's own lock.
func (m *Manager) GetOrCreate(key Key, factory func() (Resource, error)) (Resource, error) {
	m.mu.Lock()
	if e, ok := m.resources[key]; ok {
		e.lastAccessed = time.Now()
		m.mu.Unlock()
		return e.resource, nil
	}
	m.mu.Unlock()

	res, err := factory()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if e, ok := m.resources[key]; ok {
		// Lost the race to another GetOrCreate; keep the one already cached.
		e.lastAccessed = time.Now()
		m.mu.Unlock()
		return e.resource, nil
	}
	m.resources[key] = &entry{resource: res, lastAccessed: time.Now()}
	m.mu.Unlock()

	if !m.policy.KeepLoaded && m.policy.MaxMemoryBytes > 0 {
		m.evictToFit()
	}
	return res, nil
}

// Unload removes key from the cache unconditionally, regardless of policy.
func (m *Manager) Unload(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.resources, key)
}

// Len reports how many resources are currently cached.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resources)
}

// evictToFit runs a two-phase eviction: collect
// candidates under the lock, then remove, so the critical section collecting
// totals never overlaps with whatever compaction the caller does outside it.
func (m *Manager) evictToFit() {
	m.mu.Lock()
	var total int64
	type candidate struct {
		key  Key
		last time.Time
		size int64
	}
	candidates := make([]candidate, 0, len(m.resources))
	for k, e := range m.resources {
		sz := int64(e.resource.SizeBytes())
		total += sz
		candidates = append(candidates, candidate{key: k, last: e.lastAccessed, size: sz})
	}
	if total <= m.policy.MaxMemoryBytes {
		m.mu.Unlock()
		return
	}
	// Oldest-accessed first.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j-1].last.After(candidates[j].last); j-- {
			candidates[j-1], candidates[j] = candidates[j], candidates[j-1]
		}
	}
	var toEvict []Key
	for _, c := range candidates {
		if total <= m.policy.MaxMemoryBytes {
			break
		}
		toEvict = append(toEvict, c.key)
		total -= c.size
	}
	m.mu.Unlock()

	if len(toEvict) == 0 {
		return
	}
	m.mu.Lock()
	for _, k := range toEvict {
		delete(m.resources, k)
	}
	m.mu.Unlock()
}
