package resource

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

type fakeResource struct {
	name string
	size int
}

func (r *fakeResource) SizeBytes() int       { return r.size }
func (r *fakeResource) ResourceType() string { return "fake" }

func TestGetOrCreateCachesPerKey(t *testing.T) {
	m := New(DefaultPolicy())
	key := Key{PluginKind: "whisper", ParamsHash: "abc"}

	var calls int
	factory := func() (Resource, error) {
		calls++
		return &fakeResource{name: "model", size: 100}, nil
	}

	first, err := m.GetOrCreate(key, factory)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	second, err := m.GetOrCreate(key, factory)
	if err != nil {
		t.Fatalf("GetOrCreate second: %v", err)
	}
	if calls != 1 {
		t.Fatalf("factory ran %d times, want 1", calls)
	}
	if first != second {
		t.Fatalf("cache returned different handles for the same key")
	}
}

func TestGetOrCreatePropagatesFactoryError(t *testing.T) {
	m := New(DefaultPolicy())
	wantErr := errors.New("model file missing")
	_, err := m.GetOrCreate(Key{PluginKind: "x", ParamsHash: "y"}, func() (Resource, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if m.Len() != 0 {
		t.Fatalf("failed construction left an entry cached")
	}
}

func TestDistinctParamsAreDistinctEntries(t *testing.T) {
	m := New(DefaultPolicy())
	for i := 0; i < 3; i++ {
		key := Key{PluginKind: "whisper", ParamsHash: fmt.Sprintf("h%d", i)}
		if _, err := m.GetOrCreate(key, func() (Resource, error) {
			return &fakeResource{size: 10}, nil
		}); err != nil {
			t.Fatalf("GetOrCreate %d: %v", i, err)
		}
	}
	if m.Len() != 3 {
		t.Fatalf("Len = %d, want 3", m.Len())
	}
}

func TestKeepLoadedNeverEvicts(t *testing.T) {
	m := New(Policy{KeepLoaded: true, MaxMemoryBytes: 100})
	for i := 0; i < 5; i++ {
		key := Key{PluginKind: "big", ParamsHash: fmt.Sprintf("h%d", i)}
		if _, err := m.GetOrCreate(key, func() (Resource, error) {
			return &fakeResource{size: 1000}, nil
		}); err != nil {
			t.Fatalf("GetOrCreate %d: %v", i, err)
		}
	}
	if m.Len() != 5 {
		t.Fatalf("Len = %d with KeepLoaded, want 5", m.Len())
	}
}

func TestLRUEvictionRespectsBudget(t *testing.T) {
	m := New(Policy{MaxMemoryBytes: 250})
	keys := make([]Key, 4)
	for i := range keys {
		keys[i] = Key{PluginKind: "model", ParamsHash: fmt.Sprintf("h%d", i)}
		if _, err := m.GetOrCreate(keys[i], func() (Resource, error) {
			return &fakeResource{size: 100}, nil
		}); err != nil {
			t.Fatalf("GetOrCreate %d: %v", i, err)
		}
	}

	// 4 x 100 bytes against a 250-byte budget: at least two entries must
	// have been evicted, oldest-accessed first.
	if m.Len() > 2 {
		t.Fatalf("Len = %d after eviction, want <= 2", m.Len())
	}

	// The most recently inserted key must have survived.
	var calls int
	if _, err := m.GetOrCreate(keys[3], func() (Resource, error) {
		calls++
		return &fakeResource{size: 100}, nil
	}); err != nil {
		t.Fatalf("GetOrCreate survivor: %v", err)
	}
	if calls != 0 {
		t.Fatalf("most recently used entry was evicted")
	}
}

func TestUnloadRemovesEntry(t *testing.T) {
	m := New(DefaultPolicy())
	key := Key{PluginKind: "gpu", ParamsHash: "ctx"}
	if _, err := m.GetOrCreate(key, func() (Resource, error) {
		return &fakeResource{size: 1}, nil
	}); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	m.Unload(key)
	if m.Len() != 0 {
		t.Fatalf("Len = %d after Unload, want 0", m.Len())
	}
}

func TestConcurrentAccessIsSafe(t *testing.T) {
	m := New(DefaultPolicy())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key{PluginKind: "shared", ParamsHash: fmt.Sprintf("h%d", i%4)}
			for j := 0; j < 50; j++ {
				if _, err := m.GetOrCreate(key, func() (Resource, error) {
					return &fakeResource{size: 10}, nil
				}); err != nil {
					t.Errorf("GetOrCreate: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	if m.Len() != 4 {
		t.Fatalf("Len = %d, want 4", m.Len())
	}
}
