package cache

import (
	"sort"
	"sync"
	"testing"

	"github.com/luciancaetano/luster"
)

// TestMapInsertOrReplace tests that Put replaces an entity with the same ID
func TestMapInsertOrReplace(t *testing.T) {
	t.Parallel()

	m := NewMap[*luster.User]()
	m.Put(&luster.User{ID: "U1", Username: "a"})
	m.Put(&luster.User{ID: "U1", Username: "b"})

	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
	got, ok := m.Get("U1")
	if !ok {
		t.Fatal("Get(U1) not found")
	}
	if got.Username != "b" {
		t.Errorf("Username = %q, want %q", got.Username, "b")
	}
}

// TestMapDeleteIsIdempotent tests that deleting an absent ID is a no-op
func TestMapDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	m := NewMap[*luster.Channel]()
	m.Put(&luster.Channel{ID: "C1"})

	m.Delete("missing")
	if m.Len() != 1 {
		t.Errorf("Len() after deleting absent ID = %d, want 1", m.Len())
	}

	m.Delete("C1")
	m.Delete("C1")
	if _, ok := m.Get("C1"); ok {
		t.Error("Get(C1) found a deleted entity")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

// TestMapAll tests enumeration of every cached entity
func TestMapAll(t *testing.T) {
	t.Parallel()

	m := NewMap[*luster.Server]()
	for _, id := range []string{"S3", "S1", "S2"} {
		m.Put(&luster.Server{ID: id})
	}

	var ids []string
	for _, s := range m.All() {
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)

	want := []string{"S1", "S2", "S3"}
	if len(ids) != len(want) {
		t.Fatalf("All() returned %d entities, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("All()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

// TestMemoryImplementsCache tests the per-kind stores and Clear
func TestMemoryImplementsCache(t *testing.T) {
	t.Parallel()

	var c luster.Cache = New()
	c.Users().Put(&luster.User{ID: "U1"})
	c.Servers().Put(&luster.Server{ID: "S1"})
	c.Channels().Put(&luster.Channel{ID: "C1"})

	if _, ok := c.Users().Get("S1"); ok {
		t.Error("stores must be independent per kind")
	}

	c.(*Memory).Clear()
	if len(c.Users().All())+len(c.Servers().All())+len(c.Channels().All()) != 0 {
		t.Error("Clear() left entities behind")
	}
}

// TestMapConcurrentAccess exercises the store under the race detector
func TestMapConcurrentAccess(t *testing.T) {
	t.Parallel()

	m := NewMap[*luster.User]()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('A' + n))
			for j := 0; j < 100; j++ {
				m.Put(&luster.User{ID: id})
				m.Get(id)
				m.All()
				m.Delete(id)
			}
		}(i)
	}
	wg.Wait()
}

// BenchmarkMapGet benchmarks cache lookups
func BenchmarkMapGet(b *testing.B) {
	m := NewMap[*luster.User]()
	m.Put(&luster.User{ID: "U1"})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Get("U1")
	}
}
