package audiocache

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
)

func key(s string) Key { return Key{Lang: "en", Text: s} }

func TestCachePromotionOnGet(t *testing.T) {
	c := New(2)
	c.Put(key("A"), []byte("a"))
	c.Put(key("B"), []byte("b"))
	if _, ok := c.Get(key("A")); !ok {
		t.Fatalf("Get(A) miss, want hit")
	}
	c.Put(key("C"), []byte("c"))

	if _, ok := c.Get(key("B")); ok {
		t.Fatalf("Get(B) hit, want B evicted")
	}
	if got, ok := c.Get(key("A")); !ok || string(got) != "a" {
		t.Fatalf("Get(A) = %q, %v; want %q, true", got, ok, "a")
	}
	if got, ok := c.Get(key("C")); !ok || string(got) != "c" {
		t.Fatalf("Get(C) = %q, %v; want %q, true", got, ok, "c")
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}

func TestCacheEvictsExactlyLeastRecentlyUsed(t *testing.T) {
	const capacity = 5
	c := New(capacity)
	var evicted []Key
	c.SetEvictHook(func(k Key) { evicted = append(evicted, k) })

	for i := 0; i <= capacity; i++ {
		c.Put(key(fmt.Sprint(i)), []byte{byte(i)})
	}

	if len(evicted) != 1 || evicted[0] != key("0") {
		t.Fatalf("evicted = %+v, want only key 0", evicted)
	}
	if c.Len() != capacity {
		t.Fatalf("Len() = %d, want %d", c.Len(), capacity)
	}
	for i := 1; i <= capacity; i++ {
		if _, ok := c.Get(key(fmt.Sprint(i))); !ok {
			t.Fatalf("Get(%d) miss, want hit", i)
		}
	}
}

func TestCachePromotedKeySurvivesRefill(t *testing.T) {
	const capacity = 4
	c := New(capacity)
	for i := 0; i < capacity; i++ {
		c.Put(key(fmt.Sprint(i)), []byte{byte(i)})
	}
	c.Get(key("0"))
	for i := capacity; i < 2*capacity-1; i++ {
		c.Put(key(fmt.Sprint(i)), []byte{byte(i)})
	}
	if _, ok := c.Get(key("0")); !ok {
		t.Fatalf("promoted key 0 was evicted")
	}
}

func TestCachePutOverwritesAndPromotes(t *testing.T) {
	c := New(2)
	c.Put(key("A"), []byte("old"))
	c.Put(key("B"), []byte("b"))
	c.Put(key("A"), []byte("new"))
	c.Put(key("C"), []byte("c"))

	if got, ok := c.Get(key("A")); !ok || !bytes.Equal(got, []byte("new")) {
		t.Fatalf("Get(A) = %q, %v; want %q, true", got, ok, "new")
	}
	if _, ok := c.Get(key("B")); ok {
		t.Fatalf("Get(B) hit, want B evicted")
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}

func TestCacheKeyIncludesLanguage(t *testing.T) {
	c := New(4)
	c.Put(Key{Lang: "en", Text: "hello"}, []byte("en"))
	if _, ok := c.Get(Key{Lang: "te", Text: "hello"}); ok {
		t.Fatalf("Get with other language hit, want miss")
	}
}

func TestCacheRecencyOrder(t *testing.T) {
	c := New(3)
	c.Put(key("A"), nil)
	c.Put(key("B"), nil)
	c.Put(key("C"), nil)
	c.Get(key("A"))

	got := c.keys()
	want := []Key{key("A"), key("C"), key("B")}
	if len(got) != len(want) {
		t.Fatalf("keys() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestCacheStats(t *testing.T) {
	c := New(1)
	c.Get(key("A"))
	c.Put(key("A"), nil)
	c.Get(key("A"))
	c.Put(key("B"), nil)

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Evictions != 1 || s.Entries != 1 || s.Capacity != 1 {
		t.Fatalf("Stats() = %+v", s)
	}
}

func TestNewDefaultsCapacity(t *testing.T) {
	if got := New(0).Capacity(); got != DefaultCapacity {
		t.Fatalf("Capacity() = %d, want %d", got, DefaultCapacity)
	}
}

func TestCacheConcurrentAccessKeepsBound(t *testing.T) {
	const capacity = 16
	c := New(capacity)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := key(fmt.Sprintf("%d-%d", g, i%40))
				if _, ok := c.Get(k); !ok {
					c.Put(k, []byte{byte(i)})
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > capacity {
		t.Fatalf("Len() = %d, exceeds capacity %d", c.Len(), capacity)
	}
	c.mu.Lock()
	mapped := len(c.items)
	c.mu.Unlock()
	if n := len(c.keys()); n != mapped {
		t.Fatalf("order list has %d keys, index has %d", n, mapped)
	}
}
