package dedup

import (
	"reflect"
	"testing"
)

func keys[K comparable, V any](c *Cache[K, V]) []K {
	var out []K
	for _, e := range c.Entries() {
		out = append(out, e.Key)
	}
	return out
}

func TestCache_FIFOEviction(t *testing.T) {
	c := NewCache[string, int](2)
	c.Insert("a", 1)
	c.Insert("b", 2)

	evicted, ok := c.Insert("c", 3)
	if !ok || evicted.Key != "a" {
		t.Fatalf("Insert at capacity evicted %v (ok=%v), want a", evicted.Key, ok)
	}
	if got := keys(c); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("keys = %v, want [b c]", got)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestCache_ReadDoesNotRefresh(t *testing.T) {
	c := NewCache[string, int](2)
	c.Insert("a", 1)
	c.Insert("b", 2)
	// reading every entry must not move "a" to the back
	c.Range(func(string, int) bool { return true })
	_ = c.Entries()

	c.Insert("c", 3)
	if got := keys(c); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("keys = %v, want [b c]", got)
	}
}

func TestCache_ReinsertKeepsPosition(t *testing.T) {
	c := NewCache[string, int](3)
	c.Insert("a", 1)
	c.Insert("b", 2)
	if _, ok := c.Insert("a", 10); ok {
		t.Error("re-insert should not evict")
	}
	entries := c.Entries()
	if len(entries) != 2 || entries[0].Key != "a" || entries[0].Value != 10 {
		t.Errorf("entries = %+v, want a=10 first", entries)
	}
}

func TestCache_RangeStops(t *testing.T) {
	c := NewCache[int, int](5)
	for i := 0; i < 5; i++ {
		c.Insert(i, i)
	}
	seen := 0
	c.Range(func(k, _ int) bool {
		seen++
		return k < 2
	})
	if seen != 3 {
		t.Errorf("Range visited %d entries, want 3", seen)
	}
}

func TestCache_Clear(t *testing.T) {
	c := NewCache[int, string](0)
	if c.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1 for non-positive capacity", c.Cap())
	}
	c.Insert(1, "x")
	c.Clear()
	if c.Len() != 0 || len(c.Entries()) != 0 {
		t.Error("Clear left entries behind")
	}
	c.Insert(2, "y")
	if got := keys(c); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("keys after clear = %v", got)
	}
}

func TestCache_Reset(t *testing.T) {
	c := NewCache[string, int](3)
	c.Insert("a", 1)
	c.Insert("b", 2)
	snapshot := c.Entries()
	c.Insert("c", 3)
	c.Insert("d", 4)

	c.Reset(snapshot)
	if got := keys(c); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("keys after reset = %v, want [a b]", got)
	}
	c.Insert("e", 5)
	c.Insert("f", 6)
	if got := keys(c); !reflect.DeepEqual(got, []string{"b", "e", "f"}) {
		t.Errorf("eviction order after reset = %v, want [b e f]", got)
	}
}
