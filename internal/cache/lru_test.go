package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, -5} {
		if _, err := New[string, int](n); !errors.Is(err, ErrInvalidCapacity) {
			t.Errorf("New(%d) error = %v", n, err)
		}
	}
}

func TestLRUEviction(t *testing.T) {
	t.Parallel()

	t.Run("evicts least recently used", func(t *testing.T) {
		t.Parallel()

		c, err := New[string, int](2)
		if err != nil {
			t.Fatal(err)
		}
		c.Put("a", 1)
		c.Put("b", 2)
		if _, ok := c.Get("a"); !ok {
			t.Fatal("a should be present")
		}
		c.Put("c", 3)

		if _, ok := c.Peek("b"); ok {
			t.Error("b was least recently used and should be evicted")
		}
		if _, ok := c.Peek("a"); !ok {
			t.Error("a was touched and should survive")
		}
		if c.Len() != 2 {
			t.Errorf("len = %d, want 2", c.Len())
		}
		if st := c.Stats(); st.Evictions != 1 {
			t.Errorf("evictions = %d, want 1", st.Evictions)
		}
	})

	t.Run("update refreshes without evicting", func(t *testing.T) {
		t.Parallel()

		c, _ := New[string, int](2)
		c.Put("a", 1)
		c.Put("b", 2)
		c.Put("a", 10)
		c.Put("c", 3)

		if v, ok := c.Peek("a"); !ok || v != 10 {
			t.Errorf("a = %d, %v; want 10, true", v, ok)
		}
		if _, ok := c.Peek("b"); ok {
			t.Error("b should be evicted after a was refreshed")
		}
		if st := c.Stats(); st.Evictions != 1 {
			t.Errorf("evictions = %d, want 1", st.Evictions)
		}
	})

	t.Run("keys in recency order", func(t *testing.T) {
		t.Parallel()

		c, _ := New[int, int](3)
		c.Put(1, 1)
		c.Put(2, 2)
		c.Put(3, 3)
		c.Get(1)

		keys := c.Keys()
		want := []int{2, 3, 1}
		for i := range want {
			if keys[i] != want[i] {
				t.Fatalf("keys = %v, want %v", keys, want)
			}
		}
	})
}

func TestLRUStats(t *testing.T) {
	t.Parallel()

	c, _ := New[string, string](4)
	c.Put("x", "1")
	c.Get("x")
	c.Get("x")
	c.Get("missing")
	c.Peek("x")

	st := c.Stats()
	if st.Hits != 2 || st.Misses != 1 || st.Len != 1 || st.Capacity != 4 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestLRUNeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	const capacity = 10
	c, _ := New[string, int](capacity)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				k := fmt.Sprintf("%d-%d", w, i)
				c.Put(k, i)
				c.Get(k)
				if n := c.Len(); n > capacity {
					t.Errorf("len %d exceeds capacity %d", n, capacity)
					return
				}
			}
		}()
	}
	wg.Wait()

	if c.Len() != capacity {
		t.Errorf("len = %d, want %d", c.Len(), capacity)
	}
	if st := c.Stats(); st.Evictions != 8*200-capacity {
		t.Errorf("evictions = %d, want %d", st.Evictions, 8*200-capacity)
	}
}
