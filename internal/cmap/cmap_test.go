package cmap

import (
	"sync"
	"testing"
)

func TestGetSetDelete(t *testing.T) {
	m := NewInt64[string]()
	if _, ok := m.Get(1); ok {
		t.Fatal("expected missing key")
	}
	m.Set(1, "a")
	if v, ok := m.Get(1); !ok || v != "a" {
		t.Fatalf("Get(1) = %q, %v", v, ok)
	}
	m.Set(1, "b")
	if v, _ := m.Get(1); v != "b" {
		t.Fatalf("expected overwrite, got %q", v)
	}
	if !m.Delete(1) {
		t.Error("expected Delete to report presence")
	}
	if m.Delete(1) {
		t.Error("expected second Delete to report absence")
	}
}

func TestUpdateAtomicity(t *testing.T) {
	m := NewInt64[int]()
	m.Set(42, 0)

	var wg sync.WaitGroup
	const workers = 8
	const increments = 1000
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				m.Update(42, func(cur int, _ bool) (int, bool) {
					return cur + 1, true
				})
			}
		}()
	}
	wg.Wait()

	if v, _ := m.Get(42); v != workers*increments {
		t.Errorf("expected %d, got %d", workers*increments, v)
	}
}

func TestUpdateNoStore(t *testing.T) {
	m := NewString[int]()
	m.Set("k", 7)
	m.Update("k", func(cur int, exists bool) (int, bool) {
		if !exists || cur != 7 {
			t.Errorf("Update saw cur=%d exists=%v", cur, exists)
		}
		return 0, false
	})
	if v, _ := m.Get("k"); v != 7 {
		t.Errorf("expected unchanged value, got %d", v)
	}
}

func TestRangeAndLen(t *testing.T) {
	m := NewInt64[int]()
	for i := int64(0); i < 100; i++ {
		m.Set(i, int(i))
	}
	if m.Len() != 100 {
		t.Fatalf("Len = %d", m.Len())
	}
	seen := make(map[int64]bool)
	m.Range(func(k int64, v int) bool {
		seen[k] = true
		return true
	})
	if len(seen) != 100 {
		t.Errorf("Range visited %d entries", len(seen))
	}

	count := 0
	m.Range(func(int64, int) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("early-exit Range visited %d entries", count)
	}
}
