package cache

import "testing"

func TestGetSameIdentityReturnsSameMapping(t *testing.T) {
	s := New()
	m1 := s.Get("script-a")
	m1.Set("k", 1)

	m2 := s.Get("script-a")
	if m1 != m2 {
		t.Fatal("same identity must return the same mapping object")
	}
	if v, ok := m2.Get("k"); !ok || v != 1 {
		t.Error("mutation through one handle must be visible through the other")
	}
}

func TestGetDifferentIdentityInvalidates(t *testing.T) {
	s := New()
	s.Get("script-a").Set("k", 1)

	m2 := s.Get("script-b")
	if len(m2.Keys()) != 0 {
		t.Error("new identity must observe an empty mapping")
	}

	m1 := s.Get("script-a")
	if len(m1.Keys()) != 0 {
		t.Error("returning to the first identity must also observe an empty mapping")
	}
}

func TestEmptyIdentityUsesFallback(t *testing.T) {
	s := New()
	s.Get("").Set("k", 1)
	if s.Owner() != FallbackIdentity {
		t.Errorf("owner = %q, want %q", s.Owner(), FallbackIdentity)
	}
	if _, ok := s.Get("").Get("k"); !ok {
		t.Error("two empty-identity gets must share the mapping")
	}
}

func TestFlushKeepsIdentityAndMapping(t *testing.T) {
	s := New()
	m1 := s.Get("script-a")
	m1.Set("k", 1)
	m1.Set("j", 2)

	s.Flush()
	if s.Owner() != "script-a" {
		t.Error("flush must not change the owning identity")
	}
	if s.Len() != 0 {
		t.Errorf("entries after flush = %d, want 0", s.Len())
	}

	m2 := s.Get("script-a")
	if m1 != m2 {
		t.Error("flush must empty the mapping in place, not replace it")
	}
}

func TestLen(t *testing.T) {
	s := New()
	m := s.Get("script-a")
	m.Set("a", 1)
	m.Set("b", 2)
	if s.Len() != 2 {
		t.Errorf("len = %d, want 2", s.Len())
	}
}
