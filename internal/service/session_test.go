package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func turns(roles ...string) []Turn {
	out := make([]Turn, len(roles))
	for i, r := range roles {
		out[i] = Turn{Role: r, Content: fmt.Sprintf("%s-%d", r, i)}
	}
	return out
}

func TestTrimHistory(t *testing.T) {
	u, a, tl := RoleUser, RoleAssistant, RoleTool

	tests := []struct {
		name      string
		turns     []Turn
		max       int
		wantLen   int
		wantFirst string
	}{
		{name: "under limit", turns: turns(u, a, u, a), max: 10, wantLen: 4, wantFirst: "user-0"},
		{name: "disabled", turns: turns(u, a, u, a), max: 0, wantLen: 4, wantFirst: "user-0"},
		{name: "drops oldest exchange", turns: turns(u, a, u, a, u, a), max: 4, wantLen: 4, wantFirst: "user-2"},
		{name: "never splits an exchange", turns: turns(u, a, tl, a, u, a, tl, a), max: 5, wantLen: 4, wantFirst: "user-4"},
		{name: "oversized newest exchange kept whole", turns: turns(u, a, u, a, tl, a, tl, a), max: 3, wantLen: 6, wantFirst: "user-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := trimHistory(tt.turns, tt.max)
			if len(got) != tt.wantLen {
				t.Fatalf("trimHistory() len = %d, want %d", len(got), tt.wantLen)
			}
			if got[0].Content != tt.wantFirst {
				t.Errorf("trimHistory() first = %q, want %q", got[0].Content, tt.wantFirst)
			}
			if got[0].Role != RoleUser {
				t.Errorf("trimHistory() must start at a user turn, got %s", got[0].Role)
			}
		})
	}
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore()

	s1, created := store.GetOrCreate("")
	if !created || s1.ID == "" {
		t.Fatalf("GetOrCreate(\"\") = %q, created=%v; want generated ID", s1.ID, created)
	}
	again, created := store.GetOrCreate(s1.ID)
	if created || again != s1 {
		t.Error("GetOrCreate() should return the existing session")
	}

	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
	if !store.Delete(s1.ID) {
		t.Error("Delete() = false, want true")
	}
	if store.Delete(s1.ID) {
		t.Error("Delete() twice = true, want false")
	}
}

func TestSessionStore_ConcurrentGetOrCreate(t *testing.T) {
	store := NewSessionStore()

	var wg sync.WaitGroup
	got := make([]*Session, 50)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], _ = store.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()

	for i := range got {
		if got[i] != got[0] {
			t.Fatal("concurrent GetOrCreate() returned different sessions")
		}
	}
}

func TestSession_TurnsIsCopy(t *testing.T) {
	s := newSession("s")
	s.commit(turns(RoleUser, RoleAssistant))

	view := s.Turns()
	view[0].Content = "mutated"

	if s.Turns()[0].Content == "mutated" {
		t.Error("Turns() must return a copy")
	}
	if s.State() != Idle {
		t.Errorf("State() = %v, want idle", s.State())
	}
}
