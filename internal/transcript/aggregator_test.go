package transcript

import (
	"fmt"
	"sync"
	"testing"
)

func TestAppend_AssignsMonotonicSequence(t *testing.T) {
	a := NewAggregator()
	a.Append("c1", RoleCaller, "my card was declined")
	a.Append("c1", RoleAgentA, "let me check that")
	got := a.Snapshot("c1")
	if len(got) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(got))
	}
	if got[0].Sequence != 1 || got[1].Sequence != 2 {
		t.Fatalf("expected sequences 1,2, got %d,%d", got[0].Sequence, got[1].Sequence)
	}
	if got[0].Speaker != RoleCaller || got[1].Speaker != RoleAgentA {
		t.Fatalf("unexpected speakers: %+v", got)
	}
}

func TestAppend_DropsEmptyText(t *testing.T) {
	a := NewAggregator()
	a.Append("c1", RoleCaller, "   ")
	a.Append("c1", RoleCaller, "")
	if n := a.Count("c1"); n != 0 {
		t.Fatalf("expected empty utterances dropped, got %d", n)
	}
}

func TestAppend_ConcurrentNoGapsNoDuplicates(t *testing.T) {
	a := NewAggregator()
	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				a.Append("c1", RoleCaller, fmt.Sprintf("w%d-%d", w, i))
			}
		}(w)
	}
	wg.Wait()

	got := a.Snapshot("c1")
	if len(got) != writers*perWriter {
		t.Fatalf("expected %d utterances, got %d", writers*perWriter, len(got))
	}
	seen := make(map[uint64]bool, len(got))
	for i, u := range got {
		if seen[u.Sequence] {
			t.Fatalf("duplicate sequence %d", u.Sequence)
		}
		seen[u.Sequence] = true
		if u.Sequence != uint64(i+1) {
			t.Fatalf("gap at index %d: sequence %d", i, u.Sequence)
		}
	}
}

func TestSnapshot_IsolatedFromLaterAppends(t *testing.T) {
	a := NewAggregator()
	a.Append("c1", RoleCaller, "one")
	snap := a.Snapshot("c1")
	a.Append("c1", RoleCaller, "two")
	if len(snap) != 1 {
		t.Fatalf("snapshot must not grow after later appends, got %d", len(snap))
	}
}

func TestToText_RendersRoleLines(t *testing.T) {
	a := NewAggregator()
	a.Append("c1", RoleCaller, "hello")
	a.Append("c1", RoleAgentA, "hi there")
	want := "caller: hello\nagentA: hi there"
	if got := a.ToText("c1"); got != want {
		t.Fatalf("ToText = %q, want %q", got, want)
	}
	if a.ToText("missing") != "" {
		t.Fatalf("expected empty text for unknown conversation")
	}
}

func TestRetentionCap_DropsOldestFIFO(t *testing.T) {
	a := NewAggregator()
	a.maxUtterances = 3
	for i := 1; i <= 5; i++ {
		a.Append("c1", RoleCaller, fmt.Sprintf("line %d", i))
	}
	got := a.Snapshot("c1")
	if len(got) != 3 {
		t.Fatalf("expected 3 retained, got %d", len(got))
	}
	if got[0].Sequence != 3 || got[2].Sequence != 5 {
		t.Fatalf("expected oldest dropped, got sequences %d..%d", got[0].Sequence, got[2].Sequence)
	}
}

func TestReset_ClearsLog(t *testing.T) {
	a := NewAggregator()
	a.Append("c1", RoleCaller, "hello")
	a.Reset("c1")
	if n := a.Count("c1"); n != 0 {
		t.Fatalf("expected cleared log, got %d", n)
	}
}
