package entitystore

import "testing"

func TestAllocateResolveFree(t *testing.T) {
	s := New(4, nil)

	e, err := s.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	s.SetLocation(e, Location{ArchetypeID: 1, Row: 0})

	loc, ok := s.Resolve(e)
	if !ok {
		t.Fatalf("Resolve(%v) = not ok, want ok", e)
	}
	if loc.ArchetypeID != 1 || loc.Row != 0 {
		t.Fatalf("Resolve(%v) = %+v, want {1 0}", e, loc)
	}

	s.Free(e)
	if _, ok := s.Resolve(e); ok {
		t.Fatalf("Resolve(%v) after Free = ok, want stale", e)
	}

	e2, err := s.Allocate()
	if err != nil {
		t.Fatalf("Allocate after free: %v", err)
	}
	if e2.Slot != e.Slot {
		t.Fatalf("expected slot reuse, got new slot %d vs freed %d", e2.Slot, e.Slot)
	}
	if e2.Generation <= e.Generation {
		t.Fatalf("generation did not advance: old=%d new=%d", e.Generation, e2.Generation)
	}
	if _, ok := s.Resolve(e); ok {
		t.Fatalf("old handle %v resolves after slot reuse", e)
	}
	if _, ok := s.Resolve(e2); !ok {
		t.Fatalf("new handle %v does not resolve", e2)
	}
}

func TestFreeStaleIsNoop(t *testing.T) {
	s := New(2, nil)
	e, _ := s.Allocate()
	s.Free(e)
	before := s.slots[e.Slot].generation
	s.Free(e) // double-free of now-stale handle
	if s.slots[e.Slot].generation != before {
		t.Fatalf("double Free mutated generation: before=%d after=%d", before, s.slots[e.Slot].generation)
	}
}

func TestExhaustion(t *testing.T) {
	s := New(2, nil)
	if _, err := s.Allocate(); err != nil {
		t.Fatalf("Allocate 1: %v", err)
	}
	if _, err := s.Allocate(); err != nil {
		t.Fatalf("Allocate 2: %v", err)
	}
	if _, err := s.Allocate(); err != ErrExhausted {
		t.Fatalf("Allocate 3 = %v, want ErrExhausted", err)
	}
}

func TestGenerationMonotonicity(t *testing.T) {
	s := New(1, nil)
	var lastGen uint32
	for i := 0; i < 5; i++ {
		e, err := s.Allocate()
		if err != nil {
			t.Fatalf("iter %d: Allocate: %v", i, err)
		}
		if e.Generation < lastGen {
			t.Fatalf("iter %d: generation went backwards: %d < %d", i, e.Generation, lastGen)
		}
		lastGen = e.Generation
		s.Free(e)
	}
}

func TestResolveOutOfRange(t *testing.T) {
	s := New(2, nil)
	if _, ok := s.Resolve(Entity{Generation: 1, Slot: 99}); ok {
		t.Fatalf("Resolve out-of-range slot = ok, want false")
	}
}
