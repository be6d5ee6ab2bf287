package boxfs

import "testing"

func TestSpaceManagerInitializeNew(t *testing.T) {
	s := newSpaceManager(100)
	s.initializeNew(10)
	if got := s.totalFreeBlocks(); got != 90 {
		t.Fatalf("totalFreeBlocks() = %d, want 90", got)
	}

	s2 := newSpaceManager(10)
	s2.initializeNew(10)
	if got := s2.totalFreeBlocks(); got != 0 {
		t.Fatalf("totalFreeBlocks() = %d, want 0 when fully reserved", got)
	}
}

func TestSpaceManagerAllocateFirstFit(t *testing.T) {
	s := newSpaceManager(100)
	s.initializeNew(0)

	e, ok := s.allocate(10)
	if !ok || e.startBlock != 0 || e.blockCount != 10 {
		t.Fatalf("allocate(10) = %+v, %v", e, ok)
	}
	if got := s.totalFreeBlocks(); got != 90 {
		t.Fatalf("totalFreeBlocks() = %d, want 90", got)
	}

	e2, ok := s.allocate(90)
	if !ok || e2.startBlock != 10 || e2.blockCount != 90 {
		t.Fatalf("allocate(90) = %+v, %v", e2, ok)
	}

	if _, ok := s.allocate(1); ok {
		t.Fatalf("expected allocate(1) to fail once space is exhausted")
	}
}

func TestSpaceManagerAllocateMultipleAcrossFragments(t *testing.T) {
	s := newSpaceManager(100)
	s.setFreeExtents(extentList{
		{startBlock: 0, blockCount: 5},
		{startBlock: 10, blockCount: 5},
		{startBlock: 50, blockCount: 20},
	})

	taken := s.allocateMultiple(12)
	if taken == nil {
		t.Fatalf("allocateMultiple(12) = nil, want extents")
	}
	if got := taken.totalBlocks(); got != 12 {
		t.Fatalf("taken.totalBlocks() = %d, want 12", got)
	}
	if err := s.validate(); err != nil {
		t.Fatalf("validate() after allocateMultiple: %v", err)
	}
}

func TestSpaceManagerAllocateMultipleRollsBackOnInsufficientSpace(t *testing.T) {
	s := newSpaceManager(10)
	s.setFreeExtents(extentList{{startBlock: 0, blockCount: 5}})

	taken := s.allocateMultiple(100)
	if taken != nil {
		t.Fatalf("allocateMultiple(100) = %v, want nil", taken)
	}
	if got := s.totalFreeBlocks(); got != 5 {
		t.Fatalf("totalFreeBlocks() = %d after failed alloc, want 5 (rolled back)", got)
	}
}

func TestSpaceManagerFreeCoalesces(t *testing.T) {
	s := newSpaceManager(100)
	s.setFreeExtents(extentList{{startBlock: 0, blockCount: 5}})

	s.free(extent{startBlock: 5, blockCount: 5})

	free := s.freeExtents()
	if len(free) != 1 || free[0].startBlock != 0 || free[0].blockCount != 10 {
		t.Fatalf("free list after coalescing = %+v, want single {0 10}", free)
	}
}

func TestSpaceManagerFreeAllAndValidate(t *testing.T) {
	s := newSpaceManager(100)
	s.setFreeExtents(extentList{{startBlock: 20, blockCount: 10}})

	s.freeAll(extentList{
		{startBlock: 0, blockCount: 10},
		{startBlock: 10, blockCount: 10},
	})

	free := s.freeExtents()
	if len(free) != 1 || free[0].startBlock != 0 || free[0].blockCount != 30 {
		t.Fatalf("free list after freeAll = %+v, want single {0 30}", free)
	}
	if err := s.validate(); err != nil {
		t.Fatalf("validate(): %v", err)
	}
}

func TestSpaceManagerValidateRejectsOverlap(t *testing.T) {
	s := newSpaceManager(100)
	s.freeList = extentList{{startBlock: 0, blockCount: 10}, {startBlock: 5, blockCount: 10}}
	if err := s.validate(); err == nil {
		t.Fatalf("expected validate() to reject overlapping entries")
	}
}

func TestSpaceManagerValidateRejectsOutOfBounds(t *testing.T) {
	s := newSpaceManager(10)
	s.freeList = extentList{{startBlock: 5, blockCount: 10}}
	if err := s.validate(); err == nil {
		t.Fatalf("expected validate() to reject an extent past totalBlocks")
	}
}

func TestSpaceManagerLargestFreeExtent(t *testing.T) {
	s := newSpaceManager(100)
	if _, ok := s.largestFreeExtent(); ok {
		t.Fatalf("expected ok=false on empty free list")
	}

	s.setFreeExtents(extentList{{startBlock: 0, blockCount: 3}, {startBlock: 50, blockCount: 20}})
	best, ok := s.largestFreeExtent()
	if !ok || best.blockCount != 20 {
		t.Fatalf("largestFreeExtent() = %+v, %v", best, ok)
	}
}
