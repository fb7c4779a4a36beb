package ipam

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// memoryStore emulates a serializable store with optimistic concurrency:
// a transaction works against the snapshot taken at begin and its commit
// fails with ErrTxConflict when anything committed in between.
type memoryStore struct {
	mu          sync.Mutex
	version     int
	allocations []memoryAllocation
	vpcs        map[string]bool

	insertErr error // injected once on the next insert
}

type memoryAllocation struct {
	id      uint64
	vpc     string
	primary netip.Prefix
	cgnat   netip.Prefix
}

func newMemoryStore() *memoryStore {
	return &memoryStore{vpcs: map[string]bool{}}
}

type memoryTx struct {
	store    *memoryStore
	version  int
	snapshot []memoryAllocation
	inserted []memoryAllocation
	vpcs     []string
}

func (s *memoryStore) RunSerializable(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	tx := &memoryTx{
		store:    s,
		version:  s.version,
		snapshot: append([]memoryAllocation(nil), s.allocations...),
	}
	s.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != tx.version {
		return fmt.Errorf("%w: concurrent commit", ErrTxConflict)
	}
	s.version++
	s.allocations = append(s.allocations, tx.inserted...)
	for _, name := range tx.vpcs {
		s.vpcs[name] = true
	}
	return nil
}

func (t *memoryTx) overlaps(block netip.Prefix, pick func(memoryAllocation) netip.Prefix) (bool, error) {
	blockStart, blockEnd := BlockRange(block)
	for _, allocation := range append(t.snapshot, t.inserted...) {
		existingStart, existingEnd := BlockRange(pick(allocation))
		if existingStart <= blockEnd && existingEnd >= blockStart {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) PrimaryOverlaps(block netip.Prefix) (bool, error) {
	return t.overlaps(block, func(a memoryAllocation) netip.Prefix { return a.primary })
}

func (t *memoryTx) CGNATOverlaps(block netip.Prefix) (bool, error) {
	return t.overlaps(block, func(a memoryAllocation) netip.Prefix { return a.cgnat })
}

func (t *memoryTx) EnsureVPC(name string) error {
	t.vpcs = append(t.vpcs, name)
	return nil
}

func (t *memoryTx) InsertAllocation(rec NewAllocation) (uint64, error) {
	t.store.mu.Lock()
	injected := t.store.insertErr
	t.store.insertErr = nil
	t.store.mu.Unlock()
	if injected != nil {
		return 0, injected
	}

	id := uint64(len(t.snapshot) + len(t.inserted) + 1)
	t.inserted = append(t.inserted, memoryAllocation{
		id:      id,
		vpc:     rec.VPCName,
		primary: rec.PrimaryBlock,
		cgnat:   rec.CGNATBlock,
	})
	return id, nil
}

func (s *memoryStore) committed() []memoryAllocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]memoryAllocation(nil), s.allocations...)
}

func intPtr(v int) *int { return &v }

func testAllocator(store Store) *Allocator {
	return New(store, WithRetryBackoff(time.Millisecond))
}

func TestAllocateValidation(t *testing.T) {
	allocator := testAllocator(newMemoryStore())
	ctx := context.Background()

	cases := []struct {
		name string
		req  Request
	}{
		{"both set", Request{VPC: "a", Hosts: intPtr(10), PrefixLength: intPtr(24)}},
		{"neither set", Request{VPC: "a"}},
		{"hosts too small", Request{VPC: "a", Hosts: intPtr(0)}},
		{"hosts too large", Request{VPC: "a", Hosts: intPtr(4001)}},
		{"prefix too small", Request{VPC: "a", PrefixLength: intPtr(19)}},
		{"prefix too large", Request{VPC: "a", PrefixLength: intPtr(27)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := allocator.Allocate(ctx, tc.req)
			failure, ok := AsFailure(err)
			if !ok || failure.Code != CodeBadRequest {
				t.Fatalf("Allocate(%+v) returned %v, want BAD_REQUEST", tc.req, err)
			}
		})
	}
}

func TestAllocatePairsBlocks(t *testing.T) {
	store := newMemoryStore()
	allocator := testAllocator(store)

	result, err := allocator.Allocate(context.Background(), Request{
		VPC:   "production",
		Hosts: intPtr(500),
	})
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}

	if result.PrimaryBlock.String() != "10.0.0.0/23" {
		t.Errorf("primary block %s, want 10.0.0.0/23", result.PrimaryBlock)
	}
	if result.CGNATBlock.String() != "100.64.0.0/18" {
		t.Errorf("cgnat block %s, want 100.64.0.0/18", result.CGNATBlock)
	}
	if result.CGNATPrefix != result.PrimaryPrefix-5 {
		t.Errorf("cgnat prefix %d not primary-5", result.CGNATPrefix)
	}
	if result.UsablePrimary != 507 {
		t.Errorf("usable primary %d, want 507", result.UsablePrimary)
	}
	if len(store.committed()) != 1 {
		t.Fatalf("store has %d allocations, want 1", len(store.committed()))
	}
}

func TestAllocateSequentialBlocksDoNotOverlap(t *testing.T) {
	store := newMemoryStore()
	allocator := testAllocator(store)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := allocator.Allocate(ctx, Request{VPC: "seq", PrefixLength: intPtr(24)}); err != nil {
			t.Fatalf("allocation %d failed: %v", i, err)
		}
	}

	assertDisjoint(t, store.committed())
}

func TestAllocateDryRun(t *testing.T) {
	store := newMemoryStore()
	allocator := testAllocator(store)
	ctx := context.Background()

	preview, err := allocator.Allocate(ctx, Request{VPC: "dry", Hosts: intPtr(100), DryRun: true})
	if err != nil {
		t.Fatalf("dry run returned error: %v", err)
	}
	if !preview.DryRun || preview.AllocationID != 0 {
		t.Fatalf("dry run result %+v not marked as preview", preview)
	}
	if len(store.committed()) != 0 {
		t.Fatal("dry run persisted an allocation")
	}

	// A real call right after must hand out exactly the previewed pair.
	committed, err := allocator.Allocate(ctx, Request{VPC: "dry", Hosts: intPtr(100)})
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}
	if committed.PrimaryBlock != preview.PrimaryBlock || committed.CGNATBlock != preview.CGNATBlock {
		t.Fatalf("committed pair %s/%s differs from preview %s/%s",
			committed.PrimaryBlock, committed.CGNATBlock, preview.PrimaryBlock, preview.CGNATBlock)
	}
}

func TestAllocateNoSpaceIsNotRetried(t *testing.T) {
	store := newMemoryStore()
	// A /16 primary pool fits exactly 16 /20 blocks.
	allocator := testAllocator(store)
	ctx := context.Background()

	for i := 0; i < 16; i++ {
		if _, err := allocator.Allocate(ctx, Request{VPC: "full", PrefixLength: intPtr(20)}); err != nil {
			t.Fatalf("allocation %d failed: %v", i, err)
		}
	}

	_, err := allocator.Allocate(ctx, Request{VPC: "full", PrefixLength: intPtr(20)})
	failure, ok := AsFailure(err)
	if !ok || failure.Code != CodeNoSpace {
		t.Fatalf("exhausted pool returned %v, want NO_SPACE", err)
	}
}

func TestAllocateRetriesBlockTakenRace(t *testing.T) {
	store := newMemoryStore()
	store.insertErr = fmt.Errorf("%w: allocations_primary_cidr", ErrBlockTaken)
	allocator := testAllocator(store)

	result, err := allocator.Allocate(context.Background(), Request{VPC: "racy", Hosts: intPtr(50)})
	if err != nil {
		t.Fatalf("Allocate did not recover from a block race: %v", err)
	}
	if result.AllocationID == 0 {
		t.Fatal("retried allocation has no id")
	}
}

func TestAllocateRetryExhausted(t *testing.T) {
	store := newMemoryStore()
	allocator := New(conflictStore{store}, WithMaxAttempts(3), WithRetryBackoff(time.Millisecond))

	_, err := allocator.Allocate(context.Background(), Request{VPC: "contended", Hosts: intPtr(50)})
	failure, ok := AsFailure(err)
	if !ok || failure.Code != CodeRetryExhausted {
		t.Fatalf("persistent contention returned %v, want RETRY_EXHAUSTED", err)
	}
}

// conflictStore fails every commit with a serialization conflict.
type conflictStore struct {
	inner *memoryStore
}

func (s conflictStore) RunSerializable(ctx context.Context, fn func(tx Tx) error) error {
	if err := s.inner.RunSerializable(ctx, fn); err != nil {
		return err
	}
	return fmt.Errorf("%w: injected", ErrTxConflict)
}

func TestAllocateFatalStoreErrorIsNotRetried(t *testing.T) {
	store := newMemoryStore()
	store.insertErr = fmt.Errorf("disk on fire")
	allocator := testAllocator(store)

	_, err := allocator.Allocate(context.Background(), Request{VPC: "broken", Hosts: intPtr(50)})
	failure, ok := AsFailure(err)
	if !ok || failure.Code != CodeInternal {
		t.Fatalf("fatal store error returned %v, want INTERNAL_ERROR", err)
	}
	if len(store.committed()) != 0 {
		t.Fatal("fatal error left a committed allocation behind")
	}
}

func TestAllocateConcurrentCallersGetDisjointBlocks(t *testing.T) {
	store := newMemoryStore()
	// Capacity for exactly N /24 primary blocks in a /19 pool.
	const n = 32
	allocator := New(store,
		WithPools(mustPrefix(t, "10.0.0.0/19"), DefaultCGNATPool),
		WithMaxAttempts(n+2),
		WithRetryBackoff(time.Millisecond),
	)

	var group errgroup.Group
	for i := 0; i < n; i++ {
		group.Go(func() error {
			_, err := allocator.Allocate(context.Background(), Request{VPC: "load", PrefixLength: intPtr(24)})
			return err
		})
	}
	if err := group.Wait(); err != nil {
		t.Fatalf("concurrent allocation failed: %v", err)
	}

	committed := store.committed()
	if len(committed) != n {
		t.Fatalf("%d allocations committed, want %d", len(committed), n)
	}
	assertDisjoint(t, committed)
}

func TestCalculate(t *testing.T) {
	allocator := testAllocator(newMemoryStore())

	sizing, err := allocator.Calculate(Request{Hosts: intPtr(500)})
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}
	if sizing.CalculatedPrefix != 23 || sizing.CGNATPrefix != 18 {
		t.Fatalf("Calculate sized /%d with cgnat /%d, want /23 and /18", sizing.CalculatedPrefix, sizing.CGNATPrefix)
	}
	if sizing.TotalAddressesPrimary != 512 || sizing.UsablePrimary != 507 {
		t.Fatalf("Calculate totals %d/%d, want 512/507", sizing.TotalAddressesPrimary, sizing.UsablePrimary)
	}

	if _, err := allocator.Calculate(Request{}); err == nil {
		t.Fatal("Calculate accepted an empty request")
	}
}

func assertDisjoint(t *testing.T, allocations []memoryAllocation) {
	t.Helper()
	for i := range allocations {
		for j := i + 1; j < len(allocations); j++ {
			for _, pair := range [][2]netip.Prefix{
				{allocations[i].primary, allocations[j].primary},
				{allocations[i].cgnat, allocations[j].cgnat},
				{allocations[i].primary, allocations[j].cgnat},
				{allocations[i].cgnat, allocations[j].primary},
			} {
				if pair[0].Overlaps(pair[1]) {
					t.Fatalf("allocations %d and %d overlap: %s and %s",
						allocations[i].id, allocations[j].id, pair[0], pair[1])
				}
			}
		}
	}
}
