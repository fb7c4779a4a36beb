package ipam

import (
	"context"
	"errors"
	"net/netip"
)

// Classification of commit-time store failures. The adapter in
// internal/database wraps its driver errors with one of these so the
// retry loop can tell transient contention from real faults.
var (
	// ErrTxConflict marks a serialization or deadlock failure between
	// concurrent attempts. Retryable.
	ErrTxConflict = errors.New("transaction conflict")
	// ErrBlockTaken marks a uniqueness violation on a block value from a
	// last-instant race. Retryable.
	ErrBlockTaken = errors.New("block already taken")
)

// errDryRunRollback aborts the transaction of a dry run after the block
// pair has been computed. Never surfaced to callers.
var errDryRunRollback = errors.New("dry run rollback")

// NewAllocation is the record a successful attempt persists.
type NewAllocation struct {
	VPCName         string
	PrimaryBlock    netip.Prefix
	CGNATBlock      netip.Prefix
	RequestedHosts  *int
	RequestedPrefix *int
	Labels          map[string]string
	RequestID       string
}

// Tx is one isolated unit of work against the allocation set. Overlap
// queries see a snapshot consistent for the whole attempt.
type Tx interface {
	PrimaryOverlaps(block netip.Prefix) (bool, error)
	CGNATOverlaps(block netip.Prefix) (bool, error)
	EnsureVPC(name string) error
	InsertAllocation(rec NewAllocation) (uint64, error)
}

// Store runs one allocation attempt inside a transaction with
// serializable semantics: two concurrent attempts must never both commit
// overlapping blocks. A non-nil error from fn rolls the work back.
type Store interface {
	RunSerializable(ctx context.Context, fn func(tx Tx) error) error
}
