package ipam

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// MinHosts and MaxHosts bound a host-count sizing request.
	MinHosts = 1
	MaxHosts = 4000

	defaultMaxAttempts  = 5
	defaultRetryBackoff = 50 * time.Millisecond
)

// Request is one allocation (or sizing preview) request. Exactly one of
// Hosts and PrefixLength must be set.
type Request struct {
	VPC          string
	Hosts        *int
	PrefixLength *int
	Labels       map[string]string
	DryRun       bool
	RequestID    string
}

// Result is a committed allocation or, for dry runs, the block pair a
// commit would have produced.
type Result struct {
	AllocationID    uint64
	DryRun          bool
	VPC             string
	PrimaryBlock    netip.Prefix
	CGNATBlock      netip.Prefix
	PrimaryPrefix   int
	CGNATPrefix     int
	UsablePrimary   int
	UsableCGNAT     int
	RequestedHosts  *int
	RequestedPrefix *int
	Labels          map[string]string
	RequestID       string
}

// Sizing is the pure preview Calculate returns; no store is touched.
type Sizing struct {
	RequestedHosts        *int
	RequestedPrefix       *int
	CalculatedPrefix      int
	CGNATPrefix           int
	UsablePrimary         int
	UsableCGNAT           int
	TotalAddressesPrimary int
	TotalAddressesCGNAT   int
}

// Allocator carves non-overlapping block pairs out of the two pools.
// Safe for concurrent use; every attempt runs in its own store
// transaction and the bounded retry loop absorbs commit races.
type Allocator struct {
	store        Store
	policy       Policy
	primaryPool  netip.Prefix
	cgnatPool    netip.Prefix
	maxAttempts  int
	retryBackoff time.Duration
}

// Option tweaks allocator construction; unset knobs keep their
// defaults.
type Option func(*Allocator)

func WithPolicy(policy Policy) Option {
	return func(a *Allocator) { a.policy = policy }
}

func WithPools(primary, cgnat netip.Prefix) Option {
	return func(a *Allocator) {
		a.primaryPool = primary
		a.cgnatPool = cgnat
	}
}

func WithMaxAttempts(attempts int) Option {
	return func(a *Allocator) {
		if attempts > 0 {
			a.maxAttempts = attempts
		}
	}
}

func WithRetryBackoff(backoff time.Duration) Option {
	return func(a *Allocator) {
		if backoff > 0 {
			a.retryBackoff = backoff
		}
	}
}

func New(store Store, opts ...Option) *Allocator {
	allocator := &Allocator{
		store:        store,
		policy:       DefaultPolicy,
		primaryPool:  DefaultPrimaryPool,
		cgnatPool:    DefaultCGNATPool,
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(allocator)
	}
	return allocator
}

// Policy returns the sizing policy the allocator runs with.
func (a *Allocator) Policy() Policy {
	return a.policy
}

// Calculate resolves a sizing request without touching the store.
func (a *Allocator) Calculate(req Request) (*Sizing, error) {
	primaryPrefix, err := a.resolvePrefixLength(req)
	if err != nil {
		return nil, err
	}
	cgnatPrefix, err := a.policy.CGNATPrefixFor(primaryPrefix)
	if err != nil {
		return nil, err
	}

	return &Sizing{
		RequestedHosts:        req.Hosts,
		RequestedPrefix:       req.PrefixLength,
		CalculatedPrefix:      primaryPrefix,
		CGNATPrefix:           cgnatPrefix,
		UsablePrimary:         a.policy.UsableCount(primaryPrefix),
		UsableCGNAT:           a.policy.UsableCount(cgnatPrefix),
		TotalAddressesPrimary: int(blockSize(primaryPrefix)),
		TotalAddressesCGNAT:   int(blockSize(cgnatPrefix)),
	}, nil
}

// Allocate finds and persists a free primary/CGNAT block pair for the
// request. The whole attempt runs in one serializable transaction;
// conflicting commits are retried with linear backoff up to the attempt
// budget, after which contention surfaces as RETRY_EXHAUSTED — distinct
// from the non-retryable NO_SPACE a genuinely full pool produces.
func (a *Allocator) Allocate(ctx context.Context, req Request) (*Result, error) {
	primaryPrefix, err := a.resolvePrefixLength(req)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		result, err := a.attempt(ctx, req, primaryPrefix)
		if err == nil {
			return result, nil
		}

		if errors.Is(err, ErrTxConflict) || errors.Is(err, ErrBlockTaken) {
			log.Warn("allocation attempt lost a race",
				"vpc", req.VPC, "attempt", attempt, "max_attempts", a.maxAttempts, "error", err)
			if attempt == a.maxAttempts {
				return nil, &Failure{Code: CodeRetryExhausted, Message: "Allocation contention"}
			}
			if err := sleepContext(ctx, a.retryBackoff*time.Duration(attempt)); err != nil {
				return nil, internalFailure(err)
			}
			continue
		}

		if failure, ok := AsFailure(err); ok {
			return nil, failure
		}
		log.Error("allocation failed", "vpc", req.VPC, "attempt", attempt, "error", err)
		return nil, internalFailure(err)
	}

	return nil, internalFailure(fmt.Errorf("retry loop ended without outcome"))
}

func (a *Allocator) attempt(ctx context.Context, req Request, primaryPrefix int) (*Result, error) {
	var result *Result

	err := a.store.RunSerializable(ctx, func(tx Tx) error {
		if err := tx.EnsureVPC(req.VPC); err != nil {
			return fmt.Errorf("ensure vpc: %w", err)
		}

		primaryBlock, found, err := FindFreeBlock(a.primaryPool, primaryPrefix, OracleFunc(tx.PrimaryOverlaps))
		if err != nil {
			return fmt.Errorf("scan primary pool: %w", err)
		}
		if !found {
			return noSpace("primary", a.primaryPool.String(), primaryPrefix)
		}

		cgnatPrefix, err := a.policy.CGNATPrefixFor(primaryPrefix)
		if err != nil {
			return err
		}

		cgnatBlock, found, err := FindFreeBlock(a.cgnatPool, cgnatPrefix, OracleFunc(tx.CGNATOverlaps))
		if err != nil {
			return fmt.Errorf("scan cgnat pool: %w", err)
		}
		if !found {
			return noSpace("cgnat", a.cgnatPool.String(), cgnatPrefix)
		}

		result = &Result{
			DryRun:          req.DryRun,
			VPC:             req.VPC,
			PrimaryBlock:    primaryBlock,
			CGNATBlock:      cgnatBlock,
			PrimaryPrefix:   primaryPrefix,
			CGNATPrefix:     cgnatPrefix,
			UsablePrimary:   a.policy.UsableCount(primaryPrefix),
			UsableCGNAT:     a.policy.UsableCount(cgnatPrefix),
			RequestedHosts:  req.Hosts,
			RequestedPrefix: req.PrefixLength,
			Labels:          req.Labels,
			RequestID:       req.RequestID,
		}

		if req.DryRun {
			return errDryRunRollback
		}

		id, err := tx.InsertAllocation(NewAllocation{
			VPCName:         req.VPC,
			PrimaryBlock:    primaryBlock,
			CGNATBlock:      cgnatBlock,
			RequestedHosts:  req.Hosts,
			RequestedPrefix: req.PrefixLength,
			Labels:          req.Labels,
			RequestID:       req.RequestID,
		})
		if err != nil {
			return fmt.Errorf("insert allocation: %w", err)
		}
		result.AllocationID = id
		return nil
	})

	if errors.Is(err, errDryRunRollback) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolvePrefixLength validates the mutually exclusive hosts/prefix pair
// and resolves it to the primary prefix length. Violations are caller
// errors, never retried.
func (a *Allocator) resolvePrefixLength(req Request) (int, error) {
	switch {
	case req.Hosts != nil && req.PrefixLength != nil:
		return 0, badRequest("Specify either 'hosts' or 'prefix_length', not both")
	case req.Hosts == nil && req.PrefixLength == nil:
		return 0, badRequest("Must specify either 'hosts' or 'prefix_length'")
	case req.Hosts != nil:
		hosts := *req.Hosts
		if hosts < MinHosts || hosts > MaxHosts {
			return 0, badRequest("hosts must be between %d and %d", MinHosts, MaxHosts)
		}
		return a.policy.HostsToPrefixLength(hosts), nil
	default:
		prefixLength := *req.PrefixLength
		if prefixLength < a.policy.MinPrefix || prefixLength > a.policy.MaxPrefix {
			return 0, badRequest("prefix_length must be between %d and %d", a.policy.MinPrefix, a.policy.MaxPrefix)
		}
		return prefixLength, nil
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
