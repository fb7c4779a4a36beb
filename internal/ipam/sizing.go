package ipam

import (
	"math/bits"
	"net/netip"
)

// Well-known parent ranges blocks are carved from. Fixed at startup,
// never mutated, and guaranteed disjoint.
var (
	DefaultPrimaryPool = netip.MustParsePrefix("10.0.0.0/16")
	DefaultCGNATPool   = netip.MustParsePrefix("100.64.0.0/10")
)

// Policy carries the sizing parameters. The defaults are load-bearing:
// existing deployments depend on the exact reserve and clamp values.
type Policy struct {
	Reserve     int // addresses withheld from every block (network, broadcast, gateway, 2 spare)
	MinPrefix   int // largest block a request can get
	MaxPrefix   int // smallest block a request can get
	CGNATOffset int // cgnat prefix = primary prefix - offset
}

var DefaultPolicy = Policy{
	Reserve:     5,
	MinPrefix:   20,
	MaxPrefix:   26,
	CGNATOffset: 5,
}

// HostsToPrefixLength converts a requested host count into the prefix
// length of the smallest power-of-two block holding hosts+Reserve
// addresses, clamped to [MinPrefix, MaxPrefix]. The clamp can leave a
// near-capacity request under-provisioned at MinPrefix; that is the
// established policy, not an error.
func (p Policy) HostsToPrefixLength(hosts int) int {
	needed := hosts + p.Reserve
	if needed < 1 {
		needed = 1
	}
	hostBits := ceilLog2(needed)
	prefixLength := 32 - hostBits
	if prefixLength < p.MinPrefix {
		prefixLength = p.MinPrefix
	}
	if prefixLength > p.MaxPrefix {
		prefixLength = p.MaxPrefix
	}
	return prefixLength
}

// UsableCount returns the addresses left after the policy reserve.
func (p Policy) UsableCount(prefixLength int) int {
	return (1 << (32 - prefixLength)) - p.Reserve
}

// CGNATPrefixFor derives the CGNAT prefix length paired with a primary
// block. Explicit prefix input is bounded to [20,26] so the result stays
// in [15,21]; the negative check keeps that invariant explicit.
func (p Policy) CGNATPrefixFor(primaryPrefixLength int) (int, error) {
	cgnatPrefix := primaryPrefixLength - p.CGNATOffset
	if cgnatPrefix < 0 {
		return 0, badPolicy("Computed CGNAT prefix invalid")
	}
	return cgnatPrefix, nil
}

func ceilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}
