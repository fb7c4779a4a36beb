package ipam

import (
	"net/netip"

	"github.com/charmbracelet/log"
)

// OverlapOracle answers whether any persisted allocation intersects a
// candidate block. Implementations must read from the transaction the
// current allocation attempt runs in, never from a cached snapshot.
type OverlapOracle interface {
	Overlaps(block netip.Prefix) (bool, error)
}

// OracleFunc adapts a plain function to an OverlapOracle.
type OracleFunc func(block netip.Prefix) (bool, error)

func (f OracleFunc) Overlaps(block netip.Prefix) (bool, error) {
	return f(block)
}

// FindFreeBlock scans pool for the lowest free, aligned block of the
// requested size. Candidates are visited in strictly ascending base
// address order so allocation is reproducible: the scan starts at the
// pool base rounded up to block alignment and steps by the block size
// while the candidate still fits inside the pool. Returns found=false
// when the pool has no room left at that size.
func FindFreeBlock(pool netip.Prefix, prefixLength int, oracle OverlapOracle) (block netip.Prefix, found bool, err error) {
	size := blockSize(prefixLength)
	poolStart, poolEnd := BlockRange(pool)

	current := uint64(poolStart)
	if rem := current % size; rem != 0 {
		current += size - rem
	}

	checked := 0
	for ; current+size-1 <= uint64(poolEnd); current += size {
		candidate := netip.PrefixFrom(uint32ToAddr(uint32(current)), prefixLength)
		checked++

		// Boundary guard for pools whose size is not an exact multiple
		// of the block size.
		if !containsBlock(pool, candidate) {
			continue
		}

		taken, err := oracle.Overlaps(candidate)
		if err != nil {
			return netip.Prefix{}, false, err
		}
		if !taken {
			log.Debug("found free block", "block", candidate.String(), "candidates_checked", checked)
			return candidate, true, nil
		}
	}

	log.Debug("pool exhausted for prefix", "pool", pool.String(), "prefix_length", prefixLength, "candidates_checked", checked)
	return netip.Prefix{}, false, nil
}
