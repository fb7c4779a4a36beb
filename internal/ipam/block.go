package ipam

import (
	"encoding/binary"
	"net/netip"
)

// BlockRange returns the first and last address of an IPv4 prefix as
// integers. The store persists these bounds so overlap checks stay a
// plain range comparison in SQL.
func BlockRange(block netip.Prefix) (start, end uint32) {
	start = addrToUint32(block.Masked().Addr())
	end = start + uint32(blockSize(block.Bits())-1)
	return start, end
}

// ParseBlock parses a CIDR string into a masked IPv4 prefix.
func ParseBlock(cidr string) (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return netip.Prefix{}, err
	}
	return prefix.Masked(), nil
}

func blockSize(prefixLength int) uint64 {
	return uint64(1) << (32 - prefixLength)
}

func addrToUint32(addr netip.Addr) uint32 {
	raw := addr.As4()
	return binary.BigEndian.Uint32(raw[:])
}

func uint32ToAddr(value uint32) netip.Addr {
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], value)
	return netip.AddrFrom4(raw)
}

// containsBlock reports whether candidate lies fully inside pool.
func containsBlock(pool, candidate netip.Prefix) bool {
	candidateStart, candidateEnd := BlockRange(candidate)
	poolStart, poolEnd := BlockRange(pool)
	return poolStart <= candidateStart && candidateEnd <= poolEnd
}
