package domain

import (
	"fmt"
	"net/netip"
	"time"

	"gorm.io/gorm"
)

// Allocation is one committed primary/CGNAT block pair. The CIDR text
// columns carry unique indexes as the last line of defense against a
// racing insert; the integer range bounds make the overlap predicate a
// plain comparison the database can index.
type Allocation struct {
	ID    uint64 `gorm:"primaryKey;autoIncrement"`
	VPCID uint64 `gorm:"not null;index"`
	VPC   VPC    `gorm:"foreignKey:VPCID"`

	PrimaryCIDR string `gorm:"size:43;not null;uniqueIndex"`
	CGNATCIDR   string `gorm:"size:43;not null;uniqueIndex"`

	PrimaryStart int64 `gorm:"not null;index:idx_allocations_primary_range"`
	PrimaryEnd   int64 `gorm:"not null;index:idx_allocations_primary_range"`
	CGNATStart   int64 `gorm:"not null;index:idx_allocations_cgnat_range"`
	CGNATEnd     int64 `gorm:"not null;index:idx_allocations_cgnat_range"`

	RequestedHosts  *int
	RequestedPrefix *int
	Labels          LabelSet `gorm:"type:json"`
	RequestID       string   `gorm:"size:64"`
	CreatedAt       time.Time
}

// BeforeCreate derives the integer range bounds from the CIDR text so
// they can never drift apart.
func (allocation *Allocation) BeforeCreate(_ *gorm.DB) error {
	primaryStart, primaryEnd, err := cidrBounds(allocation.PrimaryCIDR)
	if err != nil {
		return fmt.Errorf("primary cidr: %w", err)
	}
	cgnatStart, cgnatEnd, err := cidrBounds(allocation.CGNATCIDR)
	if err != nil {
		return fmt.Errorf("cgnat cidr: %w", err)
	}

	allocation.PrimaryStart = primaryStart
	allocation.PrimaryEnd = primaryEnd
	allocation.CGNATStart = cgnatStart
	allocation.CGNATEnd = cgnatEnd
	return nil
}

// PrefixLength returns the prefix length of one of the stored CIDRs.
func PrefixLength(cidr string) (int, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return 0, err
	}
	return prefix.Bits(), nil
}

func cidrBounds(cidr string) (start, end int64, err error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return 0, 0, err
	}
	if !prefix.Addr().Is4() {
		return 0, 0, fmt.Errorf("not an IPv4 prefix: %s", cidr)
	}

	raw := prefix.Masked().Addr().As4()
	start = int64(raw[0])<<24 | int64(raw[1])<<16 | int64(raw[2])<<8 | int64(raw[3])
	end = start + (1<<(32-prefix.Bits()) - 1)
	return start, end, nil
}
