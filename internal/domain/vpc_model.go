package domain

import "time"

// VPC is a named logical network allocations are attached to.
type VPC struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:255;not null;uniqueIndex"`
	CreatedAt time.Time

	Allocations []Allocation `gorm:"foreignKey:VPCID"`
}
