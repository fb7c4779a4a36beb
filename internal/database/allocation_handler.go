package database

import (
	"errors"
	"fmt"

	"ipam/internal/api/dto"
	"ipam/internal/domain"
	"ipam/internal/ipam"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

// ListAllocations returns one page of allocations, ordered by VPC name
// and then by primary block base address, optionally filtered to one VPC.
func ListAllocations(policy ipam.Policy, limit, offset int, vpc string) (*dto.AllocationPage, error) {
	countQuery := DB.Model(&domain.Allocation{}).
		Joins("JOIN vpcs ON vpcs.id = allocations.vpc_id")
	if vpc != "" {
		countQuery = countQuery.Where("vpcs.name = ?", vpc)
	}

	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count allocations: %w", err)
	}

	query := DB.Model(&domain.Allocation{}).
		Preload("VPC").
		Joins("JOIN vpcs ON vpcs.id = allocations.vpc_id").
		Order("vpcs.name, allocations.primary_start").
		Limit(limit).
		Offset(offset)
	if vpc != "" {
		query = query.Where("vpcs.name = ?", vpc)
	}

	var allocations []domain.Allocation
	if err := query.Find(&allocations).Error; err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}

	page := &dto.AllocationPage{
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
		Items:      make([]dto.AllocationRow, 0, len(allocations)),
	}
	for i := range allocations {
		row, err := allocationRow(policy, &allocations[i])
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, row)
	}
	return page, nil
}

func allocationRow(policy ipam.Policy, allocation *domain.Allocation) (dto.AllocationRow, error) {
	primaryPrefix, err := domain.PrefixLength(allocation.PrimaryCIDR)
	if err != nil {
		return dto.AllocationRow{}, fmt.Errorf("stored primary cidr: %w", err)
	}
	cgnatPrefix, err := domain.PrefixLength(allocation.CGNATCIDR)
	if err != nil {
		return dto.AllocationRow{}, fmt.Errorf("stored cgnat cidr: %w", err)
	}

	return dto.AllocationRow{
		VPC:             allocation.VPC.Name,
		AllocationID:    allocation.ID,
		PrimaryCIDR:     allocation.PrimaryCIDR,
		UsablePrimary:   policy.UsableCount(primaryPrefix),
		CGNATCIDR:       allocation.CGNATCIDR,
		UsableCGNAT:     policy.UsableCount(cgnatPrefix),
		RequestedHosts:  allocation.RequestedHosts,
		RequestedPrefix: allocation.RequestedPrefix,
		Labels:          allocation.Labels.Clone(),
		RequestID:       allocation.RequestID,
		CreatedAt:       allocation.CreatedAt,
	}, nil
}

// CreateVPC inserts the VPC when it does not exist yet.
func CreateVPC(name string) error {
	err := DB.Where("name = ?", name).First(&domain.VPC{}).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lookup vpc: %w", err)
	}

	if err := DB.Create(&domain.VPC{Name: name}).Error; err != nil {
		return fmt.Errorf("create vpc: %w", err)
	}
	log.Info("Created VPC", "name", name)
	return nil
}

// DeleteVPC removes the VPC row; allocations pointing at it are removed
// first so no orphan records remain.
func DeleteVPC(name string) (bool, error) {
	var vpc domain.VPC
	err := DB.Where("name = ?", name).First(&vpc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup vpc: %w", err)
	}

	err = DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("vpc_id = ?", vpc.ID).Delete(&domain.Allocation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&vpc).Error
	})
	if err != nil {
		return false, fmt.Errorf("delete vpc: %w", err)
	}

	log.Info("Deleted VPC", "name", name)
	return true, nil
}

// ReassignAllocation moves an allocation to another VPC, creating the
// target VPC when needed. Returns gorm.ErrRecordNotFound when the
// allocation does not exist.
func ReassignAllocation(allocationID uint64, newVPCName string) error {
	return DB.Transaction(func(tx *gorm.DB) error {
		var allocation domain.Allocation
		if err := tx.First(&allocation, allocationID).Error; err != nil {
			return err
		}

		var vpc domain.VPC
		err := tx.Where("name = ?", newVPCName).First(&vpc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			vpc = domain.VPC{Name: newVPCName}
			err = tx.Create(&vpc).Error
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&allocation).Update("vpc_id", vpc.ID).Error; err != nil {
			return err
		}
		log.Info("Moved allocation", "allocation_id", allocationID, "new_vpc", newVPCName)
		return nil
	})
}

// DeleteAllocation removes one allocation; reports whether a row existed.
func DeleteAllocation(allocationID uint64) (bool, error) {
	result := DB.Delete(&domain.Allocation{}, allocationID)
	if result.Error != nil {
		return false, fmt.Errorf("delete allocation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	log.Info("Deleted allocation", "allocation_id", allocationID)
	return true, nil
}

// Ping verifies the database answers; used by the readiness probe.
func Ping() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
