package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"ipam/internal/domain"
	"ipam/internal/ipam"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres SQLSTATEs the retry loop cares about.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

// Store adapts the gorm connection to the allocator's transactional
// contract. Every allocation attempt runs in a serializable transaction;
// commit failures are classified so the allocator can tell transient
// contention from real faults.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// RunSerializable executes fn inside one serializable transaction. A
// non-nil error from fn rolls everything back; a commit-time conflict or
// uniqueness race is wrapped with the allocator's retryable sentinels.
func (s *Store) RunSerializable(ctx context.Context, fn func(tx ipam.Tx) error) error {
	tx := s.db.WithContext(ctx).Begin(&sql.TxOptions{Isolation: sql.LevelSerializable})
	if tx.Error != nil {
		return fmt.Errorf("begin transaction: %w", tx.Error)
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return classifyTxError(err)
	}
	committed = true
	return nil
}

type storeTx struct {
	tx *gorm.DB
}

func (t *storeTx) PrimaryOverlaps(block netip.Prefix) (bool, error) {
	return t.overlaps("primary_start", "primary_end", block)
}

func (t *storeTx) CGNATOverlaps(block netip.Prefix) (bool, error) {
	return t.overlaps("cgnat_start", "cgnat_end", block)
}

// overlaps checks range intersection against the persisted bounds:
// existing.start <= candidate.end AND existing.end >= candidate.start.
func (t *storeTx) overlaps(startColumn, endColumn string, block netip.Prefix) (bool, error) {
	blockStart, blockEnd := ipam.BlockRange(block)

	var ids []uint64
	err := t.tx.Model(&domain.Allocation{}).
		Where(startColumn+" <= ? AND "+endColumn+" >= ?", int64(blockEnd), int64(blockStart)).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return false, classifyTxError(fmt.Errorf("overlap query: %w", err))
	}
	return len(ids) > 0, nil
}

func (t *storeTx) EnsureVPC(name string) error {
	var existing domain.VPC
	err := t.tx.Where("name = ?", name).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return classifyTxError(err)
	}

	if err := t.tx.Create(&domain.VPC{Name: name}).Error; err != nil {
		return classifyTxError(err)
	}
	return nil
}

func (t *storeTx) InsertAllocation(rec ipam.NewAllocation) (uint64, error) {
	var vpc domain.VPC
	if err := t.tx.Where("name = ?", rec.VPCName).First(&vpc).Error; err != nil {
		return 0, classifyTxError(err)
	}

	allocation := domain.Allocation{
		VPCID:           vpc.ID,
		PrimaryCIDR:     rec.PrimaryBlock.String(),
		CGNATCIDR:       rec.CGNATBlock.String(),
		RequestedHosts:  rec.RequestedHosts,
		RequestedPrefix: rec.RequestedPrefix,
		Labels:          domain.LabelSet(rec.Labels),
		RequestID:       rec.RequestID,
	}
	if err := t.tx.Create(&allocation).Error; err != nil {
		return 0, classifyTxError(err)
	}
	return allocation.ID, nil
}

// classifyTxError maps driver errors to the allocator's retryable
// sentinels. Postgres is matched on SQLSTATE; the sqlite fallbacks keep
// the in-memory test databases on the same retry path.
func classifyTxError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", ipam.ErrTxConflict, pgErr.Code)
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ipam.ErrBlockTaken, pgErr.ConstraintName)
		}
		return err
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: duplicated key", ipam.ErrBlockTaken)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %s", ipam.ErrBlockTaken, msg)
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database table is locked"):
		return fmt.Errorf("%w: %s", ipam.ErrTxConflict, msg)
	}
	return err
}
