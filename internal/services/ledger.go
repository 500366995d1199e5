package services

import (
	"errors"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jaypawar90171/LMS-sub001/internal/models"
	"github.com/jaypawar90171/LMS-sub001/internal/repositories"
)

// CopyLedger is the single source of truth for copy status and the cached
// available-count on the item. Every status write adjusts the count in the
// same transaction, so the two are never observably out of sync.
type CopyLedger struct {
	db     TxRunner
	items  repositories.ItemRepository
	copies repositories.CopyRepository
}

func NewCopyLedger(db TxRunner, items repositories.ItemRepository, copies repositories.CopyRepository) *CopyLedger {
	return &CopyLedger{db: db, items: items, copies: copies}
}

// markIssuedTx transitions an AVAILABLE copy to ISSUED and decrements the
// item's available count. Callers must have selected the copy under a row
// lock in the same transaction.
func (l *CopyLedger) markIssuedTx(tx *gorm.DB, copy *models.Copy) error {
	if !models.CanTransitionCopy(copy.Status, models.CopyStatusIssued) {
		return stateErr("copy %s cannot move from %s to %s", copy.ID, copy.Status, models.CopyStatusIssued)
	}
	if err := l.copies.UpdateStatus(tx, copy.ID, models.CopyStatusIssued); err != nil {
		return err
	}
	if err := l.items.AdjustCounts(tx, copy.ItemID, 0, -1); err != nil {
		return err
	}
	copy.Status = models.CopyStatusIssued
	return nil
}

// markReturnedTx transitions an ISSUED copy out of circulation according to
// the observed condition. A damaged copy goes to UNDER_REPAIR and a lost one
// to LOST; neither re-enters the available pool. Returns whether the copy
// became available again.
func (l *CopyLedger) markReturnedTx(tx *gorm.DB, copy *models.Copy, condition models.CopyCondition) (bool, error) {
	if copy.Status != models.CopyStatusIssued {
		return false, stateErr("copy %s is %s, not issued", copy.ID, copy.Status)
	}

	var target models.CopyStatus
	switch condition {
	case models.CopyConditionDamaged:
		target = models.CopyStatusUnderRepair
	case models.CopyConditionLost:
		target = models.CopyStatusLost
	case models.CopyConditionGood:
		target = models.CopyStatusAvailable
	default:
		return false, validationErr("unknown copy condition %q", condition)
	}

	if !models.CanTransitionCopy(copy.Status, target) {
		return false, stateErr("copy %s cannot move from %s to %s", copy.ID, copy.Status, target)
	}
	if err := l.copies.UpdateStatus(tx, copy.ID, target); err != nil {
		return false, err
	}
	if condition != models.CopyConditionGood {
		if err := l.copies.UpdateCondition(tx, copy.ID, condition); err != nil {
			return false, err
		}
	}

	freed := target == models.CopyStatusAvailable
	if freed {
		if err := l.items.AdjustCounts(tx, copy.ItemID, 0, 1); err != nil {
			return false, err
		}
	}
	copy.Status = target
	return freed, nil
}

// SetBulkStatus is the administrative item-wide status change (e.g. marking a
// shelf MISPLACED after stocktake). Issued copies are excluded; the cached
// available count is recomputed from the copy rows afterwards.
func (l *CopyLedger) SetBulkStatus(itemID uuid.UUID, from []models.CopyStatus, to models.CopyStatus) (int64, error) {
	for _, f := range from {
		if f == models.CopyStatusIssued {
			return 0, validationErr("bulk status change may not include issued copies")
		}
		if !models.CanTransitionCopy(f, to) {
			return 0, stateErr("copies cannot move from %s to %s", f, to)
		}
	}

	var changed int64
	err := l.db.Transaction(func(tx *gorm.DB) error {
		if _, err := l.items.GetByIDForUpdate(tx, itemID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("item %s not found", itemID)
			}
			return err
		}

		n, err := l.copies.BulkUpdateStatus(tx, itemID, from, to)
		if err != nil {
			return err
		}
		changed = n

		return l.recountAvailableTx(tx, itemID)
	})
	if err != nil {
		return 0, err
	}
	log.Printf("[INFO] SetBulkStatus: item=%s moved %d copies %v -> %s", itemID, changed, from, to)
	return changed, nil
}

// recountAvailableTx resets the cached count from the copy rows; used by bulk
// changes where per-row deltas would be error-prone.
func (l *CopyLedger) recountAvailableTx(tx *gorm.DB, itemID uuid.UUID) error {
	available, err := l.copies.CountByStatus(tx, itemID, models.CopyStatusAvailable)
	if err != nil {
		return err
	}
	return l.items.SetAvailableCopies(tx, itemID, available)
}
