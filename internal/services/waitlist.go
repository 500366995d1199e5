package services

import (
	"errors"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jaypawar90171/LMS-sub001/internal/clock"
	"github.com/jaypawar90171/LMS-sub001/internal/metrics"
	"github.com/jaypawar90171/LMS-sub001/internal/models"
	"github.com/jaypawar90171/LMS-sub001/internal/repositories"
)

// WaitlistService owns queue membership: joining, leaving, and the
// administrative override that bypasses FIFO order. The automatic hand-off of
// a freed copy runs inside the return transaction (see CirculationService),
// which is what gives queued members priority over walk-ins.
type WaitlistService struct {
	db    TxRunner
	clk   clock.Clock
	users repositories.UserRepository
	items repositories.ItemRepository
	loans repositories.LoanRepository
	queue repositories.QueueRepository
	circ  *CirculationService
}

func NewWaitlistService(
	db TxRunner,
	clk clock.Clock,
	users repositories.UserRepository,
	items repositories.ItemRepository,
	loans repositories.LoanRepository,
	queue repositories.QueueRepository,
	circ *CirculationService,
) *WaitlistService {
	return &WaitlistService{
		db:    db,
		clk:   clk,
		users: users,
		items: items,
		loans: loans,
		queue: queue,
		circ:  circ,
	}
}

// Join appends the user to the item's waitlist. Joining while copies are
// available is rejected: the caller should issue instead.
func (s *WaitlistService) Join(itemID, userID uuid.UUID) (*models.QueueEntry, error) {
	unlock := s.circ.locks.lock(itemID)
	defer unlock()

	var entry *models.QueueEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		user, err := s.users.GetByID(tx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("user %s not found", userID)
			}
			return err
		}
		if !user.Active {
			return stateErr("user %s is not active", userID)
		}

		item, err := s.items.GetByIDForUpdate(tx, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("item %s not found", itemID)
			}
			return err
		}
		if item.AvailableCopies > 0 {
			return validationErr("item %s has available copies; issue it instead of queueing", itemID)
		}

		if _, err := s.loans.FindOpenByUserAndItem(tx, userID, itemID); err == nil {
			return conflictErr(ConflictAlreadyIssued, "user %s already holds item %s", userID, itemID)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if _, err := s.queue.GetByItemAndUser(tx, itemID, userID); err == nil {
			return conflictErr(ConflictAlreadyQueued, "user %s is already queued for item %s", userID, itemID)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		position, err := s.queue.NextPosition(tx, itemID)
		if err != nil {
			return err
		}
		entry = &models.QueueEntry{
			ItemID:     itemID,
			UserID:     userID,
			Position:   position,
			DateJoined: s.clk.Now(),
		}
		return s.queue.Create(tx, entry)
	})
	if err != nil {
		return nil, err
	}
	metrics.QueueJoins.Inc()
	log.Printf("[INFO] Join: item=%s user=%s position=%d", itemID, userID, entry.Position)
	return entry, nil
}

// Leave removes the user's entry and closes the positional gap it leaves.
func (s *WaitlistService) Leave(itemID, userID uuid.UUID) error {
	unlock := s.circ.locks.lock(itemID)
	defer unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		entry, err := s.queue.GetByItemAndUser(tx, itemID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("user %s is not queued for item %s", userID, itemID)
			}
			return err
		}
		if err := s.queue.Delete(tx, entry.ID); err != nil {
			return err
		}
		return s.queue.CompactAfter(tx, itemID, entry.Position)
	})
	if err != nil {
		return err
	}
	log.Printf("[INFO] Leave: item=%s user=%s", itemID, userID)
	return nil
}

// Allocate is the administrator override: it pulls the named user out of the
// queue regardless of position and issues an available copy directly to them.
func (s *WaitlistService) Allocate(itemID, userID uuid.UUID) (*models.Loan, error) {
	unlock := s.circ.locks.lock(itemID)
	defer unlock()

	var loan *models.Loan
	err := s.db.Transaction(func(tx *gorm.DB) error {
		entry, err := s.queue.GetByItemAndUser(tx, itemID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("user %s is not queued for item %s", userID, itemID)
			}
			return err
		}

		item, err := s.items.GetByIDForUpdate(tx, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("item %s not found", itemID)
			}
			return err
		}

		if err := s.queue.Delete(tx, entry.ID); err != nil {
			return err
		}
		if err := s.queue.CompactAfter(tx, itemID, entry.Position); err != nil {
			return err
		}

		loan, err = s.circ.issueTx(tx, item, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.QueueAllocations.Inc()
	log.Printf("[INFO] Allocate: item=%s user=%s loan=%s (admin override)", itemID, userID, loan.ID)
	return loan, nil
}

// ListQueue returns the item's waitlist in position order.
func (s *WaitlistService) ListQueue(itemID uuid.UUID) ([]models.QueueEntry, error) {
	return s.queue.ListByItem(nil, itemID)
}
