package services

import (
	"errors"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jaypawar90171/LMS-sub001/internal/clock"
	"github.com/jaypawar90171/LMS-sub001/internal/config"
	"github.com/jaypawar90171/LMS-sub001/internal/metrics"
	"github.com/jaypawar90171/LMS-sub001/internal/models"
	"github.com/jaypawar90171/LMS-sub001/internal/repositories"
)

// CirculationService issues, returns, and extends loans against the copy
// ledger. A per-item mutex plus row locks inside each transaction keep the
// "claim one available copy or fail" step atomic.
type CirculationService struct {
	db       TxRunner
	cfg      config.Config
	clk      clock.Clock
	users    repositories.UserRepository
	items    repositories.ItemRepository
	copies   repositories.CopyRepository
	loans    repositories.LoanRepository
	queue    repositories.QueueRepository
	renewals repositories.RenewalRepository
	ledger   *CopyLedger
	fines    *FineService
	notifier Notifier
	locks    *itemLocks
}

func NewCirculationService(
	db TxRunner,
	cfg config.Config,
	clk clock.Clock,
	users repositories.UserRepository,
	items repositories.ItemRepository,
	copies repositories.CopyRepository,
	loans repositories.LoanRepository,
	queue repositories.QueueRepository,
	renewals repositories.RenewalRepository,
	ledger *CopyLedger,
	fines *FineService,
	notifier Notifier,
) *CirculationService {
	return &CirculationService{
		db:       db,
		cfg:      cfg,
		clk:      clk,
		users:    users,
		items:    items,
		copies:   copies,
		loans:    loans,
		queue:    queue,
		renewals: renewals,
		ledger:   ledger,
		fines:    fines,
		notifier: notifier,
		locks:    newItemLocks(),
	}
}

// ─── Issue ────────────────────────────────────────────────────────────────────

// Issue claims one available copy of the item for the user. A NoCopyAvailable
// conflict tells the caller to offer JoinQueue instead.
func (s *CirculationService) Issue(itemID, userID uuid.UUID) (*models.Loan, error) {
	unlock := s.locks.lock(itemID)
	defer unlock()

	var loan *models.Loan
	err := s.db.Transaction(func(tx *gorm.DB) error {
		item, err := s.items.GetByIDForUpdate(tx, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("item %s not found", itemID)
			}
			return err
		}
		loan, err = s.issueTx(tx, item, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Issue: loan=%s item=%s user=%s due=%s",
		loan.ID, itemID, userID, loan.DueDate.Format("2006-01-02"))
	return loan, nil
}

// issueTx runs the full guarded issue inside an open transaction with the
// item row already locked. Shared by Issue, the freed-copy hand-off, and the
// administrative waitlist override.
func (s *CirculationService) issueTx(tx *gorm.DB, item *models.Item, userID uuid.UUID) (*models.Loan, error) {
	if err := s.checkEligibilityTx(tx, item.ID, userID); err != nil {
		return nil, err
	}

	copy, err := s.copies.FindAvailableForUpdate(tx, item.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, conflictErr(ConflictNoCopyAvailable, "no available copy of item %s", item.ID)
		}
		return nil, err
	}

	return s.createLoanTx(tx, item, copy, userID)
}

// checkEligibilityTx holds every caller-independent issue guard, so the
// waitlist hand-off can reuse it to decide whether the queue head is still
// entitled to the freed copy.
func (s *CirculationService) checkEligibilityTx(tx *gorm.DB, itemID, userID uuid.UUID) error {
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

	if _, err := s.loans.FindOpenByUserAndItem(tx, userID, itemID); err == nil {
		return conflictErr(ConflictAlreadyIssued, "user %s already holds an open loan for item %s", userID, itemID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	open, err := s.loans.CountOpenByUser(tx, userID)
	if err != nil {
		return err
	}
	if open >= s.cfg.MaxConcurrentItems {
		return limitErr(s.cfg.MaxConcurrentItems, "user %s holds the maximum of %d items", userID, s.cfg.MaxConcurrentItems)
	}

	if s.cfg.MaxOutstandingFine > 0 {
		outstanding, err := s.fines.outstandingForUserTx(tx, userID)
		if err != nil {
			return err
		}
		if outstanding > s.cfg.MaxOutstandingFine {
			return limitErr(int(math.Round(s.cfg.MaxOutstandingFine)),
				"user %s has %.2f in outstanding fines (limit %.2f)", userID, outstanding, s.cfg.MaxOutstandingFine)
		}
	}
	return nil
}

// createLoanTx marks the already-locked copy issued and writes the loan.
func (s *CirculationService) createLoanTx(tx *gorm.DB, item *models.Item, copy *models.Copy, userID uuid.UUID) (*models.Loan, error) {
	if err := s.ledger.markIssuedTx(tx, copy); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	loan := &models.Loan{
		ItemID:               item.ID,
		CopyID:               copy.ID,
		UserID:               userID,
		Status:               models.LoanStatusIssued,
		IssuedDate:           now,
		DueDate:              now.AddDate(0, 0, item.DefaultReturnPeriodDays),
		MaxExtensionsAllowed: s.cfg.MaxPeriodExtensions,
	}
	if err := s.loans.Create(tx, loan); err != nil {
		return nil, err
	}
	metrics.LoansIssued.Inc()
	return loan, nil
}

// ─── Return ───────────────────────────────────────────────────────────────────

// ReturnResult carries the closed loan, every fine settled or raised at
// return time (an overdue loan returned damaged yields two), and the loan
// created for a waiting member when the freed copy was handed straight on.
type ReturnResult struct {
	Loan          *models.Loan   `json:"loan"`
	Fines         []*models.Fine `json:"fines,omitempty"`
	AllocatedLoan *models.Loan   `json:"allocated_loan,omitempty"`
}

// Return closes a loan. An overdue loan gets its final fine settled at the
// return instant; a damaged or lost copy leaves circulation and raises a
// base-amount fine; a good copy is offered to the waitlist head inside the
// same transaction, so no walk-in can claim it first.
func (s *CirculationService) Return(loanID uuid.UUID, condition models.CopyCondition) (*ReturnResult, error) {
	// Resolve the item outside the transaction so the per-item lock is taken
	// before any row lock.
	peek, err := s.loans.GetByID(nil, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("loan %s not found", loanID)
		}
		return nil, err
	}
	unlock := s.locks.lock(peek.ItemID)
	defer unlock()

	result := &ReturnResult{}
	var allocatedUser uuid.UUID

	err = s.db.Transaction(func(tx *gorm.DB) error {
		loan, err := s.loans.GetByIDForUpdate(tx, loanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("loan %s not found", loanID)
			}
			return err
		}
		if loan.Status != models.LoanStatusIssued {
			return stateErr("loan %s is already returned", loanID)
		}

		item, err := s.items.GetByIDForUpdate(tx, loan.ItemID)
		if err != nil {
			return err
		}
		copy, err := s.copies.GetByIDForUpdate(tx, loan.CopyID)
		if err != nil {
			return err
		}

		now := s.clk.Now()
		wasOverdue := loan.IsOverdue(now)
		if err := s.loans.MarkReturned(tx, loan.ID, now); err != nil {
			return err
		}
		loan.Status = models.LoanStatusReturned
		loan.ReturnDate = &now
		result.Loan = loan

		if wasOverdue {
			fine, err := s.fines.settleOverdueTx(tx, loan, now)
			if err != nil {
				return err
			}
			if fine != nil {
				result.Fines = append(result.Fines, fine)
			}
		}

		freed, err := s.ledger.markReturnedTx(tx, copy, condition)
		if err != nil {
			return err
		}

		switch condition {
		case models.CopyConditionDamaged:
			fine, err := s.fines.createBaseFineTx(tx, loan, models.FineReasonDamaged, now)
			if err != nil {
				return err
			}
			result.Fines = append(result.Fines, fine)
		case models.CopyConditionLost:
			fine, err := s.fines.createBaseFineTx(tx, loan, models.FineReasonLost, now)
			if err != nil {
				return err
			}
			result.Fines = append(result.Fines, fine)
		}

		if freed {
			allocated, err := s.allocateFreedCopyTx(tx, item, copy)
			if err != nil {
				return err
			}
			if allocated != nil {
				result.AllocatedLoan = allocated
				allocatedUser = allocated.UserID
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.LoansReturned.Inc()
	log.Printf("[INFO] Return: loan=%s condition=%s allocated=%v", loanID, condition, result.AllocatedLoan != nil)

	if result.AllocatedLoan != nil {
		// Best effort, after the transaction commits and outside all locks.
		allocated := result.AllocatedLoan
		go func() {
			err := s.notifier.Send(allocatedUser, TemplateCopyAllocated, map[string]interface{}{
				"loan_id":  allocated.ID.String(),
				"item_id":  allocated.ItemID.String(),
				"due_date": allocated.DueDate,
			})
			if err != nil {
				log.Printf("[WARN] Return: allocation notification for user %s failed: %v", allocatedUser, err)
			}
		}()
	}
	return result, nil
}

// allocateFreedCopyTx hands a just-freed copy to the first still-eligible
// queued member. Ineligible heads are dropped and the next tried, so the copy
// is never stranded as available while a valid member waits.
func (s *CirculationService) allocateFreedCopyTx(tx *gorm.DB, item *models.Item, copy *models.Copy) (*models.Loan, error) {
	for {
		head, err := s.queue.GetHeadForUpdate(tx, item.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil // queue empty, copy stays available
			}
			return nil, err
		}

		if err := s.queue.Delete(tx, head.ID); err != nil {
			return nil, err
		}
		if err := s.queue.CompactAfter(tx, item.ID, head.Position); err != nil {
			return nil, err
		}

		if err := s.checkEligibilityTx(tx, item.ID, head.UserID); err != nil {
			if Kind(err) == KindUnknown {
				return nil, err // infrastructure failure, roll back
			}
			log.Printf("[WARN] allocation: dropping queued user %s for item %s: %v", head.UserID, item.ID, err)
			continue
		}

		loan, err := s.createLoanTx(tx, item, copy, head.UserID)
		if err != nil {
			return nil, err
		}
		metrics.QueueAllocations.Inc()
		return loan, nil
	}
}

// ─── Extend & Renewals ────────────────────────────────────────────────────────

// Extend pushes a loan's due date out, bounded by both the loan's own cap and
// the system cap. A zero newDueDate means the configured extension period past
// the current due date. Accrued fines are untouched.
func (s *CirculationService) Extend(loanID uuid.UUID, newDueDate time.Time) (*models.Loan, error) {
	var updated *models.Loan
	err := s.db.Transaction(func(tx *gorm.DB) error {
		loan, err := s.extendTx(tx, loanID, newDueDate)
		if err != nil {
			return err
		}
		updated = loan
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Extend: loan=%s newDue=%s count=%d",
		loanID, newDueDate.Format("2006-01-02"), updated.ExtensionCount)
	return updated, nil
}

func (s *CirculationService) extendTx(tx *gorm.DB, loanID uuid.UUID, newDueDate time.Time) (*models.Loan, error) {
	loan, err := s.loans.GetByIDForUpdate(tx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("loan %s not found", loanID)
		}
		return nil, err
	}
	if loan.Status != models.LoanStatusIssued {
		return nil, stateErr("loan %s is not open", loanID)
	}
	if newDueDate.IsZero() {
		newDueDate = loan.DueDate.AddDate(0, 0, s.cfg.ExtensionPeriodDays)
	}
	// Guarded here rather than in the public wrapper so renewal approval of a
	// request whose date has since passed is rejected too.
	if !newDueDate.After(s.clk.Now()) {
		return nil, validationErr("new due date must be in the future")
	}
	if !newDueDate.After(loan.DueDate) {
		return nil, validationErr("new due date %s does not extend the loan", newDueDate.Format("2006-01-02"))
	}

	limit := loan.MaxExtensionsAllowed
	if s.cfg.MaxPeriodExtensions < limit {
		limit = s.cfg.MaxPeriodExtensions
	}
	if loan.ExtensionCount >= limit {
		return nil, limitErr(limit, "loan %s has used all %d extensions", loanID, limit)
	}

	loan.ExtensionCount++
	loan.DueDate = newDueDate
	if err := s.loans.SetDueDate(tx, loan.ID, newDueDate, loan.ExtensionCount); err != nil {
		return nil, err
	}
	metrics.LoansExtended.Inc()
	return loan, nil
}

// RequestRenewal records a member's extension request for explicit
// administrator resolution. The extend guards run up front so an obviously
// doomed request is rejected immediately.
func (s *CirculationService) RequestRenewal(loanID, userID uuid.UUID, newDueDate time.Time) (*models.RenewalRequest, error) {
	if !newDueDate.After(s.clk.Now()) {
		return nil, validationErr("requested due date must be in the future")
	}

	var req *models.RenewalRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		loan, err := s.loans.GetByIDForUpdate(tx, loanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("loan %s not found", loanID)
			}
			return err
		}
		if loan.Status != models.LoanStatusIssued {
			return stateErr("loan %s is not open", loanID)
		}
		if loan.UserID != userID {
			return validationErr("loan %s does not belong to user %s", loanID, userID)
		}

		limit := loan.MaxExtensionsAllowed
		if s.cfg.MaxPeriodExtensions < limit {
			limit = s.cfg.MaxPeriodExtensions
		}
		if loan.ExtensionCount >= limit {
			return limitErr(limit, "loan %s has used all %d extensions", loanID, limit)
		}

		if _, err := s.renewals.FindPendingByLoan(tx, loanID); err == nil {
			return stateErr("loan %s already has a pending renewal request", loanID)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		req = &models.RenewalRequest{
			LoanID:           loanID,
			UserID:           userID,
			RequestedDueDate: newDueDate,
			Status:           models.RenewalStatusPending,
			CreatedAt:        s.clk.Now(),
		}
		return s.renewals.Create(tx, req)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] RequestRenewal: request=%s loan=%s", req.ID, loanID)
	return req, nil
}

// ApproveRenewal resolves a pending request by performing the extension.
func (s *CirculationService) ApproveRenewal(requestID uuid.UUID) (*models.RenewalRequest, error) {
	var req *models.RenewalRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.renewals.GetByIDForUpdate(tx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("renewal request %s not found", requestID)
			}
			return err
		}
		if req.Status != models.RenewalStatusPending {
			return conflictErr(ConflictAlreadyProcessed, "renewal request %s is already %s", requestID, req.Status)
		}

		if _, err := s.extendTx(tx, req.LoanID, req.RequestedDueDate); err != nil {
			return err
		}

		now := s.clk.Now()
		req.Status = models.RenewalStatusApproved
		req.DecidedAt = &now
		return s.renewals.SetStatus(tx, req.ID, models.RenewalStatusApproved, now)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] ApproveRenewal: request=%s loan=%s", requestID, req.LoanID)
	return req, nil
}

// RejectRenewal resolves a pending request without extending.
func (s *CirculationService) RejectRenewal(requestID uuid.UUID) (*models.RenewalRequest, error) {
	var req *models.RenewalRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.renewals.GetByIDForUpdate(tx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("renewal request %s not found", requestID)
			}
			return err
		}
		if req.Status != models.RenewalStatusPending {
			return conflictErr(ConflictAlreadyProcessed, "renewal request %s is already %s", requestID, req.Status)
		}

		now := s.clk.Now()
		req.Status = models.RenewalStatusRejected
		req.DecidedAt = &now
		return s.renewals.SetStatus(tx, req.ID, models.RenewalStatusRejected, now)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] RejectRenewal: request=%s loan=%s", requestID, req.LoanID)
	return req, nil
}

// ListUserLoans returns all loan records for a user, newest first.
func (s *CirculationService) ListUserLoans(userID uuid.UUID) ([]models.Loan, error) {
	return s.loans.ListByUser(nil, userID)
}

// ListPendingRenewals returns every renewal awaiting a decision.
func (s *CirculationService) ListPendingRenewals() ([]models.RenewalRequest, error) {
	return s.renewals.ListPending(nil)
}
