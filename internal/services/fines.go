package services

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jaypawar90171/LMS-sub001/internal/clock"
	"github.com/jaypawar90171/LMS-sub001/internal/config"
	"github.com/jaypawar90171/LMS-sub001/internal/metrics"
	"github.com/jaypawar90171/LMS-sub001/internal/models"
	"github.com/jaypawar90171/LMS-sub001/internal/repositories"
)

const day = 24 * time.Hour

// amountEpsilon absorbs binary-float residue in currency arithmetic (e.g.
// 0.1+0.2) so a fully paid fine settles instead of sticking at PartialPaid.
const amountEpsilon = 1e-9

// SweepReport summarizes one sweep run. Per-record failures are collected
// here instead of aborting the run.
type SweepReport struct {
	Sweep         string       `json:"sweep"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    time.Time    `json:"finished_at"`
	Scanned       int          `json:"scanned"`
	FinesCreated  int          `json:"fines_created"`
	FinesUpdated  int          `json:"fines_updated"`
	RemindersSent int          `json:"reminders_sent"`
	Skipped       int          `json:"skipped"`
	Errors        []SweepError `json:"errors,omitempty"`
}

type SweepError struct {
	LoanID uuid.UUID `json:"loan_id"`
	Reason string    `json:"reason"`
}

// FineService owns fine accrual, settlement, payment, and waiver. The two
// recurring sweeps each hold a run lock so a slow run is never overlapped by
// the next trigger, scheduled or manual.
type FineService struct {
	db       TxRunner
	cfg      config.Config
	clk      clock.Clock
	users    repositories.UserRepository
	items    repositories.ItemRepository
	loans    repositories.LoanRepository
	fines    repositories.FineRepository
	payments repositories.PaymentRepository
	notifier Notifier

	overdueMu  sync.Mutex
	reminderMu sync.Mutex
}

func NewFineService(
	db TxRunner,
	cfg config.Config,
	clk clock.Clock,
	users repositories.UserRepository,
	items repositories.ItemRepository,
	loans repositories.LoanRepository,
	fines repositories.FineRepository,
	payments repositories.PaymentRepository,
	notifier Notifier,
) *FineService {
	return &FineService{
		db:       db,
		cfg:      cfg,
		clk:      clk,
		users:    users,
		items:    items,
		loans:    loans,
		fines:    fines,
		payments: payments,
		notifier: notifier,
	}
}

// ─── Accrual Math ─────────────────────────────────────────────────────────────

// daysOverdue counts chargeable days: ceil of elapsed time past the due date,
// minus the grace period. Zero or negative means no fine.
func (s *FineService) daysOverdue(dueDate, now time.Time) int {
	if !now.After(dueDate) {
		return 0
	}
	elapsed := int(math.Ceil(now.Sub(dueDate).Hours() / 24))
	return elapsed - s.cfg.GracePeriodDays
}

// ─── Overdue Sweep ────────────────────────────────────────────────────────────

// RunOverdueSweep charges every open loan past its grace period. The amount
// is always recomputed from daysOverdue, never incremented, so re-running the
// sweep within the same day does not double-charge. Returned loans never
// appear: the repository only yields open ones.
func (s *FineService) RunOverdueSweep(ctx context.Context) (SweepReport, error) {
	if !s.overdueMu.TryLock() {
		return SweepReport{}, stateErr("overdue sweep already running")
	}
	defer s.overdueMu.Unlock()

	now := s.clk.Now()
	report := SweepReport{Sweep: "overdue", StartedAt: now}

	cutoff := now.Add(-time.Duration(s.cfg.GracePeriodDays) * day)
	loans, err := s.loans.ListOpenDueBefore(nil, cutoff)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("overdue", "error").Inc()
		return report, err
	}

	for i := range loans {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		loan := &loans[i]
		report.Scanned++

		created, err := s.accrueForLoan(loan, now)
		if err != nil {
			report.Errors = append(report.Errors, SweepError{LoanID: loan.ID, Reason: err.Error()})
			log.Printf("[ERROR] overdue sweep: loan %s: %v", loan.ID, err)
			continue
		}
		if created {
			report.FinesCreated++
			// Best effort, once per fine; re-runs only raise the amount.
			err := s.notifier.Send(loan.UserID, TemplateOverdueFine, map[string]interface{}{
				"loan_id":  loan.ID.String(),
				"item_id":  loan.ItemID.String(),
				"due_date": loan.DueDate,
			})
			if err != nil {
				log.Printf("[WARN] overdue sweep: notify user %s for loan %s: %v", loan.UserID, loan.ID, err)
			}
		} else {
			report.FinesUpdated++
		}
	}

	report.FinishedAt = s.clk.Now()
	metrics.SweepRuns.WithLabelValues("overdue", "ok").Inc()
	log.Printf("[INFO] overdue sweep: scanned=%d created=%d updated=%d errors=%d",
		report.Scanned, report.FinesCreated, report.FinesUpdated, len(report.Errors))
	return report, nil
}

// accrueForLoan creates or refreshes the single open overdue fine for a loan,
// in its own transaction so one bad record cannot poison the sweep.
func (s *FineService) accrueForLoan(loan *models.Loan, now time.Time) (created bool, err error) {
	days := s.daysOverdue(loan.DueDate, now)
	if days <= 0 {
		return false, stateErr("loan %s is within its grace period", loan.ID)
	}
	amount := float64(days) * s.cfg.DailyFineRate

	err = s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.fines.FindOpenOverdueByLoan(tx, loan.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if existing != nil {
			// Monotonic: a re-run may raise the amount, never lower it.
			if amount <= existing.AmountIncurred {
				return nil
			}
			existing.AmountIncurred = amount
			existing.OutstandingAmount = existing.AmountIncurred - existing.AmountPaid
			return s.fines.UpdateAmounts(tx, existing)
		}

		created = true
		loanID := loan.ID
		fine := &models.Fine{
			UserID:            loan.UserID,
			ItemID:            loan.ItemID,
			LoanID:            &loanID,
			Reason:            models.FineReasonOverdue,
			AmountIncurred:    amount,
			OutstandingAmount: amount,
			Status:            models.FineStatusOutstanding,
			DateIncurred:      now,
		}
		if err := s.fines.Create(tx, fine); err != nil {
			return err
		}
		metrics.FinesAccrued.WithLabelValues(string(models.FineReasonOverdue)).Inc()
		return nil
	})
	return created, err
}

// settleOverdueTx is the on-demand path: a loan returned while overdue gets
// its final fine amount fixed at the return instant, inside the return
// transaction. Subsequent sweeps skip the loan because it is no longer open.
func (s *FineService) settleOverdueTx(tx *gorm.DB, loan *models.Loan, now time.Time) (*models.Fine, error) {
	days := s.daysOverdue(loan.DueDate, now)
	if days <= 0 {
		return nil, nil
	}
	amount := float64(days) * s.cfg.DailyFineRate

	existing, err := s.fines.FindOpenOverdueByLoan(tx, loan.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil {
		if amount > existing.AmountIncurred {
			existing.AmountIncurred = amount
			existing.OutstandingAmount = existing.AmountIncurred - existing.AmountPaid
			if err := s.fines.UpdateAmounts(tx, existing); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	loanID := loan.ID
	fine := &models.Fine{
		UserID:            loan.UserID,
		ItemID:            loan.ItemID,
		LoanID:            &loanID,
		Reason:            models.FineReasonOverdue,
		AmountIncurred:    amount,
		OutstandingAmount: amount,
		Status:            models.FineStatusOutstanding,
		DateIncurred:      now,
	}
	if err := s.fines.Create(tx, fine); err != nil {
		return nil, err
	}
	metrics.FinesAccrued.WithLabelValues(string(models.FineReasonOverdue)).Inc()
	return fine, nil
}

// createBaseFineTx raises the fixed-amount fine for a damaged or lost copy.
func (s *FineService) createBaseFineTx(tx *gorm.DB, loan *models.Loan, reason models.FineReason, now time.Time) (*models.Fine, error) {
	var amount float64
	switch reason {
	case models.FineReasonDamaged:
		amount = s.cfg.DamagedBaseFine
	case models.FineReasonLost:
		amount = s.cfg.LostBaseFine
	default:
		return nil, validationErr("no base amount for fine reason %q", reason)
	}

	loanID := loan.ID
	fine := &models.Fine{
		UserID:            loan.UserID,
		ItemID:            loan.ItemID,
		LoanID:            &loanID,
		Reason:            reason,
		AmountIncurred:    amount,
		OutstandingAmount: amount,
		Status:            models.FineStatusOutstanding,
		DateIncurred:      now,
	}
	if err := s.fines.Create(tx, fine); err != nil {
		return nil, err
	}
	metrics.FinesAccrued.WithLabelValues(string(reason)).Inc()
	return fine, nil
}

// outstandingForUserTx sums the user's unsettled fine balance for the issue
// eligibility check.
func (s *FineService) outstandingForUserTx(tx *gorm.DB, userID uuid.UUID) (float64, error) {
	return s.fines.SumOutstandingByUser(tx, userID)
}

// ─── Reminder Sweep ───────────────────────────────────────────────────────────

// RunReminderSweep emits a due-soon notification for every open loan due
// within the look-ahead window, at most once per loan per calendar day.
// Delivery failures are logged and reported, never fatal.
func (s *FineService) RunReminderSweep(ctx context.Context) (SweepReport, error) {
	if !s.reminderMu.TryLock() {
		return SweepReport{}, stateErr("reminder sweep already running")
	}
	defer s.reminderMu.Unlock()

	now := s.clk.Now()
	report := SweepReport{Sweep: "reminder", StartedAt: now}

	until := now.Add(time.Duration(s.cfg.ReminderLookAheadDays) * day)
	loans, err := s.loans.ListOpenDueBetween(nil, now, until)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("reminder", "error").Inc()
		return report, err
	}

	for i := range loans {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		loan := &loans[i]
		report.Scanned++

		if loan.LastRemindedAt != nil && sameDay(*loan.LastRemindedAt, now) {
			report.Skipped++
			continue
		}

		err := s.notifier.Send(loan.UserID, TemplateDueSoon, map[string]interface{}{
			"loan_id":  loan.ID.String(),
			"item_id":  loan.ItemID.String(),
			"due_date": loan.DueDate,
		})
		if err != nil {
			report.Errors = append(report.Errors, SweepError{LoanID: loan.ID, Reason: err.Error()})
			log.Printf("[WARN] reminder sweep: notify user %s for loan %s: %v", loan.UserID, loan.ID, err)
			continue
		}
		if err := s.loans.SetLastReminded(nil, loan.ID, now); err != nil {
			report.Errors = append(report.Errors, SweepError{LoanID: loan.ID, Reason: err.Error()})
			continue
		}
		report.RemindersSent++
	}

	report.FinishedAt = s.clk.Now()
	metrics.SweepRuns.WithLabelValues("reminder", "ok").Inc()
	log.Printf("[INFO] reminder sweep: scanned=%d sent=%d skipped=%d errors=%d",
		report.Scanned, report.RemindersSent, report.Skipped, len(report.Errors))
	return report, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// ─── Payments & Waivers ───────────────────────────────────────────────────────

// RecordPayment applies a payment to a fine. Amount must be positive and not
// exceed the outstanding balance; full settlement closes the fine.
func (s *FineService) RecordPayment(fineID uuid.UUID, amount float64, method string) (*models.Fine, error) {
	if amount <= 0 {
		return nil, validationErr("payment amount must be positive")
	}
	if method == "" {
		return nil, validationErr("payment method is required")
	}

	var updated *models.Fine
	err := s.db.Transaction(func(tx *gorm.DB) error {
		fine, err := s.fines.GetByIDForUpdate(tx, fineID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("fine %s not found", fineID)
			}
			return err
		}
		if fine.Status.Settled() {
			return conflictErr(ConflictAlreadyProcessed, "fine %s is already settled", fineID)
		}
		if amount > fine.OutstandingAmount+amountEpsilon {
			return validationErr("payment %.2f exceeds outstanding %.2f", amount, fine.OutstandingAmount)
		}

		now := s.clk.Now()
		fine.AmountPaid += amount
		fine.OutstandingAmount = fine.AmountIncurred - fine.AmountPaid
		if fine.OutstandingAmount <= amountEpsilon {
			fine.OutstandingAmount = 0
			fine.Status = models.FineStatusPaid
			fine.DateSettled = &now
		} else {
			fine.Status = models.FineStatusPartialPaid
		}
		if err := s.fines.UpdateAmounts(tx, fine); err != nil {
			return err
		}

		payment := &models.Payment{
			FineID: fine.ID,
			Amount: amount,
			Method: method,
			PaidAt: now,
		}
		if err := s.payments.Create(tx, payment); err != nil {
			return err
		}

		updated = fine
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.FineAmountCollected.Add(amount)
	log.Printf("[INFO] RecordPayment: fine=%s amount=%.2f method=%s status=%s",
		fineID, amount, method, updated.Status)
	return updated, nil
}

// Waive closes a fine without payment. Irreversible.
func (s *FineService) Waive(fineID uuid.UUID, reason string) (*models.Fine, error) {
	if reason == "" {
		return nil, validationErr("waiver reason is required")
	}

	var updated *models.Fine
	err := s.db.Transaction(func(tx *gorm.DB) error {
		fine, err := s.fines.GetByIDForUpdate(tx, fineID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("fine %s not found", fineID)
			}
			return err
		}
		if fine.Status.Settled() {
			return conflictErr(ConflictAlreadyProcessed, "fine %s is already settled", fineID)
		}

		now := s.clk.Now()
		fine.Status = models.FineStatusWaived
		fine.OutstandingAmount = 0
		fine.Note = reason
		fine.DateSettled = &now
		if err := s.fines.UpdateAmounts(tx, fine); err != nil {
			return err
		}

		updated = fine
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Waive: fine=%s reason=%q", fineID, reason)
	return updated, nil
}

// CreateManualFine raises an administrator-entered fine.
func (s *FineService) CreateManualFine(userID, itemID uuid.UUID, amount float64, note string) (*models.Fine, error) {
	if amount <= 0 {
		return nil, validationErr("fine amount must be positive")
	}

	var fine *models.Fine
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.users.GetByID(tx, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("user %s not found", userID)
			}
			return err
		}
		if _, err := s.items.GetByID(tx, itemID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("item %s not found", itemID)
			}
			return err
		}

		fine = &models.Fine{
			UserID:            userID,
			ItemID:            itemID,
			Reason:            models.FineReasonManual,
			AmountIncurred:    amount,
			OutstandingAmount: amount,
			Status:            models.FineStatusOutstanding,
			Note:              note,
			DateIncurred:      s.clk.Now(),
		}
		if err := s.fines.Create(tx, fine); err != nil {
			return err
		}
		metrics.FinesAccrued.WithLabelValues(string(models.FineReasonManual)).Inc()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fine, nil
}

// ListUserFines returns all fines for a user, newest first.
func (s *FineService) ListUserFines(userID uuid.UUID) ([]models.Fine, error) {
	return s.fines.ListByUser(nil, userID)
}
