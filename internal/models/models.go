package models

import (
	"time"

	"github.com/google/uuid"
)

// ─── Status Enums ─────────────────────────────────────────────────────────────

type CopyStatus string

const (
	CopyStatusAvailable   CopyStatus = "AVAILABLE"
	CopyStatusIssued      CopyStatus = "ISSUED"
	CopyStatusMisplaced   CopyStatus = "MISPLACED"
	CopyStatusUnderRepair CopyStatus = "UNDER_REPAIR"
	CopyStatusLost        CopyStatus = "LOST"
)

// copyTransitions is the single authority on legal copy status changes.
// Anything not listed here is rejected at the ledger.
var copyTransitions = map[CopyStatus]map[CopyStatus]bool{
	CopyStatusAvailable: {
		CopyStatusIssued:      true,
		CopyStatusMisplaced:   true,
		CopyStatusUnderRepair: true,
		CopyStatusLost:        true,
	},
	CopyStatusIssued: {
		CopyStatusAvailable:   true,
		CopyStatusUnderRepair: true,
		CopyStatusLost:        true,
	},
	CopyStatusMisplaced: {
		CopyStatusAvailable: true,
		CopyStatusLost:      true,
	},
	CopyStatusUnderRepair: {
		CopyStatusAvailable: true,
		CopyStatusLost:      true,
	},
	CopyStatusLost: {
		CopyStatusAvailable: true,
	},
}

// CanTransitionCopy reports whether a copy may move from one status to another.
func CanTransitionCopy(from, to CopyStatus) bool {
	return copyTransitions[from][to]
}

type CopyCondition string

const (
	CopyConditionGood    CopyCondition = "GOOD"
	CopyConditionDamaged CopyCondition = "DAMAGED"
	CopyConditionLost    CopyCondition = "LOST"
)

type LoanStatus string

// Overdue is deliberately not a stored loan status: it is derived from
// DueDate at read time (see Loan.IsOverdue) so the stored state machine
// stays two-state and cannot drift from the clock.
const (
	LoanStatusIssued   LoanStatus = "ISSUED"
	LoanStatusReturned LoanStatus = "RETURNED"
)

type FineReason string

const (
	FineReasonOverdue FineReason = "OVERDUE"
	FineReasonDamaged FineReason = "DAMAGED"
	FineReasonLost    FineReason = "LOST"
	FineReasonManual  FineReason = "MANUAL"
)

type FineStatus string

const (
	FineStatusOutstanding FineStatus = "OUTSTANDING"
	FineStatusPartialPaid FineStatus = "PARTIAL_PAID"
	FineStatusPaid        FineStatus = "PAID"
	FineStatusWaived      FineStatus = "WAIVED"
)

// Settled reports whether the fine is closed and must not be mutated again.
func (s FineStatus) Settled() bool {
	return s == FineStatusPaid || s == FineStatusWaived
}

type RenewalStatus string

const (
	RenewalStatusPending  RenewalStatus = "PENDING"
	RenewalStatusApproved RenewalStatus = "APPROVED"
	RenewalStatusRejected RenewalStatus = "REJECTED"
)

// ─── Entities ─────────────────────────────────────────────────────────────────

type User struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name   string    `gorm:"size:255;not null" json:"name"`
	Active bool      `gorm:"not null;default:true" json:"active"`
}

// Item is a catalog entry. AvailableCopies is a denormalized count that must
// equal the number of this item's copies in status AVAILABLE at every commit.
type Item struct {
	ID                      uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Title                   string    `gorm:"size:255;not null" json:"title"`
	Author                  string    `gorm:"size:255;not null" json:"author"`
	Quantity                int       `gorm:"not null" json:"quantity"`
	AvailableCopies         int       `gorm:"not null" json:"available_copies"`
	DefaultReturnPeriodDays int       `gorm:"not null" json:"default_return_period_days"`
	CreatedAt               time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt               time.Time `gorm:"not null" json:"updated_at"`
}

type Copy struct {
	ID         uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ItemID     uuid.UUID     `gorm:"type:uuid;not null;index" json:"item_id"`
	Item       Item          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	CopyNumber int           `gorm:"not null" json:"copy_number"`
	Status     CopyStatus    `gorm:"type:copy_status;not null;index" json:"status"`
	Condition  CopyCondition `gorm:"type:copy_condition;not null" json:"condition"`
	CreatedAt  time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"not null" json:"updated_at"`
}

// Loan is one borrowing episode. At most one open loan (status ISSUED) may
// exist per (user, item) pair, and per copy.
type Loan struct {
	ID                   uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ItemID               uuid.UUID  `gorm:"type:uuid;not null;index" json:"item_id"`
	CopyID               uuid.UUID  `gorm:"type:uuid;not null;index" json:"copy_id"`
	Copy                 Copy       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	UserID               uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User                 User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	Status               LoanStatus `gorm:"type:loan_status;not null;index" json:"status"`
	IssuedDate           time.Time  `gorm:"not null" json:"issued_date"`
	DueDate              time.Time  `gorm:"not null" json:"due_date"`
	ReturnDate           *time.Time `json:"return_date"`
	ExtensionCount       int        `gorm:"not null;default:0" json:"extension_count"`
	MaxExtensionsAllowed int        `gorm:"not null" json:"max_extensions_allowed"`
	LastRemindedAt       *time.Time `json:"last_reminded_at"`
	CreatedAt            time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"not null" json:"updated_at"`
}

// Open reports whether the loan still holds its copy.
func (l *Loan) Open() bool {
	return l.Status == LoanStatusIssued
}

// IsOverdue derives the overdue view from the clock; overdue is never stored.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.Open() && now.After(l.DueDate)
}

// QueueEntry is one member's place in an item's waitlist. Positions within an
// item are 1-based, dense, and gap-free after every mutation.
type QueueEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ItemID     uuid.UUID `gorm:"type:uuid;not null;index" json:"item_id"`
	Item       Item      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User       User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Position   int       `gorm:"not null;index" json:"position"`
	DateJoined time.Time `gorm:"not null" json:"date_joined"`
}

type Fine struct {
	ID                uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID            uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	ItemID            uuid.UUID  `gorm:"type:uuid;not null;index" json:"item_id"`
	LoanID            *uuid.UUID `gorm:"type:uuid;index" json:"loan_id"`
	Reason            FineReason `gorm:"type:fine_reason;not null" json:"reason"`
	AmountIncurred    float64    `gorm:"not null" json:"amount_incurred"`
	AmountPaid        float64    `gorm:"not null;default:0" json:"amount_paid"`
	OutstandingAmount float64    `gorm:"not null" json:"outstanding_amount"`
	Status            FineStatus `gorm:"type:fine_status;not null;index" json:"status"`
	Note              string     `gorm:"size:512" json:"note"`
	DateIncurred      time.Time  `gorm:"not null" json:"date_incurred"`
	DateSettled       *time.Time `json:"date_settled"`
	CreatedAt         time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null" json:"updated_at"`
}

// Payment is the audit record of a single recordPayment call against a fine.
type Payment struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FineID uuid.UUID `gorm:"type:uuid;not null;index" json:"fine_id"`
	Fine   Fine      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	Amount float64   `gorm:"not null" json:"amount"`
	Method string    `gorm:"size:64;not null" json:"method"`
	PaidAt time.Time `gorm:"not null" json:"paid_at"`
}

// RenewalRequest is the request/approval variant of extend. It has no
// automatic expiry; an administrator resolves it explicitly.
type RenewalRequest struct {
	ID               uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LoanID           uuid.UUID     `gorm:"type:uuid;not null;index" json:"loan_id"`
	Loan             Loan          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	UserID           uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_id"`
	RequestedDueDate time.Time     `gorm:"not null" json:"requested_due_date"`
	Status           RenewalStatus `gorm:"type:renewal_status;not null;index" json:"status"`
	DecidedAt        *time.Time    `json:"decided_at"`
	CreatedAt        time.Time     `gorm:"not null" json:"created_at"`
}
