package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jaypawar90171/LMS-sub001/internal/models"
)

type LoanRepository interface {
	Create(db *gorm.DB, loan *models.Loan) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Loan, error)
	FindOpenByUserAndItem(db *gorm.DB, userID, itemID uuid.UUID) (*models.Loan, error)
	CountOpenByUser(db *gorm.DB, userID uuid.UUID) (int, error)
	MarkReturned(db *gorm.DB, loanID uuid.UUID, returnedAt time.Time) error
	SetDueDate(db *gorm.DB, loanID uuid.UUID, dueDate time.Time, extensionCount int) error
	SetLastReminded(db *gorm.DB, loanID uuid.UUID, at time.Time) error
	ListOpenDueBefore(db *gorm.DB, cutoff time.Time) ([]models.Loan, error)
	ListOpenDueBetween(db *gorm.DB, from, to time.Time) ([]models.Loan, error)
	ListByUser(db *gorm.DB, userID uuid.UUID) ([]models.Loan, error)
}

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(db *gorm.DB, loan *models.Loan) error {
	if db == nil {
		db = r.db
	}
	return db.Create(loan).Error
}

func (r *loanRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	if err := db.First(&loan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&loan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) FindOpenByUserAndItem(db *gorm.DB, userID, itemID uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.
		Where("user_id = ? AND item_id = ? AND status = ?", userID, itemID, models.LoanStatusIssued).
		First(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) CountOpenByUser(db *gorm.DB, userID uuid.UUID) (int, error) {
	if db == nil {
		db = r.db
	}
	var count int64
	err := db.Model(&models.Loan{}).
		Where("user_id = ? AND status = ?", userID, models.LoanStatusIssued).
		Count(&count).Error
	return int(count), err
}

func (r *loanRepository) MarkReturned(db *gorm.DB, loanID uuid.UUID, returnedAt time.Time) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Loan{}).
		Where("id = ? AND status = ?", loanID, models.LoanStatusIssued).
		Updates(map[string]interface{}{
			"status":      models.LoanStatusReturned,
			"return_date": returnedAt,
			"updated_at":  returnedAt,
		}).Error
}

func (r *loanRepository) SetDueDate(db *gorm.DB, loanID uuid.UUID, dueDate time.Time, extensionCount int) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Loan{}).
		Where("id = ?", loanID).
		Updates(map[string]interface{}{
			"due_date":        dueDate,
			"extension_count": extensionCount,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *loanRepository) SetLastReminded(db *gorm.DB, loanID uuid.UUID, at time.Time) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Loan{}).
		Where("id = ?", loanID).
		Update("last_reminded_at", at).Error
}

// ListOpenDueBefore feeds the overdue sweep: open loans whose due date is
// strictly before the cutoff (now minus the grace period).
func (r *loanRepository) ListOpenDueBefore(db *gorm.DB, cutoff time.Time) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	err := db.
		Where("status = ? AND due_date < ?", models.LoanStatusIssued, cutoff).
		Order("due_date").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

// ListOpenDueBetween feeds the reminder sweep: open loans due inside the
// look-ahead window.
func (r *loanRepository) ListOpenDueBetween(db *gorm.DB, from, to time.Time) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	err := db.
		Where("status = ? AND due_date >= ? AND due_date <= ?", models.LoanStatusIssued, from, to).
		Order("due_date").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListByUser(db *gorm.DB, userID uuid.UUID) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	if err := db.Where("user_id = ?", userID).
		Order("issued_date DESC").
		Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}
