package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jaypawar90171/LMS-sub001/internal/models"
)

type FineRepository interface {
	Create(db *gorm.DB, fine *models.Fine) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Fine, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Fine, error)
	FindOpenOverdueByLoan(db *gorm.DB, loanID uuid.UUID) (*models.Fine, error)
	UpdateAmounts(db *gorm.DB, fine *models.Fine) error
	SumOutstandingByUser(db *gorm.DB, userID uuid.UUID) (float64, error)
	ListByUser(db *gorm.DB, userID uuid.UUID) ([]models.Fine, error)
}

type PaymentRepository interface {
	Create(db *gorm.DB, payment *models.Payment) error
	ListByFine(db *gorm.DB, fineID uuid.UUID) ([]models.Payment, error)
}

type RenewalRepository interface {
	Create(db *gorm.DB, req *models.RenewalRequest) error
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.RenewalRequest, error)
	FindPendingByLoan(db *gorm.DB, loanID uuid.UUID) (*models.RenewalRequest, error)
	SetStatus(db *gorm.DB, id uuid.UUID, status models.RenewalStatus, decidedAt time.Time) error
	ListPending(db *gorm.DB) ([]models.RenewalRequest, error)
}

type fineRepository struct {
	db *gorm.DB
}

func NewFineRepository(db *gorm.DB) FineRepository {
	return &fineRepository{db: db}
}

func (r *fineRepository) Create(db *gorm.DB, fine *models.Fine) error {
	if db == nil {
		db = r.db
	}
	return db.Create(fine).Error
}

func (r *fineRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Fine, error) {
	if db == nil {
		db = r.db
	}
	var fine models.Fine
	if err := db.First(&fine, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &fine, nil
}

func (r *fineRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Fine, error) {
	if db == nil {
		db = r.db
	}
	var fine models.Fine
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&fine, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &fine, nil
}

// FindOpenOverdueByLoan locates the unsettled overdue fine for a loan, the one
// a repeated sweep run updates instead of duplicating.
func (r *fineRepository) FindOpenOverdueByLoan(db *gorm.DB, loanID uuid.UUID) (*models.Fine, error) {
	if db == nil {
		db = r.db
	}
	var fine models.Fine
	err := db.
		Where("loan_id = ? AND reason = ? AND status IN ?",
			loanID, models.FineReasonOverdue,
			[]models.FineStatus{models.FineStatusOutstanding, models.FineStatusPartialPaid}).
		First(&fine).Error
	if err != nil {
		return nil, err
	}
	return &fine, nil
}

func (r *fineRepository) UpdateAmounts(db *gorm.DB, fine *models.Fine) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Fine{}).
		Where("id = ?", fine.ID).
		Updates(map[string]interface{}{
			"amount_incurred":    fine.AmountIncurred,
			"amount_paid":        fine.AmountPaid,
			"outstanding_amount": fine.OutstandingAmount,
			"status":             fine.Status,
			"note":               fine.Note,
			"date_settled":       fine.DateSettled,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *fineRepository) SumOutstandingByUser(db *gorm.DB, userID uuid.UUID) (float64, error) {
	if db == nil {
		db = r.db
	}
	var total float64
	err := db.Model(&models.Fine{}).
		Where("user_id = ? AND status IN ?",
			userID,
			[]models.FineStatus{models.FineStatusOutstanding, models.FineStatusPartialPaid}).
		Select("COALESCE(SUM(outstanding_amount), 0)").
		Scan(&total).Error
	return total, err
}

func (r *fineRepository) ListByUser(db *gorm.DB, userID uuid.UUID) ([]models.Fine, error) {
	if db == nil {
		db = r.db
	}
	var fines []models.Fine
	if err := db.Where("user_id = ?", userID).
		Order("date_incurred DESC").
		Find(&fines).Error; err != nil {
		return nil, err
	}
	return fines, nil
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(db *gorm.DB, payment *models.Payment) error {
	if db == nil {
		db = r.db
	}
	return db.Create(payment).Error
}

func (r *paymentRepository) ListByFine(db *gorm.DB, fineID uuid.UUID) ([]models.Payment, error) {
	if db == nil {
		db = r.db
	}
	var payments []models.Payment
	if err := db.Where("fine_id = ?", fineID).
		Order("paid_at").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

type renewalRepository struct {
	db *gorm.DB
}

func NewRenewalRepository(db *gorm.DB) RenewalRepository {
	return &renewalRepository{db: db}
}

func (r *renewalRepository) Create(db *gorm.DB, req *models.RenewalRequest) error {
	if db == nil {
		db = r.db
	}
	return db.Create(req).Error
}

func (r *renewalRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.RenewalRequest, error) {
	if db == nil {
		db = r.db
	}
	var req models.RenewalRequest
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&req, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *renewalRepository) FindPendingByLoan(db *gorm.DB, loanID uuid.UUID) (*models.RenewalRequest, error) {
	if db == nil {
		db = r.db
	}
	var req models.RenewalRequest
	err := db.
		Where("loan_id = ? AND status = ?", loanID, models.RenewalStatusPending).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *renewalRepository) SetStatus(db *gorm.DB, id uuid.UUID, status models.RenewalStatus, decidedAt time.Time) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.RenewalRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"decided_at": decidedAt,
		}).Error
}

func (r *renewalRepository) ListPending(db *gorm.DB) ([]models.RenewalRequest, error) {
	if db == nil {
		db = r.db
	}
	var reqs []models.RenewalRequest
	if err := db.Where("status = ?", models.RenewalStatusPending).
		Order("created_at").
		Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}
