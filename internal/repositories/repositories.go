package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jaypawar90171/LMS-sub001/internal/models"
)

// Every repository method takes an optional *gorm.DB so callers can pass the
// transaction handle from db.Transaction; nil falls back to the repository's
// own connection.

type UserRepository interface {
	GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error)
}

type ItemRepository interface {
	Create(db *gorm.DB, item *models.Item) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Item, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Item, error)
	List(db *gorm.DB) ([]models.Item, error)
	AdjustCounts(db *gorm.DB, itemID uuid.UUID, quantityDelta, availableDelta int) error
	SetAvailableCopies(db *gorm.DB, itemID uuid.UUID, available int) error
}

type CopyRepository interface {
	Create(db *gorm.DB, copy *models.Copy) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Copy, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Copy, error)
	FindAvailableForUpdate(db *gorm.DB, itemID uuid.UUID) (*models.Copy, error)
	UpdateStatus(db *gorm.DB, id uuid.UUID, status models.CopyStatus) error
	UpdateCondition(db *gorm.DB, id uuid.UUID, condition models.CopyCondition) error
	CountByStatus(db *gorm.DB, itemID uuid.UUID, status models.CopyStatus) (int, error)
	MaxCopyNumber(db *gorm.DB, itemID uuid.UUID) (int, error)
	BulkUpdateStatus(db *gorm.DB, itemID uuid.UUID, from []models.CopyStatus, to models.CopyStatus) (int64, error)
	ListByItem(db *gorm.DB, itemID uuid.UUID) ([]models.Copy, error)
}

// concrete implementations

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

type itemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) Create(db *gorm.DB, item *models.Item) error {
	if db == nil {
		db = r.db
	}
	return db.Create(item).Error
}

func (r *itemRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Item, error) {
	if db == nil {
		db = r.db
	}
	var item models.Item
	if err := db.First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// GetByIDForUpdate locks the item row; every multi-step circulation mutation
// for an item serializes on this lock inside its transaction.
func (r *itemRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Item, error) {
	if db == nil {
		db = r.db
	}
	var item models.Item
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) List(db *gorm.DB) ([]models.Item, error) {
	if db == nil {
		db = r.db
	}
	var items []models.Item
	if err := db.Order("title").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// AdjustCounts shifts quantity and available_copies in a single UPDATE so the
// cached count can never be observed out of sync with the status write that
// shares its transaction.
func (r *itemRepository) AdjustCounts(db *gorm.DB, itemID uuid.UUID, quantityDelta, availableDelta int) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Item{}).
		Where("id = ?", itemID).
		Updates(map[string]interface{}{
			"quantity":         gorm.Expr("quantity + ?", quantityDelta),
			"available_copies": gorm.Expr("available_copies + ?", availableDelta),
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (r *itemRepository) SetAvailableCopies(db *gorm.DB, itemID uuid.UUID, available int) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Item{}).
		Where("id = ?", itemID).
		Updates(map[string]interface{}{
			"available_copies": available,
			"updated_at":       time.Now().UTC(),
		}).Error
}

type copyRepository struct {
	db *gorm.DB
}

func NewCopyRepository(db *gorm.DB) CopyRepository {
	return &copyRepository{db: db}
}

func (r *copyRepository) Create(db *gorm.DB, copy *models.Copy) error {
	if db == nil {
		db = r.db
	}
	return db.Create(copy).Error
}

func (r *copyRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Copy, error) {
	if db == nil {
		db = r.db
	}
	var copy models.Copy
	if err := db.First(&copy, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &copy, nil
}

func (r *copyRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Copy, error) {
	if db == nil {
		db = r.db
	}
	var copy models.Copy
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&copy, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &copy, nil
}

// FindAvailableForUpdate claims one available copy under a row lock. Two
// concurrent issue transactions cannot both select the same copy: the second
// blocks until the first commits, then sees the status change.
func (r *copyRepository) FindAvailableForUpdate(db *gorm.DB, itemID uuid.UUID) (*models.Copy, error) {
	if db == nil {
		db = r.db
	}
	var copy models.Copy
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_id = ? AND status = ?", itemID, models.CopyStatusAvailable).
		Order("copy_number").
		First(&copy).Error
	if err != nil {
		return nil, err
	}
	return &copy, nil
}

func (r *copyRepository) UpdateStatus(db *gorm.DB, id uuid.UUID, status models.CopyStatus) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Copy{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *copyRepository) UpdateCondition(db *gorm.DB, id uuid.UUID, condition models.CopyCondition) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Copy{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"condition":  condition,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *copyRepository) CountByStatus(db *gorm.DB, itemID uuid.UUID, status models.CopyStatus) (int, error) {
	if db == nil {
		db = r.db
	}
	var count int64
	err := db.Model(&models.Copy{}).
		Where("item_id = ? AND status = ?", itemID, status).
		Count(&count).Error
	return int(count), err
}

func (r *copyRepository) MaxCopyNumber(db *gorm.DB, itemID uuid.UUID) (int, error) {
	if db == nil {
		db = r.db
	}
	var max int
	err := db.Model(&models.Copy{}).
		Where("item_id = ?", itemID).
		Select("COALESCE(MAX(copy_number), 0)").
		Scan(&max).Error
	return max, err
}

// BulkUpdateStatus moves every copy currently in one of the from statuses to
// the target status. Issued copies are never touched here; callers must not
// include ISSUED in from.
func (r *copyRepository) BulkUpdateStatus(db *gorm.DB, itemID uuid.UUID, from []models.CopyStatus, to models.CopyStatus) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Copy{}).
		Where("item_id = ? AND status IN ?", itemID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *copyRepository) ListByItem(db *gorm.DB, itemID uuid.UUID) ([]models.Copy, error) {
	if db == nil {
		db = r.db
	}
	var copies []models.Copy
	if err := db.Where("item_id = ?", itemID).
		Order("copy_number").
		Find(&copies).Error; err != nil {
		return nil, err
	}
	return copies, nil
}
