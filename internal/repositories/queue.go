package repositories

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jaypawar90171/LMS-sub001/internal/models"
)

type QueueRepository interface {
	Create(db *gorm.DB, entry *models.QueueEntry) error
	GetByItemAndUser(db *gorm.DB, itemID, userID uuid.UUID) (*models.QueueEntry, error)
	GetHeadForUpdate(db *gorm.DB, itemID uuid.UUID) (*models.QueueEntry, error)
	Delete(db *gorm.DB, id uuid.UUID) error
	CompactAfter(db *gorm.DB, itemID uuid.UUID, removedPosition int) error
	NextPosition(db *gorm.DB, itemID uuid.UUID) (int, error)
	ListByItem(db *gorm.DB, itemID uuid.UUID) ([]models.QueueEntry, error)
}

type queueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) QueueRepository {
	return &queueRepository{db: db}
}

func (r *queueRepository) Create(db *gorm.DB, entry *models.QueueEntry) error {
	if db == nil {
		db = r.db
	}
	return db.Create(entry).Error
}

func (r *queueRepository) GetByItemAndUser(db *gorm.DB, itemID, userID uuid.UUID) (*models.QueueEntry, error) {
	if db == nil {
		db = r.db
	}
	var entry models.QueueEntry
	err := db.Where("item_id = ? AND user_id = ?", itemID, userID).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *queueRepository) GetHeadForUpdate(db *gorm.DB, itemID uuid.UUID) (*models.QueueEntry, error) {
	if db == nil {
		db = r.db
	}
	var entry models.QueueEntry
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_id = ?", itemID).
		Order("position ASC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *queueRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.QueueEntry{}, "id = ?", id).Error
}

// CompactAfter closes the gap a removal leaves so positions stay dense.
func (r *queueRepository) CompactAfter(db *gorm.DB, itemID uuid.UUID, removedPosition int) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.QueueEntry{}).
		Where("item_id = ? AND position > ?", itemID, removedPosition).
		UpdateColumn("position", gorm.Expr("position - 1")).
		Error
}

// NextPosition locks the item's queue rows so MAX(position) is stable under
// concurrent joins.
func (r *queueRepository) NextPosition(db *gorm.DB, itemID uuid.UUID) (int, error) {
	if db == nil {
		db = r.db
	}
	var ids []uuid.UUID
	if err := db.Model(&models.QueueEntry{}).
		Where("item_id = ?", itemID).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	var maxPos int
	if err := db.Model(&models.QueueEntry{}).
		Where("item_id = ?", itemID).
		Select("COALESCE(MAX(position), 0)").
		Scan(&maxPos).Error; err != nil {
		return 0, err
	}
	return maxPos + 1, nil
}

func (r *queueRepository) ListByItem(db *gorm.DB, itemID uuid.UUID) ([]models.QueueEntry, error) {
	if db == nil {
		db = r.db
	}
	var entries []models.QueueEntry
	if err := db.Where("item_id = ?", itemID).
		Order("position ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
