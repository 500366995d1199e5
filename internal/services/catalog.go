package services

import (
	"errors"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jaypawar90171/LMS-sub001/internal/clock"
	"github.com/jaypawar90171/LMS-sub001/internal/config"
	"github.com/jaypawar90171/LMS-sub001/internal/models"
	"github.com/jaypawar90171/LMS-sub001/internal/repositories"
)

// CatalogService covers the thin item/copy administration the circulation
// core needs to exist: creating items with their physical copies and adding
// copies later. Category hierarchies and richer catalog concerns stay with
// the external catalog system.
type CatalogService struct {
	db     TxRunner
	cfg    config.Config
	clk    clock.Clock
	items  repositories.ItemRepository
	copies repositories.CopyRepository
}

func NewCatalogService(db TxRunner, cfg config.Config, clk clock.Clock, items repositories.ItemRepository, copies repositories.CopyRepository) *CatalogService {
	return &CatalogService{db: db, cfg: cfg, clk: clk, items: items, copies: copies}
}

// CreateItem creates the catalog entry together with its physical copies in
// one transaction, so quantity and the copy rows can never disagree.
func (s *CatalogService) CreateItem(title, author string, quantity, returnPeriodDays int) (*models.Item, error) {
	if title == "" {
		return nil, validationErr("title is required")
	}
	if quantity < 0 {
		return nil, validationErr("quantity must not be negative")
	}
	if returnPeriodDays <= 0 {
		returnPeriodDays = s.cfg.DefaultReturnPeriodDays
	}

	now := s.clk.Now()
	item := &models.Item{
		Title:                   title,
		Author:                  author,
		Quantity:                quantity,
		AvailableCopies:         quantity,
		DefaultReturnPeriodDays: returnPeriodDays,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.items.Create(tx, item); err != nil {
			return err
		}
		for i := 1; i <= quantity; i++ {
			copy := &models.Copy{
				ItemID:     item.ID,
				CopyNumber: i,
				Status:     models.CopyStatusAvailable,
				Condition:  models.CopyConditionGood,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := s.copies.Create(tx, copy); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] CreateItem: created %q (id=%s) with %d copies", item.Title, item.ID, quantity)
	return item, nil
}

// AddCopy adds one physical copy to an existing item, bumping both counters
// atomically with the copy insert.
func (s *CatalogService) AddCopy(itemID uuid.UUID) (*models.Copy, error) {
	var copy *models.Copy
	err := s.db.Transaction(func(tx *gorm.DB) error {
		item, err := s.items.GetByIDForUpdate(tx, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("item %s not found", itemID)
			}
			return err
		}

		number, err := s.copies.MaxCopyNumber(tx, item.ID)
		if err != nil {
			return err
		}

		now := s.clk.Now()
		copy = &models.Copy{
			ItemID:     item.ID,
			CopyNumber: number + 1,
			Status:     models.CopyStatusAvailable,
			Condition:  models.CopyConditionGood,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.copies.Create(tx, copy); err != nil {
			return err
		}
		return s.items.AdjustCounts(tx, item.ID, 1, 1)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] AddCopy: added copy %d (id=%s) for item %s", copy.CopyNumber, copy.ID, itemID)
	return copy, nil
}

// ListItems returns the catalog.
func (s *CatalogService) ListItems() ([]models.Item, error) {
	return s.items.List(nil)
}

// GetItem returns one item.
func (s *CatalogService) GetItem(itemID uuid.UUID) (*models.Item, error) {
	item, err := s.items.GetByID(nil, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("item %s not found", itemID)
		}
		return nil, err
	}
	return item, nil
}

// ListCopies returns an item's copies in copy-number order.
func (s *CatalogService) ListCopies(itemID uuid.UUID) ([]models.Copy, error) {
	return s.copies.ListByItem(nil, itemID)
}
