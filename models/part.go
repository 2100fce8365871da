package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AnimaI/SMD-Manager/bomimport"
	"github.com/AnimaI/SMD-Manager/catalog"
	"github.com/AnimaI/SMD-Manager/config"
	"github.com/AnimaI/SMD-Manager/utils"
)

type Part struct {
	ID            int       `gorm:"primary_key" json:"id"`
	PartNumber    string    `gorm:"size:100;not null" json:"part_number"`
	Description   string    `gorm:"type:text" json:"description"`
	CatalogNumber string    `gorm:"size:100;uniqueIndex;not null" json:"digikey_number"`
	Quantity      int       `gorm:"not null;default:0;check:quantity >= 0" json:"quantity"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPart struct {
	CatalogNumber string `json:"digikey_number" binding:"required,max=100"`
	PartNumber    string `json:"part_number" binding:"max=100"`
	Description   string `json:"description"`
	Quantity      int    `json:"quantity" binding:"min=0"`
	// Devices maps device id to the quantity required per unit.
	Devices map[int]int `json:"devices"`
}

func GetPart(ctx context.Context, id int) (*Part, error) {
	db := config.GetDB()
	var part Part
	err := db.WithContext(ctx).First(&part, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &part, nil
}

func GetParts(ctx context.Context, search string) ([]*Part, error) {
	db := config.GetDB()
	var results []*Part

	dbCtx := db.WithContext(ctx)
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + search + "%"
		dbCtx = dbCtx.Where("part_number LIKE ? OR catalog_number LIKE ? OR description LIKE ?", like, like, like)
	}
	if err := dbCtx.Order("part_number").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateStock sets the on-hand quantity of a part.
func UpdateStock(ctx context.Context, id int, quantity int) (*Part, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", utils.ErrorInvalidInput)
	}
	part, err := GetPart(ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(part).Update("quantity", quantity).Error; err != nil {
		return nil, err
	}
	part.Quantity = quantity
	return part, nil
}

// UpsertPart updates the stock of an existing part, or creates it. When a new
// part has no description and lookup is not nil, the catalog fills in the
// manufacturer number and description.
func UpsertPart(ctx context.Context, input *NewPart, lookup bomimport.Resolver) (*Part, error) {
	input.CatalogNumber = strings.TrimSpace(input.CatalogNumber)
	if err := utils.ValidateInput(input.CatalogNumber, bomimport.MaxIdentifierLength); err != nil {
		return nil, err
	}
	if input.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", utils.ErrorInvalidInput)
	}

	db := config.GetDB()
	var part Part
	err := db.WithContext(ctx).Where("catalog_number = ?", input.CatalogNumber).First(&part).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{"Quantity": input.Quantity}
		if input.Description != "" {
			updates["Description"] = input.Description
		}
		if input.PartNumber != "" {
			updates["PartNumber"] = input.PartNumber
		}
		if err := db.WithContext(ctx).Model(&part).Updates(updates).Error; err != nil {
			return nil, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		part = Part{
			CatalogNumber: input.CatalogNumber,
			PartNumber:    input.PartNumber,
			Description:   input.Description,
			Quantity:      input.Quantity,
		}
		if part.Description == "" && lookup != nil && catalog.IsCatalogNumber(part.CatalogNumber) {
			if product, err := lookup.FetchByID(ctx, part.CatalogNumber); err == nil {
				if part.PartNumber == "" {
					part.PartNumber = product.ManufacturerNumber
				}
				part.Description = product.Description
			} else {
				config.LogError(config.GetLogger(), "models", "UpsertPart", "catalog lookup failed", part.CatalogNumber, err)
			}
		}
		if part.PartNumber == "" {
			part.PartNumber = part.CatalogNumber
		}
		if part.Description == "" {
			part.Description = catalog.NoDescription
		}
		if err := db.WithContext(ctx).Create(&part).Error; err != nil {
			if utils.IsDuplicateKey(err) {
				return nil, utils.ErrorDuplicate
			}
			return nil, err
		}
	default:
		return nil, err
	}

	for deviceId, qty := range input.Devices {
		if qty <= 0 {
			qty = 1
		}
		if _, err := UpdatePartUsage(ctx, part.ID, deviceId, qty); err != nil {
			return nil, err
		}
	}
	return &part, nil
}

func DeletePart(ctx context.Context, id int) (*Part, error) {
	part, err := GetPart(ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("part_id = ?", id).Delete(&BomEntry{}).Error; err != nil {
			return err
		}
		return tx.Delete(part).Error
	})
	if err != nil {
		return nil, err
	}
	return part, nil
}

// GetUnassignedParts returns parts that no device uses.
func GetUnassignedParts(ctx context.Context) ([]*Part, error) {
	db := config.GetDB()
	var results []*Part
	err := db.WithContext(ctx).
		Where("NOT EXISTS (SELECT 1 FROM bom_entries WHERE bom_entries.part_id = parts.id)").
		Order("part_number").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SearchParts is the local half of a part search: catalog-looking terms match
// the catalog number, everything else the manufacturer number.
func SearchParts(ctx context.Context, term string, limit int) ([]*Part, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	db := config.GetDB()
	var results []*Part

	column := "part_number"
	if catalog.IsCatalogNumber(term) {
		column = "catalog_number"
	}
	err := db.WithContext(ctx).
		Where(clause.Like{Column: clause.Column{Name: column}, Value: "%" + term + "%"}).
		Order("part_number").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
