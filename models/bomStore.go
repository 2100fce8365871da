package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/AnimaI/SMD-Manager/bomimport"
)

// BomStore is the gorm backing of the BOM importer.
type BomStore struct {
	db *gorm.DB
}

func NewBomStore(db *gorm.DB) *BomStore {
	return &BomStore{db: db}
}

func (s *BomStore) FindPartByCatalogNumber(ctx context.Context, number string) (*bomimport.PartRecord, error) {
	part, err := findPartByCatalogNumber(s.db.WithContext(ctx), number)
	if err != nil || part == nil {
		return nil, err
	}
	return toPartRecord(part), nil
}

// ReplaceBom swaps the device's BOM for lines in a single transaction. New
// parts are created with zero stock; a part created concurrently by another
// import is picked up instead of duplicated.
func (s *BomStore) ReplaceBom(ctx context.Context, deviceName string, lines []bomimport.BomLine) (*bomimport.ReplaceResult, error) {
	deviceName = strings.TrimSpace(deviceName)
	result := &bomimport.ReplaceResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		device, err := findOrCreateDevice(tx, deviceName)
		if err != nil {
			return err
		}
		result.DeviceID = device.ID

		entries := make([]*BomEntry, 0, len(lines))
		byPart := make(map[int]*BomEntry, len(lines))
		for _, line := range lines {
			partId := line.Part.ID
			if partId == 0 {
				part := Part{
					CatalogNumber: line.Part.CatalogNumber,
					PartNumber:    line.Part.PartNumber,
					Description:   line.Part.Description,
				}
				res := tx.Where(Part{CatalogNumber: part.CatalogNumber}).FirstOrCreate(&part)
				if res.Error != nil {
					return fmt.Errorf("create part %s: %w", part.CatalogNumber, res.Error)
				}
				if res.RowsAffected > 0 {
					result.NewParts++
				}
				partId = part.ID
			}
			if partId == 0 {
				continue
			}
			// Lines that land on the same part share one row (unique part+device).
			if entry, ok := byPart[partId]; ok {
				entry.QuantityRequired += line.Quantity
				continue
			}
			entry := &BomEntry{PartId: partId, DeviceId: device.ID, QuantityRequired: line.Quantity}
			byPart[partId] = entry
			entries = append(entries, entry)
		}

		if err := tx.Where("device_id = ?", device.ID).Delete(&BomEntry{}).Error; err != nil {
			return fmt.Errorf("clear BOM: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(entries, 200).Error; err != nil {
			return fmt.Errorf("insert BOM: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func findOrCreateDevice(tx *gorm.DB, name string) (*Device, error) {
	var device Device
	err := tx.Where("name = ?", name).First(&device).Error
	if err == nil {
		return &device, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	device = Device{Name: name}
	if err := tx.Create(&device).Error; err != nil {
		return nil, fmt.Errorf("create device %q: %w", name, err)
	}
	return &device, nil
}

func toPartRecord(p *Part) *bomimport.PartRecord {
	return &bomimport.PartRecord{
		ID:            p.ID,
		PartNumber:    p.PartNumber,
		Description:   p.Description,
		CatalogNumber: p.CatalogNumber,
	}
}
