package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AnimaI/SMD-Manager/config"
	"github.com/AnimaI/SMD-Manager/utils"
)

// BomEntry says how many of a part one unit of a device needs.
type BomEntry struct {
	ID               int       `gorm:"primary_key" json:"id"`
	PartId           int       `gorm:"not null;uniqueIndex:idx_bom_part_device" json:"part_id"`
	DeviceId         int       `gorm:"not null;uniqueIndex:idx_bom_part_device;index" json:"device_id"`
	QuantityRequired int       `gorm:"not null;check:quantity_required > 0" json:"quantity_required"`
	Part             *Part     `gorm:"foreignKey:PartId;constraint:OnDelete:CASCADE" json:"part,omitempty"`
	Device           *Device   `gorm:"foreignKey:DeviceId;constraint:OnDelete:CASCADE" json:"device,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type MissingPart struct {
	PartId      int    `json:"part_id"`
	PartNumber  string `json:"part_number"`
	Description string `json:"description"`
	Required    int    `json:"required"`
	Available   int    `json:"available"`
	Missing     int    `json:"missing"`
}

type MissingPartsReport struct {
	Device string         `json:"device"`
	Parts  []*MissingPart `json:"parts"`
}

type PartUsage struct {
	DeviceId         int    `json:"device_id"`
	DeviceName       string `json:"device_name"`
	QuantityRequired int    `json:"quantity_required"`
}

type DeviceWithBom struct {
	Device
	Entries        []*BomEntry `json:"entries"`
	BuildableCount *int        `json:"buildable_count"`
	BuildablePct   int         `json:"buildable_percentage"`
}

// UpdatePartUsage sets how many of a part a device needs. Zero removes the
// association.
func UpdatePartUsage(ctx context.Context, partId, deviceId, quantity int) (*BomEntry, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", utils.ErrorInvalidInput)
	}
	if _, err := GetPart(ctx, partId); err != nil {
		return nil, err
	}
	if _, err := GetDevice(ctx, deviceId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if quantity == 0 {
		err := db.WithContext(ctx).Where("part_id = ? AND device_id = ?", partId, deviceId).Delete(&BomEntry{}).Error
		return nil, err
	}

	entry := BomEntry{PartId: partId, DeviceId: deviceId, QuantityRequired: quantity}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "part_id"}, {Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity_required", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func getDeviceEntries(ctx context.Context, deviceId int) ([]*BomEntry, error) {
	db := config.GetDB()
	var entries []*BomEntry
	err := db.WithContext(ctx).Preload("Part").Where("device_id = ?", deviceId).Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// GetMissingParts lists the parts of which there is not enough stock to
// build one unit of the device, largest shortfall first.
func GetMissingParts(ctx context.Context, deviceId int) (*MissingPartsReport, error) {
	device, err := GetDevice(ctx, deviceId)
	if err != nil {
		return nil, err
	}
	entries, err := getDeviceEntries(ctx, deviceId)
	if err != nil {
		return nil, err
	}
	return &MissingPartsReport{Device: device.Name, Parts: missingParts(entries)}, nil
}

func missingParts(entries []*BomEntry) []*MissingPart {
	results := make([]*MissingPart, 0)
	for _, e := range entries {
		if e.Part == nil || e.Part.Quantity >= e.QuantityRequired {
			continue
		}
		results = append(results, &MissingPart{
			PartId:      e.PartId,
			PartNumber:  e.Part.PartNumber,
			Description: e.Part.Description,
			Required:    e.QuantityRequired,
			Available:   e.Part.Quantity,
			Missing:     e.QuantityRequired - e.Part.Quantity,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Missing > results[j].Missing
	})
	return results
}

// GetPartDevices lists the devices that use a part.
func GetPartDevices(ctx context.Context, partId int) ([]*PartUsage, error) {
	if _, err := GetPart(ctx, partId); err != nil {
		return nil, err
	}
	db := config.GetDB()
	var results []*PartUsage
	err := db.WithContext(ctx).Table("bom_entries").
		Select("devices.id AS device_id, devices.name AS device_name, bom_entries.quantity_required").
		Joins("JOIN devices ON devices.id = bom_entries.device_id").
		Where("bom_entries.part_id = ?", partId).
		Order("devices.name").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetTotalRequiredQuantity sums what every device needs of a part.
func GetTotalRequiredQuantity(ctx context.Context, partId int) (int, error) {
	db := config.GetDB()
	var total int
	err := db.WithContext(ctx).Model(&BomEntry{}).
		Select("COALESCE(SUM(quantity_required), 0)").
		Where("part_id = ?", partId).
		Scan(&total).Error
	return total, err
}

// GetPartStatus classifies a part's stock against the largest single-device
// requirement. Unused parts have no status.
func GetPartStatus(ctx context.Context, part *Part) (string, error) {
	db := config.GetDB()
	var required []int
	err := db.WithContext(ctx).Model(&BomEntry{}).
		Where("part_id = ?", part.ID).
		Pluck("quantity_required", &required).Error
	if err != nil {
		return "", err
	}
	return partStatus(part.Quantity, required), nil
}

// GetDevicesWithBom returns the devices that have at least one BOM entry,
// together with their buildable figures.
func GetDevicesWithBom(ctx context.Context) ([]*DeviceWithBom, error) {
	devices, err := GetDevices(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var entries []*BomEntry
	if err := db.WithContext(ctx).Preload("Part").Find(&entries).Error; err != nil {
		return nil, err
	}
	byDevice := make(map[int][]*BomEntry)
	for _, e := range entries {
		byDevice[e.DeviceId] = append(byDevice[e.DeviceId], e)
	}

	results := make([]*DeviceWithBom, 0, len(devices))
	for _, d := range devices {
		list := byDevice[d.ID]
		if len(list) == 0 {
			continue
		}
		results = append(results, &DeviceWithBom{
			Device:         *d,
			Entries:        list,
			BuildableCount: buildableCount(list),
			BuildablePct:   buildablePercentage(list),
		})
	}
	return results, nil
}

func GetBuildableCount(ctx context.Context, deviceId int) (*int, error) {
	entries, err := getDeviceEntries(ctx, deviceId)
	if err != nil {
		return nil, err
	}
	return buildableCount(entries), nil
}

func GetBuildablePercentage(ctx context.Context, deviceId int) (int, error) {
	entries, err := getDeviceEntries(ctx, deviceId)
	if err != nil {
		return 0, err
	}
	return buildablePercentage(entries), nil
}

func findPartByCatalogNumber(tx *gorm.DB, number string) (*Part, error) {
	var part Part
	err := tx.Where("catalog_number = ?", number).First(&part).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &part, nil
}
