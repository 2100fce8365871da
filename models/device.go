package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/AnimaI/SMD-Manager/bomimport"
	"github.com/AnimaI/SMD-Manager/config"
	"github.com/AnimaI/SMD-Manager/utils"
)

var ErrDuplicateDevice = errors.New("a device with this name already exists")

type Device struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDevice struct {
	Name string `json:"name" binding:"required,max=100"`
}

func (input *NewDevice) validate(ctx context.Context, id int) error {
	input.Name = strings.TrimSpace(input.Name)
	if err := utils.ValidateInput(input.Name, bomimport.MaxDeviceNameLength); err != nil {
		return err
	}

	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&Device{}).Where("name = ? AND id <> ?", input.Name, id).Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateDevice
	}
	return nil
}

func GetDevice(ctx context.Context, id int) (*Device, error) {
	db := config.GetDB()
	var device Device
	err := db.WithContext(ctx).First(&device, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func GetDevices(ctx context.Context) ([]*Device, error) {
	db := config.GetDB()
	var results []*Device
	if err := db.WithContext(ctx).Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func CreateDevice(ctx context.Context, input *NewDevice) (*Device, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	device := Device{Name: input.Name}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&device).Error; err != nil {
		if utils.IsDuplicateKey(err) {
			return nil, ErrDuplicateDevice
		}
		return nil, err
	}
	return &device, nil
}

func RenameDevice(ctx context.Context, id int, input *NewDevice) (*Device, error) {
	device, err := GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(device).Update("name", input.Name).Error; err != nil {
		if utils.IsDuplicateKey(err) {
			return nil, ErrDuplicateDevice
		}
		return nil, err
	}
	device.Name = input.Name
	return device, nil
}

func DeleteDevice(ctx context.Context, id int) (*Device, error) {
	device, err := GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ?", id).Delete(&BomEntry{}).Error; err != nil {
			return err
		}
		return tx.Delete(device).Error
	})
	if err != nil {
		return nil, err
	}
	return device, nil
}
