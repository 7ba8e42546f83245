package models

import (
	"time"

	"gorm.io/gorm"
)

// Image is a capture stored in the object store; ObjectKey locates the
// bytes, ImageURL is what clients fetch.
type Image struct {
    gorm.Model
    DeviceID   uint      `gorm:"column:device_id;not null;index" json:"device_id"`
    ObjectKey  string    `gorm:"column:object_key;size:255;not null" json:"object_key"`
    ImageURL   string    `gorm:"column:image_url;size:500" json:"image_url"`
    CapturedAt time.Time `gorm:"column:captured_at;not null" json:"captured_at"`

    Device *Device `gorm:"foreignKey:DeviceID" json:"-"`
}
