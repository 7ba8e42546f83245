package models

import (
	"time"

	"gorm.io/gorm"
)

// Event types accepted by the ingestion endpoints.
const (
    EventOpen     = "open"
    EventClose    = "close"
    EventDelivery = "delivery"
    EventRemoval  = "removal"
)

// EventCodes maps the single-letter wire codes used by battery-powered
// firmware to full event types. Codes are matched case-insensitively;
// anything outside this map is rejected.
var EventCodes = map[string]string{
    "o": EventOpen,
    "c": EventClose,
    "d": EventDelivery,
    "r": EventRemoval,
}

// ValidEventType reports whether t is one of the accepted event types.
func ValidEventType(t string) bool {
    switch t {
    case EventOpen, EventClose, EventDelivery, EventRemoval:
        return true
    }
    return false
}

type Event struct {
    gorm.Model
    DeviceID   uint      `gorm:"column:device_id;not null;index" json:"device_id"`
    EventType  string    `gorm:"column:event_type;size:32;not null" json:"event_type"`
    OwnerID    string    `gorm:"column:owner_id;size:255;index" json:"owner_id"`
    OccurredAt time.Time `gorm:"column:occurred_at;not null" json:"occurred_at"`

    Device *Device `gorm:"foreignKey:DeviceID" json:"-"`
}

// HealthReading stores a device health report. Fields the device did
// not send stay NULL; a missing battery level is not a zero battery.
type HealthReading struct {
    gorm.Model
    DeviceID        uint       `gorm:"column:device_id;not null;index" json:"device_id"`
    OwnerID         string     `gorm:"column:owner_id;size:255;index" json:"owner_id"`
    BatteryLevel    *int       `gorm:"column:battery_level" json:"battery_level"`
    SignalStrength  *int       `gorm:"column:signal_strength" json:"signal_strength"`
    Temperature     *float64   `gorm:"column:temperature" json:"temperature"`
    FirmwareVersion *string    `gorm:"column:firmware_version;size:64" json:"firmware_version"`
    ReportedAt      time.Time  `gorm:"column:reported_at;not null" json:"reported_at"`

    Device *Device `gorm:"foreignKey:DeviceID" json:"-"`
}

func (HealthReading) TableName() string {
    return "device_health"
}
