package models

import (
	"time"

	"gorm.io/gorm"
)

type Device struct {
    gorm.Model
    OwnerID      string     `gorm:"column:owner_id;size:255;not null;index" json:"owner_id"`
    Email        string     `gorm:"column:email;size:255;not null" json:"email"`
    Name         string     `gorm:"column:name;size:255;not null" json:"name"`
    SerialNumber *string    `gorm:"column:serial_number;size:64;uniqueIndex" json:"serial_number"`
    Location     string     `gorm:"column:location;size:255" json:"location"`
    IsActive     bool       `gorm:"column:is_active;default:true" json:"is_active"`
    LastSeen     *time.Time `gorm:"column:last_seen" json:"last_seen"`

    // Notification preferences and device behavior settings.
    MailDeliveredNotify     bool `gorm:"column:mail_delivered_notify;default:true" json:"mail_delivered_notify"`
    MailboxOpenedNotify     bool `gorm:"column:mailbox_opened_notify;default:true" json:"mailbox_opened_notify"`
    MailRemovedNotify       bool `gorm:"column:mail_removed_notify;default:true" json:"mail_removed_notify"`
    BatteryLowNotify        bool `gorm:"column:battery_low_notify;default:true" json:"battery_low_notify"`
    PushNotifications       bool `gorm:"column:push_notifications;default:true" json:"push_notifications"`
    EmailNotifications      bool `gorm:"column:email_notifications;default:true" json:"email_notifications"`
    CheckInterval           int  `gorm:"column:check_interval;default:30" json:"check_interval"`
    BatteryThreshold        int  `gorm:"column:battery_threshold;default:20" json:"battery_threshold"`
    CaptureImageOnOpen      bool `gorm:"column:capture_image_on_open;default:false" json:"capture_image_on_open"`
    CaptureImageOnDelivery  bool `gorm:"column:capture_image_on_delivery;default:false" json:"capture_image_on_delivery"`

    Events         []Event         `gorm:"foreignKey:DeviceID;constraint:OnDelete:CASCADE;" json:"events,omitempty"`
    HealthReadings []HealthReading `gorm:"foreignKey:DeviceID;constraint:OnDelete:CASCADE;" json:"health_readings,omitempty"`
    Notifications  []Notification  `gorm:"foreignKey:DeviceID;constraint:OnDelete:CASCADE;" json:"notifications,omitempty"`
    Images         []Image         `gorm:"foreignKey:DeviceID;constraint:OnDelete:CASCADE;" json:"images,omitempty"`
}

// DeviceSerial is a provisioning record written at manufacture time.
// A serial can be claimed by exactly one account; the claim flips
// is_claimed and stamps claimed_by/claimed_at in the same transaction
// that creates the Device row.
type DeviceSerial struct {
    gorm.Model
    SerialNumber     string     `gorm:"column:serial_number;size:64;not null;uniqueIndex" json:"serial_number"`
    DeviceModel      string     `gorm:"column:device_model;size:100;default:'mailbox_monitor_v1'" json:"device_model"`
    ManufacturedDate *time.Time `gorm:"column:manufactured_date" json:"manufactured_date"`
    IsValid          bool       `gorm:"column:is_valid;default:true" json:"is_valid"`
    IsClaimed        bool       `gorm:"column:is_claimed;default:false" json:"is_claimed"`
    ClaimedBy        string     `gorm:"column:claimed_by;size:255" json:"claimed_by"`
    ClaimedAt        *time.Time `gorm:"column:claimed_at" json:"claimed_at"`
}

func (DeviceSerial) TableName() string {
    return "device_serials"
}
