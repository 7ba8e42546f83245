package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification types written by the server.
const (
    NotificationMailDelivered = "mail_delivered"
    NotificationMailboxOpened = "mailbox_opened"
    NotificationMailRemoved   = "mail_removed"
    NotificationBatteryLow    = "battery_low"
)

type Notification struct {
    gorm.Model
    DeviceID         uint      `gorm:"column:device_id;not null;index" json:"device_id"`
    NotificationType string    `gorm:"column:notification_type;size:50;not null" json:"notification_type"`
    Message          string    `gorm:"column:message;type:text" json:"message"`
    SentAt           time.Time `gorm:"column:sent_at;not null" json:"sent_at"`
    IsRead           bool      `gorm:"column:is_read;default:false" json:"is_read"`

    Device *Device `gorm:"foreignKey:DeviceID" json:"-"`
}

// PushToken registers a phone's Expo push token for an account.
type PushToken struct {
    gorm.Model
    Token      string `gorm:"not null;uniqueIndex:idx_token_account" json:"token"`
    AccountID  string `gorm:"column:account_id;not null;index;uniqueIndex:idx_token_account" json:"account_id"`
    DeviceType string `gorm:"type:varchar(50)" json:"device_type"`
    DeviceName string `gorm:"type:varchar(100)" json:"device_name,omitempty"`
}
