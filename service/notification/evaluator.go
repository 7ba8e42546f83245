package notification

import (
	"fmt"
	"time"

	"github.com/mailguard/mailguard-server/cmd/models"
	"gorm.io/gorm"
)

// EvaluateBatteryThreshold writes a battery_low notification when the
// reported level is strictly below the device's threshold and the
// device has battery alerts enabled. A level equal to the threshold
// does not qualify. Every qualifying reading produces a row; there is
// no suppression window, repeated low readings repeat the alert.
func EvaluateBatteryThreshold(db *gorm.DB, device *models.Device, level int) (*models.Notification, error) {
    if !device.BatteryLowNotify {
        return nil, nil
    }
    if level >= device.BatteryThreshold {
        return nil, nil
    }

    notification := models.Notification{
        DeviceID:         device.ID,
        NotificationType: models.NotificationBatteryLow,
        Message:          fmt.Sprintf("%s battery is at %d%% (threshold %d%%)", device.Name, level, device.BatteryThreshold),
        SentAt:           time.Now(),
    }
    if err := db.Create(&notification).Error; err != nil {
        return nil, err
    }
    return &notification, nil
}

var eventNotifications = map[string]struct {
    Type    string
    Message string
    Enabled func(*models.Device) bool
}{
    models.EventDelivery: {
        Type:    models.NotificationMailDelivered,
        Message: "Mail delivered to %s",
        Enabled: func(d *models.Device) bool { return d.MailDeliveredNotify },
    },
    models.EventOpen: {
        Type:    models.NotificationMailboxOpened,
        Message: "%s was opened",
        Enabled: func(d *models.Device) bool { return d.MailboxOpenedNotify },
    },
    models.EventRemoval: {
        Type:    models.NotificationMailRemoved,
        Message: "Mail removed from %s",
        Enabled: func(d *models.Device) bool { return d.MailRemovedNotify },
    },
}

// EvaluateEvent writes the notification matching an ingested event when
// the device's settings ask for one. Close events never notify.
func EvaluateEvent(db *gorm.DB, device *models.Device, eventType string) (*models.Notification, error) {
    rule, ok := eventNotifications[eventType]
    if !ok || !rule.Enabled(device) {
        return nil, nil
    }

    notification := models.Notification{
        DeviceID:         device.ID,
        NotificationType: rule.Type,
        Message:          fmt.Sprintf(rule.Message, device.Name),
        SentAt:           time.Now(),
    }
    if err := db.Create(&notification).Error; err != nil {
        return nil, err
    }
    return &notification, nil
}
