package notification

import (
	"fmt"
	"strings"
	"testing"

	"github.com/mailguard/mailguard-server/cmd/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	database, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(
		&models.Device{},
		&models.Notification{},
		&models.PushToken{},
	))
	return database
}

func createDevice(t *testing.T, database *gorm.DB, ownerID string) *models.Device {
	t.Helper()
	device := models.Device{
		OwnerID:  ownerID,
		Email:    ownerID + "@placeholder.local",
		Name:     "Front Mailbox",
		IsActive: true,
	}
	require.NoError(t, database.Create(&device).Error)
	require.NoError(t, database.First(&device, device.ID).Error)
	return &device
}

func TestEvaluateBatteryThreshold(t *testing.T) {
	t.Run("level below threshold creates a notification", func(t *testing.T) {
		database := setupTestDB(t)
		device := createDevice(t, database, "user_42")

		created, err := EvaluateBatteryThreshold(database, device, 19)
		require.NoError(t, err)
		require.NotNil(t, created)
		assert.Equal(t, models.NotificationBatteryLow, created.NotificationType)
		assert.Equal(t, device.ID, created.DeviceID)
		assert.Contains(t, created.Message, "19%")
	})

	t.Run("level equal to threshold does not qualify", func(t *testing.T) {
		database := setupTestDB(t)
		device := createDevice(t, database, "user_42")
		require.Equal(t, 20, device.BatteryThreshold)

		created, err := EvaluateBatteryThreshold(database, device, 20)
		require.NoError(t, err)
		assert.Nil(t, created)

		var count int64
		database.Model(&models.Notification{}).Count(&count)
		assert.Zero(t, count)
	})

	t.Run("disabled devices are never evaluated", func(t *testing.T) {
		database := setupTestDB(t)
		device := createDevice(t, database, "user_42")
		require.NoError(t, database.Model(device).Update("battery_low_notify", false).Error)
		device.BatteryLowNotify = false

		created, err := EvaluateBatteryThreshold(database, device, 1)
		require.NoError(t, err)
		assert.Nil(t, created)
	})

	t.Run("each qualifying reading produces its own row", func(t *testing.T) {
		database := setupTestDB(t)
		device := createDevice(t, database, "user_42")

		for i := 0; i < 3; i++ {
			created, err := EvaluateBatteryThreshold(database, device, 10)
			require.NoError(t, err)
			require.NotNil(t, created)
		}

		var count int64
		database.Model(&models.Notification{}).Count(&count)
		assert.EqualValues(t, 3, count)
	})

	t.Run("custom thresholds are respected", func(t *testing.T) {
		database := setupTestDB(t)
		device := createDevice(t, database, "user_42")
		require.NoError(t, database.Model(device).Update("battery_threshold", 50).Error)
		device.BatteryThreshold = 50

		created, err := EvaluateBatteryThreshold(database, device, 49)
		require.NoError(t, err)
		assert.NotNil(t, created)
	})
}

func TestEvaluateEvent(t *testing.T) {
	cases := []struct {
		eventType string
		wantType  string
	}{
		{models.EventDelivery, models.NotificationMailDelivered},
		{models.EventOpen, models.NotificationMailboxOpened},
		{models.EventRemoval, models.NotificationMailRemoved},
	}

	for _, tc := range cases {
		t.Run(tc.eventType, func(t *testing.T) {
			database := setupTestDB(t)
			device := createDevice(t, database, "user_42")

			created, err := EvaluateEvent(database, device, tc.eventType)
			require.NoError(t, err)
			require.NotNil(t, created)
			assert.Equal(t, tc.wantType, created.NotificationType)
		})
	}

	t.Run("close is silent", func(t *testing.T) {
		database := setupTestDB(t)
		device := createDevice(t, database, "user_42")

		created, err := EvaluateEvent(database, device, models.EventClose)
		require.NoError(t, err)
		assert.Nil(t, created)
	})

	t.Run("disabled settings suppress the notification", func(t *testing.T) {
		database := setupTestDB(t)
		device := createDevice(t, database, "user_42")
		device.MailDeliveredNotify = false

		created, err := EvaluateEvent(database, device, models.EventDelivery)
		require.NoError(t, err)
		assert.Nil(t, created)
	})
}
