package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/mailguard/mailguard-server/cmd/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	os.Setenv("SECRET_KEY", "test-secret")
	os.Exit(m.Run())
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	database, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(
		&models.DeviceSerial{},
		&models.Device{},
		&models.Event{},
		&models.HealthReading{},
		&models.Notification{},
		&models.Image{},
		&models.PushToken{},
	))
	return database
}

func newTestRouter(t *testing.T) (*gorm.DB, *mux.Router) {
	t.Helper()
	database := setupTestDB(t)
	router := mux.NewRouter()
	NewDeviceHandler(database).RegisterRoutes(router)
	return database, router
}

func authHeader(t *testing.T, accountID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: accountID})
	signed, err := token.SignedString([]byte(os.Getenv("SECRET_KEY")))
	require.NoError(t, err)
	return "Bearer " + signed
}

func doJSON(t *testing.T, router *mux.Router, method, path, account string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if account != "" {
		req.Header.Set("Authorization", authHeader(t, account))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func seedSerial(t *testing.T, database *gorm.DB, serialNumber string) *models.DeviceSerial {
	t.Helper()
	serial := models.DeviceSerial{SerialNumber: serialNumber, IsValid: true}
	require.NoError(t, database.Create(&serial).Error)
	return &serial
}

func createDevice(t *testing.T, database *gorm.DB, ownerID, name string) *models.Device {
	t.Helper()
	device := models.Device{
		OwnerID:  ownerID,
		Email:    ownerID + "@placeholder.local",
		Name:     name,
		IsActive: true,
	}
	require.NoError(t, database.Create(&device).Error)
	require.NoError(t, database.First(&device, device.ID).Error)
	return &device
}

func TestClaimDevice(t *testing.T) {
	t.Run("fresh claim creates device and flips the serial", func(t *testing.T) {
		database, router := newTestRouter(t)
		seedSerial(t, database, "MG-AAA111")

		rec := doJSON(t, router, "POST", "/devices/claim", "user_42", map[string]string{
			"serial_number": "MG-AAA111",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var device models.Device
		require.NoError(t, database.Where("owner_id = ?", "user_42").First(&device).Error)
		require.NotNil(t, device.SerialNumber)
		assert.Equal(t, "MG-AAA111", *device.SerialNumber)
		assert.Equal(t, "Mailbox MG-AAA111", device.Name)
		assert.Equal(t, "Not specified", device.Location)
		assert.True(t, device.IsActive)

		var serial models.DeviceSerial
		require.NoError(t, database.Where("serial_number = ?", "MG-AAA111").First(&serial).Error)
		assert.True(t, serial.IsClaimed)
		assert.Equal(t, "user_42", serial.ClaimedBy)
		assert.NotNil(t, serial.ClaimedAt)
	})

	t.Run("unknown serial is rejected without side effects", func(t *testing.T) {
		database, router := newTestRouter(t)

		rec := doJSON(t, router, "POST", "/devices/claim", "user_42", map[string]string{
			"serial_number": "MG-NOPE",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var count int64
		database.Model(&models.Device{}).Count(&count)
		assert.Zero(t, count)
	})

	t.Run("invalidated serial resolves like a missing one", func(t *testing.T) {
		database, router := newTestRouter(t)
		serial := seedSerial(t, database, "MG-BBB222")
		require.NoError(t, database.Model(serial).Update("is_valid", false).Error)

		rec := doJSON(t, router, "POST", "/devices/claim", "user_42", map[string]string{
			"serial_number": "MG-BBB222",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("serial claimed by another account conflicts", func(t *testing.T) {
		database, router := newTestRouter(t)
		seedSerial(t, database, "MG-CCC333")

		rec := doJSON(t, router, "POST", "/devices/claim", "user_1", map[string]string{
			"serial_number": "MG-CCC333",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = doJSON(t, router, "POST", "/devices/claim", "user_2", map[string]string{
			"serial_number": "MG-CCC333",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)

		var count int64
		database.Model(&models.Device{}).Where("owner_id = ?", "user_2").Count(&count)
		assert.Zero(t, count)
	})

	t.Run("losing a claim race surfaces a conflict", func(t *testing.T) {
		// Mid-race view of the losing account: its read of the
		// provisioning row predates the winner's commit, so the row
		// still says unclaimed, but the winner's device row already
		// holds the serial. The insert then trips the serial_number
		// unique index, which must come back as a conflict, not a
		// storage error.
		database, router := newTestRouter(t)
		seedSerial(t, database, "MG-RACE01")

		serialNumber := "MG-RACE01"
		winner := models.Device{
			OwnerID:      "user_1",
			Email:        "user_1@placeholder.local",
			Name:         "Mailbox MG-RACE01",
			SerialNumber: &serialNumber,
			IsActive:     true,
		}
		require.NoError(t, database.Create(&winner).Error)

		rec := doJSON(t, router, "POST", "/devices/claim", "user_2", map[string]string{
			"serial_number": "MG-RACE01",
		})
		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

		var count int64
		database.Model(&models.Device{}).Where("owner_id = ?", "user_2").Count(&count)
		assert.Zero(t, count)

		var serial models.DeviceSerial
		require.NoError(t, database.Where("serial_number = ?", "MG-RACE01").First(&serial).Error)
		assert.False(t, serial.IsClaimed)
		assert.Empty(t, serial.ClaimedBy)
	})

	t.Run("re-claiming your own serial is idempotent", func(t *testing.T) {
		database, router := newTestRouter(t)
		seedSerial(t, database, "MG-DDD444")

		rec := doJSON(t, router, "POST", "/devices/claim", "user_42", map[string]string{
			"serial_number": "MG-DDD444",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = doJSON(t, router, "POST", "/devices/claim", "user_42", map[string]string{
			"serial_number": "MG-DDD444",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["already_claimed"])

		var count int64
		database.Model(&models.Device{}).Count(&count)
		assert.EqualValues(t, 1, count)
	})

	t.Run("claim recovers a serial stuck on the same account", func(t *testing.T) {
		// A claimed flag without a device row happens when a delete
		// failed halfway in an older release. The guarded update
		// accepts claimed_by == caller, so the claim heals it.
		database, router := newTestRouter(t)
		serial := seedSerial(t, database, "MG-EEE555")
		require.NoError(t, database.Model(serial).Updates(map[string]interface{}{
			"is_claimed": true,
			"claimed_by": "user_42",
		}).Error)

		rec := doJSON(t, router, "POST", "/devices/claim", "user_42", map[string]string{
			"serial_number": "MG-EEE555",
		})
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("missing serial number is a bad request", func(t *testing.T) {
		_, router := newTestRouter(t)
		rec := doJSON(t, router, "POST", "/devices/claim", "user_42", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing token is unauthorized", func(t *testing.T) {
		_, router := newTestRouter(t)
		rec := doJSON(t, router, "POST", "/devices/claim", "", map[string]string{
			"serial_number": "MG-FFF666",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestUpdateSettings(t *testing.T) {
	t.Run("only provided fields change", func(t *testing.T) {
		database, router := newTestRouter(t)
		device := createDevice(t, database, "user_42", "Front Mailbox")

		rec := doJSON(t, router, "PUT", fmt.Sprintf("/devices/%d/settings", device.ID), "user_42", map[string]interface{}{
			"battery_threshold": 35,
			"mailbox_opened_notify": false,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var reloaded models.Device
		require.NoError(t, database.First(&reloaded, device.ID).Error)
		assert.Equal(t, 35, reloaded.BatteryThreshold)
		assert.False(t, reloaded.MailboxOpenedNotify)

		// Untouched settings keep their previous values.
		assert.Equal(t, device.CheckInterval, reloaded.CheckInterval)
		assert.Equal(t, device.BatteryLowNotify, reloaded.BatteryLowNotify)
		assert.Equal(t, device.PushNotifications, reloaded.PushNotifications)
		assert.Equal(t, device.MailDeliveredNotify, reloaded.MailDeliveredNotify)
	})

	t.Run("empty update is rejected", func(t *testing.T) {
		database, router := newTestRouter(t)
		device := createDevice(t, database, "user_42", "Front Mailbox")

		rec := doJSON(t, router, "PUT", fmt.Sprintf("/devices/%d/settings", device.ID), "user_42", map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("out of range threshold is rejected", func(t *testing.T) {
		database, router := newTestRouter(t)
		device := createDevice(t, database, "user_42", "Front Mailbox")

		rec := doJSON(t, router, "PUT", fmt.Sprintf("/devices/%d/settings", device.ID), "user_42", map[string]interface{}{
			"battery_threshold": 150,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("someone else's device looks nonexistent", func(t *testing.T) {
		database, router := newTestRouter(t)
		device := createDevice(t, database, "user_1", "Front Mailbox")

		rec := doJSON(t, router, "PUT", fmt.Sprintf("/devices/%d/settings", device.ID), "user_2", map[string]interface{}{
			"battery_threshold": 35,
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHeartbeat(t *testing.T) {
	t.Run("updates last_seen and logs a health row", func(t *testing.T) {
		database, router := newTestRouter(t)
		device := createDevice(t, database, "user_42", "Front Mailbox")
		require.Nil(t, device.LastSeen)

		rec := doJSON(t, router, "POST", fmt.Sprintf("/devices/%d/heartbeat", device.ID), "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var reloaded models.Device
		require.NoError(t, database.First(&reloaded, device.ID).Error)
		assert.NotNil(t, reloaded.LastSeen)

		var count int64
		database.Model(&models.HealthReading{}).Where("device_id = ?", device.ID).Count(&count)
		assert.EqualValues(t, 1, count)
	})

	t.Run("still succeeds when the health log insert fails", func(t *testing.T) {
		database, router := newTestRouter(t)
		device := createDevice(t, database, "user_42", "Front Mailbox")

		require.NoError(t, database.Migrator().DropTable(&models.HealthReading{}))

		rec := doJSON(t, router, "POST", fmt.Sprintf("/devices/%d/heartbeat", device.ID), "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var reloaded models.Device
		require.NoError(t, database.First(&reloaded, device.ID).Error)
		assert.NotNil(t, reloaded.LastSeen)
	})

	t.Run("unknown device is not found", func(t *testing.T) {
		_, router := newTestRouter(t)
		rec := doJSON(t, router, "POST", "/devices/9999/heartbeat", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDeleteDevice(t *testing.T) {
	t.Run("releases the serial for a future claim", func(t *testing.T) {
		database, router := newTestRouter(t)
		seedSerial(t, database, "MG-GGG777")

		rec := doJSON(t, router, "POST", "/devices/claim", "user_42", map[string]string{
			"serial_number": "MG-GGG777",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		var device models.Device
		require.NoError(t, database.Where("owner_id = ?", "user_42").First(&device).Error)

		rec = doJSON(t, router, "DELETE", fmt.Sprintf("/devices/%d", device.ID), "user_42", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var serial models.DeviceSerial
		require.NoError(t, database.Where("serial_number = ?", "MG-GGG777").First(&serial).Error)
		assert.False(t, serial.IsClaimed)
		assert.Empty(t, serial.ClaimedBy)

		// The serial can be claimed again, even by another account.
		rec = doJSON(t, router, "POST", "/devices/claim", "user_77", map[string]string{
			"serial_number": "MG-GGG777",
		})
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})
}

func TestLookupAndCheck(t *testing.T) {
	t.Run("lookup by name is owner scoped", func(t *testing.T) {
		database, router := newTestRouter(t)
		createDevice(t, database, "user_1", "Front Mailbox")

		rec := doJSON(t, router, "GET", "/devices/lookup?name=Front+Mailbox&owner_id=user_1", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, router, "GET", "/devices/lookup?name=Front+Mailbox&owner_id=user_2", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("serial lookup reports claim state", func(t *testing.T) {
		database, router := newTestRouter(t)
		seedSerial(t, database, "MG-HHH888")

		rec := doJSON(t, router, "GET", "/device/lookup-serial?serial_number=MG-HHH888", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["is_valid"])
		assert.Equal(t, false, resp["is_claimed"])
	})

	t.Run("device check counts the account's devices", func(t *testing.T) {
		database, router := newTestRouter(t)
		createDevice(t, database, "user_1", "Front Mailbox")

		rec := doJSON(t, router, "GET", "/devices/check?owner_id=user_1", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["has_device"])
		assert.EqualValues(t, 1, resp["device_count"])

		rec = doJSON(t, router, "GET", "/devices/check?owner_id=user_2", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, false, resp["has_device"])
	})
}
