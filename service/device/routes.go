package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/mailguard/mailguard-server/cmd/models"
	"github.com/mailguard/mailguard-server/cmd/utils"
	"gorm.io/gorm"
)

type DeviceHandler struct {
    db *gorm.DB
}

func NewDeviceHandler(db *gorm.DB) *DeviceHandler {
    return &DeviceHandler{db: db}
}

func (h *DeviceHandler) RegisterRoutes(router *mux.Router) {
    router.HandleFunc("/devices/claim", utils.AuthMiddleware(h.ClaimDevice)).Methods("POST")
    router.HandleFunc("/devices/check", h.CheckDevices).Methods("GET")
    router.HandleFunc("/devices/lookup", h.LookupDevice).Methods("GET")
    router.HandleFunc("/devices/lookup/settings", h.LookupSettings).Methods("GET")
    router.HandleFunc("/devices/lookup/heartbeat", h.HeartbeatByName).Methods("POST")
    router.HandleFunc("/device/lookup-serial", h.LookupSerial).Methods("GET")
    router.HandleFunc("/devices", utils.AuthMiddleware(h.RegisterDevice)).Methods("POST")
    router.HandleFunc("/devices", utils.AuthMiddleware(h.GetDevices)).Methods("GET")
    router.HandleFunc("/devices/{id:[0-9]+}", utils.AuthMiddleware(h.GetDevice)).Methods("GET")
    router.HandleFunc("/devices/{id:[0-9]+}", utils.AuthMiddleware(h.UpdateDevice)).Methods("PUT")
    router.HandleFunc("/devices/{id:[0-9]+}", utils.AuthMiddleware(h.DeleteDevice)).Methods("DELETE")
    router.HandleFunc("/devices/{id:[0-9]+}/status", utils.AuthMiddleware(h.UpdateStatus)).Methods("PATCH")
    router.HandleFunc("/devices/{id:[0-9]+}/settings", utils.AuthMiddleware(h.GetSettings)).Methods("GET")
    router.HandleFunc("/devices/{id:[0-9]+}/settings", utils.AuthMiddleware(h.UpdateSettings)).Methods("PUT")
    router.HandleFunc("/devices/{id:[0-9]+}/heartbeat", h.Heartbeat).Methods("POST")
}

// ClaimDevice binds a provisioned serial number to the calling account.
// The provisioning row is flipped with a guarded UPDATE inside the same
// transaction that creates the device, so two racing claims cannot both
// succeed: the loser's UPDATE matches zero rows and the whole attempt
// rolls back.
func (h *DeviceHandler) ClaimDevice(w http.ResponseWriter, r *http.Request) {
    accountID, err := utils.GetAccountIDFromContext(r)
    if err != nil {
        http.Error(w, "Authentication required", http.StatusUnauthorized)
        return
    }

    var req struct {
        SerialNumber string `json:"serial_number"`
        DeviceName   string `json:"device_name"`
        Location     string `json:"location"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }
    if req.SerialNumber == "" {
        http.Error(w, "Serial number is required", http.StatusBadRequest)
        return
    }

    tx := h.db.Begin()
    if tx.Error != nil {
        http.Error(w, "Failed to start transaction", http.StatusInternalServerError)
        return
    }

    var serial models.DeviceSerial
    if err := tx.Where("serial_number = ? AND is_valid = ?", req.SerialNumber, true).First(&serial).Error; err != nil {
        tx.Rollback()
        if errors.Is(err, gorm.ErrRecordNotFound) {
            http.Error(w, "Invalid serial number. Please check the serial number on your device.", http.StatusNotFound)
            return
        }
        http.Error(w, "Failed to look up serial number", http.StatusInternalServerError)
        return
    }

    if serial.IsClaimed && serial.ClaimedBy != accountID {
        tx.Rollback()
        http.Error(w, "This device has already been claimed by another user", http.StatusConflict)
        return
    }

    // Re-claiming a serial you already own is a no-op.
    var existing models.Device
    if err := tx.Where("owner_id = ? AND serial_number = ?", accountID, req.SerialNumber).First(&existing).Error; err == nil {
        tx.Rollback()
        w.Header().Set("Content-Type", "application/json")
        json.NewEncoder(w).Encode(map[string]interface{}{
            "message":         "You have already claimed this device",
            "already_claimed": true,
            "device":          existing,
        })
        return
    }

    name := req.DeviceName
    if name == "" {
        name = fmt.Sprintf("Mailbox %s", req.SerialNumber)
    }
    location := req.Location
    if location == "" {
        location = "Not specified"
    }

    serialNumber := req.SerialNumber
    device := models.Device{
        OwnerID:      accountID,
        Email:        h.contactEmail(tx, accountID),
        Name:         name,
        SerialNumber: &serialNumber,
        Location:     location,
        IsActive:     true,
    }
    if err := tx.Create(&device).Error; err != nil {
        tx.Rollback()
        // A racing claim that committed first shows up here as a
        // unique violation on devices.serial_number: the pre-check
        // read the provisioning row before the winner's commit.
        if isDuplicateKey(err) {
            http.Error(w, "This device has already been claimed by another user", http.StatusConflict)
            return
        }
        http.Error(w, "Failed to create device", http.StatusInternalServerError)
        return
    }

    now := time.Now()
    result := tx.Model(&models.DeviceSerial{}).
        Where("serial_number = ? AND is_valid = ? AND (is_claimed = ? OR claimed_by = ?)",
            req.SerialNumber, true, false, accountID).
        Updates(map[string]interface{}{
            "is_claimed": true,
            "claimed_by": accountID,
            "claimed_at": now,
        })
    if result.Error != nil {
        tx.Rollback()
        http.Error(w, "Failed to claim serial number", http.StatusInternalServerError)
        return
    }
    if result.RowsAffected == 0 {
        // Someone else claimed it between our read and this write.
        tx.Rollback()
        http.Error(w, "This device has already been claimed by another user", http.StatusConflict)
        return
    }

    if err := tx.Commit().Error; err != nil {
        http.Error(w, "Failed to claim device", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(http.StatusCreated)
    json.NewEncoder(w).Encode(map[string]interface{}{
        "message":      "Device claimed successfully",
        "device":       device,
        "device_model": serial.DeviceModel,
        "claimed_at":   now,
    })
}

// isDuplicateKey recognizes unique-constraint violations across the
// postgres and sqlite drivers, with the message check covering setups
// where the dialector does not translate to gorm.ErrDuplicatedKey.
func isDuplicateKey(err error) bool {
    if errors.Is(err, gorm.ErrDuplicatedKey) {
        return true
    }
    msg := err.Error()
    return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}

// contactEmail reuses the email from another of the account's devices
// when one exists; the identity provider keeps the real address, so a
// placeholder is fine until a profile sync fills it in.
func (h *DeviceHandler) contactEmail(tx *gorm.DB, accountID string) string {
    var other models.Device
    if err := tx.Where("owner_id = ? AND email <> ''", accountID).First(&other).Error; err == nil {
        return other.Email
    }
    return fmt.Sprintf("%s@placeholder.local", accountID)
}

// RegisterDevice creates a device without a provisioning serial. Mostly
// used by the dashboard's quick-start flow; an account's existing
// device is returned instead of creating a duplicate.
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
    accountID, err := utils.GetAccountIDFromContext(r)
    if err != nil {
        http.Error(w, "Authentication required", http.StatusUnauthorized)
        return
    }

    var req struct {
        Email    string `json:"email"`
        Name     string `json:"name"`
        Location string `json:"location"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    var existing models.Device
    if err := h.db.Where("owner_id = ?", accountID).First(&existing).Error; err == nil {
        w.Header().Set("Content-Type", "application/json")
        json.NewEncoder(w).Encode(map[string]interface{}{
            "existing": true,
            "device":   existing,
        })
        return
    }

    if req.Name == "" {
        req.Name = "My Mailbox"
    }
    if req.Location == "" {
        req.Location = "Not specified"
    }
    email := req.Email
    if email == "" {
        email = fmt.Sprintf("%s@placeholder.local", accountID)
    }

    device := models.Device{
        OwnerID:  accountID,
        Email:    email,
        Name:     req.Name,
        Location: req.Location,
        IsActive: true,
    }
    if err := h.db.Create(&device).Error; err != nil {
        http.Error(w, "Failed to create device", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(http.StatusCreated)
    json.NewEncoder(w).Encode(map[string]interface{}{
        "existing": false,
        "device":   device,
    })
}

func (h *DeviceHandler) GetDevices(w http.ResponseWriter, r *http.Request) {
    accountID, err := utils.GetAccountIDFromContext(r)
    if err != nil {
        http.Error(w, "Authentication required", http.StatusUnauthorized)
        return
    }

    query := h.db.Where("owner_id = ?", accountID)
    if name := r.URL.Query().Get("name"); name != "" {
        query = query.Where("name = ?", name)
    }
    if active := r.URL.Query().Get("is_active"); active != "" {
        isActive, err := strconv.ParseBool(active)
        if err != nil {
            http.Error(w, "Invalid is_active value", http.StatusBadRequest)
            return
        }
        query = query.Where("is_active = ?", isActive)
    }

    var devices []models.Device
    if err := query.Order("created_at DESC").Find(&devices).Error; err != nil {
        http.Error(w, "Failed to fetch devices", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "devices": devices,
        "total":   len(devices),
    })
}

func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
    accountID, err := utils.GetAccountIDFromContext(r)
    if err != nil {
        http.Error(w, "Authentication required", http.StatusUnauthorized)
        return
    }

    device, ok := h.ownedDeviceFromPath(w, r, accountID)
    if !ok {
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(device)
}

func (h *DeviceHandler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
    accountID, err := utils.GetAccountIDFromContext(r)
    if err != nil {
        http.Error(w, "Authentication required", http.StatusUnauthorized)
        return
    }

    device, ok := h.ownedDeviceFromPath(w, r, accountID)
    if !ok {
        return
    }

    var req struct {
        Name     *string `json:"name"`
        Location *string `json:"location"`
        Email    *string `json:"email"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    updates := map[string]interface{}{}
    if req.Name != nil {
        updates["name"] = *req.Name
    }
    if req.Location != nil {
        updates["location"] = *req.Location
    }
    if req.Email != nil {
        updates["email"] = *req.Email
    }
    if len(updates) == 0 {
        http.Error(w, "No fields to update", http.StatusBadRequest)
        return
    }

    if err := h.db.Model(device).Updates(updates).Error; err != nil {
        http.Error(w, "Failed to update device", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(device)
}

// DeleteDevice removes the device and releases its serial so the
// hardware can be claimed again, in one transaction.
func (h *DeviceHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
    accountID, err := utils.GetAccountIDFromContext(r)
    if err != nil {
        http.Error(w, "Authentication required", http.StatusUnauthorized)
        return
    }

    device, ok := h.ownedDeviceFromPath(w, r, accountID)
    if !ok {
        return
    }

    tx := h.db.Begin()
    if tx.Error != nil {
        http.Error(w, "Failed to start transaction", http.StatusInternalServerError)
        return
    }

    // Hard delete: a soft-deleted row would keep the serial_number
    // unique index occupied and block re-claiming the hardware.
    if err := tx.Unscoped().Select("Events", "HealthReadings", "Notifications", "Images").Delete(device).Error; err != nil {
        tx.Rollback()
        http.Error(w, "Failed to delete device", http.StatusInternalServerError)
        return
    }

    if device.SerialNumber != nil {
        if err := tx.Model(&models.DeviceSerial{}).
            Where("serial_number = ? AND claimed_by = ?", *device.SerialNumber, accountID).
            Updates(map[string]interface{}{
                "is_claimed": false,
                "claimed_by": "",
                "claimed_at": nil,
            }).Error; err != nil {
            tx.Rollback()
            http.Error(w, "Failed to release serial number", http.StatusInternalServerError)
            return
        }
    }

    if err := tx.Commit().Error; err != nil {
        http.Error(w, "Failed to delete device", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "message": "Device deleted successfully",
    })
}

func (h *DeviceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
    accountID, err := utils.GetAccountIDFromContext(r)
    if err != nil {
        http.Error(w, "Authentication required", http.StatusUnauthorized)
        return
    }

    device, ok := h.ownedDeviceFromPath(w, r, accountID)
    if !ok {
        return
    }

    var req struct {
        IsActive *bool `json:"is_active"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsActive == nil {
        http.Error(w, "is_active is required", http.StatusBadRequest)
        return
    }

    if err := h.db.Model(device).Update("is_active", *req.IsActive).Error; err != nil {
        http.Error(w, "Failed to update status", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "id":        device.ID,
        "is_active": *req.IsActive,
    })
}

// Heartbeat marks the device alive. A health log row is written as a
// side record; its failure must never fail the heartbeat, a device in
// the field retries forever on anything but 200.
func (h *DeviceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    id, err := strconv.Atoi(vars["id"])
    if err != nil {
        http.Error(w, "Invalid device ID", http.StatusBadRequest)
        return
    }

    device, err := models.ResolveDevice(h.db, models.DeviceRef{ID: uint(id)})
    if err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            http.Error(w, "Device not found", http.StatusNotFound)
            return
        }
        http.Error(w, "Failed to fetch device", http.StatusInternalServerError)
        return
    }

    h.recordHeartbeat(w, device)
}

func (h *DeviceHandler) recordHeartbeat(w http.ResponseWriter, device *models.Device) {
    now := time.Now()
    if err := h.db.Model(device).Update("last_seen", now).Error; err != nil {
        http.Error(w, "Failed to update device", http.StatusInternalServerError)
        return
    }

    reading := models.HealthReading{
        DeviceID:   device.ID,
        OwnerID:    device.OwnerID,
        ReportedAt: now,
    }
    if err := h.db.Create(&reading).Error; err != nil {
        log.Printf("Error recording heartbeat health log for device %d: %v", device.ID, err)
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "status":    "ok",
        "last_seen": now,
    })
}

func (h *DeviceHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
    accountID, err := utils.GetAccountIDFromContext(r)
    if err != nil {
        http.Error(w, "Authentication required", http.StatusUnauthorized)
        return
    }

    device, ok := h.ownedDeviceFromPath(w, r, accountID)
    if !ok {
        return
    }

    writeSettings(w, device)
}

func (h *DeviceHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
    accountID, err := utils.GetAccountIDFromContext(r)
    if err != nil {
        http.Error(w, "Authentication required", http.StatusUnauthorized)
        return
    }

    device, ok := h.ownedDeviceFromPath(w, r, accountID)
    if !ok {
        return
    }

    h.applySettings(w, r, device)
}

// applySettings updates only the fields present in the request body.
// Every settable column is enumerated by hand; absent fields stay
// untouched, including booleans the client happens to hold as false.
func (h *DeviceHandler) applySettings(w http.ResponseWriter, r *http.Request, device *models.Device) {
    var req struct {
        MailDeliveredNotify    *bool `json:"mail_delivered_notify"`
        MailboxOpenedNotify    *bool `json:"mailbox_opened_notify"`
        MailRemovedNotify      *bool `json:"mail_removed_notify"`
        BatteryLowNotify       *bool `json:"battery_low_notify"`
        PushNotifications      *bool `json:"push_notifications"`
        EmailNotifications     *bool `json:"email_notifications"`
        CheckInterval          *int  `json:"check_interval"`
        BatteryThreshold       *int  `json:"battery_threshold"`
        CaptureImageOnOpen     *bool `json:"capture_image_on_open"`
        CaptureImageOnDelivery *bool `json:"capture_image_on_delivery"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    updates := map[string]interface{}{}
    if req.MailDeliveredNotify != nil {
        updates["mail_delivered_notify"] = *req.MailDeliveredNotify
    }
    if req.MailboxOpenedNotify != nil {
        updates["mailbox_opened_notify"] = *req.MailboxOpenedNotify
    }
    if req.MailRemovedNotify != nil {
        updates["mail_removed_notify"] = *req.MailRemovedNotify
    }
    if req.BatteryLowNotify != nil {
        updates["battery_low_notify"] = *req.BatteryLowNotify
    }
    if req.PushNotifications != nil {
        updates["push_notifications"] = *req.PushNotifications
    }
    if req.EmailNotifications != nil {
        updates["email_notifications"] = *req.EmailNotifications
    }
    if req.CheckInterval != nil {
        if *req.CheckInterval <= 0 {
            http.Error(w, "check_interval must be positive", http.StatusBadRequest)
            return
        }
        updates["check_interval"] = *req.CheckInterval
    }
    if req.BatteryThreshold != nil {
        if *req.BatteryThreshold < 0 || *req.BatteryThreshold > 100 {
            http.Error(w, "battery_threshold must be between 0 and 100", http.StatusBadRequest)
            return
        }
        updates["battery_threshold"] = *req.BatteryThreshold
    }
    if req.CaptureImageOnOpen != nil {
        updates["capture_image_on_open"] = *req.CaptureImageOnOpen
    }
    if req.CaptureImageOnDelivery != nil {
        updates["capture_image_on_delivery"] = *req.CaptureImageOnDelivery
    }
    if len(updates) == 0 {
        http.Error(w, "No settings provided", http.StatusBadRequest)
        return
    }

    if err := h.db.Model(device).Updates(updates).Error; err != nil {
        http.Error(w, "Failed to update settings", http.StatusInternalServerError)
        return
    }

    writeSettings(w, device)
}

func writeSettings(w http.ResponseWriter, device *models.Device) {
    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "device_id":                 device.ID,
        "mail_delivered_notify":     device.MailDeliveredNotify,
        "mailbox_opened_notify":     device.MailboxOpenedNotify,
        "mail_removed_notify":       device.MailRemovedNotify,
        "battery_low_notify":        device.BatteryLowNotify,
        "push_notifications":        device.PushNotifications,
        "email_notifications":       device.EmailNotifications,
        "check_interval":            device.CheckInterval,
        "battery_threshold":         device.BatteryThreshold,
        "capture_image_on_open":     device.CaptureImageOnOpen,
        "capture_image_on_delivery": device.CaptureImageOnDelivery,
    })
}

// LookupDevice resolves a device by exact name for a given owner. Used
// by firmware that was configured with a name instead of a numeric id.
func (h *DeviceHandler) LookupDevice(w http.ResponseWriter, r *http.Request) {
    device, ok := h.deviceFromNameQuery(w, r)
    if !ok {
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(device)
}

func (h *DeviceHandler) LookupSettings(w http.ResponseWriter, r *http.Request) {
    device, ok := h.deviceFromNameQuery(w, r)
    if !ok {
        return
    }

    writeSettings(w, device)
}

func (h *DeviceHandler) HeartbeatByName(w http.ResponseWriter, r *http.Request) {
    var req struct {
        DeviceName string `json:"device_name"`
        OwnerID    string `json:"owner_id"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }
    if req.DeviceName == "" || req.OwnerID == "" {
        http.Error(w, "device_name and owner_id are required", http.StatusBadRequest)
        return
    }

    device, err := models.ResolveOwnedDevice(h.db, req.OwnerID, models.DeviceRef{Name: req.DeviceName})
    if err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            http.Error(w, "Device not found", http.StatusNotFound)
            return
        }
        http.Error(w, "Failed to fetch device", http.StatusInternalServerError)
        return
    }

    h.recordHeartbeat(w, device)
}

// LookupSerial reports the provisioning state of a serial number. No
// ownership filter; the device itself calls this before it has one.
func (h *DeviceHandler) LookupSerial(w http.ResponseWriter, r *http.Request) {
    serialNumber := r.URL.Query().Get("serial_number")
    if serialNumber == "" {
        http.Error(w, "serial_number is required", http.StatusBadRequest)
        return
    }

    var serial models.DeviceSerial
    if err := h.db.Where("serial_number = ?", serialNumber).First(&serial).Error; err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            http.Error(w, "Serial number not found", http.StatusNotFound)
            return
        }
        http.Error(w, "Failed to look up serial number", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "serial_number": serial.SerialNumber,
        "device_model":  serial.DeviceModel,
        "is_valid":      serial.IsValid,
        "is_claimed":    serial.IsClaimed,
    })
}

func (h *DeviceHandler) CheckDevices(w http.ResponseWriter, r *http.Request) {
    ownerID := r.URL.Query().Get("owner_id")
    if ownerID == "" {
        http.Error(w, "owner_id is required", http.StatusBadRequest)
        return
    }

    var count int64
    if err := h.db.Model(&models.Device{}).Where("owner_id = ?", ownerID).Count(&count).Error; err != nil {
        http.Error(w, "Failed to count devices", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "has_device":   count > 0,
        "device_count": count,
    })
}

func (h *DeviceHandler) ownedDeviceFromPath(w http.ResponseWriter, r *http.Request, accountID string) (*models.Device, bool) {
    vars := mux.Vars(r)
    id, err := strconv.Atoi(vars["id"])
    if err != nil {
        http.Error(w, "Invalid device ID", http.StatusBadRequest)
        return nil, false
    }

    device, err := models.ResolveOwnedDevice(h.db, accountID, models.DeviceRef{ID: uint(id)})
    if err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            http.Error(w, "Device not found", http.StatusNotFound)
            return nil, false
        }
        http.Error(w, "Failed to fetch device", http.StatusInternalServerError)
        return nil, false
    }
    return device, true
}

func (h *DeviceHandler) deviceFromNameQuery(w http.ResponseWriter, r *http.Request) (*models.Device, bool) {
    name := r.URL.Query().Get("name")
    ownerID := r.URL.Query().Get("owner_id")
    if name == "" || ownerID == "" {
        http.Error(w, "name and owner_id are required", http.StatusBadRequest)
        return nil, false
    }

    device, err := models.ResolveOwnedDevice(h.db, ownerID, models.DeviceRef{Name: name})
    if err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            http.Error(w, "Device not found", http.StatusNotFound)
            return nil, false
        }
        http.Error(w, "Failed to fetch device", http.StatusInternalServerError)
        return nil, false
    }
    return device, true
}
