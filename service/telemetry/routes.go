package telemetry

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/mailguard/mailguard-server/cmd/models"
	"github.com/mailguard/mailguard-server/service/notification"
	"github.com/mailguard/mailguard-server/service/ws"
	"gorm.io/gorm"
)

type TelemetryHandler struct {
	db       *gorm.DB
	notifier *notification.Notifier
	hub      *ws.Hub
}

func NewTelemetryHandler(db *gorm.DB, notifier *notification.Notifier, hub *ws.Hub) *TelemetryHandler {
	return &TelemetryHandler{db: db, notifier: notifier, hub: hub}
}

func (h *TelemetryHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/events", h.CreateEvent).Methods("POST")
	router.HandleFunc("/events", h.GetEvents).Methods("GET")
	router.HandleFunc("/iot/report", h.Report).Methods("GET")
	router.HandleFunc("/iot/activate", h.Activate).Methods("POST")
	router.HandleFunc("/iot/activate", h.CheckActivation).Methods("GET")
	router.HandleFunc("/devices/{id:[0-9]+}/health", h.CreateHealthReading).Methods("POST")
}

// CreateEvent ingests a full-form event report. The event type is
// validated before anything is written; an unknown type leaves no
// trace. The caller may backdate occurred_at, but last_seen always
// moves to now since the device just spoke to us.
func (h *TelemetryHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID   uint       `json:"device_id"`
		DeviceName string     `json:"device_name"`
		OwnerID    string     `json:"owner_id"`
		EventType  string     `json:"event_type"`
		Timestamp  *time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.DeviceID == 0 && req.DeviceName == "" {
		http.Error(w, "device_id or device_name is required", http.StatusBadRequest)
		return
	}
	if !models.ValidEventType(req.EventType) {
		http.Error(w, "Invalid event type", http.StatusBadRequest)
		return
	}

	ref := models.DeviceRef{ID: req.DeviceID, Name: req.DeviceName}
	var device *models.Device
	var err error
	if req.OwnerID != "" {
		device, err = models.ResolveOwnedDevice(h.db, req.OwnerID, ref)
	} else {
		device, err = models.ResolveDevice(h.db, ref)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Device not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch device", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	occurredAt := now
	if req.Timestamp != nil {
		occurredAt = *req.Timestamp
	}

	event := models.Event{
		DeviceID:   device.ID,
		EventType:  req.EventType,
		OwnerID:    device.OwnerID,
		OccurredAt: occurredAt,
	}
	if err := h.db.Create(&event).Error; err != nil {
		http.Error(w, "Failed to create event", http.StatusInternalServerError)
		return
	}

	if err := h.db.Model(device).Update("last_seen", now).Error; err != nil {
		http.Error(w, "Failed to update device", http.StatusInternalServerError)
		return
	}

	h.notifyEvent(device, &event)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(event)
}

func (h *TelemetryHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	query := h.db.Model(&models.Event{})

	if deviceID := r.URL.Query().Get("device_id"); deviceID != "" {
		id, err := strconv.Atoi(deviceID)
		if err != nil {
			http.Error(w, "Invalid device ID", http.StatusBadRequest)
			return
		}
		query = query.Where("device_id = ?", id)
	}
	if ownerID := r.URL.Query().Get("owner_id"); ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}
	if eventType := r.URL.Query().Get("event_type"); eventType != "" {
		if !models.ValidEventType(eventType) {
			http.Error(w, "Invalid event type", http.StatusBadRequest)
			return
		}
		query = query.Where("event_type = ?", eventType)
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	var events []models.Event
	if err := query.Order("occurred_at DESC").Limit(limit).Find(&events).Error; err != nil {
		http.Error(w, "Failed to fetch events", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"events": events,
		"total":  len(events),
	})
}

// Report is the compact ingestion endpoint for battery-powered
// firmware: a single GET with one-letter event codes so the radio can
// power down as fast as possible. Response bodies stay minimal for the
// same reason.
func (h *TelemetryHandler) Report(w http.ResponseWriter, r *http.Request) {
	code := strings.ToLower(r.URL.Query().Get("e"))
	eventType, ok := models.EventCodes[code]
	if !ok {
		writeCompactError(w, http.StatusBadRequest, "invalid event code")
		return
	}

	ref := models.DeviceRef{Name: r.URL.Query().Get("device_name")}
	if d := r.URL.Query().Get("d"); d != "" {
		id, err := strconv.Atoi(d)
		if err != nil {
			writeCompactError(w, http.StatusBadRequest, "invalid device id")
			return
		}
		ref = models.DeviceRef{ID: uint(id)}
	} else if ref.Name == "" {
		writeCompactError(w, http.StatusBadRequest, "missing device")
		return
	}

	device, err := models.ResolveDevice(h.db, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeCompactError(w, http.StatusNotFound, "device not found")
			return
		}
		writeCompactError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	now := time.Now()
	event := models.Event{
		DeviceID:   device.ID,
		EventType:  eventType,
		OwnerID:    device.OwnerID,
		OccurredAt: now,
	}
	if err := h.db.Create(&event).Error; err != nil {
		writeCompactError(w, http.StatusInternalServerError, "write failed")
		return
	}

	if err := h.db.Model(device).Update("last_seen", now).Error; err != nil {
		writeCompactError(w, http.StatusInternalServerError, "write failed")
		return
	}

	h.notifyEvent(device, &event)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"event_id":  event.ID,
		"timestamp": now,
	})
}

// CreateHealthReading stores a health report. Absent fields stay NULL
// in the row. When a battery level is present the low-battery rule
// runs before the response is written, so the alert exists by the time
// the device gets its ack.
func (h *TelemetryHandler) CreateHealthReading(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid device ID", http.StatusBadRequest)
		return
	}

	var req struct {
		OwnerID         string     `json:"owner_id"`
		BatteryLevel    *int       `json:"battery_level"`
		SignalStrength  *int       `json:"signal_strength"`
		Temperature     *float64   `json:"temperature"`
		FirmwareVersion *string    `json:"firmware_version"`
		ReportedAt      *time.Time `json:"reported_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" {
		http.Error(w, "owner_id is required", http.StatusBadRequest)
		return
	}
	if req.BatteryLevel != nil && (*req.BatteryLevel < 0 || *req.BatteryLevel > 100) {
		http.Error(w, "battery_level must be between 0 and 100", http.StatusBadRequest)
		return
	}

	device, err := models.ResolveOwnedDevice(h.db, req.OwnerID, models.DeviceRef{ID: uint(id)})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Device not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch device", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	reportedAt := now
	if req.ReportedAt != nil {
		reportedAt = *req.ReportedAt
	}

	reading := models.HealthReading{
		DeviceID:        device.ID,
		OwnerID:         device.OwnerID,
		BatteryLevel:    req.BatteryLevel,
		SignalStrength:  req.SignalStrength,
		Temperature:     req.Temperature,
		FirmwareVersion: req.FirmwareVersion,
		ReportedAt:      reportedAt,
	}
	if err := h.db.Create(&reading).Error; err != nil {
		http.Error(w, "Failed to create health reading", http.StatusInternalServerError)
		return
	}

	if err := h.db.Model(device).Update("last_seen", now).Error; err != nil {
		http.Error(w, "Failed to update device", http.StatusInternalServerError)
		return
	}

	if req.BatteryLevel != nil {
		created, err := notification.EvaluateBatteryThreshold(h.db, device, *req.BatteryLevel)
		if err != nil {
			http.Error(w, "Failed to evaluate battery threshold", http.StatusInternalServerError)
			return
		}
		if created != nil {
			h.notifier.Dispatch(device, created)
			if h.hub != nil {
				h.hub.Publish(device.OwnerID, "notification", created)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id": device.ID,
	})
}

// Activate is called by freshly flashed hardware once it can reach the
// network. A claimed serial maps the device onto its database row and
// switches it active.
func (h *TelemetryHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SerialNumber string `json:"serial_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SerialNumber == "" {
		writeCompactError(w, http.StatusBadRequest, "serial_number is required")
		return
	}

	var serial models.DeviceSerial
	if err := h.db.Where("serial_number = ?", req.SerialNumber).First(&serial).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeCompactError(w, http.StatusNotFound, "unknown serial number")
			return
		}
		writeCompactError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if !serial.IsValid {
		writeCompactError(w, http.StatusNotFound, "unknown serial number")
		return
	}
	if !serial.IsClaimed {
		writeCompactError(w, http.StatusConflict, "serial not claimed yet")
		return
	}

	device, err := models.ResolveDevice(h.db, models.DeviceRef{Serial: req.SerialNumber})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeCompactError(w, http.StatusConflict, "serial not claimed yet")
			return
		}
		writeCompactError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	now := time.Now()
	if err := h.db.Model(device).Updates(map[string]interface{}{
		"is_active": true,
		"last_seen": now,
	}).Error; err != nil {
		writeCompactError(w, http.StatusInternalServerError, "write failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"device_id": device.ID,
		"owner_id":  device.OwnerID,
	})
}

// CheckActivation lets a device poll whether its serial was claimed.
func (h *TelemetryHandler) CheckActivation(w http.ResponseWriter, r *http.Request) {
	serialNumber := r.URL.Query().Get("serial_number")
	if serialNumber == "" {
		writeCompactError(w, http.StatusBadRequest, "serial_number is required")
		return
	}

	var serial models.DeviceSerial
	if err := h.db.Where("serial_number = ?", serialNumber).First(&serial).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeCompactError(w, http.StatusNotFound, "unknown serial number")
			return
		}
		writeCompactError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "ok",
		"is_valid":   serial.IsValid,
		"is_claimed": serial.IsClaimed,
	})
}

func writeCompactError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "error",
		"message": message,
	})
}

func (h *TelemetryHandler) notifyEvent(device *models.Device, event *models.Event) {
	if h.hub != nil {
		h.hub.Publish(device.OwnerID, "event", event)
	}

	created, err := notification.EvaluateEvent(h.db, device, event.EventType)
	if err != nil {
		log.Printf("Error deriving notification for event %d: %v", event.ID, err)
		return
	}
	if created == nil {
		return
	}
	h.notifier.Dispatch(device, created)
	if h.hub != nil {
		h.hub.Publish(device.OwnerID, "notification", created)
	}
}
