package notification

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/mailguard/mailguard-server/cmd/models"
	"github.com/mailguard/mailguard-server/cmd/utils"
	"github.com/mailguard/mailguard-server/service/ws"
	"gorm.io/gorm"
)

type NotificationHandler struct {
	db       *gorm.DB
	notifier *Notifier
	hub      *ws.Hub
}

func NewNotificationHandler(db *gorm.DB, notifier *Notifier, hub *ws.Hub) *NotificationHandler {
	return &NotificationHandler{db: db, notifier: notifier, hub: hub}
}

func (h *NotificationHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/notifications", utils.AuthMiddleware(h.GetNotifications)).Methods("GET")
	router.HandleFunc("/notifications", utils.AuthMiddleware(h.CreateNotification)).Methods("POST")
	router.HandleFunc("/notifications/{id:[0-9]+}/read", utils.AuthMiddleware(h.MarkRead)).Methods("PATCH")
	router.HandleFunc("/notifications/{id:[0-9]+}", utils.AuthMiddleware(h.DeleteNotification)).Methods("DELETE")
	router.HandleFunc("/push-tokens", utils.AuthMiddleware(h.RegisterPushToken)).Methods("POST")
	router.HandleFunc("/push-tokens/{id:[0-9]+}", utils.AuthMiddleware(h.DeletePushToken)).Methods("DELETE")
}

func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r)
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	query := h.db.Model(&models.Notification{}).
		Joins("JOIN devices ON devices.id = notifications.device_id").
		Where("devices.owner_id = ?", accountID)

	if deviceID := r.URL.Query().Get("device_id"); deviceID != "" {
		id, err := strconv.Atoi(deviceID)
		if err != nil {
			http.Error(w, "Invalid device ID", http.StatusBadRequest)
			return
		}
		query = query.Where("notifications.device_id = ?", id)
	}
	if unread := r.URL.Query().Get("unread"); unread == "true" {
		query = query.Where("notifications.is_read = ?", false)
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

	var notifications []models.Notification
	if err := query.Order("sent_at DESC").Limit(limit).Find(&notifications).Error; err != nil {
		http.Error(w, "Failed to fetch notifications", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"notifications": notifications,
		"total":         len(notifications),
	})
}

// CreateNotification records a notification for one of the caller's
// devices and pushes it out over the best-effort channels.
func (h *NotificationHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r)
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req struct {
		DeviceID         uint   `json:"device_id"`
		NotificationType string `json:"notification_type"`
		Message          string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.DeviceID == 0 || req.NotificationType == "" {
		http.Error(w, "device_id and notification_type are required", http.StatusBadRequest)
		return
	}

	device, err := models.ResolveOwnedDevice(h.db, accountID, models.DeviceRef{ID: req.DeviceID})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Device not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch device", http.StatusInternalServerError)
		return
	}

	notification := models.Notification{
		DeviceID:         device.ID,
		NotificationType: req.NotificationType,
		Message:          req.Message,
		SentAt:           time.Now(),
	}
	if err := h.db.Create(&notification).Error; err != nil {
		http.Error(w, "Failed to create notification", http.StatusInternalServerError)
		return
	}

	h.notifier.Dispatch(device, &notification)
	if h.hub != nil {
		h.hub.Publish(device.OwnerID, "notification", notification)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(notification)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r)
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	notification, ok := h.ownedNotificationFromPath(w, r, accountID)
	if !ok {
		return
	}

	if err := h.db.Model(notification).Update("is_read", true).Error; err != nil {
		http.Error(w, "Failed to update notification", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notification)
}

func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r)
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	notification, ok := h.ownedNotificationFromPath(w, r, accountID)
	if !ok {
		return
	}

	if err := h.db.Delete(notification).Error; err != nil {
		http.Error(w, "Failed to delete notification", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Notification deleted successfully",
	})
}

func (h *NotificationHandler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r)
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req struct {
		Token      string `json:"token"`
		DeviceType string `json:"device_type"`
		DeviceName string `json:"device_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		http.Error(w, "Token is required", http.StatusBadRequest)
		return
	}

	// Re-registering the same token is an update, not a duplicate.
	var existing models.PushToken
	if err := h.db.Where("token = ? AND account_id = ?", req.Token, accountID).First(&existing).Error; err == nil {
		if err := h.db.Model(&existing).Updates(map[string]interface{}{
			"device_type": req.DeviceType,
			"device_name": req.DeviceName,
		}).Error; err != nil {
			http.Error(w, "Failed to update push token", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(existing)
		return
	}

	token := models.PushToken{
		Token:      req.Token,
		AccountID:  accountID,
		DeviceType: req.DeviceType,
		DeviceName: req.DeviceName,
	}
	if err := h.db.Create(&token).Error; err != nil {
		http.Error(w, "Failed to register push token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(token)
}

func (h *NotificationHandler) DeletePushToken(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r)
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid token ID", http.StatusBadRequest)
		return
	}

	result := h.db.Where("id = ? AND account_id = ?", id, accountID).Delete(&models.PushToken{})
	if result.Error != nil {
		http.Error(w, "Failed to delete push token", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Push token not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Push token deleted successfully",
	})
}

func (h *NotificationHandler) ownedNotificationFromPath(w http.ResponseWriter, r *http.Request, accountID string) (*models.Notification, bool) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid notification ID", http.StatusBadRequest)
		return nil, false
	}

	var notification models.Notification
	err = h.db.
		Joins("JOIN devices ON devices.id = notifications.device_id").
		Where("notifications.id = ? AND devices.owner_id = ?", id, accountID).
		First(&notification).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return nil, false
		}
		http.Error(w, "Failed to fetch notification", http.StatusInternalServerError)
		return nil, false
	}
	return &notification, true
}
