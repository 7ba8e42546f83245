package dashboard

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mailguard/mailguard-server/cmd/models"
	"github.com/mailguard/mailguard-server/cmd/utils"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	db *gorm.DB
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

// DashboardSummary is everything the app's home screen needs in one
// round trip.
type DashboardSummary struct {
	Devices      []models.Device       `json:"devices"`
	RecentEvents []models.Event        `json:"recent_events"`
	LatestHealth *models.HealthReading `json:"latest_health"`
	UnreadCount  int64                 `json:"unread_count"`
}

func (h *DashboardHandler) RegisterRoutes(router *mux.Router) {
	dashboardRouter := router.PathPrefix("/dashboard").Subrouter()
	dashboardRouter.HandleFunc("/summary", utils.AuthMiddleware(h.GetSummary)).Methods("GET")
}

func (h *DashboardHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r)
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var summary DashboardSummary

	if err := h.db.Where("owner_id = ?", accountID).Order("created_at DESC").Find(&summary.Devices).Error; err != nil {
		http.Error(w, "Failed to fetch devices", http.StatusInternalServerError)
		return
	}

	if err := h.db.Where("owner_id = ?", accountID).Order("occurred_at DESC").Limit(20).Find(&summary.RecentEvents).Error; err != nil {
		http.Error(w, "Failed to fetch events", http.StatusInternalServerError)
		return
	}

	var latest models.HealthReading
	if err := h.db.Where("owner_id = ?", accountID).Order("reported_at DESC").First(&latest).Error; err == nil {
		summary.LatestHealth = &latest
	}

	if err := h.db.Model(&models.Notification{}).
		Joins("JOIN devices ON devices.id = notifications.device_id").
		Where("devices.owner_id = ? AND notifications.is_read = ?", accountID, false).
		Count(&summary.UnreadCount).Error; err != nil {
		http.Error(w, "Failed to count notifications", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
