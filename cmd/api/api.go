package api

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/mailguard/mailguard-server/service/dashboard"
	"github.com/mailguard/mailguard-server/service/device"
	"github.com/mailguard/mailguard-server/service/image"
	"github.com/mailguard/mailguard-server/service/notification"
	"github.com/mailguard/mailguard-server/service/telemetry"
	"github.com/mailguard/mailguard-server/service/ws"
	"github.com/mailguard/mailguard-server/storage"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
	store   storage.ObjectStore
}

func NewApiServer(address string, db *gorm.DB, store storage.ObjectStore) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
		store:   store,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	hub := ws.NewHub()
	notifier := notification.NewNotifier(s.db)

	deviceHandler := device.NewDeviceHandler(s.db)
	deviceHandler.RegisterRoutes(subrouter)

	telemetryHandler := telemetry.NewTelemetryHandler(s.db, notifier, hub)
	telemetryHandler.RegisterRoutes(subrouter)

	notificationHandler := notification.NewNotificationHandler(s.db, notifier, hub)
	notificationHandler.RegisterRoutes(subrouter)

	imageHandler := image.NewImageHandler(s.db, s.store)
	imageHandler.RegisterRoutes(subrouter)

	dashboardHandler := dashboard.NewDashboardHandler(s.db)
	dashboardHandler.RegisterRoutes(subrouter)

	feedHandler := ws.NewFeedHandler(hub)
	feedHandler.RegisterRoutes(router)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, handlers.LoggingHandler(os.Stdout, cors(router)))
}
