package image

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mailguard/mailguard-server/cmd/models"
	"github.com/mailguard/mailguard-server/cmd/utils"
	"github.com/mailguard/mailguard-server/storage"
	"gorm.io/gorm"
)

const maxImageSize = 10 << 20 // 10 MB

type ImageHandler struct {
	db    *gorm.DB
	store storage.ObjectStore
}

func NewImageHandler(db *gorm.DB, store storage.ObjectStore) *ImageHandler {
	return &ImageHandler{db: db, store: store}
}

func (h *ImageHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/devices/{id:[0-9]+}/images", h.UploadImage).Methods("POST")
	router.HandleFunc("/devices/{id:[0-9]+}/images", utils.AuthMiddleware(h.GetImages)).Methods("GET")
	router.HandleFunc("/devices/{id:[0-9]+}/images/latest", h.GetLatestImage).Methods("GET")
	router.HandleFunc("/images/{id:[0-9]+}", utils.AuthMiddleware(h.DeleteImage)).Methods("DELETE")
	router.HandleFunc("/captures/{key}", h.ServeCapture).Methods("GET")
}

// ServeCapture resolves the URLs handed out by the disk store.
func (h *ImageHandler) ServeCapture(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	data, contentType, err := h.store.Get(vars["key"])
	if err != nil {
		http.Error(w, "Capture not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// UploadImage stores a capture from the mailbox camera. The device
// uploads directly, so there is no ownership check here; a device only
// knows its own numeric id.
func (h *ImageHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
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

	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "Image file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > maxImageSize {
		http.Error(w, "File size exceeds maximum limit of 10 MB", http.StatusBadRequest)
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	contentType, ok := imageContentTypes[ext]
	if !ok {
		http.Error(w, fmt.Sprintf("Invalid file type: %s", ext), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read image", http.StatusInternalServerError)
		return
	}

	key := fmt.Sprintf("%s-%s%s", time.Now().Format("20060102"), uuid.New().String(), ext)
	url, err := h.store.Put(key, data, contentType)
	if err != nil {
		http.Error(w, "Failed to store image", http.StatusInternalServerError)
		return
	}

	image := models.Image{
		DeviceID:   device.ID,
		ObjectKey:  key,
		ImageURL:   url,
		CapturedAt: time.Now(),
	}
	if err := h.db.Create(&image).Error; err != nil {
		if delErr := h.store.Delete(key); delErr != nil {
			log.Printf("Error cleaning up orphaned object %s: %v", key, delErr)
		}
		http.Error(w, "Failed to save image record", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(image)
}

func (h *ImageHandler) GetImages(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r)
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid device ID", http.StatusBadRequest)
		return
	}

	device, err := models.ResolveOwnedDevice(h.db, accountID, models.DeviceRef{ID: uint(id)})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Device not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch device", http.StatusInternalServerError)
		return
	}

	var images []models.Image
	if err := h.db.Where("device_id = ?", device.ID).Order("captured_at DESC").Find(&images).Error; err != nil {
		http.Error(w, "Failed to fetch images", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"images": images,
		"total":  len(images),
	})
}

func (h *ImageHandler) GetLatestImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid device ID", http.StatusBadRequest)
		return
	}

	var image models.Image
	if err := h.db.Where("device_id = ?", id).Order("captured_at DESC").First(&image).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "No images for device", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch image", http.StatusInternalServerError)
		return
	}

	data, contentType, err := h.store.Get(image.ObjectKey)
	if err != nil {
		http.Error(w, "Failed to load image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// DeleteImage removes the record first; the blob delete is best-effort
// since a stray object costs storage, not correctness.
func (h *ImageHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r)
	if err != nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "Invalid image ID", http.StatusBadRequest)
		return
	}

	var image models.Image
	err = h.db.
		Joins("JOIN devices ON devices.id = images.device_id").
		Where("images.id = ? AND devices.owner_id = ?", id, accountID).
		First(&image).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Image not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch image", http.StatusInternalServerError)
		return
	}

	if err := h.db.Delete(&image).Error; err != nil {
		http.Error(w, "Failed to delete image", http.StatusInternalServerError)
		return
	}

	if err := h.store.Delete(image.ObjectKey); err != nil {
		log.Printf("Error deleting object %s: %v", image.ObjectKey, err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Image deleted successfully",
	})
}

var imageContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}
