package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ObjectStore abstracts the blob backend used for mailbox camera
// captures. The server only ever needs put, get and delete; anything
// satisfying this can stand in for the cloud bucket.
type ObjectStore interface {
    Put(key string, data []byte, contentType string) (url string, err error)
    Get(key string) (data []byte, contentType string, err error)
    Delete(key string) error
}

// DiskStore keeps objects under a local directory. Content types are
// tracked in a sidecar .meta file next to each object.
type DiskStore struct {
    root    string
    baseURL string
}

func NewDiskStore(root, baseURL string) (*DiskStore, error) {
    if err := os.MkdirAll(root, 0755); err != nil {
        return nil, fmt.Errorf("failed to create storage directory: %v", err)
    }
    return &DiskStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *DiskStore) path(key string) string {
    return filepath.Join(s.root, filepath.Base(key))
}

func (s *DiskStore) Put(key string, data []byte, contentType string) (string, error) {
    filePath := s.path(key)

    if err := os.WriteFile(filePath, data, 0644); err != nil {
        return "", fmt.Errorf("failed to write object: %v", err)
    }

    meta, err := json.Marshal(map[string]string{"content_type": contentType})
    if err == nil {
        os.WriteFile(filePath+".meta", meta, 0644)
    }

    return fmt.Sprintf("%s/%s", s.baseURL, filepath.Base(key)), nil
}

func (s *DiskStore) Get(key string) ([]byte, string, error) {
    filePath := s.path(key)

    data, err := os.ReadFile(filePath)
    if err != nil {
        return nil, "", err
    }

    contentType := "application/octet-stream"
    if raw, err := os.ReadFile(filePath + ".meta"); err == nil {
        var meta map[string]string
        if json.Unmarshal(raw, &meta) == nil && meta["content_type"] != "" {
            contentType = meta["content_type"]
        }
    }

    return data, contentType, nil
}

func (s *DiskStore) Delete(key string) error {
    filePath := s.path(key)

    if _, err := os.Stat(filePath); os.IsNotExist(err) {
        return nil
    }

    os.Remove(filePath + ".meta")
    return os.Remove(filePath)
}
