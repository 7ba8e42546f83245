package models

import "gorm.io/gorm"

// DeviceRef identifies a device by exactly one of its three handles:
// numeric id, exact name, or serial number.
type DeviceRef struct {
    ID     uint
    Name   string
    Serial string
}

func (r DeviceRef) query(db *gorm.DB) *gorm.DB {
    switch {
    case r.ID != 0:
        return db.Where("id = ?", r.ID)
    case r.Serial != "":
        return db.Where("serial_number = ?", r.Serial)
    default:
        return db.Where("name = ?", r.Name)
    }
}

// ResolveDevice finds a device without an ownership filter. Used by the
// device-facing endpoints where the caller is the hardware itself.
func ResolveDevice(db *gorm.DB, ref DeviceRef) (*Device, error) {
    var device Device
    if err := ref.query(db).First(&device).Error; err != nil {
        return nil, err
    }
    return &device, nil
}

// ResolveOwnedDevice finds a device belonging to ownerID. A device that
// exists but belongs to someone else resolves exactly like one that
// does not exist.
func ResolveOwnedDevice(db *gorm.DB, ownerID string, ref DeviceRef) (*Device, error) {
    var device Device
    if err := ref.query(db).Where("owner_id = ?", ownerID).First(&device).Error; err != nil {
        return nil, err
    }
    return &device, nil
}
