package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"anoapp-backend/internal/device/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StorageError wraps a persistence failure so callers can tell it apart from
// not-found and validation outcomes.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "device store: " + e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// DeviceRepository defines the persistence operations of the device registry.
type DeviceRepository interface {
	FindByUUID(ctx context.Context, uuid string) (*domain.Device, error)
	Create(ctx context.Context, device *domain.Device) error
	UpdateTokenMeta(ctx context.Context, id uint, token, name, osVersion string) error
	// Delete hard-deletes by uuid and reports whether a row existed.
	Delete(ctx context.Context, uuid string) (bool, error)
	// TokensForOwner returns a snapshot of push tokens; ownerID 0 means all
	// devices (broadcast).
	TokensForOwner(ctx context.Context, ownerID uint) ([]string, error)
	TokenRegistered(ctx context.Context, token string) (bool, error)
	// GetOrCreateTopic resolves a topic case-insensitively by name or slug,
	// creating it when absent.
	GetOrCreateTopic(ctx context.Context, name string) (*domain.Topic, error)
}

type deviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a new instance of deviceRepository
func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

func (r *deviceRepository) FindByUUID(ctx context.Context, uuid string) (*domain.Device, error) {
	var device domain.Device
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "find by uuid", Err: err}
	}
	return &device, nil
}

func (r *deviceRepository) Create(ctx context.Context, device *domain.Device) error {
	if err := r.db.WithContext(ctx).Create(device).Error; err != nil {
		return &StorageError{Op: "create", Err: err}
	}
	return nil
}

func (r *deviceRepository) UpdateTokenMeta(ctx context.Context, id uint, token, name, osVersion string) error {
	err := r.db.WithContext(ctx).Model(&domain.Device{}).Where("id = ?", id).Updates(map[string]interface{}{
		"token":      token,
		"name":       name,
		"os_version": osVersion,
	}).Error
	if err != nil {
		return &StorageError{Op: "update token", Err: err}
	}
	return nil
}

func (r *deviceRepository) Delete(ctx context.Context, uuid string) (bool, error) {
	device, err := r.FindByUUID(ctx, uuid)
	if err != nil {
		return false, err
	}
	if device == nil {
		return false, nil
	}
	tx := r.db.WithContext(ctx)
	if err := tx.Model(device).Association("Topics").Clear(); err != nil {
		return false, &StorageError{Op: "clear topics", Err: err}
	}
	if err := tx.Delete(device).Error; err != nil {
		return false, &StorageError{Op: "delete", Err: err}
	}
	return true, nil
}

func (r *deviceRepository) TokensForOwner(ctx context.Context, ownerID uint) ([]string, error) {
	var tokens []string
	q := r.db.WithContext(ctx).Model(&domain.Device{})
	if ownerID != 0 {
		q = q.Where("owner_id = ?", ownerID)
	}
	if err := q.Pluck("token", &tokens).Error; err != nil {
		return nil, &StorageError{Op: "tokens for owner", Err: err}
	}
	return tokens, nil
}

func (r *deviceRepository) TokenRegistered(ctx context.Context, token string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Device{}).Where("token = ?", token).Count(&count).Error
	if err != nil {
		return false, &StorageError{Op: "token registered", Err: err}
	}
	return count > 0, nil
}

func (r *deviceRepository) GetOrCreateTopic(ctx context.Context, name string) (*domain.Topic, error) {
	slug := domain.Slugify(name)
	if slug == "" {
		return nil, &StorageError{Op: "get or create topic", Err: fmt.Errorf("empty topic name")}
	}

	var topic domain.Topic
	err := r.db.WithContext(ctx).
		Where("LOWER(name) = ? OR slug = ?", strings.ToLower(name), slug).
		First(&topic).Error
	if err == nil {
		return &topic, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &StorageError{Op: "find topic", Err: err}
	}

	// Concurrent identical calls race on the insert; the unique index on slug
	// makes exactly one win and everyone re-reads the winner.
	create := domain.Topic{Name: name, Slug: slug}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&create).Error; err != nil {
		return nil, &StorageError{Op: "create topic", Err: err}
	}
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&topic).Error; err != nil {
		return nil, &StorageError{Op: "reload topic", Err: err}
	}
	return &topic, nil
}
