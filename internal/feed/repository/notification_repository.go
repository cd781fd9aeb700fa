package repository

import (
	"context"
	"errors"

	"anoapp-backend/internal/feed/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StorageError wraps a persistence failure in the feed store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "feed store: " + e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// NotificationRepository defines the persistence operations of the feed store.
type NotificationRepository interface {
	// Append stores a new feed entry and returns its id. recipientID 0 means
	// broadcast.
	Append(ctx context.Context, recipientID uint, message, link string) (uint, error)
	// UnreadFor lists a user's unread entries (broadcast plus personal),
	// newest first.
	UnreadFor(ctx context.Context, userID uint) ([]domain.Notification, error)
	// MarkRead records that a user has read a notification; repeat calls are
	// no-ops.
	MarkRead(ctx context.Context, userID, notificationID uint) error
	HasNew(ctx context.Context, userID uint) (bool, error)
	SetHasNew(ctx context.Context, userID uint, hasNew bool) error
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new instance of notificationRepository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Append(ctx context.Context, recipientID uint, message, link string) (uint, error) {
	if message == "" {
		return 0, &StorageError{Op: "append", Err: errors.New("empty message")}
	}
	n := domain.Notification{RecipientID: recipientID, Message: message, Link: link}
	if err := r.db.WithContext(ctx).Create(&n).Error; err != nil {
		return 0, &StorageError{Op: "append", Err: err}
	}
	return n.ID, nil
}

func (r *notificationRepository) UnreadFor(ctx context.Context, userID uint) ([]domain.Notification, error) {
	read := r.db.Model(&domain.NotificationRead{}).
		Select("notification_id").
		Where("user_id = ?", userID)

	var notifications []domain.Notification
	err := r.db.WithContext(ctx).
		Where("recipient_id IN ?", []uint{0, userID}).
		Where("id NOT IN (?)", read).
		Order("created_at DESC, id DESC").
		Find(&notifications).Error
	if err != nil {
		return nil, &StorageError{Op: "unread", Err: err}
	}
	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, notificationID uint) error {
	row := domain.NotificationRead{UserID: userID, NotificationID: notificationID}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return &StorageError{Op: "mark read", Err: err}
	}
	return nil
}

func (r *notificationRepository) HasNew(ctx context.Context, userID uint) (bool, error) {
	var state domain.ReadState
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Op: "has new", Err: err}
	}
	return state.HasNew, nil
}

func (r *notificationRepository) SetHasNew(ctx context.Context, userID uint, hasNew bool) error {
	state := domain.ReadState{UserID: userID, HasNew: hasNew}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"has_new", "updated_at"}),
	}).Create(&state).Error
	if err != nil {
		return &StorageError{Op: "set has new", Err: err}
	}
	return nil
}
