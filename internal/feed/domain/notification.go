package domain

import "time"

// Notification is one feed entry. RecipientID 0 addresses every user
// (broadcast); any other value targets a single account.
type Notification struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	RecipientID uint   `json:"recipient_id" gorm:"index"`
	Message     string `json:"message" gorm:"type:text;not null"`
	Link        string `json:"link"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

// NotificationRead marks one notification as read by one user. Broadcast
// entries get one row per reader.
type NotificationRead struct {
	UserID         uint `gorm:"primaryKey;autoIncrement:false"`
	NotificationID uint `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt      time.Time
}

// ReadState holds the per-user new-notification flag, set when a poll finds
// more unread entries than the client last saw and cleared when the client
// opens the feed.
type ReadState struct {
	UserID    uint `gorm:"primaryKey;autoIncrement:false"`
	HasNew    bool
	UpdatedAt time.Time
}
