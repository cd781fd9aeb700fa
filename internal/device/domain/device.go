package domain

import (
	"strings"
	"time"
)

// Device is a registered client endpoint. The UUID is client-generated and
// unique per live device; the push token rotates over the device lifetime and
// may collide across devices (last write wins).
type Device struct {
	ID        uint    `json:"id" gorm:"primaryKey"`
	UUID      string  `json:"device_uuid" gorm:"uniqueIndex;size:191;not null"`
	Token     string  `json:"-" gorm:"index;not null"` // FCM registration token, not exposed in JSON
	OwnerID   uint    `json:"owner_id" gorm:"index"`   // 0 = unowned
	Name      string  `json:"device_name"`
	OSVersion string  `json:"os_version"`
	Topics    []Topic `json:"topics,omitempty" gorm:"many2many:device_topics"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Topic is a named broadcast channel. Created on first use, never deleted
// automatically.
type Topic struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	Name      string `json:"name" gorm:"uniqueIndex;size:191;not null"`
	Slug      string `json:"slug" gorm:"uniqueIndex;size:191;not null"`
	CreatedAt time.Time
}

// Slugify normalizes a topic name for case-insensitive matching: lowercased,
// runs of non-alphanumerics collapsed to single dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
