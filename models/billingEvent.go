package models

import (
	"time"

	"gorm.io/datatypes"
)

// BillingEvent は処理済みのStripeイベント。再送されたイベントを二重に適用しないために使う
type BillingEvent struct {
	ID        uint           `gorm:"primaryKey"`
	EventID   string         `gorm:"uniqueIndex;not null"`
	Type      string         `gorm:"not null"`
	UserID    *uint          `gorm:"index"`
	Payload   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time
}
