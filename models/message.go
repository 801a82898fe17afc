package models

import (
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message はチャットルームに属する発言です。assistantの行はUserIDがNULL
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ChatroomID uint      `gorm:"not null;index" json:"chatroom_id"`
	UserID     *uint     `gorm:"index" json:"user_id"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Role       string    `gorm:"not null" json:"role"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// AllModels はAutoMigrate対象のモデル一覧です。
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Chatroom{},
		&ChatMember{},
		&Message{},
		&BillingEvent{},
	}
}
