package models

import (
	"time"
)

// メンバーは別テーブルで管理。行の存在がメッセージ送信の唯一の認可条件
type ChatMember struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_member_user_room"`
	ChatroomID uint      `gorm:"not null;uniqueIndex:idx_member_user_room;index"`
	CreatedAt  time.Time
}
