package models

import (
	"gorm.io/gorm"
)

// Chatroom はユーザーが作成する名前付きのチャットルームです。
type Chatroom struct {
	gorm.Model
	Name      string       `gorm:"uniqueIndex;not null"`
	CreatedBy uint         `gorm:"not null;index"`
	Members   []ChatMember `gorm:"foreignKey:ChatroomID"`
}
