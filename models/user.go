package models

import (
	"gorm.io/gorm"
)

const (
	TierBasic = "Basic"
	TierPro   = "Pro"
)

// User モデルの定義
type User struct {
	gorm.Model
	Mobile       string `gorm:"uniqueIndex;not null"`
	Name         string
	PasswordHash string
	Tier         string `gorm:"not null;default:'Basic'"`
	IsPro        bool   `gorm:"not null;default:false"` // trueの場合、日次クォータの対象外
}
