package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// MyClaims はJWTクレームの構造体定義です。Subjectには携帯番号が入ります。
type MyClaims struct {
	UserID uint `json:"uid"`
	jwt.RegisteredClaims
}
