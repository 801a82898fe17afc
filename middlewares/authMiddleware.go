package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"chatgate/auth"
	"chatgate/database"
	"chatgate/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UserLoader interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
}

func unauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}

// AuthMiddleware はBearerトークンを検証し、ユーザーをコンテキストにセットします。
func AuthMiddleware(issuer *auth.TokenIssuer, users UserLoader, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, "Not authenticated")
			return
		}

		claims, err := issuer.Parse(tokenString)
		if err != nil {
			logger.Warn("トークンの検証に失敗", zap.Error(err))
			unauthorized(c, "Could not validate credentials")
			return
		}

		user, err := users.FindByID(c.Request.Context(), claims.UserID)
		if errors.Is(err, database.ErrNotFound) || (err == nil && user.Mobile != claims.Subject) {
			logger.Warn("トークンに対応するユーザーが存在しない", zap.Uint("userID", claims.UserID))
			unauthorized(c, "Could not validate credentials")
			return
		}
		if err != nil {
			logger.Error("ユーザーの取得に失敗", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		setCurrentUser(c, user)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
