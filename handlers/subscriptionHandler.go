package handlers

import (
	"errors"
	"io"
	"net/http"

	"chatgate/billing"
	"chatgate/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Stripeが送るwebhookの最大サイズ
const maxWebhookBody = 64 << 10

func Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.UserProfileResponse{
		ID:     user.ID,
		Name:   user.Name,
		Mobile: user.Mobile,
		Tier:   user.Tier,
		IsPro:  user.IsPro,
	})
}

func SubscriptionStatus(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.SubscriptionStatusResponse{Tier: user.Tier})
}

// Proプランのチェックアウトセッションを作成するハンドラー
func SubscribePro(svc *billing.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		url, err := svc.CreateCheckout(c.Request.Context(), user)
		if errors.Is(err, billing.ErrNotConfigured) {
			logger.Error("Stripeの価格IDが設定されていません")
			abortWithError(c, http.StatusInternalServerError, "Stripe price ID is not set")
			return
		}
		if err != nil {
			logger.Error("チェックアウトセッションの作成に失敗", zap.Uint("userID", user.ID), zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, models.CheckoutResponse{CheckoutURL: url})
	}
}

func StripeWebhook(svc *billing.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Failed to read body")
			return
		}

		_, err = svc.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
		if err != nil {
			if errors.Is(err, billing.ErrInvalidSignature) || errors.Is(err, billing.ErrInvalidPayload) {
				logger.Warn("不正なwebhook", zap.Error(err))
				abortWithError(c, http.StatusBadRequest, err.Error())
				return
			}
			logger.Error("webhookの処理に失敗", zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, "Failed to process webhook")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}
