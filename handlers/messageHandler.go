package handlers

import (
	"errors"
	"net/http"

	"chatgate/dispatch"
	"chatgate/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SendMessage はプロンプトをGeminiへ送り、返信を返します。保存は応答後に非同期で行われる
func SendMessage(dispatcher *dispatch.Dispatcher, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		roomID, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req models.MessageCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}

		reply, err := dispatcher.Send(c.Request.Context(), user, roomID, req.Content)
		if err != nil {
			status, message := dispatchStatus(err)
			if status == http.StatusInternalServerError {
				logger.Error("メッセージ送信に失敗", zap.Uint("userID", user.ID), zap.Uint("roomID", roomID), zap.Error(err))
			}
			abortWithError(c, status, message)
			return
		}
		c.JSON(http.StatusOK, models.GeminiResponse{Response: reply})
	}
}

func dispatchStatus(err error) (int, string) {
	switch {
	case errors.Is(err, dispatch.ErrEmptyContent):
		return http.StatusBadRequest, "Message content must not be empty"
	case errors.Is(err, dispatch.ErrNotMember):
		return http.StatusForbidden, "Not a member of this chatroom"
	case errors.Is(err, dispatch.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "Daily message limit reached. Upgrade to Pro for unlimited access."
	case errors.Is(err, dispatch.ErrProvider):
		var perr *dispatch.ProviderError
		if errors.As(err, &perr) {
			return http.StatusInternalServerError, "Gemini API error: " + perr.Err.Error()
		}
		return http.StatusInternalServerError, "Gemini API error"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
