package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"chatgate/database"
	"chatgate/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

// ルームを作成し、作成者をメンバーとして登録するハンドラー
func CreateChatroom(chats *database.ChatStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req models.ChatroomCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}

		room, err := chats.CreateChatroom(c.Request.Context(), req.Name, user.ID)
		if errors.Is(err, database.ErrChatroomExists) {
			abortWithError(c, http.StatusBadRequest, "Chatroom already exists")
			return
		}
		if err != nil {
			logger.Error("ルーム作成に失敗", zap.Uint("userID", user.ID), zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, "Failed to create chatroom")
			return
		}

		logger.Info("ルーム作成完了", zap.Uint("roomID", room.ID), zap.Uint("userID", user.ID))
		c.JSON(http.StatusOK, models.NewChatroomResponse(*room))
	}
}

// ユーザーが参加しているルームの一覧
func ListChatrooms(chats *database.ChatStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		rooms, err := chats.ListChatroomsForUser(c.Request.Context(), user.ID)
		if err != nil {
			logger.Error("ルーム一覧の取得に失敗", zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, "Failed to list chatrooms")
			return
		}

		response := make([]models.ChatroomResponse, 0, len(rooms))
		for _, room := range rooms {
			response = append(response, models.NewChatroomResponse(room))
		}
		c.JSON(http.StatusOK, response)
	}
}

func findRoom(c *gin.Context, chats *database.ChatStore, logger *zap.Logger) (*models.Chatroom, bool) {
	roomID, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	room, err := chats.GetChatroom(c.Request.Context(), roomID)
	if errors.Is(err, database.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, "Chatroom not found")
		return nil, false
	}
	if err != nil {
		logger.Error("ルームの取得に失敗", zap.Uint("roomID", roomID), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	return room, true
}

func GetChatroom(chats *database.ChatStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		room, ok := findRoom(c, chats, logger)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, models.NewChatroomResponse(*room))
	}
}

// 既にメンバーの場合も200を返す
func JoinChatroom(chats *database.ChatStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		room, ok := findRoom(c, chats, logger)
		if !ok {
			return
		}
		if _, err := chats.JoinChatroom(c.Request.Context(), user.ID, room.ID); err != nil {
			logger.Error("ルームへの参加に失敗", zap.Uint("roomID", room.ID), zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, "Failed to join chatroom")
			return
		}
		c.JSON(http.StatusOK, models.NewChatroomResponse(*room))
	}
}

// メンバーのみが最新の履歴を作成順で取得できる
func ListMessages(chats *database.ChatStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		roomID, ok := pathID(c, "id")
		if !ok {
			return
		}

		limit := defaultMessageLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				abortWithError(c, http.StatusBadRequest, "Invalid limit")
				return
			}
			limit = min(n, maxMessageLimit)
		}

		member, err := chats.FindMembership(c.Request.Context(), user.ID, roomID)
		if err != nil {
			logger.Error("メンバーシップの確認に失敗", zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, "Internal server error")
			return
		}
		if member == nil {
			abortWithError(c, http.StatusForbidden, "Not a member of this chatroom")
			return
		}

		messages, err := chats.ListMessages(c.Request.Context(), roomID, limit)
		if err != nil {
			logger.Error("メッセージ履歴の取得に失敗", zap.Uint("roomID", roomID), zap.Error(err))
			abortWithError(c, http.StatusInternalServerError, "Failed to list messages")
			return
		}
		c.JSON(http.StatusOK, messages)
	}
}
