package database

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"chatgate/models"

	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrChatroomExists = errors.New("chatroom already exists")
)

// ChatStore はチャットルーム・メンバー・メッセージの永続化を担当します。
type ChatStore struct {
	db *gorm.DB
}

func NewChatStore(db *gorm.DB) *ChatStore {
	return &ChatStore{db: db}
}

func (s *ChatStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// FindMembership はメンバー行を返します。存在しない場合は (nil, nil)
func (s *ChatStore) FindMembership(ctx context.Context, userID, roomID uint) (*models.ChatMember, error) {
	var member models.ChatMember
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND chatroom_id = ?", userID, roomID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find membership: %w", err)
	}
	return &member, nil
}

func insertMessage(tx *gorm.DB, roomID uint, userID *uint, content, role string) (*models.Message, error) {
	msg := models.Message{
		ChatroomID: roomID,
		UserID:     userID,
		Content:    content,
		Role:       role,
	}
	if err := tx.Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("insert %s message: %w", role, err)
	}
	return &msg, nil
}

// InsertMessage はコミット済みのメッセージ行を返します。
func (s *ChatStore) InsertMessage(ctx context.Context, roomID uint, userID *uint, content, role string) (*models.Message, error) {
	return insertMessage(s.db.WithContext(ctx), roomID, userID, content, role)
}

// InsertExchange はユーザー発言とassistant返信を同一トランザクション内でこの順に書き込みます。
func (s *ChatStore) InsertExchange(ctx context.Context, roomID, userID uint, prompt, reply string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := insertMessage(tx, roomID, &userID, prompt, models.RoleUser); err != nil {
			return err
		}
		_, err := insertMessage(tx, roomID, nil, reply, models.RoleAssistant)
		return err
	})
}

// CreateChatroom はルームを作成し、作成者をメンバーとして登録します。
func (s *ChatStore) CreateChatroom(ctx context.Context, name string, creatorID uint) (*models.Chatroom, error) {
	room := models.Chatroom{Name: name, CreatedBy: creatorID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Chatroom{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrChatroomExists
		}
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		return tx.Create(&models.ChatMember{UserID: creatorID, ChatroomID: room.ID}).Error
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// ListChatroomsForUser はユーザーがメンバーになっているルームを返します。
func (s *ChatStore) ListChatroomsForUser(ctx context.Context, userID uint) ([]models.Chatroom, error) {
	var rooms []models.Chatroom
	err := s.db.WithContext(ctx).
		Joins("JOIN chat_members ON chat_members.chatroom_id = chatrooms.id").
		Where("chat_members.user_id = ?", userID).
		Order("chatrooms.id").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("list chatrooms: %w", err)
	}
	return rooms, nil
}

func (s *ChatStore) GetChatroom(ctx context.Context, roomID uint) (*models.Chatroom, error) {
	var room models.Chatroom
	err := s.db.WithContext(ctx).First(&room, roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chatroom: %w", err)
	}
	return &room, nil
}

// JoinChatroom は冪等にメンバー行を作成します。
func (s *ChatStore) JoinChatroom(ctx context.Context, userID, roomID uint) (*models.ChatMember, error) {
	if _, err := s.GetChatroom(ctx, roomID); err != nil {
		return nil, err
	}
	member := models.ChatMember{UserID: userID, ChatroomID: roomID}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND chatroom_id = ?", userID, roomID).
		FirstOrCreate(&member).Error
	if err != nil {
		return nil, fmt.Errorf("join chatroom: %w", err)
	}
	return &member, nil
}

// ListMessages は最新のlimit件を作成順(古い順)に並べて返します。limitが0以下なら全件
func (s *ChatStore) ListMessages(ctx context.Context, roomID uint, limit int) ([]models.Message, error) {
	var msgs []models.Message
	q := s.db.WithContext(ctx).
		Where("chatroom_id = ?", roomID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// DeleteMessagesBefore は保持期間を過ぎたメッセージを削除し、削除件数を返します。
func (s *ChatStore) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.Message{})
	return result.RowsAffected, result.Error
}
