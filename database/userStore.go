package database

import (
	"context"
	"errors"
	"fmt"

	"chatgate/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrMobileTaken = errors.New("mobile number already registered")

// UserStore はユーザーと課金イベントの永続化を担当します。
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) first(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (s *UserStore) FindByMobile(ctx context.Context, mobile string) (*models.User, error) {
	return s.first(ctx, "mobile = ?", mobile)
}

func (s *UserStore) FindByID(ctx context.Context, id uint) (*models.User, error) {
	return s.first(ctx, "id = ?", id)
}

// Create は新規ユーザーをBasicティアで登録します。
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("mobile = ?", user.Mobile).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrMobileTaken
		}
		if user.Tier == "" {
			user.Tier = models.TierBasic
		}
		return tx.Create(user).Error
	})
}

func (s *UserStore) UpdatePassword(ctx context.Context, userID uint, passwordHash string) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("password_hash", passwordHash)
	if result.Error != nil {
		return fmt.Errorf("update password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func upgradeToPro(tx *gorm.DB, userID uint) (bool, error) {
	result := tx.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"tier": models.TierPro, "is_pro": true})
	return result.RowsAffected > 0, result.Error
}

// UpgradeToPro はユーザーをProティアに変更します。
func (s *UserStore) UpgradeToPro(ctx context.Context, userID uint) error {
	ok, err := upgradeToPro(s.db.WithContext(ctx), userID)
	if err != nil {
		return fmt.Errorf("upgrade user: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// ApplyBillingEvent はイベントを記録し、upgradeUserIDが指定されていればProに昇格させます。
// 同じイベントIDが既に記録済みの場合は何もせず applied=false を返します。
// upgradedは実際にユーザー行が更新された場合のみtrue
func (s *UserStore) ApplyBillingEvent(ctx context.Context, eventID, eventType string, payload []byte, upgradeUserID *uint) (applied, upgraded bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.BillingEvent{}).Where("event_id = ?", eventID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		event := models.BillingEvent{
			EventID: eventID,
			Type:    eventType,
			UserID:  upgradeUserID,
			Payload: datatypes.JSON(payload),
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
		if upgradeUserID != nil {
			// 存在しないユーザーの場合も、イベント自体は処理済みとして記録する
			ok, err := upgradeToPro(tx, *upgradeUserID)
			if err != nil {
				return err
			}
			upgraded = ok
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, false, fmt.Errorf("apply billing event: %w", err)
	}
	return applied, upgraded, nil
}
