package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/go-redis/redis/v8"
)

type OTPPurpose string

const (
	PurposeLogin OTPPurpose = "otp"
	PurposeReset OTPPurpose = "reset"
)

var (
	ErrOTPNotFound = errors.New("otp expired or not found")
	ErrInvalidOTP  = errors.New("invalid otp")
)

// OTPStore はワンタイムコードをRedisに {purpose}:{mobile} のキーで保持します。
type OTPStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewOTPStore(rdb *redis.Client, ttl time.Duration) *OTPStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &OTPStore{rdb: rdb, ttl: ttl}
}

func otpKey(purpose OTPPurpose, mobile string) string {
	return fmt.Sprintf("%s:%s", purpose, mobile)
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Issue は6桁のコードを発行し、同じ用途の既存コードを上書きします。
func (s *OTPStore) Issue(ctx context.Context, purpose OTPPurpose, mobile string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	if err := s.rdb.Set(ctx, otpKey(purpose, mobile), code, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

// Verify は一致した場合にのみコードを削除します。
func (s *OTPStore) Verify(ctx context.Context, purpose OTPPurpose, mobile, code string) error {
	key := otpKey(purpose, mobile)
	stored, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrOTPNotFound
	}
	if err != nil {
		return fmt.Errorf("read otp: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return ErrInvalidOTP
	}
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}
