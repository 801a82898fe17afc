package quota

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// KeyTTL は日次カウンタの有効期限。期限の無いキーへのINCRでセットされる
const KeyTTL = 24 * time.Hour

var ErrQuotaExceeded = errors.New("daily message limit reached")

// Key はユーザーと暦日(UTC)からカウンタのキーを作ります。日付の境界は常にUTC
func Key(userID uint, now time.Time) string {
	return fmt.Sprintf("rate:%d:%s", userID, now.UTC().Format("2006-01-02"))
}

// Limiter は非Proユーザーの1日あたりの送信数を制限します。
// 読み取りと加算の間はアトミックではないため、同時リクエスト数-1件まで上限を超えうる
type Limiter struct {
	counter Counter
	limit   int64
	now     func() time.Time
}

type Option func(*Limiter)

// WithClock は日付の算出に使う時計を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func NewLimiter(counter Counter, limit int64, opts ...Option) *Limiter {
	l := &Limiter{counter: counter, limit: limit, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Limit() int64 { return l.limit }

// Consume は上限を確認してから1件分加算し、使用したキーと加算後の値を返します。
// 上限に達している場合は加算せず ErrQuotaExceeded を返します。
func (l *Limiter) Consume(ctx context.Context, userID uint) (string, int64, error) {
	key := Key(userID, l.now())

	count, _, err := l.counter.Get(ctx, key)
	if err != nil {
		return key, 0, fmt.Errorf("read quota counter: %w", err)
	}
	if count >= l.limit {
		return key, count, ErrQuotaExceeded
	}

	count, err = l.counter.Incr(ctx, key, KeyTTL)
	if err != nil {
		return key, 0, fmt.Errorf("increment quota counter: %w", err)
	}
	return key, count, nil
}

// Refund はConsumeで加算した1件を戻します。キーが既に消えている場合は何もしない
func (l *Limiter) Refund(ctx context.Context, key string) error {
	if _, _, err := l.counter.DecrIfPositive(ctx, key); err != nil {
		return fmt.Errorf("refund quota counter: %w", err)
	}
	return nil
}

// Usage は今日の使用数を返します。
func (l *Limiter) Usage(ctx context.Context, userID uint) (int64, error) {
	count, _, err := l.counter.Get(ctx, Key(userID, l.now()))
	return count, err
}
