package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatgate/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type MembershipFinder interface {
	FindMembership(ctx context.Context, userID, roomID uint) (*models.ChatMember, error)
}

type QuotaLimiter interface {
	Consume(ctx context.Context, userID uint) (key string, count int64, err error)
	Refund(ctx context.Context, key string) error
}

type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Enqueuer interface {
	Enqueue(ex Exchange) error
}

type Options struct {
	// RefundOnFailure がtrueの場合、生成失敗時にクォータを1件戻す。既定は試行時課金
	RefundOnFailure bool
}

// Dispatcher はメンバー確認→クォータ→生成→応答→非同期保存の順でメッセージを処理します。
type Dispatcher struct {
	members  MembershipFinder
	limiter  QuotaLimiter
	provider Provider
	queue    Enqueuer
	opts     Options
	logger   *zap.Logger
	tracer   trace.Tracer
}

func New(members MembershipFinder, limiter QuotaLimiter, provider Provider, queue Enqueuer, opts Options, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		members:  members,
		limiter:  limiter,
		provider: provider,
		queue:    queue,
		opts:     opts,
		logger:   logger.With(zap.String("component", "Dispatcher")),
		tracer:   otel.Tracer("chatgate/dispatch"),
	}
}

// Send は返信テキストを同期的に返します。メッセージの保存は応答後にWriterが行う
func (d *Dispatcher) Send(ctx context.Context, user *models.User, roomID uint, content string) (string, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.Send", trace.WithAttributes(
		attribute.Int("user.id", int(user.ID)),
		attribute.Int("chatroom.id", int(roomID)),
		attribute.Bool("user.pro", user.IsPro),
	))
	defer span.End()

	reply, err := d.send(ctx, user, roomID, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return reply, err
}

func (d *Dispatcher) send(ctx context.Context, user *models.User, roomID uint, content string) (string, error) {
	logger := d.logger.With(zap.Uint("user_id", user.ID), zap.Uint("room_id", roomID))

	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}

	member, err := d.members.FindMembership(ctx, user.ID, roomID)
	if err != nil {
		return "", fmt.Errorf("find membership: %w", err)
	}
	if member == nil {
		logger.Info("Rejected message from non-member")
		return "", ErrNotMember
	}

	var quotaKey string
	if !user.IsPro {
		key, count, err := d.limiter.Consume(ctx, user.ID)
		if err != nil {
			if errors.Is(err, ErrQuotaExceeded) {
				logger.Info("Daily quota exceeded", zap.Int64("count", count))
			}
			return "", err
		}
		quotaKey = key
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("quota.count", count))
	}

	reply, err := d.generate(ctx, content)
	if err != nil {
		logger.Warn("Content generation failed", zap.Error(err))
		if quotaKey != "" && d.opts.RefundOnFailure {
			// クライアント切断後も戻せるようキャンセルを切り離す
			if rerr := d.limiter.Refund(context.WithoutCancel(ctx), quotaKey); rerr != nil {
				logger.Error("Failed to refund quota", zap.String("key", quotaKey), zap.Error(rerr))
			}
		}
		return "", &ProviderError{Err: err}
	}

	if err := d.queue.Enqueue(Exchange{
		RoomID: roomID,
		UserID: user.ID,
		Prompt: content,
		Reply:  reply,
	}); err != nil {
		// 応答は既に確定しているため、保存できなかった事実だけを残す
		logger.Error("Dropped exchange before persistence", zap.Error(err))
	}
	return reply, nil
}

func (d *Dispatcher) generate(ctx context.Context, content string) (string, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.Generate")
	defer span.End()
	return d.provider.Generate(ctx, content)
}
