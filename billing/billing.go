package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"chatgate/models"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const EventCheckoutCompleted = "checkout.session.completed"

var (
	ErrNotConfigured    = errors.New("stripe price id is not configured")
	ErrInvalidSignature = errors.New("invalid stripe signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

type CheckoutCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type EventApplier interface {
	ApplyBillingEvent(ctx context.Context, eventID, eventType string, payload []byte, upgradeUserID *uint) (applied, upgraded bool, err error)
}

// NewStripeSessions はシークレットキーからCheckout Sessionのクライアントを作ります。
func NewStripeSessions(secretKey string) CheckoutCreator {
	return client.New(secretKey, nil).CheckoutSessions
}

type Service struct {
	sessions CheckoutCreator
	events   EventApplier
	config   models.StripeConfig
	logger   *zap.Logger
}

func NewService(config models.StripeConfig, sessions CheckoutCreator, events EventApplier, logger *zap.Logger) *Service {
	return &Service{
		sessions: sessions,
		events:   events,
		config:   config,
		logger:   logger.With(zap.String("component", "Billing")),
	}
}

// CreateCheckout はProプランのサブスクリプション用Checkout URLを返します。
func (s *Service) CreateCheckout(ctx context.Context, user *models.User) (string, error) {
	if s.config.PriceID == "" {
		return "", ErrNotConfigured
	}
	host := strings.TrimRight(s.config.HostURL, "/")
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(s.config.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(host + "/docs"),
		CancelURL:         stripe.String(host + "/user/me"),
		ClientReferenceID: stripe.String(strconv.FormatUint(uint64(user.ID), 10)),
	}
	params.Context = ctx
	params.AddMetadata("user_id", strconv.FormatUint(uint64(user.ID), 10))

	session, err := s.sessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	s.logger.Info("Checkout session created", zap.Uint("user_id", user.ID), zap.String("session_id", session.ID))
	return session.URL, nil
}

type WebhookResult struct {
	EventID  string
	Type     string
	UserID   *uint
	Applied  bool
	Upgraded bool
}

// HandleWebhook は署名を検証してイベントを処理します。同じイベントIDは一度だけ適用される。
// 署名なしのJSONはwebhook_secretが未設定かつallow_unsignedが有効な場合のみ受け付ける(開発用)
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := s.parseEvent(payload, signature)
	if err != nil {
		return nil, err
	}

	result := &WebhookResult{EventID: event.ID, Type: string(event.Type)}
	if result.EventID == "" {
		result.EventID = "unsigned_" + uuid.NewString()
	}

	if event.Type == EventCheckoutCompleted {
		userID, err := checkoutUserID(event)
		if err != nil {
			return nil, err
		}
		result.UserID = userID
	}

	applied, upgraded, err := s.events.ApplyBillingEvent(ctx, result.EventID, result.Type, payload, result.UserID)
	if err != nil {
		return nil, err
	}
	result.Applied = applied
	result.Upgraded = upgraded

	logger := s.logger.With(zap.String("event_id", result.EventID), zap.String("type", result.Type))
	switch {
	case !applied:
		logger.Info("Duplicate webhook event ignored")
	case result.Upgraded:
		logger.Info("User upgraded to Pro", zap.Uint("user_id", *result.UserID))
	case result.UserID != nil:
		logger.Warn("Checkout completed for unknown user", zap.Uint("user_id", *result.UserID))
	default:
		logger.Debug("Webhook event recorded")
	}
	return result, nil
}

func (s *Service) parseEvent(payload []byte, signature string) (stripe.Event, error) {
	if s.config.WebhookSecret == "" {
		if !s.config.AllowUnsigned {
			return stripe.Event{}, fmt.Errorf("%w: webhook secret is not configured", ErrInvalidSignature)
		}
		s.logger.Warn("Stripe webhook secret is not set; accepting unsigned payload")
		var event stripe.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return event, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if event.Type == "" {
			return event, fmt.Errorf("%w: missing event type", ErrInvalidPayload)
		}
		return event, nil
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrInvalidHeader) || errors.Is(err, webhook.ErrTooOld) {
			return event, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return event, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return event, nil
}

// checkoutUserID はmetadata.user_idを読みます。未設定ならnil
func checkoutUserID(event stripe.Event) (*uint, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: missing data object", ErrInvalidPayload)
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	raw := session.Metadata["user_id"]
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: user_id %q", ErrInvalidPayload, raw)
	}
	userID := uint(id)
	return &userID, nil
}
