package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"chatgate/database"
	"chatgate/models"
	"chatgate/quota"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type fixture struct {
	db       *gorm.DB
	store    *database.ChatStore
	mr       *miniredis.Miniredis
	limiter  *quota.Limiter
	provider *mockProvider
	writer   *Writer
	now      time.Time
}

func newFixture(t *testing.T, opts Options) (*fixture, *Dispatcher) {
	t.Helper()
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	f := &fixture{
		db:       db,
		store:    database.NewChatStore(db),
		mr:       mr,
		limiter:  quota.NewLimiter(quota.NewRedisCounter(rdb), 5, quota.WithClock(func() time.Time { return now })),
		provider: &mockProvider{},
		now:      now,
	}
	f.writer = NewWriter(f.store, models.PersistenceConfig{QueueSize: 16, WriteTimeout: time.Second}, zap.NewNop())
	f.writer.Start()

	return f, New(f.store, f.limiter, f.provider, f.writer, opts, zap.NewNop())
}

func (f *fixture) user(t *testing.T, mobile string, pro bool) *models.User {
	t.Helper()
	user := &models.User{Mobile: mobile}
	require.NoError(t, database.NewUserStore(f.db).Create(context.Background(), user))
	if pro {
		require.NoError(t, database.NewUserStore(f.db).UpgradeToPro(context.Background(), user.ID))
		user.IsPro = true
		user.Tier = models.TierPro
	}
	return user
}

func (f *fixture) room(t *testing.T, name string, creator *models.User) *models.Chatroom {
	t.Helper()
	room, err := f.store.CreateChatroom(context.Background(), name, creator.ID)
	require.NoError(t, err)
	return room
}

// drain はWriterを閉じてキューを全て書き終えたメッセージを返します。
func (f *fixture) drain(t *testing.T, roomID uint) []models.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.writer.Close(ctx))
	messages, err := f.store.ListMessages(context.Background(), roomID, 100)
	require.NoError(t, err)
	return messages
}

func (f *fixture) counter(userID uint) (string, bool) {
	value, err := f.mr.Get(quota.Key(userID, f.now))
	if err != nil {
		return "", false
	}
	return value, true
}

func TestSend_NonMemberIsRejectedWithoutSideEffects(t *testing.T) {
	f, d := newFixture(t, Options{})
	owner := f.user(t, "+810000000001", false)
	outsider := f.user(t, "+810000000002", false)
	room := f.room(t, "general", owner)

	_, err := d.Send(context.Background(), outsider, room.ID, "Hello")
	assert.ErrorIs(t, err, ErrNotMember)

	_, exists := f.counter(outsider.ID)
	assert.False(t, exists)
	assert.Empty(t, f.drain(t, room.ID))
	f.provider.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestSend_ProUserBypassesQuota(t *testing.T) {
	f, d := newFixture(t, Options{})
	pro := f.user(t, "+810000000003", true)
	room := f.room(t, "pro-room", pro)
	require.NoError(t, f.mr.Set(quota.Key(pro.ID, f.now), "50"))
	f.provider.On("Generate", mock.Anything, mock.Anything).Return("ok", nil)

	for _, prompt := range []string{"one", "two", "three"} {
		reply, err := d.Send(context.Background(), pro, room.ID, prompt)
		require.NoError(t, err)
		assert.Equal(t, "ok", reply)
	}

	value, _ := f.counter(pro.ID)
	assert.Equal(t, "50", value)
	assert.Len(t, f.drain(t, room.ID), 6)
}

func TestSend_SixthAttemptIsRejected(t *testing.T) {
	f, d := newFixture(t, Options{})
	user := f.user(t, "+810000000004", false)
	room := f.room(t, "limited", user)
	require.NoError(t, f.mr.Set(quota.Key(user.ID, f.now), "5"))

	_, err := d.Send(context.Background(), user, room.ID, "Hello")
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	value, _ := f.counter(user.ID)
	assert.Equal(t, "5", value)
	assert.Empty(t, f.drain(t, room.ID))
	f.provider.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestSend_FifthAttemptPersistsInOrder(t *testing.T) {
	f, d := newFixture(t, Options{})
	user := f.user(t, "+810000000005", false)
	room := f.room(t, "fifth", user)
	require.NoError(t, f.mr.Set(quota.Key(user.ID, f.now), "4"))
	f.provider.On("Generate", mock.Anything, "last one").Return("sure", nil).Once()

	reply, err := d.Send(context.Background(), user, room.ID, "last one")
	require.NoError(t, err)
	assert.Equal(t, "sure", reply)

	value, _ := f.counter(user.ID)
	assert.Equal(t, "5", value)

	messages := f.drain(t, room.ID)
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, "last one", messages[0].Content)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)
	assert.Equal(t, "sure", messages[1].Content)
	f.provider.AssertExpectations(t)
}

func TestSend_ProviderFailureKeepsQuotaByDefault(t *testing.T) {
	f, d := newFixture(t, Options{})
	user := f.user(t, "+810000000006", false)
	room := f.room(t, "failing", user)
	upstream := errors.New("upstream 503")
	f.provider.On("Generate", mock.Anything, "Hello").Return("", upstream)

	_, err := d.Send(context.Background(), user, room.ID, "Hello")
	assert.ErrorIs(t, err, ErrProvider)
	assert.ErrorIs(t, err, upstream)

	value, _ := f.counter(user.ID)
	assert.Equal(t, "1", value)
	assert.Empty(t, f.drain(t, room.ID))
}

func TestSend_ProviderFailureRefundsWhenEnabled(t *testing.T) {
	f, d := newFixture(t, Options{RefundOnFailure: true})
	user := f.user(t, "+810000000007", false)
	room := f.room(t, "refund", user)
	f.provider.On("Generate", mock.Anything, "Hello").Return("", errors.New("timeout"))

	_, err := d.Send(context.Background(), user, room.ID, "Hello")
	assert.ErrorIs(t, err, ErrProvider)

	value, _ := f.counter(user.ID)
	assert.Equal(t, "0", value)
}

func TestSend_EmptyContent(t *testing.T) {
	f, d := newFixture(t, Options{})
	user := f.user(t, "+810000000008", false)
	room := f.room(t, "empty", user)

	_, err := d.Send(context.Background(), user, room.ID, "   ")
	assert.ErrorIs(t, err, ErrEmptyContent)
	_, exists := f.counter(user.ID)
	assert.False(t, exists)
}

func TestSend_HelloScenario(t *testing.T) {
	f, d := newFixture(t, Options{})
	a := f.user(t, "+810000000009", false)
	owner := f.user(t, "+810000000010", false)
	room := f.room(t, "room-seven", owner)
	_, err := f.store.JoinChatroom(context.Background(), a.ID, room.ID)
	require.NoError(t, err)
	f.provider.On("Generate", mock.Anything, "Hello").Return("Hi there", nil).Once()

	reply, err := d.Send(context.Background(), a, room.ID, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", reply)

	messages := f.drain(t, room.ID)
	require.Len(t, messages, 2)
	require.NotNil(t, messages[0].UserID)
	assert.Equal(t, a.ID, *messages[0].UserID)
	assert.Equal(t, "Hello", messages[0].Content)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Nil(t, messages[1].UserID)
	assert.Equal(t, "Hi there", messages[1].Content)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)

	value, _ := f.counter(a.ID)
	assert.Equal(t, "1", value)
	assert.Equal(t, quota.KeyTTL, f.mr.TTL(quota.Key(a.ID, f.now)))
}

type rejectingQueue struct{}

func (rejectingQueue) Enqueue(Exchange) error { return ErrQueueFull }

func TestSend_QueueFullStillResponds(t *testing.T) {
	f, _ := newFixture(t, Options{})
	user := f.user(t, "+810000000011", false)
	room := f.room(t, "busy", user)
	f.provider.On("Generate", mock.Anything, "Hello").Return("Hi", nil)

	d := New(f.store, f.limiter, f.provider, rejectingQueue{}, Options{}, zap.NewNop())
	reply, err := d.Send(context.Background(), user, room.ID, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi", reply)
}
