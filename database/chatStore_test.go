package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"chatgate/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func createUser(t *testing.T, db *gorm.DB, mobile string) *models.User {
	t.Helper()
	user := &models.User{Mobile: mobile}
	require.NoError(t, NewUserStore(db).Create(context.Background(), user))
	return user
}

func TestChatStore_CreateChatroomAddsCreatorAsMember(t *testing.T) {
	db := newTestDB(t)
	store := NewChatStore(db)
	ctx := context.Background()
	alice := createUser(t, db, "+810000001")

	room, err := store.CreateChatroom(ctx, "general", alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, room.CreatedBy)

	member, err := store.FindMembership(ctx, alice.ID, room.ID)
	require.NoError(t, err)
	require.NotNil(t, member)

	_, err = store.CreateChatroom(ctx, "general", alice.ID)
	assert.ErrorIs(t, err, ErrChatroomExists)
}

func TestChatStore_FindMembershipAbsent(t *testing.T) {
	db := newTestDB(t)
	store := NewChatStore(db)
	ctx := context.Background()
	alice := createUser(t, db, "+810000001")
	bob := createUser(t, db, "+810000002")

	room, err := store.CreateChatroom(ctx, "alice-only", alice.ID)
	require.NoError(t, err)

	member, err := store.FindMembership(ctx, bob.ID, room.ID)
	require.NoError(t, err)
	assert.Nil(t, member)
}

func TestChatStore_JoinIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	store := NewChatStore(db)
	ctx := context.Background()
	alice := createUser(t, db, "+810000001")
	bob := createUser(t, db, "+810000002")
	room, err := store.CreateChatroom(ctx, "lobby", alice.ID)
	require.NoError(t, err)

	first, err := store.JoinChatroom(ctx, bob.ID, room.ID)
	require.NoError(t, err)
	second, err := store.JoinChatroom(ctx, bob.ID, room.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	rooms, err := store.ListChatroomsForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "lobby", rooms[0].Name)

	_, err = store.JoinChatroom(ctx, bob.ID, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChatStore_ExchangeRoundTripKeepsOrder(t *testing.T) {
	db := newTestDB(t)
	store := NewChatStore(db)
	ctx := context.Background()
	alice := createUser(t, db, "+810000001")
	room, err := store.CreateChatroom(ctx, "room", alice.ID)
	require.NoError(t, err)

	require.NoError(t, store.InsertExchange(ctx, room.ID, alice.ID, "Hello", "Hi there"))
	require.NoError(t, store.InsertExchange(ctx, room.ID, alice.ID, "How are you?", "Fine"))

	msgs, err := store.ListMessages(ctx, room.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	wantRoles := []string{models.RoleUser, models.RoleAssistant, models.RoleUser, models.RoleAssistant}
	wantContent := []string{"Hello", "Hi there", "How are you?", "Fine"}
	for i, msg := range msgs {
		assert.Equal(t, wantRoles[i], msg.Role)
		assert.Equal(t, wantContent[i], msg.Content)
		if msg.Role == models.RoleAssistant {
			assert.Nil(t, msg.UserID)
		} else {
			require.NotNil(t, msg.UserID)
			assert.Equal(t, alice.ID, *msg.UserID)
		}
	}
}

func TestChatStore_DeleteMessagesBefore(t *testing.T) {
	db := newTestDB(t)
	store := NewChatStore(db)
	ctx := context.Background()
	alice := createUser(t, db, "+810000001")
	room, err := store.CreateChatroom(ctx, "room", alice.ID)
	require.NoError(t, err)

	old, err := store.InsertMessage(ctx, room.ID, &alice.ID, "old", models.RoleUser)
	require.NoError(t, err)
	require.NoError(t, db.Model(old).Update("created_at", time.Now().Add(-48*time.Hour)).Error)
	_, err = store.InsertMessage(ctx, room.ID, &alice.ID, "new", models.RoleUser)
	require.NoError(t, err)

	deleted, err := store.DeleteMessagesBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	msgs, err := store.ListMessages(ctx, room.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "new", msgs[0].Content)
}

func TestChatStore_ListMessagesReturnsNewestWindow(t *testing.T) {
	db := newTestDB(t)
	store := NewChatStore(db)
	ctx := context.Background()
	alice := createUser(t, db, "+810000001")
	room, err := store.CreateChatroom(ctx, "room", alice.ID)
	require.NoError(t, err)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 60; i++ {
		msg, err := store.InsertMessage(ctx, room.ID, &alice.ID, fmt.Sprintf("m%02d", i), models.RoleUser)
		require.NoError(t, err)
		require.NoError(t, db.Model(msg).Update("created_at", base.Add(time.Duration(i)*time.Second)).Error)
	}

	msgs, err := store.ListMessages(ctx, room.ID, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 50)
	assert.Equal(t, "m10", msgs[0].Content)
	assert.Equal(t, "m59", msgs[49].Content)

	all, err := store.ListMessages(ctx, room.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 60)
	assert.Equal(t, "m00", all[0].Content)
}
