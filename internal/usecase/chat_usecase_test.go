package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ServicePlayground/sweet-order-sub002/internal/domain/entity"
	"github.com/ServicePlayground/sweet-order-sub002/pkg/cursor"
	"github.com/ServicePlayground/sweet-order-sub002/pkg/errors"
)

// fakeChatRepository is an in-memory ChatRepository with the same
// contract as the Firestore one: pair uniqueness, atomic counter
// updates and strictly increasing per-room timestamps.
type fakeChatRepository struct {
	mu       sync.Mutex
	rooms    map[string]*entity.Room
	pairs    map[string]string
	messages map[string][]*entity.Message

	// When set, CreateRoom loses the race: the winner's room appears
	// and the call reports a conflict.
	winnerRoom *entity.Room
}

func newFakeChatRepository() *fakeChatRepository {
	return &fakeChatRepository{
		rooms:    make(map[string]*entity.Room),
		pairs:    make(map[string]string),
		messages: make(map[string][]*entity.Message),
	}
}

func pairKey(userID, storeID string) string {
	return userID + "__" + storeID
}

func (f *fakeChatRepository) CreateRoom(ctx context.Context, room *entity.Room) (*entity.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := pairKey(room.UserID, room.StoreID)
	if f.winnerRoom != nil {
		winner := *f.winnerRoom
		f.rooms[winner.ID] = &winner
		f.pairs[key] = winner.ID
		return nil, errors.Conflict("Room for this user and store already exists", nil)
	}

	if _, exists := f.pairs[key]; exists {
		return nil, errors.Conflict("Room for this user and store already exists", nil)
	}

	stored := *room
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	stored.CreatedAt = now
	stored.UpdatedAt = now

	f.pairs[key] = stored.ID
	f.rooms[stored.ID] = &stored

	copied := stored
	return &copied, nil
}

func (f *fakeChatRepository) GetRoomByID(ctx context.Context, id string) (*entity.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	room, ok := f.rooms[id]
	if !ok {
		return nil, errors.NotFound("Room", nil)
	}
	copied := *room
	return &copied, nil
}

func (f *fakeChatRepository) GetRoomByPair(ctx context.Context, userID, storeID string) (*entity.Room, error) {
	f.mu.Lock()
	roomID, ok := f.pairs[pairKey(userID, storeID)]
	f.mu.Unlock()

	if !ok {
		return nil, errors.NotFound("Room", nil)
	}
	return f.GetRoomByID(ctx, roomID)
}

func (f *fakeChatRepository) ListRoomsByParticipant(ctx context.Context, p entity.Participant, limit, offset int) ([]*entity.Room, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []*entity.Room
	for _, room := range f.rooms {
		if (p.Type == entity.ParticipantUser && room.UserID == p.ID) ||
			(p.Type == entity.ParticipantStore && room.StoreID == p.ID) {
			copied := *room
			matched = append(matched, &copied)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastMessageAt.After(matched[j].LastMessageAt)
	})

	total := int64(len(matched))
	if offset > len(matched) {
		offset = len(matched)
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return matched[offset:end], total, nil
}

func (f *fakeChatRepository) AppendMessage(ctx context.Context, message *entity.Message) (*entity.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	room, ok := f.rooms[message.RoomID]
	if !ok {
		return nil, errors.NotFound("Room", nil)
	}

	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(room.LastMessageAt) {
		now = room.LastMessageAt.Add(time.Microsecond)
	}
	message.CreatedAt = now

	room.LastMessage = message.Text
	room.LastMessageAt = now
	room.UpdatedAt = now
	if message.SenderType.Counterpart() == entity.ParticipantUser {
		room.UserUnread++
	} else {
		room.StoreUnread++
	}

	copied := *message
	f.messages[room.ID] = append(f.messages[room.ID], &copied)

	committed := *room
	return &committed, nil
}

func (f *fakeChatRepository) ResetUnread(ctx context.Context, roomID string, side entity.ParticipantType) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	room, ok := f.rooms[roomID]
	if !ok {
		return errors.NotFound("Room", nil)
	}

	if side == entity.ParticipantUser {
		room.UserUnread = 0
	} else {
		room.StoreUnread = 0
	}
	return nil
}

func (f *fakeChatRepository) ListMessagesBefore(ctx context.Context, roomID string, limit int, before *cursor.Cursor) ([]*entity.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := f.messages[roomID]

	var older []*entity.Message
	for i := len(stored) - 1; i >= 0; i-- {
		m := stored[i]
		if before != nil {
			beforeAt := before.CreatedAt()
			if m.CreatedAt.After(beforeAt) {
				continue
			}
			if m.CreatedAt.Equal(beforeAt) && m.ID >= before.MessageID {
				continue
			}
		}
		copied := *m
		older = append(older, &copied)
	}

	hasNext := false
	if len(older) > limit {
		hasNext = true
		older = older[:limit]
	}
	return older, hasNext, nil
}

type fakeUserRepository struct {
	users map[string]*entity.User
}

func (f *fakeUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	if user, ok := f.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, errors.NotFound("User", nil)
}

type fakeStoreRepository struct {
	stores map[string]*entity.Store
}

func (f *fakeStoreRepository) GetByID(ctx context.Context, id string) (*entity.Store, error) {
	if store, ok := f.stores[id]; ok {
		copied := *store
		return &copied, nil
	}
	return nil, errors.NotFound("Store", nil)
}

type broadcastCall struct {
	roomID  string
	payload interface{}
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (f *fakeBroadcaster) BroadcastToRoom(roomID string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, broadcastCall{roomID: roomID, payload: payload})
}

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	uc          *ChatUseCase
	chatRepo    *fakeChatRepository
	storeRepo   *fakeStoreRepository
	broadcaster *fakeBroadcaster
}

func newFixture() *fixture {
	chatRepo := newFakeChatRepository()
	userRepo := &fakeUserRepository{users: map[string]*entity.User{
		"user-1": {ID: "user-1", Nickname: "mina"},
		"user-2": {ID: "user-2", Nickname: "jun"},
	}}
	storeRepo := &fakeStoreRepository{stores: map[string]*entity.Store{
		"store-1": {ID: "store-1", Name: "Sweet Cakes"},
		"store-2": {ID: "store-2", Name: "Donut Works"},
	}}
	broadcaster := &fakeBroadcaster{}

	return &fixture{
		uc:          NewChatUseCase(chatRepo, userRepo, storeRepo, broadcaster, 5*time.Second),
		chatRepo:    chatRepo,
		storeRepo:   storeRepo,
		broadcaster: broadcaster,
	}
}

func user(id string) entity.Participant {
	return entity.Participant{ID: id, Type: entity.ParticipantUser}
}

func store(id string) entity.Participant {
	return entity.Participant{ID: id, Type: entity.ParticipantStore}
}

func (fx *fixture) openRoom(t *testing.T, userID, storeID string) *entity.Room {
	t.Helper()
	resp, err := fx.uc.CreateOrGetRoom(context.Background(), userID, storeID)
	require.NoError(t, err)
	return resp.Room
}

func TestCreateOrGetRoomReturnsSameRoom(t *testing.T) {
	fx := newFixture()

	first, err := fx.uc.CreateOrGetRoom(context.Background(), "user-1", "store-1")
	require.NoError(t, err)
	require.NotEmpty(t, first.Room.ID)
	assert.Equal(t, "Sweet Cakes", first.OtherStore.Name)

	second, err := fx.uc.CreateOrGetRoom(context.Background(), "user-1", "store-1")
	require.NoError(t, err)
	assert.Equal(t, first.Room.ID, second.Room.ID)
}

func TestCreateOrGetRoomUnknownStore(t *testing.T) {
	fx := newFixture()

	_, err := fx.uc.CreateOrGetRoom(context.Background(), "user-1", "no-such-store")
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestCreateOrGetRoomLostRaceFallsBackToRead(t *testing.T) {
	fx := newFixture()

	// The pair looks free on the initial read, but a concurrent writer
	// wins the creation race. The caller must get the surviving room
	// back instead of an error.
	fx.chatRepo.winnerRoom = &entity.Room{ID: "winner", UserID: "user-1", StoreID: "store-1"}

	resp, err := fx.uc.CreateOrGetRoom(context.Background(), "user-1", "store-1")
	require.NoError(t, err)
	assert.Equal(t, "winner", resp.Room.ID)
}

func TestCreateOrGetRoomReopenIsNotRateLimited(t *testing.T) {
	fx := newFixture()
	room := fx.openRoom(t, "user-1", "store-1")

	// Reopening an existing room is a read and must stay free no matter
	// how often the client retries it.
	for i := 0; i < 8; i++ {
		resp, err := fx.uc.CreateOrGetRoom(context.Background(), "user-1", "store-1")
		require.NoError(t, err)
		assert.Equal(t, room.ID, resp.Room.ID)
	}
}

func TestCreateOrGetRoomLimitsActualCreates(t *testing.T) {
	fx := newFixture()
	for i := 3; i <= 6; i++ {
		id := fmt.Sprintf("store-%d", i)
		fx.storeRepo.stores[id] = &entity.Store{ID: id, Name: "Pop-up " + id}
	}

	for i := 1; i <= 5; i++ {
		fx.openRoom(t, "user-1", fmt.Sprintf("store-%d", i))
	}

	_, err := fx.uc.CreateOrGetRoom(context.Background(), "user-1", "store-6")
	assert.True(t, errors.Is(err, "TOO_MANY_REQUESTS"))

	// The rooms already opened are still readable after the limit hits.
	resp, err := fx.uc.CreateOrGetRoom(context.Background(), "user-1", "store-1")
	require.NoError(t, err)
	assert.Equal(t, "store-1", resp.Room.StoreID)
}

func TestSendMessageUpdatesOnlyRecipientCounter(t *testing.T) {
	fx := newFixture()
	room := fx.openRoom(t, "user-1", "store-1")

	_, err := fx.uc.SendMessage(context.Background(), user("user-1"), SendMessageInput{
		RoomID: room.ID,
		Text:   "안녕하세요",
	})
	require.NoError(t, err)

	got, err := fx.chatRepo.GetRoomByID(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UserUnread)
	assert.Equal(t, 1, got.StoreUnread)
	assert.Equal(t, "안녕하세요", got.LastMessage)

	_, err = fx.uc.SendMessage(context.Background(), store("store-1"), SendMessageInput{
		RoomID: room.ID,
		Text:   "네",
	})
	require.NoError(t, err)

	got, err = fx.chatRepo.GetRoomByID(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UserUnread)
	assert.Equal(t, 1, got.StoreUnread)
	assert.Equal(t, "네", got.LastMessage)
}

func TestSendMessageRejectsBlankAndOversizedText(t *testing.T) {
	fx := newFixture()
	room := fx.openRoom(t, "user-1", "store-1")

	_, err := fx.uc.SendMessage(context.Background(), user("user-1"), SendMessageInput{RoomID: room.ID, Text: "   "})
	assert.True(t, errors.Is(err, "INVALID_ARGUMENT"))

	_, err = fx.uc.SendMessage(context.Background(), user("user-1"), SendMessageInput{
		RoomID: room.ID,
		Text:   strings.Repeat("글", MaxMessageLength+1),
	})
	assert.True(t, errors.Is(err, "INVALID_ARGUMENT"))

	// Exactly at the limit passes.
	_, err = fx.uc.SendMessage(context.Background(), user("user-1"), SendMessageInput{
		RoomID: room.ID,
		Text:   strings.Repeat("글", MaxMessageLength),
	})
	assert.NoError(t, err)
}

func TestSendMessageForbiddenForOutsider(t *testing.T) {
	fx := newFixture()
	room := fx.openRoom(t, "user-1", "store-1")

	_, err := fx.uc.SendMessage(context.Background(), user("user-2"), SendMessageInput{RoomID: room.ID, Text: "hi"})
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	_, err = fx.uc.SendMessage(context.Background(), store("store-2"), SendMessageInput{RoomID: room.ID, Text: "hi"})
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	assert.Equal(t, 0, fx.broadcaster.count())
}

func TestSendMessageUnknownRoom(t *testing.T) {
	fx := newFixture()

	_, err := fx.uc.SendMessage(context.Background(), user("user-1"), SendMessageInput{RoomID: "missing", Text: "hi"})
	assert.True(t, errors.Is(err, "NOT_FOUND"))
	assert.Equal(t, 0, fx.broadcaster.count())
}

func TestSendMessageBroadcastsAfterCommit(t *testing.T) {
	fx := newFixture()
	room := fx.openRoom(t, "user-1", "store-1")

	msg, err := fx.uc.SendMessage(context.Background(), user("user-1"), SendMessageInput{RoomID: room.ID, Text: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())

	require.Equal(t, 1, fx.broadcaster.count())
	assert.Equal(t, room.ID, fx.broadcaster.calls[0].roomID)

	payload, ok := fx.broadcaster.calls[0].payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "new_message", payload["type"])
}

func TestMarkReadResetsOnlyOwnCounter(t *testing.T) {
	fx := newFixture()
	room := fx.openRoom(t, "user-1", "store-1")

	_, err := fx.uc.SendMessage(context.Background(), user("user-1"), SendMessageInput{RoomID: room.ID, Text: "ping"})
	require.NoError(t, err)
	_, err = fx.uc.SendMessage(context.Background(), store("store-1"), SendMessageInput{RoomID: room.ID, Text: "pong"})
	require.NoError(t, err)

	require.NoError(t, fx.uc.MarkRead(context.Background(), user("user-1"), room.ID))

	got, err := fx.chatRepo.GetRoomByID(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UserUnread)
	assert.Equal(t, 1, got.StoreUnread)

	// Second read is a no-op, not an error.
	require.NoError(t, fx.uc.MarkRead(context.Background(), user("user-1"), room.ID))
}

func TestMarkReadForbiddenForOutsider(t *testing.T) {
	fx := newFixture()
	room := fx.openRoom(t, "user-1", "store-1")

	err := fx.uc.MarkRead(context.Background(), user("user-2"), room.ID)
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestListRoomsOrderedByActivity(t *testing.T) {
	fx := newFixture()
	roomA := fx.openRoom(t, "user-1", "store-1")
	roomB := fx.openRoom(t, "user-1", "store-2")

	// Only room B gets a message; room A stays idle and must sort last.
	_, err := fx.uc.SendMessage(context.Background(), user("user-1"), SendMessageInput{RoomID: roomB.ID, Text: "fresh"})
	require.NoError(t, err)

	rooms, total, err := fx.uc.ListRooms(context.Background(), user("user-1"), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rooms, 2)
	assert.Equal(t, roomB.ID, rooms[0].Room.ID)
	assert.Equal(t, roomA.ID, rooms[1].Room.ID)

	assert.Equal(t, "Donut Works", rooms[0].OtherStore.Name)
	assert.Nil(t, rooms[0].OtherUser)
}

func TestListRoomsStoreSeesUserSnapshot(t *testing.T) {
	fx := newFixture()
	fx.openRoom(t, "user-1", "store-1")

	rooms, total, err := fx.uc.ListRooms(context.Background(), store("store-1"), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rooms, 1)
	assert.Equal(t, "mina", rooms[0].OtherUser.Nickname)
	assert.Nil(t, rooms[0].OtherStore)
}

func TestListMessagesRejectsBadInput(t *testing.T) {
	fx := newFixture()
	room := fx.openRoom(t, "user-1", "store-1")

	_, err := fx.uc.ListMessages(context.Background(), user("user-1"), room.ID, 0, "")
	assert.True(t, errors.Is(err, "INVALID_ARGUMENT"))

	_, err = fx.uc.ListMessages(context.Background(), user("user-1"), room.ID, MaxPageLimit+1, "")
	assert.True(t, errors.Is(err, "INVALID_ARGUMENT"))

	_, err = fx.uc.ListMessages(context.Background(), user("user-1"), room.ID, 10, "not-a-cursor")
	assert.True(t, errors.Is(err, "INVALID_ARGUMENT"))

	_, err = fx.uc.ListMessages(context.Background(), user("user-2"), room.ID, 10, "")
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestListMessagesPaginatesWithoutGapsOrDuplicates(t *testing.T) {
	fx := newFixture()
	room := fx.openRoom(t, "user-1", "store-1")

	// Seed straight through the repository so the history is longer
	// than any rate limit would allow through the service.
	var seeded []string
	for i := 0; i < 120; i++ {
		msg := &entity.Message{
			RoomID:     room.ID,
			SenderID:   "user-1",
			SenderType: entity.ParticipantUser,
			Text:       "message",
		}
		_, err := fx.chatRepo.AppendMessage(context.Background(), msg)
		require.NoError(t, err)
		seeded = append(seeded, msg.ID)
	}

	caller := user("user-1")

	page1, err := fx.uc.ListMessages(context.Background(), caller, room.ID, 50, "")
	require.NoError(t, err)
	require.Len(t, page1.Messages, 50)
	assert.True(t, page1.HasNext)
	require.NotEmpty(t, page1.NextCursor)

	// New arrivals between page fetches must not disturb older pages.
	_, err = fx.chatRepo.AppendMessage(context.Background(), &entity.Message{
		RoomID:     room.ID,
		SenderID:   "store-1",
		SenderType: entity.ParticipantStore,
		Text:       "late arrival",
	})
	require.NoError(t, err)

	page2, err := fx.uc.ListMessages(context.Background(), caller, room.ID, 50, page1.NextCursor)
	require.NoError(t, err)
	require.Len(t, page2.Messages, 50)
	assert.True(t, page2.HasNext)

	page3, err := fx.uc.ListMessages(context.Background(), caller, room.ID, 50, page2.NextCursor)
	require.NoError(t, err)
	require.Len(t, page3.Messages, 20)
	assert.False(t, page3.HasNext)
	assert.Empty(t, page3.NextCursor)

	var collected []*entity.Message
	collected = append(collected, page1.Messages...)
	collected = append(collected, page2.Messages...)
	collected = append(collected, page3.Messages...)

	seen := make(map[string]bool)
	for i, m := range collected {
		assert.False(t, seen[m.ID], "message %s returned twice", m.ID)
		seen[m.ID] = true
		if i > 0 {
			assert.True(t, collected[i-1].CreatedAt.After(m.CreatedAt), "pages must stay newest first")
		}
	}
	for _, id := range seeded {
		assert.True(t, seen[id], "seeded message %s missing from pages", id)
	}
}

func TestIsParticipant(t *testing.T) {
	fx := newFixture()
	room := fx.openRoom(t, "user-1", "store-1")

	assert.NoError(t, fx.uc.IsParticipant(context.Background(), user("user-1"), room.ID))
	assert.NoError(t, fx.uc.IsParticipant(context.Background(), store("store-1"), room.ID))

	err := fx.uc.IsParticipant(context.Background(), user("user-2"), room.ID)
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	err = fx.uc.IsParticipant(context.Background(), user("user-1"), "missing")
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}
