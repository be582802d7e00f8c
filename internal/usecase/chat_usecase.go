package usecase

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ServicePlayground/sweet-order-sub002/internal/domain/entity"
	"github.com/ServicePlayground/sweet-order-sub002/internal/domain/repository"
	"github.com/ServicePlayground/sweet-order-sub002/internal/infrastructure/ratelimit"
	"github.com/ServicePlayground/sweet-order-sub002/pkg/cursor"
	"github.com/ServicePlayground/sweet-order-sub002/pkg/errors"
)

const (
	// MaxMessageLength bounds message text in runes.
	MaxMessageLength = 1000

	// MaxPageLimit and MinPageLimit bound listMessages page sizes.
	MaxPageLimit = 100
	MinPageLimit = 1
)

// Broadcaster receives committed messages for live fan-out. Delivery is
// best-effort: the message is already durable when this is called, and
// failures must never surface to the sender.
type Broadcaster interface {
	BroadcastToRoom(roomID string, payload interface{})
}

type ChatUseCase struct {
	chatRepo     repository.ChatRepository
	userRepo     repository.UserRepository
	storeRepo    repository.StoreRepository
	broadcaster  Broadcaster
	rateLimiter  *ratelimit.RateLimiter
	storeTimeout time.Duration
}

func NewChatUseCase(
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	storeRepo repository.StoreRepository,
	broadcaster Broadcaster,
	storeTimeout time.Duration,
) *ChatUseCase {
	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine()

	return &ChatUseCase{
		chatRepo:     chatRepo,
		userRepo:     userRepo,
		storeRepo:    storeRepo,
		broadcaster:  broadcaster,
		rateLimiter:  rateLimiter,
		storeTimeout: storeTimeout,
	}
}

type SendMessageInput struct {
	RoomID        string
	Text          string
	AttachmentURL string
}

// RoomResponse is a room summary plus the counterpart's public profile
// snapshot: the store for a viewing user, the user for a viewing store.
type RoomResponse struct {
	*entity.Room
	OtherUser  *entity.User  `json:"other_user,omitempty"`
	OtherStore *entity.Store `json:"other_store,omitempty"`
}

// MessagePage is one page of room history, newest first. NextCursor is
// only set while HasNext is true.
type MessagePage struct {
	Messages   []*entity.Message `json:"messages"`
	HasNext    bool              `json:"hasNext"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

// CreateOrGetRoom returns the single room for the (user, store) pair,
// creating it on first contact. Safe under concurrent first-contact
// calls: a lost creation race falls back to reading the winner's room.
func (uc *ChatUseCase) CreateOrGetRoom(ctx context.Context, userID, storeID string) (*RoomResponse, error) {
	if userID == "" || storeID == "" {
		return nil, errors.InvalidArgument("User and store ids are required", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()

	store, err := uc.storeRepo.GetByID(ctx, storeID)
	if err != nil {
		log.Printf("CreateOrGetRoom Error: Store %s not found: %v", storeID, err)
		return nil, err
	}

	room, err := uc.chatRepo.GetRoomByPair(ctx, userID, storeID)
	if err == nil {
		return &RoomResponse{Room: room, OtherStore: store}, nil
	}
	if !errors.Is(err, "NOT_FOUND") {
		log.Printf("CreateOrGetRoom Error: Failed to look up room for user %s store %s: %v", userID, storeID, err)
		return nil, err
	}

	// Charge the bucket only when a room is actually being created.
	// Reopening an existing room is an idempotent read and stays free.
	allowed, waitTime := uc.rateLimiter.Allow(userID, "create_room")
	if !allowed {
		log.Printf("CreateOrGetRoom Rate Limited: user %s must wait %v", userID, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before opening another room")
	}

	room, err = uc.chatRepo.CreateRoom(ctx, &entity.Room{
		UserID:  userID,
		StoreID: storeID,
	})
	if errors.Is(err, "CONFLICT") {
		// Concurrent first contact: someone else created the room between
		// our read and write. Re-read instead of erroring.
		room, err = uc.chatRepo.GetRoomByPair(ctx, userID, storeID)
	}
	if err != nil {
		log.Printf("CreateOrGetRoom Error: Failed to create room for user %s store %s: %v", userID, storeID, err)
		return nil, err
	}

	return &RoomResponse{Room: room, OtherStore: store}, nil
}

// SendMessage validates, authorizes and durably appends a message. The
// append, the room's last-message snapshot and the recipient's unread
// counter commit in one transaction; live fan-out happens only after
// the commit and never fails the call.
func (uc *ChatUseCase) SendMessage(ctx context.Context, sender entity.Participant, input SendMessageInput) (*entity.Message, error) {
	allowed, waitTime := uc.rateLimiter.Allow(sender.ID, "send_message")
	if !allowed {
		log.Printf("SendMessage Rate Limited: %s %s must wait %v", sender.Type, sender.ID, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before sending another message")
	}

	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, errors.InvalidArgument("Message text must not be empty", nil)
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, errors.InvalidArgument("Message text is too long", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()

	room, err := uc.chatRepo.GetRoomByID(ctx, input.RoomID)
	if err != nil {
		log.Printf("SendMessage Error: Room %s not found: %v", input.RoomID, err)
		return nil, err
	}

	if _, ok := room.Side(sender); !ok {
		log.Printf("SendMessage Error: %s %s is not a participant of room %s", sender.Type, sender.ID, input.RoomID)
		return nil, errors.Forbidden("Caller is not a participant of this room", nil)
	}

	message := &entity.Message{
		RoomID:        input.RoomID,
		SenderID:      sender.ID,
		SenderType:    sender.Type,
		Text:          text,
		AttachmentURL: input.AttachmentURL,
	}

	if _, err := uc.chatRepo.AppendMessage(ctx, message); err != nil {
		log.Printf("SendMessage Error: Failed to append message to room %s: %v", input.RoomID, err)
		return nil, err
	}

	if uc.broadcaster != nil {
		uc.broadcaster.BroadcastToRoom(input.RoomID, map[string]interface{}{
			"type":    "new_message",
			"room_id": input.RoomID,
			"message": message,
		})
	}

	return message, nil
}

// MarkRead resets the reader's own unread counter to zero. Idempotent.
func (uc *ChatUseCase) MarkRead(ctx context.Context, reader entity.Participant, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()

	room, err := uc.chatRepo.GetRoomByID(ctx, roomID)
	if err != nil {
		log.Printf("MarkRead Error: Room %s not found: %v", roomID, err)
		return err
	}

	side, ok := room.Side(reader)
	if !ok {
		log.Printf("MarkRead Error: %s %s is not a participant of room %s", reader.Type, reader.ID, roomID)
		return errors.Forbidden("Caller is not a participant of this room", nil)
	}

	if err := uc.chatRepo.ResetUnread(ctx, roomID, side); err != nil {
		log.Printf("MarkRead Error: Failed to reset unread counter for room %s: %v", roomID, err)
		return err
	}

	return nil
}

// ListRooms returns the caller's rooms ordered by last activity,
// newest first, each with the counterpart's profile snapshot. Rooms
// without any message yet sort last.
func (uc *ChatUseCase) ListRooms(ctx context.Context, caller entity.Participant, limit, offset int) ([]*RoomResponse, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()

	rooms, total, err := uc.chatRepo.ListRoomsByParticipant(ctx, caller, limit, offset)
	if err != nil {
		log.Printf("ListRooms Error: Failed to list rooms for %s %s: %v", caller.Type, caller.ID, err)
		return nil, 0, err
	}

	var responses []*RoomResponse
	for _, room := range rooms {
		resp := &RoomResponse{Room: room}

		switch caller.Type {
		case entity.ParticipantUser:
			store, err := uc.storeRepo.GetByID(ctx, room.StoreID)
			if err == nil {
				resp.OtherStore = store
			} else {
				log.Printf("ListRooms Warning: Store %s not found for room %s: %v", room.StoreID, room.ID, err)
			}
		case entity.ParticipantStore:
			user, err := uc.userRepo.GetByID(ctx, room.UserID)
			if err == nil {
				resp.OtherUser = user
			} else {
				log.Printf("ListRooms Warning: User %s not found for room %s: %v", room.UserID, room.ID, err)
			}
		}

		responses = append(responses, resp)
	}

	return responses, total, nil
}

// ListMessages returns one page of room history, newest page first,
// each page walking backward in time from the opaque cursor.
func (uc *ChatUseCase) ListMessages(ctx context.Context, caller entity.Participant, roomID string, limit int, cursorToken string) (*MessagePage, error) {
	if limit < MinPageLimit || limit > MaxPageLimit {
		return nil, errors.InvalidArgument("Limit must be between 1 and 100", nil)
	}

	var before *cursor.Cursor
	if cursorToken != "" {
		decoded, err := cursor.Decode(cursorToken)
		if err != nil {
			return nil, errors.InvalidArgument("Malformed pagination cursor", err)
		}
		before = &decoded
	}

	ctx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()

	room, err := uc.chatRepo.GetRoomByID(ctx, roomID)
	if err != nil {
		log.Printf("ListMessages Error: Room %s not found: %v", roomID, err)
		return nil, err
	}

	if _, ok := room.Side(caller); !ok {
		log.Printf("ListMessages Error: %s %s is not a participant of room %s", caller.Type, caller.ID, roomID)
		return nil, errors.Forbidden("Caller is not a participant of this room", nil)
	}

	messages, hasNext, err := uc.chatRepo.ListMessagesBefore(ctx, roomID, limit, before)
	if err != nil {
		log.Printf("ListMessages Error: Failed to list messages for room %s: %v", roomID, err)
		return nil, err
	}

	page := &MessagePage{
		Messages: messages,
		HasNext:  hasNext,
	}
	if hasNext && len(messages) > 0 {
		oldest := messages[len(messages)-1]
		page.NextCursor = cursor.New(oldest.CreatedAt, oldest.ID).Encode()
	}

	return page, nil
}

// IsParticipant reports whether p belongs to the room. The realtime
// gateway uses it to authorize join requests.
func (uc *ChatUseCase) IsParticipant(ctx context.Context, p entity.Participant, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, uc.storeTimeout)
	defer cancel()

	room, err := uc.chatRepo.GetRoomByID(ctx, roomID)
	if err != nil {
		return err
	}

	if _, ok := room.Side(p); !ok {
		return errors.Forbidden("Caller is not a participant of this room", nil)
	}

	return nil
}
