package repository

import (
	"context"

	"github.com/ServicePlayground/sweet-order-sub002/internal/domain/entity"
	"github.com/ServicePlayground/sweet-order-sub002/pkg/cursor"
)

// ChatRepository persists rooms and messages. Implementations must make
// AppendMessage and ResetUnread atomic: the message row, the room's
// last-message snapshot and the unread counter change commit together
// or not at all.
type ChatRepository interface {
	// CreateRoom inserts a new room. When a room for the same
	// (user, store) pair already exists the call fails with CONFLICT and
	// writes nothing; callers resolve the race by re-reading the pair.
	CreateRoom(ctx context.Context, room *entity.Room) (*entity.Room, error)
	GetRoomByID(ctx context.Context, id string) (*entity.Room, error)
	GetRoomByPair(ctx context.Context, userID, storeID string) (*entity.Room, error)

	// ListRoomsByParticipant returns rooms ordered by lastMessageAt
	// descending; rooms that never had a message sort last.
	ListRoomsByParticipant(ctx context.Context, p entity.Participant, limit, offset int) ([]*entity.Room, int64, error)

	// AppendMessage stores the message, refreshes the room's
	// lastMessage/lastMessageAt and increments the recipient's unread
	// counter in one transaction. The stored message carries a createdAt
	// strictly greater than every earlier message in the room. Returns
	// the room as committed.
	AppendMessage(ctx context.Context, message *entity.Message) (*entity.Room, error)

	// ResetUnread zeroes the counter of the given side. Resetting an
	// already-zero counter is a no-op, not an error.
	ResetUnread(ctx context.Context, roomID string, side entity.ParticipantType) error

	// ListMessagesBefore returns up to limit messages strictly older
	// than the cursor position (or the newest messages when before is
	// nil), newest first. The second result reports whether older
	// messages remain.
	ListMessagesBefore(ctx context.Context, roomID string, limit int, before *cursor.Cursor) ([]*entity.Message, bool, error)
}
