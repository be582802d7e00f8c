package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ServicePlayground/sweet-order-sub002/internal/domain/entity"
	"github.com/ServicePlayground/sweet-order-sub002/internal/domain/repository"
	"github.com/ServicePlayground/sweet-order-sub002/pkg/cursor"
	"github.com/ServicePlayground/sweet-order-sub002/pkg/errors"
)

const (
	roomsCollection    = "chatRooms"
	pairsCollection    = "chatRoomPairs"
	messagesCollection = "messages"
)

// roomPair is the uniqueness anchor for a (user, store) pair. Its doc
// id is deterministic, so two concurrent creators collide inside the
// transaction and exactly one room survives.
type roomPair struct {
	RoomID    string    `firestore:"roomId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type firestoreChatRepository struct {
	client *firestore.Client
}

func NewFirestoreChatRepository(client *firestore.Client) repository.ChatRepository {
	return &firestoreChatRepository{
		client: client,
	}
}

func pairKey(userID, storeID string) string {
	return fmt.Sprintf("%s__%s", userID, storeID)
}

func (r *firestoreChatRepository) CreateRoom(ctx context.Context, room *entity.Room) (*entity.Room, error) {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	room.CreatedAt = now
	room.UpdatedAt = now

	pairRef := r.client.Collection(pairsCollection).Doc(pairKey(room.UserID, room.StoreID))
	roomRef := r.client.Collection(roomsCollection).Doc(room.ID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(pairRef)
		if err == nil {
			return errors.Conflict("Room for this user and store already exists", nil)
		}
		if status.Code(err) != codes.NotFound {
			return err
		}

		if err := tx.Create(pairRef, roomPair{RoomID: room.ID, CreatedAt: now}); err != nil {
			return err
		}
		return tx.Create(roomRef, room)
	})
	if err != nil {
		if errors.Is(err, "CONFLICT") {
			return nil, err
		}
		return nil, mapStoreError("Failed to create room", err)
	}

	return room, nil
}

func (r *firestoreChatRepository) GetRoomByID(ctx context.Context, id string) (*entity.Room, error) {
	doc, err := r.client.Collection(roomsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Room", err)
		}
		return nil, mapStoreError("Failed to get room", err)
	}

	var room entity.Room
	if err := doc.DataTo(&room); err != nil {
		return nil, errors.Internal("Failed to parse room data", err)
	}

	return &room, nil
}

func (r *firestoreChatRepository) GetRoomByPair(ctx context.Context, userID, storeID string) (*entity.Room, error) {
	doc, err := r.client.Collection(pairsCollection).Doc(pairKey(userID, storeID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Room", err)
		}
		return nil, mapStoreError("Failed to get room pair", err)
	}

	var pair roomPair
	if err := doc.DataTo(&pair); err != nil {
		return nil, errors.Internal("Failed to parse room pair data", err)
	}

	return r.GetRoomByID(ctx, pair.RoomID)
}

func (r *firestoreChatRepository) ListRoomsByParticipant(ctx context.Context, p entity.Participant, limit, offset int) ([]*entity.Room, int64, error) {
	field := "userId"
	if p.Type == entity.ParticipantStore {
		field = "storeId"
	}

	query := r.client.Collection(roomsCollection).
		Where(field, "==", p.ID).
		OrderBy("lastMessageAt", firestore.Desc)

	allDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		log.Printf("ListRoomsByParticipant Error: Firestore query failed for %s %s: %v", p.Type, p.ID, err)
		return nil, 0, mapStoreError("Failed to fetch rooms", err)
	}

	total := int64(len(allDocs))

	start := offset
	if start > len(allDocs) {
		start = len(allDocs)
	}
	end := len(allDocs)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var rooms []*entity.Room
	for i := start; i < end; i++ {
		var room entity.Room
		if err := allDocs[i].DataTo(&room); err != nil {
			log.Printf("ListRoomsByParticipant Warning: skipping malformed room doc %s: %v", allDocs[i].Ref.ID, err)
			continue
		}
		rooms = append(rooms, &room)
	}

	return rooms, total, nil
}

func (r *firestoreChatRepository) AppendMessage(ctx context.Context, message *entity.Message) (*entity.Room, error) {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	roomRef := r.client.Collection(roomsCollection).Doc(message.RoomID)
	msgRef := roomRef.Collection(messagesCollection).Doc(message.ID)

	var committed entity.Room

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(roomRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Room", err)
			}
			return err
		}

		var room entity.Room
		if err := doc.DataTo(&room); err != nil {
			return errors.Internal("Failed to parse room data", err)
		}

		// Room counter updates serialize on the room document, so the
		// timestamp can be forced past the previous message here,
		// keeping creation order strict even when clocks collide.
		now := time.Now().UTC().Truncate(time.Microsecond)
		if !now.After(room.LastMessageAt) {
			now = room.LastMessageAt.Add(time.Microsecond)
		}
		message.CreatedAt = now

		room.LastMessage = message.Text
		room.LastMessageAt = now
		room.UpdatedAt = now
		switch message.SenderType.Counterpart() {
		case entity.ParticipantUser:
			room.UserUnread++
		case entity.ParticipantStore:
			room.StoreUnread++
		}

		if err := tx.Create(msgRef, message); err != nil {
			return err
		}
		if err := tx.Set(roomRef, &room); err != nil {
			return err
		}

		committed = room
		return nil
	})
	if err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return nil, err
		}
		return nil, mapStoreError("Failed to append message", err)
	}

	return &committed, nil
}

func (r *firestoreChatRepository) ResetUnread(ctx context.Context, roomID string, side entity.ParticipantType) error {
	roomRef := r.client.Collection(roomsCollection).Doc(roomID)

	field := "userUnread"
	if side == entity.ParticipantStore {
		field = "storeUnread"
	}

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(roomRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Room", err)
			}
			return err
		}

		var room entity.Room
		if err := doc.DataTo(&room); err != nil {
			return errors.Internal("Failed to parse room data", err)
		}

		// Already zero: nothing to write, stay idempotent.
		if room.UnreadFor(side) == 0 {
			return nil
		}

		return tx.Update(roomRef, []firestore.Update{
			{Path: field, Value: 0},
			{Path: "updatedAt", Value: time.Now().UTC().Truncate(time.Microsecond)},
		})
	})
	if err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return err
		}
		return mapStoreError("Failed to reset unread counter", err)
	}

	return nil
}

func (r *firestoreChatRepository) ListMessagesBefore(ctx context.Context, roomID string, limit int, before *cursor.Cursor) ([]*entity.Message, bool, error) {
	query := r.client.Collection(roomsCollection).Doc(roomID).Collection(messagesCollection).
		OrderBy("createdAt", firestore.Desc).
		OrderBy("id", firestore.Desc)

	if before != nil {
		query = query.StartAfter(before.CreatedAt(), before.MessageID)
	}

	// One extra row tells us whether an older page exists.
	iter := query.Limit(limit + 1).Documents(ctx)
	defer iter.Stop()

	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("ListMessagesBefore Error: iterating messages for room %s: %v", roomID, err)
			return nil, false, mapStoreError("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			log.Printf("ListMessagesBefore Error: parsing message %s in room %s: %v", doc.Ref.ID, roomID, err)
			return nil, false, errors.Internal("Failed to parse message data", err)
		}

		messages = append(messages, &message)
	}

	hasNext := false
	if len(messages) > limit {
		hasNext = true
		messages = messages[:limit]
	}

	return messages, hasNext, nil
}

// mapStoreError translates Firestore/gRPC failures onto the service
// error taxonomy. Timeouts and aborted transactions are retryable and
// surface as UNAVAILABLE.
func mapStoreError(message string, err error) *errors.AppError {
	switch status.Code(err) {
	case codes.DeadlineExceeded, codes.Canceled, codes.Unavailable, codes.Aborted, codes.ResourceExhausted:
		return errors.Unavailable(message, err)
	case codes.AlreadyExists:
		return errors.Conflict(message, err)
	default:
		return errors.Internal(message, err)
	}
}
