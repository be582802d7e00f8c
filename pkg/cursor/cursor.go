// Package cursor encodes message-pagination positions as opaque,
// round-trippable tokens. A token captures the ordering key
// (createdAt, id) of the last message a page returned, so pages stay
// stable while new messages keep arriving.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

type Cursor struct {
	CreatedAtMicro int64  `json:"t"`
	MessageID      string `json:"m"`
}

func New(createdAt time.Time, messageID string) Cursor {
	return Cursor{
		CreatedAtMicro: createdAt.UnixMicro(),
		MessageID:      messageID,
	}
}

func (c Cursor) CreatedAt() time.Time {
	return time.UnixMicro(c.CreatedAtMicro).UTC()
}

func (c Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func Decode(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, err
	}

	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, err
	}

	return c, nil
}
