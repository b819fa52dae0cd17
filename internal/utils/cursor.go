package utils

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// opaque to clients; field names kept short to keep URLs small
type userCursor struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

func EncodeUserCursor(c user.Cursor) (string, error) {
	b, err := json.Marshal(userCursor{CreatedAt: c.CreatedAt, ID: c.ID})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeUserCursor(cursor string) (user.Cursor, error) {
	if cursor == "" {
		return user.Cursor{}, ErrInvalidCursor
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return user.Cursor{}, errors.Join(ErrInvalidCursor, err)
	}

	var c userCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return user.Cursor{}, errors.Join(ErrInvalidCursor, err)
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return user.Cursor{}, ErrInvalidCursor
	}

	return user.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}, nil
}
