package telegram

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/celestix/gotgproto/storage"
	"github.com/gotd/td/session"
	"github.com/gotd/td/session/tdesktop"
	"gorm.io/gorm"
)

// sessionEnvelope mirrors the versioned JSON layout gotd writes through
// session.Loader, which gotgproto reads back from storage.Session.Data.
type sessionEnvelope struct {
	Version int
	Data    session.Data
}

// EncodeSession converts login output into the row stored in the sessions table.
func EncodeSession(data *session.Data) (*storage.Session, error) {
	if data == nil {
		return nil, errors.New("session data is nil")
	}

	raw, err := json.Marshal(sessionEnvelope{Version: 1, Data: *data})
	if err != nil {
		return nil, err
	}

	return &storage.Session{
		Version: storage.LatestVersion,
		Data:    raw,
	}, nil
}

// SaveSession upserts the session row. storage.Session is keyed by version,
// so saving replaces any previous login.
func SaveSession(db *gorm.DB, data *session.Data) error {
	sess, err := EncodeSession(data)
	if err != nil {
		return err
	}
	return db.Save(sess).Error
}

// HasStoredSession reports whether the sessions table holds a login.
func HasStoredSession(db *gorm.DB) bool {
	if db == nil {
		return false
	}
	var count int64
	if err := db.Table("sessions").Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

// SessionFromTData converts a Telegram Desktop account into session data.
func SessionFromTData(account tdesktop.Account) (*session.Data, error) {
	data, err := session.TDesktopSession(account)
	if err != nil {
		return nil, fmt.Errorf("convert tdata session: %w", err)
	}
	return data, nil
}
