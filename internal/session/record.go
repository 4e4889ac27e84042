package session

import (
	"encoding/json"
	"fmt"
	"time"
)

const recordVersion = 1

type record struct {
	Version int        `json:"v"`
	Session *Session   `json:"session"`
	SavedAt *time.Time `json:"savedAt"`
}

// Encode serialises s into the versioned record format.
func Encode(s Session, savedAt time.Time) ([]byte, error) {
	at := savedAt.UTC()
	return json.Marshal(record{Version: recordVersion, Session: &s, SavedAt: &at})
}

// Decode parses a stored record. Any structural problem yields ErrCorruptState.
func Decode(data []byte) (Session, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if rec.Version != recordVersion {
		return Session{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptState, rec.Version)
	}
	if rec.Session == nil || rec.SavedAt == nil {
		return Session{}, fmt.Errorf("%w: incomplete record", ErrCorruptState)
	}
	s := *rec.Session
	switch {
	case s.ID == "":
		return Session{}, fmt.Errorf("%w: missing id", ErrCorruptState)
	case s.Email == "":
		return Session{}, fmt.Errorf("%w: missing email", ErrCorruptState)
	case s.Token == "":
		return Session{}, fmt.Errorf("%w: missing token", ErrCorruptState)
	}
	return s, nil
}

func validate(s Session) error {
	if s.ID == "" || s.Email == "" || s.Token == "" {
		return fmt.Errorf("session: id, email and token are required")
	}
	return nil
}
