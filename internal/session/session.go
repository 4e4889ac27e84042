// Package session persists the authenticated identity of each client context
// and broadcasts changes to every reader of that context.
package session

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
)

// AllClients subscribes to events of every client context.
const AllClients = "*"

var (
	// ErrNoSession is returned by Load when the marker or the record is absent.
	ErrNoSession = errors.New("session: no session")
	// ErrCorruptState is returned by Load when the stored record could not be
	// decoded. Both the marker and the record have been removed.
	ErrCorruptState = errors.New("session: corrupt state")
	// ErrStorageUnavailable wraps failures of the storage medium.
	ErrStorageUnavailable = errors.New("session: storage unavailable")
)

// Session is the authenticated identity held for one client context.
type Session struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	IsNewUser bool   `json:"isNewUser"`
	// Token is the authentication marker issued with the session.
	Token string `json:"token"`
}

// EventKind names the mutation that produced an Event.
type EventKind string

const (
	EventSaved   EventKind = "saved"
	EventCleared EventKind = "cleared"
)

// Event is published after every Save and Clear.
type Event struct {
	Client  string    `json:"client"`
	Kind    EventKind `json:"kind"`
	Session *Session  `json:"session,omitempty"`
}

// Store holds at most one Session per client context.
type Store interface {
	Save(ctx context.Context, client string, s Session) error
	Load(ctx context.Context, client string) (Session, error)
	Clear(ctx context.Context, client string) error
	Subscribe(ctx context.Context, client string) (*Subscription, error)
}

// Subscription delivers events until Close is called or its context ends.
type Subscription struct {
	events <-chan Event
	close  func() error
}

// Events returns the receive side of the subscription.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

// NewToken returns a fresh, lexically sortable authentication marker.
func NewToken() string {
	return ulid.Make().String()
}
