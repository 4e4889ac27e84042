package session

import (
	"context"
	"sync"
	"time"
)

const subscriberBuffer = 16

type memoryEntry struct {
	record []byte
	marker string
}

type memorySubscriber struct {
	client string
	ch     chan Event
}

// MemoryStore keeps sessions in process. It is used in development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	subs    map[int]*memorySubscriber
	nextSub int
	now     func() time.Time
}

// NewMemoryStore builds an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		subs:    make(map[int]*memorySubscriber),
		now:     time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, client string, s Session) error {
	if err := validate(s); err != nil {
		return err
	}
	raw, err := Encode(s, m.now())
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.entries[client] = memoryEntry{record: raw, marker: s.Token}
	m.mu.Unlock()

	saved := s
	m.publish(Event{Client: client, Kind: EventSaved, Session: &saved})
	return nil
}

func (m *MemoryStore) Load(_ context.Context, client string) (Session, error) {
	m.mu.RLock()
	entry, ok := m.entries[client]
	m.mu.RUnlock()
	if !ok || entry.marker == "" || len(entry.record) == 0 {
		return Session{}, ErrNoSession
	}

	s, err := Decode(entry.record)
	if err == nil && s.Token != entry.marker {
		err = ErrCorruptState
	}
	if err != nil {
		m.mu.Lock()
		delete(m.entries, client)
		m.mu.Unlock()
		m.publish(Event{Client: client, Kind: EventCleared})
		return Session{}, err
	}
	return s, nil
}

func (m *MemoryStore) Clear(_ context.Context, client string) error {
	m.mu.Lock()
	delete(m.entries, client)
	m.mu.Unlock()
	m.publish(Event{Client: client, Kind: EventCleared})
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, client string) (*Subscription, error) {
	sub := &memorySubscriber{client: client, ch: make(chan Event, subscriberBuffer)}

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = sub
	m.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	stop := func() error {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			close(sub.ch)
			m.mu.Unlock()
			close(done)
		})
		return nil
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()

	return &Subscription{events: sub.ch, close: stop}, nil
}

// putRaw stores an arbitrary record, bypassing validation.
func (m *MemoryStore) putRaw(client string, raw []byte, marker string) {
	m.mu.Lock()
	m.entries[client] = memoryEntry{record: raw, marker: marker}
	m.mu.Unlock()
}

func (m *MemoryStore) publish(ev Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subs {
		if sub.client != AllClients && sub.client != ev.Client {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
