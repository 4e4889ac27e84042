package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dreluxe/portal/internal/infra"
)

const keyPrefix = "session"

// RedisStore keeps sessions in Redis so that every portal instance observes
// the same state. Changes are fanned out over Redis pub/sub.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisStore builds a store whose keys expire after ttl.
func NewRedisStore(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, logger: logger, now: time.Now}
}

func recordKey(client string) string { return infra.Key(keyPrefix, client, "record") }
func markerKey(client string) string { return infra.Key(keyPrefix, client, "marker") }
func eventsChannel(client string) string {
	return infra.Key(keyPrefix, "events", client)
}

func (r *RedisStore) Save(ctx context.Context, client string, s Session) error {
	if err := validate(s); err != nil {
		return err
	}
	raw, err := Encode(s, r.now())
	if err != nil {
		return err
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recordKey(client), raw, r.ttl)
		pipe.Set(ctx, markerKey(client), s.Token, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	saved := s
	r.publish(ctx, Event{Client: client, Kind: EventSaved, Session: &saved})
	return nil
}

func (r *RedisStore) Load(ctx context.Context, client string) (Session, error) {
	vals, err := r.rdb.MGet(ctx, recordKey(client), markerKey(client)).Result()
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	raw, hasRecord := vals[0].(string)
	marker, hasMarker := vals[1].(string)
	if !hasRecord || !hasMarker || marker == "" {
		return Session{}, ErrNoSession
	}

	s, err := Decode([]byte(raw))
	if err == nil && s.Token != marker {
		err = fmt.Errorf("%w: marker mismatch", ErrCorruptState)
	}
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("discarding corrupt session", slog.String("client", client), slog.Any("error", err))
		}
		if clearErr := r.Clear(ctx, client); clearErr != nil {
			return Session{}, clearErr
		}
		return Session{}, err
	}
	return s, nil
}

func (r *RedisStore) Clear(ctx context.Context, client string) error {
	if err := r.rdb.Del(ctx, recordKey(client), markerKey(client)).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	r.publish(ctx, Event{Client: client, Kind: EventCleared})
	return nil
}

func (r *RedisStore) Subscribe(ctx context.Context, client string) (*Subscription, error) {
	var ps *redis.PubSub
	if client == AllClients {
		ps = r.rdb.PSubscribe(ctx, eventsChannel(AllClients))
	} else {
		ps = r.rdb.Subscribe(ctx, eventsChannel(client))
	}
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	out := make(chan Event, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	stop := func() error {
		var err error
		once.Do(func() {
			close(done)
			err = ps.Close()
		})
		return err
	}

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					if r.logger != nil {
						r.logger.Warn("dropping malformed session event", slog.Any("error", err))
					}
					continue
				}
				select {
				case out <- ev:
				case <-done:
					return
				}
			}
		}
	}()

	return &Subscription{events: out, close: stop}, nil
}

func (r *RedisStore) publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := r.rdb.Publish(ctx, eventsChannel(ev.Client), payload).Err(); err != nil && !errors.Is(err, context.Canceled) {
		if r.logger != nil {
			r.logger.Warn("publish session event", slog.String("client", ev.Client), slog.Any("error", err))
		}
	}
}
