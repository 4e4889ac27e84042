package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreluxe/portal/internal/logging"
)

type storeFactory func(t *testing.T) (Store, func(client string, raw []byte, marker string))

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) (Store, func(string, []byte, string)) {
			m := NewMemoryStore()
			return m, m.putRaw
		},
		"redis": func(t *testing.T) (Store, func(string, []byte, string)) {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { rdb.Close() })
			put := func(client string, raw []byte, marker string) {
				require.NoError(t, mr.Set(recordKey(client), string(raw)))
				require.NoError(t, mr.Set(markerKey(client), marker))
			}
			return NewRedisStore(rdb, time.Hour, logging.Discard()), put
		},
	}
}

func sampleSession() Session {
	return Session{ID: "user123", Email: "user@example.com", Name: "John Doe", IsNewUser: true, Token: NewToken()}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store, _ := factory(t)
			ctx := context.Background()
			want := sampleSession()

			require.NoError(t, store.Save(ctx, "client-a", want))
			got, err := store.Load(ctx, "client-a")
			require.NoError(t, err)
			assert.Equal(t, want, got)

			_, err = store.Load(ctx, "client-b")
			assert.ErrorIs(t, err, ErrNoSession)
		})
	}
}

func TestStoreClearThenLoad(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store, _ := factory(t)
			ctx := context.Background()

			require.NoError(t, store.Clear(ctx, "client-a"))
			_, err := store.Load(ctx, "client-a")
			assert.ErrorIs(t, err, ErrNoSession)

			require.NoError(t, store.Save(ctx, "client-a", sampleSession()))
			require.NoError(t, store.Clear(ctx, "client-a"))
			require.NoError(t, store.Clear(ctx, "client-a"))
			_, err = store.Load(ctx, "client-a")
			assert.ErrorIs(t, err, ErrNoSession)
		})
	}
}

func TestStoreCorruptRecordIsCleared(t *testing.T) {
	cases := map[string]struct {
		raw    []byte
		marker string
	}{
		"not json":        {raw: []byte("{oops"), marker: "tok"},
		"wrong version":   {raw: []byte(`{"v":9,"session":{"id":"u","email":"e","token":"tok"},"savedAt":"2024-01-01T00:00:00Z"}`), marker: "tok"},
		"missing email":   {raw: []byte(`{"v":1,"session":{"id":"u","token":"tok"},"savedAt":"2024-01-01T00:00:00Z"}`), marker: "tok"},
		"marker mismatch": {raw: []byte(`{"v":1,"session":{"id":"u","email":"e","token":"tok"},"savedAt":"2024-01-01T00:00:00Z"}`), marker: "other"},
	}

	for name, factory := range backends() {
		for caseName, tc := range cases {
			t.Run(name+"/"+caseName, func(t *testing.T) {
				store, put := factory(t)
				ctx := context.Background()
				put("client-a", tc.raw, tc.marker)

				_, err := store.Load(ctx, "client-a")
				assert.ErrorIs(t, err, ErrCorruptState)

				_, err = store.Load(ctx, "client-a")
				assert.ErrorIs(t, err, ErrNoSession)
			})
		}
	}
}

func TestStoreRejectsIncompleteSession(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store, _ := factory(t)
			err := store.Save(context.Background(), "client-a", Session{ID: "u"})
			require.Error(t, err)
		})
	}
}

func TestStoreBroadcastsToSubscribers(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store, _ := factory(t)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			mine, err := store.Subscribe(ctx, "client-a")
			require.NoError(t, err)
			defer mine.Close()
			all, err := store.Subscribe(ctx, AllClients)
			require.NoError(t, err)
			defer all.Close()

			s := sampleSession()
			require.NoError(t, store.Save(ctx, "client-a", s))
			require.NoError(t, store.Clear(ctx, "client-b"))
			require.NoError(t, store.Clear(ctx, "client-a"))

			saved := receive(t, mine)
			assert.Equal(t, EventSaved, saved.Kind)
			require.NotNil(t, saved.Session)
			assert.Equal(t, s, *saved.Session)
			assert.Equal(t, EventCleared, receive(t, mine).Kind)

			seen := []string{receive(t, all).Client, receive(t, all).Client, receive(t, all).Client}
			assert.Equal(t, []string{"client-a", "client-b", "client-a"}, seen)
		})
	}
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store, _ := factory(t)
			sub, err := store.Subscribe(context.Background(), "client-a")
			require.NoError(t, err)
			require.NoError(t, sub.Close())
			require.NoError(t, sub.Close())

			select {
			case _, ok := <-sub.Events():
				assert.False(t, ok)
			case <-time.After(time.Second):
				t.Fatal("events channel was not closed")
			}
		})
	}
}

func TestDecodeReportsCorruptState(t *testing.T) {
	_, err := Decode([]byte(`{"v":1}`))
	assert.True(t, errors.Is(err, ErrCorruptState))

	raw, err := Encode(sampleSession(), time.Unix(0, 0))
	require.NoError(t, err)
	_, err = Decode(raw)
	assert.NoError(t, err)
}

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return Event{}
	}
}

// silentEndpoint accepts connections and never answers them.
func silentEndpoint(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return ln.Addr().String()
}

func TestRedisStoreKeepsTimeoutCause(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:                  silentEndpoint(t),
		ContextTimeoutEnabled: true,
		MaxRetries:            -1,
		DialTimeout:           time.Second,
		ReadTimeout:           time.Second,
		WriteTimeout:          time.Second,
	})
	t.Cleanup(func() { rdb.Close() })
	store := NewRedisStore(rdb, time.Hour, logging.Discard())

	assertTimeout := func(t *testing.T, err error) {
		t.Helper()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStorageUnavailable)
		var netErr net.Error
		require.ErrorAs(t, err, &netErr)
		assert.True(t, netErr.Timeout())
	}

	t.Run("load", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err := store.Load(ctx, "client-a")
		assertTimeout(t, err)
	})
	t.Run("save", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		assertTimeout(t, store.Save(ctx, "client-a", sampleSession()))
	})
	t.Run("clear", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		assertTimeout(t, store.Clear(ctx, "client-a"))
	})
}

func TestRedisStoreExpiredContext(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := NewRedisStore(rdb, time.Hour, logging.Discard())

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := store.Load(ctx, "client-a")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = store.Clear(ctx, "client-a")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
