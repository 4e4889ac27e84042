package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreluxe/portal/internal/credential"
	"github.com/dreluxe/portal/internal/logging"
	"github.com/dreluxe/portal/internal/middleware"
	"github.com/dreluxe/portal/internal/session"
)

func caches(t *testing.T) map[string]Cache {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return map[string]Cache{
		"memory": NewMemoryCache(),
		"redis":  NewRedisCache(rdb, time.Hour),
	}
}

func sampleAddress() AddressInput {
	return AddressInput{Street: "12 MG Road", City: "Pune", State: "MH", ZipCode: "411001"}
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var verr *credential.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	return verr.Field
}

func TestAddressUpsertsDefault(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			svc := NewService(NewMemoryRepository(), cache, logging.Discard())
			ctx := context.Background()

			first, err := svc.SaveAddress(ctx, "c1", "u1", sampleAddress())
			require.NoError(t, err)
			assert.True(t, first.IsDefault)

			list, err := svc.Addresses(ctx, "c1", "u1")
			require.NoError(t, err)
			require.Len(t, list, 1)

			in := sampleAddress()
			in.City = "Mumbai"
			second, err := svc.SaveAddress(ctx, "c1", "u1", in)
			require.NoError(t, err)
			assert.Equal(t, first.ID, second.ID)

			list, err = svc.Addresses(ctx, "c1", "u1")
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "Mumbai", list[0].City)
		})
	}
}

func TestAddressValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository(), NewMemoryCache(), logging.Discard())
	ctx := context.Background()

	in := sampleAddress()
	in.ZipCode = " "
	_, err := svc.SaveAddress(ctx, "c1", "u1", in)
	assert.Equal(t, "zipCode", fieldOf(t, err))

	lat := 18.5
	in = sampleAddress()
	in.Lat = &lat
	_, err = svc.SaveAddress(ctx, "c1", "u1", in)
	assert.Equal(t, "lat", fieldOf(t, err))
}

func TestPreferencesValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository(), NewMemoryCache(), logging.Discard())
	ctx := context.Background()

	_, err := svc.Preferences(ctx, "c1", "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.SavePreferences(ctx, "c1", "u1", Preferences{FabricCare: "linen", FoldStyle: "standard", HangerType: "plastic"})
	assert.Equal(t, "fabricCare", fieldOf(t, err))

	_, err = svc.SavePreferences(ctx, "c1", "u1", Preferences{FabricCare: "silk", FoldStyle: "standard", HangerType: "plastic", AvoidMixing: []string{"oil"}})
	assert.Equal(t, "avoidMixing", fieldOf(t, err))

	saved, err := svc.SavePreferences(ctx, "c1", "u1", Preferences{FabricCare: "silk", FoldStyle: "military", HangerType: "wooden", AvoidMixing: []string{"pet", "dye", "pet"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"pet", "dye"}, saved.AvoidMixing)

	got, err := svc.Preferences(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "silk", got.FabricCare)
}

func TestPaymentValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository(), NewMemoryCache(), logging.Discard())
	ctx := context.Background()

	cases := []struct {
		in    PaymentInput
		field string
	}{
		{PaymentInput{Method: "cash"}, "method"},
		{PaymentInput{Method: MethodUPI, UPIID: "john@ok axis"}, "upiId"},
		{PaymentInput{Method: MethodCard}, "card"},
		{PaymentInput{Method: MethodCard, Card: &CardInput{Number: "4242 4242 4242 4241", Name: "J", Expiry: "12/30", CVV: "123"}}, "cardNumber"},
		{PaymentInput{Method: MethodCard, Card: &CardInput{Number: "4242 4242 4242 4242", Name: " ", Expiry: "12/30", CVV: "123"}}, "cardName"},
		{PaymentInput{Method: MethodCard, Card: &CardInput{Number: "4242 4242 4242 4242", Name: "J", Expiry: "13/30", CVV: "123"}}, "expiry"},
		{PaymentInput{Method: MethodCard, Card: &CardInput{Number: "4242 4242 4242 4242", Name: "J", Expiry: "12/30", CVV: "12"}}, "cvv"},
	}
	for _, tc := range cases {
		_, err := svc.AddPaymentMethod(ctx, "c1", "u1", tc.in)
		assert.Equal(t, tc.field, fieldOf(t, err))
	}

	card, err := svc.AddPaymentMethod(ctx, "c1", "u1", PaymentInput{Method: MethodCard, Card: &CardInput{Number: "4242 4242 4242 4242", Name: "John Doe", Expiry: "12/30", CVV: "123"}})
	require.NoError(t, err)
	assert.Equal(t, "4242", card.CardLast4)

	upi, err := svc.AddPaymentMethod(ctx, "c1", "u1", PaymentInput{Method: MethodUPI, UPIID: "john.doe@okaxis"})
	require.NoError(t, err)

	methods, err := svc.PaymentMethods(ctx, "c1", "u1")
	require.NoError(t, err)
	require.Len(t, methods, 2)
	for _, m := range methods {
		assert.Equal(t, m.ID == upi.ID, m.IsDefault, m.Method)
	}
}

func TestCompletionAndEvict(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			svc := NewService(NewMemoryRepository(), cache, logging.Discard())
			ctx := context.Background()

			done, err := svc.Completion(ctx, "c1", "u1")
			require.NoError(t, err)
			assert.Equal(t, Completion{}, done)

			_, err = svc.SaveAddress(ctx, "c1", "u1", sampleAddress())
			require.NoError(t, err)
			_, err = svc.AddPaymentMethod(ctx, "c1", "u1", PaymentInput{Method: MethodUPI, UPIID: "a@upi"})
			require.NoError(t, err)

			done, err = svc.Completion(ctx, "c1", "u1")
			require.NoError(t, err)
			assert.Equal(t, Completion{Address: true, Payment: true}, done)

			var cached []Address
			ok, err := cache.Get(ctx, "c1", "u1:"+fieldAddresses, &cached)
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, svc.Evict(ctx, "c1"))
			ok, err = cache.Get(ctx, "c1", "u1:"+fieldAddresses, &cached)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

// stallingRepository pauses the first address listing after it has read
// the repository, until release is closed.
type stallingRepository struct {
	Repository
	stalled atomic.Bool
	started chan struct{}
	release chan struct{}
}

func (r *stallingRepository) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	out, err := r.Repository.ListAddresses(ctx, userID)
	if r.stalled.CompareAndSwap(false, true) {
		close(r.started)
		<-r.release
	}
	return out, err
}

func TestSlowReadDoesNotCacheOverWrite(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			repo := &stallingRepository{Repository: NewMemoryRepository(), started: make(chan struct{}), release: make(chan struct{})}
			svc := NewService(repo, cache, logging.Discard())
			ctx := context.Background()

			type result struct {
				addrs []Address
				err   error
			}
			done := make(chan result, 1)
			go func() {
				addrs, err := svc.Addresses(ctx, "c1", "u1")
				done <- result{addrs, err}
			}()
			<-repo.started

			_, err := svc.SaveAddress(ctx, "c1", "u1", sampleAddress())
			require.NoError(t, err)
			close(repo.release)

			stale := <-done
			require.NoError(t, stale.err)
			assert.Empty(t, stale.addrs)

			addrs, err := svc.Addresses(ctx, "c1", "u1")
			require.NoError(t, err)
			assert.Len(t, addrs, 1)
		})
	}
}

func TestCacheIgnoresSetFromOlderVersion(t *testing.T) {
	for name, cache := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			before, err := cache.Version(ctx, "c1")
			require.NoError(t, err)
			require.NoError(t, cache.Evict(ctx, "c1"))

			require.NoError(t, cache.Set(ctx, "c1", "u1:"+fieldAddresses, before, []Address{}))
			var got []Address
			ok, err := cache.Get(ctx, "c1", "u1:"+fieldAddresses, &got)
			require.NoError(t, err)
			assert.False(t, ok)

			now, err := cache.Version(ctx, "c1")
			require.NoError(t, err)
			assert.Greater(t, now, before)
			require.NoError(t, cache.Set(ctx, "c1", "u1:"+fieldAddresses, now, []Address{}))
			ok, err = cache.Get(ctx, "c1", "u1:"+fieldAddresses, &got)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestHandlerAddressContract(t *testing.T) {
	svc := NewService(NewMemoryRepository(), NewMemoryCache(), logging.Discard())
	h := NewHandler(svc)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logging.Discard())})
	app.Use(middleware.ClientContext(false))
	signedIn := func(c *fiber.Ctx) error {
		middleware.SetSession(c, session.Session{ID: "u1", Email: "u1@example.com", Token: "t"})
		return c.Next()
	}
	app.Get("/api/user/address", signedIn, h.GetAddresses)
	app.Put("/api/user/address", signedIn, h.PutAddress)
	app.Get("/api/user/preferences", signedIn, h.GetPreferences)
	app.Get("/anonymous/address", h.GetAddresses)

	do := func(method, path, body string) (int, map[string]any) {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var decoded map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
		return resp.StatusCode, decoded
	}

	status, _ := do(fiber.MethodGet, "/anonymous/address", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := do(fiber.MethodPut, "/api/user/address", `{"street":"12 MG Road","city":"Pune","state":"MH"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "zipCode", body["field"])

	status, body = do(fiber.MethodPut, "/api/user/address", `{"street":"12 MG Road","city":"Pune","state":"MH","zipCode":"411001"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["address"].(map[string]any)["isDefault"])

	status, body = do(fiber.MethodGet, "/api/user/address", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["addresses"], 1)

	status, _ = do(fiber.MethodGet, "/api/user/preferences", "")
	assert.Equal(t, http.StatusNotFound, status)
}
