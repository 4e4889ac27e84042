package profile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	fieldAddresses   = "addresses"
	fieldPreferences = "preferences"
	fieldPayments    = "payments"
)

// Service manages a customer's address book, laundry preferences and
// payment methods. Reads go through a per-client cache that every write
// evicts.
type Service struct {
	repo   Repository
	cache  Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a profile service.
func NewService(repo Repository, cache Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// SaveAddress upserts the default address. The first address becomes the default.
func (s *Service) SaveAddress(ctx context.Context, client, userID string, in AddressInput) (Address, error) {
	in, err := validateAddress(in)
	if err != nil {
		return Address{}, err
	}
	existing, err := s.repo.ListAddresses(ctx, userID)
	if err != nil {
		return Address{}, err
	}

	addr := Address{
		ID:        uuid.NewString(),
		UserID:    userID,
		IsDefault: true,
		CreatedAt: s.now().UTC(),
	}
	for _, a := range existing {
		if a.IsDefault {
			addr.ID = a.ID
			addr.CreatedAt = a.CreatedAt
			break
		}
	}
	addr.Street, addr.City, addr.State, addr.ZipCode = in.Street, in.City, in.State, in.ZipCode
	addr.Landmark, addr.Lat, addr.Lng = in.Landmark, in.Lat, in.Lng

	if err := s.repo.SaveAddress(ctx, addr); err != nil {
		return Address{}, err
	}
	s.invalidate(ctx, client)
	return addr, nil
}

// Addresses lists the user's addresses, default first.
func (s *Service) Addresses(ctx context.Context, client, userID string) ([]Address, error) {
	var out []Address
	if s.cached(ctx, client, userID, fieldAddresses, &out) {
		return out, nil
	}
	version, cacheable := s.version(ctx, client)
	out, err := s.repo.ListAddresses(ctx, userID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Address{}
	}
	if cacheable {
		s.store(ctx, client, userID, fieldAddresses, version, out)
	}
	return out, nil
}

// SavePreferences replaces the user's preferences.
func (s *Service) SavePreferences(ctx context.Context, client, userID string, p Preferences) (Preferences, error) {
	p, err := validatePreferences(p)
	if err != nil {
		return Preferences{}, err
	}
	p.UserID = userID
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.SavePreferences(ctx, p); err != nil {
		return Preferences{}, err
	}
	s.invalidate(ctx, client)
	return p, nil
}

// Preferences returns the user's preferences or ErrNotFound.
func (s *Service) Preferences(ctx context.Context, client, userID string) (Preferences, error) {
	var p Preferences
	if s.cached(ctx, client, userID, fieldPreferences, &p) {
		return p, nil
	}
	version, cacheable := s.version(ctx, client)
	p, err := s.repo.GetPreferences(ctx, userID)
	if err != nil {
		return Preferences{}, err
	}
	if cacheable {
		s.store(ctx, client, userID, fieldPreferences, version, p)
	}
	return p, nil
}

// AddPaymentMethod validates and saves a payment method as the new default.
func (s *Service) AddPaymentMethod(ctx context.Context, client, userID string, in PaymentInput) (PaymentMethod, error) {
	m, err := validatePayment(in)
	if err != nil {
		return PaymentMethod{}, err
	}
	m.ID = uuid.NewString()
	m.UserID = userID
	m.IsDefault = true
	m.CreatedAt = s.now().UTC()
	if err := s.repo.SavePaymentMethod(ctx, m); err != nil {
		return PaymentMethod{}, err
	}
	s.invalidate(ctx, client)
	return m, nil
}

// PaymentMethods lists the user's payment methods, default first.
func (s *Service) PaymentMethods(ctx context.Context, client, userID string) ([]PaymentMethod, error) {
	var out []PaymentMethod
	if s.cached(ctx, client, userID, fieldPayments, &out) {
		return out, nil
	}
	version, cacheable := s.version(ctx, client)
	out, err := s.repo.ListPaymentMethods(ctx, userID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []PaymentMethod{}
	}
	if cacheable {
		s.store(ctx, client, userID, fieldPayments, version, out)
	}
	return out, nil
}

// Completion reports which profile sections hold data.
type Completion struct {
	Address     bool
	Preferences bool
	Payment     bool
}

// Completion inspects the user's saved data.
func (s *Service) Completion(ctx context.Context, client, userID string) (Completion, error) {
	var c Completion
	addrs, err := s.Addresses(ctx, client, userID)
	if err != nil {
		return c, err
	}
	c.Address = len(addrs) > 0

	if _, err := s.Preferences(ctx, client, userID); err == nil {
		c.Preferences = true
	} else if !errors.Is(err, ErrNotFound) {
		return c, err
	}

	methods, err := s.PaymentMethods(ctx, client, userID)
	if err != nil {
		return c, err
	}
	c.Payment = len(methods) > 0
	return c, nil
}

// Evict drops every cached copy held for client.
func (s *Service) Evict(ctx context.Context, client string) error {
	return s.cache.Evict(ctx, client)
}

func (s *Service) cached(ctx context.Context, client, userID, kind string, dst any) bool {
	ok, err := s.cache.Get(ctx, client, userID+":"+kind, dst)
	if err != nil {
		s.warn("read profile cache", err)
		return false
	}
	return ok
}

// version is read before a repository load. ok is false when the cache
// cannot tell, in which case the loaded value is not cached.
func (s *Service) version(ctx context.Context, client string) (uint64, bool) {
	v, err := s.cache.Version(ctx, client)
	if err != nil {
		s.warn("read profile cache version", err)
		return 0, false
	}
	return v, true
}

func (s *Service) store(ctx context.Context, client, userID, kind string, version uint64, v any) {
	if err := s.cache.Set(ctx, client, userID+":"+kind, version, v); err != nil {
		s.warn("write profile cache", err)
	}
}

func (s *Service) invalidate(ctx context.Context, client string) {
	if err := s.cache.Evict(ctx, client); err != nil {
		s.warn("evict profile cache", err)
	}
}

func (s *Service) warn(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, slog.Any("error", err))
	}
}
