package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/dreluxe/portal/internal/credential"
	"github.com/dreluxe/portal/internal/notification"
)

const (
	maxQuantity   = 100
	idAttempts    = 5
	idPrefix      = "ORD-"
	idDigitsRange = 100000
)

// Service places and tracks orders.
type Service struct {
	repo     Repository
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewService builds an order service. notifier may be nil.
func NewService(repo Repository, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newID: func() string {
			return fmt.Sprintf("%s%05d", idPrefix, rand.IntN(idDigitsRange))
		},
	}
}

// Place prices the cart from the catalogue and creates an order in the
// pickup stage.
func (s *Service) Place(ctx context.Context, userID string, in PlaceInput) (Order, error) {
	if len(in.Items) == 0 {
		return Order{}, &credential.ValidationError{Field: "items", Message: "Please add at least one item"}
	}
	now := s.now().UTC()
	if in.PickupTime.IsZero() {
		return Order{}, &credential.ValidationError{Field: "pickupTime", Message: "Please choose a pickup time"}
	}
	if !in.PickupTime.After(now) {
		return Order{}, &credential.ValidationError{Field: "pickupTime", Message: "Pickup time must be in the future"}
	}

	merged := make(map[string]int, len(in.Items))
	var order []string
	for _, li := range in.Items {
		id := strings.TrimSpace(li.ItemID)
		if _, ok := lookup(id); !ok {
			return Order{}, &credential.ValidationError{Field: "items", Message: fmt.Sprintf("Unknown item %q", li.ItemID)}
		}
		if li.Quantity <= 0 {
			return Order{}, &credential.ValidationError{Field: "items", Message: "Quantities must be positive"}
		}
		if _, seen := merged[id]; !seen {
			order = append(order, id)
		}
		merged[id] += li.Quantity
		if merged[id] > maxQuantity {
			return Order{}, &credential.ValidationError{Field: "items", Message: fmt.Sprintf("At most %d of each item per order", maxQuantity)}
		}
	}

	o := Order{
		UserID:     userID,
		Status:     StatusPickup,
		PickupTime: in.PickupTime.UTC(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, id := range order {
		it, _ := lookup(id)
		qty := merged[id]
		line := Line{ItemID: it.ID, Name: it.Name, Quantity: qty, Price: it.UnitPrice()}
		line.Total = line.Price * int64(qty)
		o.Items = append(o.Items, line)
		o.Total += line.Total
	}
	o.Total += DeliveryFee

	var err error
	for i := 0; i < idAttempts; i++ {
		o.ID = s.newID()
		if err = s.repo.Create(ctx, o); !errors.Is(err, ErrDuplicateID) {
			break
		}
	}
	if err != nil {
		return Order{}, err
	}

	s.logger.Info("order placed", slog.String("order_id", o.ID), slog.String("user_id", userID), slog.Int64("total", o.Total))
	return withAmounts(o), nil
}

// List returns the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Order, error) {
	out, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Order{}
	}
	return out, nil
}

// Get returns an order owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != userID {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// Advance moves an order one stage along and notifies its owner.
func (s *Service) Advance(ctx context.Context, userID, id string) (Order, error) {
	o, err := s.Get(ctx, userID, id)
	if err != nil {
		return Order{}, err
	}
	next, ok := o.Status.Next()
	if !ok {
		return Order{}, ErrCompleted
	}
	now := s.now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, next, now); err != nil {
		return Order{}, err
	}
	o.Status = next
	o.UpdatedAt = now

	if s.notifier != nil {
		msg := notification.Message{
			Kind:        notification.KindOrderStatus,
			Destination: userID,
			Body:        fmt.Sprintf("Order %s is now %s", o.ID, next),
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.Warn("order notification failed", slog.String("order_id", o.ID), slog.Any("error", err))
		}
	}
	return o, nil
}
