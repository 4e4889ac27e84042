// Package orders places laundry orders and tracks them through the
// pickup, washing, drying and delivery stages.
package orders

import (
	"errors"
	"time"
)

// Status is the stage an order is in.
type Status string

const (
	StatusPickup    Status = "pickup"
	StatusWashing   Status = "washing"
	StatusDrying    Status = "drying"
	StatusDelivery  Status = "delivery"
	StatusCompleted Status = "completed"
)

var pipeline = []Status{StatusPickup, StatusWashing, StatusDrying, StatusDelivery, StatusCompleted}

// Next returns the stage after s.
func (s Status) Next() (Status, bool) {
	for i, st := range pipeline {
		if st == s && i+1 < len(pipeline) {
			return pipeline[i+1], true
		}
	}
	return s, false
}

// Active reports whether the order is still in progress.
func (s Status) Active() bool {
	return s != StatusCompleted
}

var (
	// ErrNotFound is returned for an unknown order or one owned by someone else.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateID is returned by a repository when the order id is taken.
	ErrDuplicateID = errors.New("order id already exists")
	// ErrCompleted is returned when advancing a finished order.
	ErrCompleted = errors.New("order is already completed")
)

// Line is one catalogue item on an order.
type Line struct {
	ItemID   string `json:"itemId"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
	Total    int64  `json:"total"`
}

// Order is a placed laundry order. Amounts are in rupees.
type Order struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Status      Status    `json:"status"`
	Items       []Line    `json:"items"`
	Subtotal    int64     `json:"subtotal"`
	DeliveryFee int64     `json:"deliveryFee"`
	Total       int64     `json:"totalAmount"`
	PickupTime  time.Time `json:"pickupTime"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// LineInput is one cart entry.
type LineInput struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// PlaceInput is the checkout form.
type PlaceInput struct {
	Items      []LineInput `json:"items"`
	PickupTime time.Time   `json:"pickupTime"`
}

// withAmounts fills Subtotal and DeliveryFee from the lines and Total.
func withAmounts(o Order) Order {
	var sub int64
	for _, l := range o.Items {
		sub += l.Total
	}
	o.Subtotal = sub
	o.DeliveryFee = o.Total - sub
	return o
}
