package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ID represents a unique identifier
type ID string

// GenerateUUID creates a new UUID
func GenerateUUID() ID {
	return ID(uuid.New().String())
}

// NewID creates an ID from string
func NewID(id string) (ID, error) {
	_, err := uuid.Parse(id)
	if err != nil {
		return "", err
	}
	return ID(id), nil
}

// String returns string representation
func (id ID) String() string {
	return string(id)
}

// Timestamps represents creation and update times
type Timestamps struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTimestamps creates new timestamps
func NewTimestamps() Timestamps {
	now := time.Now()
	return Timestamps{
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Update updates the UpdatedAt timestamp
func (t Timestamps) Update() Timestamps {
	t.UpdatedAt = time.Now()
	return t
}

// Version represents entity version for optimistic locking
type Version struct {
	Value int
}

// NewVersion creates new version
func NewVersion() Version {
	return Version{Value: 1}
}

// Update increments version
func (v Version) Update() Version {
	v.Value++
	return v
}

// OrderStatus is the externally visible state of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusCancelled
}

// OrderSnapshot is the full order state carried by every saga message
type OrderSnapshot struct {
	ID     ID          `json:"id"`
	UserID string      `json:"userId"`
	Item   string      `json:"item"`
	Price  float64     `json:"price"`
	Status OrderStatus `json:"status"`
}

// Validate checks the fields every participant relies on
func (s OrderSnapshot) Validate() error {
	if _, err := NewID(s.ID.String()); err != nil {
		return errors.Wrap(err, "invalid order ID")
	}
	if s.Item == "" {
		return errors.New("item is required")
	}
	if math.IsNaN(s.Price) || math.IsInf(s.Price, 0) || s.Price < 0 {
		return errors.New("price must be a non-negative number")
	}
	return nil
}
