package domain

import (
	"context"
	"math"

	"github.com/draftea/order-saga/shared/events"
	"github.com/draftea/order-saga/shared/models"
	"github.com/pkg/errors"
)

var (
	ErrChargeNotFound = errors.New("charge not found")
	ErrInvalidPolicy  = errors.New("invalid charge policy")
)

// DefaultInsufficiencyThreshold is the highest price that can be charged unless configured
const DefaultInsufficiencyThreshold = 100.0

// ChargeOutcome is the terminal result of a charge attempt
type ChargeOutcome string

const (
	ChargeOutcomeSucceeded ChargeOutcome = "SUCCEEDED"
	ChargeOutcomeFailed    ChargeOutcome = "FAILED"
)

// ChargePolicy decides a charge from the price alone
type ChargePolicy struct {
	InsufficiencyThreshold float64
}

// NewChargePolicy validates the threshold
func NewChargePolicy(threshold float64) (ChargePolicy, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold < 0 {
		return ChargePolicy{}, errors.Wrapf(ErrInvalidPolicy, "insufficiency threshold must be a non-negative number, got %v", threshold)
	}
	return ChargePolicy{InsufficiencyThreshold: threshold}, nil
}

// Decide fails any price strictly above the threshold
func (p ChargePolicy) Decide(price float64) ChargeOutcome {
	if price > p.InsufficiencyThreshold {
		return ChargeOutcomeFailed
	}
	return ChargeOutcomeSucceeded
}

// Charge is the recorded outcome for one order. The first recorded charge for an order wins.
type Charge struct {
	OrderID    models.ID
	Amount     float64
	Outcome    ChargeOutcome
	Reason     string
	Timestamps models.Timestamps
}

// ChargeRepository stores one charge per order id
type ChargeRepository interface {
	FindByOrderID(ctx context.Context, orderID models.ID) (*Charge, error)
	// Save inserts the charge unless one is already recorded for the order and returns
	// the charge that is stored afterwards
	Save(ctx context.Context, charge *Charge) (*Charge, error)
}

// NewCharge applies the policy to an order
func NewCharge(order models.OrderSnapshot, policy ChargePolicy) *Charge {
	charge := &Charge{
		OrderID:    order.ID,
		Amount:     order.Price,
		Outcome:    policy.Decide(order.Price),
		Timestamps: models.NewTimestamps(),
	}
	if charge.Outcome == ChargeOutcomeFailed {
		charge.Reason = "insufficient funds"
	}
	return charge
}

// Topic is the channel announcing this outcome
func (c *Charge) Topic() events.Topic {
	if c.Outcome == ChargeOutcomeSucceeded {
		return events.PaymentSuccess
	}
	return events.PaymentFailed
}
