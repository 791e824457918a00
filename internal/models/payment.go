package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusProcessing PaymentStatus = "processing"
	StatusCompleted  PaymentStatus = "completed"
	StatusFailed     PaymentStatus = "failed"
	StatusRefunded   PaymentStatus = "refunded"
)

// IsSettled reports whether a gateway outcome has already been applied to a
// payment in this status. Settled payments are never re-applied.
func (s PaymentStatus) IsSettled() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRefunded
}

// CanTransitionTo returns true if the status can move to the target status.
// pending -> processing happens when an online redirect URL is issued;
// pending -> completed is the offline counter-confirmation path.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	switch s {
	case StatusPending:
		return target == StatusProcessing || target == StatusCompleted
	case StatusProcessing:
		return target == StatusCompleted || target == StatusFailed
	case StatusCompleted:
		return target == StatusRefunded
	default:
		return false
	}
}

type OwnerKind string

const (
	OwnerOrder       OwnerKind = "order"
	OwnerReservation OwnerKind = "reservation"
)

// OwnerRef is the discriminated reference to the aggregate that owns a
// payment: exactly one of Order or Reservation.
type OwnerRef struct {
	Kind OwnerKind `json:"kind"`
	ID   string    `json:"id"`
}

// NewOwnerRef validates the order-XOR-reservation ownership rule at
// construction time. Exactly one of the two ids must be set.
func NewOwnerRef(orderID, reservationID string) (OwnerRef, error) {
	switch {
	case orderID != "" && reservationID != "":
		return OwnerRef{}, fmt.Errorf("%w: both order %s and reservation %s given", ErrAmbiguousOwner, orderID, reservationID)
	case orderID != "":
		return OwnerRef{Kind: OwnerOrder, ID: orderID}, nil
	case reservationID != "":
		return OwnerRef{Kind: OwnerReservation, ID: reservationID}, nil
	default:
		return OwnerRef{}, ErrMissingOwner
	}
}

type Payment struct {
	ID              string          `json:"id"`
	Amount          float64         `json:"amount"`
	Currency        string          `json:"currency"`
	Status          PaymentStatus   `json:"status"`
	Owner           OwnerRef        `json:"owner"`
	MethodID        string          `json:"method_id"`
	Gateway         string          `json:"gateway"`
	GatewayTxnRef   string          `json:"gateway_txn_ref,omitempty"`
	GatewayResponse json.RawMessage `json:"gateway_response,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	RefundedAt      *time.Time      `json:"refunded_at,omitempty"`
}

// NewPayment builds a pending payment for an owner. The owner reference is
// immutable after construction.
func NewPayment(id string, amount float64, currency string, owner OwnerRef, methodID, gatewayName string) (*Payment, error) {
	if owner.Kind != OwnerOrder && owner.Kind != OwnerReservation {
		return nil, ErrMissingOwner
	}
	if owner.ID == "" {
		return nil, ErrMissingOwner
	}
	if amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive, got %.2f", amount)
	}
	return &Payment{
		ID:        id,
		Amount:    amount,
		Currency:  currency,
		Status:    StatusPending,
		Owner:     owner,
		MethodID:  methodID,
		Gateway:   gatewayName,
		CreatedAt: time.Now().UTC(),
	}, nil
}
