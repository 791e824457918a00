package models

import "time"

type OrderStatus string

const (
	OrderPending              OrderStatus = "pending"
	OrderAwaitingConfirmation OrderStatus = "awaiting_confirmation"
	OrderConfirmed            OrderStatus = "confirmed"
	OrderCancelled            OrderStatus = "cancelled"
	OrderRefunded             OrderStatus = "refunded"
)

// IsPayable reports whether a payment may still be created for the order.
func (s OrderStatus) IsPayable() bool {
	return s == OrderPending || s == OrderAwaitingConfirmation
}

type OrderType string

const (
	OrderDineIn   OrderType = "dine_in"
	OrderDelivery OrderType = "delivery"
)

type Order struct {
	ID          string      `json:"id"`
	Type        OrderType   `json:"type"`
	Status      OrderStatus `json:"status"`
	TotalAmount float64     `json:"total_amount"`
	TableID     string      `json:"table_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
)

type Reservation struct {
	ID              string            `json:"id"`
	Status          ReservationStatus `json:"status"`
	TableID         string            `json:"table_id,omitempty"`
	DepositRequired float64           `json:"deposit_required"`
	DepositPaid     float64           `json:"deposit_paid"`
	ReservedFor     time.Time         `json:"reserved_for"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
)

type DiningTable struct {
	ID     string      `json:"id"`
	Number int         `json:"number"`
	Status TableStatus `json:"status"`
}

// PaymentMethod is reference data. RequiresOnline selects the gateway
// redirect flow; offline methods settle through counter confirmation.
type PaymentMethod struct {
	ID             string `json:"id"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	RequiresOnline bool   `json:"requires_online"`
	Active         bool   `json:"active"`
}
