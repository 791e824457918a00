package interfaces

import (
	"context"

	"github.com/vuhieu2402/restaurant-payments/internal/models"
)

// Store defines the contract for ledger data access outside a settlement
// transaction. Not-found lookups return the models sentinel errors.
type Store interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentByTxnRef(ctx context.Context, txnRef string) (*models.Payment, error)
	// GetActivePaymentForOwner returns the owner's non-failed payment, or
	// ErrPaymentNotFound when the owner has none.
	GetActivePaymentForOwner(ctx context.Context, owner models.OwnerRef) (*models.Payment, error)
	// MarkProcessing is a compare-and-swap pending -> processing update that
	// also persists the gateway transaction reference. Returns rows affected.
	MarkProcessing(ctx context.Context, id, txnRef string) (int64, error)

	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	GetMethodByCode(ctx context.Context, code string) (*models.PaymentMethod, error)
	GetMethod(ctx context.Context, id string) (*models.PaymentMethod, error)
	// UpdateOrderStatus is a compare-and-swap status update. Returns rows
	// affected; zero means the order was not in the expected status.
	UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (int64, error)

	// WithinTx runs fn inside one database transaction. The transaction
	// rolls back entirely when fn returns an error: a settled payment with
	// an unsettled owner must never be observable.
	WithinTx(ctx context.Context, fn func(tx SettlementTx) error) error
}

// SettlementTx is the slice of the store visible inside a settlement
// transaction. LockPayment must be the first call so the payment row is
// held for the duration of the check-then-act sequence.
type SettlementTx interface {
	// LockPayment loads the payment under a row-level lock.
	LockPayment(ctx context.Context, id string) (*models.Payment, error)
	UpdatePayment(ctx context.Context, p *models.Payment) error

	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (int64, error)
	// UpdateReservation sets deposit_paid and swaps the status in one
	// compare-and-swap update.
	UpdateReservation(ctx context.Context, id string, depositPaid float64, from, to models.ReservationStatus) (int64, error)
	// ReleaseTable moves an occupied table back to available.
	ReleaseTable(ctx context.Context, tableID string) error
	// AppendAudit records a settlement note against a payment.
	AppendAudit(ctx context.Context, paymentID, note string) error
}

// EventPublisher fans a committed settlement out to the rest of the
// platform. Publishing happens after commit, never inside the transaction.
type EventPublisher interface {
	PublishStateChanged(ctx context.Context, p *models.Payment, previous models.PaymentStatus) error
	// NotifySettled triggers the one-shot customer notification for a
	// first-time completed payment.
	NotifySettled(ctx context.Context, p *models.Payment) error
}
