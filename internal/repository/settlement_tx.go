package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vuhieu2402/restaurant-payments/internal/models"
)

// settlementTx is the in-transaction view of the store. The reconciler
// drives it: lock first, then check-then-act, then owner writes.
type settlementTx struct {
	tx *sql.Tx
}

func (t *settlementTx) LockPayment(ctx context.Context, id string) (*models.Payment, error) {
	p, err := scanPayment(t.tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPaymentNotFound
	}
	return p, err
}

func (t *settlementTx) UpdatePayment(ctx context.Context, p *models.Payment) error {
	var txnRef any
	if p.GatewayTxnRef != "" {
		txnRef = p.GatewayTxnRef
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, gateway_txn_ref = $2, gateway_response = $3, paid_at = $4, refunded_at = $5
		WHERE id = $6
	`, p.Status, txnRef, []byte(p.GatewayResponse), p.PaidAt, p.RefundedAt, p.ID)
	return err
}

func (t *settlementTx) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return getOrder(ctx, t.tx, id)
}

func (t *settlementTx) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	return getReservation(ctx, t.tx, id)
}

func (t *settlementTx) UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (int64, error) {
	return updateOrderStatus(ctx, t.tx, id, from, to)
}

func (t *settlementTx) UpdateReservation(ctx context.Context, id string, depositPaid float64, from, to models.ReservationStatus) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE reservations SET deposit_paid = $1, status = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, depositPaid, to, id, from)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (t *settlementTx) ReleaseTable(ctx context.Context, tableID string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE dining_tables SET status = $1 WHERE id = $2 AND status = $3
	`, models.TableAvailable, tableID, models.TableOccupied)
	return err
}

func (t *settlementTx) AppendAudit(ctx context.Context, paymentID, note string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payment_audit (payment_id, note) VALUES ($1, $2)
	`, paymentID, note)
	return err
}
