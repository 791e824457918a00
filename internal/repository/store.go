package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/vuhieu2402/restaurant-payments/internal/interfaces"
	"github.com/vuhieu2402/restaurant-payments/internal/models"
)

const uniqueViolation = "23505"

// Store is the Postgres ledger. All money-relevant writes go through
// WithinTx; the plain methods exist for creation and side-effect-free reads.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			id VARCHAR(64) PRIMARY KEY,
			amount DECIMAL(15,2) NOT NULL,
			currency VARCHAR(3) NOT NULL,
			status VARCHAR(20) NOT NULL,
			owner_kind VARCHAR(20) NOT NULL,
			owner_id VARCHAR(64) NOT NULL,
			method_id VARCHAR(64) NOT NULL,
			gateway VARCHAR(32) NOT NULL,
			gateway_txn_ref VARCHAR(128),
			gateway_response JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			paid_at TIMESTAMP,
			refunded_at TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_txn_ref ON payments(gateway_txn_ref) WHERE gateway_txn_ref IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_payments_owner ON payments(owner_kind, owner_id)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(64) PRIMARY KEY,
			type VARCHAR(20) NOT NULL,
			status VARCHAR(30) NOT NULL,
			total_amount DECIMAL(15,2) NOT NULL,
			table_id VARCHAR(64),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS reservations (
			id VARCHAR(64) PRIMARY KEY,
			status VARCHAR(20) NOT NULL,
			table_id VARCHAR(64),
			deposit_required DECIMAL(15,2) NOT NULL,
			deposit_paid DECIMAL(15,2) NOT NULL DEFAULT 0,
			reserved_for TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS payment_methods (
			id VARCHAR(64) PRIMARY KEY,
			code VARCHAR(32) UNIQUE NOT NULL,
			name VARCHAR(100) NOT NULL,
			requires_online BOOLEAN NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS dining_tables (
			id VARCHAR(64) PRIMARY KEY,
			number INT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'available'
		)`,
		`CREATE TABLE IF NOT EXISTS payment_audit (
			id SERIAL PRIMARY KEY,
			payment_id VARCHAR(64) NOT NULL,
			note TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`INSERT INTO payment_methods (id, code, name, requires_online, active) VALUES
			('pm-cash', 'cash', 'Cash at counter', FALSE, TRUE),
			('pm-gateway-card', 'gateway_card', 'Card via payment gateway', TRUE, TRUE)
			ON CONFLICT (code) DO NOTHING`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, amount, currency, status, owner_kind, owner_id, method_id, gateway, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.Amount, p.Currency, p.Status, p.Owner.Kind, p.Owner.ID, p.MethodID, p.Gateway, p.CreatedAt)
	return err
}

const paymentColumns = `
	id, amount, currency, status, owner_kind, owner_id, method_id, gateway,
	gateway_txn_ref, gateway_response, created_at, paid_at, refunded_at`

func scanPayment(row *sql.Row) (*models.Payment, error) {
	var (
		p        models.Payment
		txnRef   sql.NullString
		response []byte
		paidAt   sql.NullTime
		refunded sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Amount, &p.Currency, &p.Status, &p.Owner.Kind, &p.Owner.ID,
		&p.MethodID, &p.Gateway, &txnRef, &response, &p.CreatedAt, &paidAt, &refunded)
	if err != nil {
		return nil, err
	}
	p.GatewayTxnRef = txnRef.String
	p.GatewayResponse = response
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	if refunded.Valid {
		t := refunded.Time
		p.RefundedAt = &t
	}
	return &p, nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	p, err := scanPayment(s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPaymentNotFound
	}
	return p, err
}

func (s *Store) GetPaymentByTxnRef(ctx context.Context, txnRef string) (*models.Payment, error) {
	p, err := scanPayment(s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway_txn_ref = $1`, txnRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUnknownTxnRef
	}
	return p, err
}

func (s *Store) GetActivePaymentForOwner(ctx context.Context, owner models.OwnerRef) (*models.Payment, error) {
	p, err := scanPayment(s.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE owner_kind = $1 AND owner_id = $2 AND status <> $3
		ORDER BY created_at DESC LIMIT 1
	`, owner.Kind, owner.ID, models.StatusFailed))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPaymentNotFound
	}
	return p, err
}

// MarkProcessing persists the gateway transaction reference while swapping
// pending -> processing. The partial unique index on gateway_txn_ref turns a
// reference collision into ErrTxnRefCollision instead of a silent overwrite.
func (s *Store) MarkProcessing(ctx context.Context, id, txnRef string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, gateway_txn_ref = $2
		WHERE id = $3 AND status = $4
	`, models.StatusProcessing, txnRef, id, models.StatusPending)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, models.ErrTxnRefCollision
		}
		return 0, err
	}
	return result.RowsAffected()
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return getOrder(ctx, s.db, id)
}

func (s *Store) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	return getReservation(ctx, s.db, id)
}

func (s *Store) GetMethodByCode(ctx context.Context, code string) (*models.PaymentMethod, error) {
	var m models.PaymentMethod
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, requires_online, active FROM payment_methods WHERE code = $1
	`, code).Scan(&m.ID, &m.Code, &m.Name, &m.RequiresOnline, &m.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment method %q: %w", code, models.ErrMethodInactive)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) GetMethod(ctx context.Context, id string) (*models.PaymentMethod, error) {
	var m models.PaymentMethod
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, requires_online, active FROM payment_methods WHERE id = $1
	`, id).Scan(&m.ID, &m.Code, &m.Name, &m.RequiresOnline, &m.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment method %q: %w", id, models.ErrMethodInactive)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (int64, error) {
	return updateOrderStatus(ctx, s.db, id, from, to)
}

// WithinTx runs fn in one transaction; any error rolls the whole unit back.
func (s *Store) WithinTx(ctx context.Context, fn func(tx interfaces.SettlementTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(&settlementTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// querier is satisfied by both *sql.DB and *sql.Tx so the order and
// reservation reads share one implementation inside and outside a
// transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getOrder(ctx context.Context, q querier, id string) (*models.Order, error) {
	var (
		o       models.Order
		tableID sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, type, status, total_amount, table_id, created_at, updated_at
		FROM orders WHERE id = $1
	`, id).Scan(&o.ID, &o.Type, &o.Status, &o.TotalAmount, &tableID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrOwnerNotFound
	}
	if err != nil {
		return nil, err
	}
	o.TableID = tableID.String
	return &o, nil
}

func getReservation(ctx context.Context, q querier, id string) (*models.Reservation, error) {
	var (
		r       models.Reservation
		tableID sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, status, table_id, deposit_required, deposit_paid, reserved_for, created_at, updated_at
		FROM reservations WHERE id = $1
	`, id).Scan(&r.ID, &r.Status, &tableID, &r.DepositRequired, &r.DepositPaid,
		&r.ReservedFor, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrOwnerNotFound
	}
	if err != nil {
		return nil, err
	}
	r.TableID = tableID.String
	return &r, nil
}

func updateOrderStatus(ctx context.Context, q querier, id string, from, to models.OrderStatus) (int64, error) {
	result, err := q.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
