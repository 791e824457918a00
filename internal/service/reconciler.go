package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/vuhieu2402/restaurant-payments/internal/gateway"
	"github.com/vuhieu2402/restaurant-payments/internal/interfaces"
	"github.com/vuhieu2402/restaurant-payments/internal/metrics"
	"github.com/vuhieu2402/restaurant-payments/internal/models"
	"github.com/vuhieu2402/restaurant-payments/internal/telemetry"
)

// Reconciler is the single place where a verified gateway outcome, an
// offline counter confirmation or a refund becomes durable side effects. It
// never inspects raw gateway payloads; callers hand it a NormalizedOutcome
// already verified by the gateway client.
type Reconciler struct {
	store     interfaces.Store
	publisher interfaces.EventPublisher
}

func NewReconciler(store interfaces.Store, publisher interfaces.EventPublisher) *Reconciler {
	return &Reconciler{store: store, publisher: publisher}
}

// Apply settles a payment from a verified gateway outcome. Duplicate
// deliveries (the gateway sends both a server callback and a browser
// redirect) are idempotent no-ops: the already-applied payment comes back
// unchanged and no side effect runs twice.
func (r *Reconciler) Apply(ctx context.Context, paymentID string, outcome *gateway.NormalizedOutcome) (*models.Payment, error) {
	var (
		result    *models.Payment
		previous  models.PaymentStatus
		applied   bool
		completed bool
	)

	err := r.store.WithinTx(ctx, func(tx interfaces.SettlementTx) error {
		p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		result = p

		if p.Status.IsSettled() {
			metrics.DuplicateDeliveriesTotal.Inc()
			telemetry.Logger.Info("Duplicate outcome delivery skipped",
				zap.String("payment_id", p.ID),
				zap.String("status", string(p.Status)),
				zap.String("txn_ref", outcome.TxnRef),
			)
			return nil
		}
		previous = p.Status

		if outcome.Amount > 0 && math.Abs(outcome.Amount-p.Amount) >= 0.01 {
			telemetry.Logger.Warn("Gateway amount differs from payment amount",
				zap.String("payment_id", p.ID),
				zap.Float64("payment_amount", p.Amount),
				zap.Float64("gateway_amount", outcome.Amount),
			)
		}

		if !outcome.Success {
			if !p.Status.CanTransitionTo(models.StatusFailed) {
				return nil
			}
			p.Status = models.StatusFailed
			p.GatewayResponse = outcome.Raw
			if err := tx.UpdatePayment(ctx, p); err != nil {
				return err
			}
			// The customer may retry with a fresh payment; the owner is
			// left untouched.
			note := fmt.Sprintf("gateway declined: code=%s reason=%s", outcome.ResponseCode, outcome.Reason)
			if err := tx.AppendAudit(ctx, p.ID, note); err != nil {
				return err
			}
			applied = true
			return nil
		}

		if !p.Status.CanTransitionTo(models.StatusCompleted) {
			return nil
		}
		now := time.Now().UTC()
		p.Status = models.StatusCompleted
		p.PaidAt = &now
		p.GatewayResponse = outcome.Raw
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		if err := r.settleOwner(ctx, tx, p); err != nil {
			return err
		}
		applied = true
		completed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied {
		r.publishApplied(ctx, result, previous, completed)
		metrics.IncSettlement(string(result.Owner.Kind), string(result.Status))
	}
	return result, nil
}

// ConfirmOffline settles an offline payment confirmed at the counter. It is
// the only settlement path that never touched the gateway.
func (r *Reconciler) ConfirmOffline(ctx context.Context, paymentID, actor string) (*models.Payment, error) {
	var (
		result   *models.Payment
		previous models.PaymentStatus
		applied  bool
	)

	err := r.store.WithinTx(ctx, func(tx interfaces.SettlementTx) error {
		p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		result = p

		if p.Status.IsSettled() {
			metrics.DuplicateDeliveriesTotal.Inc()
			telemetry.Logger.Info("Duplicate offline confirmation skipped",
				zap.String("payment_id", p.ID),
				zap.String("actor", actor),
			)
			return nil
		}
		if p.Status != models.StatusPending {
			return nil
		}
		previous = p.Status

		now := time.Now().UTC()
		p.Status = models.StatusCompleted
		p.PaidAt = &now
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		if err := r.settleOwner(ctx, tx, p); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, p.ID, "confirmed at counter by "+actor); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied {
		r.publishApplied(ctx, result, previous, true)
		metrics.IncSettlement(string(result.Owner.Kind), string(result.Status))
	}
	return result, nil
}

// Refund records the domain-side refunded state and runs the associated
// owner effects. Only legal from completed; anything else is a no-op that
// returns the current payment.
//
// TODO: call the gateway refund API here once merchant-side refunds are
// enabled; today only the domain state is recorded.
func (r *Reconciler) Refund(ctx context.Context, paymentID, actor, reason string) (*models.Payment, error) {
	var (
		result   *models.Payment
		previous models.PaymentStatus
		applied  bool
	)

	err := r.store.WithinTx(ctx, func(tx interfaces.SettlementTx) error {
		p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		result = p

		if !p.Status.CanTransitionTo(models.StatusRefunded) {
			return nil
		}
		previous = p.Status

		now := time.Now().UTC()
		p.Status = models.StatusRefunded
		p.RefundedAt = &now
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		if err := r.refundOwner(ctx, tx, p); err != nil {
			return err
		}
		note := fmt.Sprintf("refunded by %s: %s", actor, reason)
		if err := tx.AppendAudit(ctx, p.ID, note); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied {
		r.publishApplied(ctx, result, previous, false)
		metrics.IncSettlement(string(result.Owner.Kind), string(result.Status))
	}
	return result, nil
}

// settleOwner advances the owning aggregate after a first-time completion.
func (r *Reconciler) settleOwner(ctx context.Context, tx interfaces.SettlementTx, p *models.Payment) error {
	switch p.Owner.Kind {
	case models.OwnerOrder:
		for _, from := range []models.OrderStatus{models.OrderPending, models.OrderAwaitingConfirmation} {
			rows, err := tx.UpdateOrderStatus(ctx, p.Owner.ID, from, models.OrderConfirmed)
			if err != nil {
				return err
			}
			if rows > 0 {
				return nil
			}
		}
		telemetry.Logger.Warn("Order not advanced on payment completion",
			zap.String("payment_id", p.ID),
			zap.String("order_id", p.Owner.ID),
		)
		return nil
	case models.OwnerReservation:
		rows, err := tx.UpdateReservation(ctx, p.Owner.ID, p.Amount, models.ReservationPending, models.ReservationConfirmed)
		if err != nil {
			return err
		}
		if rows == 0 {
			telemetry.Logger.Warn("Reservation not advanced on deposit completion",
				zap.String("payment_id", p.ID),
				zap.String("reservation_id", p.Owner.ID),
			)
		}
		return nil
	default:
		return models.ErrMissingOwner
	}
}

// refundOwner rolls the owning aggregate back and releases its table.
func (r *Reconciler) refundOwner(ctx context.Context, tx interfaces.SettlementTx, p *models.Payment) error {
	switch p.Owner.Kind {
	case models.OwnerOrder:
		order, err := tx.GetOrder(ctx, p.Owner.ID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderRefunded && order.Status != models.OrderCancelled {
			if _, err := tx.UpdateOrderStatus(ctx, order.ID, order.Status, models.OrderRefunded); err != nil {
				return err
			}
		}
		if order.Type == models.OrderDineIn && order.TableID != "" {
			return tx.ReleaseTable(ctx, order.TableID)
		}
		return nil
	case models.OwnerReservation:
		res, err := tx.GetReservation(ctx, p.Owner.ID)
		if err != nil {
			return err
		}
		if _, err := tx.UpdateReservation(ctx, res.ID, 0, res.Status, models.ReservationCancelled); err != nil {
			return err
		}
		if res.TableID != "" {
			return tx.ReleaseTable(ctx, res.TableID)
		}
		return nil
	default:
		return models.ErrMissingOwner
	}
}

func (r *Reconciler) publishApplied(ctx context.Context, p *models.Payment, previous models.PaymentStatus, notify bool) {
	if err := r.publisher.PublishStateChanged(ctx, p, previous); err != nil {
		telemetry.Logger.Error("Failed to publish payment state change",
			zap.String("payment_id", p.ID),
			zap.Error(err),
		)
	}
	if notify {
		if err := r.publisher.NotifySettled(ctx, p); err != nil {
			telemetry.Logger.Error("Failed to publish settlement notification",
				zap.String("payment_id", p.ID),
				zap.Error(err),
			)
		}
	}

	telemetry.Logger.Info("Payment state transition",
		zap.String("payment_id", p.ID),
		zap.String("from_state", string(previous)),
		zap.String("to_state", string(p.Status)),
		zap.String("owner_kind", string(p.Owner.Kind)),
		zap.String("owner_id", p.Owner.ID),
	)
}
