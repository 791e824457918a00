package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vuhieu2402/restaurant-payments/internal/gateway"
	"github.com/vuhieu2402/restaurant-payments/internal/interfaces"
	"github.com/vuhieu2402/restaurant-payments/internal/models"
	"github.com/vuhieu2402/restaurant-payments/internal/telemetry"
)

const defaultCurrency = "VND"

// PaymentService creates payments and selects the online or offline flow.
// It is the only writer of new payment rows; every later status change goes
// through the Reconciler.
type PaymentService struct {
	store       interfaces.Store
	gateway     *gateway.Client
	reconciler  *Reconciler
	gatewayName string
}

func NewPaymentService(store interfaces.Store, gw *gateway.Client, reconciler *Reconciler, gatewayName string) *PaymentService {
	return &PaymentService{
		store:       store,
		gateway:     gw,
		reconciler:  reconciler,
		gatewayName: gatewayName,
	}
}

// CreateResult is the outcome of payment creation. PayURL is empty for
// offline methods; the customer settles at the counter instead.
type CreateResult struct {
	Payment *models.Payment
	PayURL  string
}

// CreateForOrder creates a payment for an order. Online methods get a signed
// redirect URL and move to processing immediately; offline methods stay
// pending and park the order in awaiting_confirmation.
func (s *PaymentService) CreateForOrder(ctx context.Context, orderID, methodCode, clientIP string) (*CreateResult, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.IsPayable() {
		return nil, fmt.Errorf("order %s in status %s: %w", orderID, order.Status, models.ErrNotPayable)
	}

	owner, err := models.NewOwnerRef(orderID, "")
	if err != nil {
		return nil, err
	}
	method, err := s.ensureCreatable(ctx, owner, methodCode)
	if err != nil {
		return nil, err
	}

	payment, err := models.NewPayment(newPaymentID(), order.TotalAmount, defaultCurrency, owner, method.ID, s.gatewayName)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	telemetry.Logger.Info("Payment created",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", orderID),
		zap.String("method", method.Code),
		zap.Float64("amount", payment.Amount),
	)

	if !method.RequiresOnline {
		// No money has moved; the order waits for counter confirmation.
		if _, err := s.store.UpdateOrderStatus(ctx, orderID, order.Status, models.OrderAwaitingConfirmation); err != nil {
			return nil, err
		}
		return &CreateResult{Payment: payment}, nil
	}

	return s.startOnline(ctx, payment, "Thanh toan don hang "+orderID, clientIP)
}

// CreateForReservationDeposit creates a deposit payment for a reservation.
// Deposits are online-only by policy.
func (s *PaymentService) CreateForReservationDeposit(ctx context.Context, reservationID, methodCode, clientIP string) (*CreateResult, error) {
	res, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.Status != models.ReservationPending {
		return nil, fmt.Errorf("reservation %s in status %s: %w", reservationID, res.Status, models.ErrNotPayable)
	}

	owner, err := models.NewOwnerRef("", reservationID)
	if err != nil {
		return nil, err
	}
	method, err := s.ensureCreatable(ctx, owner, methodCode)
	if err != nil {
		return nil, err
	}
	if !method.RequiresOnline {
		return nil, models.ErrDepositOnlineOnly
	}

	payment, err := models.NewPayment(newPaymentID(), res.DepositRequired, defaultCurrency, owner, method.ID, s.gatewayName)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	telemetry.Logger.Info("Deposit payment created",
		zap.String("payment_id", payment.ID),
		zap.String("reservation_id", reservationID),
		zap.Float64("amount", payment.Amount),
	)

	return s.startOnline(ctx, payment, "Dat coc ban "+reservationID, clientIP)
}

// ConfirmOffline is the manual counter-confirmation path, restricted to
// methods that do not settle online.
func (s *PaymentService) ConfirmOffline(ctx context.Context, paymentID, actor string) (*models.Payment, error) {
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	method, err := s.store.GetMethod(ctx, payment.MethodID)
	if err != nil {
		return nil, err
	}
	if method.RequiresOnline {
		return nil, models.ErrOnlineMethod
	}
	return s.reconciler.ConfirmOffline(ctx, paymentID, actor)
}

// Refund records a domain-side refund for a completed payment.
func (s *PaymentService) Refund(ctx context.Context, paymentID, actor, reason string) (*models.Payment, error) {
	return s.reconciler.Refund(ctx, paymentID, actor, reason)
}

// Requery actively polls the gateway for the outcome of a payment whose
// callback never arrived. The gateway read happens outside any row lock;
// the result funnels through the same reconciliation path as a callback.
func (s *PaymentService) Requery(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.GatewayTxnRef == "" {
		return nil, fmt.Errorf("payment %s never reached the gateway: %w", paymentID, models.ErrUnknownTxnRef)
	}

	outcome, err := s.gateway.QueryStatus(ctx, payment.GatewayTxnRef)
	if err != nil {
		return nil, err
	}
	return s.reconciler.Apply(ctx, payment.ID, outcome)
}

// ensureCreatable rejects creation when the owner already holds a non-failed
// payment and resolves the payment method.
func (s *PaymentService) ensureCreatable(ctx context.Context, owner models.OwnerRef, methodCode string) (*models.PaymentMethod, error) {
	existing, err := s.store.GetActivePaymentForOwner(ctx, owner)
	if err == nil {
		return nil, fmt.Errorf("%s %s has payment %s in status %s: %w",
			owner.Kind, owner.ID, existing.ID, existing.Status, models.ErrOwnerHasPayment)
	}
	if !errors.Is(err, models.ErrPaymentNotFound) {
		return nil, err
	}

	method, err := s.store.GetMethodByCode(ctx, methodCode)
	if err != nil {
		return nil, err
	}
	if !method.Active {
		return nil, fmt.Errorf("payment method %q: %w", methodCode, models.ErrMethodInactive)
	}
	return method, nil
}

// startOnline issues the redirect URL and swaps pending -> processing while
// persisting the transaction reference for callback correlation.
func (s *PaymentService) startOnline(ctx context.Context, payment *models.Payment, orderInfo, clientIP string) (*CreateResult, error) {
	payURL, txnRef, err := s.gateway.BuildPaymentURL(payment.ID, payment.Amount, orderInfo, clientIP)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.MarkProcessing(ctx, payment.ID, txnRef)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("payment %s no longer pending: %w", payment.ID, models.ErrInvalidTransition)
	}
	payment.Status = models.StatusProcessing
	payment.GatewayTxnRef = txnRef

	return &CreateResult{Payment: payment, PayURL: payURL}, nil
}

func newPaymentID() string {
	return "PAY-" + uuid.New().String()
}
