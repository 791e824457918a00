package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vuhieu2402/restaurant-payments/internal/gateway"
	"github.com/vuhieu2402/restaurant-payments/internal/models"
)

func processingOrderPayment(f *fakeStore) *models.Payment {
	f.orders["ORD-1"] = &models.Order{
		ID: "ORD-1", Type: models.OrderDelivery, Status: models.OrderPending,
		TotalAmount: 150000, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	p := &models.Payment{
		ID: "PAY-1", Amount: 150000, Currency: "VND",
		Status: models.StatusProcessing,
		Owner:  models.OwnerRef{Kind: models.OwnerOrder, ID: "ORD-1"},
		MethodID: "pm-gateway-card", Gateway: "cardgate",
		GatewayTxnRef: "PAY-1_1700000000", CreatedAt: time.Now(),
	}
	f.payments[p.ID] = p
	return p
}

func processingDepositPayment(f *fakeStore) *models.Payment {
	f.reservations["RES-1"] = &models.Reservation{
		ID: "RES-1", Status: models.ReservationPending, TableID: "T-5",
		DepositRequired: 300000, ReservedFor: time.Now().Add(24 * time.Hour),
	}
	f.tables["T-5"] = &models.DiningTable{ID: "T-5", Number: 5, Status: models.TableOccupied}
	p := &models.Payment{
		ID: "PAY-2", Amount: 300000, Currency: "VND",
		Status: models.StatusProcessing,
		Owner:  models.OwnerRef{Kind: models.OwnerReservation, ID: "RES-1"},
		MethodID: "pm-gateway-card", Gateway: "cardgate",
		GatewayTxnRef: "PAY-2_1700000001", CreatedAt: time.Now(),
	}
	f.payments[p.ID] = p
	return p
}

func successOutcome(txnRef string, amount float64) *gateway.NormalizedOutcome {
	return &gateway.NormalizedOutcome{
		TxnRef:       txnRef,
		Success:      true,
		ResponseCode: "00",
		Reason:       "success",
		GatewayTxnID: "9912345",
		Amount:       amount,
	}
}

func failureOutcome(txnRef, code, reason string) *gateway.NormalizedOutcome {
	return &gateway.NormalizedOutcome{
		TxnRef:       txnRef,
		Success:      false,
		ResponseCode: code,
		Reason:       reason,
	}
}

func TestApplyCompletedAdvancesOrder(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	rec := NewReconciler(store, pub)
	p := processingOrderPayment(store)

	applied, err := rec.Apply(context.Background(), p.ID, successOutcome(p.GatewayTxnRef, 150000))
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, applied.Status)
	assert.NotNil(t, applied.PaidAt)
	assert.Equal(t, models.OrderConfirmed, store.orders["ORD-1"].Status)
	assert.Equal(t, 1, store.orderAdvances)
	assert.Equal(t, 1, pub.stateChanges)
	assert.Equal(t, 1, pub.notified)
}

func TestApplyIsIdempotentOnDuplicateDelivery(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	rec := NewReconciler(store, pub)
	p := processingOrderPayment(store)
	outcome := successOutcome(p.GatewayTxnRef, 150000)

	first, err := rec.Apply(context.Background(), p.ID, outcome)
	require.NoError(t, err)

	// The gateway delivers the same outcome again via the second channel.
	second, err := rec.Apply(context.Background(), p.ID, outcome)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, 1, store.orderAdvances, "owner update must run exactly once")
	assert.Equal(t, 1, pub.stateChanges, "state change event must fire exactly once")
	assert.Equal(t, 1, pub.notified, "notification must fire exactly once")
}

func TestApplyCompletedReservationSetsDeposit(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store, &fakePublisher{})
	p := processingDepositPayment(store)

	applied, err := rec.Apply(context.Background(), p.ID, successOutcome(p.GatewayTxnRef, 300000))
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, applied.Status)
	res := store.reservations["RES-1"]
	assert.Equal(t, models.ReservationConfirmed, res.Status)
	assert.Equal(t, float64(300000), res.DepositPaid)
	assert.LessOrEqual(t, res.DepositPaid, res.DepositRequired)
}

func TestApplyFailedLeavesOwnerUntouched(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	rec := NewReconciler(store, pub)
	p := processingDepositPayment(store)

	applied, err := rec.Apply(context.Background(), p.ID, failureOutcome(p.GatewayTxnRef, "51", "insufficient funds"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, applied.Status)
	res := store.reservations["RES-1"]
	assert.Equal(t, models.ReservationPending, res.Status)
	assert.Equal(t, float64(0), res.DepositPaid)
	assert.Len(t, store.audits, 1, "a declined payment leaves an audit note")
	assert.Equal(t, 0, pub.notified)
	assert.Equal(t, 1, pub.stateChanges)
}

func TestApplyDoesNotResurrectFailedPayment(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	rec := NewReconciler(store, pub)
	p := processingOrderPayment(store)
	p.Status = models.StatusFailed

	applied, err := rec.Apply(context.Background(), p.ID, successOutcome(p.GatewayTxnRef, 150000))
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, applied.Status)
	assert.Equal(t, models.OrderPending, store.orders["ORD-1"].Status)
	assert.Equal(t, 0, pub.stateChanges)
}

func TestApplyRollsBackWhenOwnerUpdateFails(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	rec := NewReconciler(store, pub)
	p := processingOrderPayment(store)
	store.failOrderUpdate = true

	_, err := rec.Apply(context.Background(), p.ID, successOutcome(p.GatewayTxnRef, 150000))
	require.Error(t, err)

	// A completed payment with an unconfirmed order must never survive.
	assert.Equal(t, models.StatusProcessing, store.payments[p.ID].Status)
	assert.Equal(t, models.OrderPending, store.orders["ORD-1"].Status)
	assert.Equal(t, 0, pub.stateChanges)
}

func TestConfirmOffline(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	rec := NewReconciler(store, pub)

	store.orders["ORD-2"] = &models.Order{ID: "ORD-2", Type: models.OrderDineIn, Status: models.OrderAwaitingConfirmation, TotalAmount: 90000}
	store.payments["PAY-3"] = &models.Payment{
		ID: "PAY-3", Amount: 90000, Currency: "VND", Status: models.StatusPending,
		Owner: models.OwnerRef{Kind: models.OwnerOrder, ID: "ORD-2"}, MethodID: "pm-cash", Gateway: "cardgate",
	}

	confirmed, err := rec.ConfirmOffline(context.Background(), "PAY-3", "staff:7")
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, confirmed.Status)
	assert.NotNil(t, confirmed.PaidAt)
	assert.Equal(t, models.OrderConfirmed, store.orders["ORD-2"].Status)

	// A second confirmation is a duplicate no-op.
	again, err := rec.ConfirmOffline(context.Background(), "PAY-3", "staff:7")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, again.Status)
	assert.Equal(t, 1, store.orderAdvances)
	assert.Equal(t, 1, pub.notified)
}

func TestRefundOrderReleasesTable(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	rec := NewReconciler(store, pub)

	store.tables["T-2"] = &models.DiningTable{ID: "T-2", Number: 2, Status: models.TableOccupied}
	store.orders["ORD-3"] = &models.Order{ID: "ORD-3", Type: models.OrderDineIn, Status: models.OrderConfirmed, TotalAmount: 200000, TableID: "T-2"}
	now := time.Now()
	store.payments["PAY-4"] = &models.Payment{
		ID: "PAY-4", Amount: 200000, Currency: "VND", Status: models.StatusCompleted, PaidAt: &now,
		Owner: models.OwnerRef{Kind: models.OwnerOrder, ID: "ORD-3"}, MethodID: "pm-gateway-card", Gateway: "cardgate",
	}

	refunded, err := rec.Refund(context.Background(), "PAY-4", "manager:1", "customer complaint")
	require.NoError(t, err)

	assert.Equal(t, models.StatusRefunded, refunded.Status)
	assert.NotNil(t, refunded.RefundedAt)
	assert.Equal(t, models.OrderRefunded, store.orders["ORD-3"].Status)
	assert.Equal(t, models.TableAvailable, store.tables["T-2"].Status)
	assert.Equal(t, 1, store.tableReleases)
}

func TestRefundReservationZeroesDeposit(t *testing.T) {
	store := newFakeStore()
	rec := NewReconciler(store, &fakePublisher{})

	store.tables["T-5"] = &models.DiningTable{ID: "T-5", Number: 5, Status: models.TableOccupied}
	store.reservations["RES-2"] = &models.Reservation{
		ID: "RES-2", Status: models.ReservationConfirmed, TableID: "T-5",
		DepositRequired: 300000, DepositPaid: 300000,
	}
	now := time.Now()
	store.payments["PAY-5"] = &models.Payment{
		ID: "PAY-5", Amount: 300000, Currency: "VND", Status: models.StatusCompleted, PaidAt: &now,
		Owner: models.OwnerRef{Kind: models.OwnerReservation, ID: "RES-2"}, MethodID: "pm-gateway-card", Gateway: "cardgate",
	}

	refunded, err := rec.Refund(context.Background(), "PAY-5", "manager:1", "reservation cancelled")
	require.NoError(t, err)

	assert.Equal(t, models.StatusRefunded, refunded.Status)
	res := store.reservations["RES-2"]
	assert.Equal(t, models.ReservationCancelled, res.Status)
	assert.Equal(t, float64(0), res.DepositPaid)
	assert.Equal(t, models.TableAvailable, store.tables["T-5"].Status)
}

func TestRefundIllegalFromProcessingIsNoop(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	rec := NewReconciler(store, pub)
	p := processingOrderPayment(store)

	result, err := rec.Refund(context.Background(), p.ID, "manager:1", "too early")
	require.NoError(t, err)

	assert.Equal(t, models.StatusProcessing, result.Status)
	assert.Equal(t, 0, pub.stateChanges)
}
