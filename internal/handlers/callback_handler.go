package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vuhieu2402/restaurant-payments/internal/gateway"
	"github.com/vuhieu2402/restaurant-payments/internal/interfaces"
	"github.com/vuhieu2402/restaurant-payments/internal/models"
	"github.com/vuhieu2402/restaurant-payments/internal/service"
	"github.com/vuhieu2402/restaurant-payments/internal/telemetry"
)

// CallbackHandler terminates the two inbound gateway channels: the
// server-to-server callback and the browser return. Both funnel into the
// same reconciler; a race between them is resolved by the payment row lock.
type CallbackHandler struct {
	gateway     *gateway.Client
	store       interfaces.Store
	reconciler  *service.Reconciler
	redisClient *redis.Client
}

func NewCallbackHandler(gw *gateway.Client, store interfaces.Store, reconciler *service.Reconciler, redisClient *redis.Client) *CallbackHandler {
	return &CallbackHandler{gateway: gw, store: store, reconciler: reconciler, redisClient: redisClient}
}

// HandleIPN is the server-to-server callback. The gateway retries on
// non-2xx, so duplicates answer 200.
func (h *CallbackHandler) HandleIPN(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		writeIPNError(c, http.StatusBadRequest, models.WrapCoded("BAD_PAYLOAD", "undecodable payload", err))
		return
	}

	outcome, err := h.gateway.ParseCallback(c.Request.Form)
	if err != nil {
		telemetry.Logger.Warn("Rejected gateway callback",
			zap.Error(err),
			zap.String("client_ip", c.ClientIP()),
		)
		writeIPNError(c, http.StatusBadRequest, models.WrapCoded("VERIFY_FAILED", "verification failed", err))
		return
	}

	payment, err := h.store.GetPaymentByTxnRef(c.Request.Context(), outcome.TxnRef)
	if err != nil {
		if errors.Is(err, models.ErrUnknownTxnRef) {
			writeIPNError(c, http.StatusNotFound, models.WrapCoded("UNKNOWN_REF", "unknown transaction reference", err))
			return
		}
		writeIPNError(c, http.StatusInternalServerError, models.WrapCoded("LOOKUP_FAILED", "lookup failed", err))
		return
	}

	if _, err := h.reconciler.Apply(c.Request.Context(), payment.ID, outcome); err != nil {
		telemetry.Logger.Error("Failed to apply gateway outcome",
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
		writeIPNError(c, http.StatusInternalServerError, models.WrapCoded("SETTLE_FAILED", "settlement failed", err))
		return
	}

	h.dropStatusCache(c, payment.ID)
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "outcome recorded"})
}

// HandleReturn is the browser redirect back from the gateway. Local and
// test deployments are often unreachable for the server callback, so the
// return runs the same reconciliation, then renders a page from the
// re-read, already-reconciled payment.
func (h *CallbackHandler) HandleReturn(c *gin.Context) {
	outcome, err := h.gateway.ParseCallback(c.Request.URL.Query())
	if err != nil {
		renderResultPage(c, false, "", "We could not verify the payment result.")
		return
	}

	payment, err := h.store.GetPaymentByTxnRef(c.Request.Context(), outcome.TxnRef)
	if err != nil {
		renderResultPage(c, false, "", "We could not match the payment result.")
		return
	}

	if _, err := h.reconciler.Apply(c.Request.Context(), payment.ID, outcome); err != nil {
		telemetry.Logger.Error("Failed to apply gateway outcome on return",
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
		renderResultPage(c, false, payment.ID, "The payment could not be settled.")
		return
	}
	h.dropStatusCache(c, payment.ID)

	// Render what was durably stored, not what the redirect claims.
	settled, err := h.store.GetPayment(c.Request.Context(), payment.ID)
	if err != nil {
		renderResultPage(c, false, payment.ID, "The payment could not be looked up.")
		return
	}

	if settled.Status == models.StatusCompleted {
		renderResultPage(c, true, settled.ID, "Your payment was received.")
		return
	}
	renderResultPage(c, false, settled.ID, "The payment was not completed: "+outcome.Reason+".")
}

// writeIPNError answers the gateway with a stable code and a generic
// message; the underlying error stays in the logs.
func writeIPNError(c *gin.Context, status int, err error) {
	var coded *models.Coded
	if !errors.As(err, &coded) {
		c.JSON(status, gin.H{"status": "error", "message": "internal error"})
		return
	}
	c.JSON(status, gin.H{"status": "error", "code": coded.Code, "message": coded.Message})
}

func (h *CallbackHandler) dropStatusCache(c *gin.Context, paymentID string) {
	if err := h.redisClient.Del(c.Request.Context(), cacheKey(paymentID)).Err(); err != nil {
		telemetry.Logger.Warn("Failed to invalidate payment status cache",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
	}
}

func renderResultPage(c *gin.Context, ok bool, paymentID, message string) {
	title := "Payment failed"
	status := http.StatusOK
	if ok {
		title = "Payment successful"
	}
	ref := ""
	if paymentID != "" {
		ref = fmt.Sprintf("<p>Reference: %s</p>", paymentID)
	}
	page := fmt.Sprintf(
		`<!DOCTYPE html><html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p>%s</body></html>`,
		title, title, message, ref,
	)
	c.Data(status, "text/html; charset=utf-8", []byte(page))
}
