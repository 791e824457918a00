package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vuhieu2402/restaurant-payments/internal/interfaces"
	"github.com/vuhieu2402/restaurant-payments/internal/models"
	"github.com/vuhieu2402/restaurant-payments/internal/service"
	"github.com/vuhieu2402/restaurant-payments/internal/telemetry"
)

const statusCacheTTL = 30 * time.Second

type PaymentHandler struct {
	svc         *service.PaymentService
	store       interfaces.Store
	redisClient *redis.Client
}

func NewPaymentHandler(svc *service.PaymentService, store interfaces.Store, redisClient *redis.Client) *PaymentHandler {
	return &PaymentHandler{svc: svc, store: store, redisClient: redisClient}
}

type createPaymentRequest struct {
	Method string `json:"method" binding:"required"`
}

type actorRequest struct {
	Actor  string `json:"actor" binding:"required"`
	Reason string `json:"reason"`
}

func (h *PaymentHandler) CreateOrderPayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment method is required"})
		return
	}

	result, err := h.svc.CreateForOrder(c.Request.Context(), c.Param("id"), req.Method, c.ClientIP())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"payment": result.Payment,
		"pay_url": result.PayURL,
	})
}

func (h *PaymentHandler) CreateReservationDeposit(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment method is required"})
		return
	}

	result, err := h.svc.CreateForReservationDeposit(c.Request.Context(), c.Param("id"), req.Method, c.ClientIP())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"payment": result.Payment,
		"pay_url": result.PayURL,
	})
}

func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actor is required"})
		return
	}

	payment, err := h.svc.ConfirmOffline(c.Request.Context(), c.Param("id"), req.Actor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.invalidateCache(c, payment.ID)
	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actor is required"})
		return
	}

	payment, err := h.svc.Refund(c.Request.Context(), c.Param("id"), req.Actor, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.invalidateCache(c, payment.ID)
	c.JSON(http.StatusOK, payment)
}

// GetPayment is the internal status query: current status, amount and owner
// without side effects. Reads go through a short-lived redis cache.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if cached, err := h.redisClient.Get(ctx, cacheKey(id)).Result(); err == nil {
		var payment models.Payment
		if err := json.Unmarshal([]byte(cached), &payment); err == nil {
			c.JSON(http.StatusOK, statusView(&payment))
			return
		}
	}

	payment, err := h.store.GetPayment(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if paymentJSON, err := json.Marshal(payment); err == nil {
		h.redisClient.Set(ctx, cacheKey(id), paymentJSON, statusCacheTTL)
	}
	c.JSON(http.StatusOK, statusView(payment))
}

// RequeryPayment drives the gateway status-query fallback and applies the
// result through the normal reconciliation path.
func (h *PaymentHandler) RequeryPayment(c *gin.Context) {
	payment, err := h.svc.Requery(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.invalidateCache(c, payment.ID)
	c.JSON(http.StatusOK, statusView(payment))
}

func statusView(p *models.Payment) gin.H {
	return gin.H{
		"payment_id": p.ID,
		"status":     p.Status,
		"amount":     p.Amount,
		"currency":   p.Currency,
		"owner_kind": p.Owner.Kind,
		"paid_at":    p.PaidAt,
	}
}

func cacheKey(paymentID string) string {
	return fmt.Sprintf("payment_status:%s", paymentID)
}

func (h *PaymentHandler) invalidateCache(c *gin.Context, paymentID string) {
	if err := h.redisClient.Del(c.Request.Context(), cacheKey(paymentID)).Err(); err != nil {
		telemetry.Logger.Warn("Failed to invalidate payment status cache",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
	}
}

func (h *PaymentHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrPaymentNotFound), errors.Is(err, models.ErrOwnerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, models.ErrOwnerHasPayment):
		c.JSON(http.StatusConflict, gin.H{"error": "already paid or processing"})
	case errors.Is(err, models.ErrNotPayable),
		errors.Is(err, models.ErrMethodInactive),
		errors.Is(err, models.ErrDepositOnlineOnly),
		errors.Is(err, models.ErrOnlineMethod),
		errors.Is(err, models.ErrUnknownTxnRef):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrGatewayUnreachable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unreachable"})
	default:
		telemetry.Logger.Error("Payment operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
