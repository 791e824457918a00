package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vuhieu2402/restaurant-payments/internal/handlers"
	"github.com/vuhieu2402/restaurant-payments/internal/telemetry"
)

func NewRouter(paymentHandler *handlers.PaymentHandler, callbackHandler *handlers.CallbackHandler, feeHandler *handlers.FeeHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-settlement"})
	})

	// Payment operations
	payments := r.Group("/api/payments")
	payments.POST("/orders/:id", paymentHandler.CreateOrderPayment)
	payments.POST("/reservations/:id/deposit", paymentHandler.CreateReservationDeposit)
	payments.POST("/:id/confirm", paymentHandler.ConfirmPayment)
	payments.POST("/:id/refund", paymentHandler.RefundPayment)
	payments.POST("/:id/requery", paymentHandler.RequeryPayment)
	payments.GET("/:id", paymentHandler.GetPayment)

	// Gateway channels
	r.POST("/gateway/ipn", callbackHandler.HandleIPN)
	r.GET("/gateway/return", callbackHandler.HandleReturn)

	// Delivery fee quotes
	r.POST("/api/delivery/quote", feeHandler.QuoteFee)

	return r
}
