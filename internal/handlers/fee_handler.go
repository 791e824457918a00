package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vuhieu2402/restaurant-payments/internal/delivery"
)

// FeeHandler quotes delivery fees for a pickup/dropoff pair. Quotes are
// estimates; the order total is fixed when the order is placed.
type FeeHandler struct {
	calc *delivery.Calculator
}

func NewFeeHandler(calc *delivery.Calculator) *FeeHandler {
	return &FeeHandler{calc: calc}
}

type feeQuoteRequest struct {
	Origin      delivery.Point `json:"origin" binding:"required"`
	Destination delivery.Point `json:"destination" binding:"required"`
}

func (h *FeeHandler) QuoteFee(c *gin.Context) {
	var req feeQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "origin and destination are required"})
		return
	}

	now := time.Now()
	distanceKm := h.calc.Distance(c.Request.Context(), req.Origin, req.Destination)
	fee := h.calc.Fee(distanceKm, now)

	c.JSON(http.StatusOK, gin.H{
		"distance_km": distanceKm,
		"fee":         fee,
		"currency":    "VND",
		"quoted_at":   now,
	})
}
