package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vuhieu2402/restaurant-payments/internal/config"
)

func testFeeConfig() config.FeeConfig {
	return config.FeeConfig{
		RoutingTimeout:  1,
		BaseFee:         15000,
		PerKmFee:        5000,
		FreeDistanceKm:  2,
		MinFee:          10000,
		MaxFee:          100000,
		SurgeMultiplier: 1.5,
		SurgeWindows:    []string{"11:00-13:00", "18:00-20:00"},
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 1, 15, hour, minute, 0, 0, time.Local)
}

func TestFeeMonotonicInDistance(t *testing.T) {
	calc := NewCalculator(testFeeConfig())
	when := at(9, 0)

	prev := 0.0
	for _, d := range []float64{0, 0.5, 1, 2, 3, 5, 8, 12, 20} {
		fee := calc.Fee(d, when)
		assert.GreaterOrEqual(t, fee, prev, "fee at %.1f km", d)
		prev = fee
	}
}

func TestFeeWithinFreeDistance(t *testing.T) {
	calc := NewCalculator(testFeeConfig())

	assert.Equal(t, 15000.0, calc.Fee(1.5, at(9, 0)), "only the base fee inside the free distance")
}

func TestFeeSurgeWindow(t *testing.T) {
	calc := NewCalculator(testFeeConfig())

	offPeak := calc.Fee(6, at(15, 0))
	lunch := calc.Fee(6, at(12, 0))
	dinner := calc.Fee(6, at(19, 30))

	assert.Greater(t, lunch, offPeak)
	assert.Equal(t, lunch, dinner)

	// 4 chargeable km: base 15000 + 4*5000*1.5
	assert.Equal(t, 45000.0, lunch)
	assert.Equal(t, 35000.0, offPeak)
}

func TestFeeSurgeWindowWrapsMidnight(t *testing.T) {
	cfg := testFeeConfig()
	cfg.SurgeWindows = []string{"22:00-02:00"}
	calc := NewCalculator(cfg)

	assert.Greater(t, calc.Fee(6, at(23, 0)), calc.Fee(6, at(12, 0)))
	assert.Greater(t, calc.Fee(6, at(1, 0)), calc.Fee(6, at(12, 0)))
}

func TestFeeClampedToBounds(t *testing.T) {
	cfg := testFeeConfig()
	cfg.BaseFee = 2000
	calc := NewCalculator(cfg)

	assert.Equal(t, cfg.MinFee, calc.Fee(0, at(9, 0)), "fee clamps up to the minimum")
	assert.Equal(t, cfg.MaxFee, calc.Fee(500, at(9, 0)), "fee clamps down to the maximum")
}

func TestHaversineKnownDistance(t *testing.T) {
	// Hoan Kiem Lake to West Lake, Hanoi: roughly 4.5 km apart.
	a := Point{Lat: 21.0285, Lng: 105.8542}
	b := Point{Lat: 21.0587, Lng: 105.8203}

	km := Haversine(a, b)
	assert.InDelta(t, 4.9, km, 0.5)
	assert.Equal(t, 0.0, Haversine(a, a))
}

func TestDistancePrefersRoutingService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"distance_km": 7.3, "duration_min": 21}`))
	}))
	defer srv.Close()

	cfg := testFeeConfig()
	cfg.RoutingURL = srv.URL
	calc := NewCalculator(cfg)

	km := calc.Distance(context.Background(), Point{Lat: 21.0285, Lng: 105.8542}, Point{Lat: 21.0587, Lng: 105.8203})
	assert.Equal(t, 7.3, km)
}

func TestDistanceFallsBackToInflatedHaversine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testFeeConfig()
	cfg.RoutingURL = srv.URL
	calc := NewCalculator(cfg)

	a := Point{Lat: 21.0285, Lng: 105.8542}
	b := Point{Lat: 21.0587, Lng: 105.8203}
	raw := Haversine(a, b)

	km := calc.Distance(context.Background(), a, b)
	require.Greater(t, km, raw, "fallback inflates the great-circle distance")
	assert.InDelta(t, raw*1.3, km, 0.001)
}

func TestInflationFactorDecreasesWithDistance(t *testing.T) {
	prev := 10.0
	for _, d := range []float64{0.5, 3, 7, 15} {
		f := inflationFactor(d)
		assert.LessOrEqual(t, f, prev, "factor at %.1f km", d)
		assert.GreaterOrEqual(t, f, 1.0)
		prev = f
	}
}
