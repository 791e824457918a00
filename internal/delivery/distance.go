package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/vuhieu2402/restaurant-payments/internal/config"
)

const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type routeResponse struct {
	DistanceKm  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`
}

// Calculator computes road distance and delivery fees. The primary distance
// strategy asks the routing service; when that is unreachable it falls back
// to great-circle distance inflated by an empirical road factor.
type Calculator struct {
	cfg     config.FeeConfig
	http    *http.Client
	windows []surgeWindow
}

func NewCalculator(cfg config.FeeConfig) *Calculator {
	return &Calculator{
		cfg:     cfg,
		http:    &http.Client{Timeout: time.Duration(cfg.RoutingTimeout) * time.Second},
		windows: parseSurgeWindows(cfg.SurgeWindows),
	}
}

// Distance returns the estimated road distance in km between two points.
func (c *Calculator) Distance(ctx context.Context, origin, dest Point) float64 {
	if c.cfg.RoutingURL != "" {
		if km, err := c.routedDistance(ctx, origin, dest); err == nil {
			return km
		}
	}
	raw := Haversine(origin, dest)
	return raw * inflationFactor(raw)
}

func (c *Calculator) routedDistance(ctx context.Context, origin, dest Point) (float64, error) {
	url := fmt.Sprintf("%s?from=%f,%f&to=%f,%f",
		c.cfg.RoutingURL, origin.Lat, origin.Lng, dest.Lat, dest.Lng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("routing service returned %d", resp.StatusCode)
	}
	var route routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&route); err != nil {
		return 0, err
	}
	if route.DistanceKm <= 0 {
		return 0, fmt.Errorf("routing service returned non-positive distance")
	}
	return route.DistanceKm, nil
}

// Haversine is the great-circle distance in km.
func Haversine(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// inflationFactor approximates road distance from straight-line distance.
// Short hops detour proportionally more than long ones.
func inflationFactor(km float64) float64 {
	switch {
	case km < 2:
		return 1.4
	case km < 5:
		return 1.3
	case km < 10:
		return 1.25
	default:
		return 1.2
	}
}
