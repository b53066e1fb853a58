// Package geo provides the distance primitive and delivery fee quoting used by
// the pricing and order layers. Geocoding against an external provider is out
// of scope here; callers supply coordinates.
package geo

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-resto/internal/settings"
)

const earthRadiusKM = 6371.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// DistanceKM computes the great-circle distance between two points using the
// Haversine formula.
func DistanceKM(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lon1 := a.Lng * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	lon2 := b.Lng * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1
	h := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dlon/2), 2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}

// DeliveryFee quotes the fee for an order. Pickup orders pay the configured
// pickup fee. Delivery orders without a known distance pay the base fee;
// otherwise base + per_km x distance, floored at zero.
func DeliveryFee(deliveryType string, distanceKM *float64, params settings.Params) decimal.Decimal {
	if deliveryType == "pickup" {
		return params.PickupFee
	}
	if distanceKM == nil {
		return params.DeliveryFeeBase
	}
	dist := decimal.NewFromFloat(*distanceKM)
	fee := params.DeliveryFeeBase.Add(params.DeliveryFeePerKM.Mul(dist))
	if fee.IsNegative() {
		return decimal.Zero
	}
	return fee.Round(2)
}

// WithinRadius reports whether the destination falls inside the restaurant's
// delivery radius.
func WithinRadius(dest Point, params settings.Params) bool {
	origin := Point{
		Lat: params.Latitude.InexactFloat64(),
		Lng: params.Longitude.InexactFloat64(),
	}
	radius := params.DeliveryRadiusKM.InexactFloat64()
	if radius <= 0 {
		return true
	}
	return DistanceKM(origin, dest) <= radius
}
