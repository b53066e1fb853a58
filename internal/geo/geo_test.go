package geo

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/backend-resto/internal/settings"
)

func paramsForTest() settings.Params {
	return settings.Params{
		DeliveryFeeBase:  decimal.RequireFromString("2000"),
		DeliveryFeePerKM: decimal.RequireFromString("150"),
		PickupFee:        decimal.Zero,
		Latitude:         decimal.RequireFromString("9.0820"),
		Longitude:        decimal.RequireFromString("7.3986"),
		DeliveryRadiusKM: decimal.RequireFromString("10"),
	}
}

func TestDistanceKM(t *testing.T) {
	// Abuja city gate to Wuse is roughly 9 km.
	abuja := Point{Lat: 9.0765, Lng: 7.3986}
	wuse := Point{Lat: 9.0667, Lng: 7.4833}
	d := DistanceKM(abuja, wuse)
	assert.InDelta(t, 9.4, d, 1.0)

	assert.Equal(t, 0.0, DistanceKM(abuja, abuja))
}

func TestDeliveryFeePickupIsPickupFee(t *testing.T) {
	fee := DeliveryFee("pickup", nil, paramsForTest())
	assert.True(t, fee.IsZero())
}

func TestDeliveryFeeWithoutDistanceUsesBase(t *testing.T) {
	fee := DeliveryFee("delivery", nil, paramsForTest())
	assert.Equal(t, "2000", fee.String())
}

func TestDeliveryFeeScalesWithDistance(t *testing.T) {
	dist := 3.5
	fee := DeliveryFee("delivery", &dist, paramsForTest())
	assert.Equal(t, "2525", fee.String())
}

func TestDeliveryFeeNeverNegative(t *testing.T) {
	p := paramsForTest()
	p.DeliveryFeeBase = decimal.RequireFromString("-100")
	p.DeliveryFeePerKM = decimal.Zero
	dist := 1.0
	fee := DeliveryFee("delivery", &dist, p)
	assert.True(t, fee.IsZero())
}

func TestWithinRadius(t *testing.T) {
	p := paramsForTest()
	near := Point{Lat: 9.0800, Lng: 7.4000}
	far := Point{Lat: 6.5244, Lng: 3.3792} // Lagos
	assert.True(t, WithinRadius(near, p))
	assert.False(t, WithinRadius(far, p))

	p.DeliveryRadiusKM = decimal.Zero
	assert.True(t, WithinRadius(far, p))
}
