package loyalty

import "github.com/shopspring/decimal"

// Tier is a derived loyalty level. It is never stored; it is recomputed from
// total_earned on demand.
type Tier struct {
	Name                  string          `json:"name"`
	PointsMultiplier      decimal.Decimal `json:"points_multiplier"`
	FreeDeliveryThreshold decimal.Decimal `json:"free_delivery_threshold"`
	SpecialOffers         bool            `json:"special_offers"`
}

// Thresholds are the ascending tier boundaries on total_earned.
type Thresholds struct {
	Silver   int64
	Gold     int64
	Platinum int64
}

// DefaultThresholds mirror the production program configuration.
var DefaultThresholds = Thresholds{Silver: 50000, Gold: 100000, Platinum: 250000}

var (
	tierBronze = Tier{Name: "bronze", PointsMultiplier: decimal.RequireFromString("1.0"), FreeDeliveryThreshold: decimal.RequireFromString("50.00")}
	tierSilver = Tier{Name: "silver", PointsMultiplier: decimal.RequireFromString("1.1"), FreeDeliveryThreshold: decimal.RequireFromString("30.00"), SpecialOffers: true}
	tierGold   = Tier{Name: "gold", PointsMultiplier: decimal.RequireFromString("1.2"), FreeDeliveryThreshold: decimal.RequireFromString("20.00"), SpecialOffers: true}
	tierPlat   = Tier{Name: "platinum", PointsMultiplier: decimal.RequireFromString("1.5"), FreeDeliveryThreshold: decimal.Zero, SpecialOffers: true}
)

// TierFor derives the tier for a lifetime earned total.
func TierFor(totalEarned int64, t Thresholds) Tier {
	switch {
	case totalEarned >= t.Platinum:
		return tierPlat
	case totalEarned >= t.Gold:
		return tierGold
	case totalEarned >= t.Silver:
		return tierSilver
	default:
		return tierBronze
	}
}
