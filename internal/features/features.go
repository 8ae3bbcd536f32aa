// Package features derives the modelling columns from cleaned customer
// records. Derivations are pure: callers get a new slice and the input is
// left untouched.
package features

import (
	"math"

	"github.com/ignite/churn-radar/internal/config"
	"github.com/ignite/churn-radar/internal/domain"
	"github.com/ignite/churn-radar/internal/pkg/stat"
)

// Churn-risk logistic parameters.
const (
	riskSteepness = 6.0
	riskCenter    = 0.5
)

// Engineer adds MonetaryValue, Engagement, SatisfactionAdjusted, Status,
// ChurnRisk and ValueScore to every record. Order is preserved.
func Engineer(records []domain.CustomerRecord, cfg config.FeatureConfig) []domain.CustomerRecord {
	out := domain.CloneAll(records)

	for i := range out {
		r := &out[i]
		r.MonetaryValue = MonetaryValue(*r)
		r.Engagement = r.HourSpendOnApp + cfg.DeviceWeight*r.DevicesRegistered
		r.SatisfactionAdjusted = r.SatisfactionScore - cfg.ComplaintWeight*r.Complaints
		r.Status = StatusFor(r.Recency, cfg)
	}

	// Population-relative scores need the whole table.
	recency := make([]float64, len(out))
	monetary := make([]float64, len(out))
	orders := make([]float64, len(out))
	for i, r := range out {
		recency[i], monetary[i], orders[i] = r.Recency, r.MonetaryValue, r.OrderCount
	}
	recS, monS, ordS := fitZeroFloor(recency), fitZeroFloor(monetary), fitZeroFloor(orders)

	for i := range out {
		r := &out[i]
		r.ChurnRisk = churnRisk(recS.scale(r.Recency), r.SatisfactionScore, r.Complaints)
		r.ValueScore = (0.7*monS.scale(r.MonetaryValue) + 0.3*ordS.scale(r.OrderCount)) * 10
	}
	return out
}

// MonetaryValue sums the monetary proxies, floored at zero.
func MonetaryValue(r domain.CustomerRecord) float64 {
	return math.Max(0, r.CashbackAmount+r.CouponUsed+r.OrderAmountHike)
}

// StatusFor buckets days since last order.
func StatusFor(recency float64, cfg config.FeatureConfig) domain.Status {
	switch {
	case recency >= cfg.ChurnedFromDays:
		return domain.StatusChurned
	case recency >= cfg.AtRiskFromDays:
		return domain.StatusAtRisk
	default:
		return domain.StatusActive
	}
}

// churnRisk blends recency, dissatisfaction and complaints and squashes
// the blend onto 0-10.
func churnRisk(recencyScaled, satisfaction, complaints float64) float64 {
	dissatisfaction := 1 - stat.Clip01((satisfaction-1)/4)
	raw := 0.6*recencyScaled + 0.3*dissatisfaction + 0.1*stat.Clip01(complaints)
	return 10 / (1 + math.Exp(-riskSteepness*(raw-riskCenter)))
}

// zeroFloorScaler is min-max scaling where a constant column maps to 0
// rather than the midpoint, so a flat input adds nothing to a 0-10 score.
type zeroFloorScaler struct{ s stat.Scaler }

func fitZeroFloor(values []float64) zeroFloorScaler {
	return zeroFloorScaler{s: stat.Fit(values)}
}

func (z zeroFloorScaler) scale(v float64) float64 {
	if z.s.ZeroVariance() {
		return 0
	}
	return z.s.Scale(v)
}
