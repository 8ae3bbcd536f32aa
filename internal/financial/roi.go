// Package financial projects the revenue and profit of reactivation
// campaigns. Arithmetic runs in decimal so that reactivation counts floor
// exactly (100 × 0.29 is 29, not 28).
package financial

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ignite/churn-radar/internal/domain"
)

// InvalidAssumptionError reports an ROI input outside its valid range.
// It disables the ROI stage only; cohorts remain valid.
type InvalidAssumptionError struct {
	Cohort string // empty for the default assumption set
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidAssumptionError) Error() string {
	scope := "default assumptions"
	if e.Cohort != "" {
		scope = "assumptions for " + e.Cohort
	}
	return fmt.Sprintf("invalid %s: %s=%g %s", scope, e.Field, e.Value, e.Reason)
}

// Validate checks that every assumption is non-negative and that the rate
// and margin are fractions.
func Validate(a domain.Assumptions) error {
	checks := []struct {
		field    string
		value    float64
		fraction bool
	}{
		{"reactivation_rate", a.ReactivationRate, true},
		{"average_order_value", a.AverageOrderValue, false},
		{"margin", a.Margin, true},
		{"sending_cost_per_contact", a.SendingCostPerContact, false},
		{"incentive_cost_per_reactivation", a.IncentiveCostPerReactivation, false},
	}
	for _, c := range checks {
		if c.value < 0 {
			return &InvalidAssumptionError{Field: c.field, Value: c.value, Reason: "must not be negative"}
		}
		if c.fraction && c.value > 1 {
			return &InvalidAssumptionError{Field: c.field, Value: c.value, Reason: "must not exceed 1"}
		}
	}
	return nil
}

// ========== Projection ==========

// projection keeps every term in decimal until it is reported.
type projection struct {
	size, expected                  decimal.Decimal
	revenue, gross                  decimal.Decimal
	sending, incentives, total, net decimal.Decimal
}

func project(size int, a domain.Assumptions) projection {
	p := projection{size: decimal.NewFromInt(int64(size))}
	p.expected = p.size.Mul(decimal.NewFromFloat(a.ReactivationRate)).Floor()
	p.revenue = p.expected.Mul(decimal.NewFromFloat(a.AverageOrderValue))
	p.gross = p.revenue.Mul(decimal.NewFromFloat(a.Margin))
	p.sending = p.size.Mul(decimal.NewFromFloat(a.SendingCostPerContact))
	p.incentives = p.expected.Mul(decimal.NewFromFloat(a.IncentiveCostPerReactivation))
	p.total = p.sending.Add(p.incentives)
	p.net = p.gross.Sub(p.total)
	return p
}

func (p projection) add(o projection) projection {
	return projection{
		size:       p.size.Add(o.size),
		expected:   p.expected.Add(o.expected),
		revenue:    p.revenue.Add(o.revenue),
		gross:      p.gross.Add(o.gross),
		sending:    p.sending.Add(o.sending),
		incentives: p.incentives.Add(o.incentives),
		total:      p.total.Add(o.total),
		net:        p.net.Add(o.net),
	}
}

func (p projection) romi() float64 {
	if !p.total.IsPositive() {
		return 0
	}
	return p.net.Div(p.total).InexactFloat64()
}

func (p projection) report(a domain.Assumptions) domain.Projection {
	return domain.Projection{
		CohortSize:          int(p.size.IntPart()),
		ExpectedReactivated: int(p.expected.IntPart()),
		ExpectedRevenue:     p.revenue.InexactFloat64(),
		GrossProfit:         p.gross.InexactFloat64(),
		SendingCost:         p.sending.InexactFloat64(),
		IncentiveCost:       p.incentives.InexactFloat64(),
		TotalCost:           p.total.InexactFloat64(),
		NetProfit:           p.net.InexactFloat64(),
		ROMI:                p.romi(),
		Assumptions:         a,
	}
}

// ComputeROI projects one cohort:
//
//	expected     = floor(size × rate)
//	revenue      = expected × AOV
//	gross profit = revenue × margin
//	total cost   = size × sending cost + expected × incentive cost
//	net profit   = gross profit − total cost
func ComputeROI(stats domain.CohortStats, a domain.Assumptions) (domain.Projection, error) {
	if err := Validate(a); err != nil {
		return domain.Projection{}, err
	}
	return project(stats.Size, a).report(a), nil
}
