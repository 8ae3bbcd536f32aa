package financial

import (
	"errors"

	"github.com/ignite/churn-radar/internal/config"
	"github.com/ignite/churn-radar/internal/domain"
)

// ========== Types ==========

// CohortROI is the projection of one cohort plus its readiness.
type CohortROI struct {
	Cohort     string            `json:"cohort"`
	Kind       domain.CohortKind `json:"kind"`
	Ready      bool              `json:"ready"`
	Projection domain.Projection `json:"projection"`
}

// Waterfall aggregates the ready cohorts. Each term is the sum of the
// per-cohort terms, never recomputed from summed inputs.
type Waterfall struct {
	Cohorts             int     `json:"cohorts"`
	Customers           int     `json:"customers"`
	ExpectedReactivated int     `json:"expected_reactivated"`
	ExpectedRevenue     float64 `json:"expected_revenue"`
	GrossProfit         float64 `json:"gross_profit"`
	SendingCost         float64 `json:"sending_cost"`
	IncentiveCost       float64 `json:"incentive_cost"`
	TotalCost           float64 `json:"total_cost"`
	NetProfit           float64 `json:"net_profit"`
	ROMI                float64 `json:"romi"`
}

// Report is the ROI stage output.
type Report struct {
	Cohorts   []CohortROI `json:"cohorts"`
	Waterfall Waterfall   `json:"waterfall"`
}

// ========== Calculator ==========

// Calculator applies the configured assumptions to cohorts.
type Calculator struct {
	cfg config.ROIConfig
}

// NewCalculator creates a new ROI calculator
func NewCalculator(cfg config.ROIConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// IsReady reports whether a cohort passes the readiness gate.
func (c *Calculator) IsReady(s domain.CohortStats) bool {
	return s.Size >= c.cfg.Readiness.MinSize && s.MeanScore >= c.cfg.Readiness.MinMeanScore
}

// Build projects every cohort and aggregates the ready ones. Any invalid
// assumption set fails the whole report.
func (c *Calculator) Build(cohorts []domain.CohortStats) (*Report, error) {
	report := &Report{Cohorts: make([]CohortROI, 0, len(cohorts))}
	agg := project(0, domain.Assumptions{})

	for _, s := range cohorts {
		a := c.cfg.AssumptionsFor(s.Name)
		if err := Validate(a); err != nil {
			var iae *InvalidAssumptionError
			if errors.As(err, &iae) {
				if _, overridden := c.cfg.Cohorts[s.Name]; overridden {
					iae.Cohort = s.Name
				}
			}
			return nil, err
		}

		p := project(s.Size, a)
		ready := c.IsReady(s)
		report.Cohorts = append(report.Cohorts, CohortROI{
			Cohort:     s.Name,
			Kind:       s.Kind,
			Ready:      ready,
			Projection: p.report(a),
		})
		if ready {
			agg = agg.add(p)
			report.Waterfall.Cohorts++
		}
	}

	report.Waterfall.Customers = int(agg.size.IntPart())
	report.Waterfall.ExpectedReactivated = int(agg.expected.IntPart())
	report.Waterfall.ExpectedRevenue = agg.revenue.InexactFloat64()
	report.Waterfall.GrossProfit = agg.gross.InexactFloat64()
	report.Waterfall.SendingCost = agg.sending.InexactFloat64()
	report.Waterfall.IncentiveCost = agg.incentives.InexactFloat64()
	report.Waterfall.TotalCost = agg.total.InexactFloat64()
	report.Waterfall.NetProfit = agg.net.InexactFloat64()
	report.Waterfall.ROMI = agg.romi()
	return report, nil
}
