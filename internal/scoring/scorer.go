// Package scoring ranks lapsed customers by how likely and how worthwhile
// they are to win back. Scores are relative to the active population, so
// the same customer can score differently in a different table.
package scoring

import (
	"fmt"

	"github.com/ignite/churn-radar/internal/config"
	"github.com/ignite/churn-radar/internal/domain"
	"github.com/ignite/churn-radar/internal/pkg/stat"
)

const stage = "scoring"

// Components are the normalized score inputs for one customer, each in [0,1].
type Components struct {
	Engagement float64 `json:"engagement"`
	Monetary   float64 `json:"monetary"`
	Recency    float64 `json:"recency"` // normalized 1/(1+days); higher is more recent
}

// Scorer computes resurrection scores.
type Scorer struct {
	cfg config.ScoringConfig
}

// NewScorer builds a scorer. The weights are expected to be validated
// already by config.Validate.
func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// IsActive reports whether a customer belongs to the scored population:
// churned, or inactive for longer than the configured threshold.
func (s *Scorer) IsActive(r domain.CustomerRecord) bool {
	return r.Churned || r.Recency > s.cfg.InactiveAfterDays
}

// Score combines normalized components into a value clipped to [0,1].
func (s *Scorer) Score(c Components) float64 {
	w := s.cfg.Weights
	return stat.Clip01(w.Engagement*c.Engagement + w.Monetary*c.Monetary + w.Recency*c.Recency)
}

// ScoreAll marks the active population and scores it. Inactive customers
// keep Active=false and a zero score. Zero-variance inputs are reported to
// diags and contribute the midpoint. Returns a new slice.
func (s *Scorer) ScoreAll(records []domain.CustomerRecord, diags *domain.Diagnostics) []domain.CustomerRecord {
	out := domain.CloneAll(records)

	var eng, mon, rec []float64
	for i := range out {
		out[i].Active = s.IsActive(out[i])
		out[i].Score = 0
		if out[i].Active {
			eng = append(eng, out[i].Engagement)
			mon = append(mon, out[i].MonetaryValue)
			rec = append(rec, inverseRecency(out[i].Recency))
		}
	}
	if len(eng) == 0 {
		diags.Add(stage, domain.DiagNoActive, "no active customers to score")
		return out
	}

	engS, monS, recS := stat.Fit(eng), stat.Fit(mon), stat.Fit(rec)
	for _, f := range []struct {
		name string
		sc   stat.Scaler
	}{{"Engagement", engS}, {"MonetaryValue", monS}, {"Recency", recS}} {
		if f.sc.ZeroVariance() {
			diags.Add(stage, domain.DiagZeroVariance,
				fmt.Sprintf("%s has zero variance across %d active customers; contributing 0.5", f.name, len(eng)))
		}
	}

	for i := range out {
		if !out[i].Active {
			continue
		}
		out[i].Score = s.Score(Components{
			Engagement: engS.Scale(out[i].Engagement),
			Monetary:   monS.Scale(out[i].MonetaryValue),
			Recency:    recS.Scale(inverseRecency(out[i].Recency)),
		})
	}
	return out
}

// inverseRecency maps days since last order onto (0,1]; recent is high.
func inverseRecency(days float64) float64 {
	if days < 0 {
		days = 0
	}
	return 1 / (1 + days)
}
