package scoring

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/churn-radar/internal/config"
	"github.com/ignite/churn-radar/internal/domain"
)

func newTestScorer() *Scorer {
	return NewScorer(config.Default().Scoring)
}

func TestIsActive(t *testing.T) {
	s := newTestScorer() // inactive after 4 days
	tests := []struct {
		name string
		rec  domain.CustomerRecord
		want bool
	}{
		{"churned and recent", domain.CustomerRecord{Churned: true, Recency: 0}, true},
		{"at threshold", domain.CustomerRecord{Recency: 4}, false},
		{"past threshold", domain.CustomerRecord{Recency: 5}, true},
		{"recent buyer", domain.CustomerRecord{Recency: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsActive(tt.rec))
		})
	}
}

func TestScoreAllBoundsAndInactive(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	records := make([]domain.CustomerRecord, 200)
	for i := range records {
		records[i] = domain.CustomerRecord{
			ID:            string(rune('a' + i%26)),
			Churned:       rng.IntN(3) == 0,
			Recency:       float64(rng.IntN(40)),
			Engagement:    rng.Float64() * 8,
			MonetaryValue: rng.Float64() * 900,
		}
	}

	var diags domain.Diagnostics
	out := newTestScorer().ScoreAll(records, &diags)
	require.Len(t, out, len(records))

	for i, r := range out {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
		if !r.Active {
			assert.Zero(t, r.Score)
		}
		assert.False(t, records[i].Active, "input is untouched")
	}
	assert.Zero(t, diags.Len())
}

func TestScoreMonotonicity(t *testing.T) {
	base := []domain.CustomerRecord{
		{ID: "a", Churned: true, Recency: 10, Engagement: 2, MonetaryValue: 100},
		{ID: "b", Churned: true, Recency: 20, Engagement: 5, MonetaryValue: 400},
		{ID: "c", Churned: true, Recency: 5, Engagement: 8, MonetaryValue: 50},
		{ID: "d", Churned: true, Recency: 30, Engagement: 1, MonetaryValue: 900},
	}
	s := newTestScorer()
	before := s.ScoreAll(base, nil)

	bumps := []struct {
		name  string
		apply func(r *domain.CustomerRecord)
	}{
		{"more engagement", func(r *domain.CustomerRecord) { r.Engagement += 1 }},
		{"more value", func(r *domain.CustomerRecord) { r.MonetaryValue += 50 }},
		{"more recent", func(r *domain.CustomerRecord) { r.Recency -= 3 }},
	}
	for _, b := range bumps {
		t.Run(b.name, func(t *testing.T) {
			changed := domain.CloneAll(base)
			// improve a customer that is not the population extreme so the
			// normalization range stays fixed
			b.apply(&changed[0])
			after := s.ScoreAll(changed, nil)
			assert.GreaterOrEqual(t, after[0].Score, before[0].Score)
		})
	}
}

func TestScoreZeroVarianceContributesMidpoint(t *testing.T) {
	records := []domain.CustomerRecord{
		{ID: "a", Churned: true, Recency: 10, Engagement: 3, MonetaryValue: 100},
		{ID: "b", Churned: true, Recency: 10, Engagement: 3, MonetaryValue: 300},
	}
	var diags domain.Diagnostics
	out := newTestScorer().ScoreAll(records, &diags)

	// engagement and recency are flat: 0.40*0.5 + 0.25*0.5 = 0.325
	assert.InDelta(t, 0.325, out[0].Score, 1e-12)
	assert.InDelta(t, 0.325+0.35, out[1].Score, 1e-12)

	entries := diags.Entries()
	require.Len(t, entries, 2)
	for _, d := range entries {
		assert.Equal(t, domain.DiagZeroVariance, d.Code)
	}
}

func TestScoreSingleCustomer(t *testing.T) {
	out := newTestScorer().ScoreAll([]domain.CustomerRecord{{ID: "solo", Churned: true, Recency: 12}}, nil)
	assert.True(t, out[0].Active)
	assert.InDelta(t, 0.5, out[0].Score, 1e-12)
}

func TestScoreNoActiveCustomers(t *testing.T) {
	var diags domain.Diagnostics
	out := newTestScorer().ScoreAll([]domain.CustomerRecord{{ID: "x", Recency: 1}}, &diags)
	assert.False(t, out[0].Active)
	require.Equal(t, 1, diags.Len())
	assert.Equal(t, domain.DiagNoActive, diags.Entries()[0].Code)
	assert.Equal(t, stage, diags.Entries()[0].Stage)
}

func TestScoreClips(t *testing.T) {
	s := newTestScorer()
	assert.Equal(t, 1.0, s.Score(Components{Engagement: 1, Monetary: 1, Recency: 1}))
	assert.Equal(t, 0.0, s.Score(Components{}))
}
