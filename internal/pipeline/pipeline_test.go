package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/churn-radar/internal/activation"
	"github.com/ignite/churn-radar/internal/config"
	"github.com/ignite/churn-radar/internal/datanorm"
	"github.com/ignite/churn-radar/internal/domain"
	"github.com/ignite/churn-radar/internal/financial"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// tenCustomers builds a table where c00, c03, c06 and c09 are the only
// payment-sensitive customers and nobody matches a later rule.
func tenCustomers(t *testing.T) datanorm.Table {
	t.Helper()
	var b strings.Builder
	b.WriteString("CustomerID,Churn,Tenure,DaySinceLastOrder,CouponUsed,CashbackAmount,HourSpendOnApp\n")
	for i := 0; i < 10; i++ {
		recency, coupon := 2, 0
		if i%3 == 0 {
			recency, coupon = 10, 5
		}
		fmt.Fprintf(&b, "c%02d,1,1,%d,%d,100,%d\n", i, recency, coupon, i)
	}
	tbl, err := datanorm.ReadCSV(strings.NewReader(b.String()))
	require.NoError(t, err)
	return tbl
}

func newTestPipeline(t *testing.T, cfg *config.Config) *Pipeline {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	p, err := New(cfg)
	require.NoError(t, err)
	p.Now = func() time.Time { return fixedNow }
	return p
}

func TestRunEndToEnd(t *testing.T) {
	res, err := newTestPipeline(t, nil).Run(context.Background(), tenCustomers(t))
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.Fingerprint, 64)
	assert.Equal(t, fixedNow, res.GeneratedAt)
	assert.Equal(t, 10, res.Summary.RowsOut)
	assert.Equal(t, 10, res.ActiveCustomers)

	require.Len(t, res.Primary, 4)
	ps := res.Primary[0]
	assert.Equal(t, string(domain.CohortPaymentSensitive), ps.Name)
	assert.ElementsMatch(t, []string{"c00", "c03", "c06", "c09"}, ps.Members)
	for _, other := range res.Primary[1:] {
		assert.Zero(t, other.Size, other.Name)
	}

	for _, c := range res.Customers {
		assert.GreaterOrEqual(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 1.0)
		assert.GreaterOrEqual(t, c.MicroCohort, 0)
	}

	// 10 active customers cannot fill 100 clusters
	var codes []string
	for _, d := range res.Diagnostics {
		codes = append(codes, d.Code)
	}
	assert.Contains(t, codes, domain.DiagClustersClamped)
	assert.Contains(t, codes, domain.DiagMissingColumn)

	require.NotNil(t, res.ROI)
	assert.Nil(t, res.ROIErr())
	assert.Empty(t, res.ROIError)
	assert.Len(t, res.ROI.Cohorts, 4, "micro-cohorts are excluded unless requested")
	assert.Equal(t, 1, res.ROI.Waterfall.Cohorts)
	assert.Equal(t, 4, res.ROI.Waterfall.Customers)
	assert.Zero(t, res.ROI.Waterfall.ExpectedReactivated, "floor(4 * 0.08)")
	assert.InDelta(t, 1.0, res.ROI.Waterfall.SendingCost, 1e-9)
	assert.InDelta(t, -1.0, res.ROI.Waterfall.NetProfit, 1e-9)
}

func TestRunUsesConfiguredROIDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configContent := `
roi:
  defaults:
    reactivation_rate: 0
    sending_cost_per_contact: 5
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))
	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	res, err := newTestPipeline(t, cfg).Run(context.Background(), tenCustomers(t))
	require.NoError(t, err)
	require.NotNil(t, res.ROI)

	assert.Equal(t, 4, res.ROI.Waterfall.Customers)
	assert.Zero(t, res.ROI.Waterfall.ExpectedReactivated)
	assert.InDelta(t, 20.0, res.ROI.Waterfall.SendingCost, 1e-9)
	assert.InDelta(t, -20.0, res.ROI.Waterfall.NetProfit, 1e-9)
}

func TestRunIsIdempotent(t *testing.T) {
	p := newTestPipeline(t, nil)
	tbl := tenCustomers(t)

	first, err := p.Run(context.Background(), tbl)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), tbl)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Customers, second.Customers)
	assert.Equal(t, first.Primary, second.Primary)
	assert.Equal(t, first.Micro, second.Micro)
	assert.Equal(t, first.ROI, second.ROI)
	assert.Equal(t, first.Diagnostics, second.Diagnostics)
}

func TestFingerprintTracksConfig(t *testing.T) {
	tbl := tenCustomers(t)
	base := newTestPipeline(t, nil).Fingerprint(tbl)

	cfg := config.Default()
	cfg.MicroCohorts.Seed = 7
	assert.NotEqual(t, base, newTestPipeline(t, cfg).Fingerprint(tbl))

	tbl.Rows[0][3] = "11"
	assert.NotEqual(t, base, newTestPipeline(t, nil).Fingerprint(tbl))
}

func TestRunMissingIdentifier(t *testing.T) {
	tbl, err := datanorm.ReadCSV(strings.NewReader("Churn,Tenure\n1,4\n"))
	require.NoError(t, err)

	res, err := newTestPipeline(t, nil).Run(context.Background(), tbl)
	assert.Nil(t, res)

	var dfe *datanorm.DataFormatError
	require.True(t, errors.As(err, &dfe))
	assert.Equal(t, datanorm.ColCustomerID, dfe.Column)
}

func TestRunInvalidAssumptionDisablesROI(t *testing.T) {
	cfg := config.Default()
	bad := cfg.ROI.AssumptionsFor(string(domain.CohortHighTenure))
	bad.ReactivationRate = 1.5
	cfg.ROI.Cohorts[string(domain.CohortHighTenure)] = bad

	res, err := newTestPipeline(t, cfg).Run(context.Background(), tenCustomers(t))
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Nil(t, res.ROI)
	require.NotNil(t, res.ROIErr())
	assert.Equal(t, string(domain.CohortHighTenure), res.ROIErr().Cohort)
	assert.NotEmpty(t, res.ROIError)
	assert.Len(t, res.Primary, 4, "cohorts are still reported")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Scoring.Weights.Engagement = 0.9

	_, err := New(cfg)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = New(nil)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	cfg = config.Default()
	cfg.Ingest.ExtraAliases = map[string]string{"foo": "NotAColumn"}
	_, err = New(cfg)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestRunReportsStages(t *testing.T) {
	p := newTestPipeline(t, nil)
	var seen []Stage
	p.OnStage = func(ev StageEvent) {
		assert.Equal(t, len(Stages()), ev.Total)
		assert.Equal(t, len(seen)+1, ev.Index)
		seen = append(seen, ev.Stage)
	}

	_, err := p.Run(context.Background(), tenCustomers(t))
	require.NoError(t, err)
	assert.Equal(t, Stages(), seen)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTestPipeline(t, nil).Run(ctx, tenCustomers(t))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunIncludeMicroROI(t *testing.T) {
	cfg := config.Default()
	cfg.ROI.IncludeMicro = true
	cfg.MicroCohorts.Clusters = 3

	res, err := newTestPipeline(t, cfg).Run(context.Background(), tenCustomers(t))
	require.NoError(t, err)
	require.NotNil(t, res.ROI)
	assert.Len(t, res.ROI.Cohorts, 4+len(res.Micro))
	assert.Equal(t, domain.KindMicro, res.ROI.Cohorts[len(res.ROI.Cohorts)-1].Kind)
}

func TestExportView(t *testing.T) {
	res, err := newTestPipeline(t, nil).Run(context.Background(), tenCustomers(t))
	require.NoError(t, err)

	views := res.ExportView()
	require.Len(t, views, len(res.Primary)+len(res.Micro))
	assert.Equal(t, string(domain.CohortPaymentSensitive), views[0].Name)
	assert.Equal(t, activation.ArchetypeValueSensitive, views[0].Archetype)
	assert.Equal(t, activation.ArchetypeLoyalist, views[1].Archetype)
	for _, v := range views[len(res.Primary):] {
		assert.Equal(t, domain.KindMicro, v.Kind)
	}

	// views do not alias the result
	views[0].Members[0] = "changed"
	assert.NotEqual(t, "changed", res.Primary[0].Members[0])

	c, ok := res.Cohort(string(domain.CohortPaymentSensitive))
	require.True(t, ok)
	assert.Equal(t, 4, c.Size)
	_, ok = res.Cohort("nope")
	assert.False(t, ok)
}

func TestROIErrIsTyped(t *testing.T) {
	res := &Result{roiErr: &financial.InvalidAssumptionError{Field: "margin", Value: 2, Reason: "must be within [0,1]"}}
	var err error = res.ROIErr()
	var iae *financial.InvalidAssumptionError
	assert.True(t, errors.As(err, &iae))
}
