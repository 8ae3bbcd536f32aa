// Package pipeline wires the churn-radar stages together: clean, engineer,
// score, assign and project ROI. A run is synchronous and deterministic for
// a given table, configuration and seed; it never touches the network.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/churn-radar/internal/config"
	"github.com/ignite/churn-radar/internal/datanorm"
	"github.com/ignite/churn-radar/internal/domain"
	"github.com/ignite/churn-radar/internal/features"
	"github.com/ignite/churn-radar/internal/financial"
	"github.com/ignite/churn-radar/internal/pkg/logger"
	"github.com/ignite/churn-radar/internal/scoring"
	"github.com/ignite/churn-radar/internal/segmentation"
)

// ErrInvalidConfig is returned by New when the configuration is unusable.
var ErrInvalidConfig = errors.New("invalid pipeline configuration")

// Stage names a pipeline step.
type Stage string

const (
	StageClean    Stage = "clean"
	StageFeatures Stage = "features"
	StageScore    Stage = "scoring"
	StageAssign   Stage = "segmentation"
	StageROI      Stage = "roi"
)

// Stages lists every step in execution order.
func Stages() []Stage {
	return []Stage{StageClean, StageFeatures, StageScore, StageAssign, StageROI}
}

// StageEvent is emitted after each stage finishes.
type StageEvent struct {
	Stage   Stage
	Index   int // 1-based
	Total   int
	Elapsed time.Duration
}

// Pipeline runs the full cohort analysis for one configuration.
type Pipeline struct {
	cfg        *config.Config
	cfgJSON    []byte
	cleaner    *datanorm.Cleaner
	scorer     *scoring.Scorer
	assigner   *segmentation.Assigner
	calculator *financial.Calculator

	// OnStage, when set, is called after every completed stage.
	OnStage func(StageEvent)
	// Now stamps results; defaults to time.Now.
	Now func() time.Time
}

// New validates cfg and builds a pipeline. The configuration is captured
// by value; later edits to cfg do not affect the pipeline.
func New(cfg *config.Config) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cleaner, err := datanorm.NewCleaner(cfg.Ingest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	snapshot := *cfg
	return &Pipeline{
		cfg:        &snapshot,
		cfgJSON:    cfgJSON,
		cleaner:    cleaner,
		scorer:     scoring.NewScorer(cfg.Scoring),
		assigner:   segmentation.NewAssigner(cfg.Cohorts, cfg.MicroCohorts),
		calculator: financial.NewCalculator(cfg.ROI),
		Now:        time.Now,
	}, nil
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() *config.Config { return p.cfg }

// Calculator exposes the configured ROI calculator for what-if projections.
func (p *Pipeline) Calculator() *financial.Calculator { return p.calculator }

// Fingerprint identifies a (table, configuration) pair. Identical inputs
// always produce identical cohorts and ROI, so the fingerprint doubles as
// a cache key.
func (p *Pipeline) Fingerprint(t datanorm.Table) string {
	h := sha256.New()
	// WriteCSV into a hash cannot fail
	_ = datanorm.WriteCSV(h, t)
	h.Write([]byte{0})
	h.Write(p.cfgJSON)
	return hex.EncodeToString(h.Sum(nil))
}

// Run executes every stage over t. A DataFormatError aborts the run with a
// nil result. An InvalidAssumptionError only disables the ROI stage: the
// result is returned with ROI nil and ROIErr set.
func (p *Pipeline) Run(ctx context.Context, t datanorm.Table) (*Result, error) {
	res := &Result{
		RunID:       uuid.New().String(),
		Fingerprint: p.Fingerprint(t),
		GeneratedAt: p.Now().UTC(),
	}
	diags := &domain.Diagnostics{}
	logger.Info("pipeline run started", "run_id", res.RunID, "rows", t.Len())

	tr := &tracker{onStage: p.OnStage, total: len(Stages())}

	// Clean
	tr.start()
	records, summary, err := p.cleaner.Clean(t)
	if err != nil {
		logger.Error("pipeline clean failed", "run_id", res.RunID, "error", err)
		return nil, err
	}
	for _, col := range summary.MissingColumns {
		diags.Add(string(StageClean), domain.DiagMissingColumn,
			fmt.Sprintf("column %s absent or entirely missing; imputed 0", col))
	}
	res.Summary = summary
	tr.done(StageClean)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Features
	tr.start()
	records = features.Engineer(records, p.cfg.Features)
	tr.done(StageFeatures)

	// Score
	tr.start()
	records = p.scorer.ScoreAll(records, diags)
	tr.done(StageScore)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Assign
	tr.start()
	assignment := p.assigner.Assign(records, diags)
	res.Customers = assignment.Records
	res.Primary = assignment.Primary
	res.Micro = assignment.Micro
	res.Rules = assignment.Rules
	for _, r := range res.Customers {
		if r.Active {
			res.ActiveCustomers++
		}
	}
	tr.done(StageAssign)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ROI
	tr.start()
	cohorts := res.Primary
	if p.cfg.ROI.IncludeMicro {
		cohorts = append(append([]domain.CohortStats{}, res.Primary...), res.Micro...)
	}
	report, err := p.calculator.Build(cohorts)
	if err != nil {
		var iae *financial.InvalidAssumptionError
		if !errors.As(err, &iae) {
			return nil, fmt.Errorf("roi: %w", err)
		}
		res.roiErr = iae
		res.ROIError = iae.Error()
		logger.Warn("roi stage disabled", "run_id", res.RunID, "error", iae)
	} else {
		res.ROI = report
	}
	tr.done(StageROI)

	res.Diagnostics = diags.Entries()
	for _, d := range res.Diagnostics {
		logger.Warn("pipeline diagnostic", "run_id", res.RunID, "stage", d.Stage, "code", d.Code, "message", d.Message)
	}
	logger.Info("pipeline run complete",
		"run_id", res.RunID,
		"rows_out", summary.RowsOut,
		"active", res.ActiveCustomers,
		"micro_cohorts", len(res.Micro),
		"roi_available", res.ROI != nil,
	)
	return res, nil
}

type tracker struct {
	onStage func(StageEvent)
	total   int
	index   int
	began   time.Time
}

func (t *tracker) start() { t.began = time.Now() }

func (t *tracker) done(s Stage) {
	t.index++
	elapsed := time.Since(t.began)
	logger.Debug("pipeline stage complete", "stage", string(s), "duration_ms", elapsed.Milliseconds())
	if t.onStage != nil {
		t.onStage(StageEvent{Stage: s, Index: t.index, Total: t.total, Elapsed: elapsed})
	}
}
