package runs

import (
	"context"
	"fmt"

	"github.com/ignite/churn-radar/internal/pipeline"
	"github.com/ignite/churn-radar/internal/pkg/logger"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Service records pipeline runs.
type Service struct {
	repo Repository
}

// NewService creates a run-history service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Summarize condenses a pipeline result.
func Summarize(res *pipeline.Result) *Summary {
	s := &Summary{
		ID:              res.RunID,
		Fingerprint:     res.Fingerprint,
		ActiveCustomers: res.ActiveCustomers,
		MicroCohorts:    len(res.Micro),
		CohortSizes:     make(map[string]int, len(res.Primary)),
		Diagnostics:     len(res.Diagnostics),
		ROIAvailable:    res.ROI != nil,
		CreatedAt:       res.GeneratedAt,
	}
	if res.Summary != nil {
		s.Rows = res.Summary.RowsOut
	}
	for _, c := range res.Primary {
		s.CohortSizes[c.Name] = c.Size
		if c.Size > 0 {
			s.PrimaryCohorts++
		}
	}
	if res.ROI != nil {
		s.NetProfit = res.ROI.Waterfall.NetProfit
	}
	return s
}

// Record summarizes and saves a result.
func (s *Service) Record(ctx context.Context, res *pipeline.Result) (*Summary, error) {
	sum := Summarize(res)
	if err := s.repo.Save(ctx, sum); err != nil {
		return nil, fmt.Errorf("record run %s: %w", sum.ID, err)
	}
	logger.Info("run recorded", "run_id", sum.ID, "rows", sum.Rows, "roi_available", sum.ROIAvailable)
	return sum, nil
}

// Get returns a single run.
func (s *Service) Get(ctx context.Context, id string) (*Summary, error) {
	return s.repo.Get(ctx, id)
}

// List returns recent runs, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return s.repo.List(ctx, limit)
}
