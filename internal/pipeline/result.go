package pipeline

import (
	"time"

	"github.com/ignite/churn-radar/internal/activation"
	"github.com/ignite/churn-radar/internal/datanorm"
	"github.com/ignite/churn-radar/internal/domain"
	"github.com/ignite/churn-radar/internal/financial"
)

// Result is everything a run produced.
type Result struct {
	RunID           string                    `json:"run_id"`
	Fingerprint     string                    `json:"fingerprint"`
	GeneratedAt     time.Time                 `json:"generated_at"`
	Summary         *datanorm.CleaningSummary `json:"summary"`
	ActiveCustomers int                       `json:"active_customers"`
	Customers       []domain.CustomerRecord   `json:"customers"`
	Primary         []domain.CohortStats      `json:"primary"`
	Micro           []domain.CohortStats      `json:"micro"`
	Rules           []string                  `json:"rules"`
	ROI             *financial.Report         `json:"roi,omitempty"`
	ROIError        string                    `json:"roi_error,omitempty"`
	Diagnostics     []domain.Diagnostic       `json:"diagnostics"`

	roiErr *financial.InvalidAssumptionError
}

// ROIErr returns the assumption error that disabled the ROI stage, if any.
// Results decoded from JSON only carry the message in ROIError.
func (r *Result) ROIErr() *financial.InvalidAssumptionError {
	return r.roiErr
}

// Cohort looks up a primary or micro cohort by name.
func (r *Result) Cohort(name string) (domain.CohortStats, bool) {
	for _, group := range [][]domain.CohortStats{r.Primary, r.Micro} {
		for _, c := range group {
			if c.Name == name {
				return c, true
			}
		}
	}
	return domain.CohortStats{}, false
}

// CohortView is the privacy-filtered shape handed to copy generation:
// cohort statistics and member identifiers, nothing else about a customer.
type CohortView struct {
	domain.CohortStats
	Archetype activation.Archetype `json:"archetype"`
}

// ExportView returns one view per primary cohort followed by every
// micro-cohort.
func (r *Result) ExportView() []CohortView {
	views := make([]CohortView, 0, len(r.Primary)+len(r.Micro))
	for _, group := range [][]domain.CohortStats{r.Primary, r.Micro} {
		for _, c := range group {
			c.Members = append([]string{}, c.Members...)
			views = append(views, CohortView{CohortStats: c, Archetype: activation.ArchetypeOf(c)})
		}
	}
	return views
}
