package runs

import (
	"context"
	"time"
)

// Summary is the persisted record of one run.
type Summary struct {
	ID              string         `json:"id"`
	Fingerprint     string         `json:"fingerprint"`
	Rows            int            `json:"rows"`
	ActiveCustomers int            `json:"active_customers"`
	PrimaryCohorts  int            `json:"primary_cohorts"` // non-empty primary cohorts
	MicroCohorts    int            `json:"micro_cohorts"`
	CohortSizes     map[string]int `json:"cohort_sizes"`
	Diagnostics     int            `json:"diagnostics"`
	ROIAvailable    bool           `json:"roi_available"`
	NetProfit       float64        `json:"net_profit"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Repository defines the data access contract for run history.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Save inserts a run. Saving an existing id replaces it.
	Save(ctx context.Context, s *Summary) error

	// Get returns a single run. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*Summary, error)

	// List returns the most recent runs first.
	List(ctx context.Context, limit int) ([]Summary, error)
}
