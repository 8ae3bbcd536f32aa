package domain

// CohortName identifies a primary (rule-based) cohort.
type CohortName string

const (
	CohortPaymentSensitive CohortName = "Payment-sensitive churners"
	CohortHighTenure       CohortName = "High-tenure recent drop"
	CohortPremiumLapsed    CohortName = "Premium engagement lapsed"
	CohortAtRiskHighValue  CohortName = "AtRisk High-Value"
)

// PrimaryCohorts lists the primary cohorts in rule precedence order.
func PrimaryCohorts() []CohortName {
	return []CohortName{
		CohortPaymentSensitive,
		CohortHighTenure,
		CohortPremiumLapsed,
		CohortAtRiskHighValue,
	}
}

// CohortKind distinguishes rule cohorts from clustered ones.
type CohortKind string

const (
	KindPrimary CohortKind = "primary"
	KindMicro   CohortKind = "micro"
)

// CohortStats summarizes one cohort. Primary and micro-cohorts share the
// same shape.
type CohortStats struct {
	Name           string     `json:"name"`
	Kind           CohortKind `json:"kind"`
	MicroID        int        `json:"micro_id,omitempty"`
	Size           int        `json:"size"`
	MeanScore      float64    `json:"mean_score"`
	MeanValue      float64    `json:"mean_value"`
	MeanRecency    float64    `json:"mean_recency"`
	MeanTenure     float64    `json:"mean_tenure"`
	MeanEngagement float64    `json:"mean_engagement"`
	Members        []string   `json:"members"` // score descending, then id
}

// Diagnostic is a non-fatal warning raised by a pipeline stage.
type Diagnostic struct {
	Stage   string `json:"stage"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	DiagZeroVariance    = "zero_variance"
	DiagClustersClamped = "clusters_clamped"
	DiagEmptyCluster    = "empty_cluster"
	DiagMissingColumn   = "missing_column"
	DiagEmptyCohort     = "empty_cohort"
	DiagNoActive        = "no_active_customers"
)

// Diagnostics collects warnings in emission order.
type Diagnostics struct {
	entries []Diagnostic
}

// Add records a warning.
func (d *Diagnostics) Add(stage, code, message string) {
	if d == nil {
		return
	}
	d.entries = append(d.entries, Diagnostic{Stage: stage, Code: code, Message: message})
}

// Entries returns a copy of the collected warnings.
func (d *Diagnostics) Entries() []Diagnostic {
	if d == nil {
		return nil
	}
	out := make([]Diagnostic, len(d.entries))
	copy(out, d.entries)
	return out
}

// Len returns the number of warnings.
func (d *Diagnostics) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}
