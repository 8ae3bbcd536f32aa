package domain

// Status buckets a customer by days since last order.
type Status string

const (
	StatusActive  Status = "Active"
	StatusAtRisk  Status = "AtRisk"
	StatusChurned Status = "Churned"
)

// CustomerRecord is one cleaned customer row. Raw fields are filled by
// ingestion, derived fields by feature engineering, and the scoring and
// cohort fields by the later stages. Each stage returns new records rather
// than mutating its input.
type CustomerRecord struct {
	ID      string `json:"customer_id"`
	Churned bool   `json:"churned"`

	Tenure            float64 `json:"tenure"`
	Recency           float64 `json:"recency"` // days since last order
	OrderCount        float64 `json:"order_count"`
	CashbackAmount    float64 `json:"cashback_amount"`
	CouponUsed        float64 `json:"coupon_used"`
	OrderAmountHike   float64 `json:"order_amount_hike"`
	HourSpendOnApp    float64 `json:"hour_spend_on_app"`
	DevicesRegistered float64 `json:"devices_registered"`
	SatisfactionScore float64 `json:"satisfaction_score"`
	Complaints        float64 `json:"complaints"`
	CityTier          float64 `json:"city_tier"`
	WarehouseToHome   float64 `json:"warehouse_to_home"`

	LoginDevice   string `json:"login_device"`
	PaymentMode   string `json:"payment_mode"`
	OrderCategory string `json:"order_category"`
	MaritalStatus string `json:"marital_status"`
	Gender        string `json:"gender"`

	// Extra carries unmapped input columns through untouched.
	Extra map[string]string `json:"extra,omitempty"`

	// Derived
	MonetaryValue        float64 `json:"monetary_value"`
	Engagement           float64 `json:"engagement"`
	SatisfactionAdjusted float64 `json:"satisfaction_adjusted"`
	Status               Status  `json:"status"`
	ChurnRisk            float64 `json:"churn_risk"`  // 0-10
	ValueScore           float64 `json:"value_score"` // 0-10

	// Scoring
	Active bool    `json:"active"`
	Score  float64 `json:"score"`

	// Cohorts. MicroCohort is -1 when the customer was not clustered.
	PrimaryCohort CohortName `json:"primary_cohort,omitempty"`
	MicroCohort   int        `json:"micro_cohort"`
}

// AtRisk reports whether the churn-risk flag is set.
func (c CustomerRecord) AtRisk() bool {
	return c.Status == StatusAtRisk
}

// Clone returns a copy that does not share the Extra map.
func (c CustomerRecord) Clone() CustomerRecord {
	out := c
	if c.Extra != nil {
		out.Extra = make(map[string]string, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// CloneAll copies a slice of records.
func CloneAll(records []CustomerRecord) []CustomerRecord {
	out := make([]CustomerRecord, len(records))
	for i := range records {
		out[i] = records[i].Clone()
	}
	return out
}
