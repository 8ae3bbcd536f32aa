package domain

// Assumptions are the business inputs of an ROI projection. All values are
// non-negative; ReactivationRate and Margin are fractions in [0,1].
type Assumptions struct {
	ReactivationRate             float64 `json:"reactivation_rate" yaml:"reactivation_rate"`
	AverageOrderValue            float64 `json:"average_order_value" yaml:"average_order_value"`
	Margin                       float64 `json:"margin" yaml:"margin"`
	SendingCostPerContact        float64 `json:"sending_cost_per_contact" yaml:"sending_cost_per_contact"`
	IncentiveCostPerReactivation float64 `json:"incentive_cost_per_reactivation" yaml:"incentive_cost_per_reactivation"`
}

// Projection is the ROI result for one cohort.
type Projection struct {
	CohortSize          int         `json:"cohort_size"`
	ExpectedReactivated int         `json:"expected_reactivated"`
	ExpectedRevenue     float64     `json:"expected_revenue"`
	GrossProfit         float64     `json:"gross_profit"`
	SendingCost         float64     `json:"sending_cost"`
	IncentiveCost       float64     `json:"incentive_cost"`
	TotalCost           float64     `json:"total_cost"`
	NetProfit           float64     `json:"net_profit"`
	ROMI                float64     `json:"romi"` // net profit per unit of spend
	Assumptions         Assumptions `json:"assumptions"`
}
