// Package segmentation groups scored customers into reactivation cohorts:
// primary cohorts from an ordered list of business rules, and micro-cohorts
// from deterministic k-means clustering.
package segmentation

import (
	"github.com/ignite/churn-radar/internal/config"
	"github.com/ignite/churn-radar/internal/domain"
)

// ==========================================
// FIELDS
// ==========================================

// Field names a customer attribute a condition can test.
type Field string

const (
	FieldRecency    Field = "recency"
	FieldTenure     Field = "tenure"
	FieldEngagement Field = "engagement"
	FieldMonetary   Field = "monetary_value"
	FieldCoupon     Field = "coupon_used"
	FieldCashback   Field = "cashback_amount"
	FieldAtRisk     Field = "at_risk"
)

// Value reads the field from a record. Boolean fields read as 0 or 1.
func (f Field) Value(r domain.CustomerRecord) float64 {
	switch f {
	case FieldRecency:
		return r.Recency
	case FieldTenure:
		return r.Tenure
	case FieldEngagement:
		return r.Engagement
	case FieldMonetary:
		return r.MonetaryValue
	case FieldCoupon:
		return r.CouponUsed
	case FieldCashback:
		return r.CashbackAmount
	case FieldAtRisk:
		if r.AtRisk() {
			return 1
		}
	}
	return 0
}

// ==========================================
// OPERATORS
// ==========================================

// Operator represents a comparison operator
type Operator string

const (
	OpGte     Operator = "gte"
	OpLte     Operator = "lte"
	OpBetween Operator = "between" // inclusive unless the window sets MaxExclusive
	OpIsTrue  Operator = "is_true"
)

// ==========================================
// CONDITIONS AND RULES
// ==========================================

// Condition tests one field. Threshold applies to gte/lte, Window to between.
type Condition struct {
	Field     Field            `json:"field"`
	Operator  Operator         `json:"operator"`
	Threshold config.Threshold `json:"threshold"`
	Window    config.Window     `json:"window"`
}

// RuleKind tags each primary rule variant.
type RuleKind string

const (
	RulePaymentSensitive RuleKind = "payment_sensitive"
	RuleHighTenure       RuleKind = "high_tenure"
	RulePremiumLapsed    RuleKind = "premium_lapsed"
	RuleAtRiskHighValue  RuleKind = "at_risk_high_value"
)

// Rule assigns customers to a primary cohort. Every AllOf condition must
// hold, and when AnyOf is non-empty at least one of its conditions too.
type Rule struct {
	Cohort domain.CohortName `json:"cohort"`
	Kind   RuleKind          `json:"kind"`
	AllOf  []Condition       `json:"all_of"`
	AnyOf  []Condition       `json:"any_of,omitempty"`
}

// DefaultRules builds the primary rule list in precedence order.
func DefaultRules(cfg config.CohortConfig) []Rule {
	return []Rule{
		{
			Cohort: domain.CohortPaymentSensitive,
			Kind:   RulePaymentSensitive,
			AnyOf: []Condition{
				{Field: FieldCoupon, Operator: OpGte, Threshold: cfg.PaymentSensitive.Coupon},
				{Field: FieldCashback, Operator: OpGte, Threshold: cfg.PaymentSensitive.Cashback},
			},
			AllOf: []Condition{
				{Field: FieldRecency, Operator: OpBetween, Window: cfg.PaymentSensitive.Recency},
			},
		},
		{
			Cohort: domain.CohortHighTenure,
			Kind:   RuleHighTenure,
			AllOf: []Condition{
				{Field: FieldTenure, Operator: OpGte, Threshold: cfg.HighTenure.MinTenure},
				{Field: FieldRecency, Operator: OpBetween, Window: cfg.HighTenure.Recency},
			},
		},
		{
			Cohort: domain.CohortPremiumLapsed,
			Kind:   RulePremiumLapsed,
			AllOf: []Condition{
				{Field: FieldEngagement, Operator: OpGte, Threshold: cfg.PremiumLapsed.Engagement},
				{Field: FieldRecency, Operator: OpBetween, Window: cfg.PremiumLapsed.Recency},
			},
		},
		{
			Cohort: domain.CohortAtRiskHighValue,
			Kind:   RuleAtRiskHighValue,
			AllOf: []Condition{
				{Field: FieldMonetary, Operator: OpGte, Threshold: cfg.AtRiskHighValue.MinValue},
				{Field: FieldAtRisk, Operator: OpIsTrue},
			},
		},
	}
}
