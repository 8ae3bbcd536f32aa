package segmentation

import (
	"fmt"
	"strings"

	"github.com/ignite/churn-radar/internal/domain"
	"github.com/ignite/churn-radar/internal/pkg/stat"
)

// resolvedCondition is a Condition with percentile thresholds replaced by
// concrete values for one population.
type resolvedCondition struct {
	field     Field
	op        Operator
	value     float64
	low, high float64
	highOpen  bool
}

func (c resolvedCondition) matches(r domain.CustomerRecord) bool {
	v := c.field.Value(r)
	switch c.op {
	case OpGte:
		return v >= c.value
	case OpLte:
		return v <= c.value
	case OpBetween:
		if c.highOpen {
			return v >= c.low && v < c.high
		}
		return v >= c.low && v <= c.high
	case OpIsTrue:
		return v != 0
	}
	return false
}

func (c resolvedCondition) String() string {
	switch c.op {
	case OpGte:
		return fmt.Sprintf("%s >= %.2f", c.field, c.value)
	case OpLte:
		return fmt.Sprintf("%s <= %.2f", c.field, c.value)
	case OpBetween:
		if c.highOpen {
			return fmt.Sprintf("%s >= %g and < %g", c.field, c.low, c.high)
		}
		return fmt.Sprintf("%s between %g and %g", c.field, c.low, c.high)
	case OpIsTrue:
		return string(c.field)
	}
	return string(c.field) + " " + string(c.op)
}

// CompiledRule is a Rule bound to one active population.
type CompiledRule struct {
	Rule
	allOf []resolvedCondition
	anyOf []resolvedCondition
}

// Compile resolves every percentile threshold against the population.
func Compile(rules []Rule, population []domain.CustomerRecord) []CompiledRule {
	cache := make(map[Field][]float64)
	column := func(f Field) []float64 {
		if vals, ok := cache[f]; ok {
			return vals
		}
		vals := make([]float64, len(population))
		for i, r := range population {
			vals[i] = f.Value(r)
		}
		cache[f] = vals
		return vals
	}
	resolve := func(conds []Condition) []resolvedCondition {
		out := make([]resolvedCondition, len(conds))
		for i, c := range conds {
			rc := resolvedCondition{field: c.Field, op: c.Operator, value: c.Threshold.Value, low: c.Window.Min, high: c.Window.Max, highOpen: c.Window.MaxExclusive}
			if c.Threshold.IsPercentile() {
				rc.value = stat.Quantile(column(c.Field), c.Threshold.Percentile)
			}
			out[i] = rc
		}
		return out
	}

	compiled := make([]CompiledRule, len(rules))
	for i, r := range rules {
		compiled[i] = CompiledRule{Rule: r, allOf: resolve(r.AllOf), anyOf: resolve(r.AnyOf)}
	}
	return compiled
}

// Matches reports whether the record satisfies the rule.
func (c CompiledRule) Matches(r domain.CustomerRecord) bool {
	for _, cond := range c.allOf {
		if !cond.matches(r) {
			return false
		}
	}
	if len(c.anyOf) == 0 {
		return true
	}
	for _, cond := range c.anyOf {
		if cond.matches(r) {
			return true
		}
	}
	return false
}

// Describe renders the resolved rule for audit logs and the API.
func (c CompiledRule) Describe() string {
	var parts []string
	if len(c.anyOf) > 0 {
		alts := make([]string, len(c.anyOf))
		for i, cond := range c.anyOf {
			alts[i] = cond.String()
		}
		parts = append(parts, "("+strings.Join(alts, " or ")+")")
	}
	for _, cond := range c.allOf {
		parts = append(parts, cond.String())
	}
	return fmt.Sprintf("%s: %s", c.Cohort, strings.Join(parts, " and "))
}

// FirstMatch returns the cohort of the first matching rule.
func FirstMatch(rules []CompiledRule, r domain.CustomerRecord) (domain.CohortName, bool) {
	for _, rule := range rules {
		if rule.Matches(r) {
			return rule.Cohort, true
		}
	}
	return "", false
}
