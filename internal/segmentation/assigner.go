package segmentation

import (
	"fmt"
	"sort"

	"github.com/ignite/churn-radar/internal/config"
	"github.com/ignite/churn-radar/internal/domain"
	"github.com/ignite/churn-radar/internal/pkg/stat"
)

const stage = "segmentation"

// MicroCohortName formats the reporting name of a cluster.
func MicroCohortName(id int) string {
	return fmt.Sprintf("MicroCohort_%d", id)
}

// Assignment is the output of the cohort stage.
type Assignment struct {
	Records []domain.CustomerRecord `json:"-"`
	Primary []domain.CohortStats    `json:"primary"` // rule order, empty cohorts included
	Micro   []domain.CohortStats    `json:"micro"`   // ascending cluster id, empty clusters dropped
	Rules   []string                `json:"rules"`   // resolved rule descriptions
}

// Assigner places scored customers into cohorts.
type Assigner struct {
	rules []Rule
	micro config.MicroCohortConfig
}

// NewAssigner builds an assigner with the default rule list.
func NewAssigner(cohorts config.CohortConfig, micro config.MicroCohortConfig) *Assigner {
	return NewAssignerWithRules(DefaultRules(cohorts), micro)
}

// NewAssignerWithRules builds an assigner over an explicit rule list.
func NewAssignerWithRules(rules []Rule, micro config.MicroCohortConfig) *Assigner {
	return &Assigner{rules: rules, micro: micro}
}

// Assign evaluates the primary rules (first match wins) and clusters the
// active population into micro-cohorts. Inactive customers are never
// assigned. Returns new records; the input is untouched.
func (a *Assigner) Assign(records []domain.CustomerRecord, diags *domain.Diagnostics) *Assignment {
	out := domain.CloneAll(records)

	var activeIdx []int
	for i := range out {
		out[i].PrimaryCohort = ""
		out[i].MicroCohort = -1
		if out[i].Active {
			activeIdx = append(activeIdx, i)
		}
	}
	active := make([]domain.CustomerRecord, len(activeIdx))
	for j, i := range activeIdx {
		active[j] = out[i]
	}

	compiled := Compile(a.rules, active)
	for _, i := range activeIdx {
		if cohort, ok := FirstMatch(compiled, out[i]); ok {
			out[i].PrimaryCohort = cohort
		}
	}

	result := &Assignment{Records: out}
	for _, rule := range compiled {
		result.Rules = append(result.Rules, rule.Describe())
		var members []domain.CustomerRecord
		for _, i := range activeIdx {
			if out[i].PrimaryCohort == rule.Cohort {
				members = append(members, out[i])
			}
		}
		if len(members) == 0 {
			diags.Add(stage, domain.DiagEmptyCohort, fmt.Sprintf("%s matched no customers", rule.Cohort))
		}
		result.Primary = append(result.Primary, Summarize(string(rule.Cohort), domain.KindPrimary, members))
	}

	if len(activeIdx) == 0 {
		return result
	}

	labels := a.cluster(active, diags)
	groups := make(map[int][]domain.CustomerRecord)
	for j, i := range activeIdx {
		out[i].MicroCohort = labels[j]
		groups[labels[j]] = append(groups[labels[j]], out[i])
	}
	ids := make([]int, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		s := Summarize(MicroCohortName(id), domain.KindMicro, groups[id])
		s.MicroID = id
		result.Micro = append(result.Micro, s)
	}
	return result
}

// cluster runs k-means over min-max normalized {engagement, value, recency,
// tenure} and returns a label per active customer.
func (a *Assigner) cluster(active []domain.CustomerRecord, diags *domain.Diagnostics) []int {
	k := a.micro.Clusters
	if k > len(active) {
		diags.Add(stage, domain.DiagClustersClamped,
			fmt.Sprintf("requested %d clusters for %d active customers; using %d", k, len(active), len(active)))
		k = len(active)
	}

	fields := []Field{FieldEngagement, FieldMonetary, FieldRecency, FieldTenure}
	scalers := make([]stat.Scaler, len(fields))
	for d, f := range fields {
		col := make([]float64, len(active))
		for i, r := range active {
			col[i] = f.Value(r)
		}
		scalers[d] = stat.Fit(col)
	}
	points := make([][]float64, len(active))
	for i, r := range active {
		p := make([]float64, len(fields))
		for d, f := range fields {
			p[d] = scalers[d].Scale(f.Value(r))
		}
		points[i] = p
	}

	km := KMeans{K: k, Seed: a.micro.Seed, Restarts: a.micro.Restarts, MaxIterations: a.micro.MaxIterations}
	fit := km.Fit(points)

	used := make(map[int]bool, k)
	for _, l := range fit.Labels {
		used[l] = true
	}
	if dropped := k - len(used); dropped > 0 {
		diags.Add(stage, domain.DiagEmptyCluster, fmt.Sprintf("%d of %d clusters ended empty and were dropped", dropped, k))
	}
	return fit.Labels
}
