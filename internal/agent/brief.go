// Package agent prepares cohort briefs for outreach copy and drafts copy
// from them, either through Bedrock or from built-in templates. Briefs
// carry cohort statistics and member counts only, never customer rows.
package agent

import (
	"math"

	"github.com/ignite/churn-radar/internal/activation"
	"github.com/ignite/churn-radar/internal/domain"
	"github.com/ignite/churn-radar/internal/financial"
	"github.com/ignite/churn-radar/internal/pipeline"
)

// Brief is the input handed to a Copywriter.
type Brief struct {
	Cohort         string               `json:"cohort"`
	Kind           domain.CohortKind    `json:"kind"`
	Archetype      activation.Archetype `json:"archetype"`
	Playbook       activation.Playbook  `json:"playbook"`
	Who            string               `json:"who,omitempty"`
	Say            string               `json:"say,omitempty"`
	Size           int                  `json:"size"`
	MeanScore      float64              `json:"mean_score"`
	MeanValue      float64              `json:"mean_value"`
	MeanRecency    float64              `json:"mean_recency"`
	MeanTenure     float64              `json:"mean_tenure"`
	MeanEngagement float64              `json:"mean_engagement"`
	Projection     *domain.Projection   `json:"projection,omitempty"`
}

// NewBrief builds a brief from an exported cohort view. report may be nil
// when ROI was unavailable for the run.
func NewBrief(view pipeline.CohortView, report *financial.Report) Brief {
	pb, _ := activation.PlaybookFor(view.Archetype)
	b := Brief{
		Cohort:         view.Name,
		Kind:           view.Kind,
		Archetype:      view.Archetype,
		Playbook:       pb,
		Size:           view.Size,
		MeanScore:      view.MeanScore,
		MeanValue:      view.MeanValue,
		MeanRecency:    view.MeanRecency,
		MeanTenure:     view.MeanTenure,
		MeanEngagement: view.MeanEngagement,
	}
	for _, p := range activation.CohortProfiles() {
		if string(p.Cohort) == view.Name && view.Kind != domain.KindMicro {
			b.Who, b.Say = p.Who, p.Say
		}
	}
	if report != nil {
		for _, c := range report.Cohorts {
			if c.Cohort == view.Name && c.Kind == view.Kind {
				proj := c.Projection
				b.Projection = &proj
			}
		}
	}
	return b
}

// BriefsFor builds a brief for every cohort of a run.
func BriefsFor(res *pipeline.Result) []Brief {
	views := res.ExportView()
	out := make([]Brief, 0, len(views))
	for _, v := range views {
		out = append(out, NewBrief(v, res.ROI))
	}
	return out
}

// bindings flattens the brief for the template engine.
func (b Brief) bindings() map[string]any {
	m := map[string]any{
		"cohort":          b.Cohort,
		"kind":            string(b.Kind),
		"archetype":       string(b.Archetype),
		"who":             b.Who,
		"say":             b.Say,
		"size":            b.Size,
		"mean_score":      b.MeanScore,
		"mean_value":      b.MeanValue,
		"mean_recency":    b.MeanRecency,
		"mean_tenure":     math.Round(b.MeanTenure*10) / 10,
		"mean_engagement": b.MeanEngagement,
		"playbook": map[string]any{
			"display_name":  b.Playbook.DisplayName,
			"what_to_say":   b.Playbook.WhatToSay,
			"what_to_avoid": b.Playbook.WhatToAvoid,
			"tone":          b.Playbook.Tone,
			"reason":        b.Playbook.Reason,
			"keywords":      b.Playbook.Keywords,
		},
		"rules": map[string]any{
			"subject_max_chars":  SubjectMaxChars,
			"email_max_words":    EmailMaxWords,
			"whatsapp_min_words": WhatsAppMinWords,
			"whatsapp_max_words": WhatsAppMaxWords,
			"push_min_words":     PushMinWords,
			"push_max_words":     PushMaxWords,
			"banned":             BannedPhrases(),
		},
	}
	if b.Projection != nil {
		m["projection"] = map[string]any{
			"expected_reactivated": b.Projection.ExpectedReactivated,
			"expected_revenue":     b.Projection.ExpectedRevenue,
			"net_profit":           b.Projection.NetProfit,
			"romi":                 b.Projection.ROMI,
		}
	}
	return m
}
