package activation

import "github.com/ignite/churn-radar/internal/domain"

var cohortArchetypes = map[domain.CohortName]Archetype{
	domain.CohortPaymentSensitive: ArchetypeValueSensitive,
	domain.CohortHighTenure:       ArchetypeLoyalist,
	domain.CohortPremiumLapsed:    ArchetypePremium,
	domain.CohortAtRiskHighValue:  ArchetypeAtRisk,
}

// ArchetypeFor returns the archetype of a primary cohort.
func ArchetypeFor(cohort domain.CohortName) (Archetype, bool) {
	a, ok := cohortArchetypes[cohort]
	return a, ok
}

// ClassifyStats picks an archetype for a cohort without a fixed mapping,
// such as a micro-cohort, from its statistics.
func ClassifyStats(s domain.CohortStats) Archetype {
	switch {
	case s.MeanValue > 0.7 && s.MeanTenure > 24:
		return ArchetypePremium
	case s.MeanTenure > 18:
		return ArchetypeLoyalist
	case s.MeanRecency > 20:
		return ArchetypeAtRisk
	default:
		return ArchetypeValueSensitive
	}
}

// ArchetypeOf resolves any cohort: the fixed mapping for primary cohorts,
// ClassifyStats otherwise.
func ArchetypeOf(s domain.CohortStats) Archetype {
	if s.Kind != domain.KindMicro {
		if a, ok := ArchetypeFor(domain.CohortName(s.Name)); ok {
			return a
		}
	}
	return ClassifyStats(s)
}

var playbooks = map[Archetype]Playbook{
	ArchetypeValueSensitive: {
		DisplayName: "Value-Sensitive",
		WhatToSay:   "Lead with value proposition and clear savings",
		WhatToAvoid: "Avoid premium positioning or luxury language",
		Tone:        "practical, straightforward, benefit-focused",
		Reason:      "Responds to value; try bundles or cashback and keep it light.",
		Keywords:    []string{"save", "bundled", "smarter", "upgrade"},
	},
	ArchetypeLoyalist: {
		DisplayName: "Loyalist",
		WhatToSay:   "Acknowledge their history and offer exclusive benefits",
		WhatToAvoid: "Don't treat them like new customers",
		Tone:        "appreciative, exclusive, relationship-focused",
		Reason:      "Long relationship; remind and appreciate, no discount needed.",
		Keywords:    []string{"priority support", "curated", "favorites", "exclusive"},
	},
	ArchetypePremium: {
		DisplayName: "Premium",
		WhatToSay:   "Emphasize curation, quality, and personalized service",
		WhatToAvoid: "Avoid generic discounts or mass-market messaging",
		Tone:        "sophisticated, curated, quality-focused",
		Reason:      "High activity and recently lapsed; curate, don't discount.",
		Keywords:    []string{"upgrade", "premium", "priority", "curated"},
	},
	ArchetypeAtRisk: {
		DisplayName: "At-Risk",
		WhatToSay:   "Address concerns directly and offer immediate value",
		WhatToAvoid: "Don't use high-pressure tactics",
		Tone:        "empathetic, solution-oriented, immediate",
		Reason:      "Close to churning; one-tap reorder and reduce friction.",
		Keywords:    []string{"convenient", "care", "support", "reassuring"},
	},
	ArchetypeServiceSensitive: {
		DisplayName: "Service-Sensitive",
		WhatToSay:   "Highlight support quality and problem resolution",
		WhatToAvoid: "Don't focus solely on product features",
		Tone:        "supportive, reassuring, service-focused",
		Reason:      "Reassure with faster delivery, better tracking and a small apology credit.",
		Keywords:    []string{"support", "setup", "help", "service"},
	},
}

// PlaybookFor returns the messaging guidance for an archetype.
func PlaybookFor(a Archetype) (Playbook, bool) {
	p, ok := playbooks[a]
	if ok {
		p.Archetype = a
		p.Keywords = append([]string(nil), p.Keywords...)
	}
	return p, ok
}

var cohortProfiles = []CohortProfile{
	{
		Cohort: domain.CohortPaymentSensitive,
		Who:    "Uses coupons or cashback; last seen 7 to 30 days ago.",
		Say:    "Value and bundles; avoid heavy discounts.",
	},
	{
		Cohort: domain.CohortHighTenure,
		Who:    "With us 12+ months; last seen 7 to 30 days ago.",
		Say:    "Appreciation and 'pick up where you left off'; avoid leading with discounts.",
	},
	{
		Cohort: domain.CohortPremiumLapsed,
		Who:    "Top 30% by app activity; last seen 5 to 20 days ago.",
		Say:    "Curated picks, white-glove tone; no discounts.",
	},
	{
		Cohort: domain.CohortAtRiskHighValue,
		Who:    "High spenders showing signs of lapse.",
		Say:    "Quick restart, low friction, reassure on service.",
	},
}

// CohortProfiles lists the primary cohorts with their archetypes, in rule order.
func CohortProfiles() []CohortProfile {
	out := make([]CohortProfile, len(cohortProfiles))
	for i, p := range cohortProfiles {
		p.Archetype = cohortArchetypes[p.Cohort]
		out[i] = p
	}
	return out
}
