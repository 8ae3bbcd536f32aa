// Package activation maps reactivation cohorts onto customer archetypes and
// the messaging playbook that goes with each archetype. Everything here is a
// fixed, read-only lookup.
package activation

import "github.com/ignite/churn-radar/internal/domain"

// Archetype is a behavioral persona driving outreach tone.
type Archetype string

const (
	ArchetypeValueSensitive   Archetype = "ValueSensitive"
	ArchetypeLoyalist         Archetype = "Loyalist"
	ArchetypePremium          Archetype = "Premium"
	ArchetypeAtRisk           Archetype = "AtRisk"
	ArchetypeServiceSensitive Archetype = "ServiceSensitive"
)

// AllArchetypes returns every archetype in display order
func AllArchetypes() []Archetype {
	return []Archetype{
		ArchetypeValueSensitive,
		ArchetypeLoyalist,
		ArchetypePremium,
		ArchetypeAtRisk,
		ArchetypeServiceSensitive,
	}
}

// Playbook is the messaging guidance handed to copywriters.
type Playbook struct {
	Archetype   Archetype `json:"archetype"`
	DisplayName string    `json:"display_name"`
	WhatToSay   string    `json:"what_to_say"`
	WhatToAvoid string    `json:"what_to_avoid"`
	Tone        string    `json:"tone"`
	Reason      string    `json:"reason"` // one-line rationale shown next to the cohort
	Keywords    []string  `json:"keywords"`
}

// CohortProfile describes a primary cohort in plain language.
type CohortProfile struct {
	Cohort    domain.CohortName `json:"cohort"`
	Archetype Archetype         `json:"archetype"`
	Who       string            `json:"who"`
	Say       string            `json:"say"`
}
