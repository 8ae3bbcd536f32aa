package agent

import (
	"context"
	"fmt"

	"github.com/ignite/churn-radar/internal/activation"
	"github.com/ignite/churn-radar/internal/pkg/logger"
)

// EmailCopy is a subject line plus body.
type EmailCopy struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Draft is outreach copy for one cohort across channels.
type Draft struct {
	Cohort    string               `json:"cohort"`
	Archetype activation.Archetype `json:"archetype"`
	Email     EmailCopy            `json:"email"`
	WhatsApp  string               `json:"whatsapp"`
	Push      string               `json:"push"`
	CTA       string               `json:"cta"`
	Source    string               `json:"source"` // "bedrock" or "template"
	Warnings  []string             `json:"warnings,omitempty"`
}

func (d *Draft) text() string {
	return d.Email.Subject + "\n" + d.Email.Body + "\n" + d.WhatsApp + "\n" + d.Push + "\n" + d.CTA
}

// check runs the safety gate over every channel and attaches length warnings.
func (d *Draft) check() error {
	if err := CheckSafety(d.text()); err != nil {
		return err
	}
	d.Warnings = lengthWarnings(d)
	return nil
}

// Copywriter drafts outreach copy from a brief.
type Copywriter interface {
	Draft(ctx context.Context, b Brief) (*Draft, error)
}

// TemplateCopywriter returns fixed, pre-approved copy per archetype.
type TemplateCopywriter struct{}

// NewTemplateCopywriter creates a template-only copywriter.
func NewTemplateCopywriter() *TemplateCopywriter { return &TemplateCopywriter{} }

var templateCopy = map[activation.Archetype]Draft{
	activation.ArchetypeValueSensitive: {
		Email: EmailCopy{
			Subject: "Bundles picked to save you more",
			Body:    "We put together bundles based on what you usually order, with cashback on every basket. Pick up where you left off and keep more in your pocket.",
		},
		WhatsApp: "Hi! Your usual favourites are back, and we have bundled a few of them with cashback so your next order costs less. Tap the link to see your picks.",
		Push:     "Your favourites are bundled with cashback today. Tap to see your savings.",
		CTA:      "See my bundles",
	},
	activation.ArchetypeLoyalist: {
		Email: EmailCopy{
			Subject: "We saved your favourites for you",
			Body:    "Thank you for shopping with us over the years. Your favourites and saved lists are right where you left them, and priority support is on for your next order.",
		},
		WhatsApp: "Hi! Thanks for being with us for so long. Your saved favourites are waiting, and priority support is switched on for your next order whenever you are ready.",
		Push:     "Your saved favourites are waiting, with priority support on your next order.",
		CTA:      "Pick up where I left off",
	},
	activation.ArchetypePremium: {
		Email: EmailCopy{
			Subject: "Your curated picks are ready",
			Body:    "We've saved top-rated items for you, selected around what you love. Priority support comes with every order.",
		},
		WhatsApp: "Hi! We curated a short list of top-rated picks around your recent favourites. Priority support comes with every order, so reorders stay simple and quick.",
		Push:     "Your curated picks are ready. Tap to explore top-rated items chosen for you.",
		CTA:      "View my picks",
	},
	activation.ArchetypeAtRisk: {
		Email: EmailCopy{
			Subject: "Reorder in one tap",
			Body:    "Your last basket is saved and ready to reorder in one tap. If anything went wrong last time, reply to this email and our support team will sort it out.",
		},
		WhatsApp: "Hi! Your last basket is saved and ready to reorder in one tap. If something went wrong before, just reply here and our team will fix it quickly.",
		Push:     "Your last basket is saved. Reorder in one tap whenever you are ready.",
		CTA:      "Reorder now",
	},
	activation.ArchetypeServiceSensitive: {
		Email: EmailCopy{
			Subject: "Faster delivery and better tracking",
			Body:    "We've improved delivery times and live tracking since your last order. If anything fell short before, a small credit is waiting on your account.",
		},
		WhatsApp: "Hi! Delivery is faster now and you can track every order live. If anything fell short last time, a small credit is already waiting on your account.",
		Push:     "Faster delivery and live tracking are here. A small credit is waiting for you.",
		CTA:      "Track my next order",
	},
}

func (t *TemplateCopywriter) Draft(_ context.Context, b Brief) (*Draft, error) {
	tpl, ok := templateCopy[b.Archetype]
	if !ok {
		tpl = templateCopy[activation.ArchetypeValueSensitive]
	}
	d := tpl
	d.Cohort = b.Cohort
	d.Archetype = b.Archetype
	d.Source = "template"
	if err := d.check(); err != nil {
		return nil, err
	}
	return &d, nil
}

// FallbackCopywriter tries Primary and falls back to Fallback on any error.
type FallbackCopywriter struct {
	Primary  Copywriter
	Fallback Copywriter
}

func (f *FallbackCopywriter) Draft(ctx context.Context, b Brief) (*Draft, error) {
	d, err := f.Primary.Draft(ctx, b)
	if err == nil {
		return d, nil
	}
	logger.Warn("copywriter falling back", "cohort", b.Cohort, "error", err)
	d, ferr := f.Fallback.Draft(ctx, b)
	if ferr != nil {
		return nil, fmt.Errorf("primary: %v; fallback: %w", err, ferr)
	}
	d.Warnings = append(d.Warnings, "generated copy unavailable: "+err.Error())
	return d, nil
}
