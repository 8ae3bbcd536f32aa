package agent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/churn-radar/internal/activation"
	"github.com/ignite/churn-radar/internal/domain"
	"github.com/ignite/churn-radar/internal/financial"
	"github.com/ignite/churn-radar/internal/pipeline"
)

func paymentView() pipeline.CohortView {
	return pipeline.CohortView{
		CohortStats: domain.CohortStats{
			Name:        string(domain.CohortPaymentSensitive),
			Kind:        domain.KindPrimary,
			Size:        4,
			MeanScore:   0.42,
			MeanValue:   1234.5,
			MeanRecency: 11.6,
			MeanTenure:  14.25,
			Members:     []string{"c1", "c2", "c3", "c4"},
		},
		Archetype: activation.ArchetypeValueSensitive,
	}
}

func TestNewBrief(t *testing.T) {
	report := &financial.Report{Cohorts: []financial.CohortROI{{
		Cohort: string(domain.CohortPaymentSensitive),
		Kind:   domain.KindPrimary,
		Projection: domain.Projection{
			CohortSize:          4,
			ExpectedReactivated: 1,
			NetProfit:           -12.5,
		},
	}}}

	b := NewBrief(paymentView(), report)
	assert.Equal(t, string(domain.CohortPaymentSensitive), b.Cohort)
	assert.Equal(t, activation.ArchetypeValueSensitive, b.Playbook.Archetype)
	assert.NotEmpty(t, b.Who)
	assert.Equal(t, 4, b.Size)
	require.NotNil(t, b.Projection)
	assert.Equal(t, -12.5, b.Projection.NetProfit)

	// member identifiers never reach the brief
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"c1"`)

	assert.Nil(t, NewBrief(paymentView(), nil).Projection)
}

func TestRenderDefaultTemplate(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	b := NewBrief(paymentView(), &financial.Report{Cohorts: []financial.CohortROI{{
		Cohort:     string(domain.CohortPaymentSensitive),
		Kind:       domain.KindPrimary,
		Projection: domain.Projection{ExpectedReactivated: 3, NetProfit: 2500},
	}}})
	out, err := r.Render(b)
	require.NoError(t, err)

	assert.Contains(t, out, "Cohort: Payment-sensitive churners (primary)")
	assert.Contains(t, out, "Archetype: Value-Sensitive")
	assert.Contains(t, out, "mean resurrection score 42.0%")
	assert.Contains(t, out, "last order 12 days ago")
	assert.Contains(t, out, "value 1,234.50")
	assert.Contains(t, out, "net profit 2,500.00")
	assert.Contains(t, out, "save, bundled, smarter, upgrade")
	assert.Contains(t, out, "last chance")
}

func TestRenderTemplateOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brief.liquid")
	require.NoError(t, os.WriteFile(path, []byte("{{ cohort }}|{{ mean_value | money }}|{{ 1 | days }}"), 0644))

	r, err := NewRenderer(path)
	require.NoError(t, err)
	out, err := r.Render(Brief{Cohort: "X", MeanValue: -1000})
	require.NoError(t, err)
	assert.Equal(t, "X|-1,000.00|1 day", out)

	_, err = NewRenderer(filepath.Join(t.TempDir(), "missing.liquid"))
	assert.Error(t, err)
}

func TestCheckSafety(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		count int
	}{
		{"clean", "Your curated picks are ready", 0},
		{"banned phrase", "LAST CHANCE to save", 1},
		{"two phrases", "Guaranteed savings, only today", 2},
		{"too long", string(make([]byte, MaxCopyChars+1)), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSafety(tt.text)
			if tt.count == 0 {
				assert.NoError(t, err)
				return
			}
			var se *SafetyError
			require.True(t, errors.As(err, &se))
			assert.Len(t, se.Violations, tt.count)
		})
	}
}

func TestTemplateCopywriterMeetsChannelRules(t *testing.T) {
	cw := NewTemplateCopywriter()
	for _, a := range activation.AllArchetypes() {
		d, err := cw.Draft(context.Background(), Brief{Cohort: "c", Archetype: a})
		require.NoError(t, err, a)
		assert.Equal(t, "template", d.Source)
		assert.Equal(t, a, d.Archetype)
		assert.Empty(t, d.Warnings, a)
		assert.NotEmpty(t, d.CTA)
	}
}

type fakeInvoker struct {
	reply string
	err   error
	input *bedrockruntime.InvokeModelInput
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	body, _ := json.Marshal(map[string]any{
		"content":     []map[string]string{{"type": "text", "text": f.reply}},
		"stop_reason": "end_turn",
	})
	return &bedrockruntime.InvokeModelOutput{Body: body}, nil
}

func newBedrock(t *testing.T, inv ModelInvoker) *BedrockCopywriter {
	t.Helper()
	r, err := NewRenderer("")
	require.NoError(t, err)
	return NewBedrockCopywriter(inv, r, "test-model", 0)
}

func TestBedrockCopywriter(t *testing.T) {
	inv := &fakeInvoker{reply: `Here you go:
{"email_subject":"Your picks are waiting","email_body":"Bundles with cashback are ready.","whatsapp":"Hi there","push":"Tap to see","cta":"Shop now"}`}

	d, err := newBedrock(t, inv).Draft(context.Background(), NewBrief(paymentView(), nil))
	require.NoError(t, err)

	assert.Equal(t, "bedrock", d.Source)
	assert.Equal(t, "Your picks are waiting", d.Email.Subject)
	assert.Equal(t, "Shop now", d.CTA)
	assert.NotEmpty(t, d.Warnings, "short whatsapp and push copy is flagged")

	require.NotNil(t, inv.input)
	assert.Equal(t, "test-model", aws.ToString(inv.input.ModelId))
	var req BedrockRequest
	require.NoError(t, json.Unmarshal(inv.input.Body, &req))
	assert.Equal(t, "bedrock-2023-05-31", req.AnthropicVersion)
	assert.Equal(t, 1024, req.MaxTokens)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content[0].Text, "Payment-sensitive churners")
}

func TestBedrockCopywriterRejectsUnsafeCopy(t *testing.T) {
	inv := &fakeInvoker{reply: `{"email_subject":"Last chance!","email_body":"Guaranteed deals","whatsapp":"x","push":"y"}`}
	_, err := newBedrock(t, inv).Draft(context.Background(), NewBrief(paymentView(), nil))
	var se *SafetyError
	assert.True(t, errors.As(err, &se))
}

func TestBedrockCopywriterBadReply(t *testing.T) {
	_, err := newBedrock(t, &fakeInvoker{reply: "sorry, I can't help"}).Draft(context.Background(), Brief{Cohort: "c"})
	assert.Error(t, err)
}

func TestFallbackCopywriter(t *testing.T) {
	cw := &FallbackCopywriter{
		Primary:  newBedrock(t, &fakeInvoker{err: errors.New("throttled")}),
		Fallback: NewTemplateCopywriter(),
	}
	d, err := cw.Draft(context.Background(), NewBrief(paymentView(), nil))
	require.NoError(t, err)
	assert.Equal(t, "template", d.Source)
	require.Len(t, d.Warnings, 1)
	assert.Contains(t, d.Warnings[0], "throttled")
}

func TestBriefsFor(t *testing.T) {
	res := &pipeline.Result{
		Primary: []domain.CohortStats{{Name: string(domain.CohortHighTenure), Kind: domain.KindPrimary}},
		Micro:   []domain.CohortStats{{Name: "MicroCohort_0", Kind: domain.KindMicro, MeanTenure: 30, MeanValue: 5}},
	}
	briefs := BriefsFor(res)
	require.Len(t, briefs, 2)
	assert.Equal(t, activation.ArchetypeLoyalist, briefs[0].Archetype)
	assert.NotEmpty(t, briefs[0].Who)
	assert.Equal(t, activation.ArchetypePremium, briefs[1].Archetype)
	assert.Empty(t, briefs[1].Who)
}
