package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ignite/churn-radar/internal/config"
	"github.com/ignite/churn-radar/internal/pkg/logger"
)

// ModelInvoker is the subset of the Bedrock runtime client used here.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockMessage represents a message in Bedrock format
type BedrockMessage struct {
	Role    string                `json:"role"`
	Content []BedrockContentBlock `json:"content"`
}

// BedrockContentBlock represents content in a message
type BedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// BedrockRequest is the Anthropic messages body for InvokeModel
type BedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []BedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature"`
}

// BedrockResponse is the response from Bedrock
type BedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// modelDraft is the JSON shape the model is asked to reply with.
type modelDraft struct {
	EmailSubject string `json:"email_subject"`
	EmailBody    string `json:"email_body"`
	WhatsApp     string `json:"whatsapp"`
	Push         string `json:"push"`
	CTA          string `json:"cta"`
}

const systemPrompt = `You write short customer reactivation messages for an e-commerce brand.
Follow the brief exactly. Reply with a single JSON object and nothing else:
{"email_subject": "...", "email_body": "...", "whatsapp": "...", "push": "...", "cta": "..."}`

// BedrockCopywriter drafts copy with an Anthropic model on Bedrock.
type BedrockCopywriter struct {
	client    ModelInvoker
	renderer  *Renderer
	modelID   string
	maxTokens int
}

// NewBedrockCopywriter wraps an existing client.
func NewBedrockCopywriter(client ModelInvoker, renderer *Renderer, modelID string, maxTokens int) *BedrockCopywriter {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &BedrockCopywriter{client: client, renderer: renderer, modelID: modelID, maxTokens: maxTokens}
}

// NewBedrockCopywriterFromConfig loads AWS credentials from the default chain.
func NewBedrockCopywriterFromConfig(ctx context.Context, cfg config.CopyConfig, renderer *Renderer) (*BedrockCopywriter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	logger.Info("bedrock copywriter initialized", "model", cfg.ModelID, "region", cfg.Region)
	return NewBedrockCopywriter(bedrockruntime.NewFromConfig(awsCfg), renderer, cfg.ModelID, cfg.MaxTokens), nil
}

func (c *BedrockCopywriter) Draft(ctx context.Context, b Brief) (*Draft, error) {
	prompt, err := c.renderer.Render(b)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(BedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        c.maxTokens,
		System:           systemPrompt,
		Messages: []BedrockMessage{{
			Role:    "user",
			Content: []BedrockContentBlock{{Type: "text", Text: prompt}},
		}},
		Temperature: 0.4,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	out, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke: %w", err)
	}

	var resp BedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	md, err := parseModelDraft(text.String())
	if err != nil {
		return nil, err
	}
	d := &Draft{
		Cohort:    b.Cohort,
		Archetype: b.Archetype,
		Email:     EmailCopy{Subject: md.EmailSubject, Body: md.EmailBody},
		WhatsApp:  md.WhatsApp,
		Push:      md.Push,
		CTA:       md.CTA,
		Source:    "bedrock",
	}
	if err := d.check(); err != nil {
		return nil, err
	}
	logger.Debug("bedrock draft", "cohort", b.Cohort, "input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)
	return d, nil
}

// parseModelDraft extracts the first JSON object from the model reply.
func parseModelDraft(text string) (*modelDraft, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("model reply has no JSON object")
	}
	var md modelDraft
	if err := json.Unmarshal([]byte(text[start:end+1]), &md); err != nil {
		return nil, fmt.Errorf("decoding model reply: %w", err)
	}
	if md.EmailSubject == "" || md.EmailBody == "" {
		return nil, fmt.Errorf("model reply is missing email copy")
	}
	return &md, nil
}
