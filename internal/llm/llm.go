// Package llm turns a finished quality report into a prose remediation
// plan via the Anthropic API. It is strictly optional: scores and
// verdicts are computed before it runs and never depend on it.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/openquality/odq/internal/models"
)

// Client wraps the Anthropic API for report explanation.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildExplainPrompt constructs the system and user prompts for the
// remediation plan.
func buildExplainPrompt(report *models.QualityReport) (system string, user string, err error) {
	system = `You advise open-data publishers. You receive a machine-readable data
quality report: findings graded by severity ("blocker" makes the data unusable,
"major" demands caution, "minor" is cosmetic) and per-dimension scores.

Write a remediation plan for the publisher:
- Open with one sentence summarizing the overall state of the publication.
- Then list the fixes in priority order (blockers first, then majors, then minors),
  one bullet per finding, naming the affected columns or metadata fields and the
  concrete change to make.
- Where a finding carries a fix hint, build on it instead of repeating it.
- Keep the whole plan under 250 words. Plain text only, no markdown headings.`

	data, err := report.ExportJSON()
	if err != nil {
		return "", "", fmt.Errorf("rendering report for prompt: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Quality report for ")
	sb.WriteString(report.Source)
	sb.WriteString(":\n\n")
	sb.Write(data)
	user = sb.String()
	return system, user, nil
}

// ExplainReport asks the model for a prioritized remediation plan.
func (c *Client) ExplainReport(ctx context.Context, report *models.QualityReport) (string, error) {
	systemPrompt, userPrompt, err := buildExplainPrompt(report)
	if err != nil {
		return "", err
	}

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}

	return stripFencing(text), nil
}

// stripFencing removes a markdown code fence when the model wraps its
// whole answer in one.
func stripFencing(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) > 1 {
		text = lines[1]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
