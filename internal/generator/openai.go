// Package generator implements the code-generation collaborator against
// the OpenAI chat completion API. The pipeline treats it as an opaque
// "given inputs, get generated code back" call.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/leapstack-labs/leapdash/pkg/core"
)

const defaultModel = "gpt-4o-mini"

const systemPrompt = `You write Starlark transform functions for a metrics pipeline.
Respond with code only, no prose and no markdown fences.
The code must define exactly one function named "transform".`

// OpenAIGenerator implements core.Generator.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// New creates an OpenAI-backed generator.
func New(apiKey, model string, logger *slog.Logger) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("generator API key is required")
	}
	if model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger,
	}, nil
}

// Generate produces a transform code body for the request.
func (g *OpenAIGenerator) Generate(ctx context.Context, req core.GenerateRequest) (*core.GenerateResult, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("generating transformer code",
		"kind", string(req.Kind), "template", req.TemplateID, "model", g.model)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generation service call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("generation service returned no choices")
	}

	code := stripFences(resp.Choices[0].Message.Content)
	if !strings.Contains(code, "def transform") {
		return nil, fmt.Errorf("generated code does not define a transform function")
	}

	return &core.GenerateResult{
		Code:            code,
		ValueLabel:      req.ValueLabel,
		DataDescription: req.DataDescription,
		FromHint:        req.ExtractionHint != "",
	}, nil
}

// buildPrompt assembles the user message: the output contract for the
// requested kind, the sample payload, and the optional extraction hint.
func buildPrompt(req core.GenerateRequest) (string, error) {
	var b strings.Builder

	switch req.Kind {
	case core.KindIngest:
		b.WriteString("Write transform(payload) mapping the raw API payload below to a list of ")
		b.WriteString(`{"timestamp": ..., "value": ..., "dimensions": {...}} dicts. `)
		b.WriteString("Timestamps are ISO 8601 strings or unix seconds; value is a number; dimensions is optional.\n")
	case core.KindChart:
		b.WriteString("Write transform(points, preferences) mapping a list of ")
		b.WriteString(`{"timestamp", "value", "dimensions"} dicts plus a preferences dict `)
		b.WriteString("to a chart configuration dict with series, axes, and labels.\n")
	default:
		return "", fmt.Errorf("unknown transformer kind %q", req.Kind)
	}

	if req.DataDescription != "" {
		fmt.Fprintf(&b, "The data represents: %s\n", req.DataDescription)
	}
	if req.ValueLabel != "" {
		fmt.Fprintf(&b, "Value label: %s\n", req.ValueLabel)
	}
	if req.ExtractionHint != "" {
		fmt.Fprintf(&b, "Extraction hint: %s\n", req.ExtractionHint)
	}

	if req.SamplePayload != nil {
		sample, err := json.MarshalIndent(req.SamplePayload, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode sample payload: %w", err)
		}
		fmt.Fprintf(&b, "Sample input:\n%s\n", sample)
	}

	return b.String(), nil
}

// stripFences removes markdown code fences the model sometimes adds
// despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var _ core.Generator = (*OpenAIGenerator)(nil)
