// Package llm implements the LLM adapter: a single generateAnalysis
// call against Claude via the official
// github.com/anthropics/anthropic-sdk-go client. Circuit-breaking
// around this adapter lives one layer up in internal/analysis; this
// package only issues the call and normalizes its result.
package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/sentinel-ops/incident-pilot/internal/errkind"
)

// Result is the normalized generateAnalysis response.
type Result struct {
	Content    map[string]any
	Input      int
	Output     int
	Total      int
	DurationMs int64
	ModelUsed  string
}

// Adapter wraps the Anthropic SDK client.
type Adapter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    zerolog.Logger
}

// New builds an LLM adapter bound to a single model.
func New(apiKey, model string, logger zerolog.Logger) *Adapter {
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	return &Adapter{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: 4096,
		logger:    logger.With().Str("component", "adapters.llm").Logger(),
	}
}

// GenerateAnalysis sends prompt as a single user message and returns
// the JSON-decoded content object. Markdown code fences are stripped
// before parsing, since the model is asked for JSON-only output but
// sometimes wraps it in a fenced block anyway.
func (a *Adapter) GenerateAnalysis(ctx context.Context, prompt string) (Result, error) {
	start := time.Now()

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	duration := time.Since(start).Milliseconds()
	if err != nil {
		return Result{}, errkind.NewTransientExternal("llm request failed", err)
	}

	text := extractText(msg)
	cleaned := StripMarkdownFences(text)

	var content map[string]any
	if jsonErr := json.Unmarshal([]byte(cleaned), &content); jsonErr != nil {
		return Result{}, errkind.NewLLMValidation("llm response is not valid JSON", jsonErr)
	}

	input := int(msg.Usage.InputTokens)
	output := int(msg.Usage.OutputTokens)

	return Result{
		Content:    content,
		Input:      input,
		Output:     output,
		Total:      input + output,
		DurationMs: duration,
		ModelUsed:  a.model,
	}, nil
}

func extractText(msg *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// StripMarkdownFences removes a single leading/trailing ``` or ```json
// fence, if present, leaving the raw JSON body.
func StripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
