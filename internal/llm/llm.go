package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/tutor/internal/llm/prompts"
	"github.com/pavelanni/tutor/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNoChoices is returned when the API answers without a completion.
var ErrNoChoices = errors.New("LLM returned no choices")

// Verdict is the grader's decision on one free-text response.
type Verdict struct {
	Correct  bool   `json:"correct"`
	Feedback string `json:"feedback"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
}

// New creates a new LLM client. An invalid variant falls back to standard.
func New(baseURL, apiKey, modelName, variant string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	v := prompts.PromptStandard
	if prompts.IsValidVariant(variant) {
		v = prompts.PromptVariant(variant)
	} else if variant != "" {
		slog.Warn("unknown prompt variant, using standard", "variant", variant)
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: v,
	}
}

// Grade asks the model whether response correctly answers question.
func (c *Client) Grade(ctx context.Context, question model.Question, response string) (Verdict, error) {
	systemPrompt, err := prompts.BuildGradePrompt(c.variant, question, response)
	if err != nil {
		return Verdict{}, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("LLM grading API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Verdict{}, ErrNoChoices
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)

	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Verdict{}, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}
	return v, nil
}

// Ping checks that the endpoint is reachable and serves the configured model.
func (c *Client) Ping(ctx context.Context) error {
	list, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range list.Models {
		if m.ID == c.model {
			return nil
		}
	}
	return fmt.Errorf("model %q not served by endpoint", c.model)
}
