package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/alphacouncil/internal/domain/council"
	"github.com/bryanwahyu/alphacouncil/internal/infra/ai/prompt"
)

const maxTokens = 2048

// Evaluator is one specialist backed by a chat-completion model. It
// implements council.Evaluator; the agent runner owns its lifecycle.
type Evaluator struct {
	*openai.Client
	Model   string
	Profile prompt.Profile
}

func NewEvaluator(apiKey, model string, profile prompt.Profile) *Evaluator {
	return &Evaluator{Client: openai.NewClient(apiKey), Model: model, Profile: profile}
}

// reportPayload is the JSON contract the system prompt enforces.
type reportPayload struct {
	Analysis   string  `json:"analysis"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

func (e *Evaluator) Produce(ctx context.Context, m council.Mission) (council.EvaluatorReport, error) {
	model := e.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: e.Profile.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt.UserPrompt(m.Symbol, m.Thesis, m.Directive)},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := e.CreateChatCompletion(ctx, req)
	if err != nil {
		return council.EvaluatorReport{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return council.EvaluatorReport{}, fmt.Errorf("chat completion returned no choices")
	}

	var payload reportPayload
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &payload); err != nil {
		return council.EvaluatorReport{}, fmt.Errorf("evaluator %s returned invalid JSON: %w", e.Profile.ID, err)
	}
	if payload.Confidence < 0 {
		payload.Confidence = 0
	}
	if payload.Confidence > 1 {
		payload.Confidence = 1
	}

	return council.EvaluatorReport{
		EvaluatorID: e.Profile.ID,
		Analysis:    payload.Analysis,
		Confidence:  payload.Confidence,
		Rationale:   payload.Rationale,
	}, nil
}
