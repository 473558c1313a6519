// Package answer produces grounded answers to student questions from
// retrieved course material.
package answer

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/fyrsmithlabs/lectern/internal/config"
)

// ErrMissingAPIKey indicates no Gemini API key was configured.
var ErrMissingAPIKey = errors.New("gemini API key required: set LECTERN_ANSWER_API_KEY or GEMINI_API_KEY")

// Generator turns a fully assembled prompt into answer text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator generates answers with Google Gemini via langchaingo.
type GeminiGenerator struct {
	llm   *googleai.GoogleAI
	model string
}

// NewGeminiGenerator creates a Gemini-backed generator.
func NewGeminiGenerator(ctx context.Context, cfg config.AnswerConfig) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiGenerator{llm: llm, model: model}, nil
}

// Generate sends the prompt to Gemini and returns the answer text.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	answer, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("generating answer with %s: %w", g.model, err)
	}
	return answer, nil
}
