// Copyright (C) 2025 Slopscope Labs (eng@slopscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// GeminiClient generates completions through the Google GenAI API.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiClient reads GEMINI_API_KEY from the environment or the
// container secret and returns a ready client.
func NewGeminiClient(ctx context.Context, model string, logger *slog.Logger) (*GeminiClient, error) {
	apiKey, err := apiKeyFromEnv("GEMINI_API_KEY", "/run/secrets/gemini_api_key")
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	logger.Info("initializing Gemini client", "model", model)
	return &GeminiClient{client: client, model: model, logger: logger}, nil
}

func (g *GeminiClient) Name() string { return "gemini/" + g.model }

func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(systemPrompt+"\n\n"+prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty response")
	}
	return text, nil
}
