// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/Firewatch/pkg/logging"
)

// defaultModel is used when no model is configured.
const defaultModel = "gpt-4o-mini"

// OpenAIAnalyzer implements Analyzer over the OpenAI chat completions API
// (or any compatible endpoint via BaseURL).
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
	logger *logging.Logger
}

// OpenAIConfig configures the analyzer. APIKey falls back to the
// OPENAI_API_KEY environment variable when empty.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewOpenAIAnalyzer creates an analyzer from config.
func NewOpenAIAnalyzer(cfg OpenAIConfig, logger *logging.Logger) (*OpenAIAnalyzer, error) {
	if logger == nil {
		logger = logging.Default()
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("no API key configured and OPENAI_API_KEY not set")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
		logger.Warn("no analysis model configured, using default", "model", model)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	logger.Info("analysis backend initialized", "model", model, "base_url", clientCfg.BaseURL)
	return &OpenAIAnalyzer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logger,
	}, nil
}

// Analyze submits one request and returns the raw response text. The
// caller's context deadline bounds the call; deadline expiry surfaces as
// a context.DeadlineExceeded-wrapped error.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, req Request) (string, error) {
	a.logger.Debug("submitting analysis request",
		"template", string(req.Template),
		"body_bytes", len(req.Body),
		"bonus_docs", len(req.BonusContext),
	)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("analysis backend call failed: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", errors.New("analysis backend returned no content")
	}

	a.logger.Debug("analysis response received",
		"finish_reason", string(resp.Choices[0].FinishReason),
		"response_bytes", len(resp.Choices[0].Message.Content),
	)
	return resp.Choices[0].Message.Content, nil
}

var _ Analyzer = (*OpenAIAnalyzer)(nil)
