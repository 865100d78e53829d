// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	qperrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/logging"
)

// OpenAIConfig configures an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// Guard is optional; nil never disables calls.
	Guard *Guard
}

// OpenAI talks to any server implementing the chat completions API with JSON
// schema response formats.
type OpenAI struct {
	client openai.Client
	model  string
	guard  *Guard
}

// NewOpenAI builds a client. An empty API key is a configuration error.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, qperrors.New(qperrors.ConfigInvalid, "language model API key is not set")
	}
	if cfg.Model == "" {
		return nil, qperrors.New(qperrors.ConfigInvalid, "language model name is not set")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		guard:  cfg.Guard,
	}, nil
}

func (o *OpenAI) Model() string { return o.model }

// Complete sends one chat completion constrained to req.Schema.
func (o *OpenAI) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	if !o.guard.Allow() {
		return nil, errDisabled(o.guard.DisabledUntil().Format(time.RFC3339))
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(0),
	}
	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.Name,
					Schema: req.Schema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		o.guard.RecordFailure()
		return nil, qperrors.Wrap(qperrors.ModelFailed, req.Name+" request failed", errors.New(describe(err)))
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		o.guard.RecordFailure()
		return nil, qperrors.New(qperrors.ModelFailed, req.Name+" returned no content")
	}
	o.guard.RecordSuccess()
	return json.RawMessage(resp.Choices[0].Message.Content), nil
}

// describe renders API errors without request dumps or keys.
func describe(err error) string {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("status %d: %s", apiErr.StatusCode, logging.Mask(apiErr.Message))
	}
	return logging.Mask(err.Error())
}
