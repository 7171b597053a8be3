package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"

	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	defaultOpenAITextModel = "gpt-4o"
	defaultRouterModel     = "google/gemini-2.5-flash"
)

// OpenAIService generates text (and images when talking to OpenAI directly)
// through any OpenAI-compatible chat endpoint. OpenRouter is reached by
// pointing the client at its base URL; routed model ids pass through as-is.
type OpenAIService struct {
	client   *openai.Client
	provider string
	model    string
}

// NewOpenAIService creates a service for api.openai.com.
func NewOpenAIService(apiKey, model string) *OpenAIService {
	if model == "" {
		model = defaultOpenAITextModel
	}
	return &OpenAIService{
		client:   openai.NewClient(apiKey),
		provider: ProviderOpenAI,
		model:    model,
	}
}

// NewOpenRouterService creates a service for the OpenRouter gateway.
func NewOpenRouterService(apiKey, model string) *OpenAIService {
	return NewOpenAICompatibleService(ProviderOpenRouter, apiKey, openRouterBaseURL, model)
}

// NewOpenAICompatibleService creates a service for any OpenAI-compatible base URL.
func NewOpenAICompatibleService(provider, apiKey, baseURL, model string) *OpenAIService {
	if model == "" {
		model = defaultRouterModel
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIService{
		client:   openai.NewClientWithConfig(cfg),
		provider: provider,
		model:    model,
	}
}

// GenerateText runs one chat completion. Requests carrying a schema use JSON mode.
func (s *OpenAIService) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	var messages []openai.ChatCompletionMessage
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserMessage,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:               s.resolveModel(req.Model),
		Messages:            messages,
		MaxCompletionTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		chatReq.Temperature = *req.Temperature
	}
	if req.Schema != nil {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := s.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", s.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", s.provider)
	}

	content := resp.Choices[0].Message.Content
	log.Debug().
		Str("provider", s.provider).
		Str("model", chatReq.Model).
		Int("response_len", len(content)).
		Msg("chat completion finished")
	return content, nil
}

func (s *OpenAIService) resolveModel(requested string) string {
	if requested == "" {
		return s.model
	}
	if s.provider == ProviderOpenAI {
		name := strings.TrimPrefix(requested, "openai/")
		if strings.Contains(name, "/") {
			return s.model
		}
		return name
	}
	return requested
}

// GenerateImage produces one DALL-E 3 image sized for the aspect ratio.
func (s *OpenAIService) GenerateImage(ctx context.Context, prompt, aspectRatio string) (*InlineImage, error) {
	size := openai.CreateImageSize1792x1024
	if aspectRatio == "9:16" {
		size = openai.CreateImageSize1024x1792
	}

	resp, err := s.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          openai.CreateImageModelDallE3,
		N:              1,
		Size:           size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("%s image request: %w", s.provider, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("%s returned no image", s.provider)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return &InlineImage{Data: data, MIMEType: "image/png"}, nil
}
