package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	ProviderGemini          = "gemini"
	defaultGeminiTextModel  = "gemini-2.5-flash"
	defaultGeminiImageModel = "gemini-2.5-flash-image"
	geminiRESTBaseURL       = "https://generativelanguage.googleapis.com/v1beta"
)

// NewGenAIClient creates the Gemini Developer API client shared by the Veo,
// Imagen and Gemini text services.
func NewGenAIClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// GeminiService generates text with Gemini models through the Gen AI SDK.
type GeminiService struct {
	client *genai.Client
	model  string
}

func NewGeminiService(client *genai.Client, model string) *GeminiService {
	if model == "" {
		model = defaultGeminiTextModel
	}
	return &GeminiService{client: client, model: model}
}

// GenerateText runs a single-turn generation. A non-nil Schema switches the
// response to JSON constrained by that schema.
func (s *GeminiService) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: req.Temperature,
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = req.Schema
	}

	model := s.resolveModel(req.Model)
	resp, err := s.client.Models.GenerateContent(ctx, model, genai.Text(req.UserMessage), config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content (%s): %w", model, err)
	}
	return resp.Text(), nil
}

// resolveModel accepts routed ids such as "google/gemini-2.5-pro" and ignores
// models from other vendors.
func (s *GeminiService) resolveModel(requested string) string {
	name := strings.TrimPrefix(requested, "google/")
	if strings.HasPrefix(name, "gemini-") {
		return name
	}
	return s.model
}

// ---------------------------------------------------------------------------
// Gemini native image generation (REST generateContent with IMAGE modality)
// ---------------------------------------------------------------------------

// GeminiImageService generates images with Gemini image models over REST.
type GeminiImageService struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewGeminiImageService(apiKey, model string) *GeminiImageService {
	if model == "" {
		model = defaultGeminiImageModel
	}
	return &GeminiImageService{
		apiKey:  apiKey,
		model:   model,
		baseURL: geminiRESTBaseURL,
		client:  &http.Client{Timeout: 300 * time.Second},
	}
}

// Gemini API request/response structures
type GeminiGenerateContentRequest struct {
	Contents         []GeminiContent         `json:"contents"`
	GenerationConfig *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

type GeminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *GeminiImageConfig `json:"imageConfig,omitempty"`
}

type GeminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *GeminiInlineData `json:"inlineData,omitempty"`
}

type GeminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type GeminiGenerateContentResponse struct {
	Candidates []GeminiCandidate `json:"candidates"`
}

type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

// GenerateImage produces one image for the prompt.
func (s *GeminiImageService) GenerateImage(ctx context.Context, prompt, aspectRatio string) (*InlineImage, error) {
	reqBody := GeminiGenerateContentRequest{
		Contents: []GeminiContent{
			{Role: "user", Parts: []GeminiPart{{Text: prompt}}},
		},
		GenerationConfig: &GeminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			ImageConfig:        &GeminiImageConfig{AspectRatio: imageAspect(aspectRatio)},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", s.baseURL, s.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini image request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, truncate(string(bodyBytes), 300))
	}

	var geminiResp GeminiGenerateContentResponse
	if err := json.Unmarshal(bodyBytes, &geminiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(geminiResp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	var textParts []string
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode base64 image: %w", err)
			}
			mime := part.InlineData.MimeType
			if mime == "" {
				mime = "image/png"
			}
			return &InlineImage{Data: data, MIMEType: mime}, nil
		}
		if part.Text != "" {
			textParts = append(textParts, part.Text)
		}
	}

	if len(textParts) > 0 {
		log.Warn().Str("provider", ProviderGemini).Str("text", truncate(textParts[0], 200)).Msg("image model answered with text")
		return nil, fmt.Errorf("gemini returned text instead of image: %s", truncate(textParts[0], 200))
	}
	return nil, fmt.Errorf("no image data in response (finish reason %q)", geminiResp.Candidates[0].FinishReason)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
