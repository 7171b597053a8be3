package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// xAI Grok Imagine Video Generation Service
// Uses the xAI REST API to generate videos from text prompts + optional images.
// Follows a deferred request pattern: submit generation → poll by request_id → download.
// ---------------------------------------------------------------------------

const (
	ProviderXAI          = "xai"
	xaiBaseURL           = "https://api.x.ai/v1"
	xaiVideoModel        = "grok-imagine-video"
	xaiDefaultResolution = "720p"
)

// XAIVideoService handles video generation via xAI's Grok Imagine Video API.
type XAIVideoService struct {
	apiKey         string
	baseURL        string
	durationSec    int
	httpClient     *http.Client
	downloadClient *http.Client
}

// NewXAIVideoService creates a new xAI video generation service.
// durationSec is the clip length requested per generation (clamped to 1-15).
func NewXAIVideoService(apiKey string, durationSec int) *XAIVideoService {
	return &XAIVideoService{
		apiKey:      apiKey,
		baseURL:     xaiBaseURL,
		durationSec: clampXAIDuration(durationSec),
		httpClient: &http.Client{
			Timeout: 30 * time.Second, // Timeout for individual HTTP calls, not the full poll cycle
		},
		downloadClient: newDownloadClient(),
	}
}

// xaiGenerationRequest is the body for POST /v1/videos/generations
type xaiGenerationRequest struct {
	Prompt      string         `json:"prompt"`
	Model       string         `json:"model"`
	Image       *xaiImageInput `json:"image,omitempty"`
	Duration    int            `json:"duration,omitempty"`
	AspectRatio string         `json:"aspect_ratio,omitempty"`
	Resolution  string         `json:"resolution,omitempty"`
}

// xaiImageInput is an image reference for image-to-video generation
type xaiImageInput struct {
	URL string `json:"url"`
}

// xaiGenerationResponse is the response from POST /v1/videos/generations
type xaiGenerationResponse struct {
	RequestID string `json:"request_id"`
}

// xaiVideoResult is the unified response from GET /v1/videos/{request_id}.
//
// xAI returns different shapes depending on state:
//   - Pending: {"status":"pending"}
//   - Completed: {"video":{"url":"...","duration":8,"respect_moderation":true},"model":"grok-imagine-video"}
//   - Failed: {"status":"failed","error":"..."}
type xaiVideoResult struct {
	Status string          `json:"status"`
	Video  *xaiVideoOutput `json:"video,omitempty"`
	Model  string          `json:"model,omitempty"`
	Error  string          `json:"error"`
}

type xaiVideoOutput struct {
	URL               string `json:"url"`
	Duration          int    `json:"duration"`
	RespectModeration *bool  `json:"respect_moderation,omitempty"`
}

// SubmitVideo starts a generation and returns the request id as the handle.
func (s *XAIVideoService) SubmitVideo(ctx context.Context, req VideoRequest) (*OperationHandle, error) {
	body := xaiGenerationRequest{
		Prompt:      req.Prompt,
		Model:       xaiVideoModel,
		Duration:    s.durationSec,
		AspectRatio: req.AspectRatio,
		Resolution:  xaiDefaultResolution,
	}
	if req.Image != nil && len(req.Image.Data) > 0 {
		body.Image = &xaiImageInput{URL: req.Image.DataURL()}
	}

	log.Info().
		Str("provider", ProviderXAI).
		Int("prompt_len", len(req.Prompt)).
		Bool("has_image", body.Image != nil).
		Int("duration", body.Duration).
		Str("aspect", req.AspectRatio).
		Msg("starting video generation")

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/videos/generations", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	respBody, status, err := s.do(httpReq)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusAccepted {
		return nil, fmt.Errorf("xAI returned status %d: %s", status, truncate(string(respBody), 300))
	}

	var genResp xaiGenerationResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, fmt.Errorf("parse generation response: %w", err)
	}
	if genResp.RequestID == "" {
		return nil, fmt.Errorf("no request_id in generation response: %s", truncate(string(respBody), 300))
	}

	log.Debug().Str("provider", ProviderXAI).Str("request_id", genResp.RequestID).Msg("generation submitted")
	return &OperationHandle{Name: genResp.RequestID, Provider: ProviderXAI}, nil
}

// PollVideo fetches GET /v1/videos/{request_id}.
func (s *XAIVideoService) PollVideo(ctx context.Context, handle *OperationHandle) (*OperationStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/videos/%s", s.baseURL, handle.Name), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	respBody, status, err := s.do(httpReq)
	if err != nil {
		return nil, err
	}
	// 202 carries {"status":"pending"} while the video is being generated
	if status != http.StatusOK && status != http.StatusAccepted {
		return nil, fmt.Errorf("xAI returned status %d: %s", status, truncate(string(respBody), 300))
	}

	var result xaiVideoResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse video result: %w", err)
	}
	return xaiOperationStatus(&result), nil
}

// DownloadVideo fetches the generated video from its (pre-signed) URL.
func (s *XAIVideoService) DownloadVideo(ctx context.Context, uri string) ([]byte, error) {
	return fetchVideo(ctx, s.downloadClient, uri, nil)
}

func (s *XAIVideoService) do(req *http.Request) ([]byte, int, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("xAI request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func xaiOperationStatus(result *xaiVideoResult) *OperationStatus {
	// Completed responses carry a video object and no status field
	if result.Video != nil && result.Video.URL != "" {
		return &OperationStatus{Done: true, VideoURI: result.Video.URL}
	}

	if result.Status == "failed" {
		msg := result.Error
		if msg == "" {
			msg = "unknown error"
		}
		return &OperationStatus{Done: true, FailureMessage: msg}
	}

	// Completed without a URL: moderation removed the output
	if result.Status == "" && result.Video != nil {
		return &OperationStatus{Done: true, FilteredReasons: []string{"moderation"}}
	}

	return &OperationStatus{}
}

func clampXAIDuration(sec int) int {
	switch {
	case sec <= 0:
		return 8
	case sec > 15:
		return 15
	default:
		return sec
	}
}
