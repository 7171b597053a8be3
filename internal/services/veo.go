package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Veo Video Generation Service
// Submits text(+image)-to-video operations through the Google Gen AI SDK and
// reports their progress. Polling cadence is owned by the caller.
// ---------------------------------------------------------------------------

const (
	ProviderVeo        = "veo"
	defaultVeoModel    = "veo-3.1-generate-preview"
	defaultVeoQuality  = "1080p"
	veoDownloadKeyName = "key"
)

// VeoService handles video generation via Google's Veo models.
type VeoService struct {
	client     *genai.Client
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewVeoService creates a Veo service on top of a shared genai client.
// apiKey is appended to result URIs on download; model defaults to veo-3.1-generate-preview.
func NewVeoService(client *genai.Client, apiKey, model string) *VeoService {
	if model == "" {
		model = defaultVeoModel
	}
	return &VeoService{
		client:     client,
		apiKey:     apiKey,
		model:      model,
		httpClient: newDownloadClient(),
	}
}

// SubmitVideo starts a video generation and returns its operation handle.
func (s *VeoService) SubmitVideo(ctx context.Context, req VideoRequest) (*OperationHandle, error) {
	model := s.model
	if strings.HasPrefix(req.Model, "veo-") {
		model = req.Model
	}

	config := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    req.AspectRatio,
		Resolution:     defaultVeoQuality,
	}

	var image *genai.Image
	if req.Image != nil && len(req.Image.Data) > 0 {
		image = &genai.Image{ImageBytes: req.Image.Data, MIMEType: req.Image.MIMEType}
	}

	log.Info().
		Str("provider", ProviderVeo).
		Str("model", model).
		Int("prompt_len", len(req.Prompt)).
		Bool("has_image", image != nil).
		Str("aspect", req.AspectRatio).
		Msg("starting video generation")

	op, err := s.client.Models.GenerateVideos(ctx, model, req.Prompt, image, config)
	if err != nil {
		return nil, fmt.Errorf("start video generation: %w", err)
	}
	if op.Name == "" {
		return nil, fmt.Errorf("start video generation: operation has no name")
	}

	log.Debug().Str("provider", ProviderVeo).Str("operation", op.Name).Msg("operation started")
	return &OperationHandle{Name: op.Name, Provider: ProviderVeo}, nil
}

// PollVideo fetches the current state of an operation.
func (s *VeoService) PollVideo(ctx context.Context, handle *OperationHandle) (*OperationStatus, error) {
	op, err := s.client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: handle.Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("get operation %s: %w", handle.Name, err)
	}
	return veoOperationStatus(op), nil
}

// DownloadVideo fetches a result URI, authenticating with the API key query parameter.
func (s *VeoService) DownloadVideo(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse video uri: %w", err)
	}
	q := u.Query()
	q.Set(veoDownloadKeyName, s.apiKey)
	u.RawQuery = q.Encode()

	return fetchVideo(ctx, s.httpClient, u.String(), nil)
}

func veoOperationStatus(op *genai.GenerateVideosOperation) *OperationStatus {
	if op == nil || !op.Done {
		return &OperationStatus{}
	}

	status := &OperationStatus{Done: true}

	// Operation-level errors (invalid request, quota exceeded, internal failures)
	if len(op.Error) > 0 {
		msg, _ := op.Error["message"].(string)
		if msg == "" {
			errJSON, _ := json.Marshal(op.Error)
			msg = string(errJSON)
		}
		status.FailureMessage = msg
		return status
	}

	if op.Response == nil {
		return status
	}

	// Responsible AI filters report a count and reasons instead of a video
	if op.Response.RAIMediaFilteredCount > 0 {
		status.FilteredReasons = append([]string(nil), op.Response.RAIMediaFilteredReasons...)
	}

	for _, v := range op.Response.GeneratedVideos {
		if v != nil && v.Video != nil && v.Video.URI != "" {
			status.VideoURI = v.Video.URI
			break
		}
	}
	return status
}
