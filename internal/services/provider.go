package services

import (
	"context"
	"encoding/base64"

	"google.golang.org/genai"
)

// InlineImage is an image carried by value, as returned by image models and
// accepted as a first frame by video models.
type InlineImage struct {
	Data     []byte
	MIMEType string
}

// Base64 returns the standard base64 encoding of the image bytes.
func (i *InlineImage) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the image as a data: URL.
func (i *InlineImage) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + i.Base64()
}

// DecodeInlineImage builds an InlineImage from base64 text.
func DecodeInlineImage(b64, mimeType string) (*InlineImage, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	return &InlineImage{Data: data, MIMEType: mimeType}, nil
}

// VideoRequest describes one video generation submission.
type VideoRequest struct {
	Model       string
	Prompt      string
	AspectRatio string
	Image       *InlineImage // optional first frame / style reference
}

// OperationHandle identifies a submitted, long-running video generation.
type OperationHandle struct {
	Name     string
	Provider string
}

// OperationStatus is one observation of a long-running video generation.
type OperationStatus struct {
	Done bool
	// VideoURI is the result location once Done. Empty when the provider
	// produced nothing.
	VideoURI string
	// FailureMessage is set when the provider reported the operation failed.
	FailureMessage string
	// FilteredReasons lists policy filter reasons reported with an empty result.
	FilteredReasons []string
}

// VideoGenerator submits, observes and fetches video generations.
type VideoGenerator interface {
	SubmitVideo(ctx context.Context, req VideoRequest) (*OperationHandle, error)
	PollVideo(ctx context.Context, handle *OperationHandle) (*OperationStatus, error)
	DownloadVideo(ctx context.Context, uri string) ([]byte, error)
}

// ImageGenerator produces a single still image.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, aspectRatio string) (*InlineImage, error)
}

// TextRequest is a single-turn text generation.
type TextRequest struct {
	Model             string // empty = service default
	SystemInstruction string
	UserMessage       string
	Temperature       *float32
	MaxTokens         int
	// Schema requests JSON output. Services without structured output support
	// fall back to plain JSON mode.
	Schema *genai.Schema
}

// TextGenerator produces text from a single prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}

// Backend bundles the generation capabilities the render pipeline needs.
// Any field may be nil when its provider is not configured.
type Backend struct {
	Video VideoGenerator
	Image ImageGenerator
	Text  TextGenerator
}

// Ready reports whether every capability has a provider.
func (b *Backend) Ready() bool {
	return b != nil && b.Video != nil && b.Image != nil && b.Text != nil
}

func float32Ptr(v float32) *float32 { return &v }
