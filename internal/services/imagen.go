package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	ProviderImagen     = "imagen"
	defaultImagenModel = "imagen-4.0-generate-001"
	imagenOutputMime   = "image/png"
)

// ImagenService generates stills with Imagen through the Gen AI SDK.
type ImagenService struct {
	client *genai.Client
	model  string
}

func NewImagenService(client *genai.Client, model string) *ImagenService {
	if model == "" {
		model = defaultImagenModel
	}
	return &ImagenService{client: client, model: model}
}

// GenerateImage produces one image for the prompt at 16:9 or 9:16.
func (s *ImagenService) GenerateImage(ctx context.Context, prompt, aspectRatio string) (*InlineImage, error) {
	resp, err := s.client.Models.GenerateImages(ctx, s.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    imageAspect(aspectRatio),
	})
	if err != nil {
		return nil, fmt.Errorf("imagen request: %w", err)
	}

	for _, img := range resp.GeneratedImages {
		if img == nil {
			continue
		}
		if img.Image != nil && len(img.Image.ImageBytes) > 0 {
			return &InlineImage{Data: img.Image.ImageBytes, MIMEType: imagenOutputMime}, nil
		}
		if img.RAIFilteredReason != "" {
			log.Warn().Str("provider", ProviderImagen).Str("reason", img.RAIFilteredReason).Msg("image filtered")
			return nil, fmt.Errorf("imagen filtered image: %s", img.RAIFilteredReason)
		}
	}
	return nil, fmt.Errorf("imagen returned no image")
}

func imageAspect(aspectRatio string) string {
	if aspectRatio == "9:16" {
		return "9:16"
	}
	return "16:9"
}
