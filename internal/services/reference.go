package services

import (
	"context"

	"github.com/bobarin/directorscut/internal/safety"
	"github.com/rs/zerolog/log"
)

// ReferenceGenerator produces a policy-safe still used in place of a user
// style image that the video model rejected.
type ReferenceGenerator struct {
	images ImageGenerator
}

func NewReferenceGenerator(images ImageGenerator) *ReferenceGenerator {
	return &ReferenceGenerator{images: images}
}

// Generate returns a reference image for the prompt, or nil when none could
// be produced. Failures are logged and never returned.
func (g *ReferenceGenerator) Generate(ctx context.Context, prompt, aspectRatio string) *InlineImage {
	log.Warn().Str("aspect", aspectRatio).Msg("generating safe reference image")

	img, err := g.images.GenerateImage(ctx, safety.ReferencePromptPrefix+prompt, imageAspect(aspectRatio))
	if err != nil {
		log.Error().Err(err).Msg("reference image generation failed")
		return nil
	}
	if img == nil || len(img.Data) == 0 {
		return nil
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return &InlineImage{Data: img.Data, MIMEType: mime}
}
