package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

const sanitizerSystemInstruction = `You are a Video Prompt Rewriter specializing in making prompts safe for AI video generation while PRESERVING HIP-HOP AESTHETICS.

The original prompt was blocked by the video model's safety filter. Your task is to REWRITE the prompt to be safe but keep the vibe.

RULES:
1. Remove ALL references to: money stacks, counting bills, drugs, smoking weed/blunts, alcohol, weapons, shooting, explicit nudity/sex.
2. KEEP "rapper", "hip-hop artist", "MC", "urban", "street", "graffiti" - these are SAFE.
3. KEEP "gritty", "haze", "fog" BUT contextualize them:
   - "haze" -> "atmospheric stage fog" or "misty alleyway"
   - "gritty" -> "cinematic film grain", "urban texture"
4. Replace "counting cash" with "gesturing with hands", "wearing gold chains", "looking confident".
5. Replace "smoking" with "cold breath condensing", "fog machine", "dramatic backlighting".
6. Add CINEMATIC keywords: "shot on 35mm", "anamorphic", "depth of field", "4k", "color graded".

Return ONLY the rewritten prompt text, nothing else.`

const (
	sanitizerTemperature = 0.5
	sanitizerMaxTokens   = 500
)

// ErrEmptyRewrite is returned when the text model answers with nothing usable.
var ErrEmptyRewrite = errors.New("sanitizer returned an empty prompt")

// Sanitizer rewrites a blocked prompt into a policy-compliant one that keeps
// the scene's genre and mood.
type Sanitizer struct {
	text  TextGenerator
	model string
}

func NewSanitizer(text TextGenerator, model string) *Sanitizer {
	return &Sanitizer{text: text, model: model}
}

// Sanitize returns the rewritten prompt. Callers fall back to a generic prompt on error.
func (s *Sanitizer) Sanitize(ctx context.Context, prompt string) (string, error) {
	log.Warn().Int("prompt_len", len(prompt)).Msg("running safety sanitizer on prompt")

	out, err := s.text.GenerateText(ctx, TextRequest{
		Model:             s.model,
		SystemInstruction: sanitizerSystemInstruction,
		UserMessage:       fmt.Sprintf("Original Prompt: %q", prompt),
		Temperature:       float32Ptr(sanitizerTemperature),
		MaxTokens:         sanitizerMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("sanitize prompt: %w", err)
	}

	out = strings.Trim(strings.TrimSpace(out), `"`)
	if out == "" {
		return "", ErrEmptyRewrite
	}
	return out, nil
}
