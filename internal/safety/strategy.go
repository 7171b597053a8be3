package safety

// MaxAttempts bounds the number of provider submissions per scene render.
const MaxAttempts = 3

// Strategy is the recovery applied after a retryable failure.
type Strategy int

const (
	// StrategyNone: the first attempt, submitted as the user configured it.
	StrategyNone Strategy = iota
	// StrategyReferenceSwap drops any style image and submits a freshly
	// generated reference, or sanitizes the prompt when no reference can be produced.
	StrategyReferenceSwap
	// StrategyHardFallback replaces the prompt with a generic one. The image
	// carried by the previous attempt, if any, is kept.
	StrategyHardFallback
)

func (s Strategy) String() string {
	switch s {
	case StrategyReferenceSwap:
		return "reference_swap"
	case StrategyHardFallback:
		return "hard_fallback"
	default:
		return "none"
	}
}

// FallbackPrompt is submitted by StrategyHardFallback. It carries no scene content.
const FallbackPrompt = "Abstract cinematic music video scene, atmospheric lighting, moody, high quality, 4k"

// SanitizerFallbackPrompt replaces the prompt when the sanitizer cannot produce one.
const SanitizerFallbackPrompt = "Cinematic music video scene, professional lighting, high quality, 4k"

// ReferencePromptPrefix frames the scene prompt for reference still generation.
const ReferencePromptPrefix = "Cinematic still, high quality, professional music video shot: "

// Recovery is the plan for the next attempt after a retryable failure.
type Recovery struct {
	Strategy Strategy
	// DropStyleImage removes the user style image from subsequent submissions.
	DropStyleImage bool
	// TryReference asks for a generated reference image before sanitizing.
	TryReference bool
	// ReplacePrompt is the prompt for the next attempt; empty keeps the current one.
	ReplacePrompt string
}

// SelectStrategy picks the recovery for a retryable failure of the given
// 1-based attempt. It is a pure function of its inputs.
func SelectStrategy(attempt int, hasStyleImage bool) Recovery {
	switch {
	case attempt <= 1:
		return Recovery{
			Strategy:       StrategyReferenceSwap,
			DropStyleImage: hasStyleImage,
			TryReference:   true,
		}
	default:
		return Recovery{
			Strategy:       StrategyHardFallback,
			DropStyleImage: true,
			ReplacePrompt:  FallbackPrompt,
		}
	}
}
