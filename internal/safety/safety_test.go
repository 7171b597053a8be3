package safety

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want Category
	}{
		{"Blocked: WEAPON detected", CategoryViolence},
		{"graphic violence", CategoryViolence},
		{"drug reference", CategorySubstance},
		{"smoke in frame", CategorySubstance},
		{"Sexual content", CategoryExplicit},
		{"stacks of cash", CategoryMoney},
		{"weapon and money", CategoryViolence},
		{"something else entirely", CategoryGeneral},
		{"", CategoryGeneral},
	}
	for _, tt := range tests {
		if got := Classify(tt.msg); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.msg, got, tt.want)
		}
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		if Classify("money shot") != CategoryMoney {
			t.Fatal("classification changed between calls")
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"no video sentinel", ErrNoVideo, true},
		{"wrapped safety", fmt.Errorf("attempt 1: %w", ErrSafetyBlocked), true},
		{"generation failed", fmt.Errorf("%w: quota", ErrGenerationFailed), true},
		{"poll timeout", ErrPollTimeout, true},
		{"empty download", ErrEmptyDownload, true},
		{"provider safety text", errors.New("Request blocked by Safety settings"), true},
		{"provider status text", errors.New("operation state FAILED"), true},
		{"no frames", errors.New("No frames returned"), true},
		{"auth error", errors.New("API key not valid"), false},
		{"transport wrapper", errors.New("start video generation: failed to dial"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSelectStrategy(t *testing.T) {
	r := SelectStrategy(1, true)
	if r.Strategy != StrategyReferenceSwap || !r.DropStyleImage || !r.TryReference {
		t.Errorf("attempt 1 with style image: %+v", r)
	}

	// The reference still is generated whether or not a style image was attached
	r = SelectStrategy(1, false)
	if r.Strategy != StrategyReferenceSwap || r.DropStyleImage || !r.TryReference {
		t.Errorf("attempt 1 without style image: %+v", r)
	}
	if r.ReplacePrompt != "" {
		t.Errorf("reference swap must keep the prompt, got %q", r.ReplacePrompt)
	}

	for _, has := range []bool{true, false} {
		r = SelectStrategy(2, has)
		if r.Strategy != StrategyHardFallback || !r.DropStyleImage || r.TryReference {
			t.Errorf("attempt 2 (style=%v): %+v", has, r)
		}
		if r.ReplacePrompt != FallbackPrompt {
			t.Errorf("attempt 2 (style=%v) prompt: %q", has, r.ReplacePrompt)
		}
	}
}

func TestFallbackPromptText(t *testing.T) {
	if FallbackPrompt != "Abstract cinematic music video scene, atmospheric lighting, moody, high quality, 4k" {
		t.Errorf("fallback prompt changed: %q", FallbackPrompt)
	}
}
