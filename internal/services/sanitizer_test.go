package services

import (
	"context"
	"errors"
	"testing"
)

type fakeText struct {
	out  string
	err  error
	last TextRequest
}

func (f *fakeText) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	f.last = req
	return f.out, f.err
}

type fakeImages struct {
	img        *InlineImage
	err        error
	lastPrompt string
	lastAspect string
}

func (f *fakeImages) GenerateImage(ctx context.Context, prompt, aspectRatio string) (*InlineImage, error) {
	f.lastPrompt = prompt
	f.lastAspect = aspectRatio
	return f.img, f.err
}

func TestSanitizeReturnsRewrite(t *testing.T) {
	text := &fakeText{out: "  rapper on a neon stage, shot on 35mm  "}
	s := NewSanitizer(text, "")

	got, err := s.Sanitize(context.Background(), "rapper counting cash")
	if err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	if got != "rapper on a neon stage, shot on 35mm" {
		t.Errorf("unexpected rewrite %q", got)
	}
	if text.last.Temperature == nil || *text.last.Temperature != sanitizerTemperature {
		t.Errorf("expected temperature %v", sanitizerTemperature)
	}
	if text.last.MaxTokens != sanitizerMaxTokens {
		t.Errorf("expected max tokens %d, got %d", sanitizerMaxTokens, text.last.MaxTokens)
	}
}

func TestSanitizeRejectsEmpty(t *testing.T) {
	s := NewSanitizer(&fakeText{out: "   "}, "")
	if _, err := s.Sanitize(context.Background(), "x"); !errors.Is(err, ErrEmptyRewrite) {
		t.Fatalf("expected ErrEmptyRewrite, got %v", err)
	}
}

func TestSanitizePropagatesError(t *testing.T) {
	s := NewSanitizer(&fakeText{err: errors.New("quota")}, "")
	if _, err := s.Sanitize(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestReferenceGenerator(t *testing.T) {
	images := &fakeImages{img: &InlineImage{Data: []byte("png"), MIMEType: "image/jpeg"}}
	g := NewReferenceGenerator(images)

	img := g.Generate(context.Background(), "stage lights", "4:3")
	if img == nil {
		t.Fatal("expected image")
	}
	if img.MIMEType != "image/jpeg" {
		t.Errorf("provider MIME type should be kept, got %s", img.MIMEType)
	}
	if images.lastAspect != "16:9" {
		t.Errorf("unsupported aspect should map to 16:9, got %s", images.lastAspect)
	}
	if images.lastPrompt != "Cinematic still, high quality, professional music video shot: stage lights" {
		t.Errorf("unexpected prompt %q", images.lastPrompt)
	}
}

func TestReferenceGeneratorDefaultsToPNG(t *testing.T) {
	g := NewReferenceGenerator(&fakeImages{img: &InlineImage{Data: []byte("png")}})
	img := g.Generate(context.Background(), "x", "16:9")
	if img == nil || img.MIMEType != "image/png" {
		t.Fatalf("expected image/png fallback, got %+v", img)
	}
}

func TestReferenceGeneratorFailureIsNil(t *testing.T) {
	g := NewReferenceGenerator(&fakeImages{err: errors.New("filtered")})
	if img := g.Generate(context.Background(), "x", "9:16"); img != nil {
		t.Fatal("expected nil on failure")
	}
}
