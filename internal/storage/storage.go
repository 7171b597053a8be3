// Package storage publishes rendered clips and uploaded audio to Supabase
// Storage and records them as project assets.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// Per-attempt upload timeout; 8s 1080p clips run to tens of MB
	uploadTimeout = 180 * time.Second

	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// Supabase is a client for one Supabase Storage bucket.
type Supabase struct {
	url        string
	serviceKey string
	bucket     string
	client     *http.Client
	// retryBase scales the backoff between attempts
	retryBase time.Duration
}

func NewSupabase(url, serviceKey, bucket string) *Supabase {
	return &Supabase{
		url:        strings.TrimRight(url, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		retryBase:  baseRetryDelay,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (s *Supabase) Bucket() string { return s.bucket }

// Upload writes an object with retries and exponential backoff. Uses PUT
// with x-upsert so re-rendering a scene replaces its clip.
func (s *Supabase) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.bucket, objectPath)
	logger := log.With().Str("path", objectPath).Logger()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(s.retryBase, attempt)
			logger.Warn().Int("attempt", attempt).Int("max_retries", maxRetries).Dur("delay", delay).Msg("retrying upload")

			select {
			case <-ctx.Done():
				return fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		status, body, err := s.put(ctx, url, data, contentType)
		if err != nil {
			lastErr = fmt.Errorf("upload request: %w", err)
			if isRetryableError(err) {
				logger.Warn().Err(err).Int("attempt", attempt+1).Msg("upload attempt errored")
				continue
			}
			return lastErr
		}

		if status == http.StatusOK || status == http.StatusCreated {
			if attempt > 0 {
				logger.Info().Int("attempt", attempt+1).Msg("upload succeeded after retry")
			}
			return nil
		}

		lastErr = fmt.Errorf("upload returned status %d: %s", status, truncate(body, 200))
		if isRetryableStatus(status) {
			logger.Warn().Int("status", status).Int("attempt", attempt+1).Msg("upload attempt rejected")
			continue
		}
		return lastErr
	}

	return fmt.Errorf("upload gave up after %d attempts: %w", maxRetries+1, lastErr)
}

func (s *Supabase) put(ctx context.Context, url string, data []byte, contentType string) (int, string, error) {
	// Each attempt gets its own timeout, bounded by the caller's ctx
	uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(uploadCtx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	req.ContentLength = int64(len(data))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), nil
}

// PublicURL returns the public URL for an object.
func (s *Supabase) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.bucket, objectPath)
}

// ObjectPath places a file under its project's prefix.
func ObjectPath(projectID uuid.UUID, filename string) string {
	return path.Join(projectID.String(), filename)
}

// retryDelay is base * 2^(attempt-1) capped at maxRetryDelay, plus up to 25% jitter.
func retryDelay(base time.Duration, attempt int) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
