package safety

import (
	"errors"
	"strings"
)

// Category is the coarse content class inferred from a provider rejection message.
type Category string

const (
	CategoryViolence  Category = "violence"
	CategorySubstance Category = "substance"
	CategoryExplicit  Category = "explicit"
	CategoryMoney     Category = "money"
	CategoryGeneral   Category = "general"
)

var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategoryViolence, []string{"violence", "weapon"}},
	{CategorySubstance, []string{"drug", "substance", "smoke"}},
	{CategoryExplicit, []string{"explicit", "sexual"}},
	{CategoryMoney, []string{"money", "cash"}},
}

// Classify maps a failure message to a Category. Matching is case-insensitive,
// checked in fixed order, and falls back to CategoryGeneral.
func Classify(message string) Category {
	lower := strings.ToLower(message)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.category
			}
		}
	}
	return CategoryGeneral
}

// Pipeline failures. Providers wrap these so callers can branch with errors.Is.
var (
	// ErrSafetyBlocked means the provider filtered the output on policy grounds.
	ErrSafetyBlocked = errors.New("blocked by safety filter")
	// ErrNoVideo means the operation finished without a usable result.
	// Providers frequently report policy blocks this way.
	ErrNoVideo = errors.New("Veo returned no video (Possible Safety Block)")
	// ErrGenerationFailed means the provider reported an explicit failure status.
	ErrGenerationFailed = errors.New("video generation FAILED")
	// ErrPollTimeout means the operation did not finish within the poll budget.
	ErrPollTimeout = errors.New("Video generation timed out after maximum polling attempts")
	// ErrEmptyDownload means the result location returned zero bytes.
	ErrEmptyDownload = errors.New("Downloaded video is empty")
	// ErrDownloadStatus means the result location answered with a non-success status.
	ErrDownloadStatus = errors.New("Failed to download video")
)

var retryableErrors = []error{
	ErrSafetyBlocked,
	ErrNoVideo,
	ErrGenerationFailed,
	ErrPollTimeout,
	ErrEmptyDownload,
	ErrDownloadStatus,
}

var retryableMarkers = []string{"safety", "no video", "no frames"}

// failedStatus is the upper-case operation status some providers embed in messages.
// Lower-case "failed" is not a marker: it appears in ordinary transport errors.
const failedStatus = "FAILED"

// IsRetryable reports whether a render attempt that ended with err may be
// recovered by another attempt with a different strategy.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range retryableErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return IsRetryableMessage(err.Error())
}

// IsRetryableMessage applies the textual markers providers use for policy
// blocks, empty results and failed operations.
func IsRetryableMessage(message string) bool {
	if strings.Contains(message, failedStatus) {
		return true
	}
	lower := strings.ToLower(message)
	for _, m := range retryableMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
