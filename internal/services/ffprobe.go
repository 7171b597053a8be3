package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// FFprobeService measures media files with the ffprobe binary.
type FFprobeService struct {
	tempDir string
	binary  string
}

func NewFFprobeService(tempDir string) (*FFprobeService, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &FFprobeService{tempDir: tempDir, binary: "ffprobe"}, nil
}

// MediaDuration returns the container duration of a media file in seconds.
func (s *FFprobeService) MediaDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	output, err := exec.CommandContext(ctx, s.binary, args...).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseDuration(string(output))
}

// ProbeReader spools r to a temp file and returns its duration in seconds.
func (s *FFprobeService) ProbeReader(ctx context.Context, r io.Reader, ext string) (float64, error) {
	f, err := os.CreateTemp(s.tempDir, "probe-"+uuid.NewString()+"-*"+ext)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return 0, fmt.Errorf("spool media: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	return s.MediaDuration(ctx, f.Name())
}

func parseDuration(output string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(output), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(output), err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("media has no duration")
	}
	return v, nil
}
