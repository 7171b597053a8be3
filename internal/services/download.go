package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bobarin/directorscut/internal/safety"
)

const videoDownloadTimeout = 5 * time.Minute

func newDownloadClient() *http.Client {
	return &http.Client{Timeout: videoDownloadTimeout}
}

// fetchVideo retrieves a finished clip. A non-success status and an empty body
// are both reported as pipeline failures so the render loop can retry them.
func fetchVideo(ctx context.Context, client *http.Client, videoURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d %s", safety.ErrDownloadStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read video data: %w", err)
	}
	if len(data) == 0 {
		return nil, safety.ErrEmptyDownload
	}
	return data, nil
}
