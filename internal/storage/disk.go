package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// Disk is an Uploader backed by a local directory, for running the pipeline
// without a Supabase project. URLs are file:// URLs.
type Disk struct {
	root string
}

func NewDisk(root string) (*Disk, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve clip directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create clip directory: %w", err)
	}
	return &Disk{root: abs}, nil
}

func (d *Disk) Bucket() string { return "local" }

func (d *Disk) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := filepath.Join(d.root, filepath.FromSlash(objectPath))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func (d *Disk) PublicURL(objectPath string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(d.root, filepath.FromSlash(objectPath)))}
	return u.String()
}
