package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bobarin/directorscut/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Uploader is an object store that serves what it stores at a stable URL.
type Uploader interface {
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) error
	PublicURL(objectPath string) string
	Bucket() string
}

// AssetRecorder stores asset rows.
type AssetRecorder interface {
	CreateAsset(ctx context.Context, asset *models.Asset) error
}

// Publisher uploads clips and audio, records an asset row for each, and
// returns the public URL. Uploads are limited to a few at a time.
type Publisher struct {
	store  Uploader
	assets AssetRecorder
	sem    chan struct{}
}

const defaultUploadSlots = 4

func NewPublisher(store Uploader, assets AssetRecorder) *Publisher {
	return &Publisher{
		store:  store,
		assets: assets,
		sem:    make(chan struct{}, defaultUploadSlots),
	}
}

// ClipPath is where a scene's clip is stored.
func ClipPath(projectID uuid.UUID, sceneID string) string {
	return ObjectPath(projectID, fmt.Sprintf("scene_%s.mp4", sceneID))
}

// PublishClip uploads a scene's clip and returns its playback URL.
func (p *Publisher) PublishClip(ctx context.Context, projectID uuid.UUID, sceneID string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("clip for scene %s is empty", sceneID)
	}
	sid := sceneID
	asset := &models.Asset{
		ID:            uuid.New(),
		ProjectID:     projectID,
		SceneID:       &sid,
		Type:          models.AssetTypeClipVideo,
		StorageBucket: p.store.Bucket(),
		StoragePath:   ClipPath(projectID, sceneID),
		ContentType:   strPtr("video/mp4"),
		ByteSize:      int64Ptr(int64(len(data))),
	}
	if err := p.publish(ctx, asset, data); err != nil {
		return "", err
	}
	return p.store.PublicURL(asset.StoragePath), nil
}

// PublishAudio uploads a project's song and returns its storage path.
func (p *Publisher) PublishAudio(ctx context.Context, projectID uuid.UUID, filename, contentType string, data []byte) (string, error) {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".mp3"
	}
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	asset := &models.Asset{
		ID:            uuid.New(),
		ProjectID:     projectID,
		Type:          models.AssetTypeAudio,
		StorageBucket: p.store.Bucket(),
		StoragePath:   ObjectPath(projectID, "audio"+ext),
		ContentType:   strPtr(contentType),
		ByteSize:      int64Ptr(int64(len(data))),
	}
	if err := p.publish(ctx, asset, data); err != nil {
		return "", err
	}
	return asset.StoragePath, nil
}

func (p *Publisher) publish(ctx context.Context, asset *models.Asset, data []byte) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("upload cancelled while waiting for slot: %w", ctx.Err())
	}
	defer func() { <-p.sem }()

	if err := p.store.Upload(ctx, asset.StoragePath, data, *asset.ContentType); err != nil {
		return fmt.Errorf("upload %s: %w", asset.StoragePath, err)
	}

	if p.assets != nil {
		if err := p.assets.CreateAsset(ctx, asset); err != nil {
			// The object is already reachable; a missing row only loses bookkeeping
			log.Warn().Err(err).Str("path", asset.StoragePath).Msg("asset record not saved")
		}
	}

	log.Debug().
		Str("project_id", asset.ProjectID.String()).
		Str("type", string(asset.Type)).
		Int64("bytes", *asset.ByteSize).
		Str("path", asset.StoragePath).
		Msg("asset published")
	return nil
}

func strPtr(s string) *string { return &s }

func int64Ptr(i int64) *int64 { return &i }
