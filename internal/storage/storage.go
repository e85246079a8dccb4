// Package storage stores uploaded images on local disk or in S3 and returns
// the URL clients load them from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"heartsync-backend/internal/config"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrNotImage is returned when uploaded bytes are not a supported image format
var ErrNotImage = errors.New("file is not a supported image")

var allowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/heic", "image/heif"}

// Storage puts an object under key and returns its public URL
type Storage interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// New builds the storage selected by cfg.Driver
func New(ctx context.Context, cfg config.StorageConfig, aws config.AWSConfig) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocal(cfg.UploadDir, cfg.PublicBaseURL)
	case "s3":
		return NewS3(ctx, aws)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Image is a sniffed upload ready to be stored
type Image struct {
	Key         string
	ContentType string
	Data        []byte
}

// PrepareImage checks that data is an image and names it "<field>-<unix millis>-<random><ext>".
// The extension always comes from the sniffed type; the file server derives
// Content-Type from it, so client filenames are ignored.
func PrepareImage(field string, data []byte, now time.Time) (*Image, error) {
	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, mtype.String())
	}
	ext := mtype.Extension()

	return &Image{
		Key:         fmt.Sprintf("%s-%d-%s%s", field, now.UnixMilli(), uuid.NewString()[:8], ext),
		ContentType: mtype.String(),
		Data:        data,
	}, nil
}
