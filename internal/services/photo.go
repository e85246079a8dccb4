package services

import (
	"context"
	"errors"
	"time"

	"heartsync-backend/internal/apperr"
	"heartsync-backend/internal/storage"

	"github.com/rs/zerolog/log"
)

// Upload form fields
const (
	FieldProfileImage = "profile_image"
	FieldAvatar       = "avatar"
)

// PhotoService handles profile image uploads
type PhotoService struct {
	storage storage.Storage
	users   *UserService
	now     func() time.Time
}

// NewPhotoService creates a new photo service
func NewPhotoService(st storage.Storage, users *UserService) *PhotoService {
	return &PhotoService{storage: st, users: users, now: time.Now}
}

// Upload stores an image and returns its public URL
func (s *PhotoService) Upload(ctx context.Context, field, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperr.InvalidRequest("no file uploaded")
	}

	img, err := storage.PrepareImage(field, data, s.now())
	if err != nil {
		if errors.Is(err, storage.ErrNotImage) {
			return "", apperr.InvalidRequest("file must be an image")
		}
		return "", apperr.Internal("failed to read upload", err)
	}

	url, err := s.storage.Put(ctx, img.Key, img.ContentType, img.Data)
	if err != nil {
		return "", apperr.Internal("failed to store upload", err)
	}

	log.Debug().Str("key", img.Key).Str("filename", filename).Str("content_type", img.ContentType).Int("size", len(data)).Msg("Image stored")
	return url, nil
}

// SetAvatar stores an image and makes it the caller's profile photo
func (s *PhotoService) SetAvatar(ctx context.Context, callerID, userID, filename string, data []byte) (string, error) {
	if err := requireOwner(callerID, userID); err != nil {
		return "", err
	}
	// fail before writing the file if the account is gone
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return "", err
	}

	url, err := s.Upload(ctx, FieldAvatar, filename, data)
	if err != nil {
		return "", err
	}
	if err := s.users.SetPhoto(ctx, userID, url); err != nil {
		return "", err
	}
	return url, nil
}
