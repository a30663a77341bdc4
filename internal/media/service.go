package media

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/angelmondragon/maiyom-backend/pkg/auth"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/google/uuid"
)

const defaultMaxUploadBytes = 10 * 1024 * 1024

type objectStore interface {
	UploadObject(ctx context.Context, bucket, object, contentType string, body io.Reader) (string, error)
}

// Service stores user photos and returns their public URLs.
type Service interface {
	UploadPhoto(ctx context.Context, actor auth.Actor, input UploadInput) (*UploadOutput, error)
}

type service struct {
	store    objectStore
	bucket   string
	maxBytes int64
	logg     *logger.Logger
	newID    func() uuid.UUID
}

// NewService constructs a media service backed by the provided object store.
// maxBytes <= 0 selects the default limit.
func NewService(store objectStore, bucket string, maxBytes int64, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket required")
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return &service{
		store:    store,
		bucket:   bucket,
		maxBytes: maxBytes,
		logg:     logg,
		newID:    uuid.New,
	}, nil
}

// UploadInput is one photo upload.
type UploadInput struct {
	Kind        enums.MediaKind
	ContentType string
	Body        io.Reader
}

// UploadOutput describes the stored object.
type UploadOutput struct {
	URL         string `json:"url"`
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

func (s *service) UploadPhoto(ctx context.Context, actor auth.Actor, input UploadInput) (*UploadOutput, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid media kind")
	}
	if input.Body == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file is required")
	}

	mimeType, err := normalizeMimeType(input.ContentType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid content type")
	}
	ext, ok := extensionFor(mimeType)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only "+allowedMimeDescription+" are allowed").
			WithDetails(map[string]any{"content_type": mimeType})
	}

	data, err := io.ReadAll(io.LimitReader(input.Body, s.maxBytes+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read upload")
	}
	size := int64(len(data))
	if size == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file is empty")
	}
	if size > s.maxBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("file must be at most %d bytes", s.maxBytes)).
			WithDetails(map[string]any{"max_bytes": s.maxBytes})
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if !contentMatches(mimeType, head) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file content does not match content type")
	}

	path := objectPath(input.Kind, actor.UserID, s.newID(), ext)
	url, err := s.store.UploadObject(ctx, s.bucket, path, mimeType, bytes.NewReader(data))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload photo")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"path": path, "size_bytes": size}), "photo uploaded")
	}

	return &UploadOutput{
		URL:         url,
		Path:        path,
		ContentType: mimeType,
		SizeBytes:   size,
	}, nil
}

func objectPath(kind enums.MediaKind, userID, id uuid.UUID, ext string) string {
	return fmt.Sprintf("%s/%s/%s.%s", kind, userID, id, ext)
}
