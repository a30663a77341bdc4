// Package gcs uploads publicly readable objects to Cloud Storage through the
// JSON API.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/angelmondragon/maiyom-backend/pkg/config"
	"github.com/angelmondragon/maiyom-backend/pkg/gcp"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

const (
	defaultPublicBase = "https://storage.googleapis.com"
	pingTimeout       = 5 * time.Second
	uploadTimeout     = 30 * time.Second
)

var errNotInitialized = errors.New("gcs client not initialized")

type Client struct {
	objects    *storage.ObjectsService
	bucket     string
	publicBase string
}

// NewClient builds a client for the configured bucket and verifies it can
// list objects. extra options are appended after the credentials.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcpCfg config.GCPConfig, logg *logger.Logger, extra ...option.ClientOption) (*Client, error) {
	bucket := strings.TrimSpace(cfg.BucketName)
	if bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	svc, err := storage.NewService(ctx, gcp.ClientOptions(gcpCfg, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("creating storage service: %w", err)
	}

	client := &Client{
		objects:    svc.Objects,
		bucket:     bucket,
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}
	return client, nil
}

// Ping lists at most one object of the bucket.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.objects == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	_, err := c.objects.List(c.bucket).MaxResults(1).Fields("items/name").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("listing bucket %q: %w", c.bucket, err)
	}
	return nil
}

// UploadObject stores body under object and returns its public URL. An empty
// bucket selects the configured one.
func (c *Client) UploadObject(ctx context.Context, bucket, object, contentType string, body io.Reader) (string, error) {
	if c == nil || c.objects == nil {
		return "", errNotInitialized
	}
	if object == "" {
		return "", errors.New("object name is required")
	}
	if bucket == "" {
		bucket = c.bucket
	}
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err := c.objects.
		Insert(bucket, &storage.Object{Name: object, ContentType: contentType}).
		Media(body, googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("uploading %s/%s: %w", bucket, object, err)
	}
	return c.publicURL(bucket, object), nil
}

func (c *Client) publicURL(bucket, object string) string {
	base := c.publicBase
	if base == "" {
		base = defaultPublicBase
	}
	segments := strings.Split(object, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return base + "/" + bucket + "/" + strings.Join(segments, "/")
}

// Close is a no-op; the JSON API client holds no long-lived connections of
// its own.
func (c *Client) Close() error {
	return nil
}
