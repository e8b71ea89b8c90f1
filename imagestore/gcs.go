package imagestore

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/warp/attendance-engine/attendance"
	"google.golang.org/api/option"
)

// GCS uploads images to a Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

var _ attendance.ImageStore = (*GCS)(nil)

// NewGCS connects with the given service account JSON, or with application
// default credentials when credJSON is empty.
func NewGCS(ctx context.Context, bucket, credJSON string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	var opts []option.ClientOption
	if strings.TrimSpace(credJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) Store(ctx context.Context, employeeID string, kind attendance.ImageKind, image []byte) (string, error) {
	data, err := Normalize(image, MaxWidth)
	if err != nil {
		return "", err
	}

	name := ObjectName(employeeID, kind)
	wc := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}
	return PublicURL(g.bucket, name), nil
}

// PublicURL is the storage.googleapis.com URL of an object.
func PublicURL(bucket, object string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + object
}
