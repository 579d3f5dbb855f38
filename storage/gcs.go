// Package storage uploads report photos to Google Cloud Storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "gcs")

var (
	ErrNoBucket = errors.New("no storage bucket configured")
	// ErrUnknownObject means a URL does not name an object this store wrote.
	ErrUnknownObject = errors.New("object was not uploaded to this bucket")
)

// ImageStore stores images with metadata and reads that metadata back.
type ImageStore interface {
	Upload(ctx context.Context, data []byte, contentType, folder string, metadata map[string]string) (string, error)
	Metadata(ctx context.Context, publicURL, folder string) (map[string]string, error)
}

// GCSUploader writes objects into one bucket.
type GCSUploader struct {
	client *storage.Client
	bucket string
}

// NewGCSUploader connects to Cloud Storage with application default
// credentials and checks that bucket is reachable.
func NewGCSUploader(ctx context.Context, bucket string) (*GCSUploader, error) {
	if bucket == "" {
		return nil, ErrNoBucket
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to Google Cloud Storage: %w", err)
	}

	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("access bucket %s: %w", bucket, err)
	}
	log.Infof("Bucket %s is ready", bucket)

	return &GCSUploader{client: client, bucket: bucket}, nil
}

// Close releases the client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

// Upload implements ImageStore.
func (u *GCSUploader) Upload(ctx context.Context, data []byte, contentType, folder string, metadata map[string]string) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	objectName := ObjectName(folder, contentType, uuid.NewString(), time.Now())

	writer := u.client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = metadata

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("copy %s to bucket %s: %w", objectName, u.bucket, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finish upload of %s: %w", objectName, err)
	}

	publicURL := PublicURL(u.bucket, objectName)
	log.Debugf("Uploaded %s", publicURL)
	return publicURL, nil
}

// Metadata implements ImageStore. URLs outside folder of this bucket, and
// objects that do not exist, give ErrUnknownObject.
func (u *GCSUploader) Metadata(ctx context.Context, publicURL, folder string) (map[string]string, error) {
	objectName, ok := ObjectFromURL(u.bucket, folder, publicURL)
	if !ok {
		return nil, ErrUnknownObject
	}

	attrs, err := u.client.Bucket(u.bucket).Object(objectName).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrUnknownObject
	}
	if err != nil {
		return nil, fmt.Errorf("read attributes of %s: %w", objectName, err)
	}
	return attrs.Metadata, nil
}

// Extension maps an image MIME type to a file extension, defaulting to jpg.
func Extension(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpeg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/heic":
		return "heic"
	default:
		return "jpg"
	}
}

// ObjectName builds a collision free object name inside folder.
func ObjectName(folder, contentType, id string, now time.Time) string {
	return fmt.Sprintf("%s/%s_%d.%s", strings.Trim(folder, "/"), id, now.UnixNano(), Extension(contentType))
}

// PublicURL is the public address of an object.
func PublicURL(bucket, objectName string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, objectName)
}

// ObjectFromURL is the inverse of PublicURL, restricted to objects directly
// inside folder.
func ObjectFromURL(bucket, folder, publicURL string) (string, bool) {
	objectName, ok := strings.CutPrefix(publicURL, PublicURL(bucket, ""))
	if !ok {
		return "", false
	}
	name, ok := strings.CutPrefix(objectName, strings.Trim(folder, "/")+"/")
	if !ok || name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return "", false
	}
	return objectName, true
}
