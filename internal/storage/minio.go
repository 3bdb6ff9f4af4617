// Package storage keeps vault snapshots in S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ErrObjectNotFound is returned when the requested key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// FileStorage is the object storage surface used by the export service.
type FileStorage interface {
	UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	DownloadFile(ctx context.Context, objectKey string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// MinioConfig holds the connection parameters.
type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
}

// MinioClient implements FileStorage on top of MinIO.
type MinioClient struct {
	client     *minio.Client
	bucketName string
	log        *zap.Logger
}

// NewMinioClient connects to MinIO and creates the bucket when it is missing.
func NewMinioClient(ctx context.Context, cfg MinioConfig, log *zap.Logger) (*MinioClient, error) {
	if cfg.Endpoint == "" || cfg.BucketName == "" {
		return nil, errors.New("minio endpoint and bucket are required")
	}
	log = log.With(zap.String("component", "minio"), zap.String("bucket", cfg.BucketName))

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.BucketName, err)
	}
	if !exists {
		log.Info("bucket not found, creating")
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.BucketName, err)
		}
	}

	log.Info("object storage ready", zap.String("endpoint", cfg.Endpoint))
	return &MinioClient{client: client, bucketName: cfg.BucketName, log: log}, nil
}

// UploadFile stores reader under objectKey. A negative size streams until EOF.
func (c *MinioClient) UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	info, err := c.client.PutObject(ctx, c.bucketName, objectKey, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		c.log.Error("upload failed", zap.String("key", objectKey), zap.Error(err))
		return fmt.Errorf("upload %s: %w", objectKey, err)
	}
	c.log.Debug("uploaded", zap.String("key", objectKey), zap.Int64("size", info.Size), zap.String("etag", info.ETag))
	return nil
}

// DownloadFile opens objectKey for reading. The caller closes the reader.
func (c *MinioClient) DownloadFile(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	obj, err := c.client.GetObject(ctx, c.bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("download %s: %w", objectKey, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before streaming starts.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", objectKey, err)
	}
	return obj, nil
}

// List returns the objects under prefix, newest first.
func (c *MinioClient) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj := range c.client.ListObjects(ctx, c.bucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(objs []ObjectInfo) {
	sort.SliceStable(objs, func(i, j int) bool {
		return objs[i].LastModified.After(objs[j].LastModified)
	})
}

func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject"
	}
	return false
}
