// Package objectstore uploads local artifacts to an object storage bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss/credentials"
	"github.com/klauspost/compress/gzip"

	"github.com/grafana/nanofetch/log"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -o ../../mocks/uploader.go . Uploader

// Uploader stores the file at localPath under bucket/key and returns its object path.
type Uploader interface {
	Upload(ctx context.Context, localPath, bucket, key string) (string, error)
}

// Config configures the OSS uploader.
type Config struct {
	Region   string
	Endpoint string
	// AccessKeyID and AccessKeySecret are optional. When either is empty the
	// OSS_ACCESS_KEY_ID and OSS_ACCESS_KEY_SECRET environment variables are used.
	AccessKeyID     string
	AccessKeySecret string
	// Gzip compresses the file before upload and appends ".gz" to the key.
	Gzip bool
}

// putter is the subset of *oss.Client used for uploads.
type putter interface {
	PutObjectFromFile(ctx context.Context, request *oss.PutObjectRequest, filePath string, optFns ...func(*oss.Options)) (*oss.PutObjectResult, error)
}

// OSSUploader uploads files to Alibaba Cloud OSS.
type OSSUploader struct {
	client putter
	gzip   bool
	logger log.Logger
}

// NewOSSUploader creates an uploader for the region in cfg.
func NewOSSUploader(cfg Config, logger log.Logger) (*OSSUploader, error) {
	if cfg.Region == "" {
		return nil, errors.New("region cannot be empty")
	}

	var provider credentials.CredentialsProvider
	if cfg.AccessKeyID != "" && cfg.AccessKeySecret != "" {
		provider = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret)
	} else {
		provider = credentials.NewEnvironmentVariableCredentialsProvider()
	}

	ossCfg := oss.LoadDefaultConfig().
		WithCredentialsProvider(provider).
		WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		ossCfg = ossCfg.WithEndpoint(cfg.Endpoint)
	}

	return newUploader(oss.NewClient(ossCfg), cfg.Gzip, logger), nil
}

func newUploader(client putter, gzip bool, logger log.Logger) *OSSUploader {
	if logger == nil {
		logger = log.Noop()
	}
	return &OSSUploader{client: client, gzip: gzip, logger: logger}
}

// ObjectPath formats the location reported for an uploaded object.
func ObjectPath(bucket, key string) string {
	return fmt.Sprintf("oss://%s/%s", bucket, key)
}

// Upload puts the file at localPath into bucket under key.
func (u *OSSUploader) Upload(ctx context.Context, localPath, bucket, key string) (string, error) {
	if bucket == "" {
		return "", errors.New("bucket cannot be empty")
	}
	if key == "" {
		return "", errors.New("key cannot be empty")
	}

	logger := log.FromContextOr(ctx, u.logger)

	request := &oss.PutObjectRequest{
		Bucket:      oss.Ptr(bucket),
		Key:         oss.Ptr(key),
		ContentType: oss.Ptr("text/csv"),
	}

	path := localPath
	if u.gzip {
		compressed, err := compressFile(localPath)
		if err != nil {
			return "", err
		}
		defer os.Remove(compressed)

		path = compressed
		key += ".gz"
		request.Key = oss.Ptr(key)
		request.ContentType = oss.Ptr("application/gzip")
	}

	logger.Debug("Uploading object", "path", path, "bucket", bucket, "key", key)

	result, err := u.client.PutObjectFromFile(ctx, request, path)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to %s: %w", localPath, ObjectPath(bucket, key), err)
	}

	objectPath := ObjectPath(bucket, key)
	var etag string
	if result != nil && result.ETag != nil {
		etag = *result.ETag
	}
	logger.Info("Uploaded object", "object", objectPath, "etag", etag)

	return objectPath, nil
}

// compressFile gzips src into a temporary file and returns its path.
func compressFile(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.CreateTemp("", "nanofetch-*.gz")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("compress %s: %w", src, err)
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("compress %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("close %s: %w", out.Name(), err)
	}

	return out.Name(), nil
}
