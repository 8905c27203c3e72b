package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinIOConfig locates the server.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// MinIO implements Store on minio-go.
type MinIO struct {
	cli *minio.Client
	log zerolog.Logger
}

var _ Store = (*MinIO)(nil)

// NewMinIO builds a client and probes the server, retrying with a linearly
// growing delay up to tries times.
func NewMinIO(ctx context.Context, cfg MinIOConfig, tries int, log zerolog.Logger) (*MinIO, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: minio client: %w", err)
	}
	if tries <= 0 {
		tries = 1
	}
	for i := 0; i < tries; i++ {
		if _, err = cli.ListBuckets(ctx); err == nil {
			return &MinIO{cli: cli, log: log}, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Str("endpoint", cfg.Endpoint).Msg("minio not ready")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second * time.Duration(1+i)):
		}
	}
	return nil, fmt.Errorf("objstore: minio not ready at %s: %w", cfg.Endpoint, err)
}

func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
	}
	return false
}

// List implements Store.
func (m *MinIO) List(ctx context.Context, bucket, prefix string, recursive bool) ([]string, error) {
	var keys []string
	for obj := range m.cli.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: recursive}) {
		if obj.Err != nil {
			if isNotFound(obj.Err) {
				return nil, fmt.Errorf("%w: bucket %s", ErrNotFound, bucket)
			}
			return nil, fmt.Errorf("objstore: list %s/%s: %w", bucket, prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Get implements Store.
func (m *MinIO) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := m.cli.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return nil, fmt.Errorf("objstore: get %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return nil, fmt.Errorf("objstore: read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Put implements Store.
func (m *MinIO) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := m.cli.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("objstore: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Stat implements Store.
func (m *MinIO) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	st, err := m.cli.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return ObjectInfo{}, fmt.Errorf("objstore: stat %s/%s: %w", bucket, key, err)
	}
	return ObjectInfo{Key: st.Key, Size: st.Size, LastModified: st.LastModified, ContentType: st.ContentType}, nil
}

// EnsureBucket implements Store.
func (m *MinIO) EnsureBucket(ctx context.Context, bucket string) error {
	ok, err := m.cli.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("objstore: bucket exists %s: %w", bucket, err)
	}
	if ok {
		return nil
	}
	if err := m.cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		// Another process may have created it between the two calls.
		if ok, e := m.cli.BucketExists(ctx, bucket); e == nil && ok {
			return nil
		}
		return fmt.Errorf("objstore: make bucket %s: %w", bucket, err)
	}
	m.log.Info().Str("bucket", bucket).Msg("created bucket")
	return nil
}
