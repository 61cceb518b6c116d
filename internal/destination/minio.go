package destination

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/The-Promised-Neverland/relay/internal/copier"
	"github.com/The-Promised-Neverland/relay/pkg/logger"
	"github.com/The-Promised-Neverland/relay/pkg/utils"
)

// MinioConfig addresses an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Minio delivers into an S3-compatible bucket.
type Minio struct {
	client *minio.Client
	bucket string
}

// NewMinio connects and creates the bucket when it does not exist yet.
func NewMinio(ctx context.Context, cfg MinioConfig) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Log.Info("Bucket created", "bucket", cfg.Bucket)
	}
	return &Minio{client: client, bucket: cfg.Bucket}, nil
}

func (m *Minio) SendDocument(ctx context.Context, up DocumentUpload) (Receipt, error) {
	key, n, err := m.put(ctx, up.Upload, map[string]string{"caption": up.Caption})
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{Name: key, Location: m.location(key), Size: n}, nil
}

func (m *Minio) SendVideo(ctx context.Context, up VideoUpload) (Receipt, error) {
	key, n, err := m.put(ctx, up.Upload, map[string]string{
		"caption":  up.Caption,
		"duration": strconv.Itoa(up.Duration),
	})
	if err != nil {
		return Receipt{}, err
	}
	if up.Thumb != "" {
		_, err := m.client.FPutObject(ctx, m.bucket, key+".jpg", up.Thumb, minio.PutObjectOptions{ContentType: "image/jpeg"})
		if err != nil {
			logger.Log.Warn("Failed to upload thumbnail", "key", key, "err", err)
		}
	}
	return Receipt{Name: key, Location: m.location(key), Size: n, Video: true}, nil
}

func (m *Minio) put(ctx context.Context, up Upload, meta map[string]string) (string, int64, error) {
	f, err := os.Open(up.Path)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	defer f.Close()
	size := up.Size
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	key := utils.SanitizeFileName(up.Name)
	if key == "" {
		key = path.Base(up.Path)
	}
	key, err = m.freeKey(ctx, key)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	opts := up.options()
	opts.Total = size
	body := copier.NewReader(f, opts)
	info, err := m.client.PutObject(ctx, m.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  DetectContentType(up.Path),
		UserMetadata: meta,
	})
	if err != nil {
		if up.Token.Cancelled() || errors.Is(err, copier.ErrCancelled) {
			return "", body.BytesRead(), copier.ErrCancelled
		}
		return "", body.BytesRead(), fmt.Errorf("%w: %w", ErrRejected, err)
	}
	logger.Log.Info("Delivered to bucket", "bucket", m.bucket, "key", key, "bytes", info.Size)
	return key, info.Size, nil
}

// freeKey returns the first key derived from key that is not yet in the
// bucket.
func (m *Minio) freeKey(ctx context.Context, key string) (string, error) {
	for i := 0; i < maxNameAttempts; i++ {
		cand := candidateName(key, i)
		_, err := m.client.StatObject(ctx, m.bucket, cand, minio.StatObjectOptions{})
		if err == nil {
			continue
		}
		if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
			return cand, nil
		}
		return "", fmt.Errorf("failed to stat %s: %w", cand, err)
	}
	return "", fmt.Errorf("no free key for %s", key)
}

func (m *Minio) location(key string) string {
	return fmt.Sprintf("%s/%s/%s", m.client.EndpointURL().String(), m.bucket, key)
}
