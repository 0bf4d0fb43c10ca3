package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/market/domain"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const objectPrefix = "photos/"

// PhotoStore keeps each encoded photo as its own MinIO object named after
// its photo key.
type PhotoStore struct {
	client *minio.Client
	bucket string
	logger *logger.Logger
}

// NewPhotoStore connects to MinIO and makes sure the bucket exists.
func NewPhotoStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool, log *logger.Logger) (*PhotoStore, error) {
	log.Info("initializing MinIO photo store",
		zap.String("endpoint", endpoint),
		zap.String("bucket", bucket),
		zap.Bool("use_ssl", useSSL))

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for endpoint %s: %w", endpoint, err)
	}

	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		exists, errExists := client.BucketExists(ctx, bucket)
		if errExists != nil || !exists {
			return nil, fmt.Errorf("failed to make/verify bucket %s: (make: %v / exists_check: %v)", bucket, err, errExists)
		}
		log.Info("photo bucket already exists", zap.String("bucket", bucket))
	}

	return &PhotoStore{client: client, bucket: bucket, logger: log.Named("PhotoStore")}, nil
}

func objectKey(productID int64, index int) string {
	return objectPrefix + domain.PhotoKey(productID, index)
}

// SavePhotos uploads every photo. When one upload fails the objects already
// written for the product are removed again.
func (s *PhotoStore) SavePhotos(ctx context.Context, productID int64, photos []string) error {
	for i, photo := range photos {
		key := objectKey(productID, i)
		_, err := s.client.PutObject(ctx, s.bucket, key, strings.NewReader(photo), int64(len(photo)),
			minio.PutObjectOptions{ContentType: "text/plain"})
		if err != nil {
			s.logger.Error("PutObject failed", zap.String("key", key), zap.Error(err))
			s.removeKeys(ctx, productID, i)
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
	}
	s.logger.Debug("photos stored", zap.Int64("product_id", productID), zap.Int("count", len(photos)))
	return nil
}

// LoadPhotos reads photos 0..count-1 and skips missing objects.
func (s *PhotoStore) LoadPhotos(ctx context.Context, productID int64, count int) ([]string, error) {
	photos := make([]string, 0, count)
	for i := 0; i < count; i++ {
		key := objectKey(productID, i)
		obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", key, err)
		}
		data, err := io.ReadAll(obj)
		obj.Close()
		if err != nil {
			var resp minio.ErrorResponse
			if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		photos = append(photos, string(data))
	}
	return photos, nil
}

func (s *PhotoStore) removeKeys(ctx context.Context, productID int64, n int) {
	for i := 0; i < n; i++ {
		key := objectKey(productID, i)
		if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			s.logger.Warn("failed to roll back photo", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *PhotoStore) DeletePhotos(ctx context.Context, productID int64) error {
	// Returning mid-listing must stop the lister goroutine.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefix := objectPrefix + strconv.FormatInt(productID, 10) + "_"
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return fmt.Errorf("failed to list %s: %w", prefix, obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove %s: %w", obj.Key, err)
		}
	}
	return nil
}
