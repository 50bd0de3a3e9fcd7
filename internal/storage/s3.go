package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"urbanlens/internal/config"
	"urbanlens/internal/keys"
	"urbanlens/models"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypePDF  = "application/pdf"
	ContentTypeJPEG = "image/jpeg"
)

// S3Service is a client for S3-compatible storage bound to one bucket.
type S3Service struct {
	client *minio.Client
	bucket string
	region string
}

// NewS3Service connects to the MinIO server described by cfg.
func NewS3Service(cfg config.StorageConfig) (*S3Service, error) {
	if !cfg.Enabled() {
		return nil, eris.New("storage: missing one or more required settings: endpoint, access_key, secret_key")
	}

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "storage: create MinIO client")
	}

	zap.L().Info("connected to object storage", zap.String("endpoint", cfg.Endpoint), zap.String("bucket", cfg.Bucket))
	return &S3Service{client: minioClient, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// Bucket returns the bucket the service writes to.
func (s *S3Service) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *S3Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return eris.Wrapf(err, "storage: check bucket %s", s.bucket)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return eris.Wrapf(err, "storage: create bucket %s", s.bucket)
	}
	return nil
}

// Exists reports whether an object is stored under key.
func (s *S3Service) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, eris.Wrapf(err, "storage: stat %s", key)
}

// Put stores data under key, replacing any previous object.
func (s *S3Service) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return eris.Wrapf(err, "storage: put %s", key)
	}
	zap.L().Debug("stored object", zap.String("bucket", s.bucket), zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// PutIfAbsent stores the result of fetch under key unless an object already
// exists there, in which case fetch is not called. It reports whether a new
// object was written.
func (s *S3Service) PutIfAbsent(ctx context.Context, key, contentType string, fetch func(context.Context) ([]byte, error)) (bool, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		zap.L().Debug("object already exists, ignoring write", zap.String("key", key))
		return false, nil
	}
	data, err := fetch(ctx)
	if err != nil {
		return false, err
	}
	if err := s.Put(ctx, key, contentType, data); err != nil {
		return false, err
	}
	return true, nil
}

// Get reads a whole object.
func (s *S3Service) Get(ctx context.Context, key string) ([]byte, error) {
	return s.get(ctx, s.bucket, key)
}

func (s *S3Service) get(ctx context.Context, bucket, key string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, eris.Wrapf(err, "storage: get %s", key)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: read %s", key)
	}
	return data, nil
}

// PutRequest queues a lookup request as a JSON object under requests/.
func (s *S3Service) PutRequest(ctx context.Context, req models.LookupRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", eris.Wrap(err, "storage: marshal request")
	}
	key := keys.Request(req.Address)
	if err := s.Put(ctx, key, ContentTypeJSON, data); err != nil {
		return "", err
	}
	return key, nil
}

// GetRequest loads a queued lookup request. The bucket comes from the
// storage event, so it may differ from the service's own bucket.
func (s *S3Service) GetRequest(ctx context.Context, bucket, key string) (*models.LookupRequest, error) {
	data, err := s.get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	var req models.LookupRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, eris.Wrapf(err, "storage: decode request %s", key)
	}
	return &req, nil
}

// StoreRequestsFromChannel reads lookup requests from a channel and queues
// each one. It returns the number of requests stored once the channel is
// closed.
func (s *S3Service) StoreRequestsFromChannel(ctx context.Context, requests <-chan models.LookupRequest) int {
	var (
		wg    sync.WaitGroup
		count int64
	)

	for req := range requests {
		wg.Add(1)
		go func(r models.LookupRequest) {
			defer wg.Done()
			key, err := s.PutRequest(ctx, r)
			if err != nil {
				zap.L().Error("failed to queue request", zap.String("address", r.Address), zap.Error(err))
				return
			}
			atomic.AddInt64(&count, 1)
			zap.L().Info("queued request", zap.String("address", r.Address), zap.String("key", key))
		}(req)
	}

	wg.Wait()
	zap.L().Info("finished queueing requests", zap.Int64("count", count))
	return int(count)
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
