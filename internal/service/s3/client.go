package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"fidera/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	uploadTimeout  = 10 * time.Minute
)

// Client предоставляет методы для работы с S3-совместимым хранилищем.
// Имена бакетов передаются в каждый вызов, один клиент обслуживает оба бакета.
type Client struct {
	client *s3.Client
	region string
}

// NewClient создает новый экземпляр клиента S3
func NewClient(conf *Config) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid s3 configuration: %w", err)
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	client := s3.New(s3.Options{
		BaseEndpoint:               aws.String(conf.Endpoint),
		Region:                     conf.Region,
		Credentials:                creds,
		UsePathStyle:               conf.UsePathStyle,
		RetryMode:                  aws.RetryModeAdaptive,
		RetryMaxAttempts:           3,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	})

	return &Client{client: client, region: conf.Region}, nil
}

func (h *Client) Name() string {
	return "s3"
}

// EnsureBucket проверяет доступ к бакету и создаёт его при отсутствии
func (h *Client) EnsureBucket(ctx context.Context, bucket string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := h.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("%w: unable to access bucket %s: %v", domain.ErrStorageUnavailable, bucket, err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if h.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(h.region),
		}
	}
	if _, err := h.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("%w: failed to create bucket %s: %v", domain.ErrStorageUnavailable, bucket, err)
	}

	log.Info().Str("bucket", bucket).Msg("created s3 bucket")
	return nil
}

// Put загружает объект. Повторная загрузка по тому же ключу перезаписывает объект.
func (h *Client) Put(ctx context.Context, bucket, key string, body io.ReadSeeker, size int64, contentType string) error {
	if key == "" || body == nil {
		return fmt.Errorf("%w: key and body are required", domain.ErrInvalidArgument)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err := h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to upload %s/%s: %v", domain.ErrStorageUnavailable, bucket, key, err)
	}
	return nil
}

// Get возвращает поток объекта и его размер. Тело не буферизуется.
func (h *Client) Get(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	result, err := h.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, fmt.Errorf("%w: %s/%s", domain.ErrObjectNotFound, bucket, key)
		}
		return nil, 0, fmt.Errorf("%w: failed to get %s/%s: %v", domain.ErrStorageUnavailable, bucket, key, err)
	}
	return result.Body, aws.ToInt64(result.ContentLength), nil
}

// Delete удаляет объект. Отсутствующий объект считается успешно удалённым.
func (h *Client) Delete(ctx context.Context, bucket, key string) error {
	if key == "" {
		return fmt.Errorf("%w: key is required", domain.ErrInvalidArgument)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	// Проверяем существование объекта перед удалением
	_, err := h.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: failed to check %s/%s: %v", domain.ErrStorageUnavailable, bucket, key, err)
	}

	_, err = h.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to delete %s/%s: %v", domain.ErrStorageUnavailable, bucket, key, err)
	}
	return nil
}

// isNotFound: GetObject отвечает NoSuchKey, HeadObject и HeadBucket отвечают NotFound без тела
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	var nsb *types.NoSuchBucket
	return errors.As(err, &nsk) || errors.As(err, &nf) || errors.As(err, &nsb)
}
