package s3

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"synxronquota/internal/service"
)

const (
	defaultTimeout = 30 * time.Second
	measureTimeout = 5 * time.Minute
)

// Client измеряет фактическое использование S3-совместимого хранилища.
// Объекты пользователя лежат под префиксом users/<id>/; опубликованные —
// под users/<id>/public/.
type Client struct {
	client *s3.Client
	bucket string
}

// NewClient создает новый экземпляр клиента S3
func NewClient(conf *Config) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	if conf.AccessKeyID == "" || conf.SecretAccessKey == "" || conf.Bucket == "" {
		return nil, fmt.Errorf("missing required configuration: accessKeyID, secretAccessKey, and bucket are required")
	}

	// Создаем конфигурацию AWS
	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	client := s3.New(s3.Options{
		BaseEndpoint:     aws.String(conf.Endpoint),
		Region:           conf.Region,
		Credentials:      creds,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
	})

	s3Client := &Client{
		client: client,
		bucket: conf.Bucket,
	}

	// Проверяем подключение к бакету
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	_, err := s3Client.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(conf.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to access bucket %s: %w", conf.Bucket, err)
	}

	return s3Client, nil
}

// Measure суммирует размеры объектов пользователя в бакете зоны.
// S3 лимитом не управляет, поэтому AllocatedValue всегда 0. Удалённый
// бакет означает, что квота в хранилище не настроена; любая другая ошибка
// листинга — временный сбой измерения, цикл сверки пропустит аккаунт.
func (c *Client) Measure(ctx context.Context, userID, zone string) (*service.Measurement, error) {
	ctx, cancel := context.WithTimeout(ctx, measureTimeout)
	defer cancel()

	prefix := fmt.Sprintf("users/%s/", userID)
	publicPrefix := prefix + "public/"

	var usedBytes, publishedBytes int64
	var continuationToken *string

	startTime := time.Now()
	for {
		result, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, listError(userID, err)
		}

		for _, object := range result.Contents {
			if object.Size == nil {
				continue
			}
			if object.Key != nil && strings.HasPrefix(*object.Key, publicPrefix) {
				publishedBytes += *object.Size
			} else {
				usedBytes += *object.Size
			}
		}

		if result.IsTruncated == nil || !*result.IsTruncated {
			break
		}
		continuationToken = result.NextContinuationToken
	}

	log.Printf("[S3] Measured user %s in zone %s: %d bytes private, %d bytes published (took %v)",
		userID, zone, usedBytes, publishedBytes, time.Since(startTime))

	return &service.Measurement{
		UsedBytes:      usedBytes,
		PublishedBytes: publishedBytes,
	}, nil
}

// listError переводит отсутствие бакета в ErrNoQuotaConfigured: бакет зоны
// не создан, значит квота в хранилище не настроена. Остальные ошибки
// листинга остаются временными сбоями измерения.
func listError(userID string, err error) error {
	var noBucket *types.NoSuchBucket
	if errors.As(err, &noBucket) {
		return service.ErrNoQuotaConfigured
	}

	log.Printf("[S3] Error listing objects for user %s: %v", userID, err)
	return fmt.Errorf("failed to list objects for user %s: %w", userID, err)
}
