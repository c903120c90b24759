package blob

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const tagContentType = "content-type"

// Config конфигурация S3-совместимого хранилища
type Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// S3Store реализация Store поверх S3-совместимого хранилища.
// Отпечаток содержимого и метаданные хранятся как объектные теги.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

func NewS3Store(ctx context.Context, cfg Config, logger *zap.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blob bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.KeyPrefix,
		logger: logger.With(zap.String("component", "s3_blob_store")),
	}, nil
}

func (s *S3Store) Put(ctx context.Context, req PutRequest) (Object, error) {
	key := s.prefix + uuid.New().String()

	// Теги объекта: отпечаток + метаданные вызывающего
	tags := url.Values{}
	tags.Set(TagContentHash, req.ContentHash)
	if req.ContentType != "" {
		tags.Set(tagContentType, req.ContentType)
	}
	for k, v := range req.Tags {
		tags.Set(k, v)
	}

	input := &s3.PutObjectInput{
		Bucket:  aws.String(s.bucket),
		Key:     aws.String(key),
		Body:    bytes.NewReader(req.Data),
		Tagging: aws.String(tags.Encode()),
	}
	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return Object{}, fmt.Errorf("failed to put object: %w", err)
	}

	s.logger.Debug("Blob uploaded",
		zap.String("ref", key),
		zap.String("content_hash", req.ContentHash),
		zap.Int("size", len(req.Data)))

	return Object{
		Ref:         key,
		ContentHash: req.ContentHash,
		Size:        int64(len(req.Data)),
		ContentType: req.ContentType,
		UploadedAt:  time.Now(),
		Tags:        req.Tags,
	}, nil
}

// FindByHash ищет объект с заданным отпечатком. Возвращает nil без ошибки,
// если такого объекта нет. Из нескольких совпадений выбирается самый ранний,
// чтобы решение о дубликате было согласовано с компакцией.
func (s *S3Store) FindByHash(ctx context.Context, contentHash string) (*Object, error) {
	objects, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var found *Object
	for i := range objects {
		if objects[i].ContentHash != contentHash {
			continue
		}
		if found == nil || objects[i].UploadedAt.Before(found.UploadedAt) {
			found = &objects[i]
		}
	}

	return found, nil
}

func (s *S3Store) List(ctx context.Context) ([]Object, error) {
	var objects []Object

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, item := range page.Contents {
			key := aws.ToString(item.Key)

			tagging, err := s.client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to get tags for %s: %w", key, err)
			}

			obj := Object{
				Ref:        key,
				Size:       aws.ToInt64(item.Size),
				UploadedAt: aws.ToTime(item.LastModified),
				Tags:       make(map[string]string),
			}
			for _, tag := range tagging.TagSet {
				switch aws.ToString(tag.Key) {
				case TagContentHash:
					obj.ContentHash = aws.ToString(tag.Value)
				case tagContentType:
					obj.ContentType = aws.ToString(tag.Value)
				default:
					obj.Tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
				}
			}

			objects = append(objects, obj)
		}
	}

	return objects, nil
}

func (s *S3Store) Delete(ctx context.Context, ref string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", ref, err)
	}

	s.logger.Debug("Blob deleted", zap.String("ref", ref))
	return nil
}

func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	return err
}

// Verify interface implementation
var _ Store = (*S3Store)(nil)
