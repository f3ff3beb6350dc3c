package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the part of *s3.Client the store calls
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type S3Store struct {
	client s3API
	bucket string
}

func NewS3Store(client s3API, bucket string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
	}
}

func NewS3StoreWithConfig(ctx context.Context, cfg *S3Config) (*S3Store, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          50,
			MaxIdleConnsPerHost:   20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 60 * time.Second,
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	// without static keys the default chain applies (env, shared profile, task role)
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UseAccelerate {
			o.UseAccelerate = true
		}
	})

	return NewS3Store(client, cfg.BucketName), nil
}

func (s *S3Store) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrapErr("head", key, err)
	}

	return &ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(resp.ContentLength),
		ETag:         trimETag(resp.ETag),
		ContentType:  aws.ToString(resp.ContentType),
		LastModified: aws.ToTime(resp.LastModified),
		Metadata:     normalizeMetadata(resp.Metadata),
	}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (*Object, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrapErr("get", key, err)
	}

	return &Object{
		ObjectInfo: ObjectInfo{
			Key:          key,
			Size:         aws.ToInt64(resp.ContentLength),
			ETag:         trimETag(resp.ETag),
			ContentType:  aws.ToString(resp.ContentType),
			LastModified: aws.ToTime(resp.LastModified),
			Metadata:     normalizeMetadata(resp.Metadata),
		},
		Body: resp.Body,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, params *PutParams) (*ObjectInfo, error) {
	if !ValidateKey(params.Key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, params.Key)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(params.Key),
		Body:          bytes.NewReader(params.Body),
		ContentLength: aws.Int64(int64(len(params.Body))),
		Metadata:      params.Metadata,
	}
	if params.ContentType != "" {
		input.ContentType = aws.String(params.ContentType)
	}

	resp, err := s.client.PutObject(ctx, input)
	if err != nil {
		return nil, s.wrapErr("put", params.Key, err)
	}

	// s3.PutObjectOutput does not have LastModified
	return &ObjectInfo{
		Key:          params.Key,
		Size:         int64(len(params.Body)),
		ETag:         trimETag(resp.ETag),
		ContentType:  params.ContentType,
		LastModified: time.Now().UTC(),
		Metadata:     normalizeMetadata(params.Metadata),
	}, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return s.wrapErr("delete", key, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var objects []*ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.wrapErr("list", prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, &ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         trimETag(obj.ETag),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

func (s *S3Store) Close() error {
	return nil
}

func (s *S3Store) wrapErr(op, key string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("s3 %s s3://%s/%s: %w", op, s.bucket, key, ErrObjectNotFound)
	}
	return fmt.Errorf("s3 %s s3://%s/%s: %w", op, s.bucket, key, err)
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}

	// HeadObject has no body so some S3-compatible servers only give us the status
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}

func trimETag(etag *string) string {
	return strings.ReplaceAll(aws.ToString(etag), "\"", "")
}
