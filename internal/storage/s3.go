package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"slices"
	"strings"
	"time"

	"crowdfund/internal/utils"
	"crowdfund/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

// Bucket is the logical bucket name. The S3 bucket it lives in is configured.
type Bucket string

const (
	BucketProjectImages     Bucket = "project_images"
	BucketProfilePictures   Bucket = "profile_pictures"
	BucketMilestoneEvidence Bucket = "milestone_evidence"
)

const megabyte = 1 << 20

type Policy struct {
	MaxBytes   int64
	Extensions []string
}

var policies = map[Bucket]Policy{
	BucketProjectImages: {
		MaxBytes:   10 * megabyte,
		Extensions: []string{"jpg", "jpeg", "png", "gif", "webp"},
	},
	BucketProfilePictures: {
		MaxBytes:   5 * megabyte,
		Extensions: []string{"jpg", "jpeg", "png", "webp"},
	},
	BucketMilestoneEvidence: {
		MaxBytes:   30 * megabyte,
		Extensions: []string{"jpg", "jpeg", "png", "webp", "pdf", "mp4", "mov", "webm"},
	},
}

func PolicyFor(bucket Bucket) (Policy, bool) {
	p, ok := policies[bucket]
	return p, ok
}

// Check reports FILE_TOO_LARGE or INVALID_FILE_TYPE for files the bucket refuses.
func (p Policy) Check(fileName string, size int64) (string, error) {
	if size <= 0 {
		return "", types.NewValidationError("file", "is empty")
	}

	if size > p.MaxBytes {
		return "", &types.Error{
			Code:   types.CodeFileTooLarge,
			Field:  "file",
			Detail: fmt.Sprintf("must be at most %d MB", p.MaxBytes/megabyte),
		}
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	if !slices.Contains(p.Extensions, ext) {
		return "", &types.Error{
			Code:   types.CodeInvalidFileType,
			Field:  "file",
			Detail: fmt.Sprintf("must be one of: %s", strings.Join(p.Extensions, ", ")),
		}
	}

	return ext, nil
}

type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Config struct {
	// Names maps each logical bucket onto its S3 bucket.
	Names         map[Bucket]string
	Region        string
	PublicBaseURL string
	PresignExpiry time.Duration
}

type Object struct {
	Bucket      Bucket `json:"bucket"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

type S3Storage struct {
	client    S3API
	presigner Presigner
	names     map[Bucket]string
	region    string
	publicURL string
	expiry    time.Duration
}

func NewS3Storage(client S3API, presigner Presigner, cfg Config) (*S3Storage, error) {
	for bucket := range policies {
		if cfg.Names[bucket] == "" {
			return nil, fmt.Errorf("storage: no s3 bucket configured for %s", bucket)
		}
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	return &S3Storage{
		client:    client,
		presigner: presigner,
		names:     cfg.Names,
		region:    cfg.Region,
		publicURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		expiry:    expiry,
	}, nil
}

func (s *S3Storage) bucketName(bucket Bucket) (string, error) {
	name, ok := s.names[bucket]
	if !ok {
		return "", fmt.Errorf("storage: unknown bucket %s", bucket)
	}
	return name, nil
}

// Upload stores body under <ownerID>/<id>.<ext> once the bucket's policy accepts it.
func (s *S3Storage) Upload(ctx context.Context, bucket Bucket, ownerID, fileName string, size int64, body io.Reader) (*Object, error) {
	policy, ok := policies[bucket]
	if !ok {
		return nil, fmt.Errorf("storage: unknown bucket %s", bucket)
	}

	ext, err := policy.Check(fileName, size)
	if err != nil {
		return nil, err
	}

	name, err := s.bucketName(bucket)
	if err != nil {
		return nil, err
	}

	contentType := mime.TypeByExtension("." + ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := fmt.Sprintf("%s/%s.%s", ownerID, utils.NanoID(), ext)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(name),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload object to %s: %w", bucket, err)
	}

	return &Object{Bucket: bucket, Key: key, Size: size, ContentType: contentType}, nil
}

func (s *S3Storage) Delete(ctx context.Context, bucket Bucket, key string) error {
	name, err := s.bucketName(bucket)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(name),
		Key:    aws.String(key),
	})
	return utils.ErrorWrapOrNil(err, fmt.Sprintf("failed to delete object from %s", bucket))
}

// URL is a public URL when a public base URL is configured and a presigned GET otherwise.
func (s *S3Storage) URL(ctx context.Context, bucket Bucket, key string) (string, error) {
	name, err := s.bucketName(bucket)
	if err != nil {
		return "", err
	}

	if s.publicURL != "" {
		return fmt.Sprintf("%s/%s/%s", s.publicURL, name, key), nil
	}

	if s.presigner == nil {
		return "", errors.New("storage: no public base url or presigner configured")
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(name),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign object url: %w", err)
	}

	return req.URL, nil
}

// Provision creates every configured bucket, skipping the ones that already exist.
func (s *S3Storage) Provision(ctx context.Context, logger *logrus.Logger) (created int, err error) {
	buckets := make([]Bucket, 0, len(policies))
	for bucket := range policies {
		buckets = append(buckets, bucket)
	}
	slices.Sort(buckets)

	for _, bucket := range buckets {
		name := s.names[bucket]

		input := &s3.CreateBucketInput{Bucket: aws.String(name)}
		if s.region != "" && s.region != "us-east-1" {
			input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
				LocationConstraint: s3types.BucketLocationConstraint(s.region),
			}
		}

		_, err := s.client.CreateBucket(ctx, input)
		if bucketExists(err) {
			logger.WithField("bucket", name).Info("bucket already exists, skipping")
			continue
		}
		if err != nil {
			return created, fmt.Errorf("failed to create bucket %s: %w", name, err)
		}

		created++
		logger.WithField("bucket", name).Info("bucket created")
	}

	return created, nil
}

func bucketExists(err error) bool {
	var owned *s3types.BucketAlreadyOwnedByYou
	var exists *s3types.BucketAlreadyExists
	return errors.As(err, &owned) || errors.As(err, &exists)
}
