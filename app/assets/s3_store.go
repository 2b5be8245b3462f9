package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config holds configuration for the asset store client
type S3Config struct {
	Bucket    string // S3 bucket name
	Region    string // AWS region (default: us-east-1)
	Endpoint  string // Custom endpoint for S3-compatible storage (MinIO, etc.)
	AccessKey string // AWS access key (optional, uses default credential chain if empty)
	SecretKey string // AWS secret key (optional)
}

// Store is the durable side of the asset pipeline: captured assets are
// uploaded under <community>/<id> keys and tagged with their provenance.
type Store struct {
	client *s3.Client
	bucket string
}

func NewStore(ctx context.Context, cfg S3Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	// Use explicit credentials if provided, otherwise the default chain
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO and most S3-compatible storage
		})
	}

	return &Store{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
	}, nil
}

func (s *Store) Bucket() string {
	return s.bucket
}

// Exists reports whether the object is present in the bucket. A missing
// object is not an error.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head object %s: %w", key, err)
	}

	return true, nil
}

func (s *Store) Upload(ctx context.Context, key string, body io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	return nil
}

// TagSpec is the descriptive payload attached to an uploaded asset.
type TagSpec struct {
	Locator string
	Source  string
	ID      string
}

func (s *Store) Tag(ctx context.Context, key string, spec TagSpec) error {
	tagSet := []types.Tag{
		{Key: aws.String("url"), Value: aws.String(sanitizeTagValue(spec.Locator))},
		{Key: aws.String("content_source"), Value: aws.String(sanitizeTagValue(spec.Source))},
		{Key: aws.String("id"), Value: aws.String(sanitizeTagValue(spec.ID))},
	}

	_, err := s.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket:  aws.String(s.bucket),
		Key:     aws.String(key),
		Tagging: &types.Tagging{TagSet: tagSet},
	})
	if err != nil {
		return fmt.Errorf("failed to tag object %s: %w", key, err)
	}

	return nil
}

func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download object %s: %w", key, err)
	}

	return out.Body, nil
}

var tagValuePattern = regexp.MustCompile(`[^0-9a-zA-Z _]`)

// sanitizeTagValue strips characters S3 rejects in tag values.
func sanitizeTagValue(s string) string {
	return tagValuePattern.ReplaceAllString(s, "")
}
