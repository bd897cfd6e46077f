package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds S3/MinIO configuration
type S3Config struct {
	Endpoint        string // e.g., "http://localhost:9000" for MinIO
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	PublicURL       string // Public URL for accessing files (e.g., "http://localhost:9000/chatlogs")
}

// ObjectPutter is the part of the S3 client used for uploads
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Storage provides S3-compatible storage operations
type S3Storage struct {
	client    ObjectPutter
	bucket    string
	publicURL string
}

// NewS3Storage creates a new S3 storage client
func NewS3Storage(cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	// Create S3 client with static credentials and custom endpoint
	client := s3.New(s3.Options{
		Region:       cfg.Region,
		BaseEndpoint: aws.String(cfg.Endpoint),
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		UsePathStyle: true, // Required for MinIO
	})

	return NewS3StorageWithClient(client, cfg.Bucket, cfg.PublicURL), nil
}

// NewS3StorageWithClient creates a storage over an existing client
func NewS3StorageWithClient(client ObjectPutter, bucket, publicURL string) *S3Storage {
	return &S3Storage{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// UploadInput represents input for uploading a file
type UploadInput struct {
	Key         string
	Reader      io.Reader
	ContentType string
	Size        int64
}

// UploadOutput represents output from uploading a file
type UploadOutput struct {
	Key        string // Object key in S3
	URL        string // Public URL to access the file
	Size       int64
	UploadedAt time.Time
}

// Upload stores an object under the given key, replacing any previous
// version, and returns its public URL
func (s *S3Storage) Upload(ctx context.Context, in UploadInput) (*UploadOutput, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(in.Key),
		Body:          in.Reader,
		ContentType:   aws.String(in.ContentType),
		ContentLength: aws.Int64(in.Size),
	})
	if err != nil {
		return nil, fmt.Errorf("uploading to s3: %w", err)
	}

	return &UploadOutput{
		Key:        in.Key,
		URL:        s.URL(in.Key),
		Size:       in.Size,
		UploadedAt: time.Now(),
	}, nil
}

// URL returns the public address of an object
func (s *S3Storage) URL(key string) string {
	return s.publicURL + "/" + key
}

// ConversationKey is the object key of an archived conversation page
func ConversationKey(id int64) string {
	return fmt.Sprintf("conversations/%d.html", id)
}

// PutConversation archives a rendered conversation page and returns its URL
func (s *S3Storage) PutConversation(ctx context.Context, id int64, page []byte) (string, error) {
	out, err := s.Upload(ctx, UploadInput{
		Key:         ConversationKey(id),
		Reader:      bytes.NewReader(page),
		ContentType: "text/html; charset=utf-8",
		Size:        int64(len(page)),
	})
	if err != nil {
		return "", fmt.Errorf("archiving conversation %d: %w", id, err)
	}
	return out.URL, nil
}
