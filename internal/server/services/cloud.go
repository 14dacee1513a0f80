package services

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	sc "github.com/dmitrijs2005/gatekeeper/internal/server/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, in, optFns...)
	}
)

// SignedAccess is a time-boxed grant for one object key. It is generated
// fresh per request and never persisted.
type SignedAccess struct {
	URL       string
	ExpiresAt time.Time
}

// CloudService issues presigned URLs for private objects and performs the
// direct upload/delete calls behind the user-document endpoints. Every key
// that reaches S3 has to survive scope validation first; TTLs out of range
// are rejected rather than clamped so misuse stays visible. Collaborator
// failures are reported, never retried here.
type CloudService struct {
	config *sc.Config
}

func NewCloudService(config *sc.Config) *CloudService {
	return &CloudService{config: config}
}

// ValidateKey rejects keys outside the configured document prefix, including
// traversal attempts and keys that do not survive path cleaning.
func (s *CloudService) ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return common.ErrScopeViolation
	}
	if path.Clean(key) != key || strings.Contains(key, "..") {
		return common.ErrScopeViolation
	}
	if !strings.HasPrefix(key, s.config.DocumentPrefix+"/") {
		return common.ErrScopeViolation
	}
	return nil
}

func (s *CloudService) validateTTL(ttl time.Duration) error {
	if ttl <= 0 || ttl > s.config.MaxSignedURLTTL {
		return common.ErrScopeViolation
	}
	return nil
}

func (s *CloudService) getClient() (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUpstream, err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return client, nil
}

// PresignedGetURL issues a time-boxed download URL for an in-scope key.
func (s *CloudService) PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (*SignedAccess, error) {

	if err := s.ValidateKey(key); err != nil {
		return nil, err
	}
	if err := s.validateTTL(ttl); err != nil {
		return nil, err
	}

	client, err := s.getClient()
	if err != nil {
		return nil, err
	}

	bucket := s.config.S3Bucket

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("%w: presign get: %v", common.ErrUpstream, err)
	}

	return &SignedAccess{URL: req.URL, ExpiresAt: time.Now().Add(ttl)}, nil
}

// PresignedPutURL issues a time-boxed upload URL so clients can PUT a file
// directly to storage without passing it through the backend.
func (s *CloudService) PresignedPutURL(ctx context.Context, key string, contentType string, ttl time.Duration) (*SignedAccess, error) {

	if err := s.ValidateKey(key); err != nil {
		return nil, err
	}
	if err := s.validateTTL(ttl); err != nil {
		return nil, err
	}

	client, err := s.getClient()
	if err != nil {
		return nil, err
	}

	bucket := s.config.S3Bucket

	req, err := presignPutObject(newS3PresignClient(client), ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: &contentType,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("%w: presign put: %v", common.ErrUpstream, err)
	}

	return &SignedAccess{URL: req.URL, ExpiresAt: time.Now().Add(ttl)}, nil
}

// Upload stores body under an in-scope key. The object stays private; it is
// reachable afterwards only through PresignedGetURL.
func (s *CloudService) Upload(ctx context.Context, key string, body []byte, contentType string) error {

	if err := s.ValidateKey(key); err != nil {
		return err
	}

	client, err := s.getClient()
	if err != nil {
		return err
	}

	bucket := s.config.S3Bucket

	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("%w: put object: %v", common.ErrUpstream, err)
	}

	return nil
}

// Delete removes an in-scope object.
func (s *CloudService) Delete(ctx context.Context, key string) error {

	if err := s.ValidateKey(key); err != nil {
		return err
	}

	client, err := s.getClient()
	if err != nil {
		return err
	}

	bucket := s.config.S3Bucket

	_, err = deleteObject(client, ctx, &s3.DeleteObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("%w: delete object: %v", common.ErrUpstream, err)
	}

	return nil
}
