// Package blobstore is the thin adapter over the object store. No
// byte streams transit through this package on the upload/download fast
// path; it only mints signed URLs and performs small metadata operations.
package blobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/websoft9/dropcode/internal/apierr"
)

// HeadResult is the outcome of a head(key) call.
type HeadResult struct {
	Exists       bool
	SizeBytes    int64
	LastModified time.Time
	ContentType  string
}

// Store is the BlobStore adapter's public surface. A single implementation
// (S3Store) backs it; the interface exists so handlers and the janitor can
// be tested against a fake.
type Store interface {
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	Head(ctx context.Context, key string) (HeadResult, error)
}

// Config configures an S3Store. Endpoint + path-style addressing makes this
// work against any S3-compatible vendor.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3Store is the production Store backed by an S3-compatible object store:
// path-style addressing, a configurable endpoint, and signed single-method
// URLs.
type S3Store struct {
	client *s3.S3
	bucket string
}

// maxAttempts bounds the exponential-backoff retry loop for transport
// errors.
const maxAttempts = 5

// New builds an S3Store from Config.
func New(cfg Config) (*S3Store, error) {
	scheme := "https"
	if !cfg.UseSSL {
		scheme = "http"
	}
	endpoint := cfg.Endpoint
	if endpoint != "" && !hasScheme(endpoint) {
		endpoint = scheme + "://" + endpoint
	}

	sess, err := session.NewSession(&aws.Config{
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		Endpoint:         aws.String(endpoint),
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(true), // path-style addressing for generic vendors
		DisableSSL:       aws.Bool(!cfg.UseSSL),
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: new session: %w", err)
	}

	return &S3Store{client: s3.New(sess), bucket: cfg.Bucket}, nil
}

func hasScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return i+2 < len(s) && s[i+1] == '/' && s[i+2] == '/'
		}
		if s[i] == '/' {
			return false
		}
	}
	return false
}

// PresignPut mints a URL usable for a single PUT with the declared content
// type. The signature covers the content-type header so an uploaded
// object cannot be smuggled in under a different MIME type than declared.
func (s *S3Store) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	req, _ := s.client.PutObjectRequest(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	req.SetContext(ctx)
	return signWithRetry(req, ttl)
}

// PresignGet mints a URL usable for GET until ttl passes, default ttl 1 hour.
func (s *S3Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	req.SetContext(ctx)
	return signWithRetry(req, ttl)
}

// Delete removes an object. Absence is not an error.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	return withRetry(func() error {
		_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})
}

// Head returns size/mtime/content-type, or Exists=false when the object is
// absent.
func (s *S3Store) Head(ctx context.Context, key string) (HeadResult, error) {
	var out *s3.HeadObjectOutput
	absent := false
	err := withRetry(func() error {
		var headErr error
		out, headErr = s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if isNotFound(headErr) {
			absent = true
			return nil
		}
		return headErr
	})
	if err != nil {
		return HeadResult{}, err
	}
	if absent {
		return HeadResult{Exists: false}, nil
	}

	res := HeadResult{Exists: true}
	if out.ContentLength != nil {
		res.SizeBytes = *out.ContentLength
	}
	if out.LastModified != nil {
		res.LastModified = *out.LastModified
	}
	if out.ContentType != nil {
		res.ContentType = *out.ContentType
	}
	return res, nil
}

func isNotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}

// signWithRetry presigns a request, retrying transport failures with
// exponential backoff; authentication errors are returned immediately as
// fatal.
func signWithRetry(req *request.Request, ttl time.Duration) (string, error) {
	var url string
	err := withRetry(func() error {
		u, _, signErr := req.PresignRequest(ttl)
		if signErr != nil {
			return signErr
		}
		url = u
		return nil
	})
	return url, err
}

func withRetry(fn func() error) error {
	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if aerr, ok := err.(awserr.Error); ok && isAuthError(aerr) {
			return apierr.Upstream("blob store authentication failed", aerr)
		}

		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return apierr.Upstream("blob store request failed after retries", lastErr)
}

func isAuthError(aerr awserr.Error) bool {
	switch aerr.Code() {
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "AccessDenied", "Forbidden":
		return true
	default:
		return false
	}
}
