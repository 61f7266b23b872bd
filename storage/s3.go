package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	log "github.com/sirupsen/logrus"
)

// S3Config holds the connection parameters of an S3 bucket. Static keys take
// precedence over the shared credentials profile. A non-empty endpoint
// selects an S3-compatible service, addressed path-style.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	DisableSSL      bool
}

// S3 is an implementation of Store backed by AWS S3.
type S3 struct {
	bucket string
	client *s3.S3
}

func NewS3(c S3Config) (*S3, error) {
	if c.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	awsConfig := &aws.Config{
		Region: aws.String(c.Region),
		// Retrying a half-consumed request body is not possible.
		MaxRetries: aws.Int(0),
		DisableSSL: aws.Bool(c.DisableSSL),
	}
	if c.AccessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(c.AccessKeyID, c.SecretAccessKey, "")
	} else {
		awsConfig.Credentials = credentials.NewSharedCredentials("", c.Profile)
	}
	if c.Endpoint != "" {
		awsConfig.Endpoint = aws.String(c.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, err
	}
	return &S3{
		bucket: c.Bucket,
		client: s3.New(sess),
	}, nil
}

// Put uploads through the S3 upload manager, which buffers one part at a
// time and aborts multipart uploads when r fails.
func (s *S3) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	uploader := s3manager.NewUploaderWithClient(s.client, func(u *s3manager.Uploader) {
		u.Concurrency = 1
		u.PartSize = partSizeFor(size)
	})
	_, err := uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %q: %w", key, err)
	}
	return nil
}

// The upload manager can't learn the length of a plain io.Reader, so a
// declared size is used to grow parts enough to stay within the part count
// limit.
func partSizeFor(size int64) int64 {
	partSize := int64(s3manager.DefaultUploadPartSize)
	if size > 0 && size/int64(s3manager.MaxUploadParts) >= partSize {
		partSize = size/int64(s3manager.MaxUploadParts) + 1
	}
	return partSize
}

func (s *S3) Get(ctx context.Context, key string) (body io.ReadCloser, size int64, err error) {
	if err := CheckKey(key); err != nil {
		return nil, 0, err
	}
	output, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, 0, fmt.Errorf("%q: %w", key, ErrNotFound)
		}
		return nil, 0, fmt.Errorf("s3 get %q: %w", key, err)
	}
	if output.ContentLength == nil {
		return output.Body, -1, nil
	}
	if *output.ContentLength == 0 {
		if err := output.Body.Close(); err != nil {
			log.WithFields(log.Fields{
				"op":  "get",
				"key": key,
			}).Warning("Could not close response body")
		}
		return nil, 0, nil
	}
	return output.Body, *output.ContentLength, nil
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
		return true
	}
	var rfErr awserr.RequestFailure
	if errors.As(err, &rfErr) && rfErr.StatusCode() == http.StatusNotFound {
		return true
	}
	return false
}
