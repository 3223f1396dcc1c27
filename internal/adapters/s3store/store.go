package s3store

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// uploaderAPI is the slice of the SDK uploader this store uses, narrow so
// tests can fake it.
type uploaderAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Store implements ports.ObjectStore on S3. Uploads go through the SDK's
// multipart uploader, so memory use stays bounded regardless of payload
// size.
type Store struct {
	uploader uploaderAPI
	bucket   string
}

// New creates a Store using the default AWS credential chain. Region may be
// empty to defer to the environment.
func New(ctx context.Context, bucket, region string) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &Store{
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = 8 * 1024 * 1024
			u.Concurrency = 3
		}),
		bucket: bucket,
	}, nil
}

// NewWithUploader creates a Store around an existing uploader, primarily
// for tests.
func NewWithUploader(uploader uploaderAPI, bucket string) *Store {
	return &Store{uploader: uploader, bucket: bucket}
}

// Put streams body into the bucket under key. The byte count is taken from
// the stream, not Content-Length, since source servers do not always send
// one.
func (s *Store) Put(ctx context.Context, key, contentType string, body io.Reader) (int64, error) {
	counted := &countingReader{r: body}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        counted,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return 0, fmt.Errorf("upload s3://%s/%s: %w", s.bucket, key, err)
	}
	return counted.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
