package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
)

// partSize is the smallest part S3 accepts in a multipart upload.
const partSize int64 = 5 * 1024 * 1024

// uploader is the slice of manager.Uploader the Writer needs.
type uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Writer stores archive objects in one bucket. Bodies need not be seekable;
// the upload manager buffers them into parts.
type Writer struct {
	up     uploader
	bucket string
}

// NewWriter returns a Writer for c's bucket.
func NewWriter(c *Client) *Writer {
	up := manager.NewUploader(c.s3, func(u *manager.Uploader) {
		u.PartSize = partSize
		u.Concurrency = 2
	})
	return &Writer{up: up, bucket: c.bucket}
}

// Put stores data under key.
func (w *Writer) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	_, err := w.up.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: upload %s/%s: %w", w.bucket, key, err)
	}
	return nil
}

var _ domain.BlobWriter = (*Writer)(nil)
