package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures access to an S3-compatible endpoint for feeds
// and artifacts published to object storage.
type S3Options struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// S3Fetcher retrieves content addressed as s3://bucket/key from an
// S3-compatible store.
type S3Fetcher struct {
	client *minio.Client
}

// NewS3Fetcher creates a fetcher against an S3-compatible endpoint.
func NewS3Fetcher(opts *S3Options) (*S3Fetcher, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	return &S3Fetcher{client: client}, nil
}

// FetchText retrieves an s3://bucket/key object into memory.
func (f *S3Fetcher) FetchText(ctx context.Context, rawURL string) ([]byte, error) {
	bucket, key, err := splitObjectURL(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	return data, nil
}

// FetchBinary streams an s3://bucket/key object into dst. A partial
// file is removed on failure.
func (f *S3Fetcher) FetchBinary(ctx context.Context, rawURL, dst string) error {
	bucket, key, err := splitObjectURL(rawURL)
	if err != nil {
		return &FetchError{URL: rawURL, Err: err}
	}

	stat, err := f.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return &FetchError{URL: rawURL, Err: err}
	}

	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return &FetchError{URL: rawURL, Err: err}
	}
	defer func() { _ = obj.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return &FetchError{URL: rawURL, Err: err}
	}

	written, copyErr := io.Copy(out, obj)
	closeErr := out.Close()

	if copyErr != nil || closeErr != nil || written != stat.Size {
		_ = os.Remove(dst)
		err := copyErr
		if err == nil {
			err = closeErr
		}
		if err == nil {
			err = fmt.Errorf("got %d of %d bytes", written, stat.Size)
		}
		return &FetchError{URL: rawURL, Incomplete: true, Err: err}
	}

	return nil
}

// splitObjectURL splits s3://bucket/key/with/slashes into its parts.
func splitObjectURL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 url: %s", rawURL)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url must name a bucket and key: %s", rawURL)
	}
	return bucket, key, nil
}
