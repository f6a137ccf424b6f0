package imagegen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// keyPrefix is where mirrored images are stored in the bucket.
const keyPrefix = "recipes/generated/"

// maxImageBytes caps a downloaded image.
const maxImageBytes = 20 << 20

// ObjectPutter is the subset of *s3.Client the mirror uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// GetPresigner is the subset of *s3.PresignClient the mirror uses.
type GetPresigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Mirror downloads images and stores them in an S3 bucket, returning a
// presigned GET URL.
type S3Mirror struct {
	bucket  string
	put     ObjectPutter
	presign GetPresigner
	expiry  time.Duration
	client  *http.Client
	newKey  func(ext string) string
}

// NewS3Mirror loads the default AWS configuration for region and returns
// a mirror writing to bucket.
func NewS3Mirror(ctx context.Context, bucket, region string, expiry time.Duration) (*S3Mirror, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("imagegen: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return NewS3MirrorWith(bucket, client, s3.NewPresignClient(client), expiry, nil), nil
}

// NewS3MirrorWith builds a mirror over explicit S3 clients. A nil
// httpClient uses a 60s-timeout client for downloads.
func NewS3MirrorWith(bucket string, put ObjectPutter, presign GetPresigner, expiry time.Duration, httpClient *http.Client) *S3Mirror {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &S3Mirror{
		bucket:  bucket,
		put:     put,
		presign: presign,
		expiry:  expiry,
		client:  httpClient,
		newKey:  func(ext string) string { return keyPrefix + uuid.NewString() + "." + ext },
	}
}

// Mirror implements Mirror.
func (m *S3Mirror) Mirror(ctx context.Context, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("imagegen: build download request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("imagegen: download image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("imagegen: download image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("imagegen: read image: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	ext := extension(contentType, sourceURL)
	if contentType == "" {
		contentType = mime.TypeByExtension("." + ext)
	}
	key := m.newKey(ext)

	_, err = m.put.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("imagegen: upload %s: %w", key, err)
	}

	signed, err := m.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(m.expiry))
	if err != nil {
		return "", fmt.Errorf("imagegen: presign %s: %w", key, err)
	}
	return signed.URL, nil
}

// extension picks a file extension from the response content type, then
// the URL path, defaulting to png.
func extension(contentType, sourceURL string) string {
	switch strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	}
	if u, err := url.Parse(sourceURL); err == nil {
		switch ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), ".")); ext {
		case "jpg", "jpeg":
			return "jpg"
		case "png", "webp":
			return ext
		}
	}
	return "png"
}
