package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"

	cfg "github.com/clipperhq/clippost/configs"
)

// Service wraps the R2/S3 bucket holding media assets. Adapters that pull
// media by URL get short-lived presigned links; adapters that push bytes
// directly stream objects through GetObject.
type Service struct {
	config  cfg.Storage
	client  *s3.Client
	presign *s3.PresignClient
}

func NewService(c cfg.Storage) *Service {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		log.Fatal(err)
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &Service{
		config:  c,
		client:  client,
		presign: s3.NewPresignClient(client),
	}
}

// PresignedURL returns a time-limited GET URL for the object. When a public
// base URL is configured the internal host is swapped for it; the signature
// covers path and query only, so the link stays valid.
func (s *Service) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	if s.config.PublicBaseURL == "" {
		return req.URL, nil
	}
	return RewritePublicURL(req.URL, s.config.PublicBaseURL)
}

// RewritePublicURL replaces the scheme and host of a presigned URL with the
// configured public base, keeping path and query intact.
func RewritePublicURL(signedURL, publicBase string) (string, error) {
	u, err := url.Parse(signedURL)
	if err != nil {
		return "", err
	}
	base, err := url.Parse(publicBase)
	if err != nil {
		return "", err
	}
	u.Scheme = base.Scheme
	u.Host = base.Host
	if base.Path != "" && base.Path != "/" {
		u.Path = strings.TrimSuffix(base.Path, "/") + u.Path
	}
	return u.String(), nil
}

// GetObject streams an object for direct chunked uploads. The caller closes
// the reader.
func (s *Service) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Info(err.Error())
		return nil, 0, err
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

// GetBytes reads a whole object into memory. Only for small payloads like
// single images.
func (s *Service) GetBytes(ctx context.Context, key string) ([]byte, string, error) {
	body, _, err := s.GetObject(ctx, key)
	if err != nil {
		return nil, "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		slog.Info(err.Error())
		return nil, "", err
	}

	return data, SniffContentType(data), nil
}

// SniffContentType detects the MIME type from magic bytes, falling back to
// octet-stream for unknown formats.
func SniffContentType(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}
