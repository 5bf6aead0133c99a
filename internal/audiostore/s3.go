package audiostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/MrWong99/palchat/pkg/provider/tts"
)

// S3Config configures the [S3] publisher.
type S3Config struct {
	// Endpoint is host[:port] of the S3 API, without scheme.
	Endpoint string
	Bucket   string
	Region   string

	AccessKey string
	SecretKey string

	// UseSSL selects https for the endpoint.
	UseSSL bool

	// Prefix is prepended to every object key, e.g. "replies/".
	Prefix string

	// Expiry is the lifetime of presigned URLs. Default: 1h.
	Expiry time.Duration

	// PublicBaseURL, when set, is used to build plain object URLs instead of
	// presigning, e.g. "https://cdn.example.com/palchat".
	PublicBaseURL string
}

// objectClient is the subset of *minio.Client the publisher needs.
type objectClient interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

// S3 publishes audio to an S3-compatible bucket.
type S3 struct {
	client  objectClient
	cfg     S3Config
	newKey  func() string
	nowFunc func() time.Time
}

// NewS3 creates an S3 publisher. It does not contact the service; a missing
// bucket or bad credentials surface on the first Publish.
func NewS3(cfg S3Config) (*S3, error) {
	var errs []error
	if cfg.Endpoint == "" {
		errs = append(errs, errors.New("endpoint must not be empty"))
	}
	if strings.Contains(cfg.Endpoint, "://") {
		errs = append(errs, fmt.Errorf("endpoint %q must not include a scheme", cfg.Endpoint))
	}
	if cfg.Bucket == "" {
		errs = append(errs, errors.New("bucket must not be empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("audiostore: %w", err)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("audiostore: init s3 client: %w", err)
	}
	return newS3(client, cfg), nil
}

func newS3(client objectClient, cfg S3Config) *S3 {
	if cfg.Expiry <= 0 {
		cfg.Expiry = time.Hour
	}
	return &S3{
		client:  client,
		cfg:     cfg,
		newKey:  func() string { return uuid.Must(uuid.NewV7()).String() },
		nowFunc: time.Now,
	}
}

// Publish uploads a and returns a URL for it.
func (s *S3) Publish(ctx context.Context, a *tts.Audio) (string, error) {
	if a == nil || len(a.Data) == 0 {
		return "", ErrNoAudio
	}
	mt := mimeOf(a)
	key := s.cfg.Prefix + s.newKey() + extensionFor(mt)

	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(a.Data), int64(len(a.Data)), minio.PutObjectOptions{
		ContentType:  mt,
		UserMetadata: map[string]string{"uploaded-at": s.nowFunc().UTC().Format(time.RFC3339)},
	})
	if err != nil {
		return "", fmt.Errorf("audiostore: upload %s: %w", key, err)
	}

	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + escapeKey(key), nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, key, s.cfg.Expiry, nil)
	if err != nil {
		return "", fmt.Errorf("audiostore: presign %s: %w", key, err)
	}
	return u.String(), nil
}

// escapeKey escapes each path segment of key.
func escapeKey(key string) string {
	parts := strings.Split(path.Clean("/" + key)[1:], "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func extensionFor(mimeType string) string {
	mt, _, _ := strings.Cut(mimeType, ";")
	switch strings.ToLower(strings.TrimSpace(mt)) {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/basic":
		return ".ulaw"
	case "audio/l16", "audio/pcm":
		return ".pcm"
	}
	return ".bin"
}

var _ Publisher = (*S3)(nil)
