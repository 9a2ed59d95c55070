// Package mirror copies organization profile pictures into an S3 bucket so records keep
// a working image url after the source url expires.
package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"insights-backend/internal/assert"
	"insights-backend/internal/components/telemetry"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("insights.internal.mirror")

const report_mirror = "profile-picture"

// maxImageSize bounds what is downloaded, profile pictures are small.
const maxImageSize = 10 << 20

// Uploader stores an object and returns its public url.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

type Config struct {
	Bucket string `json:"bucket"`
	Region string `json:"region"`
	// Endpoint overrides the S3 endpoint for compatible stores, it implies path style
	// addressing.
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	// PublicBaseURL replaces the upload location in returned urls, for buckets served
	// through a CDN.
	PublicBaseURL string `json:"public_base_url"`
	Prefix        string `json:"prefix"`
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

// S3 uploads with the s3manager uploader.
type S3 struct {
	uploader   *s3manager.Uploader
	bucket     string
	publicBase string
}

func NewS3(config Config) (*S3, error) {
	awsConfig := aws.NewConfig()
	if config.Region != "" {
		awsConfig = awsConfig.WithRegion(config.Region)
	}
	if config.AccessKeyID != "" {
		awsConfig = awsConfig.WithCredentials(credentials.NewStaticCredentials(
			config.AccessKeyID,
			config.SecretAccessKey,
			"",
		))
	}
	if config.Endpoint != "" {
		awsConfig = awsConfig.WithEndpoint(config.Endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating AWS session: %w", err)
	}
	return &S3{
		uploader:   s3manager.NewUploader(sess),
		bucket:     config.Bucket,
		publicBase: strings.TrimRight(config.PublicBaseURL, "/"),
	}, nil
}

func (s *S3) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		ACL:         aws.String("public-read"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if s.publicBase != "" {
		return s.publicBase + "/" + key, nil
	}
	return out.Location, nil
}

type options struct {
	tel    telemetry.API
	prefix string
}

type Option func(o *options)

func WithTelemetry(tel telemetry.API) Option {
	return func(o *options) {
		o.tel = tel
	}
}

// WithPrefix sets the key prefix, "profile_pictures" by default.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// Mirror downloads images and hands them to an Uploader.
type Mirror struct {
	http     *resty.Client
	uploader Uploader
	prefix   string
	tel      telemetry.API
}

func New(uploader Uploader, opts ...Option) *Mirror {
	assert.NotNil(uploader, "uploader")

	o := options{
		tel:    telemetry.SlogAPI{},
		prefix: "profile_pictures",
	}
	for _, opt := range opts {
		opt(&o)
	}
	tel := telemetry.NewScopedAPI("mirror", o.tel)

	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	telemetry.InstrumentResty(client, tel)

	return &Mirror{
		http:     client,
		uploader: uploader,
		prefix:   strings.Trim(o.prefix, "/"),
		tel:      tel,
	}
}

// Open returns nil when config has no bucket, callers skip mirroring then.
func Open(config Config, opts ...Option) (*Mirror, error) {
	if !config.Enabled() {
		return nil, nil
	}
	uploader, err := NewS3(config)
	if err != nil {
		return nil, err
	}
	return New(uploader, append([]Option{WithPrefix(config.Prefix)}, opts...)...), nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	}
	return ".jpg"
}

// Key is the object key of an organization's profile picture.
func (m *Mirror) Key(orgID, contentType string) string {
	return path.Join(m.prefix, url.PathEscape(orgID)+extension(contentType))
}

// ProfilePicture copies imageURL and returns the mirrored url.
func (m *Mirror) ProfilePicture(ctx context.Context, orgID, imageURL string) (string, error) {
	ctx, span := tracer.Start(ctx, "ProfilePicture")
	defer span.End()
	span.SetAttributes(attribute.String("org_id", orgID))

	mirrored, err := m.profilePicture(ctx, orgID, imageURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to mirror profile picture")
		m.tel.ReportWarning(report_mirror, err)
		return "", err
	}
	return mirrored, nil
}

func (m *Mirror) profilePicture(ctx context.Context, orgID, imageURL string) (string, error) {
	res, err := m.http.R().
		SetContext(ctx).
		SetHeader("Accept", "image/*").
		Get(imageURL)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("download: status %s", res.Status())
	}
	body := res.Body()
	if len(body) == 0 {
		return "", fmt.Errorf("download: empty body")
	}
	if len(body) > maxImageSize {
		return "", fmt.Errorf("download: image is larger than %d bytes", maxImageSize)
	}

	contentType := "image/jpeg"
	if header := res.Header().Get("Content-Type"); header != "" {
		mediaType, _, err := mime.ParseMediaType(header)
		if err != nil {
			return "", fmt.Errorf("download: content type %q: %w", header, err)
		}
		if !strings.HasPrefix(mediaType, "image/") {
			return "", fmt.Errorf("download: not an image (%s)", mediaType)
		}
		contentType = mediaType
	}

	return m.uploader.Upload(ctx, m.Key(orgID, contentType), contentType, bytes.NewReader(body))
}
