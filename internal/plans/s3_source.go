package plans

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/benbjohnson/clock"

	"github.com/jmylchreest/companion-api/internal/models"
)

// ObjectGetter is the subset of the S3 client used to fetch the overrides document.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures the S3-compatible bucket holding plan overrides.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Key       string
	CacheTTL  time.Duration // How often to check for updates (default: 5 min)
}

// NewS3Client builds an S3 client for S3-compatible storage (Tigris, MinIO, etc.).
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	}), nil
}

// S3Source loads plan overrides from a JSON object, using the ETag to skip
// unchanged documents.
type S3Source struct {
	client ObjectGetter
	bucket string
	key    string
	ttl    time.Duration
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	etag      string
	lastCheck time.Time
	loaded    bool
}

// NewS3Source creates an overrides source for the given bucket and key.
func NewS3Source(client ObjectGetter, cfg S3Config, clk clock.Clock, logger *slog.Logger) *S3Source {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Source{
		client: client,
		bucket: cfg.Bucket,
		key:    cfg.Key,
		ttl:    cfg.CacheTTL,
		clock:  clk,
		logger: logger.With("component", "plan_source", "bucket", cfg.Bucket, "key", cfg.Key),
	}
}

// NeedsRefresh reports whether the cache TTL has elapsed since the last check.
func (s *S3Source) NeedsRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.loaded || s.clock.Since(s.lastCheck) > s.ttl
}

// Load fetches the overrides document. It returns (nil, nil) when the
// object is unchanged. A missing object yields an empty override set so
// that previously applied overrides are dropped.
func (s *S3Source) Load(ctx context.Context) (map[models.Tier]TierOverride, error) {
	s.mu.Lock()
	currentEtag := s.etag
	s.mu.Unlock()

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	}
	if currentEtag != "" {
		input.IfNoneMatch = aws.String("\"" + currentEtag + "\"")
	}

	resp, err := s.client.GetObject(ctx, input)
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			s.markChecked("")
			s.logger.Debug("plan overrides not found, using defaults")
			return map[models.Tier]TierOverride{}, nil
		}

		var notModified interface{ ErrorCode() string }
		if errors.As(err, &notModified) && notModified.ErrorCode() == "NotModified" {
			s.markChecked(currentEtag)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch plan overrides: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan overrides: %w", err)
	}

	overrides, err := ParseOverrides(data)
	if err != nil {
		return nil, err
	}

	newEtag := ""
	if resp.ETag != nil {
		newEtag = strings.Trim(*resp.ETag, "\"")
	}
	s.markChecked(newEtag)

	s.logger.Debug("plan overrides fetched", "etag", newEtag, "size", len(data))
	return overrides, nil
}

func (s *S3Source) markChecked(etag string) {
	s.mu.Lock()
	s.etag = etag
	s.lastCheck = s.clock.Now()
	s.loaded = true
	s.mu.Unlock()
}
