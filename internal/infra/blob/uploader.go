// Package blob ships files such as database dumps to S3-compatible storage.
package blob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config describes the target bucket. Credentials left empty fall back to
// the default AWS chain (environment, shared config, instance role).
type Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	PartSize        int64  `yaml:"part_size"`
	Concurrency     int    `yaml:"concurrency"`
}

// DefaultConfig returns upload defaults.
func DefaultConfig() Config {
	return Config{
		Region:       "us-east-1",
		UsePathStyle: true,
		PartSize:     manager.DefaultUploadPartSize,
		Concurrency:  manager.DefaultUploadConcurrency,
	}
}

type putter interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Uploader streams local files into a bucket.
type Uploader struct {
	up     putter
	bucket string
	log    *slog.Logger
}

// NewUploader builds an S3 client for cfg and wraps it in a multipart uploader.
func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint))
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	up := manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.PartSize > 0 {
			u.PartSize = cfg.PartSize
		}
		if cfg.Concurrency > 0 {
			u.Concurrency = cfg.Concurrency
		}
	})

	return newUploader(up, cfg.Bucket), nil
}

func newUploader(up putter, bucket string) *Uploader {
	return &Uploader{
		up:     up,
		bucket: bucket,
		log:    slog.Default().With("component", "blob"),
	}
}

// UploadResult describes a finished upload.
type UploadResult struct {
	Bucket   string
	Key      string
	Location string
	Bytes    int64
	Duration time.Duration
}

// Upload streams the file at path to key. An empty key uses the file's base
// name; an empty bucket uses the configured one.
func (u *Uploader) Upload(ctx context.Context, path, bucket, key string) (*UploadResult, error) {
	if bucket == "" {
		bucket = u.bucket
	}
	if bucket == "" {
		return nil, fmt.Errorf("no bucket configured")
	}
	if key == "" {
		key = filepath.Base(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	start := time.Now()
	body := newProgressReader(f, info.Size(), func(pct int) {
		u.log.Info("Upload progress", "key", key, "percent", pct)
	})

	out, err := u.up.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s to %s/%s: %w", path, bucket, key, err)
	}

	res := &UploadResult{
		Bucket:   bucket,
		Key:      key,
		Location: out.Location,
		Bytes:    info.Size(),
		Duration: time.Since(start),
	}
	u.log.Info("Upload complete",
		"bucket", bucket,
		"key", key,
		"location", res.Location,
		"bytes", res.Bytes,
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res, nil
}

func endpointURL(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "https://" + endpoint
}

// progressReader reports the integer percentage of bytes read each time it changes.
type progressReader struct {
	r        io.Reader
	size     int64
	read     int64
	last     int
	onChange func(pct int)
}

func newProgressReader(r io.Reader, size int64, onChange func(pct int)) *progressReader {
	return &progressReader{r: r, size: size, last: -1, onChange: onChange}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.size > 0 {
		pct := int(p.read * 100 / p.size)
		if pct != p.last {
			p.last = pct
			p.onChange(pct)
		}
	}
	return n, err
}
