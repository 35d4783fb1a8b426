// Package s3 fetches raw logs from and publishes results to S3.
package s3

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rpaflow/rpaflow/pkg/errors"
)

// Scheme is the URI scheme handled by this package.
const Scheme = "s3://"

// Config holds S3 client configuration.
type Config struct {
	// Region is the AWS region (e.g., "eu-central-1")
	Region string `yaml:"region"`

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string `yaml:"endpoint"`

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool `yaml:"use_path_style"`

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"-"`

	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// DefaultConfig returns sensible defaults for S3 configuration.
func DefaultConfig() Config {
	return Config{OperationTimeout: 5 * time.Minute}
}

// API is the subset of the S3 client used here.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Client provides S3 operations.
type Client struct {
	cfg Config
	api API
}

// NewClient creates a new S3 client from the default AWS credential chain,
// or from static credentials when configured.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "loading AWS config")
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewWithAPI(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

// NewWithAPI wraps an existing S3 API implementation.
func NewWithAPI(api API, cfg Config) *Client {
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultConfig().OperationTimeout
	}
	return &Client{cfg: cfg, api: api}
}

// IsURI reports whether s is an s3:// location.
func IsURI(s string) bool {
	return strings.HasPrefix(s, Scheme)
}

// ParseURI splits "s3://bucket/key" into bucket and key. The key may be
// empty or end in "/" to denote a prefix.
func ParseURI(uri string) (bucket, key string, err error) {
	if !IsURI(uri) {
		return "", "", errors.Newf(errors.CodeInvalidArgument, "not an s3 uri: %q", uri)
	}
	rest := strings.TrimPrefix(uri, Scheme)
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", errors.Newf(errors.CodeInvalidArgument, "s3 uri without bucket: %q", uri)
	}
	return bucket, key, nil
}

// Fetch downloads one object into dir and returns the local path.
func (c *Client) Fetch(ctx context.Context, uri, dir string) (string, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return "", errors.Newf(errors.CodeInvalidArgument, "s3 uri names a prefix, not an object: %q", uri)
	}
	dst := filepath.Join(dir, path.Base(key))
	if err := c.download(ctx, bucket, key, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// FetchPrefix downloads every object under a prefix whose name ends in ext
// (any when empty) into dir, flattening the key to its base name. It
// returns dir.
func (c *Client) FetchPrefix(ctx context.Context, uri, dir, ext string) (string, error) {
	bucket, prefix, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	keys, err := c.list(ctx, bucket, prefix)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.CodeStorage, "creating download directory")
	}
	for _, key := range keys {
		if strings.HasSuffix(key, "/") || (ext != "" && !strings.EqualFold(path.Ext(key), ext)) {
			continue
		}
		if err := c.download(ctx, bucket, key, filepath.Join(dir, path.Base(key))); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// Upload puts a local file at uri. A uri ending in "/" receives the file
// under its base name. It returns the object uri.
func (c *Client) Upload(ctx context.Context, src, uri string) (string, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	if key == "" || strings.HasSuffix(key, "/") {
		key += filepath.Base(src)
	}

	f, err := os.Open(src)
	if err != nil {
		return "", errors.FileNotFound(src)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.CodeStorage, "uploading object").
			WithContext("bucket", bucket).WithContext("key", key)
	}
	return Scheme + bucket + "/" + key, nil
}

func (c *Client) download(ctx context.Context, bucket, key, dst string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "getting object").
			WithContext("bucket", bucket).WithContext("key", key)
	}
	defer out.Body.Close()

	f, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "creating local file").WithContext("path", dst)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		return errors.Wrap(err, errors.CodeStorage, "downloading object").WithContext("key", key)
	}
	return f.Close()
}

// list returns every key under prefix, following continuation tokens.
func (c *Client) list(ctx context.Context, bucket, prefix string) ([]string, error) {
	var (
		keys  []string
		token *string
	)
	for {
		out, err := c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeStorage, "listing objects").
				WithContext("bucket", bucket).WithContext("prefix", prefix)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	return keys, nil
}
