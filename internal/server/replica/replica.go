// Package replica mirrors completed uploads to an S3-compatible bucket.
//
// The mirror is best effort: uploads are acknowledged as soon as they are on
// the local disk and replication failures only end up in the log.
package replica

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/smugglebox/internal/logging"
	sc "github.com/dmitrijs2005/smugglebox/internal/server/config"
	"github.com/dmitrijs2005/smugglebox/internal/server/sandbox"
)

// DefaultTimeout bounds a single background mirror.
const DefaultTimeout = 10 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) Uploader {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// Uploader is the part of the S3 client the replica needs.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Replica copies stored files into a bucket.
type Replica struct {
	client  Uploader
	bucket  string
	prefix  string
	timeout time.Duration
	logger  logging.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New builds a Replica from the S3 settings in cfg.
func New(ctx context.Context, cfg *sc.Config, l logging.Logger) (*Replica, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, cfg.S3Bucket, cfg.S3Prefix, l), nil
}

// NewWithClient returns a Replica that uploads through client.
func NewWithClient(client Uploader, bucket, prefix string, l logging.Logger) *Replica {
	return &Replica{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		timeout: DefaultTimeout,
		logger:  l.With("module", "replica"),
	}
}

// ObjectKey maps a root-relative path to the object key.
func (r *Replica) ObjectKey(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if r.prefix == "" {
		return rel
	}
	return strings.TrimSuffix(r.prefix, "/") + "/" + rel
}

// Mirror uploads the file at p.
func (r *Replica) Mirror(ctx context.Context, p sandbox.Path) error {
	f, err := os.Open(p.Abs)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	key := r.ObjectKey(p.Rel)
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(fi.Size()),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", r.bucket, key, err)
	}
	return nil
}

// MirrorAsync mirrors p in the background, detached from the request that
// stored it. Failures are logged.
func (r *Replica) MirrorAsync(ctx context.Context, p sandbox.Path) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn(ctx, "mirror skipped, replica is shutting down", "name", p.Rel)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		if err := r.Mirror(ctx, p); err != nil {
			r.logger.Error(ctx, "mirror failed", "name", p.Rel, "error", err)
			return
		}
		r.logger.Info(ctx, "mirrored", "name", p.Rel, "bucket", r.bucket, "key", r.ObjectKey(p.Rel))
	}()
}

// Wait stops accepting new mirrors and blocks until every pending one
// finished. Later MirrorAsync calls are logged and dropped.
func (r *Replica) Wait() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
}
