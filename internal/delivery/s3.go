package delivery

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kadirbelkuyu/docsnap/internal/config"
	"github.com/kadirbelkuyu/docsnap/pkg/logger"
)

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// S3 uploads archives and reports into a bucket under an optional prefix.
type S3 struct {
	uploader uploader
	bucket   string
	prefix   string
	log      *logger.Logger
	now      func() time.Time
}

// NewS3 uses static credentials when an access key is configured and the
// default AWS credential chain otherwise.
func NewS3(ctx context.Context, cfg config.DeliveryConfig, log *logger.Logger) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return newS3(s3manager.NewUploader(client), cfg.Bucket, cfg.Prefix, log), nil
}

func newS3(up uploader, bucket, prefix string, log *logger.Logger) *S3 {
	if log == nil {
		log = logger.Discard()
	}
	return &S3{uploader: up, bucket: bucket, prefix: strings.Trim(prefix, "/"), log: log, now: time.Now}
}

func (s *S3) DeliverFile(ctx context.Context, localPath, caption string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	key := s.key(filepath.Base(localPath))
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	s.log.Infof("%s: s3://%s/%s", caption, s.bucket, key)
	return nil
}

// DeliverText stores the report as one text object next to the archives.
// Object storage has no message size bound, so the text is not chunked.
func (s *S3) DeliverText(ctx context.Context, text string) error {
	key := s.key(fmt.Sprintf("report-%s.txt", s.now().UTC().Format("20060102_150405")))
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(text),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload report to S3: %w", err)
	}
	return nil
}

func (s *S3) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}
