package filestorage

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"

	"github.com/cozy-creator/sticker-server/internal/config"
)

type S3FileStorage struct {
	client *s3.Client
	cfg    *config.S3Config
}

func NewS3FileStorage(cfg *config.Config) (*S3FileStorage, error) {
	if cfg.S3 == nil {
		return nil, fmt.Errorf("s3 config is not set")
	}

	region := cfg.S3.Region
	if region == "" {
		region = "auto"
	}

	credentialsProvider := credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, "")
	awsCfg, err := awsConfig.LoadDefaultConfig(
		context.TODO(),
		awsConfig.WithRegion(region),
		awsConfig.WithCredentialsProvider(credentialsProvider),
	)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.EndpointUrl != "" {
			o.BaseEndpoint = &cfg.S3.EndpointUrl
		}
	})

	return &S3FileStorage{
		client: s3Client,
		cfg:    cfg.S3,
	}, nil
}

func (u *S3FileStorage) Upload(ctx context.Context, file FileInfo) (string, error) {
	key, err := file.Key()
	if err != nil {
		return "", err
	}
	if folder := strings.Trim(u.cfg.Folder, "/"); folder != "" {
		key = folder + "/" + key
	}

	var (
		mtype   string
		content io.Reader
	)
	switch file.Kind {
	case FileKindBytes:
		data, ok := file.Content.([]byte)
		if !ok {
			return "", ErrUnknownFileKind
		}
		mtype = mimetype.Detect(data).String()
		content = bytes.NewReader(data)
	case FileKindStream:
		reader, ok := file.Content.(io.Reader)
		if !ok {
			return "", ErrUnknownFileKind
		}
		buffered := bufio.NewReaderSize(reader, 3072)
		head, _ := buffered.Peek(3072)
		mtype = mimetype.Detect(head).String()
		content = buffered
	default:
		return "", ErrUnknownFileKind
	}

	input := s3.PutObjectInput{
		Key:         &key,
		ContentType: &mtype,
		Bucket:      &u.cfg.Bucket,
		Body:        content,
		ACL:         types.ObjectCannedACLPublicRead,
	}
	if _, err := u.client.PutObject(ctx, &input); err != nil {
		return "", err
	}

	return u.publicURL(key), nil
}

func (u *S3FileStorage) Remove(ctx context.Context, key string) error {
	if folder := strings.Trim(u.cfg.Folder, "/"); folder != "" && !strings.HasPrefix(key, folder+"/") {
		key = folder + "/" + key
	}

	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &u.cfg.Bucket,
		Key:    &key,
	})
	return err
}

func (u *S3FileStorage) publicURL(key string) string {
	if u.cfg.PublicUrl != "" {
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(u.cfg.PublicUrl, "/"), key)
	}

	switch {
	case strings.Contains(u.cfg.EndpointUrl, "digitaloceanspaces.com"):
		return fmt.Sprintf("https://%s.%s.cdn.digitaloceanspaces.com/%s", u.cfg.Bucket, u.cfg.Region, key)
	case strings.Contains(u.cfg.EndpointUrl, "amazonaws.com"):
		endpoint := strings.TrimPrefix(u.cfg.EndpointUrl, "https://")
		endpoint = strings.TrimSuffix(endpoint, "/")
		return fmt.Sprintf("https://%s.%s/%s", u.cfg.Bucket, endpoint, key)
	default:
		// R2 and other S3 compatible stores need s3.public_url to build links
		return key
	}
}
