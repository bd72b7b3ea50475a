// Package objectstore keeps record files, model artifacts and experiment
// configs in an S3-compatible store.
package objectstore

import (
	"bytes"
	"context"
	"io"
	"time"

	"mimic/pkg/config"
	"mimic/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

const maxElapsed = 2 * time.Minute

type Store struct {
	client *minio.Client
}

func New(cfg config.ObjectStoreConfig) (*Store, error) {
	creds := credentials.NewEnvAWS()
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Region: cfg.Region,
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create object store client")
	}
	return &Store{client: client}, nil
}

// retry runs op with exponential backoff until it succeeds, returns a
// permanent error or ctx ends.
func retry(ctx context.Context, what string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxElapsed
	return backoff.RetryNotify(op, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		logger.Warn("Object store call failed, retrying", "op", what, "wait", wait.String(), "error", err)
	})
}

// permanent stops retries for errors a retry cannot fix.
func permanent(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return backoff.Permanent(err)
	}
	return err
}

func (s *Store) PutFile(ctx context.Context, bucket, key, path string) error {
	err := retry(ctx, "put file", func() error {
		_, err := s.client.FPutObject(ctx, bucket, key, path, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
		return permanent(err)
	})
	if err != nil {
		return errors.Wrapf(err, "put file '%s/%s'", bucket, key)
	}
	return nil
}

func (s *Store) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	err := retry(ctx, "put object", func() error {
		_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: contentType,
		})
		return permanent(err)
	})
	if err != nil {
		return errors.Wrapf(err, "put object '%s/%s'", bucket, key)
	}
	return nil
}

// Get returns the object's content. The caller closes it.
func (s *Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	var obj *minio.Object
	err := retry(ctx, "get object", func() error {
		o, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return permanent(err)
		}
		if _, err := o.Stat(); err != nil {
			o.Close()
			return permanent(err)
		}
		obj = o
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get object '%s/%s'", bucket, key)
	}
	return obj, nil
}

// GetFile downloads an object to path.
func (s *Store) GetFile(ctx context.Context, bucket, key, path string) error {
	err := retry(ctx, "get file", func() error {
		return permanent(s.client.FGetObject(ctx, bucket, key, path, minio.GetObjectOptions{}))
	})
	if err != nil {
		return errors.Wrapf(err, "get file '%s/%s'", bucket, key)
	}
	return nil
}
