package storage

import (
	"context"
	"io"

	gcs "cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// GCSStore keeps objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
	logger *logrus.Entry
}

// NewGCSStore uses application default credentials unless a credentials
// file is configured.
func NewGCSStore(ctx context.Context, cfg Config) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage.bucket must be specified for gcs")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCS client")
	}

	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "failed to access bucket %s", cfg.Bucket)
	}

	logger := logrus.WithField("storage", "gcs")
	logger.WithField("bucket", cfg.Bucket).Debug("GCS store initialized")

	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, logger: logger}, nil
}

func (g *GCSStore) object(key string) *gcs.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(joinKey(g.prefix, key))
}

func (g *GCSStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	r, err := g.object(key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to open gs://%s/%s", g.bucket, key)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to read gs://%s/%s", g.bucket, key)
	}
	return data, true, nil
}

func (g *GCSStore) Put(ctx context.Context, key string, data []byte) error {
	w := g.object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, max-age=0"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return errors.Wrapf(err, "failed to write to GCS object %s", key)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "failed to close GCS writer for %s", key)
	}
	return nil
}

func (g *GCSStore) Delete(ctx context.Context, key string) error {
	err := g.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return errors.Wrapf(err, "failed to delete gs://%s/%s", g.bucket, key)
	}
	return nil
}

func (g *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.object(key).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to stat gs://%s/%s", g.bucket, key)
	}
	return true, nil
}

func (g *GCSStore) Close() error {
	return g.client.Close()
}
