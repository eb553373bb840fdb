package objstore

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type gcsAPI interface {
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

type gcsClient struct{ c *storage.Client }

func (g gcsClient) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return g.c.Bucket(bucket).Object(object).NewReader(ctx)
}

var newGCSClient = func(ctx context.Context, cfg GCSConfig) (gcsAPI, error) {
	var clientOpts []option.ClientOption
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return gcsClient{c: client}, nil
}

func (s *Store) gcsClient(ctx context.Context) (gcsAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gcs == nil {
		c, err := newGCSClient(ctx, s.cfg.GCS)
		if err != nil {
			return nil, err
		}
		s.gcs = c
	}
	return s.gcs, nil
}

func (s *Store) openGCS(ctx context.Context, loc Location) (io.ReadCloser, error) {
	c, err := s.gcsClient(ctx)
	if err != nil {
		return nil, err
	}
	return c.NewReader(ctx, loc.Bucket, loc.Key)
}
