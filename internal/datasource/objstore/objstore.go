// Package objstore reads input objects from S3, Google Cloud Storage and
// Azure Blob Storage. Locations are URLs: s3://bucket/key, gs://bucket/object
// and azblob://container/blob. Clients are created lazily on first use and
// shared by every Open on the same Store.
package objstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"fifoexport/internal/logging"
)

// Config holds per-provider client settings. Credentials come from the
// providers' default chains unless set here.
type Config struct {
	S3    S3Config
	GCS   GCSConfig
	Azure AzureConfig
}

// S3Config configures the S3 client. Endpoint and UsePathStyle target
// S3-compatible stores such as MinIO.
type S3Config struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// GCSConfig configures the GCS client.
type GCSConfig struct {
	CredentialsFile string
	Endpoint        string
}

// AzureConfig configures the blob client. ConnectionString wins over
// AccountURL; AccountURL alone means anonymous or SAS access.
type AzureConfig struct {
	AccountURL       string
	ConnectionString string
}

// Scheme names.
const (
	SchemeS3    = "s3"
	SchemeGCS   = "gs"
	SchemeAzure = "azblob"
)

// Location is a parsed object URL.
type Location struct {
	Scheme string
	Bucket string // container for azblob
	Key    string
}

func (l Location) String() string { return l.Scheme + "://" + l.Bucket + "/" + l.Key }

// IsObjectURL reports whether raw uses one of the object store schemes.
func IsObjectURL(raw string) bool {
	scheme, _, ok := strings.Cut(raw, "://")
	if !ok {
		return false
	}
	switch strings.ToLower(scheme) {
	case SchemeS3, SchemeGCS, SchemeAzure:
		return true
	}
	return false
}

// ParseLocation parses an object URL.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse object url %q: %w", raw, err)
	}
	loc := Location{
		Scheme: strings.ToLower(u.Scheme),
		Bucket: u.Host,
		Key:    strings.TrimPrefix(u.Path, "/"),
	}
	switch loc.Scheme {
	case SchemeS3, SchemeGCS, SchemeAzure:
	default:
		return Location{}, fmt.Errorf("object url %q: unsupported scheme %q", raw, u.Scheme)
	}
	if loc.Bucket == "" || loc.Key == "" {
		return Location{}, fmt.Errorf("object url %q: want %s://bucket/key", raw, loc.Scheme)
	}
	return loc, nil
}

// Store opens objects across providers.
type Store struct {
	cfg Config
	log *zap.Logger

	mu    sync.Mutex
	s3    s3API
	gcs   gcsAPI
	azure azureAPI
}

// New returns a Store. No client is created until the first Open.
func New(cfg Config, log *zap.Logger) *Store {
	return &Store{cfg: cfg, log: logging.OrNop(log).Named("objstore")}
}

// Open streams the object at raw.
func (s *Store) Open(ctx context.Context, raw string) (io.ReadCloser, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rc io.ReadCloser
	switch loc.Scheme {
	case SchemeS3:
		rc, err = s.openS3(ctx, loc)
	case SchemeGCS:
		rc, err = s.openGCS(ctx, loc)
	case SchemeAzure:
		rc, err = s.openAzure(ctx, loc)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", loc, err)
	}
	s.log.Debug("object opened", zap.Stringer("location", loc))
	return rc, nil
}

// Source binds s to one object URL.
func (s *Store) Source(raw string) *Source { return &Source{s: s, raw: raw} }

// Source is a datasource over one object.
type Source struct {
	s   *Store
	raw string
}

// Open streams the object.
func (src *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	return src.s.Open(ctx, src.raw)
}
