// Package datasource resolves input locations to byte streams. A location is
// a local path, a file:// or http(s):// URL, or an object store URL
// (s3://, gs://, azblob://). Opened streams are decompressed and decoded to
// UTF-8 according to DecodeOptions.
package datasource

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"fifoexport/internal/datasource/file"
	"fifoexport/internal/datasource/httpds"
	"fifoexport/internal/datasource/objstore"
	"fifoexport/internal/logging"
)

// Source yields a fresh stream on every Open.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Options configures an Opener.
type Options struct {
	Decode  DecodeOptions
	HTTP    httpds.Config
	Objects objstore.Config
}

// Opener opens locations. It is safe for concurrent use; HTTP and object
// store clients are shared between Opens.
type Opener struct {
	decode  DecodeOptions
	http    *httpds.Client
	objects *objstore.Store
	log     *zap.Logger
}

// NewOpener builds an Opener for opts.
func NewOpener(opts Options, log *zap.Logger) *Opener {
	log = logging.OrNop(log)
	return &Opener{
		decode:  opts.Decode,
		http:    httpds.NewClient(opts.HTTP, log),
		objects: objstore.New(opts.Objects, log),
		log:     log.Named("datasource"),
	}
}

// Source returns the raw (undecoded) source for loc.
func (o *Opener) Source(loc string) (Source, error) {
	if objstore.IsObjectURL(loc) {
		return o.objects.Source(loc), nil
	}
	u, err := url.Parse(loc)
	if err != nil || len(u.Scheme) <= 1 {
		// No scheme, or a Windows drive letter.
		return file.NewLocal(loc), nil
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return file.NewLocal(u.Path), nil
	case "http", "https":
		return o.http.Source(loc), nil
	default:
		return nil, fmt.Errorf("unsupported location scheme %q in %s", u.Scheme, loc)
	}
}

// Open opens loc and applies the configured decoding.
func (o *Opener) Open(ctx context.Context, loc string) (io.ReadCloser, error) {
	src, err := o.Source(loc)
	if err != nil {
		return nil, err
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	dec, err := Decode(rc, loc, o.decode)
	if err != nil {
		return nil, err
	}
	o.log.Debug("source opened", zap.String("location", loc))
	return dec, nil
}

// Expand turns configured paths into concrete locations. "@list.txt" reads
// one location per line (blank lines and # comments skipped); local paths
// containing glob metacharacters are expanded and must match something.
// URLs are returned as is. Lists may not reference other lists.
func Expand(paths []string) ([]string, error) {
	return expand(paths, true)
}

func expand(paths []string, lists bool) ([]string, error) {
	var out []string
	for _, p := range paths {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
			continue
		case strings.HasPrefix(p, "@"):
			if !lists {
				return nil, fmt.Errorf("nested list %s", p)
			}
			list, err := file.ReadList(p[1:])
			if err != nil {
				return nil, fmt.Errorf("read list %s: %w", p[1:], err)
			}
			more, err := expand(list, false)
			if err != nil {
				return nil, err
			}
			out = append(out, more...)
		case strings.Contains(p, "://"):
			out = append(out, p)
		case strings.ContainsAny(p, "*?["):
			matches, err := filepath.Glob(p)
			if err != nil {
				return nil, fmt.Errorf("glob %s: %w", p, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("glob %s matched no files", p)
			}
			sort.Strings(matches)
			out = append(out, matches...)
		default:
			out = append(out, p)
		}
	}
	return out, nil
}
