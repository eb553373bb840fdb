package datasource

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DecodeOptions controls how raw input bytes become UTF-8 text.
type DecodeOptions struct {
	// Encoding is a WHATWG label such as "windows-1250" or "iso-8859-2".
	// Empty means the bytes are passed through untouched; "utf-8" strips a
	// leading BOM.
	Encoding string
	// Normalize is nfc, nfkc, nfd or nfkd. Empty or "none" disables it.
	Normalize string
	// Decompress is auto, gzip, zstd or none. Auto sniffs magic bytes and
	// falls back to the file extension.
	Decompress string
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Decode wraps rc with decompression, charset decoding and Unicode
// normalization, in that order. name is the location rc came from; it is
// only used for extension-based detection. Closing the result closes rc.
func Decode(rc io.ReadCloser, name string, o DecodeOptions) (io.ReadCloser, error) {
	chain := &readChain{closers: []io.Closer{rc}}
	var r io.Reader = rc

	codec, err := pickCodec(o.Decompress, name)
	if err != nil {
		rc.Close()
		return nil, err
	}
	if codec == "auto" {
		br := bufio.NewReader(r)
		codec = sniffCodec(br, name)
		r = br
	}
	switch codec {
	case "gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("gzip %s: %w", name, err)
		}
		chain.closers = append(chain.closers, zr)
		r = zr
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("zstd %s: %w", name, err)
		}
		zc := zr.IOReadCloser()
		chain.closers = append(chain.closers, zc)
		r = zc
	}

	var ts []transform.Transformer
	if enc := strings.TrimSpace(o.Encoding); enc != "" {
		t, err := charsetDecoder(enc)
		if err != nil {
			chain.Close()
			return nil, err
		}
		ts = append(ts, t)
	}
	if form, err := normForm(o.Normalize); err != nil {
		chain.Close()
		return nil, err
	} else if form != nil {
		ts = append(ts, *form)
	}
	switch len(ts) {
	case 0:
	case 1:
		r = transform.NewReader(r, ts[0])
	default:
		r = transform.NewReader(r, transform.Chain(ts...))
	}

	chain.Reader = r
	return chain, nil
}

func pickCodec(mode, name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		return "auto", nil
	case "gzip", "gz":
		return "gzip", nil
	case "zstd", "zst":
		return "zstd", nil
	case "none":
		return "none", nil
	default:
		return "", fmt.Errorf("unknown decompression %q for %s", mode, name)
	}
}

func sniffCodec(br *bufio.Reader, name string) string {
	if head, _ := br.Peek(len(zstdMagic)); len(head) > 0 {
		switch {
		case bytes.HasPrefix(head, gzipMagic):
			return "gzip"
		case bytes.HasPrefix(head, zstdMagic):
			return "zstd"
		}
		return "none"
	}
	// Empty input: trust the extension so a truncated .gz still errors.
	switch strings.ToLower(path.Ext(stripQuery(name))) {
	case ".gz", ".gzip":
		return "gzip"
	case ".zst", ".zstd":
		return "zstd"
	}
	return "none"
}

func stripQuery(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		return name[:i]
	}
	return name
}

func charsetDecoder(label string) (transform.Transformer, error) {
	switch strings.ToLower(label) {
	case "utf-8", "utf8":
		return unicode.UTF8BOM.NewDecoder(), nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	return enc.NewDecoder(), nil
}

func normForm(name string) (*norm.Form, error) {
	var f norm.Form
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return nil, nil
	case "nfc":
		f = norm.NFC
	case "nfkc":
		f = norm.NFKC
	case "nfd":
		f = norm.NFD
	case "nfkd":
		f = norm.NFKD
	default:
		return nil, fmt.Errorf("unknown normalization form %q", name)
	}
	return &f, nil
}

// readChain reads from the outermost layer and closes every layer, innermost
// last.
type readChain struct {
	io.Reader
	closers []io.Closer
}

func (c *readChain) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
