package csv

import (
	"bytes"
	"io"
)

// scrubLikvidaci fixes a broken-quote sequence common in organization names
// of the Czech vehicle registry exports:
//
//	Input  :  ` "v likvidaci""`
//	Output :  ` (v likvidaci)"`
//
// It is opt-in through the stream_scrub_likvidaci option.
var (
	scrubFromLikvidaci = []byte(` "v likvidaci""`)
	scrubToLikvidaci   = []byte(` (v likvidaci)"`)
)

// replaceReader replaces every occurrence of old with repl in a stream. Only
// len(old)-1 unmatched bytes are held back between reads, so matches that
// straddle chunk boundaries are still found.
type replaceReader struct {
	r     io.Reader
	old   []byte
	repl  []byte
	chunk []byte
	in    []byte // read but not yet scanned
	out   []byte // scanned, waiting for the caller
	err   error
}

func newReplaceReader(r io.Reader, old, repl []byte) *replaceReader {
	return &replaceReader{r: r, old: old, repl: repl, chunk: make([]byte, 64<<10)}
}

func (rr *replaceReader) Read(p []byte) (int, error) {
	for len(rr.out) == 0 {
		if rr.err != nil {
			return 0, rr.err
		}
		n, err := rr.r.Read(rr.chunk)
		rr.in = append(rr.in, rr.chunk[:n]...)
		if err != nil {
			rr.err = err
			rr.scan(0)
			continue
		}
		rr.scan(len(rr.old) - 1)
	}
	n := copy(p, rr.out)
	rr.out = rr.out[n:]
	return n, nil
}

// scan moves everything but the last keep bytes of in to out, replacing
// matches on the way.
func (rr *replaceReader) scan(keep int) {
	buf := rr.in
	for {
		i := bytes.Index(buf, rr.old)
		if i < 0 {
			break
		}
		rr.out = append(rr.out, buf[:i]...)
		rr.out = append(rr.out, rr.repl...)
		buf = buf[i+len(rr.old):]
	}
	if keep > len(buf) {
		keep = len(buf)
	}
	rr.out = append(rr.out, buf[:len(buf)-keep]...)
	rr.in = append(rr.in[:0], buf[len(buf)-keep:]...)
}
