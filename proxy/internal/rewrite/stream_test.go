package rewrite_test

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"

	qt "github.com/frankban/quicktest"

	"github.com/webglass/webglass/proxy/internal/rewrite"
)

// chunkedReader yields the input in two reads, split at a fixed offset.
type chunkedReader struct {
	parts [][]byte
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.parts) == 0 {
		return 0, io.EOF
	}
	part := r.parts[0]
	r.parts = r.parts[1:]
	return copy(p, part), nil
}

func TestReaderRewritesWholeBody(t *testing.T) {
	c := qt.New(t)
	rules := newCtx().ResponseRules()

	body := `<html><a href="https://www.google.com/search">www.google.com</a> notwww.google.com</html>`
	r := rewrite.NewReader(strings.NewReader(body), rules)
	got, err := io.ReadAll(r)

	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals,
		`<html><a href="https://x.com/search">x.com</a> notwww.google.com</html>`)
}

func TestReaderEverySplitPoint(t *testing.T) {
	c := qt.New(t)
	rules := newCtx().ResponseRules()

	body := "prefix https://www.google.com/path suffix"
	want := "prefix https://x.com/path suffix"

	for split := 0; split <= len(body); split++ {
		r := rewrite.NewReader(&chunkedReader{
			parts: [][]byte{[]byte(body[:split]), []byte(body[split:])},
		}, rules)
		got, err := io.ReadAll(r)
		c.Assert(err, qt.IsNil)
		c.Assert(string(got), qt.Equals, want,
			qt.Commentf("split at byte %d", split))
	}
}

func TestReaderOneBytePerRead(t *testing.T) {
	c := qt.New(t)
	rules := newCtx().ResponseRules()

	body := "a www.google.com b www.google.com c"
	r := rewrite.NewReader(iotest.OneByteReader(strings.NewReader(body)), rules)
	got, err := io.ReadAll(r)

	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, "a x.com b x.com c")
}

func TestReaderNeedleAtEOF(t *testing.T) {
	c := qt.New(t)
	rules := newCtx().ResponseRules()

	r := rewrite.NewReader(strings.NewReader("go to www.google.com"), rules)
	got, err := io.ReadAll(r)

	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, "go to x.com")
}

func TestReaderPartialNeedleAtEOF(t *testing.T) {
	c := qt.New(t)
	rules := newCtx().ResponseRules()

	// A truncated needle at end of stream must come through verbatim.
	r := rewrite.NewReader(strings.NewReader("tail www.goog"), rules)
	got, err := io.ReadAll(r)

	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, "tail www.goog")
}

func TestReaderNoMatchPassthrough(t *testing.T) {
	c := qt.New(t)
	rules := newCtx().ResponseRules()

	body := strings.Repeat("0123456789abcdef", 4096) // larger than one chunk
	r := rewrite.NewReader(strings.NewReader(body), rules)
	got, err := io.ReadAll(r)

	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, body)
}

func TestReaderPropagatesSourceError(t *testing.T) {
	c := qt.New(t)
	rules := newCtx().ResponseRules()

	r := rewrite.NewReader(iotest.TimeoutReader(strings.NewReader("some www.google.com text")), rules)
	got, err := io.ReadAll(r)

	// First read succeeds, second errors; everything read so far must have
	// been flushed through the rewriter before the error surfaces.
	c.Assert(err, qt.Equals, iotest.ErrTimeout)
	c.Assert(string(got), qt.Equals, "some x.com text")
}
