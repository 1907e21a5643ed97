package rewrite

import "io"

const readChunkSize = 32 * 1024

// Reader applies a substitution set to a byte stream. It holds back at most
// maxNeedle bytes between reads so a needle straddling a chunk boundary is
// still matched exactly once, keeping memory bounded regardless of body size.
type Reader struct {
	src     io.Reader
	rules   *Rules
	chunk   []byte
	pending []byte // read from src, not yet scanned
	out     []byte // scanned, ready to emit
	prev    byte   // last byte emitted, for left-boundary checks
	srcErr  error
}

// NewReader wraps src with the given substitution set.
func NewReader(src io.Reader, rules *Rules) *Reader {
	return &Reader{
		src:   src,
		rules: rules,
		chunk: make([]byte, readChunkSize),
	}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	for len(r.out) == 0 {
		if r.srcErr != nil {
			if len(r.pending) > 0 {
				r.scan(true)
				continue
			}
			return 0, r.srcErr
		}
		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.pending = append(r.pending, r.chunk[:n]...)
		}
		if err != nil {
			r.srcErr = err
		}
		r.scan(r.srcErr != nil)
	}
	n := copy(p, r.out)
	r.out = r.out[n:]
	return n, nil
}

// scan moves bytes from pending to out, applying rules. Unless atEOF, the
// tail that could still be a partial match (maxNeedle bytes, plus one byte
// of right-boundary lookahead) stays in pending for the next round.
func (r *Reader) scan(atEOF bool) {
	data := r.pending
	keep := r.rules.maxNeedle + 1
	i := 0
	for i < len(data) {
		if !atEOF && len(data)-i < keep {
			break
		}
		if rep, n, ok := r.rules.matchAt(data, i, r.prev, atEOF); ok {
			r.out = append(r.out, rep...)
			r.prev = rep[len(rep)-1]
			i += n
			continue
		}
		r.out = append(r.out, data[i])
		r.prev = data[i]
		i++
	}
	r.pending = append(r.pending[:0], data[i:]...)
}
