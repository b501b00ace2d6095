package hdlc

import (
	"errors"
	"io"
)

type Option func(*Reader)

// WithLLC requires and strips the LLC header of every information field.
func WithLLC() Option {
	return func(r *Reader) {
		r.llc = true
	}
}

// WithResyncHook registers a function called every time a byte is dropped
// from the head of the buffer, with the parse error that caused it.
func WithResyncHook(fn func(dropped byte, reason error)) Option {
	return func(r *Reader) {
		r.onResync = fn
	}
}

// Reader assembles frames from a byte stream delivered in arbitrary chunks.
// It is not safe for concurrent use.
type Reader struct {
	r        io.Reader
	buf      []byte
	consumed int
	llc      bool
	onResync func(byte, error)
}

func NewReader(r io.Reader, opts ...Option) *Reader {
	rd := &Reader{
		r: r,
	}
	for _, o := range opts {
		o(rd)
	}
	return rd
}

// Reset discards everything buffered, including an unreleased frame.
func (r *Reader) Reset() {
	r.buf = r.buf[:0]
	r.consumed = 0
}

// Buffered returns the number of bytes held in the buffer.
func (r *Reader) Buffered() int {
	return len(r.buf)
}

// Release drains the bytes of the frame last returned by ReadFrame. The
// frame's Information must not be used afterwards.
func (r *Reader) Release() {
	if r.consumed == 0 {
		return
	}
	n := copy(r.buf, r.buf[r.consumed:])
	r.buf = r.buf[:n]
	r.consumed = 0
}

// ReadFrame returns the next well-formed frame. Incomplete input makes it read
// more bytes; malformed input makes it drop a single byte and try again from
// the new alignment. Only failures of the underlying reader are returned.
func (r *Reader) ReadFrame() (*Frame, error) {
	r.Release()

	needed := 0
	for {
		if needed > 0 {
			if err := r.fill(needed); err != nil {
				return nil, err
			}
		}

		fr, n, err := Parse(r.buf, r.llc)
		if err == nil {
			r.consumed = n
			return fr, nil
		}

		var inc *IncompleteError
		if errors.As(err, &inc) {
			needed = inc.Needed
			if needed <= 0 {
				needed = 1
			}
			continue
		}

		// Can't be salvaged at this alignment, slide the window by one byte
		dropped := r.buf[0]
		r.buf = r.buf[:copy(r.buf, r.buf[1:])]
		needed = 0
		if r.onResync != nil {
			r.onResync(dropped, err)
		}
	}
}

// fill appends exactly n bytes from the underlying reader to the buffer.
func (r *Reader) fill(n int) error {
	l := len(r.buf)
	if cap(r.buf)-l < n {
		nb := make([]byte, l, 2*cap(r.buf)+n)
		copy(nb, r.buf)
		r.buf = nb
	}
	r.buf = r.buf[:l+n]
	read, err := io.ReadFull(r.r, r.buf[l:])
	r.buf = r.buf[:l+read]
	if err != nil {
		return &ReadError{Err: err}
	}
	return nil
}
