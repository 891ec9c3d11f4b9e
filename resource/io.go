package resource

import (
	"context"
	"io"
)

// RateLimitedWriter throttles writes through the controller's IO budget.
type RateLimitedWriter struct {
	ctx context.Context
	w   io.Writer
	c   *Controller
}

// NewRateLimitedWriter wraps w. The context bounds how long a write may wait
// for the throttle.
func NewRateLimitedWriter(ctx context.Context, w io.Writer, c *Controller) *RateLimitedWriter {
	return &RateLimitedWriter{ctx: ctx, w: w, c: c}
}

// Write implements io.Writer.
func (w *RateLimitedWriter) Write(p []byte) (int, error) {
	if err := w.c.WaitIO(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.w.Write(p)
}

// RateLimitedReader throttles reads through the controller's IO budget.
type RateLimitedReader struct {
	ctx context.Context
	r   io.Reader
	c   *Controller
}

// NewRateLimitedReader wraps r. The context bounds how long a read may wait
// for the throttle.
func NewRateLimitedReader(ctx context.Context, r io.Reader, c *Controller) *RateLimitedReader {
	return &RateLimitedReader{ctx: ctx, r: r, c: c}
}

// Read implements io.Reader. The wait covers the buffer size, so short reads
// briefly over-reserve; the throttle catches up on the next call.
func (r *RateLimitedReader) Read(p []byte) (int, error) {
	if r.c != nil && r.c.ioLimiter != nil {
		if burst := r.c.ioLimiter.Burst(); len(p) > burst {
			p = p[:burst]
		}
	}
	if err := r.c.WaitIO(r.ctx, len(p)); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
