package resource

import (
	"context"
	"io"
)

// RateLimitedReader wraps an io.Reader with the controller's IO limit.
type RateLimitedReader struct {
	ctx  context.Context
	r    io.Reader
	ctrl *Controller
}

// NewRateLimitedReader creates a reader that charges the controller's IO
// budget before each read.
func NewRateLimitedReader(ctx context.Context, r io.Reader, ctrl *Controller) *RateLimitedReader {
	return &RateLimitedReader{ctx: ctx, r: r, ctrl: ctrl}
}

func (r *RateLimitedReader) Read(p []byte) (int, error) {
	// Charge the full buffer up front; the actual read may be shorter,
	// which makes the limiter conservative rather than exact.
	if err := r.ctrl.AcquireIO(r.ctx, len(p)); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// RateLimitedWriter wraps an io.Writer with the controller's IO limit.
type RateLimitedWriter struct {
	ctx  context.Context
	w    io.Writer
	ctrl *Controller
}

// NewRateLimitedWriter creates a writer that charges the controller's IO
// budget before each write.
func NewRateLimitedWriter(ctx context.Context, w io.Writer, ctrl *Controller) *RateLimitedWriter {
	return &RateLimitedWriter{ctx: ctx, w: w, ctrl: ctrl}
}

func (w *RateLimitedWriter) Write(p []byte) (int, error) {
	if err := w.ctrl.AcquireIO(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.w.Write(p)
}
