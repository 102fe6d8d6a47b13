package middleware

import (
	"context"
	apperrors "dashcollab/pkg/errors"
	httputil "dashcollab/pkg/http"
	"net/http"
	"sync"
	"time"
)

// timeoutWriter drops writes from the handler once the deadline has passed, so
// a handler reacting to the cancelled context cannot race the 504. The handler
// gets its own header map, copied out only when its response is let through.
type timeoutWriter struct {
	w          http.ResponseWriter
	header     http.Header
	ctx        context.Context
	mu         sync.Mutex
	timedOut   bool
	written    bool
	statusCode int
}

func newTimeoutWriter(ctx context.Context, w http.ResponseWriter) *timeoutWriter {
	return &timeoutWriter{w: w, header: make(http.Header), ctx: ctx}
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.header
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.expired() || tw.written {
		return
	}
	tw.writeHeaderLocked(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.expired() {
		return 0, http.ErrHandlerTimeout
	}
	if !tw.written {
		tw.writeHeaderLocked(http.StatusOK)
	}
	return tw.w.Write(b)
}

func (tw *timeoutWriter) writeHeaderLocked(code int) {
	dst := tw.w.Header()
	for key, values := range tw.header {
		dst[key] = values
	}
	tw.statusCode = code
	tw.written = true
	tw.w.WriteHeader(code)
}

// expired must be called with mu held.
func (tw *timeoutWriter) expired() bool {
	if !tw.timedOut && tw.ctx.Err() != nil {
		tw.timedOut = true
	}
	return tw.timedOut
}

// timeout answers 504 unless the handler already wrote its response in time.
func (tw *timeoutWriter) timeout() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.timedOut = true
	if !tw.written {
		tw.written = true
		_ = httputil.WriteError(tw.w, apperrors.Timeout("Request timed out"))
	}
}

func RequestTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			r = r.WithContext(ctx)
			tw := newTimeoutWriter(ctx, w)

			done := make(chan struct{})
			panicked := make(chan any, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
				}()
				next.ServeHTTP(tw, r)
				close(done)
			}()

			select {
			case <-done:
				if ctx.Err() != nil {
					tw.timeout()
				}
			case p := <-panicked:
				// Re-raised on the serving goroutine so Recovery sees it.
				panic(p)
			case <-ctx.Done():
				tw.timeout()
			}
		})
	}
}
