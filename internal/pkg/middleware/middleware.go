// Package middleware provides the HTTP middleware chain of the avatar API.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"runtime/debug"
	"time"

	"avatarsynth/internal/httpkit"
	"avatarsynth/internal/pkg/errors"
	"avatarsynth/internal/pkg/logger"
)

// RequestIDHeader is the header name for request IDs.
const RequestIDHeader = "X-Request-ID"

// responseWriter captures status and size. It forwards Flush so streamed
// video responses are not buffered.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	size        int64
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RequestID adds a unique request ID to each request.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = generateRequestID()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := logger.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logging logs one line per completed request, at a level chosen by status.
func Logging(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)
			reqLog := log.FromContext(r.Context())

			reqLog.Debug("request started",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			next.ServeHTTP(wrapped, r)

			logFn := reqLog.Info
			if wrapped.status >= 500 {
				logFn = reqLog.Error
			} else if wrapped.status >= 400 {
				logFn = reqLog.Warn
			}

			logFn("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"size", wrapped.size,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// Recovery recovers from panics and logs them.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.FromContext(r.Context()).Error("panic recovered",
						"panic", rec,
						"stack", string(debug.Stack()),
						"method", r.Method,
						"path", r.URL.Path,
					)
					httpkit.WriteErr(w, http.StatusInternalServerError,
						string(errors.CodeInternal), "internal server error", nil)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// ErrorHandlerFunc is a handler that reports failures by returning them.
type ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request) error

// WrapHandler adapts an ErrorHandlerFunc to http.HandlerFunc.
func WrapHandler(log *logger.Logger, fn ErrorHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			HandleError(w, r, log, err)
		}
	}
}

// HandleError logs err and writes the JSON error envelope.
func HandleError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	reqLog := log.FromContext(r.Context())

	status := errors.GetHTTPStatus(err)
	logFields := []any{
		"error", err.Error(),
		"code", string(errors.GetCode(err)),
		"status", status,
		"method", r.Method,
		"path", r.URL.Path,
	}
	for k, v := range errors.GetFields(err) {
		logFields = append(logFields, k, v)
	}

	if status >= 500 {
		var appErr *errors.Error
		if errors.As(err, &appErr) && len(appErr.Stack) > 0 {
			logFields = append(logFields, "stack", appErr.StackTrace())
		}
		reqLog.Error("request failed", logFields...)
	} else {
		reqLog.Warn("request error", logFields...)
	}

	httpkit.WriteError(w, err)
}

func generateRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
