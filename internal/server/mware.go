package server

import (
	"bytes"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const loggedBodyPrefix = 256

func loggingMiddleware(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			irw := &interceptingResponseWriter{inner: w}
			h.ServeHTTP(irw, r)
			if r.Context().Err() != nil {
				return // cancelled by the client
			}
			if irw.statusCode == 0 {
				irw.statusCode = http.StatusOK
			}
			entry := log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   irw.statusCode,
				"duration": time.Since(start).Round(time.Millisecond).String(),
			})
			if irw.statusCode >= http.StatusBadRequest {
				entry.WithField("body", irw.body.String()).Warn("Request failed")
				return
			}
			entry.Debug("Request served")
		})
	}
}

// interceptingResponseWriter records the status and the first bytes of the
// body so failures can be logged.
type interceptingResponseWriter struct {
	inner      http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (w *interceptingResponseWriter) Header() http.Header {
	return w.inner.Header()
}

func (w *interceptingResponseWriter) Write(p []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	if remaining := loggedBodyPrefix - w.body.Len(); remaining > 0 {
		w.body.Write(p[:min(len(p), remaining)])
	}
	return w.inner.Write(p)
}

func (w *interceptingResponseWriter) WriteHeader(statusCode int) {
	if w.statusCode == 0 {
		w.statusCode = statusCode
	}
	w.inner.WriteHeader(statusCode)
}
