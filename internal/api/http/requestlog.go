package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mind-engage/mindengage-scenarios/internal/logger"
)

// RequestLogger logs one line per request through zap.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				kv := []interface{}{
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				}
				switch {
				case ww.Status() >= 500:
					log.Error("http request", kv...)
				case ww.Status() >= 400:
					log.Warn("http request", kv...)
				default:
					log.Info("http request", kv...)
				}
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
