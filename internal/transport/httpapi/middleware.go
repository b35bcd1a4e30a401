package httpapi

import (
	"fmt"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// recoverer превращает panic в ответ 500 с конвертом ошибки.
func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.WithFields(log.Fields{
					"panic":      rec,
					"request_id": chimw.GetReqID(r.Context()),
				}).Error("panic recovered")
				writeError(h.logger, w, fmt.Errorf("panic: %v", rec), nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// logRequests пишет access-лог запроса.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  chimw.GetReqID(r.Context()),
		}).Info("http request")
	})
}

// limitBody ограничивает тело запроса maxRequestBodyBytes.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}
