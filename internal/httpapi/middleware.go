package httpapi

import (
	"log"
	"net/http"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now().UTC()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Printf("%s %s status=%d from=%s dur=%s", r.Method, r.URL.Path, rec.status, r.RemoteAddr, time.Since(start))
	})
}

// requireIdentity rejects requests the Authenticator cannot identify and
// puts the identity on the request context for the handler.
func requireIdentity(auth *Authenticator, logger *log.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, err := auth.Identify(r)
		if err != nil {
			logger.Printf("auth %s %s: %v", r.Method, r.URL.Path, err)
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "valid credentials required")
			return
		}
		next(w, r.WithContext(withIdentity(r.Context(), who)))
	}
}
