// internal/middleware/logging.go

package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// LogMiddleware is an HTTP middleware that logs incoming requests using Logrus.
// Logs the method, path, and duration of each request.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}).Debug("HTTP request")
		})
	}
}

// LogClientConnect logs a game client connection. transport is "tcp" or "ws".
func LogClientConnect(logger *logrus.Logger, remoteAddr, transport string) {
	logger.WithFields(logrus.Fields{
		"remote":    remoteAddr,
		"transport": transport,
	}).Info("client connected")
}

// LogClientDisconnect logs the end of a game client connection.
func LogClientDisconnect(logger *logrus.Logger, remoteAddr, transport string, err error) {
	fields := logrus.Fields{
		"remote":    remoteAddr,
		"transport": transport,
	}
	if err != nil {
		fields["error"] = err
	}
	logger.WithFields(fields).Info("client disconnected")
}
