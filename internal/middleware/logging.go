// internal/middleware/logging.go

package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// LogTransport wraps an http.RoundTripper and logs every outgoing request using
// Logrus: method, path, status, and duration. A nil next uses
// http.DefaultTransport.
func LogTransport(logger *logrus.Logger, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(r)

		fields := logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}
		if id := r.Header.Get("X-Request-ID"); id != "" {
			fields["request_id"] = id
		}
		if err != nil {
			fields["error"] = err
			logger.WithFields(fields).Warn("HTTP Request failed")
			return nil, err
		}
		fields["status"] = resp.StatusCode
		logger.WithFields(fields).Debug("HTTP Request")
		return resp, nil
	})
}

// LogWebSocketConnect logs a message when a push subscription is established.
func LogWebSocketConnect(logger *logrus.Logger, url string, sessionID int64) {
	logger.WithFields(logrus.Fields{
		"url":        url,
		"session_id": sessionID,
	}).Info("WebSocket connected")
}

// LogWebSocketDisconnect logs a message when a push subscription ends.
func LogWebSocketDisconnect(logger *logrus.Logger, url string, sessionID int64, err error) {
	fields := logrus.Fields{
		"url":        url,
		"session_id": sessionID,
	}
	if err != nil {
		fields["error"] = err
	}
	logger.WithFields(fields).Info("WebSocket disconnected")
}
