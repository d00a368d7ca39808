package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ivlev/nlecore/internal/logging"
	"github.com/ivlev/nlecore/internal/playback"
	"github.com/ivlev/nlecore/internal/store"
	"github.com/ivlev/nlecore/internal/timeline"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			requestID, _ := r.Context().Value(RequestIDKey).(string)
			logging.WithRequestID(logger, requestID).Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					requestID, _ := r.Context().Value(RequestIDKey).(string)
					logger.Error("panic recovered", "error", err, "request_id", requestID)
					WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()[:8]
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func WriteError(w http.ResponseWriter, status int, message, code string) {
	WriteJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeEditError maps timeline, store and session errors to HTTP statuses.
func writeEditError(w http.ResponseWriter, err error) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, timeline.ErrNotFound), errors.Is(err, store.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, timeline.ErrDuplicateID):
		status, code = http.StatusConflict, "DUPLICATE_ID"
	case errors.Is(err, timeline.ErrTrackLocked):
		status, code = http.StatusUnprocessableEntity, "TRACK_LOCKED"
	case errors.Is(err, timeline.ErrOverlap):
		status, code = http.StatusUnprocessableEntity, "OVERLAP"
	case errors.Is(err, timeline.ErrIncompatible):
		status, code = http.StatusUnprocessableEntity, "INCOMPATIBLE"
	case errors.Is(err, timeline.ErrInvalidRange):
		status, code = http.StatusUnprocessableEntity, "INVALID_RANGE"
	case errors.Is(err, timeline.ErrInvalidPlaybackRate):
		status, code = http.StatusUnprocessableEntity, "INVALID_PLAYBACK_RATE"
	case errors.Is(err, timeline.ErrInvalidKeyframeOrder):
		status, code = http.StatusUnprocessableEntity, "INVALID_KEYFRAME_ORDER"
	case errors.Is(err, timeline.ErrInvalidValue):
		status, code = http.StatusUnprocessableEntity, "INVALID_VALUE"
	case errors.Is(err, playback.ErrLoopStopped):
		status, code = http.StatusServiceUnavailable, "SESSION_STOPPED"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusServiceUnavailable, "CANCELLED"
	default:
		status, code = http.StatusInternalServerError, "INTERNAL_ERROR"
	}
	WriteError(w, status, err.Error(), code)
}

// decodeBody decodes a JSON request body, rejecting unknown fields. It
// writes a 400 and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "BAD_REQUEST")
		return false
	}
	return true
}
