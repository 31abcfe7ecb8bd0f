package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/stackscan/pkg/errors"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		log.Error("failed to write JSON response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeErr maps coded errors to HTTP statuses. Uncoded errors are logged
// and reported as INTERNAL_ERROR without their text.
func (h *handlers) writeErr(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	switch {
	case code == errors.ErrCodeNotFound:
		writeError(w, http.StatusNotFound, string(code), errors.UserMessage(err))
	case code == errors.ErrCodeDuplicateAgent:
		writeError(w, http.StatusConflict, string(code), errors.UserMessage(err))
	case strings.HasPrefix(string(code), "INVALID_"):
		writeError(w, http.StatusBadRequest, string(code), errors.UserMessage(err))
	default:
		h.logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, string(errors.ErrCodeInternal), "internal error")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLogger logs one debug line per request.
func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.status,
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}
