package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/vbonduro/inventory/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps a service error onto the HTTP status it is reported with.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingName), errors.Is(err, domain.ErrNoPhotoSupplied):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNoPhoto),
		errors.Is(err, domain.ErrPhotoFileMissing):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError reports err to the client. Internal failures are logged
// and replaced with a generic message.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// parseID reads a positive record id from the {id} path segment. Anything else
// addresses no record.
func parseID(r *http.Request) (int64, error) {
	return parsePositiveID(r.PathValue("id"))
}

func parsePositiveID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrNotFound
	}
	return id, nil
}

// parseFlag interprets HTML checkbox and query-string booleans.
func parseFlag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}

// streamPhoto copies an open photo to the client and closes it.
func (s *Server) streamPhoto(w http.ResponseWriter, rc io.ReadCloser, mimeType string) {
	defer closeWithLog(rc, "photo", s.logger)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=60")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("photo stream interrupted", "error", err)
	}
}

func closeWithLog(c io.Closer, what string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn("close failed", "what", what, "error", err)
	}
}
