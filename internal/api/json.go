package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/notesapp/internal/apperr"
	"github.com/starford/notesapp/internal/checksum"
	"github.com/starford/notesapp/internal/notes"
	"github.com/starford/notesapp/internal/workspace"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// writeJSONTagged writes v with an ETag and answers 304 when the client
// already holds the same representation.
func writeJSONTagged(w http.ResponseWriter, r *http.Request, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	etag := checksum.ETag(body)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if checksum.Matches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

type errResponse struct {
	Error  string            `json:"error"`
	Notice *workspace.Notice `json:"notice,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, apperr.ErrSuperseded),
		errors.Is(err, apperr.ErrAlreadyExists),
		errors.Is(err, notes.ErrNoDraft),
		errors.Is(err, notes.ErrNothingToSubmit):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrRemote):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrRemote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, op workspace.Op, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", slog.String("op", string(op)), slog.String("error", err.Error()))
	}
	n := workspace.NoticeFor(op, err)
	writeJSON(w, status, errResponse{Error: err.Error(), Notice: &n})
}

func noticePtr(n workspace.Notice) *workspace.Notice {
	if n == (workspace.Notice{}) {
		return nil
	}
	return &n
}
