package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps storage error kinds onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrAlreadyExists),
		errors.Is(err, storage.ErrAlreadyPromoted),
		errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, storage.ErrImmutableRecord), errors.Is(err, storage.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Sugar().Errorw("request failed",
			"request_id", w.Header().Get(RequestIDHeader),
			"path", r.URL.Path,
			"error", err,
		)
		writeMessage(w, status, "internal error")
		return
	}
	writeMessage(w, status, err.Error())
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

func pageFrom(r *http.Request) storage.Page {
	q := r.URL.Query()
	var p storage.Page
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		p.Limit = l
	}
	if o, err := strconv.Atoi(q.Get("offset")); err == nil && o >= 0 {
		p.Offset = o
	}
	return p
}

// boolParam parses an optional boolean query parameter
func boolParam(r *http.Request, name string) (*bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, false
	}
	return &v, true
}
