package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"lv-goldex/internal/apperr"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Shortage string `json:"shortage,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return errors.New("invalid json: " + err.Error())
	}
	return nil
}

// WriteError maps business errors to their HTTP status and hides
// infrastructure failures behind a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(code)
	if code == "" {
		slog.Default().Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		WriteJSON(w, status, ErrorResponse{Error: "internal error"})
		return
	}
	resp := ErrorResponse{Error: err.Error(), Code: string(code)}
	if shortage, ok := apperr.ShortageOf(err); ok {
		resp.Shortage = shortage.String()
	}
	WriteJSON(w, status, resp)
}

// Pagination reads limit/offset query params with a default and upper bound.
func Pagination(r *http.Request, def, max int) (int, int) {
	limit := def
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > max {
		limit = max
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			offset = v
		}
	}
	return limit, offset
}
