// Package httpkit holds small HTTP response/request helpers shared by the
// analyzer and orchestrator routers, following the teacher's
// infrastructure/httputil package.
package httpkit

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/LucasBiason/threat-modeling-ai/pkg/serviceerr"
)

// ErrorResponse is the JSON envelope written for every non-2xx response.
type ErrorResponse struct {
	Code    serviceerr.Code        `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes v as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as a JSON ErrorResponse, resolving it to a
// ServiceError (defaulting to 500) if it isn't already one.
func WriteError(w http.ResponseWriter, err error) {
	svcErr := serviceerr.As(err)
	WriteJSON(w, svcErr.HTTPStatus, ErrorResponse{
		Code:    svcErr.Code,
		Message: svcErr.Message,
		Details: svcErr.Details,
	})
}

// DecodeJSON decodes the request body into v, returning a ServiceError on
// malformed input instead of writing the response itself.
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return serviceerr.PayloadTooLarge(maxErr.Limit)
		}
		return serviceerr.InvalidInput("invalid request body")
	}
	return nil
}

// QueryInt extracts an integer query parameter, defaulting when absent or
// unparsable.
func QueryInt(r *http.Request, key string, def int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

// QueryString extracts a string query parameter, defaulting when absent.
func QueryString(r *http.Request, key, def string) string {
	if val := r.URL.Query().Get(key); val != "" {
		return val
	}
	return def
}

// Pagination holds the offset/limit pair clamped to sane bounds.
type Pagination struct {
	Offset int
	Limit  int
}

// PaginationParams reads "offset"/"limit" query params, clamping limit to
// [1, maxLimit] and defaulting it to defaultLimit when absent.
func PaginationParams(r *http.Request, defaultLimit, maxLimit int) Pagination {
	limit := QueryInt(r, "limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := QueryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return Pagination{Offset: offset, Limit: limit}
}
