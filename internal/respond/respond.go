// Package respond writes the JSON envelope every API response uses.
package respond

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/logging"
)

type success struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

type failure struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// OK writes a success envelope carrying data.
func OK(ctx context.Context, w http.ResponseWriter, status int, data any, message string) {
	write(ctx, w, status, success{StatusCode: status, Data: data, Message: message, Success: true})
}

// Fail writes a failure envelope with an explicit status.
func Fail(ctx context.Context, w http.ResponseWriter, status int, message string) {
	write(ctx, w, status, failure{StatusCode: status, Message: message, Success: false})
}

// Error translates err into a failure envelope. Unclassified errors become a
// generic 500 and their text stays in the logs.
func Error(ctx context.Context, w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "kind", kind.String(), "error", err)
	default:
		logger.Warn("request rejected", "status", status, "kind", kind.String(), "error", err)
	}

	write(ctx, w, status, failure{StatusCode: status, Message: apperr.Message(err), Success: false})
}

func write(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
	}
}
