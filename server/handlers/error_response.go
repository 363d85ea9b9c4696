// Package handlers implements the HTTP handlers of the fsbridge v1 API. Every
// handler forwards to the core adapter after authorizing the caller.
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/auth"
	"github.com/ebogdum/fsbridge/locks"
	"github.com/ebogdum/fsbridge/metadata"
	raftstore "github.com/ebogdum/fsbridge/metadata/raft"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errBadRequest marks request errors detected by the handlers themselves.
var errBadRequest = errors.New("bad request")

var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{errBadRequest, http.StatusBadRequest, "BAD_REQUEST"},
	{auth.ErrAuthenticationFailed, http.StatusUnauthorized, "AUTHENTICATION_FAILED"},
	{auth.ErrPermissionDenied, http.StatusForbidden, "PERMISSION_DENIED"},
	{metadata.ErrInvalidPath, http.StatusBadRequest, "INVALID_PATH"},
	{metadata.ErrIsDirectory, http.StatusBadRequest, "IS_DIRECTORY"},
	{metadata.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{metadata.ErrParentNotFound, http.StatusNotFound, "PARENT_NOT_FOUND"},
	{metadata.ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS"},
	{metadata.ErrNotEmpty, http.StatusConflict, "DIRECTORY_NOT_EMPTY"},
	{metadata.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{locks.ErrLockHeld, http.StatusLocked, "LOCKED"},
	{metadata.ErrNotSupported, http.StatusNotImplemented, "NOT_SUPPORTED"},
	{metadata.ErrBackendDisabled, http.StatusServiceUnavailable, "BACKEND_DISABLED"},
	{raftstore.ErrNotLeader, http.StatusServiceUnavailable, "NOT_LEADER"},
}

// statusFor maps an error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	for _, s := range errorStatuses {
		if errors.Is(err, s.err) {
			return s.status, s.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// SendErrorResponse sends a standardized JSON error response. The status is
// derived from the sentinel err wraps.
func SendErrorResponse(w http.ResponseWriter, logger *zap.Logger, err error) {
	statusCode, errorCode := statusFor(err)

	message := err.Error()
	if statusCode == http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
		message = "internal error"
	} else {
		logger.Debug("Error response sent",
			zap.String("error_code", errorCode),
			zap.Int("status_code", statusCode),
			zap.Error(err))
	}

	SendJSONResponse(w, logger, statusCode, ErrorResponse{Code: errorCode, Message: message})
}

// SendJSONResponse sends a JSON response with any data structure
func SendJSONResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{errBadRequest}, args...)...)
}
