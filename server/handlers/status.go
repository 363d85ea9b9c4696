package handlers

import (
	"encoding/hex"
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/auth"
	"github.com/ebogdum/fsbridge/core"
	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/server/middleware"
)

// V1GetStatus handles GET /v1/status/* requests.
func V1GetStatus(adapter *core.Adapter, authorizer auth.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _, ok := pathAndAuthorize(w, r, authorizer, logger, auth.ReadPerm)
		if !ok {
			return
		}

		status, err := adapter.GetFileStatus(r.Context(), p)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}
		SendJSONResponse(w, logger, http.StatusOK, newFileInfo(status))
	}
}

// ChecksumResponse carries a file checksum in hex.
type ChecksumResponse struct {
	Path      string `json:"path"`
	Algorithm string `json:"algorithm"`
	Length    int    `json:"length"`
	Checksum  string `json:"checksum"`
}

// V1GetChecksum handles GET /v1/checksum/* requests. Paths without a
// checksum, such as directories, are answered with 204.
func V1GetChecksum(adapter *core.Adapter, authorizer auth.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _, ok := pathAndAuthorize(w, r, authorizer, logger, auth.ReadPerm)
		if !ok {
			return
		}

		checksum, err := adapter.GetFileChecksum(r.Context(), p)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}
		if checksum == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		SendJSONResponse(w, logger, http.StatusOK, ChecksumResponse{
			Path:      p,
			Algorithm: checksum.Algorithm,
			Length:    checksum.Length(),
			Checksum:  hex.EncodeToString(checksum.Bytes),
		})
	}
}

// BlockLocationsResponse lists where the byte ranges of a file live.
type BlockLocationsResponse struct {
	Path      string                   `json:"path"`
	Start     int64                    `json:"start"`
	Length    int64                    `json:"length"`
	Locations []metadata.BlockLocation `json:"locations"`
}

// V1GetBlockLocations handles GET /v1/blocks/*?start=&len= requests. len
// defaults to the rest of the file.
func V1GetBlockLocations(adapter *core.Adapter, authorizer auth.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _, ok := pathAndAuthorize(w, r, authorizer, logger, auth.ReadPerm)
		if !ok {
			return
		}

		start, err := queryInt64(r, "start", 0)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}
		length, err := queryInt64(r, "len", -1)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}
		if length < 0 {
			status, err := adapter.GetFileStatus(r.Context(), p)
			if err != nil {
				SendErrorResponse(w, logger, err)
				return
			}
			length = status.Length - start
			if length < 0 {
				length = 0
			}
		}

		locations, err := adapter.GetFileBlockLocations(r.Context(), p, start, length)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}
		if locations == nil {
			locations = []metadata.BlockLocation{}
		}
		SendJSONResponse(w, logger, http.StatusOK, BlockLocationsResponse{
			Path:      p,
			Start:     start,
			Length:    length,
			Locations: locations,
		})
	}
}

// FsResponse describes the file system served by the adapter.
type FsResponse struct {
	URI         string                   `json:"uri"`
	DefaultPort int                      `json:"default_port"`
	Lenient     bool                     `json:"lenient_parent_creation"`
	Status      *metadata.FsStatus       `json:"status"`
	Defaults    *metadata.ServerDefaults `json:"defaults"`
}

// V1GetFs handles GET /v1/fs requests.
func V1GetFs(adapter *core.Adapter, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := adapter.GetFsStatus(r.Context())
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}
		defaults, err := adapter.GetServerDefaults(r.Context())
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}

		response := FsResponse{
			DefaultPort: adapter.GetURIDefaultPort(r.Context()),
			Lenient:     adapter.Policy().LenientParentCreation,
			Status:      status,
			Defaults:    defaults,
		}
		if uri := adapter.URI(); uri != nil {
			response.URI = uri.String()
		}
		SendJSONResponse(w, logger, http.StatusOK, response)
	}
}

// VerifyChecksumRequest toggles read-side checksum verification.
type VerifyChecksumRequest struct {
	Verify *bool `json:"verify"`
}

// V1SetVerifyChecksum handles PUT /v1/fs/verify_checksum requests. Only the
// super user may change file system wide settings.
func V1SetVerifyChecksum(adapter *core.Adapter, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if userID, _ := middleware.GetUserID(r.Context()); userID != auth.SuperUser {
			SendErrorResponse(w, logger, auth.ErrPermissionDenied)
			return
		}

		var req VerifyChecksumRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Verify == nil {
			SendErrorResponse(w, logger, badRequest("body must be {\"verify\": bool}"))
			return
		}

		adapter.SetVerifyChecksum(r.Context(), *req.Verify)
		w.WriteHeader(http.StatusNoContent)
	}
}
