package handlers

import (
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/auth"
	"github.com/ebogdum/fsbridge/core"
)

// RenameRequest names the source and destination of a rename.
type RenameRequest struct {
	Source      string `json:"src"`
	Destination string `json:"dst"`
}

// V1Rename handles POST /v1/rename requests. The caller needs delete rights
// on the source and write rights on the destination.
func V1Rename(adapter *core.Adapter, authorizer auth.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			SendErrorResponse(w, logger, badRequest("invalid rename request: %v", err))
			return
		}
		if req.Source == "" || req.Destination == "" {
			SendErrorResponse(w, logger, badRequest("src and dst are required"))
			return
		}

		src, err := ParseFilePath(req.Source)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}
		dst, err := ParseFilePath(req.Destination)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}

		if _, ok := authorize(w, r, authorizer, logger, src, auth.DeletePerm); !ok {
			return
		}
		if _, ok := authorize(w, r, authorizer, logger, dst, auth.WritePerm); !ok {
			return
		}

		if err := adapter.Rename(r.Context(), src, dst); err != nil {
			SendErrorResponse(w, logger, err)
			return
		}

		status, err := adapter.GetFileStatus(r.Context(), dst)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}
		SendJSONResponse(w, logger, http.StatusOK, newFileInfo(status))
	}
}
