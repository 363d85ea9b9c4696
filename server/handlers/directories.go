package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/auth"
	"github.com/ebogdum/fsbridge/core"
	"github.com/ebogdum/fsbridge/metadata"
)

// V1ListDirectory handles GET /v1/directories/* requests.
func V1ListDirectory(adapter *core.Adapter, authorizer auth.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _, ok := pathAndAuthorize(w, r, authorizer, logger, auth.ReadPerm)
		if !ok {
			return
		}
		sendListing(w, r, adapter, logger, p)
	}
}

// V1MakeDirectory handles POST /v1/directories/*?permission=&create_parent=
// requests.
func V1MakeDirectory(adapter *core.Adapter, authorizer auth.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _, ok := pathAndAuthorize(w, r, authorizer, logger, auth.WritePerm)
		if !ok {
			return
		}

		permission, err := queryPermission(r, metadata.DefaultDirPermission)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}
		createParent, err := queryBool(r, "create_parent", true)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}

		if err := adapter.Mkdir(r.Context(), p, permission, createParent); err != nil {
			SendErrorResponse(w, logger, err)
			return
		}

		status, err := adapter.GetFileStatus(r.Context(), p)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}
		SendJSONResponse(w, logger, http.StatusCreated, newFileInfo(status))
	}
}
