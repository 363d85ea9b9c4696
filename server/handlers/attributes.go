package handlers

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/auth"
	"github.com/ebogdum/fsbridge/core"
	"github.com/ebogdum/fsbridge/metadata"
)

// AttributesRequest lists the attributes to change. Absent fields are left
// alone.
type AttributesRequest struct {
	Permission  *string    `json:"permission,omitempty"`
	Owner       *string    `json:"owner,omitempty"`
	Group       *string    `json:"group,omitempty"`
	MTime       *time.Time `json:"mtime,omitempty"`
	ATime       *time.Time `json:"atime,omitempty"`
	Replication *int16     `json:"replication,omitempty"`
}

// AttributesResponse is the file status after the change.
type AttributesResponse struct {
	FileInfo
	ReplicationApplied *bool `json:"replication_applied,omitempty"`
}

// V1PatchAttributes handles PATCH /v1/attributes/* requests. Changing owner
// or group is reserved to the super user.
func V1PatchAttributes(adapter *core.Adapter, authorizer auth.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, userID, ok := pathAndAuthorize(w, r, authorizer, logger, auth.WritePerm)
		if !ok {
			return
		}

		var req AttributesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			SendErrorResponse(w, logger, badRequest("invalid attributes request: %v", err))
			return
		}

		if (req.Owner != nil || req.Group != nil) && userID != auth.SuperUser {
			SendErrorResponse(w, logger, auth.ErrPermissionDenied)
			return
		}
		if req.Replication != nil && *req.Replication < 1 {
			SendErrorResponse(w, logger, badRequest("invalid replication %d", *req.Replication))
			return
		}

		ctx := r.Context()
		if req.Permission != nil {
			permission, err := metadata.ParsePermission(*req.Permission)
			if err != nil {
				SendErrorResponse(w, logger, badRequest("%v", err))
				return
			}
			if err := adapter.SetPermission(ctx, p, permission); err != nil {
				SendErrorResponse(w, logger, err)
				return
			}
		}

		if req.Owner != nil || req.Group != nil {
			var owner, group string
			if req.Owner != nil {
				owner = *req.Owner
			}
			if req.Group != nil {
				group = *req.Group
			}
			if err := adapter.SetOwner(ctx, p, owner, group); err != nil {
				SendErrorResponse(w, logger, err)
				return
			}
		}

		if req.MTime != nil || req.ATime != nil {
			var mtime, atime time.Time
			if req.MTime != nil {
				mtime = *req.MTime
			}
			if req.ATime != nil {
				atime = *req.ATime
			}
			if err := adapter.SetTimes(ctx, p, mtime, atime); err != nil {
				SendErrorResponse(w, logger, err)
				return
			}
		}

		var response AttributesResponse
		if req.Replication != nil {
			applied, err := adapter.SetReplication(ctx, p, *req.Replication)
			if err != nil {
				SendErrorResponse(w, logger, err)
				return
			}
			response.ReplicationApplied = &applied
		}

		status, err := adapter.GetFileStatus(ctx, p)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}
		response.FileInfo = newFileInfo(status)
		SendJSONResponse(w, logger, http.StatusOK, response)
	}
}
