package handlers

import (
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/auth"
	"github.com/ebogdum/fsbridge/core"
	"github.com/ebogdum/fsbridge/metadata"
)

const defaultBufferSize = 64 << 10

// DirectoryListingResponse represents the response for directory listing operations
type DirectoryListingResponse struct {
	Path  string     `json:"path"`
	Type  string     `json:"type"`
	Count int        `json:"count"`
	Items []FileInfo `json:"items"`
}

// V1GetFile handles GET /v1/files/* requests. Files are streamed as
// octet-stream; directories are answered with their listing.
func V1GetFile(adapter *core.Adapter, authorizer auth.Authorizer, logger *zap.Logger) http.HandlerFunc {
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
		if status.IsDir {
			sendListing(w, r, adapter, logger, p)
			return
		}

		reader, err := adapter.Open(r.Context(), p, defaultBufferSize)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}
		defer reader.Close()

		setStatusHeaders(w, status)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.FormatInt(status.Length, 10))
		w.WriteHeader(http.StatusOK)

		if _, err := io.Copy(w, reader); err != nil {
			// Headers are gone; all that is left is to log
			logger.Error("Failed to stream file content", zap.Error(err))
		}
	}
}

// V1HeadFile handles HEAD /v1/files/* requests.
func V1HeadFile(adapter *core.Adapter, authorizer auth.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _, ok := pathAndAuthorize(w, r, authorizer, logger, auth.ReadPerm)
		if !ok {
			return
		}

		status, err := adapter.GetFileStatus(r.Context(), p)
		if err != nil {
			code, _ := statusFor(err)
			w.WriteHeader(code)
			return
		}

		setStatusHeaders(w, status)
		if !status.IsDir {
			w.Header().Set("Content-Length", strconv.FormatInt(status.Length, 10))
		}
		w.WriteHeader(http.StatusOK)
	}
}

// V1PutFile handles PUT /v1/files/* requests. The body replaces the file
// content. Query parameters: permission (octal), create_parent (default
// true), replication, block_size.
func V1PutFile(adapter *core.Adapter, authorizer auth.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, userID, ok := pathAndAuthorize(w, r, authorizer, logger, auth.WritePerm)
		if !ok {
			return
		}
		if p == "/" {
			SendErrorResponse(w, logger, metadata.ErrIsDirectory)
			return
		}

		permission, err := queryPermission(r, metadata.DefaultFilePermission)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}
		createParent, err := queryBool(r, "create_parent", true)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}
		replication, err := queryReplication(r)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}
		blockSize, err := queryInt64(r, "block_size", 0)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}

		statusCode := http.StatusCreated
		if _, err := adapter.GetFileStatus(r.Context(), p); err == nil {
			statusCode = http.StatusOK
		}

		writer, err := adapter.Create(r.Context(), p, metadata.CreateFlagCreate|metadata.CreateFlagOverwrite,
			permission, defaultBufferSize, replication, blockSize, nil, nil, createParent)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}

		written, err := io.Copy(writer, r.Body)
		if err != nil {
			writer.Close()
			SendErrorResponse(w, logger, err)
			return
		}
		if err := writer.Close(); err != nil {
			SendErrorResponse(w, logger, err)
			return
		}

		status, err := adapter.GetFileStatus(r.Context(), p)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}

		logger.Debug("File written",
			zap.String("user_id", userID),
			zap.Int64("size", written),
			zap.Int("status_code", statusCode))
		SendJSONResponse(w, logger, statusCode, newFileInfo(status))
	}
}

// DeleteResponse reports the outcome of a delete.
type DeleteResponse struct {
	Path    string `json:"path"`
	Deleted bool   `json:"deleted"`
}

// V1DeleteFile handles DELETE /v1/files/*?recursive= requests. Deleting a
// missing path is not an error; the response reports deleted=false.
func V1DeleteFile(adapter *core.Adapter, authorizer auth.Authorizer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _, ok := pathAndAuthorize(w, r, authorizer, logger, auth.DeletePerm)
		if !ok {
			return
		}
		recursive, err := queryBool(r, "recursive", false)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}

		deleted, err := adapter.Delete(r.Context(), p, recursive)
		if err != nil {
			SendErrorResponse(w, logger, err)
			return
		}
		SendJSONResponse(w, logger, http.StatusOK, DeleteResponse{Path: p, Deleted: deleted})
	}
}

func sendListing(w http.ResponseWriter, r *http.Request, adapter *core.Adapter, logger *zap.Logger, p string) {
	entries, err := adapter.ListStatus(r.Context(), p)
	if err != nil {
		SendErrorResponse(w, logger, err)
		return
	}

	items := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		items = append(items, newFileInfo(entry))
	}
	SendJSONResponse(w, logger, http.StatusOK, DirectoryListingResponse{
		Path:  p,
		Type:  "directory",
		Count: len(items),
		Items: items,
	})
}
