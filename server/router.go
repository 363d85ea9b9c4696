// Package server assembles the fsbridge HTTP API.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/auth"
	"github.com/ebogdum/fsbridge/config"
	"github.com/ebogdum/fsbridge/core"
	"github.com/ebogdum/fsbridge/core/log"
	"github.com/ebogdum/fsbridge/invocation"
	"github.com/ebogdum/fsbridge/server/handlers"
	fsmiddleware "github.com/ebogdum/fsbridge/server/middleware"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	adapter *core.Adapter,
	authenticator auth.Authenticator,
	authorizer auth.Authorizer,
	serverConfig *config.ServerConfig,
	redaction log.RedactionMode,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(invocation.Middleware(invocation.Header))
	r.Use(middleware.RealIP)
	r.Use(fsmiddleware.V1AccessLog(redaction, logger))
	r.Use(middleware.Recoverer)
	if serverConfig.RequestTimeout > 0 {
		r.Use(middleware.Timeout(serverConfig.RequestTimeout))
	}
	r.Use(fsmiddleware.V1SecurityHeaders())
	if serverConfig.RateLimit > 0 {
		limiter := fsmiddleware.NewClientRateLimiter(serverConfig.RateLimit, serverConfig.RateBurst)
		r.Use(fsmiddleware.V1RateLimitMiddleware(limiter, logger))
	}

	// Health check endpoint (no auth required)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		handlers.SendJSONResponse(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(fsmiddleware.V1AuthMiddleware(authenticator, logger))

		r.Route("/files", func(r chi.Router) {
			r.Get("/*", handlers.V1GetFile(adapter, authorizer, logger))
			r.Head("/*", handlers.V1HeadFile(adapter, authorizer, logger))
			r.Put("/*", handlers.V1PutFile(adapter, authorizer, logger))
			r.Delete("/*", handlers.V1DeleteFile(adapter, authorizer, logger))
		})

		r.Route("/directories", func(r chi.Router) {
			r.Get("/*", handlers.V1ListDirectory(adapter, authorizer, logger))
			r.Post("/*", handlers.V1MakeDirectory(adapter, authorizer, logger))
		})

		r.Get("/status/*", handlers.V1GetStatus(adapter, authorizer, logger))
		r.Get("/checksum/*", handlers.V1GetChecksum(adapter, authorizer, logger))
		r.Get("/blocks/*", handlers.V1GetBlockLocations(adapter, authorizer, logger))
		r.Patch("/attributes/*", handlers.V1PatchAttributes(adapter, authorizer, logger))
		r.Post("/rename", handlers.V1Rename(adapter, authorizer, logger))

		r.Get("/fs", handlers.V1GetFs(adapter, logger))
		r.Put("/fs/verify_checksum", handlers.V1SetVerifyChecksum(adapter, logger))
	})

	logger.Info("HTTP router configured successfully")

	return r
}
