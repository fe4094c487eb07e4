package web

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the REST surface and the websocket upgrade. The
// socket handler authenticates itself (tokens may arrive as a query
// parameter), so it sits outside the bearer middleware.
func NewRouter(logger *slog.Logger, handler *Handler, sessions SessionResolver, socket http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware(logger))

	r.Get("/healthz", handler.Health)
	r.Get("/socket/{schoolID}", socket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthenticatedMiddleware(sessions))

		r.Route("/schools/{schoolID}", func(r chi.Router) {
			r.Get("/messages", handler.ListGroupMessages)
			r.Get("/groups/info", handler.GroupInfo)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Post("/", handler.CreateGroup)
			r.Patch("/{groupID}", handler.RenameGroup)
			r.Delete("/{groupID}", handler.DeactivateGroup)
			r.Put("/{groupID}/members/{userID}", handler.AddMember)
			r.Delete("/{groupID}/members/{userID}", handler.RemoveMember)
			r.Post("/{groupID}/members/{userID}/promote", handler.PromoteMember)
			r.Post("/{groupID}/members/{userID}/demote", handler.DemoteMember)
		})

		r.Post("/uploads", handler.IssueUpload)
		r.Put("/uploads/{permissionID}", handler.UploadContent)
		r.Get("/attachments/{attachmentID}", handler.DownloadAttachment)
	})

	return r
}
