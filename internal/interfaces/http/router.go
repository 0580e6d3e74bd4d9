package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mirono/webtrees/internal/domain/user"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/prometheus"
	"github.com/mirono/webtrees/internal/interfaces/http/handlers"
	"github.com/mirono/webtrees/internal/interfaces/http/middleware"
)

// RouterConfig aggregates all handler and middleware dependencies required
// to construct the complete HTTP route tree.
type RouterConfig struct {
	// Handlers
	AuthHandler    *handlers.AuthHandler
	UsersHandler   *handlers.UsersHandler
	TreesHandler   *handlers.TreesHandler
	RecordsHandler *handlers.RecordsHandler
	GedcomHandler  *handlers.GedcomHandler
	SearchHandler  *handlers.SearchHandler
	KinshipHandler *handlers.KinshipHandler
	ReportsHandler *handlers.ReportsHandler
	HealthHandler  *handlers.HealthHandler

	// Middleware
	AuthMiddleware      *middleware.AuthMiddleware
	CORSMiddleware      *middleware.CORSMiddleware
	LoggingMiddleware   *middleware.LoggingMiddleware
	MetricsMiddleware   *middleware.MetricsMiddleware
	RateLimitMiddleware *middleware.RateLimitMiddleware

	// Infrastructure
	Logger           logging.Logger
	MetricsCollector prometheus.MetricsCollector
}

// NewRouter constructs the complete HTTP route tree from the given
// configuration. It wires global middleware, the public endpoints (health,
// metrics, login and the password-reset flow) and the authenticated API v1
// resource groups into a single http.Handler.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// --- Global middleware (applied to every request) ---
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if cfg.CORSMiddleware != nil {
		r.Use(cfg.CORSMiddleware.Handler)
	}
	if cfg.LoggingMiddleware != nil {
		r.Use(cfg.LoggingMiddleware.Handler)
	}
	if cfg.MetricsMiddleware != nil {
		r.Use(cfg.MetricsMiddleware.Handler)
	}
	if cfg.RateLimitMiddleware != nil {
		r.Use(cfg.RateLimitMiddleware.Handler)
	}

	// --- Public health endpoints (no auth) ---
	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}

	// Metrics stays unauthenticated; operators fence it off at the network
	// layer.
	if cfg.MetricsCollector != nil {
		r.Handle("/metrics", cfg.MetricsCollector.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		// Login and the password-reset flow must work without a session.
		if cfg.AuthHandler != nil {
			api.Post("/auth/login", cfg.AuthHandler.Login)
			api.Post("/auth/password-reset/request", cfg.AuthHandler.RequestPasswordReset)
			api.Get("/auth/password-reset/validate", cfg.AuthHandler.ValidateResetToken)
			api.Post("/auth/password-reset/perform", cfg.AuthHandler.PerformPasswordReset)
		}

		api.Group(func(priv chi.Router) {
			if cfg.AuthMiddleware != nil {
				priv.Use(cfg.AuthMiddleware.Handler)
			}

			if cfg.AuthHandler != nil {
				priv.Post("/auth/logout", cfg.AuthHandler.Logout)
				priv.Get("/auth/session", cfg.AuthHandler.Session)
			}

			registerUserRoutes(priv, cfg.UsersHandler)
			registerTreeRoutes(priv, cfg.TreesHandler, cfg.GedcomHandler, cfg.RecordsHandler, cfg.ReportsHandler)
			registerSearchRoutes(priv, cfg.SearchHandler)
			registerKinshipRoutes(priv, cfg.KinshipHandler)
			registerReportRoutes(priv, cfg.ReportsHandler)
		})
	})

	return r
}

// registerUserRoutes mounts account administration under /users. Reading and
// editing your own account is allowed; the service enforces admin-or-self,
// so only the purely administrative operations carry a role gate here.
func registerUserRoutes(r chi.Router, h *handlers.UsersHandler) {
	if h == nil {
		return
	}
	r.Route("/users", func(ur chi.Router) {
		ur.With(middleware.RequireAdmin()).Post("/", h.Register)
		ur.With(middleware.RequireAdmin()).Get("/", h.List)

		ur.Route("/{userID}", func(item chi.Router) {
			item.Get("/", h.Get)
			item.Put("/", h.Update)
			item.With(middleware.RequireAdmin()).Delete("/", h.Delete)
			item.Put("/password", h.SetPassword)
			item.With(middleware.RequireAdmin()).Post("/verify-email", h.VerifyEmail)
			item.Get("/preferences/{name}", h.Preference)
			item.Put("/preferences/{name}", h.SetPreference)
		})
	})
}

// registerTreeRoutes mounts tree lifecycle, records, GEDCOM transfer and
// per-tree report generation under /trees, plus the site-wide settings.
func registerTreeRoutes(r chi.Router, trees *handlers.TreesHandler, ged *handlers.GedcomHandler, records *handlers.RecordsHandler, reports *handlers.ReportsHandler) {
	if trees == nil {
		return
	}
	manage := middleware.RequireRole(user.RoleAdmin, user.RoleManager)

	r.Route("/trees", func(tr chi.Router) {
		tr.Get("/", trees.List)
		tr.With(middleware.RequireAdmin()).Post("/", trees.Create)

		tr.Route("/{treeID}", func(item chi.Router) {
			item.Get("/", trees.Get)
			item.With(manage).Put("/", trees.Rename)
			item.With(middleware.RequireAdmin()).Delete("/", trees.Delete)
			item.Get("/stats", trees.Stats)
			item.Get("/preferences/{name}", trees.Preference)
			item.With(manage).Put("/preferences/{name}", trees.SetPreference)

			if ged != nil {
				item.With(manage).Post("/gedcom", ged.Import)
				item.Get("/gedcom", ged.Download)
				item.With(manage).Post("/export", ged.Export)
			}

			if records != nil {
				item.Route("/records", func(rr chi.Router) {
					rr.Get("/", records.List)
					rr.With(manage).Post("/", records.Create)
					rr.Route("/{xref}", func(rec chi.Router) {
						rec.Get("/", records.Get)
						rec.With(manage).Put("/", records.Update)
						rec.With(manage).Delete("/", records.Delete)
						rec.Get("/changes", records.Changes)
						rec.With(manage).Post("/merge", records.Merge)
					})
				})
				item.With(manage).Post("/media", records.UploadMedia)
				item.Get("/media/{xref}/content", records.MediaContent)
			}

			if reports != nil {
				item.Post("/reports", reports.Generate)
			}
		})
	})

	// Site-wide settings: today that is the map provider.
	r.Get("/site/map-provider", trees.MapProvider)
	r.With(middleware.RequireAdmin()).Put("/site/map-provider", trees.SetMapProvider)
}

// registerSearchRoutes mounts full-text search under /trees/{treeID}/search.
func registerSearchRoutes(r chi.Router, h *handlers.SearchHandler) {
	if h == nil {
		return
	}
	r.Route("/trees/{treeID}/search", func(sr chi.Router) {
		sr.Get("/individuals", h.Individuals)
		sr.Get("/sources", h.Sources)
		sr.Get("/surnames", h.Surnames)
		sr.With(middleware.RequireRole(user.RoleAdmin, user.RoleManager)).Post("/reindex", h.Reindex)
	})
}

// registerKinshipRoutes mounts relationship queries under /trees/{treeID}/kinship.
func registerKinshipRoutes(r chi.Router, h *handlers.KinshipHandler) {
	if h == nil {
		return
	}
	r.Route("/trees/{treeID}/kinship", func(kr chi.Router) {
		kr.Get("/path", h.Path)
		kr.Get("/ancestors/{xref}", h.Ancestors)
		kr.Get("/descendants/{xref}", h.Descendants)
		kr.Get("/common-ancestors", h.CommonAncestors)
		kr.Get("/counts", h.Counts)
		kr.With(middleware.RequireRole(user.RoleAdmin, user.RoleManager)).Post("/sync", h.Sync)
	})
}

// registerReportRoutes mounts handle-based report polling and download under
// /reports. Generation lives under the tree the report runs against.
func registerReportRoutes(r chi.Router, h *handlers.ReportsHandler) {
	if h == nil {
		return
	}
	r.Route("/reports/{handle}", func(rr chi.Router) {
		rr.Get("/", h.Status)
		rr.Get("/download", h.Download)
	})
}
