package main

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	appconfig "inkwell/config"
	"inkwell/handlers"
	"inkwell/metrics"
	"inkwell/middleware"
)

// setupRoutes configures all API routes and middleware for the application
func setupRoutes(app *fiber.App, db *pgxpool.Pool, rdb *redis.Client, config *appconfig.Config) {
	// Security middleware
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge: func() int {
			if config.Environment == "production" {
				return 31536000
			}
			return 0
		}(),
		HSTSPreloadEnabled: config.Environment == "production",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	// CSRF protection for cookie-bearing clients; bearer-token API calls
	// and safe methods pass through
	app.Use(csrf.New(csrf.Config{
		KeyLookup:      "header:X-CSRF-Token",
		CookieName:     "csrf_token",
		CookieSameSite: "Strict",
		CookieSecure:   true,
		CookieHTTPOnly: true,
		Expiration:     time.Hour,
		KeyGenerator:   uuid.NewString,
		ContextKey:     "csrf",
		Next: func(c *fiber.Ctx) bool {
			method := c.Method()
			path := c.Path()
			return method == fiber.MethodGet || method == fiber.MethodHead || method == fiber.MethodOptions ||
				strings.HasPrefix(path, "/api/v1/health") ||
				strings.HasPrefix(path, "/api/v1/auth/") ||
				strings.HasPrefix(c.Get("Authorization"), "Bearer ")
		},
	}))

	// CORS configuration
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(config.AllowedOrigins, ","),
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-CSRF-Token",
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders:    "X-CSRF-Token",
	}))

	if appconfig.GetEnvAsBool("ENABLE_METRICS", true) {
		app.Use(metrics.PrometheusMiddleware())
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	// Initialize rate limiters
	rateLimits := middleware.NewRateLimitConfig(rdb)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(db, rdb, config)
	notesHandler := handlers.NewNotesHandler(db)
	versionsHandler := handlers.NewVersionsHandler(db)
	sharesHandler := handlers.NewSharesHandler(db)
	tagsHandler := handlers.NewTagsHandler(db)
	searchHandler := handlers.NewSearchHandler(db)
	attachmentsHandler := handlers.NewAttachmentsHandler(db, config.MaxAttachmentBytes)
	adminHandler := handlers.NewAdminHandler(db)

	api := app.Group("/api/v1")

	// Authentication routes (public), strict IP rate limiting
	api.Post("/auth/register", rateLimits.RegisterLimiter, authHandler.Register)
	api.Post("/auth/login", rateLimits.AuthLimiter, authHandler.Login)
	api.Post("/auth/token", rateLimits.AuthLimiter, authHandler.CreateToken)
	api.Post("/auth/refresh", rateLimits.AuthLimiter, authHandler.RefreshToken)

	// Protected routes (require a session JWT or API token)
	protected := api.Group("", middleware.AuthMiddleware(config.JWTSecret, rdb, db))

	protected.Post("/auth/logout", rateLimits.LightweightLimiter, authHandler.Logout)

	// Notes collection routes precede :id routes so fixed segments are
	// not captured as note ids
	protected.Get("/notes/search", rateLimits.SearchLimiter, searchHandler.SearchNotes)
	protected.Get("/notes/trash", rateLimits.StandardCRUDLimiter, notesHandler.ListTrash)
	protected.Post("/notes/bulk_export", rateLimits.ExportLimiter, notesHandler.BulkExport)
	protected.Get("/notes", rateLimits.StandardCRUDLimiter, notesHandler.ListNotes)
	protected.Post("/notes", rateLimits.StandardCRUDLimiter, notesHandler.CreateNote)

	protected.Get("/notes/:id", rateLimits.StandardCRUDLimiter, notesHandler.GetNote)
	protected.Put("/notes/:id", rateLimits.StandardCRUDLimiter, notesHandler.UpdateNote)
	protected.Patch("/notes/:id", rateLimits.StandardCRUDLimiter, notesHandler.UpdateNote)
	protected.Delete("/notes/:id", rateLimits.StandardCRUDLimiter, notesHandler.DeleteNote)
	protected.Patch("/notes/:id/restore", rateLimits.StandardCRUDLimiter, notesHandler.RestoreNote)
	protected.Patch("/notes/:id/archive", rateLimits.StandardCRUDLimiter, notesHandler.ArchiveNote)
	protected.Patch("/notes/:id/unarchive", rateLimits.StandardCRUDLimiter, notesHandler.UnarchiveNote)
	protected.Patch("/notes/:id/toggle_pin", rateLimits.StandardCRUDLimiter, notesHandler.TogglePin)
	protected.Post("/notes/:id/duplicate", rateLimits.StandardCRUDLimiter, notesHandler.DuplicateNote)
	protected.Post("/notes/:id/merge", rateLimits.StandardCRUDLimiter, notesHandler.MergeNote)
	protected.Get("/notes/:id/export", rateLimits.ExportLimiter, notesHandler.ExportNote)
	protected.Put("/notes/:id/tags", rateLimits.StandardCRUDLimiter, notesHandler.SetNoteTags)

	// Version history
	protected.Get("/notes/:note_id/versions", rateLimits.StandardCRUDLimiter, versionsHandler.ListVersions)
	protected.Get("/notes/:note_id/versions/:id", rateLimits.StandardCRUDLimiter, versionsHandler.GetVersion)
	protected.Post("/notes/:note_id/versions/:id/restore", rateLimits.StandardCRUDLimiter, versionsHandler.RestoreVersion)

	// Sharing
	protected.Get("/notes/:note_id/shares", rateLimits.StandardCRUDLimiter, sharesHandler.ListShares)
	protected.Post("/notes/:note_id/shares", rateLimits.StandardCRUDLimiter, sharesHandler.CreateShare)
	protected.Delete("/notes/:note_id/shares/:id", rateLimits.StandardCRUDLimiter, sharesHandler.DeleteShare)

	// Attachments
	protected.Get("/notes/:note_id/attachments", rateLimits.StandardCRUDLimiter, attachmentsHandler.ListAttachments)
	protected.Post("/notes/:note_id/attachments", rateLimits.AttachmentUploadLimiter, attachmentsHandler.UploadAttachments)
	protected.Get("/notes/:note_id/attachments/:id/download", rateLimits.StandardCRUDLimiter, attachmentsHandler.DownloadAttachment)
	protected.Delete("/notes/:note_id/attachments/:id", rateLimits.StandardCRUDLimiter, attachmentsHandler.DeleteAttachment)

	// Tags
	protected.Get("/tags", rateLimits.StandardCRUDLimiter, tagsHandler.ListTags)
	protected.Post("/tags", rateLimits.StandardCRUDLimiter, tagsHandler.CreateTag)
	protected.Get("/tags/:id", rateLimits.StandardCRUDLimiter, tagsHandler.GetTag)
	protected.Put("/tags/:id", rateLimits.StandardCRUDLimiter, tagsHandler.UpdateTag)
	protected.Delete("/tags/:id", rateLimits.StandardCRUDLimiter, tagsHandler.DeleteTag)

	// Admin routes
	admin := protected.Group("/admin", middleware.RequireAdmin(db))
	admin.Get("/dashboard", rateLimits.LightweightLimiter, adminHandler.Dashboard)
	admin.Put("/users/:id", rateLimits.StandardCRUDLimiter, adminHandler.UpdateUser)
	admin.Delete("/users/:id", rateLimits.StandardCRUDLimiter, adminHandler.DeleteUser)
}
