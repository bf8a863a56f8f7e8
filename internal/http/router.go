package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/inkform/inkform-backend/internal/http/handlers"
	httpMW "github.com/inkform/inkform-backend/internal/http/middleware"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthHandler              *httpH.AuthHandler
	AuthMiddleware           *httpMW.AuthMiddleware
	DocumentHandler          *httpH.DocumentHandler
	SigningHandler           *httpH.SigningHandler
	StorageConnectionHandler *httpH.StorageConnectionHandler
	HealthHandler            *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("inkform-backend"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Auth (public)
		if cfg.AuthHandler != nil {
			api.POST("/register", cfg.AuthHandler.Register)
			api.POST("/login", cfg.AuthHandler.Login)
		}

		// Signing (public, signing-token authenticated)
		if cfg.SigningHandler != nil {
			api.GET("/sign/:documentID/meta", cfg.SigningHandler.Meta)
			api.POST("/sign/:documentID/spots/:spotKey/signature", cfg.SigningHandler.SubmitSignature)
			api.POST("/sign/:documentID/spots/:spotKey/value", cfg.SigningHandler.SubmitValue)
			api.POST("/sign/:documentID/complete", cfg.SigningHandler.Complete)
		}
	}

	protected := api.Group("/")
	{
		// Middleware
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Auth (protected)
		if cfg.AuthHandler != nil {
			protected.POST("/refresh", cfg.AuthHandler.Refresh)
			protected.POST("/logout", cfg.AuthHandler.Logout)
		}

		// Documents
		if cfg.DocumentHandler != nil {
			protected.POST("/documents", cfg.DocumentHandler.Create)
			protected.GET("/documents", cfg.DocumentHandler.List)
			protected.GET("/documents/:id", cfg.DocumentHandler.Get)
			protected.POST("/documents/:id/send", cfg.DocumentHandler.Send)
			protected.POST("/documents/:id/archive", cfg.DocumentHandler.Archive)
			protected.POST("/documents/:id/unarchive", cfg.DocumentHandler.Unarchive)
			protected.GET("/documents/:id/audit-trail", cfg.DocumentHandler.AuditTrail)
			protected.GET("/documents/:id/signed-url", cfg.DocumentHandler.SignedPdfURL)
		}

		// Storage connection
		if cfg.StorageConnectionHandler != nil {
			protected.POST("/storage-connection", cfg.StorageConnectionHandler.Connect)
			protected.GET("/storage-connection", cfg.StorageConnectionHandler.Get)
			protected.DELETE("/storage-connection", cfg.StorageConnectionHandler.Disconnect)
		}
	}

	return r
}
