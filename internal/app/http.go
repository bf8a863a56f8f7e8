package app

import (
	"github.com/inkform/inkform-backend/internal/http"
	httpH "github.com/inkform/inkform-backend/internal/http/handlers"
	httpMW "github.com/inkform/inkform-backend/internal/http/middleware"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health            *httpH.HealthHandler
	Auth              *httpH.AuthHandler
	Document          *httpH.DocumentHandler
	Signing           *httpH.SigningHandler
	StorageConnection *httpH.StorageConnectionHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:            httpH.NewHealthHandler(),
		Auth:              httpH.NewAuthHandler(services.Auth),
		Document:          httpH.NewDocumentHandler(log, services.Document),
		Signing:           httpH.NewSigningHandler(log, services.Signing),
		StorageConnection: httpH.NewStorageConnectionHandler(log, services.StorageConnection),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func wireServer(log *logger.Logger, handlers Handlers, middleware Middleware) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:                      log,
		HealthHandler:            handlers.Health,
		AuthHandler:              handlers.Auth,
		AuthMiddleware:           middleware.Auth,
		DocumentHandler:          handlers.Document,
		SigningHandler:           handlers.Signing,
		StorageConnectionHandler: handlers.StorageConnection,
	})
}
