package app

import (
	"fmt"

	"github.com/inkform/inkform-backend/internal/audit"
	"github.com/inkform/inkform-backend/internal/data/repos"
	"github.com/inkform/inkform-backend/internal/fields"
	"github.com/inkform/inkform-backend/internal/notify"
	"github.com/inkform/inkform-backend/internal/platform/logger"
	"github.com/inkform/inkform-backend/internal/services"
	"github.com/inkform/inkform-backend/internal/signing"
	"github.com/inkform/inkform-backend/internal/storage"
)

type Services struct {
	Auth              services.AuthService
	Document          services.DocumentService
	Signing           services.SigningService
	StorageConnection services.StorageConnectionService
}

func wireServices(log *logger.Logger, repoSet repos.Set, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	resolver := storage.NewResolver(log, repoSet.User, repoSet.StorageConnection, clients.Sealer, clients.Bucket)
	auditLog := audit.NewLog(log, repoSet.AuditEvent)
	catalog := fields.NewCatalog(log, repoSet.TemplateField)

	emails := notify.NewEmailSender(log, clients.Mail)
	webhooks := notify.NewWebhookDispatcher(log, notify.WebhookConfigFromEnv())

	sessions := signing.NewSessionResolver(log, repoSet.Document, repoSet.Signer)
	validator := signing.NewValidator(log, catalog, repoSet.SignatureAsset, repoSet.TextFieldValue)
	stamper := signing.NewStamper(log)
	trail, err := signing.NewTrailRenderer(log)
	if err != nil {
		return Services{}, fmt.Errorf("init trail renderer: %w", err)
	}
	finalizer := signing.NewFinalizer(log, repoSet, catalog, stamper, trail, auditLog, resolver, emails, webhooks)
	orchestrator := signing.NewOrchestrator(log, repoSet, validator, finalizer, auditLog, emails, webhooks, clients.Locker)

	return Services{
		Auth:              services.NewAuthService(log, repoSet.User, repoSet.UserToken),
		Document:          services.NewDocumentService(log, repoSet, resolver, auditLog, emails),
		Signing:           services.NewSigningService(log, repoSet, sessions, catalog, validator, orchestrator, resolver, auditLog),
		StorageConnection: services.NewStorageConnectionService(log, repoSet, clients.Sealer),
	}, nil
}
