package audit

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/data/repos"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

// Log is the append-only audit trail. Every state change the signing engine
// makes lands here; the finalization pipeline renders the full list onto the
// appended trail page.
type Log interface {
	Append(dbc dbctx.Context, docID uuid.UUID, eventType, actor, actorEmail string, detail map[string]any) error
	List(dbc dbctx.Context, docID uuid.UUID) ([]*types.AuditEvent, error)
}

type log struct {
	logg   *logger.Logger
	events repos.AuditEventRepo
}

func NewLog(logg *logger.Logger, events repos.AuditEventRepo) Log {
	return &log{
		logg:   logg.With("service", "AuditLog"),
		events: events,
	}
}

func (l *log) Append(dbc dbctx.Context, docID uuid.UUID, eventType, actor, actorEmail string, detail map[string]any) error {
	event := &types.AuditEvent{
		DocumentID: docID,
		EventType:  eventType,
		Actor:      actor,
		ActorEmail: actorEmail,
	}
	if len(detail) > 0 {
		raw, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
		event.Detail = datatypes.JSON(raw)
	}
	if _, err := l.events.Append(dbc, event); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (l *log) List(dbc dbctx.Context, docID uuid.UUID) ([]*types.AuditEvent, error) {
	return l.events.ListByDocumentID(dbc, docID)
}
