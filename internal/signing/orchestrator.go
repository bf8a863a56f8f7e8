package signing

import (
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/audit"
	"github.com/inkform/inkform-backend/internal/data/repos"
	"github.com/inkform/inkform-backend/internal/notify"
	"github.com/inkform/inkform-backend/internal/platform/apierr"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
	"github.com/inkform/inkform-backend/internal/platform/redlock"
)

const completionLockTTL = 2 * time.Minute

// Outcome of a completion request. Status is partial while signers remain
// and completed once finalization ran; Finalize is set only for the latter.
type Outcome struct {
	Status     types.DocumentStatus `json:"status"`
	NextSigner *types.Signer        `json:"next_signer,omitempty"`
	Finalize   *FinalizeResult      `json:"finalize,omitempty"`
}

// Orchestrator drives the per-document state machine from a signer's
// "complete" action through sequential hand-off or finalization.
type Orchestrator interface {
	Complete(dbc dbctx.Context, session *Session) (*Outcome, error)
}

type orchestrator struct {
	log       *logger.Logger
	documents repos.DocumentRepo
	signers   repos.SignerRepo
	validator Validator
	finalizer Finalizer
	auditLog  audit.Log
	emails    notify.EmailSender
	webhooks  notify.WebhookDispatcher
	locker    redlock.Locker
	group     singleflight.Group
}

func NewOrchestrator(
	log *logger.Logger,
	repoSet repos.Set,
	validator Validator,
	finalizer Finalizer,
	auditLog audit.Log,
	emails notify.EmailSender,
	webhooks notify.WebhookDispatcher,
	locker redlock.Locker,
) Orchestrator {
	return &orchestrator{
		log:       log.With("service", "SigningOrchestrator"),
		documents: repoSet.Document,
		signers:   repoSet.Signer,
		validator: validator,
		finalizer: finalizer,
		auditLog:  auditLog,
		emails:    emails,
		webhooks:  webhooks,
		locker:    locker,
	}
}

func (o *orchestrator) Complete(dbc dbctx.Context, session *Session) (*Outcome, error) {
	doc := session.Document
	if doc.Completed() {
		return nil, apierr.Conflict(fmt.Errorf("document already completed"))
	}

	// Missing keys are recomputed fresh on every call, which is what makes
	// a retry of "complete" safe.
	result, err := o.validator.Validate(dbc, doc, session.Role)
	if err != nil {
		return nil, apierr.From(err)
	}
	if !result.Satisfied {
		return nil, apierr.Validation(fmt.Errorf("required fields incomplete"), result.Missing)
	}

	// Two browser tabs racing on the same document: the unique constraints
	// are the correctness backstop, the lock and the in-process group just
	// stop both from burning a full finalization.
	release, ok, err := o.locker.Acquire(dbc.Ctx, "document:"+doc.ID.String(), completionLockTTL)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("acquire completion lock: %w", err))
	}
	if !ok {
		return nil, apierr.Conflict(fmt.Errorf("completion already in progress"))
	}
	defer release()

	v, err, _ := o.group.Do(doc.ID.String(), func() (any, error) {
		return o.completeLocked(dbc, session)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Outcome), nil
}

func (o *orchestrator) completeLocked(dbc dbctx.Context, session *Session) (*Outcome, error) {
	doc := session.Document
	data, err := doc.Data()
	if err != nil {
		return nil, apierr.Internal(err)
	}

	if session.Signer != nil {
		changed, err := o.signers.MarkCompleted(dbc, session.Signer.ID, time.Now())
		if err != nil {
			return nil, apierr.Internal(fmt.Errorf("mark signer completed: %w", err))
		}
		if !changed {
			return nil, apierr.Conflict(fmt.Errorf("signer already completed"))
		}
		_ = o.auditLog.Append(dbc, doc.ID, types.AuditSignerCompleted, session.Signer.Role, session.Signer.Email, nil)

		if err := o.webhooks.SignerCompleted(dbc.Ctx, doc, data.Title, session.Signer); err != nil {
			o.log.Warn("Per-signer webhook failed", "document_id", doc.ID.String(), "error", err.Error())
		}

		pending, err := o.signers.PendingByDocumentID(dbc, doc.ID)
		if err != nil {
			return nil, apierr.Internal(fmt.Errorf("load pending signers: %w", err))
		}
		if len(pending) > 0 {
			next := pending[0]
			o.notifyNext(dbc, doc, data, next)
			if err := o.documents.SetStatus(dbc, doc.ID, types.DocumentStatusPartial); err != nil {
				return nil, apierr.Internal(fmt.Errorf("set partial status: %w", err))
			}
			doc.Status = types.DocumentStatusPartial
			return &Outcome{Status: types.DocumentStatusPartial, NextSigner: next}, nil
		}
	} else if session.Role != "" {
		// Legacy inline-signer grant with no promoted row: there is no
		// per-signer completion state to flip, so the document finalizes
		// only once every role's required set is satisfied.
		whole, err := o.validator.Validate(dbc, doc, "")
		if err != nil {
			return nil, apierr.From(err)
		}
		if !whole.Satisfied {
			if err := o.documents.SetStatus(dbc, doc.ID, types.DocumentStatusPartial); err != nil {
				return nil, apierr.Internal(fmt.Errorf("set partial status: %w", err))
			}
			doc.Status = types.DocumentStatusPartial
			return &Outcome{Status: types.DocumentStatusPartial}, nil
		}
	}

	res, err := o.finalizer.Finalize(dbc, doc)
	if err != nil {
		return nil, err
	}
	return &Outcome{Status: types.DocumentStatusCompleted, Finalize: res}, nil
}

// notifyNext emails the next pending signer. Sequential notification is only
// sent for one-off documents; template-based multi-signer documents notify
// everyone up front at send time. Failure is logged, never propagated: the
// current signer already completed their part.
func (o *orchestrator) notifyNext(dbc dbctx.Context, doc *types.Document, data types.DocumentData, next *types.Signer) {
	if !data.OneOffDocument {
		return
	}
	if next.Email == "" || next.Token == "" {
		o.log.Warn("Next signer not notifiable", "document_id", doc.ID.String(), "signer_id", next.ID.String())
		return
	}
	if err := o.emails.SignerRequest(dbc.Ctx, doc, data.Title, next); err != nil {
		o.log.Warn("Next signer notification failed",
			"document_id", doc.ID.String(),
			"signer_id", next.ID.String(),
			"error", err.Error(),
		)
		return
	}
	_ = o.auditLog.Append(dbc, doc.ID, types.AuditNextSignerNotified, "system", next.Email, map[string]any{
		"order_index": next.OrderIndex,
	})
}
