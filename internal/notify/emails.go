package notify

import (
	"context"
	"fmt"
	"strings"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/platform/envutil"
	"github.com/inkform/inkform-backend/internal/platform/logger"
	"github.com/inkform/inkform-backend/internal/platform/sendgrid"
)

// EmailSender sends signing-flow emails. All sends are best-effort from the
// caller's perspective; a failed email never rolls back a completion.
type EmailSender interface {
	SignerRequest(ctx context.Context, doc *types.Document, title string, signer *types.Signer) error
	DocumentCompleted(ctx context.Context, doc *types.Document, title string, recipients []Recipient, signedPdfURL string) error
}

type Recipient struct {
	Email string
	Name  string
}

type emailSender struct {
	log     *logger.Logger
	mail    sendgrid.Client
	baseURL string
}

func NewEmailSender(log *logger.Logger, mail sendgrid.Client) EmailSender {
	return &emailSender{
		log:     log.With("service", "EmailSender"),
		mail:    mail,
		baseURL: strings.TrimRight(envutil.String("APP_BASE_URL", "https://app.inkform.io"), "/"),
	}
}

func (s *emailSender) signingURL(doc *types.Document, signer *types.Signer) string {
	return fmt.Sprintf("%s/sign/%s?token=%s", s.baseURL, doc.ID.String(), signer.Token)
}

func (s *emailSender) SignerRequest(ctx context.Context, doc *types.Document, title string, signer *types.Signer) error {
	if strings.TrimSpace(signer.Email) == "" {
		return fmt.Errorf("signer %s has no email", signer.ID)
	}
	if title == "" {
		title = "a document"
	}
	link := s.signingURL(doc, signer)

	_, err := s.mail.Send(ctx, sendgrid.SendEmailRequest{
		To:      []sendgrid.EmailAddress{{Email: signer.Email, Name: signer.Name}},
		Subject: fmt.Sprintf("Your signature is requested: %s", title),
		Text: fmt.Sprintf(
			"Hello %s,\n\nYou have been asked to sign %q.\n\nReview and sign here:\n%s\n",
			displayName(signer.Name), title, link,
		),
		HTML: fmt.Sprintf(
			`<p>Hello %s,</p><p>You have been asked to sign <strong>%s</strong>.</p><p><a href="%s">Review and sign</a></p>`,
			displayName(signer.Name), title, link,
		),
	})
	if err != nil {
		return fmt.Errorf("send signer request: %w", err)
	}
	return nil
}

func (s *emailSender) DocumentCompleted(ctx context.Context, doc *types.Document, title string, recipients []Recipient, signedPdfURL string) error {
	if title == "" {
		title = "your document"
	}
	var firstErr error
	for _, rcpt := range recipients {
		if strings.TrimSpace(rcpt.Email) == "" {
			continue
		}
		_, err := s.mail.Send(ctx, sendgrid.SendEmailRequest{
			To:      []sendgrid.EmailAddress{{Email: rcpt.Email, Name: rcpt.Name}},
			Subject: fmt.Sprintf("Completed: %s", title),
			Text: fmt.Sprintf(
				"Hello %s,\n\nAll parties have signed %q.\n\nDownload the signed document:\n%s\n",
				displayName(rcpt.Name), title, signedPdfURL,
			),
			HTML: fmt.Sprintf(
				`<p>Hello %s,</p><p>All parties have signed <strong>%s</strong>.</p><p><a href="%s">Download the signed document</a></p>`,
				displayName(rcpt.Name), title, signedPdfURL,
			),
		})
		if err != nil {
			s.log.Warn("Completion email failed",
				"document_id", doc.ID.String(),
				"email", rcpt.Email,
				"error", err.Error(),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func displayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "there"
	}
	return name
}
