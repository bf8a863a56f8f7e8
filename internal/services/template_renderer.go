package services

import (
	"context"

	"github.com/google/uuid"
)

// TemplateRenderer produces the unsigned PDF for template-based documents.
// The rendering engine lives outside this service; document creation only
// needs the bytes.
type TemplateRenderer interface {
	RenderUnsignedPDF(ctx context.Context, templateID uuid.UUID, data map[string]any) ([]byte, error)
}
