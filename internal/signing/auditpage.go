package signing

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

// Rendered at 2x for crisp text, imported at letter size.
const (
	pageScale  = 2.0
	pagePxW    = int(letterWidth * pageScale)
	pagePxH    = int(letterHeight * pageScale)
	pageMargin = 48.0 * pageScale
)

// AuditTrail describes the appended trail page. The page is rendered after
// the content hash is computed, so none of it affects verifiability.
type AuditTrail struct {
	DocumentID   string
	Title        string
	ContentHash  string
	OriginalHash string
	Events       []*types.AuditEvent
	GeneratedAt  time.Time
}

// TrailRenderer renders the audit trail as a single-page PDF.
type TrailRenderer interface {
	Render(trail AuditTrail) ([]byte, error)
	// Append merges the rendered page after the stamped document.
	Append(stamped, trailPage []byte) ([]byte, error)
}

type trailRenderer struct {
	log     *logger.Logger
	regular *truetype.Font
	bold    *truetype.Font
}

func NewTrailRenderer(log *logger.Logger) (TrailRenderer, error) {
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	return &trailRenderer{
		log:     log.With("service", "TrailRenderer"),
		regular: regular,
		bold:    bold,
	}, nil
}

func (r *trailRenderer) face(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{
		Size:    size * pageScale,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

func (r *trailRenderer) Render(trail AuditTrail) ([]byte, error) {
	dc := gg.NewContext(pagePxW, pagePxH)
	dc.SetColor(color.White)
	dc.Clear()
	dc.SetColor(color.Black)

	x := pageMargin
	y := pageMargin + 10*pageScale

	dc.SetFontFace(r.face(r.bold, 18))
	dc.DrawString("Signing Audit Trail", x, y)
	y += 30 * pageScale

	dc.SetFontFace(r.face(r.regular, 10))
	lines := []string{
		fmt.Sprintf("Document: %s", trail.DocumentID),
	}
	if trail.Title != "" {
		lines = append(lines, fmt.Sprintf("Title: %s", trail.Title))
	}
	lines = append(lines,
		fmt.Sprintf("Content SHA-256 (excludes this page): %s", trail.ContentHash),
		fmt.Sprintf("Original document SHA-256: %s", trail.OriginalHash),
		fmt.Sprintf("Generated: %s", trail.GeneratedAt.UTC().Format(time.RFC3339)),
	)
	for _, line := range lines {
		dc.DrawString(line, x, y)
		y += 16 * pageScale
	}
	y += 10 * pageScale

	dc.SetFontFace(r.face(r.bold, 12))
	dc.DrawString("Timeline", x, y)
	y += 20 * pageScale

	dc.SetFontFace(r.face(r.regular, 9))
	for _, ev := range trail.Events {
		if y > float64(pagePxH)-pageMargin {
			// The trail page is a summary; overflow is truncated with a
			// marker rather than paginated.
			dc.DrawString(fmt.Sprintf("... %d further events omitted", remaining(trail.Events, ev)), x, y)
			break
		}
		dc.DrawString(formatEvent(ev), x, y)
		y += 14 * pageScale
	}

	var png bytes.Buffer
	if err := dc.EncodePNG(&png); err != nil {
		return nil, fmt.Errorf("encode trail page: %w", err)
	}
	return imageToLetterPDF(png.Bytes())
}

func remaining(events []*types.AuditEvent, from *types.AuditEvent) int {
	for i, ev := range events {
		if ev == from {
			return len(events) - i
		}
	}
	return 0
}

func formatEvent(ev *types.AuditEvent) string {
	line := fmt.Sprintf("%s  %s", ev.CreatedAt.UTC().Format("2006-01-02 15:04:05"), ev.EventType)
	if ev.Actor != "" {
		line += fmt.Sprintf("  by %s", ev.Actor)
	}
	if ev.ActorEmail != "" {
		line += fmt.Sprintf(" <%s>", ev.ActorEmail)
	}
	return line
}

func imageToLetterPDF(png []byte) ([]byte, error) {
	imp, err := api.Import("form:Letter, pos:full", pdftypes.POINTS)
	if err != nil {
		return nil, fmt.Errorf("import params: %w", err)
	}
	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, []io.Reader{bytes.NewReader(png)}, imp, nil); err != nil {
		return nil, fmt.Errorf("import trail image: %w", err)
	}
	return out.Bytes(), nil
}

func (r *trailRenderer) Append(stamped, trailPage []byte) ([]byte, error) {
	var out bytes.Buffer
	err := api.MergeRaw([]io.ReadSeeker{bytes.NewReader(stamped), bytes.NewReader(trailPage)}, &out, false, nil)
	if err != nil {
		return nil, fmt.Errorf("merge trail page: %w", err)
	}
	return out.Bytes(), nil
}
