package signing

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/fields"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

const (
	letterWidth  = 612.0
	letterHeight = 792.0
)

// Stamper draws collected inputs onto the unsigned PDF. Field rectangles are
// stored top-left-origin; PDF user space is bottom-left-origin, so every
// placement flips through the page height.
type Stamper interface {
	Stamp(input []byte, spots []fields.Spot, images map[string][]byte, values map[string]string) ([]byte, error)
}

type stamper struct {
	log *logger.Logger
}

func NewStamper(log *logger.Logger) Stamper {
	return &stamper{log: log.With("service", "PdfStamper")}
}

// Truthy reports whether a stored checkbox value means checked.
func Truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "checked":
		return true
	}
	return false
}

func (s *stamper) Stamp(input []byte, spots []fields.Spot, images map[string][]byte, values map[string]string) ([]byte, error) {
	heights, err := pageHeights(input)
	if err != nil {
		return nil, fmt.Errorf("read page geometry: %w", err)
	}

	marks := map[int][]*model.Watermark{}
	for _, spot := range spots {
		pageH := letterHeight
		if spot.Page >= 1 && spot.Page <= len(heights) {
			pageH = heights[spot.Page-1]
		}

		var wm *model.Watermark
		var wmErr error
		switch spot.FieldType {
		case types.FieldTypeSignature, types.FieldTypeInitial:
			raw, ok := images[spot.SpotKey]
			if !ok {
				continue
			}
			wm, wmErr = imageWatermark(raw, spot, pageH)
		case types.FieldTypeText, types.FieldTypeDate:
			value := fieldValue(spot, values)
			if strings.TrimSpace(value) == "" {
				continue
			}
			wm, wmErr = textWatermark(value, spot, pageH)
		case types.FieldTypeCheckbox:
			if !Truthy(fieldValue(spot, values)) {
				continue
			}
			wm, wmErr = checkboxWatermark(spot, pageH)
		default:
			s.log.Warn("Skipping unknown field type", "field_type", spot.FieldType, "spot_key", spot.SpotKey)
			continue
		}
		if wmErr != nil {
			return nil, fmt.Errorf("build watermark for spot %s: %w", spot.SpotKey, wmErr)
		}
		page := spot.Page
		if page < 1 {
			page = 1
		}
		marks[page] = append(marks[page], wm)
	}

	if len(marks) == 0 {
		return input, nil
	}

	var out bytes.Buffer
	if err := api.AddWatermarksSliceMap(bytes.NewReader(input), &out, marks, nil); err != nil {
		return nil, fmt.Errorf("apply watermarks: %w", err)
	}
	return out.Bytes(), nil
}

// fieldValue prefers the signer-submitted value and falls back to the
// owner-supplied one for creator-filled fields.
func fieldValue(spot fields.Spot, values map[string]string) string {
	if v, ok := values[spot.SpotKey]; ok {
		return v
	}
	return spot.Value
}

// imageWatermark places an uploaded raster inside the spot rectangle,
// preserving aspect ratio. pdfcpu renders images at one point per pixel at
// scale 1, so the absolute scale factor is rect size over pixel size.
func imageWatermark(raw []byte, spot fields.Spot, pageH float64) (*model.Watermark, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("degenerate image %dx%d", cfg.Width, cfg.Height)
	}

	scale := spot.Width / float64(cfg.Width)
	if h := spot.Height / float64(cfg.Height); h < scale {
		scale = h
	}
	drawnW := float64(cfg.Width) * scale
	drawnH := float64(cfg.Height) * scale

	// Center the drawn image inside the rectangle.
	x := spot.X + (spot.Width-drawnW)/2
	yTop := spot.Y + (spot.Height-drawnH)/2
	y := pageH - yTop - drawnH

	desc := fmt.Sprintf("pos:bl, off:%.2f %.2f, scale:%.4f abs, rot:0", x, y, scale)
	return api.ImageWatermarkForReader(bytes.NewReader(raw), desc, true, false, pdftypes.POINTS)
}

func textWatermark(value string, spot fields.Spot, pageH float64) (*model.Watermark, error) {
	size := fontSizeFor(spot.Height)
	// Vertically center the baseline inside the rectangle.
	baseline := pageH - spot.Y - spot.Height/2 - size*0.35
	desc := fmt.Sprintf(
		"font:Helvetica, points:%.0f, pos:bl, off:%.2f %.2f, scale:1 abs, rot:0, fillcolor:#000000",
		size, spot.X, baseline,
	)
	return api.TextWatermark(value, desc, true, false, pdftypes.POINTS)
}

// checkboxWatermark draws the ZapfDingbats check glyph sized to the box.
func checkboxWatermark(spot fields.Spot, pageH float64) (*model.Watermark, error) {
	size := spot.Height * 0.8
	if size < 6 {
		size = 6
	}
	baseline := pageH - spot.Y - spot.Height/2 - size*0.35
	desc := fmt.Sprintf(
		"font:ZapfDingbats, points:%.0f, pos:bl, off:%.2f %.2f, scale:1 abs, rot:0, fillcolor:#000000",
		size, spot.X, baseline,
	)
	return api.TextWatermark("4", desc, true, false, pdftypes.POINTS)
}

func fontSizeFor(rectHeight float64) float64 {
	size := rectHeight * 0.6
	if size < 8 {
		return 8
	}
	if size > 14 {
		return 14
	}
	return size
}

// pageHeights reads the MediaBox height of every page, walking up to the
// page tree root for inherited boxes. Unreadable pages fall back to letter.
func pageHeights(input []byte) ([]float64, error) {
	r, err := pdf.NewReader(bytes.NewReader(input), int64(len(input)))
	if err != nil {
		return nil, err
	}
	n := r.NumPage()
	heights := make([]float64, n)
	for i := 1; i <= n; i++ {
		heights[i-1] = mediaBoxHeight(r.Page(i))
	}
	return heights, nil
}

func mediaBoxHeight(p pdf.Page) float64 {
	v := p.V
	for depth := 0; depth < 16 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if !box.IsNull() && box.Len() == 4 {
			lly := box.Index(1).Float64()
			ury := box.Index(3).Float64()
			if h := ury - lly; h > 0 {
				return h
			}
		}
		v = v.Key("Parent")
	}
	return letterHeight
}
