package fields

import (
	"fmt"

	"github.com/google/uuid"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/data/repos"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

// Spot is the one field shape the rest of the pipeline consumes, regardless
// of whether the field came from inline one-off metadata or the template
// tables. SpotKey is the stable key assets and values are stored under.
type Spot struct {
	ID              string  `json:"id"`
	SpotKey         string  `json:"spot_key"`
	FieldType       string  `json:"field_type"`
	Page            int     `json:"page"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	OwnerSignerRole string  `json:"owner_signer_role,omitempty"`
	Required        bool    `json:"required"`
	CreatorFills    bool    `json:"creator_fills,omitempty"`
	Value           string  `json:"value,omitempty"`
	Placeholder     string  `json:"placeholder,omitempty"`
	InputMode       string  `json:"input_mode,omitempty"`
}

func (s Spot) IsSignatureKind() bool {
	return s.FieldType == types.FieldTypeSignature || s.FieldType == types.FieldTypeInitial
}

// Catalog normalizes the two field sources. All returns the full rendering
// set; RequiredFor returns the subset a given signer must complete. An empty
// role scopes to the whole document (single-signer mode).
type Catalog interface {
	All(dbc dbctx.Context, doc *types.Document) ([]Spot, error)
	RequiredFor(dbc dbctx.Context, doc *types.Document, role string) ([]Spot, error)
}

type catalog struct {
	log            *logger.Logger
	templateFields repos.TemplateFieldRepo
}

func NewCatalog(log *logger.Logger, templateFields repos.TemplateFieldRepo) Catalog {
	return &catalog{
		log:            log.With("service", "FieldCatalog"),
		templateFields: templateFields,
	}
}

func (c *catalog) All(dbc dbctx.Context, doc *types.Document) ([]Spot, error) {
	data, err := doc.Data()
	if err != nil {
		return nil, fmt.Errorf("parse document data: %w", err)
	}

	if data.OneOffDocument || doc.TemplateID == nil {
		return inlineSpots(data), nil
	}
	return c.templateSpots(dbc, *doc.TemplateID)
}

func inlineSpots(data types.DocumentData) []Spot {
	out := make([]Spot, 0, len(data.Fields))
	for _, f := range data.Fields {
		out = append(out, Spot{
			ID:              f.ID,
			SpotKey:         f.ID,
			FieldType:       f.FieldType,
			Page:            f.Page,
			X:               f.X,
			Y:               f.Y,
			Width:           f.Width,
			Height:          f.Height,
			OwnerSignerRole: f.SignerID,
			Required:        f.Required,
			CreatorFills:    f.CreatorFills && !isSignatureKind(f.FieldType),
			Value:           f.Value,
			Placeholder:     f.Placeholder,
			InputMode:       f.InputMode,
		})
	}
	return out
}

func isSignatureKind(fieldType string) bool {
	return fieldType == types.FieldTypeSignature || fieldType == types.FieldTypeInitial
}

// templateSpots merges the legacy signature-spot table with the template
// field table. Legacy rows come first so their keys stay stable for
// documents sent before the newer table existed.
func (c *catalog) templateSpots(dbc dbctx.Context, templateID uuid.UUID) ([]Spot, error) {
	spots, err := c.templateFields.GetSpotsByTemplateID(dbc, templateID)
	if err != nil {
		return nil, fmt.Errorf("load signature spots: %w", err)
	}
	tplFields, err := c.templateFields.GetFieldsByTemplateID(dbc, templateID)
	if err != nil {
		return nil, fmt.Errorf("load template fields: %w", err)
	}

	out := make([]Spot, 0, len(spots)+len(tplFields))
	for _, s := range spots {
		out = append(out, Spot{
			ID:              s.ID.String(),
			SpotKey:         s.ID.String(),
			FieldType:       s.FieldType,
			Page:            s.Page,
			X:               s.X,
			Y:               s.Y,
			Width:           s.Width,
			Height:          s.Height,
			OwnerSignerRole: s.SignerRole,
			Required:        s.Required,
		})
	}
	for _, f := range tplFields {
		out = append(out, Spot{
			ID:              f.ID.String(),
			SpotKey:         f.ID.String(),
			FieldType:       f.FieldType,
			Page:            f.Page,
			X:               f.X,
			Y:               f.Y,
			Width:           f.Width,
			Height:          f.Height,
			OwnerSignerRole: f.SignerRole,
			Required:        f.Required,
			CreatorFills:    f.CreatorFills && !isSignatureKind(f.FieldType),
			Value:           f.Value,
			Placeholder:     f.Placeholder,
			InputMode:       f.InputMode,
		})
	}
	return out, nil
}

// RequiredFor scopes the catalog to what a signer still owes. Owner-supplied
// values are visible in the rendering set but never required of a signer.
func (c *catalog) RequiredFor(dbc dbctx.Context, doc *types.Document, role string) ([]Spot, error) {
	all, err := c.All(dbc, doc)
	if err != nil {
		return nil, err
	}
	out := make([]Spot, 0, len(all))
	for _, s := range all {
		if !s.Required || s.CreatorFills {
			continue
		}
		if role != "" && s.OwnerSignerRole != role {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Keys projects spots onto their spot keys, preserving order.
func Keys(spots []Spot) []string {
	keys := make([]string, 0, len(spots))
	for _, s := range spots {
		keys = append(keys, s.SpotKey)
	}
	return keys
}
