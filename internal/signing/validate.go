package signing

import (
	"fmt"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/data/repos"
	"github.com/inkform/inkform-backend/internal/fields"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

// Result of a completion check. Missing holds spot keys verbatim, in catalog
// order, so clients can highlight exactly the unfinished fields.
type Result struct {
	Satisfied bool     `json:"satisfied"`
	Missing   []string `json:"missing"`
}

// Validator computes whether a signer (or the whole document, when role is
// empty) has completed every required spot. The check is recomputed fresh on
// every call; it holds no state, which is what makes "complete" retryable.
type Validator interface {
	Validate(dbc dbctx.Context, doc *types.Document, role string) (Result, error)
	CompletedKeys(dbc dbctx.Context, doc *types.Document) (map[string]bool, error)
}

type validator struct {
	log     *logger.Logger
	catalog fields.Catalog
	assets  repos.SignatureAssetRepo
	values  repos.TextFieldValueRepo
}

func NewValidator(
	log *logger.Logger,
	catalog fields.Catalog,
	assets repos.SignatureAssetRepo,
	values repos.TextFieldValueRepo,
) Validator {
	return &validator{
		log:     log.With("service", "CompletionValidator"),
		catalog: catalog,
		assets:  assets,
		values:  values,
	}
}

// CompletedKeys is the union of spot keys with an uploaded signature asset
// or a submitted text value.
func (v *validator) CompletedKeys(dbc dbctx.Context, doc *types.Document) (map[string]bool, error) {
	done := map[string]bool{}

	assets, err := v.assets.GetByDocumentID(dbc, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("load signature assets: %w", err)
	}
	for _, a := range assets {
		done[a.SpotKey] = true
	}

	values, err := v.values.GetByDocumentID(dbc, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("load field values: %w", err)
	}
	for _, val := range values {
		done[val.SpotKey] = true
	}
	return done, nil
}

func (v *validator) Validate(dbc dbctx.Context, doc *types.Document, role string) (Result, error) {
	required, err := v.catalog.RequiredFor(dbc, doc, role)
	if err != nil {
		return Result{}, err
	}
	done, err := v.CompletedKeys(dbc, doc)
	if err != nil {
		return Result{}, err
	}

	missing := []string{}
	for _, spot := range required {
		if !done[spot.SpotKey] {
			missing = append(missing, spot.SpotKey)
		}
	}
	return Result{Satisfied: len(missing) == 0, Missing: missing}, nil
}
