package signing

import (
	"reflect"
	"testing"

	"github.com/google/uuid"

	types "github.com/inkform/inkform-backend/internal/domain"
)

func validatorDoc(t *testing.T) *types.Document {
	t.Helper()
	doc := &types.Document{ID: uuid.New(), Status: types.DocumentStatusSent}
	if err := doc.SetData(types.DocumentData{
		OneOffDocument: true,
		Fields: []types.InlineField{
			{ID: "sig-a", FieldType: "signature", SignerID: "signer-1", Required: true},
			{ID: "name-a", FieldType: "text", SignerID: "signer-1", Required: true},
			{ID: "note-a", FieldType: "text", SignerID: "signer-1", Required: false},
			{ID: "company", FieldType: "text", SignerID: "signer-1", Required: true, CreatorFills: true, Value: "Acme Inc"},
			{ID: "sig-b", FieldType: "signature", SignerID: "signer-2", Required: true},
		},
	}); err != nil {
		t.Fatalf("set data: %v", err)
	}
	return doc
}

func TestValidateMissingKeysKeepCatalogOrder(t *testing.T) {
	doc := validatorDoc(t)
	h := newEngineHarness(doc)

	res, err := h.validator.Validate(h.dbc, doc, "signer-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Satisfied {
		t.Fatalf("nothing filled, want unsatisfied")
	}
	// Optional and creator-filled spots never block; order follows the
	// document's field list.
	want := []string{"sig-a", "name-a"}
	if !reflect.DeepEqual(res.Missing, want) {
		t.Fatalf("want missing=%v got=%v", want, res.Missing)
	}
}

func TestValidateIsRecomputedFresh(t *testing.T) {
	doc := validatorDoc(t)
	h := newEngineHarness(doc)

	if _, err := h.values.Create(h.dbc, &types.TextFieldValue{
		DocumentID: doc.ID, SpotKey: "name-a", SignerRole: "signer-1", Value: "Ada",
	}); err != nil {
		t.Fatalf("seed value: %v", err)
	}
	res, err := h.validator.Validate(h.dbc, doc, "signer-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !reflect.DeepEqual(res.Missing, []string{"sig-a"}) {
		t.Fatalf("want missing=[sig-a] got=%v", res.Missing)
	}

	h.fillSignature(t, doc, "sig-a", "signer-1")
	res, err = h.validator.Validate(h.dbc, doc, "signer-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Satisfied || len(res.Missing) != 0 {
		t.Fatalf("want satisfied after filling, got %+v", res)
	}
}

func TestValidateWholeDocumentScope(t *testing.T) {
	doc := validatorDoc(t)
	h := newEngineHarness(doc)
	h.fillSignature(t, doc, "sig-a", "signer-1")
	if _, err := h.values.Create(h.dbc, &types.TextFieldValue{
		DocumentID: doc.ID, SpotKey: "name-a", SignerRole: "signer-1", Value: "Ada",
	}); err != nil {
		t.Fatalf("seed value: %v", err)
	}

	res, err := h.validator.Validate(h.dbc, doc, "")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !reflect.DeepEqual(res.Missing, []string{"sig-b"}) {
		t.Fatalf("whole-document scope must cover every role, got %v", res.Missing)
	}
}
