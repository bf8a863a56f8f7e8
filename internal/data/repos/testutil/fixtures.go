package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/inkform/inkform-backend/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:        uuid.New(),
		Email:     email,
		Password:  "pw",
		FirstName: "A",
		LastName:  "B",
		Tier:      types.TierFree,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID *uuid.UUID, data types.DocumentData) *types.Document {
	tb.Helper()
	doc := &types.Document{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Status:         types.DocumentStatusSent,
		SigningToken:   uuid.NewString(),
		UnsignedPdfKey: "documents/unsigned.pdf",
		OriginalHash:   "deadbeef",
		StorageBucket:  "inkform-docs-us",
		StorageRegion:  "us-central1",
	}
	if err := doc.SetData(data); err != nil {
		tb.Fatalf("seed document data: %v", err)
	}
	if err := tx.WithContext(ctx).Create(doc).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return doc
}

func SeedSigner(tb testing.TB, ctx context.Context, tx *gorm.DB, docID uuid.UUID, role string, orderIndex int) *types.Signer {
	tb.Helper()
	s := &types.Signer{
		ID:         uuid.New(),
		DocumentID: docID,
		Email:      fmt.Sprintf("%s@example.com", role),
		Name:       role,
		Role:       role,
		Token:      uuid.NewString(),
		Status:     types.SignerStatusPending,
		OrderIndex: orderIndex,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed signer: %v", err)
	}
	return s
}

func SeedSignatureAsset(tb testing.TB, ctx context.Context, tx *gorm.DB, docID uuid.UUID, spotKey, role string) *types.SignatureAsset {
	tb.Helper()
	a := &types.SignatureAsset{
		ID:         uuid.New(),
		DocumentID: docID,
		SpotKey:    spotKey,
		SignerRole: role,
		StorageKey: fmt.Sprintf("signatures/%s/%s.png", docID, spotKey),
		MimeType:   "image/png",
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed signature asset: %v", err)
	}
	return a
}

func SeedTextFieldValue(tb testing.TB, ctx context.Context, tx *gorm.DB, docID uuid.UUID, spotKey, role, value string) *types.TextFieldValue {
	tb.Helper()
	v := &types.TextFieldValue{
		ID:         uuid.New(),
		DocumentID: docID,
		SpotKey:    spotKey,
		SignerRole: role,
		Value:      value,
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed text field value: %v", err)
	}
	return v
}
