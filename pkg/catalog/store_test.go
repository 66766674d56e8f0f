package catalog

import (
	"context"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func seedArticle(t *testing.T, store *Store) {
	t.Helper()
	err := store.UpsertArticle(context.Background(), &Article{
		Code: "10839.314.016",
		Name: "Cerniera 16mm",
		Variants: []Variant{
			{
				ID:             "10839.314.016K1",
				ArticleCode:    "10839.314.016",
				Suffix:         "K1",
				PackageContent: "1",
				MultipleQty:    1,
				IsDefault:      true,
			},
			{
				ID:             "10839.314.016K3",
				ArticleCode:    "10839.314.016",
				Suffix:         "K3",
				PackageContent: "5",
				MultipleQty:    5,
			},
		},
	})
	if err != nil {
		t.Fatalf("failed to seed article: %v", err)
	}
}

func TestGetArticleUnknownCode(t *testing.T) {
	store := setupTestStore(t)

	a, err := store.GetArticle(context.Background(), "00000.000.000")
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if a != nil {
		t.Errorf("expected nil for unknown code, got %+v", a)
	}
}

func TestUpsertAndGetArticle(t *testing.T) {
	store := setupTestStore(t)
	seedArticle(t, store)

	a, err := store.GetArticle(context.Background(), "10839.314.016")
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if a == nil {
		t.Fatal("article not found after upsert")
	}
	if a.Name != "Cerniera 16mm" || len(a.Variants) != 2 {
		t.Errorf("unexpected article: %+v", a)
	}
	// Default variant is ordered first.
	if !a.Variants[0].IsDefault {
		t.Errorf("default variant not first: %+v", a.Variants)
	}
}

func TestUpsertReplacesVariants(t *testing.T) {
	store := setupTestStore(t)
	seedArticle(t, store)

	err := store.UpsertArticle(context.Background(), &Article{
		Code: "10839.314.016",
		Name: "Cerniera 16mm",
		Variants: []Variant{
			{ID: "10839.314.016K9", ArticleCode: "10839.314.016", Suffix: "K9", MultipleQty: 1},
		},
	})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	a, err := store.GetArticle(context.Background(), "10839.314.016")
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if len(a.Variants) != 1 || a.Variants[0].ID != "10839.314.016K9" {
		t.Errorf("variants not replaced: %+v", a.Variants)
	}
}

func TestSelectVariantPrefersLargestAdmittingMultiple(t *testing.T) {
	store := setupTestStore(t)
	seedArticle(t, store)
	ctx := context.Background()

	// 10 is a multiple of 5; the 5-pack variant wins over the singles.
	v, err := store.SelectVariant(ctx, "10839.314.016", 10)
	if err != nil {
		t.Fatalf("SelectVariant failed: %v", err)
	}
	if v.ID != "10839.314.016K3" {
		t.Errorf("expected the 5-pack variant, got %s", v.ID)
	}

	// 3 only fits the single-unit variant.
	v, err = store.SelectVariant(ctx, "10839.314.016", 3)
	if err != nil {
		t.Fatalf("SelectVariant failed: %v", err)
	}
	if v.ID != "10839.314.016K1" {
		t.Errorf("expected the single-unit variant, got %s", v.ID)
	}
}

func TestSelectVariantUnknownCodeReturnsNil(t *testing.T) {
	store := setupTestStore(t)

	v, err := store.SelectVariant(context.Background(), "99999.999.999", 1)
	if err != nil {
		t.Fatalf("SelectVariant failed: %v", err)
	}
	if v != nil {
		t.Errorf("expected nil for unknown code, got %+v", v)
	}
}

func TestSelectVariantFallsBackToDefault(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.UpsertArticle(ctx, &Article{
		Code: "20000.100.001",
		Variants: []Variant{
			{ID: "20000.100.001A", ArticleCode: "20000.100.001", MultipleQty: 10, MinQty: 10},
			{ID: "20000.100.001B", ArticleCode: "20000.100.001", MultipleQty: 20, IsDefault: true},
		},
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// 7 admits neither variant; the default is returned so validation can
	// explain the violation against a concrete rule set.
	v, err := store.SelectVariant(ctx, "20000.100.001", 7)
	if err != nil {
		t.Fatalf("SelectVariant failed: %v", err)
	}
	if v.ID != "20000.100.001B" {
		t.Errorf("expected the default variant, got %s", v.ID)
	}
}

func TestValidateQuantity(t *testing.T) {
	store := setupTestStore(t)
	seedArticle(t, store)
	ctx := context.Background()

	v, err := store.SelectVariant(ctx, "10839.314.016", 10)
	if err != nil {
		t.Fatalf("SelectVariant failed: %v", err)
	}

	check, err := store.ValidateQuantity(ctx, v, 10)
	if err != nil {
		t.Fatalf("ValidateQuantity failed: %v", err)
	}
	if !check.Valid {
		t.Errorf("10 must be valid for the 5-pack: %v", check.Errors)
	}

	check, err = store.ValidateQuantity(ctx, v, 7)
	if err != nil {
		t.Fatalf("ValidateQuantity failed: %v", err)
	}
	if check.Valid {
		t.Fatal("7 must be invalid for the 5-pack")
	}
	if len(check.Suggestions) == 0 {
		t.Fatal("expected nearby valid quantities")
	}
	for _, s := range check.Suggestions {
		if s%5 != 0 {
			t.Errorf("suggestion %d is not a multiple of 5", s)
		}
	}

	check, err = store.ValidateQuantity(ctx, v, 0)
	if err != nil {
		t.Fatalf("ValidateQuantity failed: %v", err)
	}
	if check.Valid {
		t.Error("zero must be invalid")
	}
}

func TestListArticles(t *testing.T) {
	store := setupTestStore(t)
	seedArticle(t, store)

	codes, err := store.ListArticles(context.Background())
	if err != nil {
		t.Fatalf("ListArticles failed: %v", err)
	}
	if len(codes) != 1 || codes[0] != "10839.314.016" {
		t.Errorf("unexpected codes: %v", codes)
	}
}
