package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/orderpilot/orderpilot/pkg/engine"
)

// SelectVariant picks the variant of code best suited to quantity. Among
// the variants whose packaging rules admit the quantity the one with the
// largest order multiple wins, so the order ships in the fewest packages.
// When no variant admits the quantity the default variant is returned and
// validation reports the violation. A nil result means the code is
// unknown.
func (s *Store) SelectVariant(ctx context.Context, code string, quantity int) (*engine.VariantDescriptor, error) {
	a, err := s.GetArticle(ctx, code)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, nil
	}
	if len(a.Variants) == 0 {
		return nil, fmt.Errorf("article %s has no variants", code)
	}

	admitting := make([]Variant, 0, len(a.Variants))
	for _, v := range a.Variants {
		if admits(v, quantity) {
			admitting = append(admitting, v)
		}
	}
	if len(admitting) > 0 {
		sort.SliceStable(admitting, func(i, j int) bool {
			return admitting[i].MultipleQty > admitting[j].MultipleQty
		})
		return toDescriptor(admitting[0]), nil
	}

	return toDescriptor(defaultVariant(a.Variants)), nil
}

// ValidateQuantity checks quantity against the variant's packaging rules
// and suggests nearby valid quantities on violation.
func (s *Store) ValidateQuantity(_ context.Context, variant *engine.VariantDescriptor, quantity int) (*engine.QuantityValidation, error) {
	result := &engine.QuantityValidation{Valid: true}

	if quantity <= 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "quantity must be positive")
		return result, nil
	}

	if variant.MinQty > 0 && quantity < variant.MinQty {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("quantity %d below minimum %d", quantity, variant.MinQty))
		result.Suggestions = appendUnique(result.Suggestions, variant.MinQty)
	}
	if variant.MaxQty > 0 && quantity > variant.MaxQty {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("quantity %d above maximum %d", quantity, variant.MaxQty))
		result.Suggestions = appendUnique(result.Suggestions, variant.MaxQty)
	}
	if variant.MultipleQty > 1 && quantity%variant.MultipleQty != 0 {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("quantity %d is not a multiple of %d", quantity, variant.MultipleQty))
		lower := quantity / variant.MultipleQty * variant.MultipleQty
		if lower >= variant.MinQty && lower > 0 {
			result.Suggestions = appendUnique(result.Suggestions, lower)
		}
		upper := lower + variant.MultipleQty
		if variant.MaxQty == 0 || upper <= variant.MaxQty {
			result.Suggestions = appendUnique(result.Suggestions, upper)
		}
	}

	return result, nil
}

// admits reports whether the variant's rules allow the quantity.
func admits(v Variant, quantity int) bool {
	if quantity <= 0 {
		return false
	}
	if v.MinQty > 0 && quantity < v.MinQty {
		return false
	}
	if v.MaxQty > 0 && quantity > v.MaxQty {
		return false
	}
	if v.MultipleQty > 1 && quantity%v.MultipleQty != 0 {
		return false
	}
	return true
}

// defaultVariant returns the flagged default, falling back to the first.
func defaultVariant(variants []Variant) Variant {
	for _, v := range variants {
		if v.IsDefault {
			return v
		}
	}
	return variants[0]
}

func toDescriptor(v Variant) *engine.VariantDescriptor {
	return &engine.VariantDescriptor{
		ID:             v.ID,
		ArticleCode:    v.ArticleCode,
		Suffix:         v.Suffix,
		PackageContent: v.PackageContent,
		MultipleQty:    v.MultipleQty,
		MinQty:         v.MinQty,
		MaxQty:         v.MaxQty,
		Name:           v.Name,
	}
}

func appendUnique(s []int, v int) []int {
	for _, existing := range s {
		if existing == v {
			return s
		}
	}
	return append(s, v)
}
