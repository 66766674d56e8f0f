package engine

import (
	"time"
)

// OrderData is the caller-supplied description of one order to construct.
type OrderData struct {
	// CustomerName is the remote account the order is entered under.
	CustomerName string `json:"customer_name" validate:"required"`

	// Items are the line items to enter, processed strictly in this order.
	Items []OrderLineItem `json:"items" validate:"required,min=1,dive"`

	// DiscountPercent is an optional order-level discount applied to every
	// item that does not carry its own discount.
	DiscountPercent float64 `json:"discount_percent,omitempty" validate:"gte=0,lte=100"`
}

// OrderLineItem is one article to enter into the order grid. It is created
// from caller input, mutated in place once a variant is resolved, and
// discarded after its row is saved.
type OrderLineItem struct {
	// ArticleCode is the full catalog code, e.g. "10839.314.016".
	ArticleCode string `json:"article_code" validate:"required"`

	// RequestedQuantity is the quantity the caller wants on the row.
	RequestedQuantity int `json:"requested_quantity" validate:"required,gt=0"`

	// DiscountPercent overrides the order-level discount when non-nil.
	DiscountPercent *float64 `json:"discount_percent,omitempty"`

	// WarehouseQuantity is an optional quantity sourced from warehouse
	// stock instead of production.
	WarehouseQuantity int `json:"warehouse_quantity,omitempty" validate:"gte=0"`

	// ArticleID is filled in once a variant is resolved on the remote side.
	ArticleID string `json:"article_id,omitempty"`

	// PackageContent is filled in alongside ArticleID from the resolved variant.
	PackageContent string `json:"package_content,omitempty"`
}

// VariantDescriptor describes one packaging/quantity configuration of a
// catalog article. Immutable once fetched from the catalog.
type VariantDescriptor struct {
	// ID is the full variant identifier, e.g. "10839.314.016K3".
	ID string `json:"id"`

	// ArticleCode is the parent article code.
	ArticleCode string `json:"article_code"`

	// Suffix is the variant-distinguishing tail of the ID, e.g. "K3".
	Suffix string `json:"suffix"`

	// PackageContent is the number of pieces per package, as the remote
	// side renders it.
	PackageContent string `json:"package_content"`

	// MultipleQty is the unit the ordered quantity must be a multiple of.
	MultipleQty int `json:"multiple_qty"`

	// MinQty and MaxQty bound the orderable quantity; zero means unbounded.
	MinQty int `json:"min_qty"`
	MaxQty int `json:"max_qty"`

	// Name is the human-readable article name, used as a last-resort
	// matching hint.
	Name string `json:"name,omitempty"`
}

// QuantityValidation is the result of validating a requested quantity
// against a variant's packaging rules.
type QuantityValidation struct {
	// Valid is true when the quantity satisfies every rule.
	Valid bool `json:"valid"`

	// Errors lists the violated rules, empty when Valid.
	Errors []string `json:"errors,omitempty"`

	// Suggestions lists nearby quantities that would satisfy the rules.
	Suggestions []int `json:"suggestions,omitempty"`
}

// OrderResult is the terminal outcome of one order-construction run.
type OrderResult struct {
	// OrderID is the identifier extracted from remote post-commit state,
	// or a locally synthesized "ORDER-<timestamp>" fallback.
	OrderID string `json:"order_id"`

	// Synthesized is true when OrderID was generated locally because
	// extraction from the remote surface failed.
	Synthesized bool `json:"synthesized"`

	// RowsSaved is the number of line-item rows durably saved remotely.
	RowsSaved int `json:"rows_saved"`

	// ItemsRetried lists article codes that went through the retry/resume
	// policy.
	ItemsRetried []string `json:"items_retried,omitempty"`

	// Warnings lists degraded-fallback conditions that did not abort the
	// run, such as an unset discount after exhausted attempts.
	Warnings []string `json:"warnings,omitempty"`

	// StartedAt and CompletedAt bound the run.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// ItemStep identifies one step of the per-item state machine.
type ItemStep string

const (
	StepSelectVariant  ItemStep = "select_variant"
	StepOpenSearch     ItemStep = "open_search"
	StepTypeQuery      ItemStep = "type_query"
	StepMatchAndSelect ItemStep = "match_and_select"
	StepCommitQuantity ItemStep = "commit_quantity"
	StepCommitDiscount ItemStep = "commit_discount"
	StepSaveRow        ItemStep = "save_row"
	StepAdvance        ItemStep = "advance"

	// StepRetrying is the nested recovery state entered only from a
	// timeout, exiting back to normal flow or to a terminal abort.
	StepRetrying ItemStep = "retrying"
)

// RunStatus is the terminal status of an order-construction run.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)
