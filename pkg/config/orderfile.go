package config

import (
	"fmt"
	"os"
	"regexp"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"

	"github.com/orderpilot/orderpilot/pkg/engine"
)

// orderSchema constrains order files. Unified with the user's file before
// decoding, so constraint violations surface as CUE errors with positions.
const orderSchema = `
order: {
	customer: string & !=""
	discount?: >=0 & <=100
	items: [...{
		code:     string & !=""
		quantity: int & >0
		discount?: >=0 & <=100
	}] & [_, ...]
}
`

// articleCodePattern is the canonical article code shape: three
// dot-separated numeric segments.
var articleCodePattern = regexp.MustCompile(`^\d{3,6}\.\d{1,4}\.\d{1,4}$`)

// orderFile is the decoded shape of an order file.
type orderFile struct {
	Order struct {
		Customer string   `json:"customer" validate:"required"`
		Discount *float64 `json:"discount"`
		Items    []struct {
			Code     string   `json:"code" validate:"required"`
			Quantity int      `json:"quantity" validate:"required,min=1"`
			Discount *float64 `json:"discount"`
		} `json:"items" validate:"required,min=1,dive"`
	} `json:"order"`
}

// OrderParser parses CUE order files into engine inputs.
type OrderParser struct {
	ctx       *cue.Context
	validator *validator.Validate
}

// NewOrderParser creates an order file parser.
func NewOrderParser() *OrderParser {
	return &OrderParser{
		ctx:       cuecontext.New(),
		validator: validator.New(),
	}
}

// ParseFile parses and validates one order file.
func (p *OrderParser) ParseFile(path string) (*engine.OrderData, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read order file %s: %w", path, err)
	}
	order, err := p.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("order file %s: %w", path, err)
	}
	return order, nil
}

// Parse parses and validates order file content.
func (p *OrderParser) Parse(content []byte) (*engine.OrderData, error) {
	schema := p.ctx.CompileString(orderSchema)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("internal order schema invalid: %w", err)
	}

	val := p.ctx.CompileBytes(content)
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse: %s", cueerrors.Details(err, nil))
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid order: %s", cueerrors.Details(err, nil))
	}

	var of orderFile
	if err := unified.Decode(&of); err != nil {
		return nil, fmt.Errorf("failed to decode order: %w", err)
	}
	if err := p.validator.Struct(&of); err != nil {
		return nil, fmt.Errorf("invalid order: %w", err)
	}

	order := &engine.OrderData{
		CustomerName: of.Order.Customer,
	}
	if of.Order.Discount != nil {
		order.DiscountPercent = *of.Order.Discount
	}
	for _, item := range of.Order.Items {
		if !articleCodePattern.MatchString(item.Code) {
			return nil, fmt.Errorf("invalid article code %q", item.Code)
		}
		order.Items = append(order.Items, engine.OrderLineItem{
			ArticleCode:       item.Code,
			RequestedQuantity: item.Quantity,
			DiscountPercent:   item.Discount,
		})
	}
	return order, nil
}
