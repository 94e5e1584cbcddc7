package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlement-engine/pkg/config"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

// Line is a single priced line of a cart.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Breakdown is the frozen money summary of an order.
type Breakdown struct {
	Lines    []decimal.Decimal
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// Calculator turns priced lines into order totals.
type Calculator interface {
	Quote(lines []Line) (Breakdown, error)
}

// FlatRate applies a single tax rate to the subtotal and a fixed shipping fee.
type FlatRate struct {
	taxRate  decimal.Decimal
	shipping decimal.Decimal
}

// NewFlatRate builds the default calculator.
func NewFlatRate(taxRate, shipping decimal.Decimal) (*FlatRate, error) {
	if taxRate.IsNegative() {
		return nil, fmt.Errorf("tax rate must not be negative")
	}
	if shipping.IsNegative() {
		return nil, fmt.Errorf("shipping fee must not be negative")
	}
	return &FlatRate{taxRate: taxRate, shipping: Round(shipping)}, nil
}

// NewFromConfig builds a FlatRate from the pricing section.
func NewFromConfig(cfg config.PricingConfig) (*FlatRate, error) {
	return NewFlatRate(cfg.TaxRate, cfg.FlatShipping)
}

// Quote prices lines in order; every intermediate amount is rounded to cents.
func (c *FlatRate) Quote(lines []Line) (Breakdown, error) {
	if len(lines) == 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}

	out := Breakdown{Lines: make([]decimal.Decimal, 0, len(lines))}
	subtotal := decimal.Zero
	for i, line := range lines {
		if line.Quantity <= 0 {
			return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"line": i})
		}
		if line.UnitPrice.IsNegative() {
			return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative").
				WithDetails(map[string]any{"line": i})
		}
		lineTotal := LineTotal(line.UnitPrice, line.Quantity)
		out.Lines = append(out.Lines, lineTotal)
		subtotal = subtotal.Add(lineTotal)
	}

	out.Subtotal = subtotal
	out.Tax = Round(subtotal.Mul(c.taxRate))
	out.Shipping = c.shipping
	out.Total = out.Subtotal.Add(out.Tax).Add(out.Shipping)
	return out, nil
}

// LineTotal is round2(unitPrice x qty).
func LineTotal(unitPrice decimal.Decimal, qty int) decimal.Decimal {
	return Round(unitPrice.Mul(decimal.NewFromInt(int64(qty))))
}

// Round rounds to cents using banker's rounding.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// ToMinorUnits converts an amount to integer cents for gateways that expect them.
func ToMinorUnits(d decimal.Decimal) int64 {
	return Round(d).Shift(2).IntPart()
}

// FromMinorUnits converts integer cents back into a decimal amount.
func FromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}
