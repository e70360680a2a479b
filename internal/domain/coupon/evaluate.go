package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/print-storefront/internal/domain/cart"
)

var hundred = decimal.NewFromInt(100)

// Result is the outcome of applying a coupon to a set of cart lines.
type Result struct {
	Code               string          `json:"code"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	ApplicableSubtotal decimal.Decimal `json:"applicable_subtotal"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	FinalTotal         decimal.Decimal `json:"final_total"`
}

// Evaluate validates c against lines at time now and computes the discount.
// It has no side effects. Checks run in a fixed order and the first failing
// one determines the error kind.
func Evaluate(c *Coupon, lines []cart.Line, now time.Time) (Result, error) {
	if c == nil || !c.IsActive {
		code := ""
		if c != nil {
			code = c.Code
		}
		return Result{}, &Error{Kind: KindNotFound, Code: code}
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return Result{}, &Error{Kind: KindNotYetValid, Code: c.Code,
			Detail: "valid from " + c.ValidFrom.Format(time.DateOnly)}
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return Result{}, &Error{Kind: KindExpired, Code: c.Code,
			Detail: "valid until " + c.ValidUntil.Format(time.DateOnly)}
	}
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return Result{}, &Error{Kind: KindLimitReached, Code: c.Code}
	}

	subtotal := cart.Subtotal(lines)
	if c.MinOrderAmount.IsPositive() && subtotal.LessThan(c.MinOrderAmount) {
		return Result{}, &Error{Kind: KindBelowMinimum, Code: c.Code,
			Detail: fmt.Sprintf("minimum order is %s", c.MinOrderAmount.StringFixed(2))}
	}

	applicable := decimal.Zero
	matched := false
	for _, l := range lines {
		if c.AppliesTo(l.ProductType) {
			applicable = applicable.Add(l.Total())
			matched = true
		}
	}
	if len(c.ApplicableProducts) > 0 && !matched {
		return Result{}, &Error{Kind: KindNoApplicableItems, Code: c.Code}
	}

	discount := rawDiscount(c, applicable)
	discount = decimal.Min(discount, subtotal).Round(2)
	discount = decimal.Min(discount, subtotal)
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	return Result{
		Code:               c.Code,
		Subtotal:           subtotal,
		ApplicableSubtotal: applicable,
		DiscountAmount:     discount,
		FinalTotal:         subtotal.Sub(discount),
	}, nil
}

func rawDiscount(c *Coupon, applicable decimal.Decimal) decimal.Decimal {
	switch c.DiscountType {
	case DiscountPercentage:
		d := applicable.Mul(c.DiscountValue).Div(hundred)
		if c.MaxDiscountAmount.IsPositive() && d.GreaterThan(c.MaxDiscountAmount) {
			d = c.MaxDiscountAmount
		}
		return d
	case DiscountFixed:
		return decimal.Min(c.DiscountValue, applicable)
	default:
		return decimal.Zero
	}
}

// Apply looks the coupon up by code and evaluates it against lines.
func Apply(ctx context.Context, repo Repository, code string, lines []cart.Line, now time.Time) (*Coupon, Result, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, Result{}, &Error{Kind: KindNotFound}
	}
	c, err := repo.FindByCode(ctx, code)
	if err != nil {
		return nil, Result{}, fmt.Errorf("failed to look up coupon %s: %w", code, err)
	}
	if c == nil {
		return nil, Result{}, &Error{Kind: KindNotFound, Code: code}
	}
	res, err := Evaluate(c, lines, now)
	if err != nil {
		return nil, Result{}, err
	}
	return c, res, nil
}
