package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/print-storefront/internal/domain/catalog"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon is the record fetched from the backend by code. Zero MinOrderAmount,
// MaxDiscountAmount and UsageLimit mean the constraint is not set.
type Coupon struct {
	ID                 string                `json:"id"`
	Code               string                `json:"code"`
	DiscountType       DiscountType          `json:"discount_type"`
	DiscountValue      decimal.Decimal       `json:"discount_value"`
	MinOrderAmount     decimal.Decimal       `json:"min_order_amount"`
	MaxDiscountAmount  decimal.Decimal       `json:"max_discount_amount"`
	ApplicableProducts []catalog.ProductType `json:"applicable_products,omitempty"`
	ValidFrom          *time.Time            `json:"valid_from,omitempty"`
	ValidUntil         *time.Time            `json:"valid_until,omitempty"`
	UsageLimit         int                   `json:"usage_limit"`
	UsageCount         int                   `json:"usage_count"`
	IsActive           bool                  `json:"is_active"`
}

// AppliesTo reports whether lines of product type p count towards the discount.
func (c *Coupon) AppliesTo(p catalog.ProductType) bool {
	if len(c.ApplicableProducts) == 0 {
		return true
	}
	for _, ap := range c.ApplicableProducts {
		if ap == p {
			return true
		}
	}
	return false
}

// Kind classifies why a coupon cannot be applied.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindNotYetValid       Kind = "not_yet_valid"
	KindExpired           Kind = "expired"
	KindLimitReached      Kind = "limit_reached"
	KindBelowMinimum      Kind = "below_minimum"
	KindNoApplicableItems Kind = "no_applicable_items"
)

// Error is a user-facing coupon rejection. It matches the sentinel of the
// same Kind under errors.Is.
type Error struct {
	Kind   Kind
	Code   string
	Detail string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("coupon %s", strings.ReplaceAll(string(e.Kind), "_", " "))
	if e.Code != "" {
		msg = fmt.Sprintf("coupon %q: %s", e.Code, strings.ReplaceAll(string(e.Kind), "_", " "))
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrNotYetValid       = &Error{Kind: KindNotYetValid}
	ErrExpired           = &Error{Kind: KindExpired}
	ErrLimitReached      = &Error{Kind: KindLimitReached}
	ErrBelowMinimum      = &Error{Kind: KindBelowMinimum}
	ErrNoApplicableItems = &Error{Kind: KindNoApplicableItems}
)

// NormalizeCode makes coupon codes case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository looks coupons up by normalized code. FindByCode returns nil, nil
// when no coupon exists.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}
