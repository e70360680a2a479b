package order

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/print-storefront/internal/domain/cart"
	"github.com/example/print-storefront/internal/domain/catalog"
)

var (
	ErrEmptyOrder      = errors.New("order must have at least one item")
	ErrInvalidDiscount = errors.New("discount must be between zero and the subtotal")
	ErrUnknownStep     = errors.New("unknown production step")
)

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Notes string `json:"notes,omitempty"`
}

// Item is a frozen copy of a cart line at submission time.
type Item struct {
	LineID      string              `json:"line_id"`
	ProductType catalog.ProductType `json:"product_type"`
	Size        string              `json:"size"`
	Orientation catalog.Orientation `json:"orientation,omitempty"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
	Quantity    int                 `json:"quantity"`
	AssetRef    string              `json:"asset_ref"`
}

func (i Item) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type ProductionStep string

const (
	StepImagePrepared ProductionStep = "image_prepared"
	StepPrinted       ProductionStep = "printed"
	StepCut           ProductionStep = "cut"
	StepFinished      ProductionStep = "finished"
)

// ProductionSteps is the workshop checklist. Flags are independent.
type ProductionSteps struct {
	ImagePrepared bool `json:"image_prepared"`
	Printed       bool `json:"printed"`
	Cut           bool `json:"cut"`
	Finished      bool `json:"finished"`
}

func (p *ProductionSteps) Set(step ProductionStep, done bool) error {
	switch step {
	case StepImagePrepared:
		p.ImagePrepared = done
	case StepPrinted:
		p.Printed = done
	case StepCut:
		p.Cut = done
	case StepFinished:
		p.Finished = done
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}
	return nil
}

type Order struct {
	ID               string          `json:"id"`
	OrderNumber      string          `json:"order_number"`
	Customer         Customer        `json:"customer"`
	Items            []Item          `json:"items"`
	OriginalSubtotal decimal.Decimal `json:"original_subtotal"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	FinalTotal       decimal.Decimal `json:"final_total"`
	CouponCode       *string         `json:"coupon_code,omitempty"`
	Status           Status          `json:"status"`
	IsPaid           bool            `json:"is_paid"`
	ProductionSteps  ProductionSteps `json:"production_steps"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Version          int             `json:"version"`
}

// Aggregate interface implementation
func (o *Order) GetID() string   { return o.ID }
func (o *Order) GetVersion() int { return o.Version }

// New freezes lines into a pending, unpaid order. discount must already be
// evaluated against the same lines.
func New(customer Customer, lines []cart.Line, discount decimal.Decimal, couponCode string, now time.Time) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	subtotal := cart.Subtotal(lines)
	if discount.IsNegative() || discount.GreaterThan(subtotal) {
		return nil, fmt.Errorf("%w: %s of %s", ErrInvalidDiscount, discount, subtotal)
	}

	items := make([]Item, len(lines))
	for i, l := range lines {
		items[i] = Item{
			LineID:      l.ID,
			ProductType: l.ProductType,
			Size:        l.Size,
			Orientation: l.Orientation,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
			AssetRef:    l.AssetRef,
		}
	}

	o := &Order{
		ID:               uuid.New().String(),
		OrderNumber:      GenerateNumber(now),
		Customer:         customer,
		Items:            items,
		OriginalSubtotal: subtotal,
		DiscountAmount:   discount,
		FinalTotal:       subtotal.Sub(discount),
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if couponCode != "" {
		o.CouponCode = &couponCode
	}
	return o, nil
}

// GenerateNumber returns "BL" followed by the last six digits of the unix
// millisecond timestamp and three random digits. Collisions are unlikely but
// possible.
func GenerateNumber(now time.Time) string {
	return fmt.Sprintf("BL%06d%03d", now.UnixMilli()%1_000_000, rand.IntN(1000))
}

// ItemCount sums the quantities of all items.
func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	if o.CouponCode != nil {
		code := *o.CouponCode
		c.CouponCode = &code
	}
	return &c
}
