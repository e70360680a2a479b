package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/domain/asset"
	"github.com/example/print-storefront/internal/domain/cart"
	"github.com/example/print-storefront/internal/domain/catalog"
	"github.com/example/print-storefront/internal/domain/coupon"
	"github.com/example/print-storefront/internal/domain/order"
)

const (
	FieldName  = "name"
	FieldEmail = "email"
	FieldPhone = "phone"
	FieldNotes = "notes"
)

var DefaultRequiredFields = []string{FieldName, FieldEmail, FieldPhone}

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrAssetsNotReady   = errors.New("not every image has finished uploading")
	ErrNoAssets         = errors.New("no images selected")
	ErrMissingField     = errors.New("required field is missing")
	ErrTermsNotAccepted = errors.New("terms must be accepted")
	ErrSubmissionFailed = errors.New("order submission failed, please try again")
	ErrSubmitInProgress = errors.New("order submission already in progress")
)

// AssetTracker is the view of the upload orchestrator the gate needs.
type AssetTracker interface {
	Snapshot() []asset.ImageAsset
	Remove(id string) (asset.ImageAsset, error)
}

// Cart is the view of the cart engine the gate needs.
type Cart interface {
	Lines() []cart.Line
	AddLines(lines []cart.Line) ([]cart.Line, error)
	Clear(ctx context.Context) error
}

// OrderCreator is the order-creation API. It returns the new order's ID.
type OrderCreator interface {
	Place(ctx context.Context, o *order.Order) (string, error)
}

// Form is what the buyer fills in at checkout.
type Form struct {
	Customer      order.Customer
	TermsAccepted bool
}

func (f Form) field(name string) string {
	switch name {
	case FieldName:
		return f.Customer.Name
	case FieldEmail:
		return f.Customer.Email
	case FieldPhone:
		return f.Customer.Phone
	case FieldNotes:
		return f.Customer.Notes
	}
	return ""
}

// Quote is the price breakdown shown before submission.
type Quote struct {
	Summary        []cart.Group
	Subtotal       decimal.Decimal
	CouponCode     string
	DiscountAmount decimal.Decimal
	FinalTotal     decimal.Decimal
}

type Config struct {
	RequiredFields []string
	Now            func() time.Time
}

// Gate decides when the cart may be turned into an order and performs the
// submission. The cart is cleared only after the order-creation call
// confirmed success.
type Gate struct {
	assets   AssetTracker
	cart     Cart
	coupons  coupon.Repository
	orders   OrderCreator
	logger   *zap.Logger
	required []string
	now      func() time.Time

	mu         sync.Mutex
	couponCode string
	submitting bool
}

func NewGate(assets AssetTracker, c Cart, coupons coupon.Repository, orders OrderCreator, cfg Config, logger *zap.Logger) *Gate {
	if cfg.RequiredFields == nil {
		cfg.RequiredFields = DefaultRequiredFields
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		assets:   assets,
		cart:     c,
		coupons:  coupons,
		orders:   orders,
		logger:   logger.Named("checkout"),
		required: cfg.RequiredFields,
		now:      cfg.Now,
	}
}

// AddUploadedAssets turns every selected image into a cart line for the given
// variant, using each image's quantity, and hands the images over to the cart.
// It refuses while any image is still pending, uploading or failed.
func (g *Gate) AddUploadedAssets(product catalog.ProductType, size string, orientation catalog.Orientation) ([]cart.Line, error) {
	variant, err := catalog.Lookup(product, size)
	if err != nil {
		return nil, err
	}

	assets := g.assets.Snapshot()
	if len(assets) == 0 {
		return nil, ErrNoAssets
	}
	lines := make([]cart.Line, 0, len(assets))
	for _, a := range assets {
		if a.State != asset.StateUploaded {
			return nil, fmt.Errorf("%w: %s is %s", ErrAssetsNotReady, a.Name, a.State)
		}
		lines = append(lines, cart.NewLine(variant, orientation, a.Quantity, a.RemoteRef))
	}

	added, err := g.cart.AddLines(lines)
	if err != nil {
		return nil, err
	}
	for _, a := range assets {
		if _, err := g.assets.Remove(a.ID); err != nil && !errors.Is(err, asset.ErrAssetNotFound) {
			g.logger.Warn("Failed to release added image", zap.String("asset_id", a.ID), zap.Error(err))
		}
	}

	g.logger.Info("Images added to cart",
		zap.String("product", string(product)),
		zap.String("size", size),
		zap.Int("lines", len(added)))
	return added, nil
}

// Check returns the first reason the form cannot be submitted, or nil.
func (g *Gate) Check(form Form) error {
	lines := g.cart.Lines()
	if len(lines) == 0 {
		return ErrEmptyCart
	}
	for _, l := range lines {
		if !cart.IsDurableRef(l.AssetRef) {
			return fmt.Errorf("%w: line %s", ErrAssetsNotReady, l.ID)
		}
	}
	if g.assets != nil {
		for _, a := range g.assets.Snapshot() {
			if a.State != asset.StateUploaded {
				return fmt.Errorf("%w: %s is %s", ErrAssetsNotReady, a.Name, a.State)
			}
		}
	}
	for _, f := range g.required {
		if strings.TrimSpace(form.field(f)) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, f)
		}
	}
	if !form.TermsAccepted {
		return ErrTermsNotAccepted
	}
	return nil
}

// CanSubmit is the single authoritative submission predicate.
func (g *Gate) CanSubmit(form Form) bool {
	return g.Check(form) == nil
}

// ApplyCoupon evaluates the code against the current cart and remembers it on
// success. A rejected code leaves the cart and any applied coupon unchanged.
func (g *Gate) ApplyCoupon(ctx context.Context, code string) (coupon.Result, error) {
	c, res, err := coupon.Apply(ctx, g.coupons, code, g.cart.Lines(), g.now())
	if err != nil {
		g.logger.Info("Coupon rejected", zap.String("coupon", coupon.NormalizeCode(code)), zap.Error(err))
		return coupon.Result{}, err
	}

	g.mu.Lock()
	g.couponCode = coupon.NormalizeCode(c.Code)
	g.mu.Unlock()

	g.logger.Info("Coupon applied",
		zap.String("coupon", c.Code),
		zap.String("discount", res.DiscountAmount.StringFixed(2)))
	return res, nil
}

func (g *Gate) RemoveCoupon() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.couponCode = ""
}

// CouponCode returns the applied coupon code, or "".
func (g *Gate) CouponCode() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.couponCode
}

// Quote prices the current cart. If the applied coupon no longer validates,
// the quote carries no discount and the coupon error is returned with it.
func (g *Gate) Quote(ctx context.Context) (Quote, error) {
	lines := g.cart.Lines()
	q := Quote{
		Summary:        cart.Summarize(lines),
		Subtotal:       cart.Subtotal(lines),
		DiscountAmount: decimal.Zero,
	}
	q.FinalTotal = q.Subtotal

	code := g.CouponCode()
	if code == "" {
		return q, nil
	}
	_, res, err := coupon.Apply(ctx, g.coupons, code, lines, g.now())
	if err != nil {
		return q, err
	}
	q.CouponCode = code
	q.DiscountAmount = res.DiscountAmount
	q.FinalTotal = res.FinalTotal
	return q, nil
}

// Submit creates the order from the current cart. The coupon is re-evaluated
// against the lines being frozen; if it no longer applies it is dropped and
// its error returned. A failed creation call leaves the cart untouched and
// returns ErrSubmissionFailed.
func (g *Gate) Submit(ctx context.Context, form Form) (*order.Order, error) {
	g.mu.Lock()
	if g.submitting {
		g.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	g.submitting = true
	code := g.couponCode
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.submitting = false
		g.mu.Unlock()
	}()

	if err := g.Check(form); err != nil {
		return nil, err
	}

	now := g.now()
	lines := g.cart.Lines()
	discount := decimal.Zero
	if code != "" {
		_, res, err := coupon.Apply(ctx, g.coupons, code, lines, now)
		if err != nil {
			var couponErr *coupon.Error
			if errors.As(err, &couponErr) {
				g.RemoveCoupon()
			}
			return nil, err
		}
		discount = res.DiscountAmount
	}

	customer := order.Customer{
		Name:  strings.TrimSpace(form.Customer.Name),
		Email: strings.TrimSpace(form.Customer.Email),
		Phone: strings.TrimSpace(form.Customer.Phone),
		Notes: strings.TrimSpace(form.Customer.Notes),
	}
	o, err := order.New(customer, lines, discount, code, now)
	if err != nil {
		return nil, err
	}

	id, err := g.orders.Place(ctx, o)
	if err != nil {
		g.logger.Error("Order creation failed",
			zap.String("order_number", o.OrderNumber),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	if id != "" {
		o.ID = id
	}

	if err := g.cart.Clear(ctx); err != nil {
		g.logger.Error("Order placed but cart could not be cleared",
			zap.String("order_number", o.OrderNumber),
			zap.Error(err))
	}
	g.RemoveCoupon()

	g.logger.Info("Order submitted",
		zap.String("order_number", o.OrderNumber),
		zap.String("total", o.FinalTotal.StringFixed(2)))
	return o.Clone(), nil
}
