package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/domain/coupon"
	"github.com/example/print-storefront/internal/domain/order"
)

var (
	ErrMissingOrderID    = errors.New("order id is required")
	ErrUnsupportedStatus = errors.New("unsupported target status")
	ErrInvalidCoupon     = errors.New("invalid coupon")
)

// OrderService is the write side of orders after checkout.
type OrderService interface {
	StartProcessing(ctx context.Context, orderID string) error
	Complete(ctx context.Context, orderID string) error
	Cancel(ctx context.Context, orderID, reason string) error
	MarkPaid(ctx context.Context, orderID string) error
	SetProductionStep(ctx context.Context, orderID string, step order.ProductionStep, done bool) error
}

// CouponRepository stores coupons maintained by the shop.
type CouponRepository interface {
	coupon.Repository
	Save(ctx context.Context, c *coupon.Coupon) error
}

// Handler executes shop-side commands. Read models pick the resulting
// events up asynchronously through the projector.
type Handler struct {
	orders  OrderService
	coupons CouponRepository
	logger  *zap.Logger
}

func NewHandler(orders OrderService, coupons CouponRepository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{orders: orders, coupons: coupons, logger: logger.Named("command")}
}

// UpdateOrderStatus moves an order along pending, processing, completed or
// cancels it.
func (h *Handler) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatus) error {
	if cmd.OrderID == "" {
		return ErrMissingOrderID
	}
	switch cmd.Status {
	case order.StatusProcessing:
		return h.orders.StartProcessing(ctx, cmd.OrderID)
	case order.StatusCompleted:
		return h.orders.Complete(ctx, cmd.OrderID)
	case order.StatusCancelled:
		return h.orders.Cancel(ctx, cmd.OrderID, cmd.Reason)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedStatus, cmd.Status)
	}
}

func (h *Handler) MarkOrderPaid(ctx context.Context, cmd MarkOrderPaid) error {
	if cmd.OrderID == "" {
		return ErrMissingOrderID
	}
	return h.orders.MarkPaid(ctx, cmd.OrderID)
}

func (h *Handler) UpdateProductionStep(ctx context.Context, cmd UpdateProductionStep) error {
	if cmd.OrderID == "" {
		return ErrMissingOrderID
	}
	return h.orders.SetProductionStep(ctx, cmd.OrderID, cmd.Step, cmd.Done)
}

// SaveCoupon validates and stores a coupon under its normalized code.
func (h *Handler) SaveCoupon(ctx context.Context, cmd SaveCoupon) (*coupon.Coupon, error) {
	c := cmd.Coupon
	c.Code = coupon.NormalizeCode(c.Code)
	if err := validateCoupon(&c); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if err := h.coupons.Save(ctx, &c); err != nil {
		return nil, fmt.Errorf("failed to save coupon %s: %w", c.Code, err)
	}
	h.logger.Info("Coupon saved",
		zap.String("coupon", c.Code),
		zap.String("discount_type", string(c.DiscountType)),
		zap.String("discount_value", c.DiscountValue.String()),
		zap.Bool("active", c.IsActive))
	return &c, nil
}

// DeactivateCoupon switches a coupon off without deleting it.
func (h *Handler) DeactivateCoupon(ctx context.Context, cmd DeactivateCoupon) error {
	code := coupon.NormalizeCode(cmd.Code)
	c, err := h.coupons.FindByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to look up coupon %s: %w", code, err)
	}
	if c == nil {
		return &coupon.Error{Kind: coupon.KindNotFound, Code: code}
	}
	c.IsActive = false
	if err := h.coupons.Save(ctx, c); err != nil {
		return fmt.Errorf("failed to save coupon %s: %w", code, err)
	}
	h.logger.Info("Coupon deactivated", zap.String("coupon", code))
	return nil
}

// ImportCoupons saves every coupon of a JSON array. It stops at the first
// invalid coupon and returns how many were saved before it.
func (h *Handler) ImportCoupons(ctx context.Context, r io.Reader) (int, error) {
	var coupons []coupon.Coupon
	if err := json.NewDecoder(r).Decode(&coupons); err != nil {
		return 0, fmt.Errorf("failed to parse coupons: %w", err)
	}
	for i, c := range coupons {
		if _, err := h.SaveCoupon(ctx, SaveCoupon{Coupon: c}); err != nil {
			return i, err
		}
	}
	return len(coupons), nil
}

var hundred = decimal.NewFromInt(100)

func validateCoupon(c *coupon.Coupon) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w %s: %s", ErrInvalidCoupon, c.Code, fmt.Sprintf(format, args...))
	}
	if c.Code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidCoupon)
	}
	switch c.DiscountType {
	case coupon.DiscountPercentage:
		if c.DiscountValue.GreaterThan(hundred) {
			return invalid("percentage above 100")
		}
	case coupon.DiscountFixed:
	default:
		return invalid("unknown discount type %q", c.DiscountType)
	}
	if !c.DiscountValue.IsPositive() {
		return invalid("discount value must be positive")
	}
	if c.MinOrderAmount.IsNegative() || c.MaxDiscountAmount.IsNegative() {
		return invalid("amounts must not be negative")
	}
	if c.UsageLimit < 0 || c.UsageCount < 0 {
		return invalid("usage counters must not be negative")
	}
	if c.ValidFrom != nil && c.ValidUntil != nil && c.ValidUntil.Before(*c.ValidFrom) {
		return invalid("valid until is before valid from")
	}
	for _, p := range c.ApplicableProducts {
		if !p.Valid() {
			return invalid("unknown product type %q", p)
		}
	}
	return nil
}
