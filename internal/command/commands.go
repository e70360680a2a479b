package command

import (
	"github.com/example/print-storefront/internal/domain/coupon"
	"github.com/example/print-storefront/internal/domain/order"
)

// Order Commands
type UpdateOrderStatus struct {
	OrderID string       `json:"order_id"`
	Status  order.Status `json:"status"`
	Reason  string       `json:"reason,omitempty"`
}

type MarkOrderPaid struct {
	OrderID string `json:"order_id"`
}

type UpdateProductionStep struct {
	OrderID string               `json:"order_id"`
	Step    order.ProductionStep `json:"step"`
	Done    bool                 `json:"done"`
}

// Coupon Commands
type SaveCoupon struct {
	Coupon coupon.Coupon `json:"coupon"`
}

type DeactivateCoupon struct {
	Code string `json:"code"`
}
