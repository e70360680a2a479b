package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced           = "OrderPlaced"
	EventOrderStatusChanged    = "OrderStatusChanged"
	EventOrderPaid             = "OrderPaid"
	EventProductionStepUpdated = "ProductionStepUpdated"
)

type OrderPlaced struct {
	OrderID          string          `json:"order_id"`
	OrderNumber      string          `json:"order_number"`
	Customer         Customer        `json:"customer"`
	Items            []Item          `json:"items"`
	OriginalSubtotal decimal.Decimal `json:"original_subtotal"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	FinalTotal       decimal.Decimal `json:"final_total"`
	CouponCode       *string         `json:"coupon_code,omitempty"`
	PlacedAt         time.Time       `json:"placed_at"`
}

type OrderStatusChanged struct {
	OrderID   string    `json:"order_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

type OrderPaid struct {
	OrderID string    `json:"order_id"`
	PaidAt  time.Time `json:"paid_at"`
}

type ProductionStepUpdated struct {
	OrderID   string         `json:"order_id"`
	Step      ProductionStep `json:"step"`
	Done      bool           `json:"done"`
	UpdatedAt time.Time      `json:"updated_at"`
}
