package readmodel

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CollectionOrders    = "orders"
	CollectionSales     = "sales"
	CollectionSummary   = "sales_summary"
	CollectionCustomers = "customers"
	CollectionCoupons   = "coupon_usage"

	// CollectionRedemptions maps order ID to the coupon code counted for it.
	CollectionRedemptions = "coupon_redemptions"

	SummaryKey = "total"
)

// OrderItemReadModel represents an item in an order
type OrderItemReadModel struct {
	ProductType string          `json:"product_type"`
	Size        string          `json:"size"`
	Orientation string          `json:"orientation,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	AssetRef    string          `json:"asset_ref"`
}

// OrderReadModel is the admin view of an order
type OrderReadModel struct {
	ID               string               `json:"id"`
	OrderNumber      string               `json:"order_number"`
	CustomerName     string               `json:"customer_name"`
	CustomerEmail    string               `json:"customer_email"`
	CustomerPhone    string               `json:"customer_phone"`
	Notes            string               `json:"notes,omitempty"`
	Items            []OrderItemReadModel `json:"items"`
	OriginalSubtotal decimal.Decimal      `json:"original_subtotal"`
	DiscountAmount   decimal.Decimal      `json:"discount_amount"`
	FinalTotal       decimal.Decimal      `json:"final_total"`
	CouponCode       string               `json:"coupon_code,omitempty"`
	Status           string               `json:"status"`
	IsPaid           bool                 `json:"is_paid"`
	ProductionSteps  map[string]bool      `json:"production_steps"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// ProductSalesReadModel aggregates sold units per product type. Revenue is
// list price times quantity, before order discounts.
type ProductSalesReadModel struct {
	ProductType string          `json:"product_type"`
	Units       int             `json:"units"`
	Revenue     decimal.Decimal `json:"revenue"`
	Costs       decimal.Decimal `json:"costs"`
}

func (p ProductSalesReadModel) Profit() decimal.Decimal {
	return p.Revenue.Sub(p.Costs)
}

// SalesSummaryReadModel holds shop-wide totals. Revenue is what customers pay,
// after discounts.
type SalesSummaryReadModel struct {
	Orders    int             `json:"orders"`
	Revenue   decimal.Decimal `json:"revenue"`
	Discounts decimal.Decimal `json:"discounts"`
	Costs     decimal.Decimal `json:"costs"`
}

func (s SalesSummaryReadModel) Profit() decimal.Decimal {
	return s.Revenue.Sub(s.Costs)
}

// Margin is profit as a whole percentage of revenue, or 0 without revenue.
func (s SalesSummaryReadModel) Margin() int {
	if !s.Revenue.IsPositive() {
		return 0
	}
	return int(s.Profit().Div(s.Revenue).Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}

// CustomerReadModel tracks orders per customer phone number.
type CustomerReadModel struct {
	Phone      string          `json:"phone"`
	Name       string          `json:"name"`
	OrderIDs   []string        `json:"order_ids"`
	OrderDates map[string]bool `json:"order_dates"` // YYYY-MM-DD
}

// Returning reports whether the customer ordered on at least two different days.
func (c CustomerReadModel) Returning() bool {
	return len(c.OrderDates) >= 2
}

// CouponUsageReadModel tracks how often a coupon was redeemed.
type CouponUsageReadModel struct {
	Code          string          `json:"code"`
	Uses          int             `json:"uses"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
}
