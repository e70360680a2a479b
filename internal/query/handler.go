package query

import (
	"sort"
	"time"

	"github.com/example/print-storefront/internal/infrastructure/store"
	"github.com/example/print-storefront/internal/readmodel"
)

// Handler answers read-side questions about orders and sales from the
// projected read models.
type Handler struct {
	readStore store.ReadStoreInterface
}

func NewHandler(readStore store.ReadStoreInterface) *Handler {
	return &Handler{readStore: readStore}
}

// Orders
func (h *Handler) GetOrder(id string) (*readmodel.OrderReadModel, bool) {
	data, ok := h.readStore.Get(readmodel.CollectionOrders, id)
	if !ok {
		return nil, false
	}
	return data.(*readmodel.OrderReadModel), true
}

func (h *Handler) GetOrderByNumber(number string) (*readmodel.OrderReadModel, bool) {
	for _, o := range h.ListOrders(OrderFilter{}) {
		if o.OrderNumber == number {
			return o, true
		}
	}
	return nil, false
}

// OrderFilter narrows ListOrders. Zero fields match everything.
type OrderFilter struct {
	Status string
	Since  time.Time
	Unpaid bool
}

func (f OrderFilter) match(o *readmodel.OrderReadModel) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && o.CreatedAt.Before(f.Since) {
		return false
	}
	if f.Unpaid && o.IsPaid {
		return false
	}
	return true
}

// ListOrders returns matching orders, newest first.
func (h *Handler) ListOrders(filter OrderFilter) []*readmodel.OrderReadModel {
	orders := make([]*readmodel.OrderReadModel, 0, h.readStore.Count(readmodel.CollectionOrders))
	for _, item := range h.readStore.List(readmodel.CollectionOrders) {
		if o := item.(*readmodel.OrderReadModel); filter.match(o) {
			orders = append(orders, o)
		}
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders
}

// Sales

// SalesReport is a point-in-time copy of the sales read models.
type SalesReport struct {
	Summary            readmodel.SalesSummaryReadModel
	Products           []readmodel.ProductSalesReadModel
	Coupons            []readmodel.CouponUsageReadModel
	ReturningCustomers int
}

// SalesReport collects the current sales figures. Products and coupons are
// ordered by key.
func (h *Handler) SalesReport() SalesReport {
	var report SalesReport
	if v, ok := h.readStore.Get(readmodel.CollectionSummary, readmodel.SummaryKey); ok {
		report.Summary = *v.(*readmodel.SalesSummaryReadModel)
	}
	for _, v := range h.readStore.List(readmodel.CollectionSales) {
		report.Products = append(report.Products, *v.(*readmodel.ProductSalesReadModel))
	}
	for _, v := range h.readStore.List(readmodel.CollectionCoupons) {
		report.Coupons = append(report.Coupons, *v.(*readmodel.CouponUsageReadModel))
	}
	report.ReturningCustomers = len(h.ReturningCustomers())
	return report
}

// Customers

// ReturningCustomers lists customers who ordered on at least two different
// days, by phone number.
func (h *Handler) ReturningCustomers() []*readmodel.CustomerReadModel {
	var out []*readmodel.CustomerReadModel
	for _, v := range h.readStore.List(readmodel.CollectionCustomers) {
		if c := v.(*readmodel.CustomerReadModel); c.Returning() {
			out = append(out, c)
		}
	}
	return out
}
