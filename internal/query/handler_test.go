package query

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/print-storefront/internal/infrastructure/store/mocks"
	"github.com/example/print-storefront/internal/readmodel"
)

var day = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestQueryHandler() (*Handler, *mocks.MockReadStore) {
	readStore := mocks.NewMockReadStore()
	return NewHandler(readStore), readStore
}

func seedOrder(rs *mocks.MockReadStore, id, number, status string, paid bool, created time.Time) {
	rs.SetData(readmodel.CollectionOrders, id, &readmodel.OrderReadModel{
		ID:          id,
		OrderNumber: number,
		Status:      status,
		IsPaid:      paid,
		CreatedAt:   created,
	})
}

// ============================================
// Order Query Tests
// ============================================

func TestHandler_GetOrder(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	seedOrder(readStore, "order-1", "BL240615001", "pending", false, day)

	o, found := handler.GetOrder("order-1")
	require.True(t, found)
	assert.Equal(t, "BL240615001", o.OrderNumber)

	o, found = handler.GetOrder("missing")
	assert.False(t, found)
	assert.Nil(t, o)
}

func TestHandler_GetOrderByNumber(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	seedOrder(readStore, "order-1", "BL240615001", "pending", false, day)
	seedOrder(readStore, "order-2", "BL240615002", "pending", false, day)

	o, found := handler.GetOrderByNumber("BL240615002")
	require.True(t, found)
	assert.Equal(t, "order-2", o.ID)

	_, found = handler.GetOrderByNumber("BL000000000")
	assert.False(t, found)
}

func TestHandler_ListOrders(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	seedOrder(readStore, "a", "BL1", "pending", false, day.Add(-48*time.Hour))
	seedOrder(readStore, "b", "BL2", "completed", true, day.Add(-24*time.Hour))
	seedOrder(readStore, "c", "BL3", "pending", true, day)

	tests := []struct {
		name   string
		filter OrderFilter
		want   []string
	}{
		{"all newest first", OrderFilter{}, []string{"c", "b", "a"}},
		{"by status", OrderFilter{Status: "pending"}, []string{"c", "a"}},
		{"since", OrderFilter{Since: day.Add(-24 * time.Hour)}, []string{"c", "b"}},
		{"unpaid", OrderFilter{Unpaid: true}, []string{"a"}},
		{"no match", OrderFilter{Status: "cancelled"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, o := range handler.ListOrders(tt.filter) {
				ids = append(ids, o.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

// ============================================
// Sales Query Tests
// ============================================

func TestHandler_SalesReport(t *testing.T) {
	handler, readStore := newTestQueryHandler()
	readStore.SetData(readmodel.CollectionSummary, readmodel.SummaryKey, &readmodel.SalesSummaryReadModel{
		Orders:  2,
		Revenue: decimal.NewFromInt(30),
		Costs:   decimal.NewFromInt(6),
	})
	readStore.SetData(readmodel.CollectionSales, "photo", &readmodel.ProductSalesReadModel{ProductType: "photo", Units: 4})
	readStore.SetData(readmodel.CollectionSales, "block", &readmodel.ProductSalesReadModel{ProductType: "block", Units: 1})
	readStore.SetData(readmodel.CollectionCoupons, "SAVE2", &readmodel.CouponUsageReadModel{Code: "SAVE2", Uses: 2})
	readStore.SetData(readmodel.CollectionCustomers, "0541234567", &readmodel.CustomerReadModel{
		Phone:      "0541234567",
		OrderDates: map[string]bool{"2024-06-14": true, "2024-06-15": true},
	})
	readStore.SetData(readmodel.CollectionCustomers, "0529876543", &readmodel.CustomerReadModel{
		Phone:      "0529876543",
		OrderDates: map[string]bool{"2024-06-15": true},
	})

	report := handler.SalesReport()

	assert.Equal(t, 2, report.Summary.Orders)
	assert.Equal(t, "24", report.Summary.Profit().String())
	assert.Equal(t, 80, report.Summary.Margin())
	require.Len(t, report.Products, 2)
	assert.Equal(t, "block", report.Products[0].ProductType)
	assert.Equal(t, "photo", report.Products[1].ProductType)
	require.Len(t, report.Coupons, 1)
	assert.Equal(t, 2, report.Coupons[0].Uses)
	assert.Equal(t, 1, report.ReturningCustomers)

	returning := handler.ReturningCustomers()
	require.Len(t, returning, 1)
	assert.Equal(t, "0541234567", returning[0].Phone)
}

func TestHandler_SalesReport_Empty(t *testing.T) {
	handler, _ := newTestQueryHandler()

	report := handler.SalesReport()

	assert.Zero(t, report.Summary.Orders)
	assert.Empty(t, report.Products)
	assert.Zero(t, report.ReturningCustomers)
}
