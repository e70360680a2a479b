package projection

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/domain/catalog"
	"github.com/example/print-storefront/internal/domain/order"
	"github.com/example/print-storefront/internal/infrastructure/store"
	"github.com/example/print-storefront/internal/readmodel"
)

// UsageRecorder is the backend bookkeeping for coupon redemptions.
// store.CouponStore and store.PostgresCouponStore implement it.
type UsageRecorder interface {
	IncrementUsage(ctx context.Context, code string) error
}

type Projector struct {
	readStore store.ReadStoreInterface
	usage     UsageRecorder
	logger    *zap.Logger
}

// NewProjector creates a projector. usage may be nil when coupon usage is
// counted elsewhere.
func NewProjector(readStore store.ReadStoreInterface, usage UsageRecorder, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{readStore: readStore, usage: usage, logger: logger.Named("projector")}
}

// HandleEvent applies one live event, including side effects such as
// counting coupon usage.
func (p *Projector) HandleEvent(ctx context.Context, event store.Event) error {
	return p.apply(ctx, event, true)
}

// Rebuild replays the whole event log into the read store without side
// effects.
func (p *Projector) Rebuild(ctx context.Context, es store.EventStoreInterface) (int, error) {
	events, err := es.GetAllEvents(ctx)
	if err != nil {
		return 0, err
	}
	for _, event := range events {
		if err := p.apply(ctx, event, false); err != nil {
			p.logger.Warn("Skipping event during rebuild",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Error(err))
		}
	}
	return len(events), nil
}

func (p *Projector) apply(ctx context.Context, event store.Event, live bool) error {
	if event.AggregateType != order.AggregateType {
		return nil
	}
	p.logger.Debug("Received event",
		zap.String("event_type", event.EventType),
		zap.String("aggregate_id", event.AggregateID))

	switch event.EventType {
	case order.EventOrderPlaced:
		var e order.OrderPlaced
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.orderPlaced(ctx, e, live)

	case order.EventOrderStatusChanged:
		var e order.OrderStatusChanged
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.statusChanged(e)

	case order.EventOrderPaid:
		var e order.OrderPaid
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.updateOrder(e.OrderID, func(o *readmodel.OrderReadModel) {
			o.IsPaid = true
			o.UpdatedAt = e.PaidAt
		})

	case order.EventProductionStepUpdated:
		var e order.ProductionStepUpdated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.updateOrder(e.OrderID, func(o *readmodel.OrderReadModel) {
			o.ProductionSteps[string(e.Step)] = e.Done
			o.UpdatedAt = e.UpdatedAt
		})
	}
	return nil
}

// orderPlaced projects a new order once. Coupon usage is counted separately
// per order on live delivery, so an order first seen during Rebuild is still
// counted when its live event arrives.
func (p *Projector) orderPlaced(ctx context.Context, e order.OrderPlaced, live bool) error {
	if !p.projectOrder(e) {
		p.logger.Debug("Order already projected", zap.String("order_id", e.OrderID))
	}

	if !live || p.usage == nil || e.CouponCode == nil {
		return nil
	}
	if _, counted := p.readStore.Get(readmodel.CollectionRedemptions, e.OrderID); counted {
		return nil
	}
	if err := p.usage.IncrementUsage(ctx, *e.CouponCode); err != nil {
		p.logger.Error("Failed to record coupon usage",
			zap.String("coupon", *e.CouponCode),
			zap.String("order_number", e.OrderNumber),
			zap.Error(err))
		return err
	}
	p.readStore.Set(readmodel.CollectionRedemptions, e.OrderID, *e.CouponCode)
	return nil
}

// projectOrder stores the order and its sales once, reporting false when the
// order was already known.
func (p *Projector) projectOrder(e order.OrderPlaced) bool {
	items := make([]readmodel.OrderItemReadModel, len(e.Items))
	for i, item := range e.Items {
		items[i] = readmodel.OrderItemReadModel{
			ProductType: string(item.ProductType),
			Size:        item.Size,
			Orientation: string(item.Orientation),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			UnitCost:    catalog.UnitCost(item.ProductType, item.Size),
			AssetRef:    item.AssetRef,
		}
	}
	o := &readmodel.OrderReadModel{
		ID:               e.OrderID,
		OrderNumber:      e.OrderNumber,
		CustomerName:     e.Customer.Name,
		CustomerEmail:    e.Customer.Email,
		CustomerPhone:    e.Customer.Phone,
		Notes:            e.Customer.Notes,
		Items:            items,
		OriginalSubtotal: e.OriginalSubtotal,
		DiscountAmount:   e.DiscountAmount,
		FinalTotal:       e.FinalTotal,
		Status:           string(order.StatusPending),
		ProductionSteps: map[string]bool{
			string(order.StepImagePrepared): false,
			string(order.StepPrinted):       false,
			string(order.StepCut):           false,
			string(order.StepFinished):      false,
		},
		CreatedAt: e.PlacedAt,
		UpdatedAt: e.PlacedAt,
	}
	if e.CouponCode != nil {
		o.CouponCode = *e.CouponCode
	}
	if !p.readStore.Upsert(readmodel.CollectionOrders, o.ID, func(_ any, exists bool) any {
		if exists {
			return nil
		}
		return o
	}) {
		return false
	}
	p.addSales(o, 1)
	p.recordCustomer(o)
	if o.CouponCode != "" {
		p.recordCoupon(o)
	}
	return true
}

// updateOrder mutates a projected order in place. Events for unknown orders
// are ignored.
func (p *Projector) updateOrder(id string, fn func(o *readmodel.OrderReadModel)) {
	p.readStore.Upsert(readmodel.CollectionOrders, id, func(current any, exists bool) any {
		if !exists {
			return nil
		}
		o := current.(*readmodel.OrderReadModel)
		fn(o)
		return o
	})
}

func (p *Projector) statusChanged(e order.OrderStatusChanged) {
	var cancelled *readmodel.OrderReadModel
	p.updateOrder(e.OrderID, func(o *readmodel.OrderReadModel) {
		if e.To == order.StatusCancelled && o.Status != string(order.StatusCancelled) {
			cancelled = o
		}
		o.Status = string(e.To)
		o.UpdatedAt = e.ChangedAt
	})
	// Cancelled orders no longer count towards sales.
	if cancelled != nil {
		p.addSales(cancelled, -1)
	}
}

// addSales adds (sign 1) or removes (sign -1) an order's contribution.
func (p *Projector) addSales(o *readmodel.OrderReadModel, sign int) {
	s := decimal.NewFromInt(int64(sign))
	orderCost := decimal.Zero

	for _, item := range o.Items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		revenue := item.UnitPrice.Mul(qty).Mul(s)
		cost := item.UnitCost.Mul(qty).Mul(s)
		orderCost = orderCost.Add(cost)

		p.readStore.Upsert(readmodel.CollectionSales, item.ProductType, func(current any, exists bool) any {
			ps := &readmodel.ProductSalesReadModel{ProductType: item.ProductType}
			if exists {
				ps = current.(*readmodel.ProductSalesReadModel)
			}
			ps.Units += item.Quantity * sign
			ps.Revenue = ps.Revenue.Add(revenue)
			ps.Costs = ps.Costs.Add(cost)
			return ps
		})
	}

	p.readStore.Upsert(readmodel.CollectionSummary, readmodel.SummaryKey, func(current any, exists bool) any {
		sum := &readmodel.SalesSummaryReadModel{}
		if exists {
			sum = current.(*readmodel.SalesSummaryReadModel)
		}
		sum.Orders += sign
		sum.Revenue = sum.Revenue.Add(o.FinalTotal.Mul(s))
		sum.Discounts = sum.Discounts.Add(o.DiscountAmount.Mul(s))
		sum.Costs = sum.Costs.Add(orderCost)
		return sum
	})
}

func (p *Projector) recordCustomer(o *readmodel.OrderReadModel) {
	key := phoneKey(o.CustomerPhone)
	if key == "" {
		return
	}
	day := o.CreatedAt.UTC().Format(time.DateOnly)
	p.readStore.Upsert(readmodel.CollectionCustomers, key, func(current any, exists bool) any {
		c := &readmodel.CustomerReadModel{Phone: key, OrderDates: map[string]bool{}}
		if exists {
			c = current.(*readmodel.CustomerReadModel)
		}
		c.Name = o.CustomerName
		c.OrderIDs = append(c.OrderIDs, o.ID)
		c.OrderDates[day] = true
		return c
	})
}

func (p *Projector) recordCoupon(o *readmodel.OrderReadModel) {
	p.readStore.Upsert(readmodel.CollectionCoupons, o.CouponCode, func(current any, exists bool) any {
		c := &readmodel.CouponUsageReadModel{Code: o.CouponCode}
		if exists {
			c = current.(*readmodel.CouponUsageReadModel)
		}
		c.Uses++
		c.TotalDiscount = c.TotalDiscount.Add(o.DiscountAmount)
		return c
	})
}

func phoneKey(phone string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
}
