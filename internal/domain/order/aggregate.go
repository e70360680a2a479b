package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/domain/aggregate"
	"github.com/example/print-storefront/internal/infrastructure/store"
)

const AggregateType = "Order"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderExists      = errors.New("order already placed")
	ErrInvalidStatus    = errors.New("invalid order status transition")
	ErrOrderAlreadyPaid = errors.New("order is already paid")
	ErrOrderCompleted   = errors.New("cannot cancel completed order")
	ErrOrderCancelled   = errors.New("order is already cancelled")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {}, // terminal state
	StatusCancelled:  {}, // terminal state
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	for _, s := range validTransitions[o.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// transitionError returns an appropriate error for an invalid transition
func (o *Order) transitionError(target Status) error {
	switch {
	case o.Status == StatusCancelled:
		return ErrOrderCancelled
	case o.Status == StatusCompleted && target == StatusCancelled:
		return ErrOrderCompleted
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
	}
}

// ApplyEvent applies a single event to the order state (implements aggregate.Aggregate)
func (o *Order) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventOrderPlaced:
		var data OrderPlaced
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.ID = data.OrderID
		o.OrderNumber = data.OrderNumber
		o.Customer = data.Customer
		o.Items = data.Items
		o.OriginalSubtotal = data.OriginalSubtotal
		o.DiscountAmount = data.DiscountAmount
		o.FinalTotal = data.FinalTotal
		o.CouponCode = data.CouponCode
		o.Status = StatusPending
		o.IsPaid = false
		o.ProductionSteps = ProductionSteps{}
		o.CreatedAt = data.PlacedAt
		o.UpdatedAt = data.PlacedAt
	case EventOrderStatusChanged:
		var data OrderStatusChanged
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = data.To
		o.UpdatedAt = data.ChangedAt
	case EventOrderPaid:
		var data OrderPaid
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.IsPaid = true
		o.UpdatedAt = data.PaidAt
	case EventProductionStepUpdated:
		var data ProductionStepUpdated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		if err := o.ProductionSteps.Set(data.Step, data.Done); err != nil {
			return err
		}
		o.UpdatedAt = data.UpdatedAt
	}
	o.Version = event.Version
	return nil
}

// Service is the order-creation API and the order-management operations
// that follow it.
type Service struct {
	eventStore store.EventStoreInterface
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(es store.EventStoreInterface, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{eventStore: es, logger: logger.Named("order"), now: time.Now}
}

// Place records a new order and returns its ID. The order is not mutated
// except for its Version.
func (s *Service) Place(ctx context.Context, o *Order) (string, error) {
	if o == nil || len(o.Items) == 0 {
		return "", ErrEmptyOrder
	}
	existing, err := s.eventStore.GetEvents(ctx, o.ID)
	if err != nil {
		return "", err
	}
	if len(existing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrOrderExists, o.ID)
	}

	event := OrderPlaced{
		OrderID:          o.ID,
		OrderNumber:      o.OrderNumber,
		Customer:         o.Customer,
		Items:            o.Items,
		OriginalSubtotal: o.OriginalSubtotal,
		DiscountAmount:   o.DiscountAmount,
		FinalTotal:       o.FinalTotal,
		CouponCode:       o.CouponCode,
		PlacedAt:         o.CreatedAt,
	}

	storedEvent, err := s.eventStore.Append(ctx, o.ID, AggregateType, EventOrderPlaced, event)
	if err != nil {
		return "", err
	}
	if storedEvent != nil {
		o.Version = storedEvent.Version
	}

	s.logger.Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.String("total", o.FinalTotal.StringFixed(2)))
	return o.ID, nil
}

// Get rebuilds an order from its events
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	order, found, err := aggregate.LoadAggregate(ctx, s.eventStore, AggregateType, orderID, func() *Order {
		return &Order{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) StartProcessing(ctx context.Context, orderID string) error {
	return s.transition(ctx, orderID, StatusProcessing, "")
}

func (s *Service) Complete(ctx context.Context, orderID string) error {
	return s.transition(ctx, orderID, StatusCompleted, "")
}

func (s *Service) Cancel(ctx context.Context, orderID, reason string) error {
	return s.transition(ctx, orderID, StatusCancelled, reason)
}

func (s *Service) transition(ctx context.Context, orderID string, target Status, reason string) error {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if !order.CanTransitionTo(target) {
		return order.transitionError(target)
	}

	event := OrderStatusChanged{
		OrderID:   orderID,
		From:      order.Status,
		To:        target,
		Reason:    reason,
		ChangedAt: s.now(),
	}
	if _, err := s.eventStore.Append(ctx, orderID, AggregateType, EventOrderStatusChanged, event); err != nil {
		return err
	}

	s.logger.Info("Order status changed",
		zap.String("order_id", orderID),
		zap.String("from", string(order.Status)),
		zap.String("to", string(target)))
	return nil
}

// MarkPaid records the payment of an order
func (s *Service) MarkPaid(ctx context.Context, orderID string) error {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == StatusCancelled {
		return ErrOrderCancelled
	}
	if order.IsPaid {
		return ErrOrderAlreadyPaid
	}

	event := OrderPaid{
		OrderID: orderID,
		PaidAt:  s.now(),
	}
	_, err = s.eventStore.Append(ctx, orderID, AggregateType, EventOrderPaid, event)
	return err
}

// SetProductionStep ticks or clears one checklist flag
func (s *Service) SetProductionStep(ctx context.Context, orderID string, step ProductionStep, done bool) error {
	var probe ProductionSteps
	if err := probe.Set(step, done); err != nil {
		return err
	}

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == StatusCancelled {
		return ErrOrderCancelled
	}

	event := ProductionStepUpdated{
		OrderID:   orderID,
		Step:      step,
		Done:      done,
		UpdatedAt: s.now(),
	}
	_, err = s.eventStore.Append(ctx, orderID, AggregateType, EventProductionStepUpdated, event)
	return err
}
