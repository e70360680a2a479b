package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/domain/order"
	"github.com/example/print-storefront/internal/email"
	"github.com/example/print-storefront/internal/infrastructure/store"
)

// Mailer is implemented by *email.Service.
type Mailer interface {
	SendOrderConfirmation(to string, order email.OrderMail) error
	SendNewOrderNotice(to string, order email.OrderMail) error
}

// Handler sends order emails for placed orders. Email failures never affect
// the order itself.
type Handler struct {
	mailer        Mailer
	businessEmail string
	countryCode   string
	logger        *zap.Logger
}

// NewHandler creates a notification handler. An empty businessEmail disables
// the shop notice.
func NewHandler(mailer Mailer, businessEmail, countryCode string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		mailer:        mailer,
		businessEmail: businessEmail,
		countryCode:   countryCode,
		logger:        logger.Named("notifier"),
	}
}

// HandleEvent processes one stored event. Only OrderPlaced sends mail.
func (h *Handler) HandleEvent(ctx context.Context, event store.Event) error {
	if event.EventType != order.EventOrderPlaced {
		return nil
	}

	var e order.OrderPlaced
	if err := json.Unmarshal(event.Data, &e); err != nil {
		h.logger.Error("Failed to unmarshal OrderPlaced event",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return err
	}

	h.logger.Info("Processing OrderPlaced event",
		zap.String("order_id", e.OrderID),
		zap.String("order_number", e.OrderNumber))

	mail := BuildOrderMail(e, h.countryCode)
	var errs []error

	if e.Customer.Email != "" {
		if err := h.mailer.SendOrderConfirmation(e.Customer.Email, mail); err != nil {
			h.logger.Error("Failed to send confirmation", zap.String("order_number", e.OrderNumber), zap.Error(err))
			errs = append(errs, fmt.Errorf("confirmation: %w", err))
		} else {
			h.logger.Info("Order confirmation sent", zap.String("order_number", e.OrderNumber))
		}
	}

	if h.businessEmail != "" {
		if err := h.mailer.SendNewOrderNotice(h.businessEmail, mail); err != nil {
			h.logger.Error("Failed to send new order notice", zap.String("order_number", e.OrderNumber), zap.Error(err))
			errs = append(errs, fmt.Errorf("notice: %w", err))
		} else {
			h.logger.Info("New order notice sent", zap.String("order_number", e.OrderNumber))
		}
	}

	return errors.Join(errs...)
}

type groupKey struct {
	product     string
	size        string
	orientation string
	unitPrice   string
}

// BuildOrderMail renders the event into email data, grouping items of the
// same variant and price.
func BuildOrderMail(e order.OrderPlaced, countryCode string) email.OrderMail {
	mail := email.OrderMail{
		OrderNumber:   e.OrderNumber,
		CustomerName:  e.Customer.Name,
		CustomerEmail: e.Customer.Email,
		CustomerPhone: e.Customer.Phone,
		Notes:         e.Customer.Notes,
		Subtotal:      e.OriginalSubtotal.StringFixed(2),
		FinalTotal:    e.FinalTotal.StringFixed(2),
		WhatsAppLink:  email.WhatsAppLink(e.Customer.Phone, countryCode),
	}
	if e.DiscountAmount.IsPositive() {
		mail.Discount = e.DiscountAmount.StringFixed(2)
		if e.CouponCode != nil {
			mail.CouponCode = *e.CouponCode
		}
	}

	index := make(map[groupKey]int)
	var items []order.Item
	for _, item := range e.Items {
		key := groupKey{
			product:     string(item.ProductType),
			size:        item.Size,
			orientation: string(item.Orientation),
			unitPrice:   item.UnitPrice.String(),
		}
		if i, ok := index[key]; ok {
			items[i].Quantity += item.Quantity
			continue
		}
		index[key] = len(items)
		items = append(items, item)
	}

	for _, item := range items {
		desc := fmt.Sprintf("%s %s", item.ProductType.Label(), item.Size)
		if item.Orientation != "" {
			desc += fmt.Sprintf(" (%s)", item.Orientation)
		}
		mail.Items = append(mail.Items, email.ItemRow{
			Description: desc,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			Total:       item.Total().StringFixed(2),
		})
	}
	return mail
}
