// Command admin runs shop-side commands against the configured stores:
// order status, payment and production checklist updates, coupon
// maintenance and sales reports rebuilt from the event log.
//
//	admin orders --status pending --unpaid
//	admin status BL240615123 processing
//	admin step BL240615123 printed
//	admin paid BL240615123
//	admin coupons import coupons.json
//	admin coupons off SUMMER
//	admin report
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/bootstrap"
	"github.com/example/print-storefront/internal/command"
	"github.com/example/print-storefront/internal/config"
	"github.com/example/print-storefront/internal/domain/order"
	"github.com/example/print-storefront/internal/infrastructure/store"
	"github.com/example/print-storefront/internal/logging"
	"github.com/example/print-storefront/internal/projection"
	"github.com/example/print-storefront/internal/query"
)

var errUsage = errors.New(`usage: admin <orders|report|status|paid|step|coupons> [args]`)

type app struct {
	commands *command.Handler
	queries  *query.Handler
	events   store.EventStoreInterface
	logger   *zap.Logger
	rebuilt  bool
	store    *store.ReadStore
}

func main() {
	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.EventStore == config.StoreMemory {
		logger.Warn("EVENT_STORE is memory, orders from other processes are not visible")
	}

	b, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open backends", zap.Error(err))
	}
	defer b.Close(logger)

	readStore := store.NewReadStore()
	a := &app{
		commands: command.NewHandler(order.NewService(b.Events, logger), b.Coupons, logger),
		queries:  query.NewHandler(readStore),
		events:   b.Events,
		logger:   logger,
		store:    readStore,
	}

	if err := a.run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		logger.Error("Command failed", zap.Error(err))
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	name, args := args[0], args[1:]

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	status := fs.String("status", "", "only orders with this status")
	unpaid := fs.Bool("unpaid", false, "only unpaid orders")
	reason := fs.String("reason", "", "cancellation reason")
	undo := fs.Bool("undo", false, "clear the production step instead of ticking it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	args = fs.Args()

	switch {
	case name == "orders":
		return a.listOrders(ctx, query.OrderFilter{Status: *status, Unpaid: *unpaid})
	case name == "report":
		return a.report(ctx)
	case name == "status" && len(args) == 2:
		id, err := a.resolveOrder(ctx, args[0])
		if err != nil {
			return err
		}
		return a.commands.UpdateOrderStatus(ctx, command.UpdateOrderStatus{
			OrderID: id, Status: order.Status(args[1]), Reason: *reason,
		})
	case name == "paid" && len(args) == 1:
		id, err := a.resolveOrder(ctx, args[0])
		if err != nil {
			return err
		}
		return a.commands.MarkOrderPaid(ctx, command.MarkOrderPaid{OrderID: id})
	case name == "step" && len(args) == 2:
		id, err := a.resolveOrder(ctx, args[0])
		if err != nil {
			return err
		}
		return a.commands.UpdateProductionStep(ctx, command.UpdateProductionStep{
			OrderID: id, Step: order.ProductionStep(args[1]), Done: !*undo,
		})
	case name == "coupons" && len(args) == 2 && args[0] == "import":
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := a.commands.ImportCoupons(ctx, f)
		fmt.Printf("Imported %d coupons\n", n)
		return err
	case name == "coupons" && len(args) == 2 && args[0] == "off":
		return a.commands.DeactivateCoupon(ctx, command.DeactivateCoupon{Code: args[1]})
	default:
		return errUsage
	}
}

// rebuild replays the event log into the local read store once per run.
func (a *app) rebuild(ctx context.Context) error {
	if a.rebuilt {
		return nil
	}
	n, err := projection.NewProjector(a.store, nil, a.logger).Rebuild(ctx, a.events)
	if err != nil {
		return fmt.Errorf("failed to replay events: %w", err)
	}
	a.logger.Debug("Replayed event log", zap.Int("events", n))
	a.rebuilt = true
	return nil
}

// resolveOrder accepts an order number or an order ID.
func (a *app) resolveOrder(ctx context.Context, ref string) (string, error) {
	if err := a.rebuild(ctx); err != nil {
		return "", err
	}
	if o, ok := a.queries.GetOrderByNumber(ref); ok {
		return o.ID, nil
	}
	if _, ok := a.queries.GetOrder(ref); ok {
		return ref, nil
	}
	return "", fmt.Errorf("%w: %s", order.ErrOrderNotFound, ref)
}

func (a *app) listOrders(ctx context.Context, filter query.OrderFilter) error {
	if err := a.rebuild(ctx); err != nil {
		return err
	}
	for _, o := range a.queries.ListOrders(filter) {
		paid := "unpaid"
		if o.IsPaid {
			paid = "paid"
		}
		fmt.Printf("%s  %s  %-10s %-6s %8s  %s <%s>\n",
			o.OrderNumber, o.CreatedAt.Format("2006-01-02 15:04"), o.Status, paid,
			o.FinalTotal.StringFixed(2), o.CustomerName, o.CustomerPhone)
	}
	return nil
}

func (a *app) report(ctx context.Context) error {
	if err := a.rebuild(ctx); err != nil {
		return err
	}
	r := a.queries.SalesReport()
	fmt.Printf("Orders: %d  Revenue: %s  Discounts: %s  Costs: %s  Profit: %s (%d%%)\n",
		r.Summary.Orders, r.Summary.Revenue.StringFixed(2), r.Summary.Discounts.StringFixed(2),
		r.Summary.Costs.StringFixed(2), r.Summary.Profit().StringFixed(2), r.Summary.Margin())
	for _, p := range r.Products {
		fmt.Printf("  %-8s units %4d  revenue %8s  profit %8s\n",
			p.ProductType, p.Units, p.Revenue.StringFixed(2), p.Profit().StringFixed(2))
	}
	for _, c := range r.Coupons {
		fmt.Printf("  coupon %-12s uses %3d  discount %8s\n", c.Code, c.Uses, c.TotalDiscount.StringFixed(2))
	}
	fmt.Printf("Returning customers: %d\n", r.ReturningCustomers)
	return nil
}
