// Command storefront uploads photos, adds them to the persistent cart as
// print products, optionally applies a coupon and places the order.
//
//	storefront --product magnet --size 10x15 --quantity 2 cat.jpg dog.jpg
//	storefront --coupon SUMMER --name "Ana" --email ana@example.com \
//	    --phone 054-1234567 --accept-terms
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/example/print-storefront/internal/bootstrap"
	"github.com/example/print-storefront/internal/checkout"
	"github.com/example/print-storefront/internal/command"
	"github.com/example/print-storefront/internal/config"
	"github.com/example/print-storefront/internal/domain/asset"
	"github.com/example/print-storefront/internal/domain/cart"
	"github.com/example/print-storefront/internal/domain/catalog"
	"github.com/example/print-storefront/internal/domain/order"
	"github.com/example/print-storefront/internal/infrastructure/blob"
	"github.com/example/print-storefront/internal/logging"
)

type options struct {
	product     string
	size        string
	orientation string
	quantity    int
	coupon      string
	name        string
	email       string
	phone       string
	notes       string
	acceptTerms bool
	seedCoupons string
	clearCart   bool
}

var settingsFlags = []string{"log-level", "event-store", "snapshot-store", "coupon-store", "upload-concurrency"}

func parseFlags(args []string) (*options, []string, *viper.Viper, error) {
	fs := pflag.NewFlagSet("storefront", pflag.ContinueOnError)
	opts := &options{}
	fs.StringVar(&opts.product, "product", string(catalog.ProductPhoto), "product type: block, magnet, photo, bookmark")
	fs.StringVar(&opts.size, "size", "10x15", "product size")
	fs.StringVar(&opts.orientation, "orientation", "", "portrait or landscape (blocks only)")
	fs.IntVar(&opts.quantity, "quantity", 1, "copies per image")
	fs.StringVar(&opts.coupon, "coupon", "", "coupon code to apply")
	fs.StringVar(&opts.name, "name", "", "customer name")
	fs.StringVar(&opts.email, "email", "", "customer email")
	fs.StringVar(&opts.phone, "phone", "", "customer phone")
	fs.StringVar(&opts.notes, "notes", "", "order notes")
	fs.BoolVar(&opts.acceptTerms, "accept-terms", false, "accept the terms and place the order")
	fs.StringVar(&opts.seedCoupons, "seed-coupons", "", "JSON file of coupons to load before checkout")
	fs.BoolVar(&opts.clearCart, "clear-cart", false, "empty the saved cart and exit")
	fs.String("log-level", "info", "log level")
	fs.String("event-store", config.StoreMemory, "event store: memory, postgres, dynamo")
	fs.String("snapshot-store", config.StoreMemory, "cart snapshot store: memory, redis, dynamo")
	fs.String("coupon-store", config.StoreMemory, "coupon store: memory, postgres")
	fs.Int("upload-concurrency", 4, "parallel uploads (0 = unbounded)")

	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}

	// Only explicitly set settings flags override the environment.
	v := viper.New()
	for _, name := range settingsFlags {
		if f := fs.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(strings.ToUpper(strings.ReplaceAll(name, "-", "_")), f); err != nil {
				return nil, nil, nil, err
			}
		}
	}
	return opts, fs.Args(), v, nil
}

func main() {
	opts, files, v, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(v)
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

	if err := run(ctx, cfg, opts, files, logger); err != nil {
		logger.Error("Storefront failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts *options, files []string, logger *zap.Logger) error {
	product, err := catalog.ParseProductType(opts.product)
	if err != nil {
		return err
	}
	variant, err := catalog.Lookup(product, opts.size)
	if err != nil {
		return err
	}
	orientation, err := catalog.ParseOrientation(opts.orientation)
	if err != nil {
		return err
	}
	orientation = variant.NormalizeOrientation(orientation)

	b, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close(logger)
	orders := order.NewService(b.Events, logger)

	if opts.seedCoupons != "" {
		if err := seedCoupons(ctx, command.NewHandler(orders, b.Coupons, logger), opts.seedCoupons, logger); err != nil {
			return err
		}
	}

	engine := cart.NewEngine(b.Snapshots, cart.Options{Key: cfg.Cart.SnapshotKey, Debounce: cfg.Cart.Debounce}, logger)
	if err := engine.Load(ctx); err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Failed to save cart", zap.Error(err))
		}
	}()

	if opts.clearCart {
		return engine.Clear(ctx)
	}

	var uploader asset.Uploader = noUploader{}
	if len(files) > 0 {
		bucket, disconnect, err := blob.ConnectGridFS(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Bucket)
		if err != nil {
			return err
		}
		defer func() {
			if err := disconnect(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("Failed to disconnect from MongoDB", zap.Error(err))
			}
		}()
		uploader = blob.NewGridFSUploader(bucket, cfg.Mongo.PublicBaseURL, variant.StorageName, logger)
	}

	orchestrator, err := uploadFiles(ctx, cfg, uploader, files, opts.quantity, logger)
	if err != nil {
		return err
	}
	defer orchestrator.Close()

	gate := checkout.NewGate(orchestrator, engine, b.Coupons, orders, checkout.Config{}, logger)

	if len(files) > 0 && len(orchestrator.Snapshot()) > 0 {
		if _, err := gate.AddUploadedAssets(product, variant.Size, orientation); err != nil {
			return err
		}
	}

	if opts.coupon != "" {
		if _, err := gate.ApplyCoupon(ctx, opts.coupon); err != nil {
			logger.Warn("Coupon not applied", zap.Error(err))
		}
	}

	quote, err := gate.Quote(ctx)
	if err != nil {
		logger.Warn("Applied coupon no longer valid", zap.Error(err))
	}
	printQuote(quote)

	form := checkout.Form{
		Customer: order.Customer{
			Name:  opts.name,
			Email: opts.email,
			Phone: opts.phone,
			Notes: opts.notes,
		},
		TermsAccepted: opts.acceptTerms,
	}
	if err := gate.Check(form); err != nil {
		fmt.Printf("Cart saved. Not submitting: %v\n", err)
		return nil
	}

	placed, err := gate.Submit(ctx, form)
	if err != nil {
		return err
	}
	fmt.Printf("Order %s placed. Total to pay: %s\n", placed.OrderNumber, placed.FinalTotal.StringFixed(2))
	return nil
}

// uploadFiles uploads every file and waits for all of them to settle. Images
// that still fail after all attempts are dropped with a warning so the rest
// can be ordered.
func uploadFiles(ctx context.Context, cfg *config.Config, uploader asset.Uploader, files []string, quantity int, logger *zap.Logger) (*asset.Orchestrator, error) {
	orchestratorCfg := asset.DefaultConfig()
	orchestratorCfg.MaxAttempts = cfg.Upload.MaxAttempts
	orchestratorCfg.RetryBaseDelay = cfg.Upload.RetryDelay
	orchestratorCfg.MaxConcurrent = cfg.Upload.Concurrency
	orchestrator := asset.NewOrchestrator(uploader, orchestratorCfg, logger)

	orchestrator.OnChange(func(assets []asset.ImageAsset) {
		for _, a := range assets {
			logger.Debug("Upload progress",
				zap.String("file", a.Name),
				zap.String("state", string(a.State)),
				zap.Int("percent", a.Percent()))
		}
	})

	handles := make([]asset.FileHandle, len(files))
	for i, f := range files {
		handles[i] = asset.LocalFile{Path: f}
	}
	for _, a := range orchestrator.AddAssets(handles...) {
		if err := orchestrator.SetQuantity(a.ID, quantity); err != nil {
			orchestrator.Close()
			return nil, err
		}
	}

	if err := orchestrator.Wait(ctx); err != nil {
		orchestrator.Close()
		return nil, err
	}

	for _, a := range orchestrator.Snapshot() {
		if a.State == asset.StateFailed {
			logger.Warn("Upload failed, skipping image",
				zap.String("file", a.Name),
				zap.Int("attempts", a.Attempts),
				zap.String("reason", a.FailureReason))
			_, _ = orchestrator.Remove(a.ID)
		}
	}
	return orchestrator, nil
}

func seedCoupons(ctx context.Context, commands *command.Handler, path string, logger *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := commands.ImportCoupons(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to seed coupons from %s: %w", path, err)
	}
	logger.Info("Coupons loaded", zap.Int("count", n))
	return nil
}

// noUploader backs the orchestrator when no files were given.
type noUploader struct{}

func (noUploader) Upload(ctx context.Context, file asset.FileHandle) (string, error) {
	return "", errors.New("no storage configured")
}

func printQuote(q checkout.Quote) {
	if len(q.Summary) == 0 {
		fmt.Println("Cart is empty.")
		return
	}
	fmt.Println("Cart:")
	for _, g := range q.Summary {
		desc := fmt.Sprintf("%s %s", g.ProductType.Label(), g.Size)
		if g.Orientation != "" {
			desc += " " + string(g.Orientation)
		}
		fmt.Printf("  %-32s x%-3d %8s\n", desc, g.Quantity, g.Total.StringFixed(2))
	}
	fmt.Printf("  %-37s %8s\n", "Subtotal", q.Subtotal.StringFixed(2))
	if q.CouponCode != "" {
		fmt.Printf("  %-37s %8s\n", "Discount ("+q.CouponCode+")", "-"+q.DiscountAmount.StringFixed(2))
	}
	fmt.Printf("  %-37s %8s\n", "Total", q.FinalTotal.StringFixed(2))
}
