package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/example/print-storefront/internal/domain/catalog"
	"github.com/example/print-storefront/internal/domain/coupon"
)

const couponColumns = `id, code, discount_type, discount_value, min_order_amount, max_discount_amount,
	applicable_products, valid_from, valid_until, usage_limit, usage_count, is_active`

// PostgresCouponStore reads and maintains coupons in PostgreSQL
type PostgresCouponStore struct {
	db *sql.DB
}

func NewPostgresCouponStore(db *sql.DB) *PostgresCouponStore {
	return &PostgresCouponStore{db: db}
}

// FindByCode returns nil, nil when no coupon has the code
func (s *PostgresCouponStore) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1`,
		coupon.NormalizeCode(code))

	var (
		c          coupon.Coupon
		products   []string
		validFrom  sql.NullTime
		validUntil sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.MinOrderAmount, &c.MaxDiscountAmount,
		pq.Array(&products), &validFrom, &validUntil, &c.UsageLimit, &c.UsageCount, &c.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}

	for _, p := range products {
		c.ApplicableProducts = append(c.ApplicableProducts, catalog.ProductType(p))
	}
	if validFrom.Valid {
		c.ValidFrom = &validFrom.Time
	}
	if validUntil.Valid {
		c.ValidUntil = &validUntil.Time
	}
	return &c, nil
}

// Save inserts or replaces a coupon
func (s *PostgresCouponStore) Save(ctx context.Context, c *coupon.Coupon) error {
	products := make([]string, 0, len(c.ApplicableProducts))
	for _, p := range c.ApplicableProducts {
		products = append(products, string(p))
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO coupons (`+couponColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			min_order_amount = EXCLUDED.min_order_amount,
			max_discount_amount = EXCLUDED.max_discount_amount,
			applicable_products = EXCLUDED.applicable_products,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			usage_limit = EXCLUDED.usage_limit,
			usage_count = EXCLUDED.usage_count,
			is_active = EXCLUDED.is_active`,
		c.ID, coupon.NormalizeCode(c.Code), string(c.DiscountType), c.DiscountValue, c.MinOrderAmount, c.MaxDiscountAmount,
		pq.Array(products), c.ValidFrom, c.ValidUntil, c.UsageLimit, c.UsageCount, c.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to save coupon: %w", err)
	}
	return nil
}

// IncrementUsage records one redemption of the coupon
func (s *PostgresCouponStore) IncrementUsage(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE coupons SET usage_count = usage_count + 1 WHERE code = $1`,
		coupon.NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("failed to increment coupon usage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", coupon.ErrNotFound, code)
	}
	return nil
}
