package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/print-storefront/internal/domain/coupon"
)

// CouponStore is an in-memory coupon repository
type CouponStore struct {
	mu      sync.RWMutex
	coupons map[string]coupon.Coupon // normalized code -> coupon
}

func NewCouponStore(coupons ...coupon.Coupon) *CouponStore {
	s := &CouponStore{coupons: make(map[string]coupon.Coupon)}
	for _, c := range coupons {
		s.coupons[coupon.NormalizeCode(c.Code)] = c
	}
	return s
}

// FindByCode returns a copy of the coupon, or nil, nil when none exists
func (s *CouponStore) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.coupons[coupon.NormalizeCode(code)]
	if !ok {
		return nil, nil
	}
	c.ApplicableProducts = append(c.ApplicableProducts[:0:0], c.ApplicableProducts...)
	return &c, nil
}

func (s *CouponStore) Save(ctx context.Context, c *coupon.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[coupon.NormalizeCode(c.Code)] = *c
	return nil
}

func (s *CouponStore) IncrementUsage(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := coupon.NormalizeCode(code)
	c, ok := s.coupons[key]
	if !ok {
		return fmt.Errorf("%w: %s", coupon.ErrNotFound, code)
	}
	c.UsageCount++
	s.coupons[key] = c
	return nil
}
