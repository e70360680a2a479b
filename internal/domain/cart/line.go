package cart

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/print-storefront/internal/domain/catalog"
)

var (
	ErrInvalidAssetReference = errors.New("asset reference is not durable")
	ErrInvalidQuantity       = errors.New("quantity must be at least 1")
	ErrInvalidPrice          = errors.New("unit price must not be negative")
	ErrInvalidProduct        = errors.New("unknown product type")
	ErrLineNotFound          = errors.New("cart line not found")
)

// Line is one priced, quantified, asset-backed item. Every field is safe to
// persist; lines never carry local file handles.
type Line struct {
	ID          string              `json:"id"`
	ProductType catalog.ProductType `json:"product_type"`
	Size        string              `json:"size"`
	Orientation catalog.Orientation `json:"orientation,omitempty"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
	Quantity    int                 `json:"quantity"`
	AssetRef    string              `json:"asset_ref"`
	AddedAt     time.Time           `json:"added_at"`
}

// NewLine prices a line from the catalog variant.
func NewLine(v catalog.Variant, o catalog.Orientation, quantity int, assetRef string) Line {
	return Line{
		ID:          uuid.New().String(),
		ProductType: v.Product,
		Size:        v.Size,
		Orientation: v.NormalizeOrientation(o),
		UnitPrice:   v.Price,
		Quantity:    quantity,
		AssetRef:    assetRef,
	}
}

// Total is UnitPrice x Quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Validate checks the structural preconditions for keeping a line in the cart.
func (l Line) Validate() error {
	if !IsDurableRef(l.AssetRef) {
		return fmt.Errorf("%w: %q", ErrInvalidAssetReference, l.AssetRef)
	}
	if !l.ProductType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidProduct, l.ProductType)
	}
	if l.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if l.UnitPrice.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}

var durableSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"s3":     true,
	"gs":     true,
	"gridfs": true,
}

// IsDurableRef reports whether ref is a shareable remote locator rather than a
// session-local handle such as a blob: or data: URL.
func IsDurableRef(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	if !durableSchemes[strings.ToLower(u.Scheme)] {
		return false
	}
	return u.Host != ""
}

// Group is one bucket of the cart summary.
type Group struct {
	AssetRef    string              `json:"asset_ref"`
	ProductType catalog.ProductType `json:"product_type"`
	Size        string              `json:"size"`
	Orientation catalog.Orientation `json:"orientation,omitempty"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
	Quantity    int                 `json:"quantity"`
	Total       decimal.Decimal     `json:"total"`
}

type groupKey struct {
	ref         string
	product     catalog.ProductType
	size        string
	orientation catalog.Orientation
}

// Summarize buckets lines by asset, product type, size and orientation,
// summing quantities. Buckets keep the order of their first line.
func Summarize(lines []Line) []Group {
	index := make(map[groupKey]int)
	var groups []Group
	for _, l := range lines {
		k := groupKey{l.AssetRef, l.ProductType, l.Size, l.Orientation}
		i, ok := index[k]
		if !ok {
			index[k] = len(groups)
			groups = append(groups, Group{
				AssetRef:    l.AssetRef,
				ProductType: l.ProductType,
				Size:        l.Size,
				Orientation: l.Orientation,
				UnitPrice:   l.UnitPrice,
				Quantity:    l.Quantity,
				Total:       l.Total(),
			})
			continue
		}
		groups[i].Quantity += l.Quantity
		groups[i].Total = groups[i].Total.Add(l.Total())
	}
	return groups
}

// Subtotal sums UnitPrice x Quantity over lines.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

// ItemCount sums quantities over lines.
func ItemCount(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}
