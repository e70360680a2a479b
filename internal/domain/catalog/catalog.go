package catalog

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type ProductType string

const (
	ProductBlock    ProductType = "block"
	ProductMagnet   ProductType = "magnet"
	ProductPhoto    ProductType = "photo"
	ProductBookmark ProductType = "bookmark"
)

type Orientation string

const (
	OrientationNone      Orientation = ""
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

var (
	ErrUnknownProduct     = errors.New("unknown product type")
	ErrUnknownSize        = errors.New("unknown size for product")
	ErrInvalidOrientation = errors.New("invalid orientation")
)

// Variant is one purchasable size of a product type.
type Variant struct {
	Product    ProductType
	Size       string
	Price      decimal.Decimal
	Cost       decimal.Decimal
	Orientable bool
	FilePrefix string
}

type product struct {
	prefix     string
	orientable bool
	label      string
	sizes      map[string][2]string // size -> {price, production cost}
}

var products = map[ProductType]product{
	ProductBlock: {
		prefix:     "B",
		orientable: true,
		label:      "Wooden block",
		sizes: map[string][2]string{
			"10x10": {"18", "3.7"},
			"10x15": {"22", "4.7"},
			"15x20": {"30", "9.2"},
		},
	},
	ProductMagnet: {
		prefix: "M",
		label:  "Magnet",
		sizes: map[string][2]string{
			"7.5x10": {"2.5", "0.7"},
			"10x15":  {"4", "1.2"},
			"15x20":  {"6", "1.7"},
		},
	},
	ProductPhoto: {
		prefix: "P",
		label:  "Photo print",
		sizes: map[string][2]string{
			"7.5x10": {"0.7", "0.3"},
			"10x15":  {"1", "0.5"},
			"15x20":  {"2", "0.9"},
		},
	},
	ProductBookmark: {
		prefix: "BM",
		label:  "Bookmark",
		sizes: map[string][2]string{
			"5x15": {"3", "0.9"},
		},
	},
}

// Valid reports whether p is a known product type.
func (p ProductType) Valid() bool {
	_, ok := products[p]
	return ok
}

// Label returns a display name for the product type.
func (p ProductType) Label() string {
	if pr, ok := products[p]; ok {
		return pr.label
	}
	return string(p)
}

// ParseProductType accepts product names case-insensitively.
func ParseProductType(s string) (ProductType, error) {
	p := ProductType(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProduct, s)
	}
	return p, nil
}

// ParseOrientation accepts "", "portrait" and "landscape".
func ParseOrientation(s string) (Orientation, error) {
	o := Orientation(strings.ToLower(strings.TrimSpace(s)))
	switch o {
	case OrientationNone, OrientationPortrait, OrientationLandscape:
		return o, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOrientation, s)
}

// Lookup resolves the variant for a product type and size.
func Lookup(p ProductType, size string) (Variant, error) {
	pr, ok := products[p]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %q", ErrUnknownProduct, p)
	}
	vals, ok := pr.sizes[size]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %s %q", ErrUnknownSize, p, size)
	}
	return Variant{
		Product:    p,
		Size:       size,
		Price:      decimal.RequireFromString(vals[0]),
		Cost:       decimal.RequireFromString(vals[1]),
		Orientable: pr.orientable,
		FilePrefix: pr.prefix,
	}, nil
}

// Sizes lists the sizes offered for p in a stable order.
func Sizes(p ProductType) []string {
	pr, ok := products[p]
	if !ok {
		return nil
	}
	sizes := make([]string, 0, len(pr.sizes))
	for s := range pr.sizes {
		sizes = append(sizes, s)
	}
	sort.Strings(sizes)
	return sizes
}

// ProductTypes lists all product types in a stable order.
func ProductTypes() []ProductType {
	return []ProductType{ProductBlock, ProductMagnet, ProductPhoto, ProductBookmark}
}

// UnitCost returns the production cost of one unit, or zero for unknown variants.
func UnitCost(p ProductType, size string) decimal.Decimal {
	v, err := Lookup(p, size)
	if err != nil {
		return decimal.Zero
	}
	return v.Cost
}

// NormalizeOrientation defaults orientable variants to portrait and strips
// orientation from variants that have none.
func (v Variant) NormalizeOrientation(o Orientation) Orientation {
	if !v.Orientable {
		return OrientationNone
	}
	if o == OrientationNone {
		return OrientationPortrait
	}
	return o
}

// StorageName builds the object name used when uploading an image for this
// variant, e.g. "M7510_cat.jpg" for a 7.5x10 magnet.
func (v Variant) StorageName(original string) string {
	base := path.Base(strings.ReplaceAll(original, "\\", "/"))
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)
	sizeCode := strings.NewReplacer("x", "", ".", "").Replace(v.Size)
	if ext == "" {
		return fmt.Sprintf("%s%s_%s", v.FilePrefix, sizeCode, name)
	}
	return fmt.Sprintf("%s%s_%s%s", v.FilePrefix, sizeCode, name, ext)
}
