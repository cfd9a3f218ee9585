package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"premium-referral-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

const (
	PriceRegular  = "regular"
	PriceDiscount = "discount"
)

// Violation types recorded as securityViolationType on rejected purchases.
const (
	ViolationUnknownPackage = "unknown_package"
	ViolationItemType       = "item_type_mismatch"
	ViolationAmount         = "amount_mismatch"
	ViolationPrice          = "price_mismatch"
	ViolationDiscountAbuse  = "premium_discount_abuse"
)

// Package is one allow-listed one-time purchase.
type Package struct {
	Name          string          `yaml:"name"`
	ItemType      string          `yaml:"item_type"`
	Amount        int64           `yaml:"amount"`
	Price         decimal.Decimal `yaml:"-"`
	DiscountPrice decimal.Decimal `yaml:"-"`

	RawPrice         string `yaml:"price"`
	RawDiscountPrice string `yaml:"discount_price"`
}

type packagesFile struct {
	Packages []Package `yaml:"packages"`
}

// Request is what a checkout claims it sold.
type Request struct {
	PackageType string
	ItemType    string
	Amount      int64
	Price       decimal.Decimal
	PriceType   string
}

// ViolationError describes a purchase that does not match the allow-list.
type ViolationError struct {
	Type          string
	Reason        string
	ExpectedPrice decimal.Decimal
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("security violation (%s): %s", e.Type, e.Reason)
}

// Catalog is the server-side allow-list of one-time packages.
type Catalog struct {
	packages map[string]Package
}

// Default returns the built-in package list.
func Default() *Catalog {
	c, err := New([]Package{
		{Name: "basic", ItemType: "coins", Amount: 250, Price: decimal.RequireFromString("2.99")},
		{Name: "popular", ItemType: "coins", Amount: 750, Price: decimal.RequireFromString("7.99")},
		{Name: "premium", ItemType: "coins", Amount: 1500, Price: decimal.RequireFromString("14.99")},
		{Name: "mega", ItemType: "coins", Amount: 3500, Price: decimal.RequireFromString("29.99")},
		{Name: "ultimate", ItemType: "coins", Amount: 6000, Price: decimal.RequireFromString("14.99")},
		{Name: "letter-credits", ItemType: "credits", Amount: 1,
			Price: decimal.RequireFromString("2.99"), DiscountPrice: decimal.RequireFromString("2.39")},
	})
	if err != nil {
		panic(err)
	}
	return c
}

func New(packages []Package) (*Catalog, error) {
	c := &Catalog{packages: make(map[string]Package, len(packages))}
	for i, p := range packages {
		if p.Name == "" {
			return nil, fmt.Errorf("package at index %d missing name", i)
		}
		if _, err := models.BalanceKindForItem(p.ItemType); err != nil {
			return nil, fmt.Errorf("package %s: %w", p.Name, err)
		}
		if p.Amount <= 0 {
			return nil, fmt.Errorf("package %s: amount must be positive", p.Name)
		}
		if !p.Price.IsPositive() {
			return nil, fmt.Errorf("package %s: price must be positive", p.Name)
		}
		if _, dup := c.packages[p.Name]; dup {
			return nil, fmt.Errorf("package %s defined twice", p.Name)
		}
		c.packages[p.Name] = p
	}
	return c, nil
}

// Load reads the allow-list from a YAML file, relative paths resolved against the working directory.
func Load(packagesFile string) (*Catalog, error) {
	var path string
	if filepath.IsAbs(packagesFile) {
		path = packagesFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, packagesFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", packagesFile, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var file packagesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse packages: %w", err)
	}

	for i := range file.Packages {
		p := &file.Packages[i]
		price, err := decimal.NewFromString(p.RawPrice)
		if err != nil {
			return nil, fmt.Errorf("package %s: invalid price %q: %w", p.Name, p.RawPrice, err)
		}
		p.Price = price
		if p.RawDiscountPrice != "" {
			discount, err := decimal.NewFromString(p.RawDiscountPrice)
			if err != nil {
				return nil, fmt.Errorf("package %s: invalid discount price %q: %w", p.Name, p.RawDiscountPrice, err)
			}
			p.DiscountPrice = discount
		}
	}
	return New(file.Packages)
}

func (c *Catalog) Lookup(packageType string) (Package, bool) {
	p, ok := c.packages[packageType]
	return p, ok
}

// Packages returns every package sorted by name.
func (c *Catalog) Packages() []Package {
	out := make([]Package, 0, len(c.packages))
	for _, p := range c.packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate checks req against the allow-list and returns the matching package.
// Discount pricing is only honoured when premiumEntitled is true. Any mismatch is a
// *ViolationError; the request is never repriced.
func (c *Catalog) Validate(req Request, premiumEntitled bool) (Package, error) {
	p, ok := c.packages[req.PackageType]
	if !ok {
		return Package{}, &ViolationError{
			Type:   ViolationUnknownPackage,
			Reason: fmt.Sprintf("package %q is not for sale", req.PackageType),
		}
	}

	wantKind, _ := models.BalanceKindForItem(p.ItemType)
	gotKind, err := models.BalanceKindForItem(req.ItemType)
	if err != nil || gotKind != wantKind {
		return Package{}, &ViolationError{
			Type:   ViolationItemType,
			Reason: fmt.Sprintf("package %s sells %s, got %q", p.Name, p.ItemType, req.ItemType),
		}
	}

	if req.Amount != p.Amount {
		return Package{}, &ViolationError{
			Type:          ViolationAmount,
			Reason:        fmt.Sprintf("package %s grants %d, got %d", p.Name, p.Amount, req.Amount),
			ExpectedPrice: p.Price,
		}
	}

	expected := p.Price
	if req.PriceType == PriceDiscount {
		if p.DiscountPrice.IsZero() {
			return Package{}, &ViolationError{
				Type:          ViolationPrice,
				Reason:        fmt.Sprintf("package %s has no discount price", p.Name),
				ExpectedPrice: p.Price,
			}
		}
		if !premiumEntitled {
			return Package{}, &ViolationError{
				Type:          ViolationDiscountAbuse,
				Reason:        "Non-premium user attempted to use discount pricing",
				ExpectedPrice: p.Price,
			}
		}
		expected = p.DiscountPrice
	}

	if !req.Price.Equal(expected) {
		return Package{}, &ViolationError{
			Type:          ViolationPrice,
			Reason:        fmt.Sprintf("package %s costs %s, got %s", p.Name, expected.StringFixed(2), req.Price.String()),
			ExpectedPrice: expected,
		}
	}

	p.Price = expected
	return p, nil
}
