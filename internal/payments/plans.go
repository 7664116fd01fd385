// Package payments turns confirmed purchases into premium grants.
package payments

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/diegod088/bot-bens11-sub000/internal/models"
)

// StarsCurrency is the Telegram Stars currency code.
const StarsCurrency = "XTR"

// Plan is a purchasable premium package.
type Plan struct {
	ID       string              `yaml:"id" json:"id"`
	Title    string              `yaml:"title" json:"title"`
	Level    models.PremiumLevel `yaml:"level" json:"level"`
	Days     int                 `yaml:"days" json:"days"`
	Stars    int64               `yaml:"stars" json:"stars"`
	PriceUSD float64             `yaml:"price_usd" json:"price_usd"`
}

// PriceCents returns the USD price in cents.
func (p Plan) PriceCents() int64 {
	return int64(math.Round(p.PriceUSD * 100))
}

// Catalog is the set of plans offered to users.
type Catalog struct {
	Plans []Plan `yaml:"plans"`
}

// DefaultCatalog returns the built-in plans.
func DefaultCatalog() *Catalog {
	return &Catalog{Plans: []Plan{
		{ID: "standard_30", Title: "Premium 30 days", Level: models.LevelStandard, Days: 30, Stars: 150, PriceUSD: 2.99},
		{ID: "elevated_30", Title: "Premium Plus 30 days", Level: models.LevelElevated, Days: 30, Stars: 400, PriceUSD: 7.99},
	}}
}

// LoadCatalog reads plans from path; an empty path yields the defaults.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML plan catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse plans: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports every problem in the catalog.
func (c *Catalog) Validate() error {
	if len(c.Plans) == 0 {
		return errors.New("catalog has no plans")
	}

	var errs []error
	seen := make(map[string]bool, len(c.Plans))
	for i, p := range c.Plans {
		id := strings.TrimSpace(p.ID)
		switch {
		case id == "":
			errs = append(errs, fmt.Errorf("plan #%d: empty id", i+1))
		case seen[id]:
			errs = append(errs, fmt.Errorf("plan %q: duplicate id", id))
		}
		seen[id] = true

		if !p.Level.Valid() {
			errs = append(errs, fmt.Errorf("plan %q: unknown level %q", id, p.Level))
		}
		if p.Days <= 0 {
			errs = append(errs, fmt.Errorf("plan %q: days must be positive", id))
		}
		if p.Stars <= 0 {
			errs = append(errs, fmt.Errorf("plan %q: stars must be positive", id))
		}
		if p.PriceUSD < 0 {
			errs = append(errs, fmt.Errorf("plan %q: negative price", id))
		}
	}
	return errors.Join(errs...)
}

// Get returns the plan with id.
func (c *Catalog) Get(id string) (Plan, bool) {
	for _, p := range c.Plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
