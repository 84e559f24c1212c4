package entitlement

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// NavItem is a static navigation catalog entry.
type NavItem struct {
	ID              string     `yaml:"id" json:"id"`
	Label           string     `yaml:"label" json:"label"`
	Route           string     `yaml:"route" json:"route"`
	RequiredFeature FeatureKey `yaml:"feature,omitempty" json:"required_feature,omitempty"`
	AdminOnly       bool       `yaml:"admin_only,omitempty" json:"admin_only,omitempty"`
	WhiteLabelOnly  bool       `yaml:"white_label_only,omitempty" json:"white_label_only,omitempty"`
}

// Catalog is an ordered, validated list of navigation items. The order is
// the order items are rendered in.
type Catalog struct {
	Version int       `yaml:"version" json:"version"`
	Items   []NavItem `yaml:"items" json:"items"`
}

// ErrInvalidCatalog is returned when a catalog fails validation.
var ErrInvalidCatalog = errors.New("invalid navigation catalog")

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in navigation catalog: %v", err))
	}
	return c
}

// LoadCatalog reads and validates a catalog file. An empty path returns the
// built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks ids are unique, every item is routable and every
// required feature is a known key.
func (c *Catalog) Validate() error {
	if len(c.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidCatalog)
	}
	seen := make(map[string]bool, len(c.Items))
	for i, item := range c.Items {
		if item.ID == "" {
			return fmt.Errorf("%w: item %d has no id", ErrInvalidCatalog, i)
		}
		if seen[item.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidCatalog, item.ID)
		}
		seen[item.ID] = true
		if item.Label == "" || item.Route == "" {
			return fmt.Errorf("%w: item %q needs a label and a route", ErrInvalidCatalog, item.ID)
		}
		if item.RequiredFeature != "" {
			if _, ok := ParseFeatureKey(string(item.RequiredFeature)); !ok {
				return fmt.Errorf("%w: item %q requires unknown feature %q", ErrInvalidCatalog, item.ID, item.RequiredFeature)
			}
		}
	}
	return nil
}
