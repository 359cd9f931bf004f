package ledger

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cppla/ledger/models"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Criteria types understood by the evaluator.
const (
	CriteriaMemberCount    = "member_count"
	CriteriaLevel          = "level"
	CriteriaCompletedCount = "completed_count"
	CriteriaRate           = "rate"
	CriteriaStreak         = "streak"
)

// Criteria is the unlock condition of an achievement.
type Criteria struct {
	Type      string  `yaml:"type" json:"type"`
	Metric    string  `yaml:"metric,omitempty" json:"metric,omitempty"`
	Target    float64 `yaml:"target" json:"target"`
	MinSample int64   `yaml:"min_sample,omitempty" json:"min_sample,omitempty"`
}

// Definition is one static catalog entry.
type Definition struct {
	Key          string   `yaml:"key" json:"key"`
	Name         string   `yaml:"name" json:"name"`
	Description  string   `yaml:"description" json:"description"`
	Category     string   `yaml:"category" json:"category"`
	Rarity       string   `yaml:"rarity" json:"rarity"`
	Icon         string   `yaml:"icon" json:"icon"`
	UnlocksTitle string   `yaml:"unlocks_title,omitempty" json:"unlocks_title,omitempty"`
	Hidden       bool     `yaml:"hidden,omitempty" json:"is_hidden"`
	SortOrder    int      `yaml:"sort_order" json:"sort_order"`
	Scope        string   `yaml:"scope" json:"scope"`
	XPReward     int64    `yaml:"xp_reward" json:"xp_reward"`
	Criteria     Criteria `yaml:"criteria" json:"criteria"`
}

// AppliesTo reports whether the definition is in scope for kind.
func (d Definition) AppliesTo(kind models.OwnerKind) bool {
	return d.Scope == "any" || d.Scope == string(kind)
}

// Catalog is the ordered, read-only set of achievement definitions.
type Catalog struct {
	defs  []Definition
	byKey map[string]int
}

// ParseCatalog decodes and validates a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Achievements []Definition `yaml:"achievements"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c := &Catalog{byKey: make(map[string]int, len(doc.Achievements))}
	for _, d := range doc.Achievements {
		if d.Key == "" {
			return nil, fmt.Errorf("catalog entry %q has no key", d.Name)
		}
		if _, dup := c.byKey[d.Key]; dup {
			return nil, fmt.Errorf("duplicate catalog key %q", d.Key)
		}
		if d.Scope == "" {
			d.Scope = string(models.OwnerUser)
		}
		if d.XPReward < 0 {
			return nil, fmt.Errorf("catalog entry %q has a negative xp reward", d.Key)
		}
		c.byKey[d.Key] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	sort.SliceStable(c.defs, func(i, j int) bool { return c.defs[i].SortOrder < c.defs[j].SortOrder })
	for i, d := range c.defs {
		c.byKey[d.Key] = i
	}
	return c, nil
}

// LoadCatalogFile reads a catalog from disk.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// For returns the definitions that apply to kind, in display order.
func (c *Catalog) For(kind models.OwnerKind) []Definition {
	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		if d.AppliesTo(kind) {
			out = append(out, d)
		}
	}
	return out
}

// Lookup finds a definition by key.
func (c *Catalog) Lookup(key string) (Definition, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Len is the number of definitions.
func (c *Catalog) Len() int { return len(c.defs) }
