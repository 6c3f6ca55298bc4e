// Package catalog holds the selectable prompt content: colors, techniques,
// mediums and the artist palettes that constrain them.
//
// A Catalog is loaded once at startup and is read-only afterwards, so it is
// safe for concurrent use.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

// Set selects one of the two catalog subsets.
type Set string

const (
	Casual       Set = "casual"
	Professional Set = "professional"
)

// Category is one of the three drawn dimensions of a turn.
type Category string

const (
	Colors     Category = "colors"
	Techniques Category = "techniques"
	Mediums    Category = "mediums"
)

// Categories lists every category in draw order.
var Categories = []Category{Colors, Techniques, Mediums}

// Sets lists every catalog subset.
var Sets = []Set{Casual, Professional}

// ParseSet validates a set name.
func ParseSet(s string) (Set, error) {
	switch Set(s) {
	case Casual, Professional:
		return Set(s), nil
	}
	return "", fmt.Errorf("unknown catalog set %q", s)
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case Colors, Techniques, Mediums:
		return Category(s), nil
	}
	return "", fmt.Errorf("unknown catalog category %q", s)
}

type ContentItem struct {
	Key        string            `yaml:"key" json:"key"`
	Name       string            `yaml:"name" json:"name"`
	Attributes map[string]string `yaml:"attributes" json:"attributes,omitempty"`
}

type Artist struct {
	ID         string   `yaml:"id" json:"id"`
	Name       string   `yaml:"name" json:"name"`
	Colors     []string `yaml:"colors" json:"allowed_colors"`
	Techniques []string `yaml:"techniques" json:"allowed_techniques"`
	Mediums    []string `yaml:"mediums" json:"allowed_mediums"`
}

// Allowed returns the artist's keys for a category.
func (a Artist) Allowed(cat Category) []string {
	switch cat {
	case Colors:
		return a.Colors
	case Techniques:
		return a.Techniques
	case Mediums:
		return a.Mediums
	}
	return nil
}

type document struct {
	Sets    map[Set]map[Category][]ContentItem `yaml:"sets"`
	Artists []Artist                           `yaml:"artists"`
}

type Catalog struct {
	items   map[Set]map[Category][]ContentItem
	index   map[Set]map[Category]map[string]ContentItem
	artists map[string]Artist
	order   []string
}

// Load parses the catalog compiled into the binary.
func Load() (*Catalog, error) {
	return Parse(embedded)
}

// LoadFile parses a catalog document from disk. An empty path falls back to
// the embedded catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Load()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// MustLoad is Load for package-level setup in tests and tools.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	c := &Catalog{
		items:   make(map[Set]map[Category][]ContentItem),
		index:   make(map[Set]map[Category]map[string]ContentItem),
		artists: make(map[string]Artist),
	}

	for _, set := range Sets {
		c.items[set] = make(map[Category][]ContentItem)
		c.index[set] = make(map[Category]map[string]ContentItem)
		for _, cat := range Categories {
			items := doc.Sets[set][cat]
			idx := make(map[string]ContentItem, len(items))
			for _, it := range items {
				if it.Key == "" {
					return nil, fmt.Errorf("catalog %s/%s: item with empty key", set, cat)
				}
				if _, dup := idx[it.Key]; dup {
					return nil, fmt.Errorf("catalog %s/%s: duplicate key %q", set, cat, it.Key)
				}
				if it.Name == "" {
					it.Name = it.Key
				}
				idx[it.Key] = it
			}
			c.items[set][cat] = items
			c.index[set][cat] = idx
		}
	}

	for _, a := range doc.Artists {
		if a.ID == "" {
			return nil, fmt.Errorf("catalog: artist with empty id")
		}
		if _, dup := c.artists[a.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate artist %q", a.ID)
		}
		for _, cat := range Categories {
			for _, key := range a.Allowed(cat) {
				if _, ok := c.index[Professional][cat][key]; !ok {
					return nil, fmt.Errorf("catalog: artist %q references unknown %s key %q", a.ID, cat, key)
				}
			}
		}
		c.artists[a.ID] = a
		c.order = append(c.order, a.ID)
	}

	return c, nil
}

// Resolve returns display metadata for a key, searching the professional set
// first and then the casual one. Unknown keys resolve to an item named after
// the key itself.
func (c *Catalog) Resolve(cat Category, key string) ContentItem {
	if it, ok := c.lookup(Professional, cat, key); ok {
		return it
	}
	if it, ok := c.lookup(Casual, cat, key); ok {
		return it
	}
	return ContentItem{Key: key, Name: key}
}

// ResolveIn is Resolve restricted to a single set.
func (c *Catalog) ResolveIn(set Set, cat Category, key string) ContentItem {
	if it, ok := c.lookup(set, cat, key); ok {
		return it
	}
	return ContentItem{Key: key, Name: key}
}

func (c *Catalog) lookup(set Set, cat Category, key string) (ContentItem, bool) {
	it, ok := c.index[set][cat][key]
	return it, ok
}

// ListKeys returns the keys of a category in document order. The returned
// slice is a copy.
func (c *Catalog) ListKeys(set Set, cat Category) []string {
	items := c.items[set][cat]
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.Key
	}
	return keys
}

// Items returns a copy of a category's items in document order.
func (c *Catalog) Items(set Set, cat Category) []ContentItem {
	items := c.items[set][cat]
	out := make([]ContentItem, len(items))
	copy(out, items)
	return out
}

// ListArtists returns every artist keyed by id.
func (c *Catalog) ListArtists() map[string]Artist {
	out := make(map[string]Artist, len(c.artists))
	for id, a := range c.artists {
		out[id] = a
	}
	return out
}

// ArtistIDs returns artist ids in document order.
func (c *Catalog) ArtistIDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Catalog) Artist(id string) (Artist, bool) {
	a, ok := c.artists[id]
	return a, ok
}

// SortedArtists returns artists ordered by display name.
func (c *Catalog) SortedArtists() []Artist {
	out := make([]Artist, 0, len(c.artists))
	for _, a := range c.artists {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
