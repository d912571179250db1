package core

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind identifies one of the three record shapes a category can hold.
type Kind string

const (
	KindSwitch   Kind = "switch"
	KindCftv     Kind = "cftv"
	KindEmbedded Kind = "embarcados"
)

// Kinds lists every supported kind in display order.
var Kinds = []Kind{KindSwitch, KindCftv, KindEmbedded}

// Valid reports whether k is one of the fixed kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSwitch, KindCftv, KindEmbedded:
		return true
	default:
		return false
	}
}

// Category is a fixed partition of the catalog. Its ID doubles as the
// storage partition key.
type Category struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Kind        Kind   `json:"type" yaml:"type"`
	CreatedAt   int64  `json:"createdAt" yaml:"-"`
	CreatedBy   string `json:"createdBy" yaml:"-"`
}

//go:embed categories.yaml
var defaultCategoriesYAML []byte

var (
	categoriesOnce sync.Once
	categories     []Category
	categoriesErr  error
)

// ParseCategories decodes a category document. The document must define
// exactly one category per kind, with unique non-blank ids.
func ParseCategories(data []byte) ([]Category, error) {
	var doc struct {
		Categories []Category `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}

	if len(doc.Categories) != len(Kinds) {
		return nil, fmt.Errorf("parse categories: expected %d categories, got %d", len(Kinds), len(doc.Categories))
	}

	now := time.Now().UnixMilli()
	seenIDs := make(map[string]bool, len(doc.Categories))
	seenKinds := make(map[Kind]bool, len(doc.Categories))

	for i := range doc.Categories {
		c := &doc.Categories[i]
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			return nil, fmt.Errorf("parse categories: category %d has no id", i)
		}
		if seenIDs[c.ID] {
			return nil, fmt.Errorf("parse categories: duplicate id %q", c.ID)
		}
		if !c.Kind.Valid() {
			return nil, fmt.Errorf("parse categories: category %q has unknown type %q", c.ID, c.Kind)
		}
		if seenKinds[c.Kind] {
			return nil, fmt.Errorf("parse categories: more than one category of type %q", c.Kind)
		}
		seenIDs[c.ID] = true
		seenKinds[c.Kind] = true
		c.CreatedAt = now
		c.CreatedBy = "system"
	}

	return doc.Categories, nil
}

// Categories returns the fixed category list, loading the embedded
// document on first use.
func Categories() ([]Category, error) {
	categoriesOnce.Do(func() {
		categories, categoriesErr = ParseCategories(defaultCategoriesYAML)
	})
	if categoriesErr != nil {
		return nil, categoriesErr
	}
	out := make([]Category, len(categories))
	copy(out, categories)
	return out, nil
}

// CategoryByID looks up a fixed category.
func CategoryByID(id string) (Category, error) {
	all, err := Categories()
	if err != nil {
		return Category{}, err
	}
	for _, c := range all {
		if c.ID == id {
			return c, nil
		}
	}
	return Category{}, fmt.Errorf("%w: %s", ErrUnknownCategory, id)
}
