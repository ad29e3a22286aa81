// Package match decides which products a sync run touches and what it
// writes to them.
package match

import (
	"fmt"
	"strings"

	"quickedit/internal/apperr"
	"quickedit/internal/catalog"
	"quickedit/internal/models"
)

const (
	// DefaultVendorKey is the metafield holding the product vendor.
	DefaultVendorKey = "custom.fornitore"

	// ChunkSize is the number of barcodes per server-side search query.
	ChunkSize = 50

	// MaxFilteredKeys is the largest key set searched server-side. Larger
	// sets scan the whole catalog and match client-side.
	MaxFilteredKeys = 500
)

// Decision is the result of evaluating a product.
type Decision struct {
	Matched    bool
	MatchedKey string

	// Update holds only the fields that differ from the product.
	Update catalog.Update

	// Tags and Status are the product's state once Update is applied.
	Tags   []string
	Status models.ProductStatus
}

// Changed reports whether the decision requires a write.
func (d Decision) Changed() bool {
	return d.Update.Tags != nil || d.Update.Status != nil
}

// Predicate evaluates products against a criterion.
type Predicate interface {
	Evaluate(p *models.Product) Decision
	// Filters returns the listing filters the engine walks, each with its own cursor.
	Filters() []catalog.Filter
}

// New builds the predicate for criterion and validates the mutation.
func New(criterion models.Criterion, mutation models.MutationSpec) (Predicate, error) {
	mutation, err := normalizeMutation(mutation)
	if err != nil {
		return nil, err
	}

	switch criterion.Kind {
	case models.CriterionInventoryZero:
		target := mutation.Status
		if target == "" {
			target = models.StatusDraft
		}
		return &inventoryZero{target: target, mutation: mutation}, nil

	case models.CriterionKeySet:
		keys := NormalizeKeys(criterion.Keys)
		if len(keys) == 0 {
			return nil, apperr.Validation("key set is empty")
		}
		set := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			set[k] = struct{}{}
		}
		vendorKey := strings.TrimSpace(criterion.VendorKey)
		if vendorKey == "" {
			vendorKey = DefaultVendorKey
		}
		return &keySet{
			keys:        keys,
			set:         set,
			vendorKey:   vendorKey,
			vendorValue: strings.TrimSpace(criterion.VendorValue),
			mutation:    mutation,
		}, nil

	default:
		return nil, apperr.Validation("unknown criterion %q", criterion.Kind)
	}
}

func normalizeMutation(m models.MutationSpec) (models.MutationSpec, error) {
	m.Tag = strings.TrimSpace(m.Tag)
	if m.Status != "" {
		status, err := models.ParseStatus(string(m.Status))
		if err != nil {
			return m, err
		}
		m.Status = status
	}
	if m.Tag == "" && m.Status == "" {
		return m, apperr.Validation("mutation needs a tag or a status")
	}
	return m, nil
}

type inventoryZero struct {
	target   models.ProductStatus
	mutation models.MutationSpec
}

func (z *inventoryZero) Evaluate(p *models.Product) Decision {
	if p.Status == z.target {
		return Decision{}
	}
	for _, v := range p.Variants {
		if v.InventoryQuantity != 0 {
			return Decision{}
		}
	}
	return delta(p, z.mutation, "")
}

func (z *inventoryZero) Filters() []catalog.Filter {
	return []catalog.Filter{{}}
}

type keySet struct {
	keys        []string
	set         map[string]struct{}
	vendorKey   string
	vendorValue string
	mutation    models.MutationSpec
}

func (k *keySet) Evaluate(p *models.Product) Decision {
	if k.vendorValue != "" {
		vendor, ok := p.Metafield(k.vendorKey)
		if !ok || strings.TrimSpace(vendor) != k.vendorValue {
			return Decision{}
		}
	}
	for _, v := range p.Variants {
		barcode := strings.TrimSpace(v.Barcode)
		if barcode == "" {
			continue
		}
		if _, ok := k.set[barcode]; ok {
			return delta(p, k.mutation, barcode)
		}
	}
	return Decision{}
}

func (k *keySet) Filters() []catalog.Filter {
	if len(k.keys) > MaxFilteredKeys {
		return []catalog.Filter{{}}
	}
	filters := make([]catalog.Filter, 0, (len(k.keys)+ChunkSize-1)/ChunkSize)
	for start := 0; start < len(k.keys); start += ChunkSize {
		end := min(start+ChunkSize, len(k.keys))
		terms := make([]string, 0, end-start)
		for _, key := range k.keys[start:end] {
			terms = append(terms, fmt.Sprintf("barcode:%s", quote(key)))
		}
		filters = append(filters, catalog.Filter{Query: strings.Join(terms, " OR ")})
	}
	return filters
}

func delta(p *models.Product, m models.MutationSpec, matchedKey string) Decision {
	d := Decision{
		Matched:    true,
		MatchedKey: matchedKey,
		Tags:       UnionTags(p.Tags, m.Tag),
		Status:     p.Status,
	}
	if m.Status != "" {
		d.Status = m.Status
		if p.Status != m.Status {
			status := m.Status
			d.Update.Status = &status
		}
	}
	if len(d.Tags) != len(p.Tags) {
		d.Update.Tags = d.Tags
	}
	return d
}

// NormalizeKeys trims keys, drops blanks and removes duplicates keeping first-seen order.
func NormalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// UnionTags returns existing with tag appended if absent. existing is not modified.
func UnionTags(existing []string, tag string) []string {
	out := make([]string, 0, len(existing)+1)
	out = append(out, existing...)
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return out
	}
	for _, t := range existing {
		if t == tag {
			return out
		}
	}
	return append(out, tag)
}

func quote(key string) string {
	if strings.ContainsAny(key, " \t\":()") {
		return `"` + strings.ReplaceAll(key, `"`, `\"`) + `"`
	}
	return key
}
