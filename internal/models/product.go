package models

import (
	"strings"

	"quickedit/internal/apperr"
)

// ProductStatus is the publication status of a catalog product.
type ProductStatus string

const (
	StatusActive   ProductStatus = "ACTIVE"
	StatusDraft    ProductStatus = "DRAFT"
	StatusArchived ProductStatus = "ARCHIVED"
)

// ParseStatus upper-cases s and checks it against the known statuses.
func ParseStatus(s string) (ProductStatus, error) {
	status := ProductStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case StatusActive, StatusDraft, StatusArchived:
		return status, nil
	default:
		return "", apperr.Validation("invalid product status %q", s)
	}
}

// Variant is a single sellable variant of a product.
type Variant struct {
	ID                string `json:"id"`
	Barcode           string `json:"barcode"`
	InventoryQuantity int    `json:"inventoryQuantity"`
}

// Product is a catalog product as read from the remote store.
// It is never modified after it has been fetched.
type Product struct {
	ID         string            `json:"id"`
	Title      string            `json:"title,omitempty"`
	Status     ProductStatus     `json:"status"`
	Tags       []string          `json:"tags"`
	Variants   []Variant         `json:"variants"`
	Metafields map[string]string `json:"metafields,omitempty"` // "namespace.key" -> value
}

// Metafield looks a metafield up ignoring case. A key without a namespace
// also matches the key part of "namespace.key" entries.
func (p *Product) Metafield(key string) (string, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}
	if v, ok := p.Metafields[key]; ok {
		return v, true
	}

	bare := !strings.Contains(key, ".")
	for k, v := range p.Metafields {
		if strings.EqualFold(k, key) {
			return v, true
		}
		if bare {
			if i := strings.LastIndex(k, "."); i >= 0 && strings.EqualFold(k[i+1:], key) {
				return v, true
			}
		}
	}
	return "", false
}
