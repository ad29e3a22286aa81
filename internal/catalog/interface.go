// Package catalog is the contract the sync engine needs from the remote
// store, plus its Shopify Admin GraphQL implementation.
package catalog

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=interface.go Client

import (
	"context"

	"quickedit/internal/models"
)

// MaxPageSize is the largest page the remote API accepts.
const MaxPageSize = 250

// Filter narrows a product listing. An empty Query scans the full catalog.
type Filter struct {
	Query string `json:"query,omitempty"`
}

// IsFullScan reports whether the filter lists every product.
func (f Filter) IsFullScan() bool {
	return f.Query == ""
}

// ListRequest asks for one page of products.
type ListRequest struct {
	Filter   Filter
	Cursor   string // empty for the first page
	PageSize int
}

// CostInfo is the rate budget telemetry returned with a call.
type CostInfo struct {
	Requested   float64 `json:"requestedQueryCost"`
	Used        float64 `json:"actualQueryCost"`
	Available   float64 `json:"currentlyAvailable"`
	Limit       float64 `json:"maximumAvailable"`
	RestoreRate float64 `json:"restoreRate"`
}

// Page is one page of a product listing.
type Page struct {
	Products   []models.Product
	NextCursor string
	HasMore    bool
	Cost       *CostInfo // nil when the response carried no cost telemetry
}

// Update is the delta written to a product. Nil fields are left untouched.
type Update struct {
	Tags   []string
	Status *models.ProductStatus
}

// UserError is a per-field rejection reported by a mutation.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// UpdateResult is the outcome of a product mutation.
type UpdateResult struct {
	OK         bool
	UserErrors []UserError
	Cost       *CostInfo
}

// Client defines the remote catalog operations.
// Errors wrap apperr.ErrTransient (retryable) or apperr.ErrFatal.
type Client interface {
	// ListProducts returns one page of products matching the filter.
	ListProducts(ctx context.Context, req ListRequest) (*Page, error)

	// UpdateProduct writes tags and/or status. Applying the same update twice
	// yields the same end state.
	UpdateProduct(ctx context.Context, id string, update Update) (*UpdateResult, error)
}
