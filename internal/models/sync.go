package models

import (
	"strings"
	"time"
)

// CriterionKind selects the match predicate used by a sync run.
type CriterionKind string

const (
	// CriterionInventoryZero matches products whose variants are all out of stock.
	CriterionInventoryZero CriterionKind = "inventory_zero"
	// CriterionKeySet matches products with a variant barcode in an external key set.
	CriterionKeySet CriterionKind = "key_set"
)

// Criterion decides which products a run touches. Read-only during a run.
type Criterion struct {
	Kind        CriterionKind `json:"kind"`
	Keys        []string      `json:"keys,omitempty"`
	VendorKey   string        `json:"vendorKey,omitempty"`
	VendorValue string        `json:"vendorValue,omitempty"`
}

// MutationSpec is what gets written to a matched product.
// An empty Tag leaves tags alone, an empty Status leaves the status alone.
type MutationSpec struct {
	Tag    string        `json:"tag,omitempty"`
	Status ProductStatus `json:"status,omitempty"`
}

// SyncJob is one parameterised invocation of the sync engine.
type SyncJob struct {
	Name      string       `json:"name"`
	Criterion Criterion    `json:"criterion"`
	Mutation  MutationSpec `json:"mutation"`
}

// InventoryJob builds the out-of-stock drafting job.
func InventoryJob(tag string) SyncJob {
	return SyncJob{
		Name:      "inventory_zero",
		Criterion: Criterion{Kind: CriterionInventoryZero},
		Mutation:  MutationSpec{Tag: strings.TrimSpace(tag), Status: StatusDraft},
	}
}

// KeySetJob builds a job tagging the products whose barcodes are in keys.
// An empty vendorValue disables the vendor check.
func KeySetJob(name string, keys []string, vendorKey, vendorValue, tag, status string) SyncJob {
	return SyncJob{
		Name: name,
		Criterion: Criterion{
			Kind:        CriterionKeySet,
			Keys:        keys,
			VendorKey:   strings.TrimSpace(vendorKey),
			VendorValue: strings.TrimSpace(vendorValue),
		},
		Mutation: MutationSpec{
			Tag:    strings.TrimSpace(tag),
			Status: ProductStatus(strings.ToUpper(strings.TrimSpace(status))),
		},
	}
}

// RunOutcome is the terminal state of a run.
type RunOutcome string

const (
	OutcomeSuccess RunOutcome = "success"
	OutcomeError   RunOutcome = "error"
)

// UpdateDetail records one attempted product mutation.
type UpdateDetail struct {
	ProductID  string        `json:"id"`
	MatchedKey string        `json:"matchedKey,omitempty"`
	Tags       []string      `json:"tags,omitempty"`
	Status     ProductStatus `json:"status,omitempty"`
	OK         bool          `json:"ok"`
	Error      string        `json:"error,omitempty"`
}

// RunSummary is the terminal report of one sync run. Never mutated after creation.
type RunSummary struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	TriggerID  string         `json:"triggerId,omitempty"`
	Outcome    RunOutcome     `json:"status"`
	Truncated  bool           `json:"truncated,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"timestamp"`
	Elapsed    time.Duration  `json:"elapsed"`
	Pages      int            `json:"pages"`
	Scanned    int            `json:"scanned"`
	Matched    int            `json:"matched"`
	Updated    int            `json:"updatedProductsCount"`
	Unchanged  int            `json:"unchanged"`
	Failed     int            `json:"failed"`
	CostUsed   float64        `json:"costUsed,omitempty"`
	Updates    []UpdateDetail `json:"updates,omitempty"`
}

// Succeeded reports whether the run finished without a fatal error.
func (s *RunSummary) Succeeded() bool {
	return s != nil && s.Outcome == OutcomeSuccess
}
