package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	testingclock "k8s.io/utils/clock/testing"

	"quickedit/internal/apperr"
	"quickedit/internal/catalog"
	"quickedit/internal/catalog/mocks"
	"quickedit/internal/models"
)

func testConfig() Config {
	return Config{
		PageSize:   250,
		Deadline:   time.Minute,
		MaxRetries: 3,
		RetryBase:  time.Millisecond,
		RetryMax:   4 * time.Millisecond,
	}
}

func inventoryProduct(id string, status models.ProductStatus, qty ...int) models.Product {
	p := models.Product{ID: id, Status: status, Tags: []string{}}
	for i, q := range qty {
		p.Variants = append(p.Variants, models.Variant{ID: fmt.Sprintf("%s-%d", id, i), InventoryQuantity: q})
	}
	return p
}

func fullScan(cursor string) catalog.ListRequest {
	return catalog.ListRequest{Cursor: cursor, PageSize: 250}
}

type countingMetrics struct {
	retries   map[string]int
	mutations map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{retries: map[string]int{}, mutations: map[string]int{}}
}

func (m *countingMetrics) Retry(op string)        { m.retries[op]++ }
func (m *countingMetrics) Mutation(result string) { m.mutations[result]++ }

func TestRun_EmptyCatalog(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().ListProducts(gomock.Any(), fullScan("")).Return(&catalog.Page{}, nil)

	summary, err := New(client, testConfig(), zap.NewNop()).Run(context.Background(), models.InventoryJob(""))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSuccess, summary.Outcome)
	assert.Equal(t, "inventory_zero", summary.Action)
	assert.NotEmpty(t, summary.ID)
	assert.Equal(t, 1, summary.Pages)
	assert.Zero(t, summary.Scanned)
	assert.Zero(t, summary.Updated)
	assert.Empty(t, summary.Updates)
}

func TestRun_InventoryZeroScenario(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	metrics := newCountingMetrics()

	client.EXPECT().ListProducts(gomock.Any(), fullScan("")).Return(&catalog.Page{
		Products: []models.Product{
			inventoryProduct("p1", models.StatusActive, 0, 0),
			inventoryProduct("p2", models.StatusActive, 0, 5),
			inventoryProduct("p3", models.StatusDraft, 0),
		},
	}, nil)
	client.EXPECT().UpdateProduct(gomock.Any(), "p1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, u catalog.Update) (*catalog.UpdateResult, error) {
			require.NotNil(t, u.Status)
			assert.Equal(t, models.StatusDraft, *u.Status)
			assert.Nil(t, u.Tags)
			return &catalog.UpdateResult{OK: true}, nil
		})

	summary, err := New(client, testConfig(), zap.NewNop(), WithMetrics(metrics)).Run(context.Background(), models.InventoryJob(""))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Scanned)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Updated)
	assert.Zero(t, summary.Failed)
	require.Len(t, summary.Updates, 1)
	assert.Equal(t, "p1", summary.Updates[0].ProductID)
	assert.Equal(t, models.StatusDraft, summary.Updates[0].Status)
	assert.True(t, summary.Updates[0].OK)
	assert.Equal(t, 1, metrics.mutations["updated"])
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().ListProducts(gomock.Any(), fullScan("")).Return(&catalog.Page{
		Products: []models.Product{
			inventoryProduct("p1", models.StatusDraft, 0, 0),
			inventoryProduct("p3", models.StatusDraft, 0),
		},
	}, nil)

	summary, err := New(client, testConfig(), zap.NewNop()).Run(context.Background(), models.InventoryJob(""))
	require.NoError(t, err)
	assert.Zero(t, summary.Updated)
	assert.Zero(t, summary.Matched)
}

func TestRun_TransientListRetried(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	metrics := newCountingMetrics()

	gomock.InOrder(
		client.EXPECT().ListProducts(gomock.Any(), fullScan("")).Return(nil, apperr.Transient("throttled")),
		client.EXPECT().ListProducts(gomock.Any(), fullScan("")).Return(nil, apperr.Transient("throttled")),
		client.EXPECT().ListProducts(gomock.Any(), fullScan("")).Return(&catalog.Page{
			Products:   []models.Product{inventoryProduct("p1", models.StatusActive, 0)},
			HasMore:    true,
			NextCursor: "c1",
		}, nil),
		client.EXPECT().ListProducts(gomock.Any(), fullScan("c1")).Return(&catalog.Page{
			Products: []models.Product{inventoryProduct("p2", models.StatusActive, 3)},
		}, nil),
	)
	client.EXPECT().UpdateProduct(gomock.Any(), "p1", gomock.Any()).Return(&catalog.UpdateResult{OK: true}, nil).Times(1)

	summary, err := New(client, testConfig(), zap.NewNop(), WithMetrics(metrics)).Run(context.Background(), models.InventoryJob(""))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSuccess, summary.Outcome)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 2, metrics.retries["list_products"])
}

func TestRun_ListRetriesExhausted(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().ListProducts(gomock.Any(), gomock.Any()).Return(nil, apperr.Transient("timeout")).Times(4)

	summary, err := New(client, testConfig(), zap.NewNop()).Run(context.Background(), models.InventoryJob(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrFatal)
	assert.ErrorIs(t, err, apperr.ErrTransient)

	require.NotNil(t, summary)
	assert.Equal(t, models.OutcomeError, summary.Outcome)
	assert.Contains(t, summary.Error, "retries exhausted")
	assert.Zero(t, summary.Pages)
}

func TestRun_MalformedPageAborts(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().ListProducts(gomock.Any(), gomock.Any()).
		Return(nil, apperr.Fatal("missing pageInfo in products response")).Times(1)

	summary, err := New(client, testConfig(), zap.NewNop()).Run(context.Background(), models.InventoryJob(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrFatal)
	assert.Equal(t, models.OutcomeError, summary.Outcome)
	assert.False(t, summary.Succeeded())
}

func TestRun_NilPageIsFatal(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().ListProducts(gomock.Any(), gomock.Any()).Return(nil, nil)

	summary, err := New(client, testConfig(), zap.NewNop()).Run(context.Background(), models.InventoryJob(""))
	require.Error(t, err)
	assert.Equal(t, models.OutcomeError, summary.Outcome)
}

func TestRun_UserErrorsAreNotFatal(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	metrics := newCountingMetrics()

	client.EXPECT().ListProducts(gomock.Any(), gomock.Any()).Return(&catalog.Page{
		Products: []models.Product{
			inventoryProduct("p1", models.StatusActive, 0),
			inventoryProduct("p2", models.StatusActive, 0),
		},
	}, nil)
	client.EXPECT().UpdateProduct(gomock.Any(), "p1", gomock.Any()).Return(&catalog.UpdateResult{
		UserErrors: []catalog.UserError{{Field: []string{"status"}, Message: "cannot draft"}},
	}, nil)
	client.EXPECT().UpdateProduct(gomock.Any(), "p2", gomock.Any()).Return(&catalog.UpdateResult{OK: true}, nil)

	summary, err := New(client, testConfig(), zap.NewNop(), WithMetrics(metrics)).Run(context.Background(), models.InventoryJob(""))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Updates, 2)
	assert.False(t, summary.Updates[0].OK)
	assert.Equal(t, "status: cannot draft", summary.Updates[0].Error)
	assert.True(t, summary.Updates[1].OK)
	assert.Equal(t, 1, metrics.mutations["failed"])
}

func TestRun_MutationRetriesExhaustedContinues(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().ListProducts(gomock.Any(), gomock.Any()).Return(&catalog.Page{
		Products: []models.Product{
			inventoryProduct("p1", models.StatusActive, 0),
			inventoryProduct("p2", models.StatusActive, 0),
		},
	}, nil)
	client.EXPECT().UpdateProduct(gomock.Any(), "p1", gomock.Any()).Return(nil, apperr.Transient("throttled")).Times(4)
	client.EXPECT().UpdateProduct(gomock.Any(), "p2", gomock.Any()).Return(&catalog.UpdateResult{OK: true}, nil)

	summary, err := New(client, testConfig(), zap.NewNop()).Run(context.Background(), models.InventoryJob(""))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Updates[0].Error, "retries exhausted")
}

func TestRun_MutationAuthFailureAborts(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().ListProducts(gomock.Any(), gomock.Any()).Return(&catalog.Page{
		Products: []models.Product{
			inventoryProduct("p1", models.StatusActive, 0),
			inventoryProduct("p2", models.StatusActive, 0),
		},
	}, nil)
	client.EXPECT().UpdateProduct(gomock.Any(), "p1", gomock.Any()).Return(nil, apperr.Fatal("unauthorized: status 401"))

	summary, err := New(client, testConfig(), zap.NewNop()).Run(context.Background(), models.InventoryJob(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrFatal)
	assert.Equal(t, models.OutcomeError, summary.Outcome)
	assert.Equal(t, 2, summary.Scanned)
	assert.Zero(t, summary.Updated)
}

func TestRun_DeadlineTruncates(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	fake := testingclock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	cfg := testConfig()
	cfg.Deadline = 10 * time.Second

	client.EXPECT().ListProducts(gomock.Any(), fullScan("")).
		DoAndReturn(func(context.Context, catalog.ListRequest) (*catalog.Page, error) {
			fake.Step(4 * time.Second)
			return &catalog.Page{
				Products: []models.Product{
					inventoryProduct("p1", models.StatusActive, 0),
					inventoryProduct("p2", models.StatusActive, 0),
				},
				HasMore:    true,
				NextCursor: "c1",
			}, nil
		})
	client.EXPECT().UpdateProduct(gomock.Any(), "p1", gomock.Any()).
		DoAndReturn(func(context.Context, string, catalog.Update) (*catalog.UpdateResult, error) {
			fake.Step(7 * time.Second)
			return &catalog.UpdateResult{OK: true}, nil
		})

	summary, err := New(client, cfg, zap.NewNop(), WithClock(fake)).Run(context.Background(), models.InventoryJob(""))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSuccess, summary.Outcome)
	assert.True(t, summary.Truncated)
	assert.Equal(t, 1, summary.Pages)
	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 2, summary.Matched)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 11*time.Second, summary.Elapsed)
}

func TestRun_ChunkedFiltersEvaluateOnce(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	keys := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		keys = append(keys, fmt.Sprintf("80%02d", i))
	}
	shared := models.Product{
		ID:       "p1",
		Status:   models.StatusActive,
		Tags:     []string{"a"},
		Variants: []models.Variant{{Barcode: "8000"}, {Barcode: "8055"}},
	}

	var queries []string
	client.EXPECT().ListProducts(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req catalog.ListRequest) (*catalog.Page, error) {
			queries = append(queries, req.Filter.Query)
			return &catalog.Page{Products: []models.Product{shared}}, nil
		}).Times(2)
	client.EXPECT().UpdateProduct(gomock.Any(), "p1", catalog.Update{Tags: []string{"a", "promo"}}).
		Return(&catalog.UpdateResult{OK: true}, nil).Times(1)

	job := models.SyncJob{
		Name:      "ean",
		Criterion: models.Criterion{Kind: models.CriterionKeySet, Keys: keys},
		Mutation:  models.MutationSpec{Tag: "promo"},
	}
	summary, err := New(client, testConfig(), zap.NewNop()).Run(context.Background(), job)
	require.NoError(t, err)

	require.Len(t, queries, 2)
	assert.Contains(t, queries[0], "barcode:8000")
	assert.Contains(t, queries[1], "barcode:8055")
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, "8000", summary.Updates[0].MatchedKey)
}

func TestRun_UnchangedNotWritten(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().ListProducts(gomock.Any(), gomock.Any()).Return(&catalog.Page{
		Products: []models.Product{{ID: "p1", Status: models.StatusActive, Tags: []string{"promo"}, Variants: []models.Variant{{Barcode: "1"}}}},
	}, nil)

	job := models.SyncJob{
		Criterion: models.Criterion{Kind: models.CriterionKeySet, Keys: []string{"1"}},
		Mutation:  models.MutationSpec{Tag: "promo", Status: models.StatusActive},
	}
	summary, err := New(client, testConfig(), zap.NewNop()).Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, "key_set", summary.Action)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Unchanged)
	assert.Zero(t, summary.Updated)
}

func TestRun_CostUsedAccumulates(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().ListProducts(gomock.Any(), gomock.Any()).Return(&catalog.Page{
		Products: []models.Product{inventoryProduct("p1", models.StatusActive, 0)},
		Cost:     &catalog.CostInfo{Requested: 50, Used: 20, Available: 980, Limit: 1000, RestoreRate: 50},
	}, nil)
	client.EXPECT().UpdateProduct(gomock.Any(), "p1", gomock.Any()).Return(&catalog.UpdateResult{
		OK:   true,
		Cost: &catalog.CostInfo{Requested: 10, Used: 10, Available: 970, Limit: 1000, RestoreRate: 50},
	}, nil)

	summary, err := New(client, testConfig(), zap.NewNop()).Run(context.Background(), models.InventoryJob(""))
	require.NoError(t, err)
	assert.Equal(t, 30.0, summary.CostUsed)
}

func TestRun_ValidationErrorSkipsRun(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	summary, err := New(client, testConfig(), zap.NewNop()).Run(context.Background(), models.SyncJob{
		Criterion: models.Criterion{Kind: models.CriterionKeySet},
		Mutation:  models.MutationSpec{Tag: "x"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Nil(t, summary)
}

func TestRun_CancelledContextAborts(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := New(client, testConfig(), zap.NewNop()).Run(ctx, models.InventoryJob(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrFatal)
	assert.Equal(t, models.OutcomeError, summary.Outcome)
}
