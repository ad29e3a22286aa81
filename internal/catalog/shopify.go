package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"quickedit/internal/apperr"
	"quickedit/internal/models"
	"quickedit/internal/pkg/httpclient"
)

// DefaultAPIVersion is the admin API version used when none is configured.
const DefaultAPIVersion = "2024-04"

// ShopifyClient implements Client against the Shopify Admin GraphQL API.
type ShopifyClient struct {
	endpoint string
	client   *httpclient.Client
	logger   *zap.Logger
}

// NewShopifyClient creates a client for store ("<shop>.myshopify.com").
func NewShopifyClient(store, accessToken, apiVersion string, timeout time.Duration, logger *zap.Logger) *ShopifyClient {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	store = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(store, "https://"), "http://"), "/")
	return NewShopifyClientWithEndpoint(
		fmt.Sprintf("https://%s/admin/api/%s/graphql.json", store, apiVersion),
		accessToken, timeout, logger,
	)
}

// NewShopifyClientWithEndpoint creates a client for an explicit GraphQL endpoint URL.
func NewShopifyClientWithEndpoint(endpoint, accessToken string, timeout time.Duration, logger *zap.Logger) *ShopifyClient {
	return &ShopifyClient{
		endpoint: endpoint,
		client: httpclient.New().
			WithTimeout(timeout).
			WithHeader("X-Shopify-Access-Token", accessToken),
		logger: logger,
	}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type graphQLResponse struct {
	Data       json.RawMessage `json:"data"`
	Errors     json.RawMessage `json:"errors,omitempty"`
	Extensions *struct {
		Cost *costExtension `json:"cost"`
	} `json:"extensions,omitempty"`
}

type costExtension struct {
	RequestedQueryCost float64  `json:"requestedQueryCost"`
	ActualQueryCost    *float64 `json:"actualQueryCost"`
	ThrottleStatus     *struct {
		MaximumAvailable   float64 `json:"maximumAvailable"`
		CurrentlyAvailable float64 `json:"currentlyAvailable"`
		RestoreRate        float64 `json:"restoreRate"`
	} `json:"throttleStatus"`
}

type productNode struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Status   string   `json:"status"`
	Tags     []string `json:"tags"`
	Variants struct {
		Nodes []struct {
			ID                string  `json:"id"`
			Barcode           *string `json:"barcode"`
			InventoryQuantity *int    `json:"inventoryQuantity"`
		} `json:"nodes"`
	} `json:"variants"`
	Metafields struct {
		Nodes []struct {
			Namespace string `json:"namespace"`
			Key       string `json:"key"`
			Value     string `json:"value"`
		} `json:"nodes"`
	} `json:"metafields"`
}

type productsData struct {
	Products *struct {
		PageInfo *struct {
			HasNextPage bool    `json:"hasNextPage"`
			EndCursor   *string `json:"endCursor"`
		} `json:"pageInfo"`
		Nodes []productNode `json:"nodes"`
	} `json:"products"`
}

type productUpdateData struct {
	ProductUpdate *struct {
		Product *struct {
			ID string `json:"id"`
		} `json:"product"`
		UserErrors []UserError `json:"userErrors"`
	} `json:"productUpdate"`
}

// ListProducts fetches one page of products.
func (c *ShopifyClient) ListProducts(ctx context.Context, req ListRequest) (*Page, error) {
	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	variables := map[string]interface{}{
		"first": pageSize,
	}
	if req.Cursor != "" {
		variables["after"] = req.Cursor
	}
	if !req.Filter.IsFullScan() {
		variables["query"] = req.Filter.Query
	}

	resp, err := c.do(ctx, graphQLRequest{Query: productsQuery, Variables: variables})
	if err != nil {
		return nil, err
	}

	var data productsData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, apperr.Fatal("products parse error: %v", err)
	}
	if data.Products == nil {
		return nil, apperr.Fatal("invalid or missing 'products' structure in response")
	}
	if data.Products.PageInfo == nil {
		return nil, apperr.Fatal("missing pageInfo in products response")
	}

	page := &Page{
		Products: make([]models.Product, 0, len(data.Products.Nodes)),
		HasMore:  data.Products.PageInfo.HasNextPage,
		Cost:     costInfo(resp),
	}
	if data.Products.PageInfo.EndCursor != nil {
		page.NextCursor = *data.Products.PageInfo.EndCursor
	}
	if page.HasMore && page.NextCursor == "" {
		return nil, apperr.Fatal("products page has more results but no endCursor")
	}

	for _, node := range data.Products.Nodes {
		page.Products = append(page.Products, node.toProduct())
	}
	return page, nil
}

// UpdateProduct applies tags and/or status to a product.
func (c *ShopifyClient) UpdateProduct(ctx context.Context, id string, update Update) (*UpdateResult, error) {
	input := map[string]interface{}{
		"id": id,
	}
	if update.Tags != nil {
		input["tags"] = update.Tags
	}
	if update.Status != nil {
		input["status"] = strings.ToUpper(string(*update.Status))
	}

	resp, err := c.do(ctx, graphQLRequest{
		Query:     productUpdateMutation,
		Variables: map[string]interface{}{"input": input},
	})
	if err != nil {
		return nil, err
	}

	result := &UpdateResult{Cost: costInfo(resp)}

	var data productUpdateData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, apperr.Fatal("productUpdate parse error: %v", err)
	}
	if data.ProductUpdate == nil {
		result.UserErrors = []UserError{{Message: "empty productUpdate payload"}}
		return result, nil
	}

	result.UserErrors = data.ProductUpdate.UserErrors
	result.OK = len(result.UserErrors) == 0
	return result, nil
}

// do posts a GraphQL document and classifies failures.
func (c *ShopifyClient) do(ctx context.Context, req graphQLRequest) (*graphQLResponse, error) {
	resp, err := c.client.PostJSON(ctx, c.endpoint, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Fatal("request cancelled: %v", ctx.Err())
		}
		return nil, apperr.Transient("request failed: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperr.Transient("throttled: status %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, apperr.Transient("server error: status %d", resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperr.Fatal("unauthorized: status %d: %s", resp.StatusCode, truncate(resp.Body))
	case resp.StatusCode >= 300:
		return nil, apperr.Fatal("API request failed with status %d: %s", resp.StatusCode, truncate(resp.Body))
	}

	var parsed graphQLResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, apperr.Fatal("error parsing JSON response: %v", err)
	}

	if errs := decodeErrors(parsed.Errors); len(errs) > 0 {
		messages := make([]string, 0, len(errs))
		throttled := false
		for _, e := range errs {
			messages = append(messages, e.Message)
			if strings.EqualFold(e.Extensions.Code, "THROTTLED") {
				throttled = true
			}
		}
		if throttled {
			return nil, apperr.Transient("throttled: %s", strings.Join(messages, "; "))
		}
		return nil, apperr.Fatal("GraphQL errors encountered: %s", strings.Join(messages, "; "))
	}

	if len(parsed.Data) == 0 || bytes.Equal(parsed.Data, []byte("null")) {
		return nil, apperr.Fatal("received nil data in GraphQL response")
	}

	if cost := costInfo(&parsed); cost != nil && c.logger != nil {
		c.logger.Debug("GraphQL call cost",
			zap.Float64("requested", cost.Requested),
			zap.Float64("used", cost.Used),
			zap.Float64("available", cost.Available))
	}
	return &parsed, nil
}

// decodeErrors accepts both the list form and the bare string form of "errors".
func decodeErrors(raw json.RawMessage) []graphQLError {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var list []graphQLError
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
		return []graphQLError{{Message: msg}}
	}
	return []graphQLError{{Message: string(raw)}}
}

func costInfo(resp *graphQLResponse) *CostInfo {
	if resp == nil || resp.Extensions == nil || resp.Extensions.Cost == nil {
		return nil
	}
	cost := resp.Extensions.Cost
	info := &CostInfo{
		Requested: cost.RequestedQueryCost,
		Used:      cost.RequestedQueryCost,
	}
	if cost.ActualQueryCost != nil {
		info.Used = *cost.ActualQueryCost
	}
	if cost.ThrottleStatus != nil {
		info.Available = cost.ThrottleStatus.CurrentlyAvailable
		info.Limit = cost.ThrottleStatus.MaximumAvailable
		info.RestoreRate = cost.ThrottleStatus.RestoreRate
	}
	return info
}

func (n productNode) toProduct() models.Product {
	p := models.Product{
		ID:         n.ID,
		Title:      n.Title,
		Status:     models.ProductStatus(strings.ToUpper(n.Status)),
		Tags:       n.Tags,
		Variants:   make([]models.Variant, 0, len(n.Variants.Nodes)),
		Metafields: make(map[string]string, len(n.Metafields.Nodes)),
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	for _, v := range n.Variants.Nodes {
		variant := models.Variant{ID: v.ID}
		if v.Barcode != nil {
			variant.Barcode = *v.Barcode
		}
		if v.InventoryQuantity != nil {
			variant.InventoryQuantity = *v.InventoryQuantity
		}
		p.Variants = append(p.Variants, variant)
	}
	for _, m := range n.Metafields.Nodes {
		key := m.Key
		if m.Namespace != "" {
			key = m.Namespace + "." + m.Key
		}
		p.Metafields[key] = m.Value
	}
	return p
}

func truncate(body []byte) string {
	const max = 300
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
