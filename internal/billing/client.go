package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/shopspring/decimal"

	"github.com/gabigallardo/control-panel/internal/fallback"
)

const (
	costsPath = "organization/costs"
	usagePath = "organization/usage/completions"
)

// Query is the window sent to both billing endpoints.
type Query struct {
	Start time.Time
	End   time.Time
	Plan  BucketPlan
}

// Source fetches validated buckets from the billing provider.
type Source interface {
	Costs(ctx context.Context, q Query) ([]CostBucket, error)
	Usage(ctx context.Context, q Query) ([]UsageBucket, error)
}

// ClientOptions configure the organization billing client.
type ClientOptions struct {
	AdminKey       string
	Organization   string
	BaseURL        string
	RequestTimeout time.Duration
	MaxPages       int
	Extra          []option.RequestOption
}

// Client calls the organization cost and usage endpoints through the SDK's raw request surface.
type Client struct {
	client   *openai.Client
	maxPages int
}

// NewClient builds a billing client. The admin key is required.
func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.AdminKey) == "" {
		return nil, errors.New("billing: admin key required")
	}

	requestOpts := []option.RequestOption{
		option.WithAPIKey(opts.AdminKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(opts.BaseURL) != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")))
	}
	if strings.TrimSpace(opts.Organization) != "" {
		requestOpts = append(requestOpts, option.WithOrganization(strings.TrimSpace(opts.Organization)))
	}
	if opts.RequestTimeout > 0 {
		requestOpts = append(requestOpts, option.WithRequestTimeout(opts.RequestTimeout))
	}
	requestOpts = append(requestOpts, opts.Extra...)

	client := openai.NewClient(requestOpts...)
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	return &Client{client: &client, maxPages: maxPages}, nil
}

// Costs returns the cost buckets grouped by line item.
func (c *Client) Costs(ctx context.Context, q Query) ([]CostBucket, error) {
	var buckets []CostBucket
	err := c.paginate(ctx, costsPath, q, "line_item", func(raw []byte) (pageInfo, error) {
		var page costPage
		if err := json.Unmarshal(raw, &page); err != nil {
			return pageInfo{}, fmt.Errorf("%w: costs page: %v", fallback.ErrMalformed, err)
		}
		buckets = append(buckets, page.toCostBuckets()...)
		return page.pageInfo, nil
	})
	if err != nil {
		return nil, err
	}
	return buckets, nil
}

// Usage returns the completion usage buckets grouped by model.
func (c *Client) Usage(ctx context.Context, q Query) ([]UsageBucket, error) {
	var buckets []UsageBucket
	err := c.paginate(ctx, usagePath, q, "model", func(raw []byte) (pageInfo, error) {
		var page usagePage
		if err := json.Unmarshal(raw, &page); err != nil {
			return pageInfo{}, fmt.Errorf("%w: usage page: %v", fallback.ErrMalformed, err)
		}
		buckets = append(buckets, page.toUsageBuckets()...)
		return page.pageInfo, nil
	})
	if err != nil {
		return nil, err
	}
	return buckets, nil
}

func (c *Client) paginate(ctx context.Context, path string, q Query, groupBy string, decode func([]byte) (pageInfo, error)) error {
	cursor := ""
	for page := 0; page < c.maxPages; page++ {
		opts := []option.RequestOption{
			option.WithQuery("start_time", strconv.FormatInt(q.Start.Unix(), 10)),
			option.WithQuery("end_time", strconv.FormatInt(q.End.Unix(), 10)),
			option.WithQuery("bucket_width", string(q.Plan.Width)),
			option.WithQuery("limit", strconv.Itoa(q.Plan.Samples)),
			option.WithQueryAdd("group_by[]", groupBy),
		}
		if cursor != "" {
			opts = append(opts, option.WithQuery("page", cursor))
		}

		var raw []byte
		if err := c.client.Get(ctx, path, nil, &raw, opts...); err != nil {
			return fmt.Errorf("get %s: %w", path, err)
		}
		info, err := decode(raw)
		if err != nil {
			return err
		}
		if !info.more() {
			return nil
		}
		cursor = *info.NextPage
	}
	return nil
}

// StatusCode extracts the upstream HTTP status from an SDK error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type pageInfo struct {
	HasMore  *bool   `json:"has_more"`
	NextPage *string `json:"next_page"`
}

func (p pageInfo) more() bool {
	return p.HasMore != nil && *p.HasMore && p.NextPage != nil && *p.NextPage != ""
}

type costPage struct {
	pageInfo
	Data []costBucketPayload `json:"data"`
}

type costBucketPayload struct {
	StartTime *int64              `json:"start_time"`
	Results   []costResultPayload `json:"results"`
}

type costResultPayload struct {
	LineItem *string `json:"line_item"`
	Amount   *struct {
		Value    *decimal.Decimal `json:"value"`
		Currency *string          `json:"currency"`
	} `json:"amount"`
}

type usagePage struct {
	pageInfo
	Data []usageBucketPayload `json:"data"`
}

type usageBucketPayload struct {
	StartTime *int64               `json:"start_time"`
	Results   []usageResultPayload `json:"results"`
}

type usageResultPayload struct {
	Model            *string `json:"model"`
	InputTokens      *int64  `json:"input_tokens"`
	OutputTokens     *int64  `json:"output_tokens"`
	NumModelRequests *int64  `json:"num_model_requests"`
	Group            *struct {
		Model *string `json:"model"`
	} `json:"group"`
}

func (p costPage) toCostBuckets() []CostBucket {
	buckets := make([]CostBucket, 0, len(p.Data))
	for _, b := range p.Data {
		bucket := CostBucket{Start: epoch(b.StartTime)}
		for _, r := range b.Results {
			amount := decimal.Zero
			if r.Amount != nil && r.Amount.Value != nil && r.Amount.Value.IsPositive() {
				amount = *r.Amount.Value
			}
			bucket.LineItems = append(bucket.LineItems, CostLineItem{Name: deref(r.LineItem), Amount: amount})
		}
		buckets = append(buckets, bucket)
	}
	return buckets
}

func (p usagePage) toUsageBuckets() []UsageBucket {
	buckets := make([]UsageBucket, 0, len(p.Data))
	for _, b := range p.Data {
		bucket := UsageBucket{Start: epoch(b.StartTime)}
		for _, r := range b.Results {
			model := deref(r.Model)
			if model == "" && r.Group != nil {
				model = deref(r.Group.Model)
			}
			if model == "" {
				model = "unknown"
			}
			bucket.Results = append(bucket.Results, ModelUsage{
				Model:        model,
				InputTokens:  nonNegative(r.InputTokens),
				OutputTokens: nonNegative(r.OutputTokens),
				Requests:     nonNegative(r.NumModelRequests),
			})
		}
		buckets = append(buckets, bucket)
	}
	return buckets
}

func epoch(v *int64) time.Time {
	if v == nil {
		return time.Unix(0, 0).UTC()
	}
	return time.Unix(*v, 0).UTC()
}

func nonNegative(v *int64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
