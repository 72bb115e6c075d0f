package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/shopspring/decimal"
)

// FeedClient reads quotes from an external JSON price feed:
// GET {base}/prices/{product} -> {"buy_price": "...", "sell_price": "...", "updated_at": "..."}.
type FeedClient struct {
	baseURL string
	http    *http.Client
	maxAge  time.Duration
}

func NewFeedClient(baseURL string, timeout time.Duration) *FeedClient {
	return &FeedClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		maxAge:  5 * time.Minute,
	}
}

type feedQuote struct {
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (c *FeedClient) GetActivePrice(ctx context.Context, product types.ProductType) (model.Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/prices/"+url.PathEscape(string(product)), nil)
	if err != nil {
		return model.Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return model.Quote{}, fmt.Errorf("price feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return model.Quote{}, unavailable(product)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Quote{}, fmt.Errorf("price feed status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var fq feedQuote
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&fq); err != nil {
		return model.Quote{}, fmt.Errorf("decode price feed: %w", err)
	}
	q := model.Quote{Product: product, BuyPrice: fq.BuyPrice, SellPrice: fq.SellPrice, Source: "feed", UpdatedAt: fq.UpdatedAt}
	if !validQuote(q) {
		return model.Quote{}, unavailable(product)
	}
	if !q.UpdatedAt.IsZero() && time.Since(q.UpdatedAt) > c.maxAge {
		return model.Quote{}, fmt.Errorf("price feed quote for %s is stale", product)
	}
	return q, nil
}
