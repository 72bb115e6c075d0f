package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type countingSource struct {
	quote model.Quote
	err   error
	calls int
}

func (s *countingSource) GetActivePrice(ctx context.Context, product types.ProductType) (model.Quote, error) {
	s.calls++
	if s.err != nil {
		return model.Quote{}, s.err
	}
	q := s.quote
	q.Product = product
	return q, nil
}

func goldQuote() model.Quote {
	return model.Quote{BuyPrice: decimal.NewFromInt(1000000), SellPrice: decimal.NewFromInt(980000), Source: "admin"}
}

func TestRedisCacheHitAndExpiry(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	src := &countingSource{quote: goldQuote()}
	cache := NewRedisCache(client, src, time.Second, "test:", nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q, err := cache.GetActivePrice(ctx, types.ProductGold18K)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !q.BuyPrice.Equal(decimal.NewFromInt(1000000)) {
			t.Fatalf("unexpected buy price %s", q.BuyPrice)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected one source call, got %d", src.calls)
	}

	s.FastForward(2 * time.Second)
	if _, err := cache.GetActivePrice(ctx, types.ProductGold18K); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", src.calls)
	}

	if err := cache.Invalidate(ctx, types.ProductGold18K); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := cache.GetActivePrice(ctx, types.ProductGold18K); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.calls != 3 {
		t.Fatalf("expected refetch after invalidate, got %d calls", src.calls)
	}
}

func TestRedisCacheDoesNotStoreErrors(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	src := &countingSource{err: unavailable(types.ProductCoinFull)}
	cache := NewRedisCache(client, src, time.Minute, "test:", nil)
	for i := 0; i < 2; i++ {
		if _, err := cache.GetActivePrice(context.Background(), types.ProductCoinFull); !errors.Is(err, apperr.ErrPriceUnavailable) {
			t.Fatalf("expected price unavailable, got %v", err)
		}
	}
	if src.calls != 2 {
		t.Fatalf("expected no negative caching, got %d calls", src.calls)
	}
}

func TestFallbackUsesSecondary(t *testing.T) {
	primary := &countingSource{err: errors.New("feed down")}
	secondary := &countingSource{quote: goldQuote()}
	f := NewFallback(primary, secondary, nil)
	q, err := f.GetActivePrice(context.Background(), types.ProductGold18K)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.calls != 1 || secondary.calls != 1 || q.Source != "admin" {
		t.Fatalf("unexpected fallback behaviour: %d %d %s", primary.calls, secondary.calls, q.Source)
	}
}

func TestFeedClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/prices/gold_18k":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"buy_price":"1000000","sell_price":"990000"}`))
		case "/prices/coin_half":
			_, _ = w.Write([]byte(`{"buy_price":"0","sell_price":"0"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewFeedClient(srv.URL+"/", time.Second)
	q, err := c.GetActivePrice(context.Background(), types.ProductGold18K)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.SellPrice.Equal(decimal.NewFromInt(990000)) || q.Source != "feed" {
		t.Fatalf("unexpected quote: %+v", q)
	}
	for _, p := range []types.ProductType{types.ProductCoinHalf, types.ProductCoinFull} {
		if _, err := c.GetActivePrice(context.Background(), p); !errors.Is(err, apperr.ErrPriceUnavailable) {
			t.Fatalf("%s: expected price unavailable, got %v", p, err)
		}
	}
}
