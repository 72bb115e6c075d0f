package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/ledger"
	"lv-goldex/internal/model"
	"lv-goldex/internal/testutil"
	"lv-goldex/internal/types"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeGate struct{ err error }

func (g *fakeGate) Check(ctx context.Context) error { return g.err }

func newService(mem *testutil.MemStore, gate *fakeGate) *Service {
	l := ledger.NewService(mem, mem.Ledger(), nil, nil, nil)
	fees := Fees{PerGram: dec("10000"), PerCoin: dec("50000")}
	return NewService(mem, mem.Deliveries(), mem.Orders(), l, gate, nil, fees, nil, nil)
}

func goldRequest(userID, amount string) CreateRequest {
	return CreateRequest{UserID: userID, Product: types.ProductGold18K, Amount: dec(amount), Address: "Tehran, Valiasr St. 12"}
}

func TestCreateRejectedWhileOrderOpen(t *testing.T) {
	mem := testutil.NewMemStore()
	mem.SeedWallet("u1", types.WalletKindGold, dec("5"))
	mem.SeedWallet("u1", types.WalletKindRial, dec("100000"))
	mem.SeedOrder(model.Order{UserID: "u1", Status: types.OrderStatusConfirmed, Side: types.OrderSideSell, Product: types.ProductGold18K, Amount: dec("1")})

	_, err := newService(mem, &fakeGate{}).Create(context.Background(), goldRequest("u1", "2"))
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateComputesFeeWithoutCharging(t *testing.T) {
	mem := testutil.NewMemStore()
	mem.SeedWallet("u1", types.WalletKindGold, dec("5"))
	mem.SeedWallet("u1", types.WalletKindRial, dec("100000"))

	d, err := newService(mem, &fakeGate{}).Create(context.Background(), goldRequest("u1", "2"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.Status != types.DeliveryStatusPending || !d.CommissionFee.Equal(dec("20000")) {
		t.Fatalf("unexpected request %+v", d)
	}
	if d.ChargedAt != nil {
		t.Fatalf("pending request must not be charged")
	}
	gold, _ := mem.Wallet("u1", types.WalletKindGold)
	if !gold.Balance.Equal(dec("5")) {
		t.Fatalf("gold moved at creation: %s", gold.Balance)
	}
}

func TestCreateValidatesHoldings(t *testing.T) {
	mem := testutil.NewMemStore()
	mem.SeedWallet("u1", types.WalletKindGold, dec("1"))
	mem.SeedWallet("u1", types.WalletKindRial, dec("100000"))
	svc := newService(mem, &fakeGate{})

	_, err := svc.Create(context.Background(), goldRequest("u1", "3"))
	if shortage, ok := apperr.ShortageOf(err); !ok || !shortage.Equal(dec("2")) {
		t.Fatalf("expected gold shortage 2, got %v", err)
	}

	mem.SeedCoins("u1", types.ProductCoinQuarter, dec("4"))
	_, err = svc.Create(context.Background(), CreateRequest{UserID: "u1", Product: types.ProductCoinQuarter, Amount: dec("3"), Address: "Shiraz"})
	if shortage, ok := apperr.ShortageOf(err); !ok || !shortage.Equal(dec("50000")) {
		t.Fatalf("expected fee shortage 50000, got %v", err)
	}
}

func TestCreateBlockedWhilePaused(t *testing.T) {
	mem := testutil.NewMemStore()
	mem.SeedWallet("u1", types.WalletKindGold, dec("5"))
	_, err := newService(mem, &fakeGate{err: apperr.TradingPaused("maintenance")}).Create(context.Background(), goldRequest("u1", "1"))
	if !errors.Is(err, apperr.ErrTradingPaused) {
		t.Fatalf("expected trading paused, got %v", err)
	}
}

func TestApproveChargesAndCancelRefunds(t *testing.T) {
	mem := testutil.NewMemStore()
	mem.SeedWallet("u1", types.WalletKindGold, dec("5"))
	mem.SeedWallet("u1", types.WalletKindRial, dec("100000"))
	svc := newService(mem, &fakeGate{})
	ctx := context.Background()

	d, err := svc.Create(ctx, goldRequest("u1", "2"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	d, err = svc.Transition(ctx, "admin", d.ID, types.DeliveryStatusApproved, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if d.ChargedAt == nil {
		t.Fatalf("approval must record the charge")
	}
	gold, _ := mem.Wallet("u1", types.WalletKindGold)
	rial, _ := mem.Wallet("u1", types.WalletKindRial)
	if !gold.Balance.Equal(dec("3")) || !rial.Balance.Equal(dec("80000")) {
		t.Fatalf("expected gold 3 rial 80000, got %s %s", gold.Balance, rial.Balance)
	}

	if _, err := svc.Transition(ctx, "admin", d.ID, types.DeliveryStatusCancelled, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("cancel without reason should fail validation, got %v", err)
	}
	d, err = svc.Transition(ctx, "admin", d.ID, types.DeliveryStatusCancelled, "address unreachable")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if d.CancelReason != "address unreachable" {
		t.Fatalf("cancel reason not stored: %q", d.CancelReason)
	}
	gold, _ = mem.Wallet("u1", types.WalletKindGold)
	rial, _ = mem.Wallet("u1", types.WalletKindRial)
	if !gold.Balance.Equal(dec("5")) || !rial.Balance.Equal(dec("100000")) {
		t.Fatalf("expected refund to gold 5 rial 100000, got %s %s", gold.Balance, rial.Balance)
	}
	if ok, msg := mem.ConservationHolds(); !ok {
		t.Fatal(msg)
	}
}

func TestCoinDeliveryFullLifecycle(t *testing.T) {
	mem := testutil.NewMemStore()
	mem.SeedCoins("u1", types.ProductCoinFull, dec("2"))
	mem.SeedWallet("u1", types.WalletKindRial, dec("50000"))
	svc := newService(mem, &fakeGate{})
	svc.SetClock(func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) })
	ctx := context.Background()

	d, err := svc.Create(ctx, CreateRequest{UserID: "u1", Product: types.ProductCoinFull, Amount: dec("1"), Address: "Isfahan"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, to := range []types.DeliveryStatus{types.DeliveryStatusApproved, types.DeliveryStatusProcessing, types.DeliveryStatusReady, types.DeliveryStatusDelivered} {
		if d, err = svc.Transition(ctx, "admin", d.ID, to, ""); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	if d.DeliveredAt == nil {
		t.Fatalf("deliveredAt not set")
	}
	if q := mem.Coins("u1")[types.ProductCoinFull]; !q.Equal(dec("1")) {
		t.Fatalf("expected one coin left, got %s", q)
	}
	if _, err := svc.Transition(ctx, "admin", d.ID, types.DeliveryStatusCancelled, "late"); !errors.Is(err, apperr.ErrAlreadyProcessed) {
		t.Fatalf("expected already processed after delivery, got %v", err)
	}
}

func TestTransitionCannotSkipSteps(t *testing.T) {
	mem := testutil.NewMemStore()
	mem.SeedWallet("u1", types.WalletKindGold, dec("5"))
	mem.SeedWallet("u1", types.WalletKindRial, dec("100000"))
	svc := newService(mem, &fakeGate{})

	d, err := svc.Create(context.Background(), goldRequest("u1", "1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Transition(context.Background(), "admin", d.ID, types.DeliveryStatusReady, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransitionMalformedIDIsNotFound(t *testing.T) {
	svc := newService(testutil.NewMemStore(), &fakeGate{})
	if _, err := svc.Transition(context.Background(), "admin", "42", types.DeliveryStatusApproved, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
