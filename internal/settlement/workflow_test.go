package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lv-goldex/internal/apperr"
	"lv-goldex/internal/ledger"
	"lv-goldex/internal/model"
	"lv-goldex/internal/sweeper"
	"lv-goldex/internal/testutil"
	"lv-goldex/internal/types"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingNotifier struct {
	mu     sync.Mutex
	titles map[string][]string
}

func (n *recordingNotifier) Notify(userID, title, message string, metadata map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.titles == nil {
		n.titles = make(map[string][]string)
	}
	n.titles[userID] = append(n.titles[userID], title)
}

type fixture struct {
	mem    *testutil.MemStore
	ledger *ledger.Service
	wf     *Workflow
	notify *recordingNotifier
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := testutil.NewMemStore()
	f := &fixture{mem: mem, notify: &recordingNotifier{}, now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	f.ledger = ledger.NewService(mem, mem.Ledger(), nil, nil, nil)
	f.wf = NewWorkflow(mem, mem.Orders(), f.ledger, f.notify, nil, nil)
	f.wf.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) seedPending(userID string, side types.OrderSide, product types.ProductType, amount, unit, commission string) model.Order {
	expires := f.now.Add(3 * time.Minute)
	a, u := dec(amount), dec(unit)
	return f.mem.SeedOrder(model.Order{
		UserID:           userID,
		Side:             side,
		Product:          product,
		Amount:           a,
		UnitPrice:        u,
		TotalPrice:       a.Mul(u),
		CommissionRate:   dec("0.01"),
		CommissionAmount: dec(commission),
		Status:           types.OrderStatusPending,
		PriceLockedAt:    f.now,
		ExpiresAt:        &expires,
		CreatedAt:        f.now,
		UpdatedAt:        f.now,
	})
}

func TestCompleteBuyGoldSettlesBalances(t *testing.T) {
	f := newFixture(t)
	f.mem.SeedWallet("u1", types.WalletKindRial, dec("2020000"))
	o := f.seedPending("u1", types.OrderSideBuy, types.ProductGold18K, "2", "1000000", "20000")

	got, err := f.wf.TransitionOrder(context.Background(), "admin", o.ID, types.OrderStatusCompleted, "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Status != types.OrderStatusCompleted || got.CompletedAt == nil {
		t.Fatalf("unexpected order %+v", got)
	}
	rial, _ := f.mem.Wallet("u1", types.WalletKindRial)
	gold, _ := f.mem.Wallet("u1", types.WalletKindGold)
	if !rial.Balance.IsZero() {
		t.Fatalf("expected rial 0, got %s", rial.Balance)
	}
	if !gold.Balance.Equal(dec("2")) {
		t.Fatalf("expected gold 2, got %s", gold.Balance)
	}
	var kinds []types.TransactionKind
	for _, tx := range f.mem.AllTransactions() {
		if tx.ReferenceID == o.ID {
			kinds = append(kinds, tx.Kind)
		}
	}
	want := []types.TransactionKind{types.TransactionKindOrderPayment, types.TransactionKindCommission, types.TransactionKindDeposit}
	if len(kinds) != len(want) {
		t.Fatalf("expected rows %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected rows %v, got %v", want, kinds)
		}
	}
	if ok, msg := f.mem.ConservationHolds(); !ok {
		t.Fatal(msg)
	}
	if titles := f.notify.titles["u1"]; len(titles) != 1 || titles[0] != "Order completed" {
		t.Fatalf("expected completion notice, got %v", titles)
	}
}

func TestCompleteSellCoinMovesHoldings(t *testing.T) {
	f := newFixture(t)
	f.mem.SeedCoins("u1", types.ProductCoinFull, dec("3"))
	o := f.seedPending("u1", types.OrderSideSell, types.ProductCoinFull, "2", "48000000", "1920000")

	if _, err := f.wf.TransitionOrder(context.Background(), "admin", o.ID, types.OrderStatusCompleted, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if q := f.mem.Coins("u1")[types.ProductCoinFull]; !q.Equal(dec("1")) {
		t.Fatalf("expected 1 coin left, got %s", q)
	}
	rial, _ := f.mem.Wallet("u1", types.WalletKindRial)
	if !rial.Balance.Equal(dec("94080000")) {
		t.Fatalf("expected rial 94080000, got %s", rial.Balance)
	}
	if ok, msg := f.mem.ConservationHolds(); !ok {
		t.Fatal(msg)
	}
}

func TestCompleteWithShortfallCommitsNothing(t *testing.T) {
	f := newFixture(t)
	f.mem.SeedWallet("u1", types.WalletKindRial, dec("1970000"))
	o := f.seedPending("u1", types.OrderSideBuy, types.ProductGold18K, "2", "1000000", "20000")
	before := len(f.mem.AllTransactions())

	_, err := f.wf.TransitionOrder(context.Background(), "admin", o.ID, types.OrderStatusCompleted, "")
	if !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	stored, _ := f.mem.Order(o.ID)
	if stored.Status != types.OrderStatusPending {
		t.Fatalf("order should stay pending, got %s", stored.Status)
	}
	rial, _ := f.mem.Wallet("u1", types.WalletKindRial)
	if !rial.Balance.Equal(dec("1970000")) {
		t.Fatalf("balance changed to %s", rial.Balance)
	}
	if len(f.mem.AllTransactions()) != before {
		t.Fatalf("transactions were recorded for a failed settlement")
	}
}

func TestStatusWriteFailureRollsBackSettlement(t *testing.T) {
	f := newFixture(t)
	f.mem.SeedWallet("u1", types.WalletKindRial, dec("2020000"))
	o := f.seedPending("u1", types.OrderSideBuy, types.ProductGold18K, "2", "1000000", "20000")
	f.mem.FailOn("UpdateStatus:"+o.ID, errors.New("connection reset"))

	if _, err := f.wf.TransitionOrder(context.Background(), "admin", o.ID, types.OrderStatusCompleted, ""); err == nil {
		t.Fatalf("expected failure")
	}
	rial, _ := f.mem.Wallet("u1", types.WalletKindRial)
	if !rial.Balance.Equal(dec("2020000")) {
		t.Fatalf("rial moved despite rollback: %s", rial.Balance)
	}
	if gold, ok := f.mem.Wallet("u1", types.WalletKindGold); ok && !gold.Balance.IsZero() {
		t.Fatalf("gold moved despite rollback: %s", gold.Balance)
	}
	stored, _ := f.mem.Order(o.ID)
	if stored.Status != types.OrderStatusPending {
		t.Fatalf("order should stay pending, got %s", stored.Status)
	}
	if ok, msg := f.mem.ConservationHolds(); !ok {
		t.Fatal(msg)
	}
}

func TestLapsedPendingOrderExpiresOnTouch(t *testing.T) {
	f := newFixture(t)
	f.mem.SeedWallet("u1", types.WalletKindRial, dec("2020000"))
	o := f.seedPending("u1", types.OrderSideBuy, types.ProductGold18K, "2", "1000000", "20000")
	f.now = f.now.Add(181 * time.Second)

	_, err := f.wf.TransitionOrder(context.Background(), "admin", o.ID, types.OrderStatusCompleted, "")
	if !errors.Is(err, apperr.ErrAlreadyProcessed) {
		t.Fatalf("expected already processed, got %v", err)
	}
	stored, _ := f.mem.Order(o.ID)
	if stored.Status != types.OrderStatusExpired {
		t.Fatalf("expected expired, got %s", stored.Status)
	}
	rial, _ := f.mem.Wallet("u1", types.WalletKindRial)
	if !rial.Balance.Equal(dec("2020000")) {
		t.Fatalf("balance moved for an expired order: %s", rial.Balance)
	}
}

func TestTerminalOrderRejectsTransition(t *testing.T) {
	f := newFixture(t)
	f.mem.SeedWallet("u1", types.WalletKindRial, dec("2020000"))
	o := f.seedPending("u1", types.OrderSideBuy, types.ProductGold18K, "2", "1000000", "20000")
	if _, err := f.wf.TransitionOrder(context.Background(), "admin", o.ID, types.OrderStatusCancelled, "customer request"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := f.wf.TransitionOrder(context.Background(), "admin", o.ID, types.OrderStatusCompleted, "")
	if !errors.Is(err, apperr.ErrAlreadyProcessed) {
		t.Fatalf("expected already processed, got %v", err)
	}
	stored, _ := f.mem.Order(o.ID)
	if stored.StatusReason != "customer request" {
		t.Fatalf("expected cancel note kept, got %q", stored.StatusReason)
	}
}

func TestSweptOrderCannotBeCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.SeedWallet("u1", types.WalletKindRial, dec("2020000"))
	o := f.seedPending("u1", types.OrderSideBuy, types.ProductGold18K, "2", "1000000", "20000")
	rowsBefore := len(f.mem.AllTransactions())

	sweepAt := f.now.Add(181 * time.Second)
	sw := sweeper.New(f.mem, f.mem.Orders(), f.notify, nil, nil, time.Second, 10)
	sw.SetClock(func() time.Time { return sweepAt })
	res, err := sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Expired != 1 {
		t.Fatalf("expected one expired order, got %+v", res)
	}

	f.now = sweepAt.Add(time.Second)
	_, err = f.wf.TransitionOrder(ctx, "admin", o.ID, types.OrderStatusCompleted, "")
	if !errors.Is(err, apperr.ErrAlreadyProcessed) {
		t.Fatalf("expected already processed, got %v", err)
	}
	stored, _ := f.mem.Order(o.ID)
	if stored.Status != types.OrderStatusExpired {
		t.Fatalf("expected expired, got %s", stored.Status)
	}
	rial, _ := f.mem.Wallet("u1", types.WalletKindRial)
	if !rial.Balance.Equal(dec("2020000")) || len(f.mem.AllTransactions()) != rowsBefore {
		t.Fatalf("completion attempt moved funds: %s", rial.Balance)
	}
	if gold, ok := f.mem.Wallet("u1", types.WalletKindGold); ok && !gold.Balance.IsZero() {
		t.Fatalf("gold credited for an expired order: %s", gold.Balance)
	}
}

func TestProcessingThenCompleteKeepsProcessedAt(t *testing.T) {
	f := newFixture(t)
	f.mem.SeedWallet("u1", types.WalletKindRial, dec("2020000"))
	o := f.seedPending("u1", types.OrderSideBuy, types.ProductGold18K, "2", "1000000", "20000")
	t0 := f.now

	if _, err := f.wf.TransitionOrder(context.Background(), "admin", o.ID, types.OrderStatusProcessing, ""); err != nil {
		t.Fatalf("processing: %v", err)
	}
	f.now = f.now.Add(10 * time.Minute)
	got, err := f.wf.TransitionOrder(context.Background(), "admin", o.ID, types.OrderStatusCompleted, "")
	if err != nil {
		t.Fatalf("complete after lock lapse must succeed once processing: %v", err)
	}
	if got.ProcessedAt == nil || !got.ProcessedAt.Equal(t0) {
		t.Fatalf("expected processedAt %v, got %v", t0, got.ProcessedAt)
	}
}

func TestUnknownOrderNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.wf.TransitionOrder(context.Background(), "admin", "missing", types.OrderStatusCompleted, "")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDepositReviewNotifiesUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dep, err := f.ledger.RequestDeposit(ctx, "u1", dec("500000"), nil)
	if err != nil {
		t.Fatalf("request deposit: %v", err)
	}
	if _, err := f.wf.ApproveDeposit(ctx, "admin", dep.ID, "receipt ok"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	rial, _ := f.mem.Wallet("u1", types.WalletKindRial)
	if !rial.Balance.Equal(dec("500000")) {
		t.Fatalf("expected credited 500000, got %s", rial.Balance)
	}
	if _, err := f.wf.ApproveDeposit(ctx, "admin", dep.ID, ""); !errors.Is(err, apperr.ErrAlreadyProcessed) {
		t.Fatalf("expected already processed on second approval, got %v", err)
	}
	if titles := f.notify.titles["u1"]; len(titles) != 1 || titles[0] != "Deposit approved" {
		t.Fatalf("unexpected notifications %v", titles)
	}
}

func TestRejectWithdrawRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.SeedWallet("u1", types.WalletKindRial, dec("1000000"))
	wd, err := f.ledger.Withdraw(ctx, "u1", types.WalletKindRial, dec("400000"), "IR000000000000000000000001")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := f.wf.RejectWithdraw(ctx, "admin", wd.ID, "invalid iban"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	rial, _ := f.mem.Wallet("u1", types.WalletKindRial)
	if !rial.Balance.Equal(dec("1000000")) {
		t.Fatalf("expected refund to 1000000, got %s", rial.Balance)
	}
	if ok, msg := f.mem.ConservationHolds(); !ok {
		t.Fatal(msg)
	}
}
