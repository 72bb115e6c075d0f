package ledger_test

import (
	"context"
	"testing"
	"time"

	"lv-goldex/internal/model"
	"lv-goldex/internal/types"

	"github.com/jackc/pgx/v5"
)

func TestReconcileMatchesSettledHistory(t *testing.T) {
	svc, mem, _ := newService(t)
	ctx := context.Background()
	mem.SeedWallet("u1", types.WalletKindRial, dec("200000000"))
	o := mem.SeedOrder(model.Order{
		UserID: "u1", Side: types.OrderSideBuy, Product: types.ProductCoinFull, Status: types.OrderStatusPending,
		Amount: dec("2"), UnitPrice: dec("50000000"), TotalPrice: dec("100000000"), CommissionAmount: dec("1000000"),
	})

	tx, err := mem.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := svc.SettleOrder(ctx, tx, o); err != nil {
		t.Fatalf("settle: %v", err)
	}
	o.Status = types.OrderStatusCompleted
	if err := mem.Orders().UpdateStatus(ctx, tx, o, types.OrderStatusPending); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	mismatches, err := svc.ReconcileOnce(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(mismatches) != 0 {
		t.Fatalf("expected consistent holdings, got %+v", mismatches)
	}
}

func TestReconcileReportsDrift(t *testing.T) {
	svc, mem, _ := newService(t)
	mem.SeedCoins("u1", types.ProductCoinQuarter, dec("3"))

	mismatches, err := svc.ReconcileOnce(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(mismatches) != 1 {
		t.Fatalf("expected one mismatch, got %+v", mismatches)
	}
	m := mismatches[0]
	if m.Product != types.ProductCoinQuarter || !m.Held.Equal(dec("3")) || !m.History.IsZero() {
		t.Fatalf("unexpected mismatch %+v", m)
	}
}

func TestRunReconcilerStopsOnCancel(t *testing.T) {
	svc, _, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunReconciler(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("reconciler did not stop")
	}
}
