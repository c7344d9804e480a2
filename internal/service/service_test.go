package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"khaosoi/backend/internal/cache"
	"khaosoi/backend/internal/domain"
	"khaosoi/backend/internal/notify"
	"khaosoi/backend/internal/pricing"
	"khaosoi/backend/internal/slip"
	"khaosoi/backend/internal/store"
	"khaosoi/backend/internal/store/memory"
)

// fakeReader scripts the external slip provider.
type fakeReader struct {
	data *slip.Data
	err  error
}

func (f *fakeReader) Read(_ context.Context, _ string) (*slip.Data, error) {
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.data
	return &copied, nil
}

func newTestService() (*Service, *memory.Store, *fakeReader) {
	repo := memory.NewSeeded("branch_001")
	reader := &fakeReader{}
	matcher := slip.NewMatcher(100, 24*time.Hour, []string{"123-4-56789-0"})
	pricer := pricing.NewResolver(repo, cache.NoopProductCache{})
	svc := New(repo, pricer, reader, matcher, notify.NoopNotifier{}, nil, Options{
		BranchID:       "branch_001",
		BranchCode:     "SAR",
		TaxRatePercent: 7,
	})
	return svc, repo, reader
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func goodSlipFor(total int64) *slip.Data {
	return &slip.Data{
		TransactionRef:  "TXN-OK-001",
		AmountSatang:    total,
		TransferredAt:   time.Now().UTC().Add(-time.Hour),
		SenderAccount:   "999-9-99999-9",
		ReceiverAccount: "123-4-56789-0",
	}
}

func TestCreateOrderComputesTotals(t *testing.T) {
	svc, _, _ := newTestService()

	resp, err := svc.CreateOrder(context.Background(), domain.CreateOrderRequest{
		CustomerName: "Somchai",
		Items: []domain.CartItem{
			{ProductID: "prod_grill_set", Quantity: 2},
			{ProductID: "prod_khaosoi", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	if resp.SubtotalSatang != 127400 {
		t.Fatalf("expected subtotal 127400, got %d", resp.SubtotalSatang)
	}
	if resp.TaxSatang != 8918 {
		t.Fatalf("expected tax 8918, got %d", resp.TaxSatang)
	}
	if resp.TotalSatang != 136318 {
		t.Fatalf("expected total 136318, got %d", resp.TotalSatang)
	}
	if resp.Status != domain.StatusPending {
		t.Fatalf("expected pending status, got %s", resp.Status)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(resp.Items))
	}
	if resp.EstimatedPrepMinute != 14 {
		t.Fatalf("expected 14 estimated minutes, got %d", resp.EstimatedPrepMinute)
	}
}

func TestCreateOrderAppliesVariantModifier(t *testing.T) {
	svc, _, _ := newTestService()

	resp, err := svc.CreateOrder(context.Background(), domain.CreateOrderRequest{
		CustomerName: "Nok",
		Items: []domain.CartItem{
			{ProductID: "prod_khaosoi", VariantID: "var_khaosoi_extra", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if resp.Items[0].UnitPriceSatang != 20400 {
		t.Fatalf("expected unit price 20400 with variant, got %d", resp.Items[0].UnitPriceSatang)
	}
	if resp.Items[0].VariantName != "Extra Noodles" {
		t.Fatalf("expected variant name snapshot, got %q", resp.Items[0].VariantName)
	}
}

func TestCreateOrderRejectsBadCarts(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{CustomerName: "A"}); !errors.Is(err, store.ErrEmptyCart) {
		t.Fatalf("expected empty cart error, got %v", err)
	}

	_, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "A",
		Items:        []domain.CartItem{{ProductID: "prod_nonexistent", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}

	// Unavailable products cannot be ordered.
	_, err = svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "A",
		Items:        []domain.CartItem{{ProductID: "prod_seasonal", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrProductNotFound) {
		t.Fatalf("expected unavailable product rejection, got %v", err)
	}

	_, err = svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "A",
		Items:        []domain.CartItem{{ProductID: "prod_khaosoi", VariantID: "var_tea_large", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrVariantNotFound) {
		t.Fatalf("expected variant not found for foreign variant, got %v", err)
	}
}

func TestOrderNumbersSequencePerDay(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	day := time.Now().UTC().Format("0102")
	for i := 1; i <= 3; i++ {
		resp, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
			CustomerName: "Somchai",
			Items:        []domain.CartItem{{ProductID: "prod_khaosoi", Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("create order %d failed: %v", i, err)
		}
		want := fmt.Sprintf("SAR-%s-%03d", day, i)
		if resp.OrderNumber != want {
			t.Fatalf("expected order number %s, got %s", want, resp.OrderNumber)
		}
	}
}

func TestStatusTransitionsFollowGraph(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := adminCtx()

	resp, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "Somchai",
		Items:        []domain.CartItem{{ProductID: "prod_khaosoi", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	// pending -> ready skips confirmed/preparing and must fail.
	if _, err := svc.TransitionStatus(ctx, resp.OrderID, domain.TransitionRequest{TargetStatus: domain.StatusReady}); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	for _, target := range []domain.OrderStatus{domain.StatusConfirmed, domain.StatusPreparing, domain.StatusReady, domain.StatusCompleted} {
		if _, err := svc.TransitionStatus(ctx, resp.OrderID, domain.TransitionRequest{TargetStatus: target}); err != nil {
			t.Fatalf("transition to %s failed: %v", target, err)
		}
	}

	detail, err := svc.GetOrder(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if detail.Order.CompletedAt == nil {
		t.Fatalf("expected completed_at to be stamped")
	}
	// created + 4 transitions
	if len(detail.StatusHistory) != 5 {
		t.Fatalf("expected 5 status events, got %d", len(detail.StatusHistory))
	}

	// Terminal orders accept no further transitions.
	if _, err := svc.TransitionStatus(ctx, resp.OrderID, domain.TransitionRequest{TargetStatus: domain.StatusCancelled}); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from completed, got %v", err)
	}
}

func TestSameStatusTransitionIsNoOp(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := adminCtx()

	resp, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "Somchai",
		Items:        []domain.CartItem{{ProductID: "prod_khaosoi", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	tr, err := svc.TransitionStatus(ctx, resp.OrderID, domain.TransitionRequest{TargetStatus: domain.StatusPending})
	if err != nil {
		t.Fatalf("same-status transition should succeed: %v", err)
	}
	if tr.OldStatus != domain.StatusPending || tr.NewStatus != domain.StatusPending {
		t.Fatalf("unexpected transition result: %+v", tr)
	}

	events, err := repo.ListOrderStatusEvents(ctx, resp.OrderID)
	if err != nil {
		t.Fatalf("list events failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("no-op transition must not append events, got %d", len(events))
	}
}

func TestPreparingDeductsStockExactlyOnce(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := adminCtx()

	before, err := repo.GetIngredient(ctx, "ing_chicken")
	if err != nil {
		t.Fatalf("get ingredient failed: %v", err)
	}

	resp, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "Somchai",
		Items:        []domain.CartItem{{ProductID: "prod_khaosoi", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	if _, err := svc.TransitionStatus(ctx, resp.OrderID, domain.TransitionRequest{TargetStatus: domain.StatusConfirmed}); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := svc.TransitionStatus(ctx, resp.OrderID, domain.TransitionRequest{TargetStatus: domain.StatusPreparing}); err != nil {
		t.Fatalf("preparing failed: %v", err)
	}

	// 0.3 per unit x 2 units
	after, err := repo.GetIngredient(ctx, "ing_chicken")
	if err != nil {
		t.Fatalf("get ingredient failed: %v", err)
	}
	want := before.CurrentStock - 0.6
	if diff := after.CurrentStock - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected chicken stock %.3f, got %.3f", want, after.CurrentStock)
	}

	// Re-applying preparing is a no-op and must not deduct again.
	if _, err := svc.TransitionStatus(ctx, resp.OrderID, domain.TransitionRequest{TargetStatus: domain.StatusPreparing}); err != nil {
		t.Fatalf("repeat preparing failed: %v", err)
	}
	again, _ := repo.GetIngredient(ctx, "ing_chicken")
	if again.CurrentStock != after.CurrentStock {
		t.Fatalf("stock deducted twice: %.3f vs %.3f", again.CurrentStock, after.CurrentStock)
	}

	detail, _ := svc.GetOrder(ctx, resp.OrderID)
	if !detail.Order.StockDeducted {
		t.Fatalf("expected stock_deducted flag")
	}

	// The ledger carries the deduction referencing the order.
	txns, err := repo.ListStockTransactions(ctx, "ing_chicken", 10, 0)
	if err != nil {
		t.Fatalf("list stock transactions failed: %v", err)
	}
	found := false
	for _, txn := range txns {
		if txn.Type == domain.StockDeduct && txn.ReferenceID == resp.OrderID {
			found = true
			if txn.Quantity != -0.6 {
				t.Fatalf("expected ledger delta -0.6, got %.3f", txn.Quantity)
			}
		}
	}
	if !found {
		t.Fatalf("expected a deduct ledger row referencing the order")
	}
}

func TestProductWithoutRecipeDeductsNothing(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := adminCtx()

	ing, err := svc.CreateIngredient(ctx, domain.IngredientCreateRequest{
		Name: "Sticky Rice", Unit: "kg", CostPerUnitSatang: 4000, InitialStock: 5, MinStockLevel: 1,
	})
	if err != nil {
		t.Fatalf("create ingredient failed: %v", err)
	}

	resp, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "Somchai",
		Items:        []domain.CartItem{{ProductID: "prod_grill_set", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if _, err := svc.TransitionStatus(ctx, resp.OrderID, domain.TransitionRequest{TargetStatus: domain.StatusConfirmed}); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := svc.TransitionStatus(ctx, resp.OrderID, domain.TransitionRequest{TargetStatus: domain.StatusPreparing}); err != nil {
		t.Fatalf("preparing failed: %v", err)
	}

	// The unrelated ingredient is untouched.
	after, _ := repo.GetIngredient(ctx, ing.ID)
	if after.CurrentStock != 5 {
		t.Fatalf("unrelated ingredient changed: %.3f", after.CurrentStock)
	}
}

func TestApprovedSlipMarksPaidAndAutoConfirms(t *testing.T) {
	svc, _, reader := newTestService()
	ctx := context.Background()

	resp, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "Somchai",
		Items:        []domain.CartItem{{ProductID: "prod_khaosoi", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	reader.data = goodSlipFor(resp.TotalSatang)
	result, err := svc.ProcessPaymentSlip(ctx, resp.OrderID, domain.ProcessSlipRequest{ImageRef: "slip-1"})
	if err != nil {
		t.Fatalf("process slip failed: %v", err)
	}
	if result.Outcome != domain.EvidenceApproved {
		t.Fatalf("expected approved, got %s (%v)", result.Outcome, result.FailedChecks)
	}
	if result.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("expected paid, got %s", result.PaymentStatus)
	}
	if result.OrderStatus != domain.StatusConfirmed {
		t.Fatalf("expected auto-confirm, got %s", result.OrderStatus)
	}

	detail, _ := svc.GetOrder(ctx, resp.OrderID)
	if detail.Order.PaymentVerifiedAt == nil {
		t.Fatalf("expected payment_verified_at to be stamped")
	}
	if detail.Order.SlipRef != "TXN-OK-001" {
		t.Fatalf("expected slip ref recorded, got %q", detail.Order.SlipRef)
	}
}

func TestApprovedSlipDoesNotRewindStatus(t *testing.T) {
	svc, _, reader := newTestService()
	ctx := adminCtx()

	resp, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "Somchai",
		Items:        []domain.CartItem{{ProductID: "prod_khaosoi", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if _, err := svc.TransitionStatus(ctx, resp.OrderID, domain.TransitionRequest{TargetStatus: domain.StatusConfirmed}); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := svc.TransitionStatus(ctx, resp.OrderID, domain.TransitionRequest{TargetStatus: domain.StatusPreparing}); err != nil {
		t.Fatalf("preparing failed: %v", err)
	}

	reader.data = goodSlipFor(resp.TotalSatang)
	result, err := svc.ProcessPaymentSlip(ctx, resp.OrderID, domain.ProcessSlipRequest{ImageRef: "slip-late"})
	if err != nil {
		t.Fatalf("process slip failed: %v", err)
	}
	if result.Outcome != domain.EvidenceApproved {
		t.Fatalf("expected approved, got %s", result.Outcome)
	}
	if result.OrderStatus != domain.StatusPreparing {
		t.Fatalf("approval must not move status backwards, got %s", result.OrderStatus)
	}
}

func TestDuplicateTransactionRefIsRejected(t *testing.T) {
	svc, _, reader := newTestService()
	ctx := context.Background()

	first, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "Somchai",
		Items:        []domain.CartItem{{ProductID: "prod_khaosoi", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create first order failed: %v", err)
	}
	second, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "Malee",
		Items:        []domain.CartItem{{ProductID: "prod_khaosoi", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create second order failed: %v", err)
	}

	reader.data = goodSlipFor(first.TotalSatang)
	result, err := svc.ProcessPaymentSlip(ctx, first.OrderID, domain.ProcessSlipRequest{ImageRef: "slip-a"})
	if err != nil || result.Outcome != domain.EvidenceApproved {
		t.Fatalf("expected first slip approved, got %v %v", result.Outcome, err)
	}

	// Same provider ref against a different order.
	result, err = svc.ProcessPaymentSlip(ctx, second.OrderID, domain.ProcessSlipRequest{ImageRef: "slip-a-again"})
	if err != nil {
		t.Fatalf("duplicate processing failed: %v", err)
	}
	if result.Outcome != domain.EvidenceDuplicate {
		t.Fatalf("expected duplicate outcome, got %s", result.Outcome)
	}
	if result.PaymentStatus != domain.PaymentUnpaid {
		t.Fatalf("duplicate must leave the order unpaid, got %s", result.PaymentStatus)
	}
}

func TestAmountMismatchNeedsReview(t *testing.T) {
	svc, _, reader := newTestService()
	ctx := context.Background()

	resp, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "Somchai",
		Items:        []domain.CartItem{{ProductID: "prod_khaosoi", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	data := goodSlipFor(resp.TotalSatang - 250) // ฿2.50 short, beyond the ฿1 tolerance
	reader.data = data
	result, err := svc.ProcessPaymentSlip(ctx, resp.OrderID, domain.ProcessSlipRequest{ImageRef: "slip-short"})
	if err != nil {
		t.Fatalf("process slip failed: %v", err)
	}
	if result.Outcome != domain.EvidenceNeedsReview {
		t.Fatalf("expected needs_review, got %s", result.Outcome)
	}
	if len(result.FailedChecks) != 1 || result.FailedChecks[0] != slip.CheckAmount {
		t.Fatalf("expected amount check failure, got %v", result.FailedChecks)
	}
	if result.PaymentStatus != domain.PaymentPendingReview {
		t.Fatalf("expected pending_review, got %s", result.PaymentStatus)
	}

	pending, err := svc.PendingManualVerification(ctx)
	if err != nil {
		t.Fatalf("pending review query failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != resp.OrderID {
		t.Fatalf("expected the order in the review queue, got %d entries", len(pending))
	}
}

func TestAmountWithinToleranceApproved(t *testing.T) {
	svc, _, reader := newTestService()
	ctx := context.Background()

	resp, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "Somchai",
		Items:        []domain.CartItem{{ProductID: "prod_khaosoi", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	reader.data = goodSlipFor(resp.TotalSatang - 100) // exactly ฿1 short, inside tolerance
	result, err := svc.ProcessPaymentSlip(ctx, resp.OrderID, domain.ProcessSlipRequest{ImageRef: "slip-close"})
	if err != nil {
		t.Fatalf("process slip failed: %v", err)
	}
	if result.Outcome != domain.EvidenceApproved {
		t.Fatalf("expected approved within tolerance, got %s (%v)", result.Outcome, result.FailedChecks)
	}
}

func TestStaleSlipNeedsReview(t *testing.T) {
	svc, _, reader := newTestService()
	ctx := context.Background()

	resp, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "Somchai",
		Items:        []domain.CartItem{{ProductID: "prod_khaosoi", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	data := goodSlipFor(resp.TotalSatang)
	data.TransferredAt = time.Now().UTC().Add(-25 * time.Hour)
	reader.data = data
	result, err := svc.ProcessPaymentSlip(ctx, resp.OrderID, domain.ProcessSlipRequest{ImageRef: "slip-old"})
	if err != nil {
		t.Fatalf("process slip failed: %v", err)
	}
	if result.Outcome != domain.EvidenceNeedsReview {
		t.Fatalf("expected needs_review for stale slip, got %s", result.Outcome)
	}
	if len(result.FailedChecks) != 1 || result.FailedChecks[0] != slip.CheckTransferStale {
		t.Fatalf("expected stale check failure, got %v", result.FailedChecks)
	}
}

func TestUnreadableSlipNeedsReview(t *testing.T) {
	svc, _, reader := newTestService()
	ctx := context.Background()

	resp, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "Somchai",
		Items:        []domain.CartItem{{ProductID: "prod_khaosoi", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	reader.err = errors.New("provider timeout")
	result, err := svc.ProcessPaymentSlip(ctx, resp.OrderID, domain.ProcessSlipRequest{ImageRef: "slip-blur"})
	if err != nil {
		t.Fatalf("reader failure must not fail the order: %v", err)
	}
	if result.Outcome != domain.EvidenceNeedsReview {
		t.Fatalf("expected needs_review, got %s", result.Outcome)
	}
	if len(result.FailedChecks) != 1 || result.FailedChecks[0] != slip.CheckUnreadable {
		t.Fatalf("expected unreadable check, got %v", result.FailedChecks)
	}
	if result.OrderStatus != domain.StatusPending {
		t.Fatalf("unreadable slip must not confirm the order, got %s", result.OrderStatus)
	}
}

func TestCancelOrderRequiresReason(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := adminCtx()

	resp, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "Somchai",
		Items:        []domain.CartItem{{ProductID: "prod_khaosoi", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	if _, err := svc.CancelOrder(ctx, resp.OrderID, domain.CancelOrderRequest{}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected reason required, got %v", err)
	}

	tr, err := svc.CancelOrder(ctx, resp.OrderID, domain.CancelOrderRequest{Reason: "customer changed mind"})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if tr.NewStatus != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", tr.NewStatus)
	}

	detail, _ := svc.GetOrder(ctx, resp.OrderID)
	if detail.Order.CancelReason != "customer changed mind" {
		t.Fatalf("expected cancel reason recorded, got %q", detail.Order.CancelReason)
	}
}

func TestAdjustStockRules(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := adminCtx()

	// Non-admin actors are rejected.
	kitchen := WithActor(context.Background(), domain.Actor{Username: "kitchen", Role: "kitchen"})
	if _, err := svc.AdjustStock(kitchen, domain.AdjustStockRequest{IngredientID: "ing_tea", Type: domain.StockAdd, Quantity: 1}); err == nil {
		t.Fatalf("expected role rejection")
	}

	resp, err := svc.AdjustStock(ctx, domain.AdjustStockRequest{IngredientID: "ing_tea", Type: domain.StockAdd, Quantity: 2})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if resp.NewStock != 5 {
		t.Fatalf("expected stock 5 after add, got %.3f", resp.NewStock)
	}

	if _, err := svc.AdjustStock(ctx, domain.AdjustStockRequest{IngredientID: "ing_tea", Type: domain.StockWaste, Quantity: 10}); !errors.Is(err, store.ErrNegativeStock) {
		t.Fatalf("expected negative stock rejection, got %v", err)
	}

	resp, err = svc.AdjustStock(ctx, domain.AdjustStockRequest{IngredientID: "ing_tea", Type: domain.StockAdjust, Quantity: 1.5, Note: "monthly count"})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if resp.OldStock != 5 || resp.NewStock != 1.5 {
		t.Fatalf("expected 5 -> 1.5, got %.3f -> %.3f", resp.OldStock, resp.NewStock)
	}

	// The deduct type is reserved for order-driven deduction.
	if _, err := svc.AdjustStock(ctx, domain.AdjustStockRequest{IngredientID: "ing_tea", Type: domain.StockDeduct, Quantity: 1}); !errors.Is(err, store.ErrInvalidAdjustType) {
		t.Fatalf("expected invalid adjust type, got %v", err)
	}
}

func TestLowStockAlerts(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := adminCtx()

	alerts, err := svc.LowStockAlerts(ctx)
	if err != nil {
		t.Fatalf("alerts failed: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts on seeded stock, got %d", len(alerts))
	}

	if _, err := svc.AdjustStock(ctx, domain.AdjustStockRequest{IngredientID: "ing_tea", Type: domain.StockAdjust, Quantity: 0.5}); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}

	alerts, err = svc.LowStockAlerts(ctx)
	if err != nil {
		t.Fatalf("alerts failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != "ing_tea" {
		t.Fatalf("expected tea in alerts, got %+v", alerts)
	}
}

func TestStockHistoryPaging(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := adminCtx()

	for i := 0; i < 3; i++ {
		if _, err := svc.AdjustStock(ctx, domain.AdjustStockRequest{IngredientID: "ing_papaya", Type: domain.StockAdd, Quantity: 1}); err != nil {
			t.Fatalf("adjust %d failed: %v", i, err)
		}
	}

	history, err := svc.StockHistory(ctx, "ing_papaya", 2, 0)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history.Transactions) != 2 {
		t.Fatalf("expected 2 rows with limit 2, got %d", len(history.Transactions))
	}

	if _, err := svc.StockHistory(ctx, "ing_missing", 10, 0); !errors.Is(err, store.ErrIngredientNotFound) {
		t.Fatalf("expected ingredient not found, got %v", err)
	}
}

func TestCancelUnpaidOrdersSweep(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	resp, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerName: "Somchai",
		Items:        []domain.CartItem{{ProductID: "prod_khaosoi", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	// Fresh orders are inside the window.
	count, err := svc.CancelUnpaidOrders(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no cancellations, got %d", count)
	}

	// With a cutoff in the future the pending unpaid order is swept.
	count, err = repo.CancelUnpaidOrdersBefore(ctx, "branch_001", time.Now().UTC().Add(time.Minute), "payment not received in time")
	if err != nil {
		t.Fatalf("direct sweep failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 cancellation, got %d", count)
	}

	detail, _ := svc.GetOrder(ctx, resp.OrderID)
	if detail.Order.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", detail.Order.Status)
	}
}

func TestKitchenOrdersOldestFirst(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := adminCtx()

	var ids []string
	for i := 0; i < 3; i++ {
		resp, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{
			CustomerName: "Somchai",
			Items:        []domain.CartItem{{ProductID: "prod_khaosoi", Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("create order failed: %v", err)
		}
		ids = append(ids, resp.OrderID)
	}
	if _, err := svc.CancelOrder(ctx, ids[1], domain.CancelOrderRequest{Reason: "out of stock"}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	orders, err := svc.KitchenOrders(ctx)
	if err != nil {
		t.Fatalf("kitchen orders failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 active orders, got %d", len(orders))
	}
	for _, order := range orders {
		if order.ID == ids[1] {
			t.Fatalf("cancelled order must not appear on the kitchen board")
		}
	}
}
