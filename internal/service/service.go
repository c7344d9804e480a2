package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"khaosoi/backend/internal/domain"
	"khaosoi/backend/internal/notify"
	"khaosoi/backend/internal/pricing"
	"khaosoi/backend/internal/slip"
	"khaosoi/backend/internal/store"
	"khaosoi/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Options carries the branch identity and policy knobs the service applies.
type Options struct {
	BranchID          string
	BranchCode        string
	TaxRatePercent    float64
	UnpaidCancelAfter time.Duration
}

type Service struct {
	repo     store.Repository
	pricer   *pricing.Resolver
	reader   slip.Reader
	matcher  *slip.Matcher
	notifier notify.Notifier
	logger   *zap.Logger
	opts     Options
}

func New(repo store.Repository, pricer *pricing.Resolver, reader slip.Reader, matcher *slip.Matcher, notifier notify.Notifier, logger *zap.Logger, opts Options) *Service {
	if opts.BranchID == "" {
		opts.BranchID = "branch_001"
	}
	if opts.BranchCode == "" {
		opts.BranchCode = "SAR"
	}
	if opts.TaxRatePercent < 0 {
		opts.TaxRatePercent = 0
	}
	if opts.UnpaidCancelAfter <= 0 {
		opts.UnpaidCancelAfter = 30 * time.Minute
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:     repo,
		pricer:   pricer,
		reader:   reader,
		matcher:  matcher,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
	}
}

// CreateOrder prices every cart line server-side, computes totals and writes
// the order atomically. Client-supplied prices never exist; a single
// unresolvable line fails the whole order.
func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.CreateOrderResponse, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerName == "" {
		return domain.CreateOrderResponse{}, fmt.Errorf("%w: customer name required", store.ErrInvalidInput)
	}
	if len(req.Items) == 0 {
		return domain.CreateOrderResponse{}, store.ErrEmptyCart
	}

	deliveryType := strings.ToLower(strings.TrimSpace(req.DeliveryType))
	switch deliveryType {
	case "":
		deliveryType = "pickup"
	case "pickup", "delivery":
	default:
		return domain.CreateOrderResponse{}, fmt.Errorf("%w: unknown delivery type %q", store.ErrInvalidInput, req.DeliveryType)
	}
	if deliveryType == "delivery" && strings.TrimSpace(req.CustomerAddress) == "" {
		return domain.CreateOrderResponse{}, fmt.Errorf("%w: delivery orders need an address", store.ErrInvalidInput)
	}

	paymentMethod := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if paymentMethod == "" {
		paymentMethod = "transfer"
	}

	now := time.Now().UTC()
	items := make([]domain.OrderLineItem, 0, len(req.Items))
	var subtotal int64
	for _, line := range req.Items {
		if line.ProductID == "" || line.Quantity < 1 {
			return domain.CreateOrderResponse{}, fmt.Errorf("%w: every line needs a product and a positive quantity", store.ErrInvalidInput)
		}
		quote, err := s.pricer.Resolve(ctx, line.ProductID, line.VariantID, line.Quantity)
		if err != nil {
			return domain.CreateOrderResponse{}, err
		}
		items = append(items, domain.OrderLineItem{
			ID:              xid.New("oli"),
			ProductID:       quote.ProductID,
			VariantID:       quote.VariantID,
			ProductName:     quote.ProductName,
			VariantName:     quote.VariantName,
			Quantity:        quote.Quantity,
			UnitPriceSatang: quote.UnitPriceSatang,
			LineTotalSatang: quote.LineTotalSatang,
			UnitCostSatang:  quote.UnitCostSatang,
			Notes:           strings.TrimSpace(line.Notes),
		})
		subtotal += quote.LineTotalSatang
	}

	discount := int64(0)
	taxBase := subtotal - discount
	tax := int64(math.Round(float64(taxBase) * s.opts.TaxRatePercent / 100))
	total := taxBase + tax

	order := domain.Order{
		ID:                  xid.New("ord"),
		BranchID:            s.opts.BranchID,
		CustomerName:        req.CustomerName,
		CustomerPhone:       strings.TrimSpace(req.CustomerPhone),
		CustomerAddress:     strings.TrimSpace(req.CustomerAddress),
		DeliveryType:        deliveryType,
		Status:              domain.StatusPending,
		SubtotalSatang:      subtotal,
		DiscountSatang:      discount,
		TaxSatang:           tax,
		TotalSatang:         total,
		PaymentMethod:       paymentMethod,
		PaymentStatus:       domain.PaymentUnpaid,
		Notes:               strings.TrimSpace(req.Notes),
		EstimatedPrepMinute: 10 + 2*len(items),
		CreatedAt:           now,
	}

	numberPrefix := fmt.Sprintf("%s-%s", s.opts.BranchCode, now.Format("0102"))
	created, err := s.repo.CreateOrder(ctx, order, items, numberPrefix)
	if err != nil {
		return domain.CreateOrderResponse{}, err
	}

	storedItems, err := s.repo.ListOrderItems(ctx, created.ID)
	if err != nil {
		return domain.CreateOrderResponse{}, err
	}

	s.logAudit(ctx, "order_create", "order", created.ID, fmt.Sprintf("number=%s,total=%d", created.OrderNumber, created.TotalSatang))

	return domain.CreateOrderResponse{
		OrderID:             created.ID,
		OrderNumber:         created.OrderNumber,
		Status:              created.Status,
		SubtotalSatang:      created.SubtotalSatang,
		DiscountSatang:      created.DiscountSatang,
		TaxSatang:           created.TaxSatang,
		TotalSatang:         created.TotalSatang,
		EstimatedPrepMinute: created.EstimatedPrepMinute,
		Items:               storedItems,
	}, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.OrderDetail, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.OrderDetail{}, err
	}
	items, err := s.repo.ListOrderItems(ctx, orderID)
	if err != nil {
		return domain.OrderDetail{}, err
	}
	history, err := s.repo.ListOrderStatusEvents(ctx, orderID)
	if err != nil {
		return domain.OrderDetail{}, err
	}
	return domain.OrderDetail{Order: *order, Items: items, StatusHistory: history}, nil
}

func (s *Service) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, filter.Status)
	}
	if filter.Limit < 1 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.ListOrders(ctx, s.opts.BranchID, filter)
}

// KitchenOrders lists non-terminal orders oldest-first, the way the kitchen
// display consumes them.
func (s *Service) KitchenOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.ListActiveOrders(ctx, s.opts.BranchID)
}

// TransitionStatus moves an order along the status graph. Re-applying the
// current status succeeds without side effects. Entering preparing commits
// the order's stock deduction exactly once.
func (s *Service) TransitionStatus(ctx context.Context, orderID string, req domain.TransitionRequest) (domain.TransitionResponse, error) {
	if !req.TargetStatus.Valid() {
		return domain.TransitionResponse{}, fmt.Errorf("%w: unknown status %q", store.ErrInvalidTransition, req.TargetStatus)
	}

	actor := actorName(ctx)
	now := time.Now().UTC()
	tr, err := s.repo.TransitionOrderStatus(ctx, orderID, req.TargetStatus, actor, strings.TrimSpace(req.Note), now)
	if err != nil {
		return domain.TransitionResponse{}, err
	}

	resp := domain.TransitionResponse{
		OrderID:   orderID,
		OldStatus: tr.OldStatus,
		NewStatus: tr.NewStatus,
	}
	if tr.NoOp {
		return resp, nil
	}

	s.emitStatusChanged(ctx, tr.Order, tr.OldStatus, tr.NewStatus, now)

	if tr.NewStatus == domain.StatusPreparing {
		s.deductStockForOrder(ctx, orderID, actor, now)
	}

	s.logAudit(ctx, "order_status", "order", orderID, fmt.Sprintf("%s->%s", tr.OldStatus, tr.NewStatus))
	return resp, nil
}

func (s *Service) CancelOrder(ctx context.Context, orderID string, req domain.CancelOrderRequest) (domain.TransitionResponse, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.TransitionResponse{}, fmt.Errorf("%w: cancel reason required", store.ErrInvalidInput)
	}
	return s.TransitionStatus(ctx, orderID, domain.TransitionRequest{
		TargetStatus: domain.StatusCancelled,
		Note:         reason,
	})
}

// CancelUnpaidOrders sweeps pending, unpaid orders older than the configured
// window. Meant to be run periodically.
func (s *Service) CancelUnpaidOrders(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.opts.UnpaidCancelAfter)
	count, err := s.repo.CancelUnpaidOrdersBefore(ctx, s.opts.BranchID, cutoff, "payment not received in time")
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("cancelled unpaid orders", zap.Int("count", count))
	}
	return count, nil
}

// deductStockForOrder commits the order's recipe deductions. Failures are
// logged, not propagated: the kitchen already has the order and a stock
// bookkeeping problem must not block it.
func (s *Service) deductStockForOrder(ctx context.Context, orderID string, actor string, now time.Time) {
	result, err := s.repo.DeductStockForOrder(ctx, orderID, actor, now)
	if err != nil {
		s.logger.Warn("stock deduction failed", zap.String("order_id", orderID), zap.Error(err))
		return
	}
	if result.AlreadyDeducted {
		return
	}

	for _, ingredient := range result.LowStock {
		event := domain.LowStockEvent{
			IngredientID:  ingredient.ID,
			Name:          ingredient.Name,
			CurrentStock:  ingredient.CurrentStock,
			MinStockLevel: ingredient.MinStockLevel,
		}
		if err := s.notifier.LowStock(ctx, event); err != nil {
			s.logger.Warn("low stock notification failed", zap.String("ingredient_id", ingredient.ID), zap.Error(err))
		}
	}
}

// ProcessPaymentSlip runs the evidence pipeline for one submitted slip image:
// read, dedupe, match, persist. A reader failure is a review case, never an
// order failure.
func (s *Service) ProcessPaymentSlip(ctx context.Context, orderID string, req domain.ProcessSlipRequest) (domain.ProcessSlipResponse, error) {
	if strings.TrimSpace(req.ImageRef) == "" {
		return domain.ProcessSlipResponse{}, fmt.Errorf("%w: image reference required", store.ErrInvalidInput)
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.ProcessSlipResponse{}, err
	}
	if order.PaymentStatus == domain.PaymentPaid {
		return domain.ProcessSlipResponse{}, fmt.Errorf("%w: order %s is already paid", store.ErrInvalidInput, orderID)
	}

	now := time.Now().UTC()
	data, err := s.reader.Read(ctx, req.ImageRef)
	if err != nil {
		s.logger.Warn("slip unreadable", zap.String("order_id", orderID), zap.Error(err))
		return s.attachEvidence(ctx, *order, domain.PaymentEvidence{
			OrderID:      orderID,
			Outcome:      domain.EvidenceNeedsReview,
			FailedChecks: []string{slip.CheckUnreadable},
		}, now)
	}

	if existing, findErr := s.repo.FindEvidenceByTransactionRef(ctx, data.TransactionRef); findErr == nil && existing != nil {
		return s.attachEvidence(ctx, *order, duplicateEvidence(orderID, data), now)
	}

	failed := s.matcher.Match(data, order.TotalSatang, now)
	outcome := domain.EvidenceApproved
	if len(failed) > 0 {
		outcome = domain.EvidenceNeedsReview
	}

	resp, err := s.attachEvidence(ctx, *order, domain.PaymentEvidence{
		OrderID:         orderID,
		TransactionRef:  data.TransactionRef,
		AmountSatang:    data.AmountSatang,
		TransferredAt:   data.TransferredAt,
		SenderAccount:   data.SenderAccount,
		ReceiverAccount: data.ReceiverAccount,
		Outcome:         outcome,
		FailedChecks:    failed,
	}, now)
	if errors.Is(err, store.ErrDuplicateSlip) {
		// Lost the race against a concurrent submission of the same ref.
		return s.attachEvidence(ctx, *order, duplicateEvidence(orderID, data), now)
	}
	return resp, err
}

func (s *Service) attachEvidence(ctx context.Context, order domain.Order, evidence domain.PaymentEvidence, now time.Time) (domain.ProcessSlipResponse, error) {
	evidence.ID = xid.New("pev")
	att, err := s.repo.AttachPaymentEvidence(ctx, evidence, now)
	if err != nil {
		return domain.ProcessSlipResponse{}, err
	}

	if att.AutoConfirmed {
		s.emitStatusChanged(ctx, att.Order, domain.StatusPending, domain.StatusConfirmed, now)
	}

	s.logAudit(ctx, "payment_slip", "order", order.ID, fmt.Sprintf("outcome=%s,ref=%s", evidence.Outcome, evidence.TransactionRef))

	return domain.ProcessSlipResponse{
		OrderID:       order.ID,
		Outcome:       evidence.Outcome,
		FailedChecks:  evidence.FailedChecks,
		PaymentStatus: att.Order.PaymentStatus,
		OrderStatus:   att.Order.Status,
	}, nil
}

func duplicateEvidence(orderID string, data *slip.Data) domain.PaymentEvidence {
	return domain.PaymentEvidence{
		OrderID:         orderID,
		TransactionRef:  data.TransactionRef,
		AmountSatang:    data.AmountSatang,
		TransferredAt:   data.TransferredAt,
		SenderAccount:   data.SenderAccount,
		ReceiverAccount: data.ReceiverAccount,
		Outcome:         domain.EvidenceDuplicate,
		FailedChecks:    []string{"duplicate_transaction_ref"},
	}
}

// PendingManualVerification lists orders whose payment is waiting on a human.
func (s *Service) PendingManualVerification(ctx context.Context) ([]domain.Order, error) {
	return s.repo.ListOrdersPendingReview(ctx, s.opts.BranchID)
}

// AdjustStock applies a manual stock operation. Order-driven deduction does
// not come through here; the deduct type is reserved for it.
func (s *Service) AdjustStock(ctx context.Context, req domain.AdjustStockRequest) (domain.AdjustStockResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.AdjustStockResponse{}, fmt.Errorf("admin role required")
	}

	if req.IngredientID == "" {
		return domain.AdjustStockResponse{}, fmt.Errorf("%w: ingredient id required", store.ErrInvalidInput)
	}
	if !req.Type.Valid() || req.Type == domain.StockDeduct {
		return domain.AdjustStockResponse{}, fmt.Errorf("%w: %q", store.ErrInvalidAdjustType, req.Type)
	}
	switch req.Type {
	case domain.StockAdd, domain.StockRemove, domain.StockWaste:
		if req.Quantity <= 0 {
			return domain.AdjustStockResponse{}, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
		}
	case domain.StockAdjust:
		if req.Quantity < 0 {
			return domain.AdjustStockResponse{}, fmt.Errorf("%w: adjusted stock cannot be negative", store.ErrInvalidInput)
		}
	}

	now := time.Now().UTC()
	resp, err := s.repo.AdjustStock(ctx, req.IngredientID, req.Type, req.Quantity, strings.TrimSpace(req.Note), actor.Username, now)
	if err != nil {
		return domain.AdjustStockResponse{}, err
	}

	s.logAudit(ctx, "stock_adjust", "ingredient", req.IngredientID, fmt.Sprintf("type=%s,old=%.3f,new=%.3f", req.Type, resp.OldStock, resp.NewStock))

	if ingredient, getErr := s.repo.GetIngredient(ctx, req.IngredientID); getErr == nil && ingredient.CurrentStock <= ingredient.MinStockLevel {
		event := domain.LowStockEvent{
			IngredientID:  ingredient.ID,
			Name:          ingredient.Name,
			CurrentStock:  ingredient.CurrentStock,
			MinStockLevel: ingredient.MinStockLevel,
		}
		if err := s.notifier.LowStock(ctx, event); err != nil {
			s.logger.Warn("low stock notification failed", zap.String("ingredient_id", ingredient.ID), zap.Error(err))
		}
	}

	return *resp, nil
}

func (s *Service) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	return s.repo.ListIngredients(ctx, s.opts.BranchID)
}

func (s *Service) CreateIngredient(ctx context.Context, req domain.IngredientCreateRequest) (domain.Ingredient, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Ingredient{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Unit = strings.TrimSpace(req.Unit)
	if req.Name == "" || req.Unit == "" || req.CostPerUnitSatang < 0 || req.InitialStock < 0 || req.MinStockLevel < 0 {
		return domain.Ingredient{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateIngredient(ctx, domain.Ingredient{
		ID:                xid.New("ing"),
		BranchID:          s.opts.BranchID,
		Name:              req.Name,
		Unit:              req.Unit,
		CostPerUnitSatang: req.CostPerUnitSatang,
		CurrentStock:      req.InitialStock,
		MinStockLevel:     req.MinStockLevel,
	})
	if err != nil {
		return domain.Ingredient{}, err
	}

	s.logAudit(ctx, "ingredient_create", "ingredient", created.ID, fmt.Sprintf("name=%s,stock=%.3f", created.Name, created.CurrentStock))
	return *created, nil
}

func (s *Service) CreateRecipe(ctx context.Context, req domain.RecipeCreateRequest) (domain.Recipe, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Recipe{}, fmt.Errorf("admin role required")
	}

	if req.ProductID == "" || req.IngredientID == "" || req.QuantityPerUnit <= 0 {
		return domain.Recipe{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateRecipe(ctx, domain.Recipe{
		ID:              xid.New("rcp"),
		ProductID:       req.ProductID,
		IngredientID:    req.IngredientID,
		QuantityPerUnit: req.QuantityPerUnit,
	})
	if err != nil {
		return domain.Recipe{}, err
	}

	s.logAudit(ctx, "recipe_create", "recipe", created.ID, fmt.Sprintf("product=%s,ingredient=%s,qty=%.3f", created.ProductID, created.IngredientID, created.QuantityPerUnit))
	return *created, nil
}

func (s *Service) GetRecipe(ctx context.Context, productID string) ([]domain.RecipeRow, error) {
	if productID == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.GetRecipe(ctx, productID)
}

func (s *Service) LowStockAlerts(ctx context.Context) ([]domain.Ingredient, error) {
	return s.repo.ListLowStockIngredients(ctx, s.opts.BranchID)
}

func (s *Service) StockHistory(ctx context.Context, ingredientID string, limit int, offset int) (domain.StockHistoryResponse, error) {
	if ingredientID == "" {
		return domain.StockHistoryResponse{}, store.ErrInvalidInput
	}
	if _, err := s.repo.GetIngredient(ctx, ingredientID); err != nil {
		return domain.StockHistoryResponse{}, err
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	txns, err := s.repo.ListStockTransactions(ctx, ingredientID, limit, offset)
	if err != nil {
		return domain.StockHistoryResponse{}, err
	}
	return domain.StockHistoryResponse{IngredientID: ingredientID, Transactions: txns}, nil
}

func (s *Service) emitStatusChanged(ctx context.Context, order domain.Order, old domain.OrderStatus, next domain.OrderStatus, at time.Time) {
	event := domain.StatusChangedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OldStatus:   old,
		NewStatus:   next,
		Timestamp:   at,
	}
	if err := s.notifier.OrderStatusChanged(ctx, event); err != nil {
		s.logger.Warn("status notification failed", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return "system"
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		BranchID:   s.opts.BranchID,
		Actor:      actor.Username,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("audit write failed", zap.String("action", action), zap.String("entity_id", entityID), zap.Error(err))
	}
}
