package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"khaosoi/backend/internal/domain"
	"khaosoi/backend/internal/store"
	"khaosoi/backend/internal/xid"
)

type Store struct {
	mu            sync.RWMutex
	products      map[string]domain.Product
	variants      map[string][]domain.Variant
	orders        map[string]*domain.Order
	orderItems    map[string][]domain.OrderLineItem
	statusEvents  map[string][]domain.OrderStatusEvent
	ingredients   map[string]domain.Ingredient
	recipes       map[string][]domain.Recipe
	stockTxns     map[string][]domain.StockTransaction
	evidences     map[string]domain.PaymentEvidence
	evidenceByRef map[string]string
	auditLogs     []domain.AuditLog
	users         map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_KITCHEN_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These are never used
// in production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	kitchenPwd := envOr("SEED_KITCHEN_PASSWORD", "kitchen123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_KITCHEN_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_KITCHEN_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"kitchen", kitchenPwd, "kitchen"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded(branchID string) *Store {
	products := []domain.Product{
		{ID: "prod_grill_set", Name: "Premium Moo Krata Set", BasePriceSatang: 54500, CostPriceSatang: 32000, Available: true},
		{ID: "prod_khaosoi", Name: "Khao Soi Gai", BasePriceSatang: 18400, CostPriceSatang: 9500, Available: true},
		{ID: "prod_somtam", Name: "Som Tum Thai", BasePriceSatang: 8900, CostPriceSatang: 4200, Available: true},
		{ID: "prod_thai_tea", Name: "Thai Milk Tea", BasePriceSatang: 6500, CostPriceSatang: 2800, Available: true},
		{ID: "prod_seasonal", Name: "Durian Sticky Rice", BasePriceSatang: 15900, CostPriceSatang: 9800, Available: false},
	}

	variants := map[string][]domain.Variant{
		"prod_khaosoi": {
			{ID: "var_khaosoi_extra", ProductID: "prod_khaosoi", Name: "Extra Noodles", PriceModifierSatang: 2000},
		},
		"prod_thai_tea": {
			{ID: "var_tea_large", ProductID: "prod_thai_tea", Name: "Large Cup", PriceModifierSatang: 1500},
		},
	}

	ingredients := []domain.Ingredient{
		{ID: "ing_chicken", BranchID: branchID, Name: "Chicken Thigh", Unit: "kg", CostPerUnitSatang: 9000, CurrentStock: 20, MinStockLevel: 5},
		{ID: "ing_noodle", BranchID: branchID, Name: "Egg Noodle", Unit: "kg", CostPerUnitSatang: 4500, CurrentStock: 15, MinStockLevel: 4},
		{ID: "ing_coconut", BranchID: branchID, Name: "Coconut Milk", Unit: "l", CostPerUnitSatang: 3800, CurrentStock: 18, MinStockLevel: 6},
		{ID: "ing_papaya", BranchID: branchID, Name: "Green Papaya", Unit: "kg", CostPerUnitSatang: 2500, CurrentStock: 10, MinStockLevel: 3},
		{ID: "ing_tea", BranchID: branchID, Name: "Tea Leaves", Unit: "kg", CostPerUnitSatang: 28000, CurrentStock: 3, MinStockLevel: 1},
	}

	recipes := map[string][]domain.Recipe{
		"prod_khaosoi": {
			{ID: "rcp_khaosoi_chicken", ProductID: "prod_khaosoi", IngredientID: "ing_chicken", QuantityPerUnit: 0.3},
			{ID: "rcp_khaosoi_noodle", ProductID: "prod_khaosoi", IngredientID: "ing_noodle", QuantityPerUnit: 0.2},
			{ID: "rcp_khaosoi_coconut", ProductID: "prod_khaosoi", IngredientID: "ing_coconut", QuantityPerUnit: 0.25},
		},
		"prod_somtam": {
			{ID: "rcp_somtam_papaya", ProductID: "prod_somtam", IngredientID: "ing_papaya", QuantityPerUnit: 0.4},
		},
		"prod_thai_tea": {
			{ID: "rcp_tea_leaves", ProductID: "prod_thai_tea", IngredientID: "ing_tea", QuantityPerUnit: 0.05},
			{ID: "rcp_tea_coconut", ProductID: "prod_thai_tea", IngredientID: "ing_coconut", QuantityPerUnit: 0.1},
		},
		"prod_grill_set": {
			{ID: "rcp_grill_chicken", ProductID: "prod_grill_set", IngredientID: "ing_chicken", QuantityPerUnit: 1.2},
		},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}
	ingredientMap := make(map[string]domain.Ingredient, len(ingredients))
	for _, ing := range ingredients {
		ingredientMap[ing.ID] = ing
	}

	s := &Store{
		products:      productMap,
		variants:      variants,
		orders:        make(map[string]*domain.Order),
		orderItems:    make(map[string][]domain.OrderLineItem),
		statusEvents:  make(map[string][]domain.OrderStatusEvent),
		ingredients:   ingredientMap,
		recipes:       recipes,
		stockTxns:     make(map[string][]domain.StockTransaction),
		evidences:     make(map[string]domain.PaymentEvidence),
		evidenceByRef: make(map[string]string),
		auditLogs:     make([]domain.AuditLog, 0, 128),
		users:         seedUsers(),
	}

	// Seed opening stock as ledger rows so that the transaction sum always
	// reproduces current stock, including the initial balance.
	now := time.Now().UTC()
	for _, ing := range ingredients {
		if ing.CurrentStock == 0 {
			continue
		}
		s.stockTxns[ing.ID] = append(s.stockTxns[ing.ID], domain.StockTransaction{
			ID:           xid.New("stx"),
			BranchID:     branchID,
			IngredientID: ing.ID,
			Type:         domain.StockAdd,
			Quantity:     ing.CurrentStock,
			Note:         "opening stock",
			Actor:        "system",
			CreatedAt:    now,
		})
	}

	return s
}

func (s *Store) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[productID]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) GetVariant(_ context.Context, productID string, variantID string) (*domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, variant := range s.variants[productID] {
		if variant.ID == variantID {
			copied := variant
			return &copied, nil
		}
	}
	return nil, store.ErrVariantNotFound
}

func (s *Store) ListVariants(_ context.Context, productID string) ([]domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	variants := s.variants[productID]
	result := make([]domain.Variant, len(variants))
	copy(result, variants)
	return result, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order, items []domain.OrderLineItem, numberPrefix string) (*domain.Order, error) {
	if len(items) == 0 {
		return nil, store.ErrEmptyCart
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = order.CreatedAt
	order.Status = domain.StatusPending

	s.mu.Lock()
	defer s.mu.Unlock()

	// Branch-day sequence: the count and the insert happen under the same
	// lock, so concurrent creations can never share a number.
	day := dateUTC(order.CreatedAt)
	seq := 1
	for _, existing := range s.orders {
		if existing.BranchID == order.BranchID && dateUTC(existing.CreatedAt).Equal(day) {
			seq++
		}
	}
	order.OrderNumber = fmt.Sprintf("%s-%03d", numberPrefix, seq)

	stored := order
	s.orders[order.ID] = &stored

	lineItems := make([]domain.OrderLineItem, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			item.ID = xid.New("oli")
		}
		item.OrderID = order.ID
		lineItems = append(lineItems, item)
	}
	s.orderItems[order.ID] = lineItems

	s.statusEvents[order.ID] = append(s.statusEvents[order.ID], domain.OrderStatusEvent{
		ID:        xid.New("ose"),
		OrderID:   order.ID,
		Status:    domain.StatusPending,
		Actor:     "system",
		Note:      "order created",
		CreatedAt: order.CreatedAt,
	})

	created := stored
	return &created, nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *Store) ListOrderItems(_ context.Context, orderID string) ([]domain.OrderLineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.orderItems[orderID]
	result := make([]domain.OrderLineItem, len(items))
	copy(result, items)
	return result, nil
}

func (s *Store) ListOrderStatusEvents(_ context.Context, orderID string) ([]domain.OrderStatusEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.statusEvents[orderID]
	result := make([]domain.OrderStatusEvent, len(events))
	copy(result, events)
	return result, nil
}

func (s *Store) ListOrders(_ context.Context, branchID string, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 32)
	for _, order := range s.orders {
		if branchID != "" && order.BranchID != branchID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		result = append(result, *order)
	}

	slices.SortFunc(result, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []domain.Order{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) ListActiveOrders(_ context.Context, branchID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 32)
	for _, order := range s.orders {
		if order.BranchID != branchID || order.Status.Terminal() {
			continue
		}
		result = append(result, *order)
	}

	slices.SortFunc(result, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) TransitionOrderStatus(_ context.Context, orderID string, target domain.OrderStatus, actor string, note string, at time.Time) (*store.Transition, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrInvalidTransition, target)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}

	old := order.Status
	if old == target {
		copied := *order
		return &store.Transition{OldStatus: old, NewStatus: target, Order: copied, NoOp: true}, nil
	}
	if !old.CanTransition(target) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, old, target)
	}

	order.Status = target
	order.UpdatedAt = at
	if target == domain.StatusCompleted {
		completed := at
		order.CompletedAt = &completed
	}
	if target == domain.StatusCancelled {
		order.CancelReason = note
	}

	s.statusEvents[orderID] = append(s.statusEvents[orderID], domain.OrderStatusEvent{
		ID:        xid.New("ose"),
		OrderID:   orderID,
		Status:    target,
		Actor:     actor,
		Note:      note,
		CreatedAt: at,
	})

	copied := *order
	return &store.Transition{OldStatus: old, NewStatus: target, Order: copied}, nil
}

func (s *Store) CancelUnpaidOrdersBefore(_ context.Context, branchID string, cutoff time.Time, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := 0
	for _, order := range s.orders {
		if order.BranchID != branchID {
			continue
		}
		if order.Status != domain.StatusPending || order.PaymentStatus != domain.PaymentUnpaid {
			continue
		}
		if !order.CreatedAt.Before(cutoff) {
			continue
		}
		now := time.Now().UTC()
		order.Status = domain.StatusCancelled
		order.CancelReason = reason
		order.UpdatedAt = now
		s.statusEvents[order.ID] = append(s.statusEvents[order.ID], domain.OrderStatusEvent{
			ID:        xid.New("ose"),
			OrderID:   order.ID,
			Status:    domain.StatusCancelled,
			Actor:     "system",
			Note:      reason,
			CreatedAt: now,
		})
		cancelled++
	}
	return cancelled, nil
}

func (s *Store) GetIngredient(_ context.Context, ingredientID string) (*domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ingredient, ok := s.ingredients[ingredientID]
	if !ok {
		return nil, store.ErrIngredientNotFound
	}
	copied := ingredient
	return &copied, nil
}

func (s *Store) ListIngredients(_ context.Context, branchID string) ([]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Ingredient, 0, len(s.ingredients))
	for _, ingredient := range s.ingredients {
		if branchID != "" && ingredient.BranchID != branchID {
			continue
		}
		result = append(result, ingredient)
	}
	slices.SortFunc(result, func(a, b domain.Ingredient) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) CreateIngredient(_ context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	if ingredient.Name == "" || ingredient.Unit == "" || ingredient.CurrentStock < 0 || ingredient.MinStockLevel < 0 {
		return nil, store.ErrInvalidInput
	}
	if ingredient.ID == "" {
		ingredient.ID = xid.New("ing")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ingredients[ingredient.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	s.ingredients[ingredient.ID] = ingredient

	if ingredient.CurrentStock > 0 {
		s.stockTxns[ingredient.ID] = append(s.stockTxns[ingredient.ID], domain.StockTransaction{
			ID:           xid.New("stx"),
			BranchID:     ingredient.BranchID,
			IngredientID: ingredient.ID,
			Type:         domain.StockAdd,
			Quantity:     ingredient.CurrentStock,
			Note:         "opening stock",
			Actor:        "system",
			CreatedAt:    time.Now().UTC(),
		})
	}

	created := ingredient
	return &created, nil
}

func (s *Store) CreateRecipe(_ context.Context, recipe domain.Recipe) (*domain.Recipe, error) {
	if recipe.ProductID == "" || recipe.IngredientID == "" || recipe.QuantityPerUnit <= 0 {
		return nil, store.ErrInvalidInput
	}
	if recipe.ID == "" {
		recipe.ID = xid.New("rcp")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[recipe.ProductID]; !exists {
		return nil, store.ErrProductNotFound
	}
	if _, exists := s.ingredients[recipe.IngredientID]; !exists {
		return nil, store.ErrIngredientNotFound
	}

	s.recipes[recipe.ProductID] = append(s.recipes[recipe.ProductID], recipe)
	created := recipe
	return &created, nil
}

func (s *Store) GetRecipe(_ context.Context, productID string) ([]domain.RecipeRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.RecipeRow, 0, 4)
	for _, recipe := range s.recipes[productID] {
		ingredient := s.ingredients[recipe.IngredientID]
		rows = append(rows, domain.RecipeRow{
			IngredientID:      recipe.IngredientID,
			IngredientName:    ingredient.Name,
			Unit:              ingredient.Unit,
			QuantityPerUnit:   recipe.QuantityPerUnit,
			CostPerUnitSatang: ingredient.CostPerUnitSatang,
		})
	}
	return rows, nil
}

func (s *Store) DeductStockForOrder(_ context.Context, orderID string, actor string, at time.Time) (*store.DeductionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if order.StockDeducted {
		return &store.DeductionResult{AlreadyDeducted: true}, nil
	}

	result := &store.DeductionResult{}
	lowSeen := make(map[string]bool)

	for _, item := range s.orderItems[orderID] {
		for _, recipe := range s.recipes[item.ProductID] {
			ingredient, ok := s.ingredients[recipe.IngredientID]
			if !ok {
				return nil, fmt.Errorf("%w: %s", store.ErrIngredientNotFound, recipe.IngredientID)
			}

			deductQty := recipe.QuantityPerUnit * float64(item.Quantity)
			ingredient.CurrentStock -= deductQty
			s.ingredients[recipe.IngredientID] = ingredient

			s.stockTxns[recipe.IngredientID] = append(s.stockTxns[recipe.IngredientID], domain.StockTransaction{
				ID:           xid.New("stx"),
				BranchID:     ingredient.BranchID,
				IngredientID: recipe.IngredientID,
				Type:         domain.StockDeduct,
				Quantity:     -deductQty,
				ReferenceID:  orderID,
				Actor:        actor,
				CreatedAt:    at,
			})

			result.Deducted = append(result.Deducted, store.StockDeduction{
				IngredientID: recipe.IngredientID,
				Name:         ingredient.Name,
				Quantity:     deductQty,
				Remaining:    ingredient.CurrentStock,
			})

			if ingredient.CurrentStock <= ingredient.MinStockLevel && !lowSeen[ingredient.ID] {
				lowSeen[ingredient.ID] = true
				result.LowStock = append(result.LowStock, ingredient)
			}
		}
	}

	order.StockDeducted = true
	order.UpdatedAt = at
	return result, nil
}

func (s *Store) AdjustStock(_ context.Context, ingredientID string, adjType domain.StockTransactionType, quantity float64, note string, actor string, at time.Time) (*domain.AdjustStockResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ingredient, ok := s.ingredients[ingredientID]
	if !ok {
		return nil, store.ErrIngredientNotFound
	}

	oldStock := ingredient.CurrentStock
	var newStock float64
	switch adjType {
	case domain.StockAdd:
		newStock = oldStock + quantity
	case domain.StockRemove, domain.StockWaste:
		newStock = oldStock - quantity
	case domain.StockAdjust:
		newStock = quantity
	default:
		return nil, store.ErrInvalidAdjustType
	}

	// Manual operations assert a physical count and may never go negative;
	// only order-driven deduction is allowed below zero.
	if newStock < 0 {
		return nil, fmt.Errorf("%w: %s would drop to %.3f", store.ErrNegativeStock, ingredientID, newStock)
	}

	ingredient.CurrentStock = newStock
	s.ingredients[ingredientID] = ingredient

	s.stockTxns[ingredientID] = append(s.stockTxns[ingredientID], domain.StockTransaction{
		ID:           xid.New("stx"),
		BranchID:     ingredient.BranchID,
		IngredientID: ingredientID,
		Type:         adjType,
		Quantity:     newStock - oldStock,
		Note:         note,
		Actor:        actor,
		CreatedAt:    at,
	})

	return &domain.AdjustStockResponse{
		IngredientID: ingredientID,
		OldStock:     oldStock,
		NewStock:     newStock,
	}, nil
}

func (s *Store) ListStockTransactions(_ context.Context, ingredientID string, limit int, offset int) ([]domain.StockTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txns := s.stockTxns[ingredientID]
	result := make([]domain.StockTransaction, len(txns))
	copy(result, txns)

	slices.SortFunc(result, func(a, b domain.StockTransaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	if offset > 0 {
		if offset >= len(result) {
			return []domain.StockTransaction{}, nil
		}
		result = result[offset:]
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListLowStockIngredients(_ context.Context, branchID string) ([]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Ingredient, 0, 8)
	for _, ingredient := range s.ingredients {
		if branchID != "" && ingredient.BranchID != branchID {
			continue
		}
		if ingredient.CurrentStock <= ingredient.MinStockLevel {
			result = append(result, ingredient)
		}
	}
	slices.SortFunc(result, func(a, b domain.Ingredient) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) FindEvidenceByTransactionRef(_ context.Context, transactionRef string) (*domain.PaymentEvidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.evidenceByRef[transactionRef]
	if !ok {
		return nil, store.ErrNotFound
	}
	evidence := s.evidences[id]
	copied := evidence
	return &copied, nil
}

func (s *Store) AttachPaymentEvidence(_ context.Context, evidence domain.PaymentEvidence, at time.Time) (*store.EvidenceAttachment, error) {
	if evidence.ID == "" {
		evidence.ID = xid.New("pev")
	}
	if evidence.CreatedAt.IsZero() {
		evidence.CreatedAt = at
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[evidence.OrderID]
	if !ok {
		return nil, store.ErrNotFound
	}

	// The first non-duplicate attachment owns the provider ref forever.
	if evidence.Outcome != domain.EvidenceDuplicate && evidence.TransactionRef != "" {
		if _, claimed := s.evidenceByRef[evidence.TransactionRef]; claimed {
			return nil, store.ErrDuplicateSlip
		}
		s.evidenceByRef[evidence.TransactionRef] = evidence.ID
	}
	s.evidences[evidence.ID] = evidence

	attachment := &store.EvidenceAttachment{}
	switch evidence.Outcome {
	case domain.EvidenceApproved:
		order.PaymentStatus = domain.PaymentPaid
		order.SlipRef = evidence.TransactionRef
		order.SlipAmountSatang = evidence.AmountSatang
		verified := at
		order.PaymentVerifiedAt = &verified
		order.UpdatedAt = at
		if order.Status == domain.StatusPending {
			order.Status = domain.StatusConfirmed
			s.statusEvents[order.ID] = append(s.statusEvents[order.ID], domain.OrderStatusEvent{
				ID:        xid.New("ose"),
				OrderID:   order.ID,
				Status:    domain.StatusConfirmed,
				Actor:     "system",
				Note:      "auto-confirmed after payment verification",
				CreatedAt: at,
			})
			attachment.AutoConfirmed = true
		}
	case domain.EvidenceNeedsReview:
		order.PaymentStatus = domain.PaymentPendingReview
		order.SlipRef = evidence.TransactionRef
		order.SlipAmountSatang = evidence.AmountSatang
		order.UpdatedAt = at
	case domain.EvidenceDuplicate, domain.EvidenceRejected:
		// The target order is left untouched.
	}

	attachment.Order = *order
	return attachment, nil
}

func (s *Store) ListOrdersPendingReview(_ context.Context, branchID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 8)
	for _, order := range s.orders {
		if branchID != "" && order.BranchID != branchID {
			continue
		}
		if order.PaymentStatus != domain.PaymentPendingReview {
			continue
		}
		result = append(result, *order)
	}
	slices.SortFunc(result, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.users[user.Username]; exists {
		return store.ErrInvalidInput
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		result = append(result, user)
	}
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

func dateUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
