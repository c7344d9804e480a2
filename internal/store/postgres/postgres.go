package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"khaosoi/backend/internal/domain"
	"khaosoi/backend/internal/store"
	"khaosoi/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, base_price_satang, cost_price_satang, available
		FROM products
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.Name, &p.BasePriceSatang, &p.CostPriceSatang, &p.Available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetVariant(ctx context.Context, productID string, variantID string) (*domain.Variant, error) {
	var v domain.Variant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, name, price_modifier_satang
		FROM product_variants
		WHERE id = $1 AND product_id = $2
	`, variantID, productID).Scan(&v.ID, &v.ProductID, &v.Name, &v.PriceModifierSatang)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrVariantNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *Store) ListVariants(ctx context.Context, productID string) ([]domain.Variant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, name, price_modifier_satang
		FROM product_variants
		WHERE product_id = $1
		ORDER BY name
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	variants := make([]domain.Variant, 0, 8)
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.PriceModifierSatang); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

const orderColumns = `
	id, order_number, branch_id, customer_name, customer_phone, customer_address,
	delivery_type, status, subtotal_satang, discount_satang, tax_satang, total_satang,
	payment_method, payment_status, slip_ref, slip_amount_satang, payment_verified_at,
	notes, cancel_reason, estimated_prep_minutes, stock_deducted,
	created_at, updated_at, completed_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var verifiedAt, completedAt sql.NullTime
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.BranchID, &o.CustomerName, &o.CustomerPhone, &o.CustomerAddress,
		&o.DeliveryType, &o.Status, &o.SubtotalSatang, &o.DiscountSatang, &o.TaxSatang, &o.TotalSatang,
		&o.PaymentMethod, &o.PaymentStatus, &o.SlipRef, &o.SlipAmountSatang, &verifiedAt,
		&o.Notes, &o.CancelReason, &o.EstimatedPrepMinute, &o.StockDeducted,
		&o.CreatedAt, &o.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		o.PaymentVerifiedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		o.CompletedAt = &t
	}
	return &o, nil
}

// CreateOrder assigns the branch-day order number and inserts the order, its
// line items and the initial pending event in one serializable transaction.
// A serialization failure on concurrent creation surfaces as an error the
// caller retries.
func (s *Store) CreateOrder(ctx context.Context, order domain.Order, items []domain.OrderLineItem, numberPrefix string) (*domain.Order, error) {
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM orders
		WHERE branch_id = $1 AND created_at::date = $2::date
	`, order.BranchID, order.CreatedAt).Scan(&count)
	if err != nil {
		return nil, err
	}
	order.OrderNumber = fmt.Sprintf("%s-%03d", numberPrefix, count+1)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, branch_id, customer_name, customer_phone, customer_address,
			delivery_type, status, subtotal_satang, discount_satang, tax_satang, total_satang,
			payment_method, payment_status, slip_ref, slip_amount_satang, payment_verified_at,
			notes, cancel_reason, estimated_prep_minutes, stock_deducted,
			created_at, updated_at, completed_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,'',0,NULL,$15,'',$16,false,$17,$17,NULL)
	`, order.ID, order.OrderNumber, order.BranchID, order.CustomerName, order.CustomerPhone, order.CustomerAddress,
		order.DeliveryType, order.Status, order.SubtotalSatang, order.DiscountSatang, order.TaxSatang, order.TotalSatang,
		order.PaymentMethod, order.PaymentStatus, order.Notes, order.EstimatedPrepMinute, order.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		if item.ID == "" {
			item.ID = xid.New("oli")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, variant_id, product_name, variant_name,
				quantity, unit_price_satang, line_total_satang, unit_cost_satang, notes
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, item.ID, order.ID, item.ProductID, item.VariantID, item.ProductName, item.VariantName,
			item.Quantity, item.UnitPriceSatang, item.LineTotalSatang, item.UnitCostSatang, item.Notes)
		if err != nil {
			return nil, err
		}
	}

	if err := insertStatusEvent(ctx, tx, order.ID, domain.StatusPending, "system", "order created", order.CreatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := order
	return &created, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *Store) ListOrderItems(ctx context.Context, orderID string) ([]domain.OrderLineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, variant_id, product_name, variant_name,
			quantity, unit_price_satang, line_total_satang, unit_cost_satang, notes
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OrderLineItem, 0, 8)
	for rows.Next() {
		var item domain.OrderLineItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VariantID, &item.ProductName, &item.VariantName,
			&item.Quantity, &item.UnitPriceSatang, &item.LineTotalSatang, &item.UnitCostSatang, &item.Notes); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) ListOrderStatusEvents(ctx context.Context, orderID string) ([]domain.OrderStatusEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, status, actor, note, created_at
		FROM order_status_events
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.OrderStatusEvent, 0, 8)
	for rows.Next() {
		var e domain.OrderStatusEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &e.Actor, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) ListOrders(ctx context.Context, branchID string, filter domain.OrderFilter) ([]domain.Order, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE branch_id = $1`
	args := []any{branchID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (s *Store) ListActiveOrders(ctx context.Context, branchID string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE branch_id = $1 AND status NOT IN ('completed', 'cancelled')
		ORDER BY created_at, id
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 32)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (s *Store) TransitionOrderStatus(ctx context.Context, orderID string, target domain.OrderStatus, actor string, note string, at time.Time) (*store.Transition, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrInvalidTransition, target)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	old := order.Status
	if old == target {
		return &store.Transition{OldStatus: old, NewStatus: target, Order: *order, NoOp: true}, nil
	}
	if !old.CanTransition(target) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, old, target)
	}

	var completedAt any
	if target == domain.StatusCompleted {
		completedAt = at
	}
	cancelReason := order.CancelReason
	if target == domain.StatusCancelled {
		cancelReason = note
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, cancel_reason = $3, updated_at = $4,
			completed_at = COALESCE($5, completed_at)
		WHERE id = $1
	`, orderID, target, cancelReason, at, completedAt)
	if err != nil {
		return nil, err
	}

	if err := insertStatusEvent(ctx, tx, orderID, target, actor, note, at); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	updated := *order
	updated.Status = target
	updated.CancelReason = cancelReason
	updated.UpdatedAt = at
	if target == domain.StatusCompleted {
		t := at
		updated.CompletedAt = &t
	}
	return &store.Transition{OldStatus: old, NewStatus: target, Order: updated}, nil
}

func (s *Store) CancelUnpaidOrdersBefore(ctx context.Context, branchID string, cutoff time.Time, reason string) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	rows, err := tx.QueryContext(ctx, `
		UPDATE orders
		SET status = 'cancelled', cancel_reason = $3, updated_at = $4
		WHERE branch_id = $1 AND status = 'pending' AND payment_status = 'unpaid' AND created_at < $2
		RETURNING id
	`, branchID, cutoff, reason, now)
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := insertStatusEvent(ctx, tx, id, domain.StatusCancelled, "system", reason, now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *Store) GetIngredient(ctx context.Context, ingredientID string) (*domain.Ingredient, error) {
	var ing domain.Ingredient
	err := s.db.QueryRowContext(ctx, `
		SELECT id, branch_id, name, unit, cost_per_unit_satang, current_stock, min_stock_level
		FROM ingredients
		WHERE id = $1
	`, ingredientID).Scan(&ing.ID, &ing.BranchID, &ing.Name, &ing.Unit, &ing.CostPerUnitSatang, &ing.CurrentStock, &ing.MinStockLevel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrIngredientNotFound
		}
		return nil, err
	}
	return &ing, nil
}

func (s *Store) ListIngredients(ctx context.Context, branchID string) ([]domain.Ingredient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, name, unit, cost_per_unit_satang, current_stock, min_stock_level
		FROM ingredients
		WHERE branch_id = $1
		ORDER BY name
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectIngredients(rows)
}

func (s *Store) CreateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	if ingredient.Name == "" || ingredient.Unit == "" || ingredient.CurrentStock < 0 || ingredient.MinStockLevel < 0 {
		return nil, store.ErrInvalidInput
	}
	if ingredient.ID == "" {
		ingredient.ID = xid.New("ing")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ingredients (id, branch_id, name, unit, cost_per_unit_satang, current_stock, min_stock_level, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
	`, ingredient.ID, ingredient.BranchID, ingredient.Name, ingredient.Unit, ingredient.CostPerUnitSatang, ingredient.CurrentStock, ingredient.MinStockLevel)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	if ingredient.CurrentStock > 0 {
		if err := insertStockTxn(ctx, tx, domain.StockTransaction{
			ID:           xid.New("stx"),
			BranchID:     ingredient.BranchID,
			IngredientID: ingredient.ID,
			Type:         domain.StockAdd,
			Quantity:     ingredient.CurrentStock,
			Note:         "opening stock",
			Actor:        "system",
			CreatedAt:    time.Now().UTC(),
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := ingredient
	return &created, nil
}

func (s *Store) CreateRecipe(ctx context.Context, recipe domain.Recipe) (*domain.Recipe, error) {
	if recipe.ProductID == "" || recipe.IngredientID == "" || recipe.QuantityPerUnit <= 0 {
		return nil, store.ErrInvalidInput
	}
	if recipe.ID == "" {
		recipe.ID = xid.New("rcp")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipes (id, product_id, ingredient_id, quantity_per_unit)
		VALUES ($1,$2,$3,$4)
	`, recipe.ID, recipe.ProductID, recipe.IngredientID, recipe.QuantityPerUnit)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := recipe
	return &created, nil
}

func (s *Store) GetRecipe(ctx context.Context, productID string) ([]domain.RecipeRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.ingredient_id, i.name, i.unit, r.quantity_per_unit, i.cost_per_unit_satang
		FROM recipes r
		JOIN ingredients i ON i.id = r.ingredient_id
		WHERE r.product_id = $1
		ORDER BY i.name
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.RecipeRow, 0, 4)
	for rows.Next() {
		var row domain.RecipeRow
		if err := rows.Scan(&row.IngredientID, &row.IngredientName, &row.Unit, &row.QuantityPerUnit, &row.CostPerUnitSatang); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// DeductStockForOrder runs the whole commitment in one serializable
// transaction: the idempotency flag, every ingredient decrement and every
// ledger row either all land or none do.
func (s *Store) DeductStockForOrder(ctx context.Context, orderID string, actor string, at time.Time) (*store.DeductionResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var deducted bool
	err = tx.QueryRowContext(ctx, `SELECT stock_deducted FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&deducted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if deducted {
		return &store.DeductionResult{AlreadyDeducted: true}, nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT r.ingredient_id, i.branch_id, i.name, i.min_stock_level, r.quantity_per_unit * oi.quantity
		FROM order_items oi
		JOIN recipes r ON r.product_id = oi.product_id
		JOIN ingredients i ON i.id = r.ingredient_id
		WHERE oi.order_id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}

	type pending struct {
		ingredientID string
		branchID     string
		name         string
		minLevel     float64
		qty          float64
	}
	deductions := make([]pending, 0, 8)
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.ingredientID, &p.branchID, &p.name, &p.minLevel, &p.qty); err != nil {
			rows.Close()
			return nil, err
		}
		deductions = append(deductions, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &store.DeductionResult{}
	lowSeen := make(map[string]bool)
	for _, p := range deductions {
		var remaining float64
		err = tx.QueryRowContext(ctx, `
			UPDATE ingredients
			SET current_stock = current_stock - $2
			WHERE id = $1
			RETURNING current_stock
		`, p.ingredientID, p.qty).Scan(&remaining)
		if err != nil {
			return nil, err
		}

		if err := insertStockTxn(ctx, tx, domain.StockTransaction{
			ID:           xid.New("stx"),
			BranchID:     p.branchID,
			IngredientID: p.ingredientID,
			Type:         domain.StockDeduct,
			Quantity:     -p.qty,
			ReferenceID:  orderID,
			Actor:        actor,
			CreatedAt:    at,
		}); err != nil {
			return nil, err
		}

		result.Deducted = append(result.Deducted, store.StockDeduction{
			IngredientID: p.ingredientID,
			Name:         p.name,
			Quantity:     p.qty,
			Remaining:    remaining,
		})
		if remaining <= p.minLevel && !lowSeen[p.ingredientID] {
			lowSeen[p.ingredientID] = true
			result.LowStock = append(result.LowStock, domain.Ingredient{
				ID:            p.ingredientID,
				BranchID:      p.branchID,
				Name:          p.name,
				CurrentStock:  remaining,
				MinStockLevel: p.minLevel,
			})
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE orders SET stock_deducted = true, updated_at = $2 WHERE id = $1`, orderID, at)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) AdjustStock(ctx context.Context, ingredientID string, adjType domain.StockTransactionType, quantity float64, note string, actor string, at time.Time) (*domain.AdjustStockResponse, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var branchID string
	var oldStock float64
	err = tx.QueryRowContext(ctx, `
		SELECT branch_id, current_stock FROM ingredients WHERE id = $1 FOR UPDATE
	`, ingredientID).Scan(&branchID, &oldStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrIngredientNotFound
		}
		return nil, err
	}

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
	if newStock < 0 {
		return nil, fmt.Errorf("%w: %s would drop to %.3f", store.ErrNegativeStock, ingredientID, newStock)
	}

	_, err = tx.ExecContext(ctx, `UPDATE ingredients SET current_stock = $2 WHERE id = $1`, ingredientID, newStock)
	if err != nil {
		return nil, err
	}

	if err := insertStockTxn(ctx, tx, domain.StockTransaction{
		ID:           xid.New("stx"),
		BranchID:     branchID,
		IngredientID: ingredientID,
		Type:         adjType,
		Quantity:     newStock - oldStock,
		Note:         note,
		Actor:        actor,
		CreatedAt:    at,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.AdjustStockResponse{
		IngredientID: ingredientID,
		OldStock:     oldStock,
		NewStock:     newStock,
	}, nil
}

func (s *Store) ListStockTransactions(ctx context.Context, ingredientID string, limit int, offset int) ([]domain.StockTransaction, error) {
	if limit < 1 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, ingredient_id, type, quantity, reference_id, note, actor, created_at
		FROM stock_transactions
		WHERE ingredient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, ingredientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := make([]domain.StockTransaction, 0, limit)
	for rows.Next() {
		var t domain.StockTransaction
		if err := rows.Scan(&t.ID, &t.BranchID, &t.IngredientID, &t.Type, &t.Quantity, &t.ReferenceID, &t.Note, &t.Actor, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (s *Store) ListLowStockIngredients(ctx context.Context, branchID string) ([]domain.Ingredient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, name, unit, cost_per_unit_satang, current_stock, min_stock_level
		FROM ingredients
		WHERE branch_id = $1 AND current_stock <= min_stock_level
		ORDER BY name
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectIngredients(rows)
}

func (s *Store) FindEvidenceByTransactionRef(ctx context.Context, transactionRef string) (*domain.PaymentEvidence, error) {
	var e domain.PaymentEvidence
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, transaction_ref, amount_satang, transferred_at, sender_account, receiver_account, outcome, created_at
		FROM payment_evidence
		WHERE transaction_ref = $1 AND outcome <> 'duplicate'
		LIMIT 1
	`, transactionRef).Scan(&e.ID, &e.OrderID, &e.TransactionRef, &e.AmountSatang, &e.TransferredAt, &e.SenderAccount, &e.ReceiverAccount, &e.Outcome, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	e.TransferredAt = e.TransferredAt.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

// AttachPaymentEvidence persists the evidence row and applies its outcome to
// the order in one serializable transaction. Ref ownership is enforced by the
// partial unique index on (transaction_ref) WHERE outcome <> 'duplicate'.
func (s *Store) AttachPaymentEvidence(ctx context.Context, evidence domain.PaymentEvidence, at time.Time) (*store.EvidenceAttachment, error) {
	if evidence.ID == "" {
		evidence.ID = xid.New("pev")
	}
	if evidence.CreatedAt.IsZero() {
		evidence.CreatedAt = at
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, evidence.OrderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	failedChecks := strings.Join(evidence.FailedChecks, ",")

	var transferredAt any
	if !evidence.TransferredAt.IsZero() {
		transferredAt = evidence.TransferredAt
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payment_evidence (
			id, order_id, transaction_ref, amount_satang, transferred_at,
			sender_account, receiver_account, outcome, failed_checks, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, evidence.ID, evidence.OrderID, evidence.TransactionRef, evidence.AmountSatang, transferredAt,
		evidence.SenderAccount, evidence.ReceiverAccount, evidence.Outcome, failedChecks, evidence.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateSlip
		}
		return nil, err
	}

	attachment := &store.EvidenceAttachment{}
	switch evidence.Outcome {
	case domain.EvidenceApproved:
		newStatus := order.Status
		if order.Status == domain.StatusPending {
			newStatus = domain.StatusConfirmed
			attachment.AutoConfirmed = true
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET payment_status = 'paid', slip_ref = $2, slip_amount_satang = $3,
				payment_verified_at = $4, status = $5, updated_at = $4
			WHERE id = $1
		`, order.ID, evidence.TransactionRef, evidence.AmountSatang, at, newStatus)
		if err != nil {
			return nil, err
		}
		if attachment.AutoConfirmed {
			if err := insertStatusEvent(ctx, tx, order.ID, domain.StatusConfirmed, "system", "auto-confirmed after payment verification", at); err != nil {
				return nil, err
			}
		}
		order.PaymentStatus = domain.PaymentPaid
		order.SlipRef = evidence.TransactionRef
		order.SlipAmountSatang = evidence.AmountSatang
		verified := at
		order.PaymentVerifiedAt = &verified
		order.Status = newStatus
		order.UpdatedAt = at
	case domain.EvidenceNeedsReview:
		_, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET payment_status = 'pending_review', slip_ref = $2, slip_amount_satang = $3, updated_at = $4
			WHERE id = $1
		`, order.ID, evidence.TransactionRef, evidence.AmountSatang, at)
		if err != nil {
			return nil, err
		}
		order.PaymentStatus = domain.PaymentPendingReview
		order.SlipRef = evidence.TransactionRef
		order.SlipAmountSatang = evidence.AmountSatang
		order.UpdatedAt = at
	case domain.EvidenceDuplicate, domain.EvidenceRejected:
		// Evidence row only; the order is left untouched.
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	attachment.Order = *order
	return attachment, nil
}

func (s *Store) ListOrdersPendingReview(ctx context.Context, branchID string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE branch_id = $1 AND payment_status = 'pending_review'
		ORDER BY created_at DESC, id DESC
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 8)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, branch_id, actor, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.BranchID, entry.Actor, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrInvalidInput
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func insertStatusEvent(ctx context.Context, tx *sql.Tx, orderID string, status domain.OrderStatus, actor string, note string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_status_events (id, order_id, status, actor, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, xid.New("ose"), orderID, status, actor, note, at)
	return err
}

func insertStockTxn(ctx context.Context, tx *sql.Tx, t domain.StockTransaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_transactions (id, branch_id, ingredient_id, type, quantity, reference_id, note, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, t.ID, t.BranchID, t.IngredientID, t.Type, t.Quantity, t.ReferenceID, t.Note, t.Actor, t.CreatedAt)
	return err
}

func collectIngredients(rows *sql.Rows) ([]domain.Ingredient, error) {
	result := make([]domain.Ingredient, 0, 16)
	for rows.Next() {
		var ing domain.Ingredient
		if err := rows.Scan(&ing.ID, &ing.BranchID, &ing.Name, &ing.Unit, &ing.CostPerUnitSatang, &ing.CurrentStock, &ing.MinStockLevel); err != nil {
			return nil, err
		}
		result = append(result, ing)
	}
	return result, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
