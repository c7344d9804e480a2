package domain

import "time"

// All currency values are int64 satang (1 baht = 100 satang).

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

// validTransitions is the complete status graph. An order may only move along
// these edges; re-applying the current status is a no-op, not an error.
var validTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

func (s OrderStatus) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether target is reachable from s in one step.
func (s OrderStatus) CanTransition(target OrderStatus) bool {
	for _, next := range validTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPendingReview PaymentStatus = "pending_review"
	PaymentPaid          PaymentStatus = "paid"
)

type EvidenceOutcome string

const (
	EvidenceApproved    EvidenceOutcome = "approved"
	EvidenceNeedsReview EvidenceOutcome = "needs_review"
	EvidenceRejected    EvidenceOutcome = "rejected"
	EvidenceDuplicate   EvidenceOutcome = "duplicate"
)

type StockTransactionType string

const (
	StockDeduct StockTransactionType = "deduct"
	StockAdd    StockTransactionType = "add"
	StockRemove StockTransactionType = "remove"
	StockWaste  StockTransactionType = "waste"
	StockAdjust StockTransactionType = "adjust"
)

func (t StockTransactionType) Valid() bool {
	switch t {
	case StockDeduct, StockAdd, StockRemove, StockWaste, StockAdjust:
		return true
	default:
		return false
	}
}

// Product and Variant are read-only catalog references. The order core never
// writes them; prices are snapshotted onto line items at order time.
type Product struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	BasePriceSatang int64  `json:"base_price_satang"`
	CostPriceSatang int64  `json:"cost_price_satang"`
	Available       bool   `json:"available"`
}

type Variant struct {
	ID                  string `json:"id"`
	ProductID           string `json:"product_id"`
	Name                string `json:"name"`
	PriceModifierSatang int64  `json:"price_modifier_satang"`
}

type Order struct {
	ID                  string        `json:"id"`
	OrderNumber         string        `json:"order_number"`
	BranchID            string        `json:"branch_id"`
	CustomerName        string        `json:"customer_name"`
	CustomerPhone       string        `json:"customer_phone,omitempty"`
	CustomerAddress     string        `json:"customer_address,omitempty"`
	DeliveryType        string        `json:"delivery_type"`
	Status              OrderStatus   `json:"status"`
	SubtotalSatang      int64         `json:"subtotal_satang"`
	DiscountSatang      int64         `json:"discount_satang"`
	TaxSatang           int64         `json:"tax_satang"`
	TotalSatang         int64         `json:"total_satang"`
	PaymentMethod       string        `json:"payment_method"`
	PaymentStatus       PaymentStatus `json:"payment_status"`
	SlipRef             string        `json:"slip_ref,omitempty"`
	SlipAmountSatang    int64         `json:"slip_amount_satang,omitempty"`
	PaymentVerifiedAt   *time.Time    `json:"payment_verified_at,omitempty"`
	Notes               string        `json:"notes,omitempty"`
	CancelReason        string        `json:"cancel_reason,omitempty"`
	EstimatedPrepMinute int           `json:"estimated_prep_minutes"`
	StockDeducted       bool          `json:"stock_deducted"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
	CompletedAt         *time.Time    `json:"completed_at,omitempty"`
}

// OrderLineItem snapshots the resolved name and price at order time; catalog
// changes never alter historical orders.
type OrderLineItem struct {
	ID              string `json:"id"`
	OrderID         string `json:"order_id"`
	ProductID       string `json:"product_id"`
	VariantID       string `json:"variant_id,omitempty"`
	ProductName     string `json:"product_name"`
	VariantName     string `json:"variant_name,omitempty"`
	Quantity        int    `json:"quantity"`
	UnitPriceSatang int64  `json:"unit_price_satang"`
	LineTotalSatang int64  `json:"line_total_satang"`
	UnitCostSatang  int64  `json:"unit_cost_satang"`
	Notes           string `json:"notes,omitempty"`
}

type OrderStatusEvent struct {
	ID        string      `json:"id"`
	OrderID   string      `json:"order_id"`
	Status    OrderStatus `json:"status"`
	Actor     string      `json:"actor"`
	Note      string      `json:"note,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

type Ingredient struct {
	ID                string  `json:"id"`
	BranchID          string  `json:"branch_id"`
	Name              string  `json:"name"`
	Unit              string  `json:"unit"`
	CostPerUnitSatang int64   `json:"cost_per_unit_satang"`
	CurrentStock      float64 `json:"current_stock"`
	MinStockLevel     float64 `json:"min_stock_level"`
}

// Recipe maps one product to one ingredient with the quantity consumed per
// sold unit. A product's full recipe is the set of its rows.
type Recipe struct {
	ID             string  `json:"id"`
	ProductID      string  `json:"product_id"`
	IngredientID   string  `json:"ingredient_id"`
	QuantityPerUnit float64 `json:"quantity_per_unit"`
}

// RecipeRow is a recipe entry joined with its ingredient, as returned by
// recipe lookups.
type RecipeRow struct {
	IngredientID      string  `json:"ingredient_id"`
	IngredientName    string  `json:"ingredient_name"`
	Unit              string  `json:"unit"`
	QuantityPerUnit   float64 `json:"quantity_per_unit"`
	CostPerUnitSatang int64   `json:"cost_per_unit_satang"`
}

// StockTransaction is an append-only ledger row. Quantity is the signed delta
// applied to the ingredient's stock; summing all rows for an ingredient
// reproduces its current stock.
type StockTransaction struct {
	ID           string               `json:"id"`
	BranchID     string               `json:"branch_id"`
	IngredientID string               `json:"ingredient_id"`
	Type         StockTransactionType `json:"type"`
	Quantity     float64              `json:"quantity"`
	ReferenceID  string               `json:"reference_id,omitempty"`
	Note         string               `json:"note,omitempty"`
	Actor        string               `json:"actor,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

// PaymentEvidence is the structured record of one submitted transfer slip.
// A provider transaction ref is attached to at most one order, ever.
type PaymentEvidence struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"`
	TransactionRef  string          `json:"transaction_ref"`
	AmountSatang    int64           `json:"amount_satang"`
	TransferredAt   time.Time       `json:"transferred_at"`
	SenderAccount   string          `json:"sender_account,omitempty"`
	ReceiverAccount string          `json:"receiver_account,omitempty"`
	Outcome         EvidenceOutcome `json:"outcome"`
	FailedChecks    []string        `json:"failed_checks,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	BranchID   string    `json:"branch_id"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type CartItem struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes,omitempty"`
}

type CreateOrderRequest struct {
	Items           []CartItem `json:"items"`
	CustomerName    string     `json:"customer_name"`
	CustomerPhone   string     `json:"customer_phone,omitempty"`
	CustomerAddress string     `json:"customer_address,omitempty"`
	DeliveryType    string     `json:"delivery_type,omitempty"`
	PaymentMethod   string     `json:"payment_method,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

type CreateOrderResponse struct {
	OrderID             string          `json:"order_id"`
	OrderNumber         string          `json:"order_number"`
	Status              OrderStatus     `json:"status"`
	SubtotalSatang      int64           `json:"subtotal_satang"`
	DiscountSatang      int64           `json:"discount_satang"`
	TaxSatang           int64           `json:"tax_satang"`
	TotalSatang         int64           `json:"total_satang"`
	EstimatedPrepMinute int             `json:"estimated_prep_minutes"`
	Items               []OrderLineItem `json:"items"`
}

type OrderDetail struct {
	Order         Order              `json:"order"`
	Items         []OrderLineItem    `json:"items"`
	StatusHistory []OrderStatusEvent `json:"status_history"`
}

type OrderFilter struct {
	Status OrderStatus
	Limit  int
	Offset int
}

type TransitionRequest struct {
	TargetStatus OrderStatus `json:"target_status"`
	Note         string      `json:"note,omitempty"`
}

type TransitionResponse struct {
	OrderID   string      `json:"order_id"`
	OldStatus OrderStatus `json:"old_status"`
	NewStatus OrderStatus `json:"new_status"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

type ProcessSlipRequest struct {
	ImageRef string `json:"image_ref"`
}

type ProcessSlipResponse struct {
	OrderID       string          `json:"order_id"`
	Outcome       EvidenceOutcome `json:"outcome"`
	FailedChecks  []string        `json:"failed_checks,omitempty"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	OrderStatus   OrderStatus     `json:"order_status"`
}

type IngredientCreateRequest struct {
	Name              string  `json:"name"`
	Unit              string  `json:"unit"`
	CostPerUnitSatang int64   `json:"cost_per_unit_satang"`
	InitialStock      float64 `json:"initial_stock"`
	MinStockLevel     float64 `json:"min_stock_level"`
}

type RecipeCreateRequest struct {
	ProductID       string  `json:"product_id"`
	IngredientID    string  `json:"ingredient_id"`
	QuantityPerUnit float64 `json:"quantity_per_unit"`
}

type AdjustStockRequest struct {
	IngredientID string               `json:"ingredient_id"`
	Type         StockTransactionType `json:"type"`
	Quantity     float64              `json:"quantity"`
	Note         string               `json:"note,omitempty"`
}

type AdjustStockResponse struct {
	IngredientID string  `json:"ingredient_id"`
	OldStock     float64 `json:"old_stock"`
	NewStock     float64 `json:"new_stock"`
}

type StockHistoryResponse struct {
	IngredientID string             `json:"ingredient_id"`
	Transactions []StockTransaction `json:"transactions"`
}

// StatusChangedEvent is emitted to the notifier on every successful status
// transition.
type StatusChangedEvent struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	OldStatus   OrderStatus `json:"old_status"`
	NewStatus   OrderStatus `json:"new_status"`
	Timestamp   time.Time   `json:"timestamp"`
}

// LowStockEvent is emitted when a deduction leaves an ingredient at or below
// its minimum level.
type LowStockEvent struct {
	IngredientID  string  `json:"ingredient_id"`
	Name          string  `json:"name"`
	CurrentStock  float64 `json:"current_stock"`
	MinStockLevel float64 `json:"min_stock_level"`
}
