package store

import (
	"context"
	"errors"
	"time"

	"khaosoi/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrVariantNotFound    = errors.New("variant not found")
	ErrIngredientNotFound = errors.New("ingredient not found")
	ErrEmptyCart          = errors.New("empty cart")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrNegativeStock      = errors.New("negative stock")
	ErrInvalidAdjustType  = errors.New("invalid stock adjustment type")
	ErrDuplicateSlip      = errors.New("slip already used")
	ErrInvalidInput       = errors.New("invalid input")
)

// Transition is the result of a status change. NoOp is set when the order was
// already in the target status and nothing was written.
type Transition struct {
	OldStatus domain.OrderStatus
	NewStatus domain.OrderStatus
	Order     domain.Order
	NoOp      bool
}

type StockDeduction struct {
	IngredientID string
	Name         string
	Quantity     float64
	Remaining    float64
}

// DeductionResult reports what one order's commitment deducted.
// AlreadyDeducted is set when the per-order flag was already up and nothing
// was written. LowStock lists ingredients at or below their minimum after the
// deduction.
type DeductionResult struct {
	AlreadyDeducted bool
	Deducted        []StockDeduction
	LowStock        []domain.Ingredient
}

// EvidenceAttachment is the result of attaching payment evidence to an order
// in one atomic unit.
type EvidenceAttachment struct {
	Order         domain.Order
	AutoConfirmed bool
}

// Repository is the durable record store for the order core. Every method
// that touches more than one row executes as a single atomic unit; partial
// writes never survive an error.
type Repository interface {
	// Catalog (read-only reference data owned by the catalog collaborator).
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	GetVariant(ctx context.Context, productID string, variantID string) (*domain.Variant, error)
	ListVariants(ctx context.Context, productID string) ([]domain.Variant, error)

	// Orders. CreateOrder assigns the order number: numberPrefix is
	// "{branchCode}-{MMDD}" and the store appends the branch-day sequence
	// atomically with the insert of order, line items and the initial
	// pending status event.
	CreateOrder(ctx context.Context, order domain.Order, items []domain.OrderLineItem, numberPrefix string) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrderItems(ctx context.Context, orderID string) ([]domain.OrderLineItem, error)
	ListOrderStatusEvents(ctx context.Context, orderID string) ([]domain.OrderStatusEvent, error)
	ListOrders(ctx context.Context, branchID string, filter domain.OrderFilter) ([]domain.Order, error)
	ListActiveOrders(ctx context.Context, branchID string) ([]domain.Order, error)
	TransitionOrderStatus(ctx context.Context, orderID string, target domain.OrderStatus, actor string, note string, at time.Time) (*Transition, error)
	CancelUnpaidOrdersBefore(ctx context.Context, branchID string, cutoff time.Time, reason string) (int, error)

	// Stock.
	GetIngredient(ctx context.Context, ingredientID string) (*domain.Ingredient, error)
	ListIngredients(ctx context.Context, branchID string) ([]domain.Ingredient, error)
	CreateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error)
	CreateRecipe(ctx context.Context, recipe domain.Recipe) (*domain.Recipe, error)
	GetRecipe(ctx context.Context, productID string) ([]domain.RecipeRow, error)
	DeductStockForOrder(ctx context.Context, orderID string, actor string, at time.Time) (*DeductionResult, error)
	AdjustStock(ctx context.Context, ingredientID string, adjType domain.StockTransactionType, quantity float64, note string, actor string, at time.Time) (*domain.AdjustStockResponse, error)
	ListStockTransactions(ctx context.Context, ingredientID string, limit int, offset int) ([]domain.StockTransaction, error)
	ListLowStockIngredients(ctx context.Context, branchID string) ([]domain.Ingredient, error)

	// Payment evidence.
	FindEvidenceByTransactionRef(ctx context.Context, transactionRef string) (*domain.PaymentEvidence, error)
	AttachPaymentEvidence(ctx context.Context, evidence domain.PaymentEvidence, at time.Time) (*EvidenceAttachment, error)
	ListOrdersPendingReview(ctx context.Context, branchID string) ([]domain.Order, error)

	// Audit trail (append-only; read surface belongs to the audit collaborator).
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error

	// Auth credentials.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
