package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hardware-store/payment-gateway/internal/constant/model/db"
	"github.com/hardware-store/payment-gateway/internal/core"
	"github.com/hardware-store/payment-gateway/internal/port/output"
	"gorm.io/gorm"
)

// GormOrderRepository is a secondary adapter that implements the
// OrderRepository output port.
type GormOrderRepository struct {
	gormDB *gorm.DB
}

// NewGormOrderRepository creates a new GORM order repository
func NewGormOrderRepository(gormDB *gorm.DB) output.OrderRepository {
	return &GormOrderRepository{gormDB: gormDB}
}

// toCore converts db.Order to core.Order
func toCore(o *db.Order) *core.Order {
	return &core.Order{
		ID:            o.ID,
		UserID:        o.UserID,
		Amount:        o.Amount,
		Currency:      core.Currency(o.Currency),
		Status:        core.OrderStatus(o.Status),
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Payment: core.PaymentInfo{
			Method:        core.PaymentMethod(o.PaymentMethod),
			Provider:      core.PaymentProvider(o.Provider),
			TransactionID: o.TransactionID,
			PhoneNumber:   o.PhoneNumber,
			Status:        core.PaymentStatus(o.PaymentStatus),
			PaidAt:        o.PaidAt,
		},
		CancelReason: o.CancelReason,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

// fromCore converts core.Order to db.Order
func fromCore(o *core.Order) *db.Order {
	return &db.Order{
		ID:            o.ID,
		UserID:        o.UserID,
		Amount:        o.Amount,
		Currency:      string(o.Currency),
		Status:        string(o.Status),
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		PaymentMethod: string(o.Payment.Method),
		Provider:      string(o.Payment.Provider),
		TransactionID: o.Payment.TransactionID,
		PhoneNumber:   o.Payment.PhoneNumber,
		PaymentStatus: string(o.Payment.Status),
		PaidAt:        o.Payment.PaidAt,
		CancelReason:  o.CancelReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// FindByID retrieves an order by its ID
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*core.Order, error) {
	var dbOrder db.Order
	if err := r.gormDB.WithContext(ctx).Where("id = ?", id).First(&dbOrder).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return toCore(&dbOrder), nil
}

// FindByTransactionReference retrieves the order holding the given provider
// transaction reference.
func (r *GormOrderRepository) FindByTransactionReference(ctx context.Context, reference string) (*core.Order, error) {
	var dbOrder db.Order
	if err := r.gormDB.WithContext(ctx).Where("transaction_id = ?", reference).First(&dbOrder).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order by reference: %w", err)
	}
	return toCore(&dbOrder), nil
}

// Save writes the order conditionally on its stored payment status. The
// single UPDATE ... WHERE payment_status = ? is the compare-and-swap that
// keeps a racing poll and webhook from both applying a terminal transition.
func (r *GormOrderRepository) Save(ctx context.Context, order *core.Order, expectedPriorStatus core.PaymentStatus) error {
	dbOrder := fromCore(order)
	res := r.gormDB.WithContext(ctx).
		Model(&db.Order{}).
		Where("id = ? AND payment_status = ?", order.ID, string(expectedPriorStatus)).
		Updates(map[string]interface{}{
			"status":         dbOrder.Status,
			"transaction_id": dbOrder.TransactionID,
			"phone_number":   dbOrder.PhoneNumber,
			"payment_status": dbOrder.PaymentStatus,
			"paid_at":        dbOrder.PaidAt,
			"cancel_reason":  dbOrder.CancelReason,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to save order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return core.ErrStatusConflict
	}
	return nil
}
