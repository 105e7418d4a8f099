package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order represents an order row. Payment fields are flattened onto the
// order since PaymentInfo is owned exclusively by it.
type Order struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	UserID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Amount        float64    `gorm:"type:decimal(15,2);not null" json:"amount"`
	Currency      string     `gorm:"type:varchar(3);not null" json:"currency"`
	Status        string     `gorm:"type:varchar(20);not null" json:"status"`
	CustomerName  string     `gorm:"type:varchar(255)" json:"customer_name"`
	CustomerEmail string     `gorm:"type:varchar(255)" json:"customer_email"`
	PaymentMethod string     `gorm:"type:varchar(20);not null" json:"payment_method"`
	Provider      string     `gorm:"type:varchar(30);not null" json:"provider"`
	TransactionID string     `gorm:"type:varchar(64);index" json:"transaction_id"`
	PhoneNumber   string     `gorm:"type:varchar(20)" json:"phone_number"`
	PaymentStatus string     `gorm:"type:varchar(20);not null" json:"payment_status"`
	PaidAt        *time.Time `json:"paid_at"`
	CancelReason  string     `gorm:"type:varchar(255)" json:"cancel_reason"`
	CreatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// BeforeCreate is a GORM hook that runs before creating a record
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}
	return nil
}

// BeforeUpdate is a GORM hook that runs before updating a record
func (o *Order) BeforeUpdate(tx *gorm.DB) error {
	o.UpdatedAt = time.Now()
	return nil
}
