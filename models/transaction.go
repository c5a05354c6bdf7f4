package models

import (
	"time"

	"gorm.io/gorm"
)

// Transaction status values. The gateway is the source of truth: anything
// it reports is stored verbatim, these are only the values we expect.
const (
	TransactionProcessing = "processing"
	TransactionCompleted  = "completed"
	TransactionFailed     = "failed"
)

type Transaction struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	GatewayID   string         `gorm:"uniqueIndex;size:64;not null" json:"gateway_id"`
	Reference   string         `gorm:"uniqueIndex;size:64;not null" json:"reference"`
	Phone       string         `gorm:"size:15;not null" json:"phone"`
	Amount      int64          `gorm:"not null" json:"amount"`
	PlanName    string         `gorm:"size:100;not null" json:"plan_name"`
	Description string         `gorm:"type:text" json:"description"`
	Status      string         `gorm:"size:20;default:'processing'" json:"status"`
}

// TableName overrides the table name
func (Transaction) TableName() string {
	return "transactions"
}
