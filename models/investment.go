package models

import (
	"time"

	"gorm.io/gorm"
)

type Investment struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	PlanName  string         `gorm:"size:100;not null" json:"plan_name"`
	Amount    int64          `gorm:"not null" json:"amount"`
	Status    string         `gorm:"size:20;default:'active'" json:"status"` // active, matured, cancelled
}

// TableName overrides the table name
func (Investment) TableName() string {
	return "investments"
}
