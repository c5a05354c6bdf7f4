package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
	Phone              string         `gorm:"uniqueIndex;size:15;not null" json:"phone"`
	Email              string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash       string         `gorm:"size:255;not null" json:"-"`
	VerificationToken  string         `gorm:"index;size:64" json:"-"`
	VerificationSentAt *time.Time     `json:"-"`
	IsVerified         bool           `gorm:"default:false" json:"is_verified"`
	VerifiedAt         *time.Time     `json:"verified_at,omitempty"`
	ReferralCode       string         `gorm:"size:64" json:"referral_code,omitempty"`
	Investments        []Investment   `gorm:"foreignKey:UserID" json:"investments,omitempty"`
}

// TableName overrides the table name
func (User) TableName() string {
	return "users"
}
