package models

import (
	"time"
)

// Account represents a remote mailbox account monitored by the sync pipeline
type Account struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Email             string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name              string    `gorm:"size:100" json:"name"`
	IMAPHost          string    `gorm:"size:255;not null" json:"imap_host"`
	IMAPPort          int       `gorm:"not null;default:993" json:"imap_port"`
	SMTPHost          string    `gorm:"size:255" json:"smtp_host"`
	SMTPPort          int       `gorm:"default:587" json:"smtp_port"`
	PasswordEncrypted string    `gorm:"size:500;not null" json:"-"`
	IsActive          bool      `gorm:"default:true" json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
