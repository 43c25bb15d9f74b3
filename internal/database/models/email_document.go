package models

import (
	"time"
)

// EmailDocument is an enriched message as stored in the search index. DocID is
// the idempotency key: re-indexing the same document overwrites rather than
// duplicates.
type EmailDocument struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	DocID          string    `gorm:"uniqueIndex;size:255;not null" json:"id"`
	AccountID      string    `gorm:"index;size:255;not null" json:"accountId"`
	Folder         string    `gorm:"index;size:100" json:"folder"`
	FromAddr       string    `gorm:"size:500" json:"from"`
	ToAddrs        string    `gorm:"size:500" json:"to"`
	Subject        string    `gorm:"size:500" json:"subject"`
	Body           string    `gorm:"type:text" json:"text"`
	Date           time.Time `gorm:"index" json:"date"`
	Label          string    `gorm:"index;size:50" json:"label"`
	SuggestedReply string    `gorm:"type:text" json:"suggestedReply"`
	CreatedAt      time.Time `json:"-"`
}

// Labels assigned by the classification service
const (
	LabelInterested    = "Interested"
	LabelMeetingBooked = "Meeting Booked"
	LabelNotInterested = "Not Interested"
	LabelSpam          = "Spam"
	LabelOutOfOffice   = "Out of Office"
	LabelUncategorized = "Uncategorized"
)
