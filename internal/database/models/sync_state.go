package models

import (
	"time"
)

// SyncState tracks synchronization progress for one account. Exactly one row
// exists per account; it is created lazily on first pipeline start and mutated
// only by that account's own pipeline run.
type SyncState struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	AccountID       uint      `gorm:"uniqueIndex;not null" json:"account_id"`
	InitialSyncDone bool      `gorm:"default:false" json:"initial_sync_done"`
	LastSyncedAt    time.Time `json:"last_synced_at"`
	Folders         string    `gorm:"type:text" json:"folders"` // JSON map: folder name -> cursor
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FolderCursor records the last-seen position within one folder
type FolderCursor struct {
	LastSeenUID  uint32    `json:"last_seen_uid"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}
