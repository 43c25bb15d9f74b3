package services

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/onebox-mail/onebox/internal/database/models"
	"gorm.io/gorm"
)

// SyncStateService is the durable store for per-account sync cursors. Each
// state row is mutated only by its own account's pipeline run.
type SyncStateService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewSyncStateService creates a new SyncStateService instance
func NewSyncStateService(db *gorm.DB, logger *slog.Logger) *SyncStateService {
	return &SyncStateService{
		db:     db,
		logger: logger.With("component", "sync_state"),
	}
}

// GetOrCreate returns the sync state for an account, creating it with
// initialSyncDone=false on first pipeline start.
func (s *SyncStateService) GetOrCreate(accountID uint) (*models.SyncState, error) {
	var state models.SyncState
	err := s.db.Where("account_id = ?", accountID).First(&state).Error
	if err == nil {
		return &state, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	state = models.SyncState{
		AccountID:       accountID,
		InitialSyncDone: false,
		Folders:         "{}",
	}
	if err := s.db.Create(&state).Error; err != nil {
		return nil, err
	}

	s.logger.Info("created sync state", "account_id", accountID)
	return &state, nil
}

// Save persists the in-memory state. Callers treat a failed save as
// non-fatal: the in-memory state stays authoritative and unsaved progress is
// redone after a restart.
func (s *SyncStateService) Save(state *models.SyncState) error {
	return s.db.Save(state).Error
}

// MarkInitialSyncDone flips the one-shot backfill flag and stamps the sync time
func (s *SyncStateService) MarkInitialSyncDone(state *models.SyncState) error {
	state.InitialSyncDone = true
	state.LastSyncedAt = time.Now()
	return s.Save(state)
}

// TouchLastSynced updates the last-synced timestamp after a unit of work
func (s *SyncStateService) TouchLastSynced(state *models.SyncState) error {
	state.LastSyncedAt = time.Now()
	return s.Save(state)
}

// FolderCursors decodes the per-folder cursor map
func FolderCursors(state *models.SyncState) map[string]models.FolderCursor {
	cursors := make(map[string]models.FolderCursor)
	if state.Folders != "" {
		_ = json.Unmarshal([]byte(state.Folders), &cursors)
	}
	return cursors
}

// SetFolderCursor records the last-seen position for one folder in the state.
// The caller persists via Save.
func SetFolderCursor(state *models.SyncState, folder string, lastSeenUID uint32) {
	cursors := FolderCursors(state)
	cursors[folder] = models.FolderCursor{
		LastSeenUID:  lastSeenUID,
		LastSyncedAt: time.Now(),
	}
	if encoded, err := json.Marshal(cursors); err == nil {
		state.Folders = string(encoded)
	}
}
