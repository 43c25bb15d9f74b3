package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/onebox-mail/onebox/internal/database/models"
	"github.com/onebox-mail/onebox/internal/functions"
	"github.com/onebox-mail/onebox/internal/notify"
)

// backfillWindowDays bounds the historical scan to a fixed trailing window
const backfillWindowDays = 30

// primaryFolder is the folder the real-time watcher subscribes to
const primaryFolder = "INBOX"

// MonitoredFolders is the fixed, ordered set of folders scanned during
// backfill.
var MonitoredFolders = []string{
	"INBOX",
	"[Gmail]/Sent Mail",
	"[Gmail]/Drafts",
	"[Gmail]/Spam",
	"[Gmail]/Trash",
}

// MailboxSession is the per-account connection the pipeline drives. Session
// implements it through SessionSource; tests substitute fakes.
type MailboxSession interface {
	Lock(folder string) (FolderStream, error)
}

// SessionSource adapts a live Session to the MailboxSession interface
type SessionSource struct {
	Session *Session
}

// Lock acquires the folder lock on the underlying session
func (s SessionSource) Lock(folder string) (FolderStream, error) {
	lock, err := s.Session.Lock(folder)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// FolderStream abstracts the two folder operations the pipeline issues while
// holding a lock.
//
// FolderLock satisfies it directly; the indirection exists so the pipeline's
// state machine can be tested without an IMAP server.
type FolderStream interface {
	Release()
	FetchSince(since time.Time, handle func(functions.RawMessage) error) error
	FetchLatest() (functions.RawMessage, bool, error)
	Watch(ctx context.Context, onNew func(functions.RawMessage)) error
}

// InterestedNotifier delivers enriched "Interested" messages outward
type InterestedNotifier interface {
	NotifyInterested(lead notify.InterestedLead)
}

// Pipeline runs one account's ingestion: a one-shot bounded backfill gated by
// the sync state, then an indefinite real-time watch on the primary folder.
// The watch only starts after the whole backfill pass has finished, so the
// two never process the same folder concurrently.
type Pipeline struct {
	accountID  uint
	accountKey string // unique account identifier used in indexed documents
	session    MailboxSession
	processor  *functions.Processor
	states     *SyncStateService
	notifier   InterestedNotifier
	logger     *slog.Logger
}

// NewPipeline creates a pipeline for one account's session
func NewPipeline(accountID uint, accountKey string, session MailboxSession, processor *functions.Processor, states *SyncStateService, notifier InterestedNotifier, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		accountID:  accountID,
		accountKey: accountKey,
		session:    session,
		processor:  processor,
		states:     states,
		notifier:   notifier,
		logger:     logger.With("component", "pipeline", "account", accountKey),
	}
}

// Run executes the account's state machine: backfill once if the state says
// it has never completed, then watch the primary folder until the context
// ends or the connection drops.
func (p *Pipeline) Run(ctx context.Context) error {
	state, err := p.states.GetOrCreate(p.accountID)
	if err != nil {
		return err
	}

	if !state.InitialSyncDone {
		p.backfill(state)
	} else {
		p.logger.Info("already synced, starting real-time listener")
	}

	return p.watch(ctx, state)
}

// backfill scans every monitored folder for messages within the trailing
// window. Per-folder failures are logged and skipped; after all folders have
// been attempted the one-shot flag flips regardless of partial failures.
func (p *Pipeline) backfill(state *models.SyncState) {
	p.logger.Info("performing initial sync across all folders", "window_days", backfillWindowDays)

	since := time.Now().AddDate(0, 0, -backfillWindowDays)
	totalSynced := 0

	for _, folder := range MonitoredFolders {
		count, err := p.backfillFolder(state, folder, since)
		if err != nil {
			p.logger.Warn("could not sync folder, skipping", "folder", folder, "error", err)
			continue
		}
		totalSynced += count
		p.logger.Info("folder synced", "folder", folder, "count", count)
	}

	if err := p.states.MarkInitialSyncDone(state); err != nil {
		p.logger.Error("failed to persist sync state", "error", err)
	}

	p.logger.Info("initial sync completed", "total", totalSynced)
}

// backfillFolder locks one folder, streams its window through the processor
// and releases the lock. Per-message failures are logged and do not abort the
// folder.
func (p *Pipeline) backfillFolder(state *models.SyncState, folder string, since time.Time) (int, error) {
	lock, err := p.session.Lock(folder)
	if err != nil {
		return 0, err
	}
	defer lock.Release()

	count := 0
	var lastUID uint32
	err = lock.FetchSince(since, func(raw functions.RawMessage) error {
		enriched, err := p.processor.Process(raw, p.accountKey, folder, functions.ModeBackfill)
		if err != nil {
			p.logger.Warn("failed to process message", "folder", folder, "uid", raw.UID, "error", err)
			return nil
		}
		if enriched != nil {
			count++
			if raw.UID > lastUID {
				lastUID = raw.UID
			}
		}
		return nil
	})
	if err != nil {
		return count, err
	}

	if lastUID > 0 {
		SetFolderCursor(state, folder, lastUID)
		if err := p.states.Save(state); err != nil {
			p.logger.Error("failed to persist folder cursor", "folder", folder, "error", err)
		}
	}

	return count, nil
}

// watch locks the primary folder and processes new-message events until the
// run ends. Per-event failures are logged and swallowed; the subscription
// stays alive.
func (p *Pipeline) watch(ctx context.Context, state *models.SyncState) error {
	p.logger.Info("starting real-time monitoring", "folder", primaryFolder)

	lock, err := p.session.Lock(primaryFolder)
	if err != nil {
		return err
	}
	defer lock.Release()

	return lock.Watch(ctx, func(raw functions.RawMessage) {
		p.handleLiveMessage(state, raw)
	})
}

// handleLiveMessage processes one real-time event: enrich and index the
// message, advance the sync cursor, and notify on an Interested label.
func (p *Pipeline) handleLiveMessage(state *models.SyncState, raw functions.RawMessage) {
	enriched, err := p.processor.Process(raw, p.accountKey, primaryFolder, functions.ModeLive)
	if err != nil {
		p.logger.Error("error processing new message", "error", err)
		return
	}
	if enriched == nil {
		return
	}

	if err := p.states.TouchLastSynced(state); err != nil {
		p.logger.Error("failed to persist sync state", "error", err)
	}

	if strings.EqualFold(enriched.Label, models.LabelInterested) {
		p.logger.Info("sending notification for interested email", "subject", enriched.Subject)
		p.notifier.NotifyInterested(notify.InterestedLead{
			AccountID: p.accountKey,
			From:      enriched.From,
			To:        enriched.To,
			Subject:   enriched.Subject,
			Text:      enriched.Body,
			Date:      enriched.Date,
			Label:     enriched.Label,
		})
	}

	p.logger.Info("new email processed", "subject", enriched.Subject, "label", enriched.Label)
}
