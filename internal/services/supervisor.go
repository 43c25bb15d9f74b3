package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/onebox-mail/onebox/internal/database/models"
	"github.com/onebox-mail/onebox/internal/functions"
)

// ErrAccountInactive indicates the account is flagged inactive
var ErrAccountInactive = errors.New("account is not active")

const (
	initialRetryBackoff = 5 * time.Second
	maxRetryBackoff     = 5 * time.Minute
)

// Supervisor fans out one independent pipeline run per active account and
// isolates per-account failures: one account's fatal error never aborts
// another's. Supervised runs are restarted with exponential backoff so an
// account eventually resumes synchronization after a transient outage.
type Supervisor struct {
	accounts  *AccountService
	states    *SyncStateService
	processor *functions.Processor
	notifier  InterestedNotifier
	logger    *slog.Logger

	mu      sync.Mutex
	cancels map[uint]context.CancelFunc
}

// NewSupervisor creates a new Supervisor instance
func NewSupervisor(accounts *AccountService, states *SyncStateService, processor *functions.Processor, notifier InterestedNotifier, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		accounts:  accounts,
		states:    states,
		processor: processor,
		notifier:  notifier,
		logger:    logger.With("component", "supervisor"),
		cancels:   make(map[uint]context.CancelFunc),
	}
}

// track records the cancel function for an account's run. A second start for
// the same account replaces the entry without canceling the first run; there
// is deliberately no de-duplication guard.
func (s *Supervisor) track(accountID uint, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[accountID] = cancel
	s.mu.Unlock()
}

func (s *Supervisor) untrack(accountID uint) {
	s.mu.Lock()
	delete(s.cancels, accountID)
	s.mu.Unlock()
}

// StopOne cancels an account's running pipeline, if any. Used when an account
// is deactivated or deleted; stopping is best-effort and asynchronous.
func (s *Supervisor) StopOne(accountID uint) {
	s.mu.Lock()
	cancel, ok := s.cancels[accountID]
	delete(s.cancels, accountID)
	s.mu.Unlock()

	if ok {
		s.logger.Info("stopping pipeline", "account_id", accountID)
		cancel()
	}
}

// StartAll loads all active accounts and starts one supervised background
// pipeline per account. It does not block on any of them.
func (s *Supervisor) StartAll(ctx context.Context) error {
	accounts, err := s.accounts.ListActive()
	if err != nil {
		return err
	}

	if len(accounts) == 0 {
		s.logger.Info("no active accounts found")
		return nil
	}

	s.logger.Info("starting pipelines for active accounts", "count", len(accounts))
	for _, account := range accounts {
		acc := account
		runCtx, cancel := context.WithCancel(ctx)
		s.track(acc.ID, cancel)
		go func() {
			defer s.untrack(acc.ID)
			s.supervise(runCtx, &acc)
		}()
	}

	return nil
}

// StartOne starts (or restarts) a single account's pipeline. The connection
// is established synchronously so credential failures surface to the caller;
// the backfill and watch then continue in the background under supervision.
func (s *Supervisor) StartOne(ctx context.Context, accountID uint) error {
	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return err
	}
	if !account.IsActive {
		return ErrAccountInactive
	}

	session, err := s.connect(account)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.track(account.ID, cancel)

	go func() {
		defer s.untrack(account.ID)
		defer session.Close()
		if err := s.runPipeline(runCtx, account, session); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("pipeline run ended", "account", account.Email, "error", err)
			s.supervise(runCtx, account)
		}
	}()

	return nil
}

// supervise runs one account's pipeline in a retry loop with exponential
// backoff, re-entering the same state machine on every attempt.
func (s *Supervisor) supervise(ctx context.Context, account *models.Account) {
	backoff := initialRetryBackoff

	for {
		start := time.Now()
		err := s.runOnce(ctx, account)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}

		// Re-read the active flag so a deactivated account stops retrying
		fresh, lookupErr := s.accounts.GetByID(account.ID)
		if lookupErr != nil || !fresh.IsActive {
			s.logger.Info("account no longer active, stopping pipeline", "account", account.Email)
			return
		}
		account = fresh

		// A run that survived a while earned a reset of the backoff
		if time.Since(start) > maxRetryBackoff {
			backoff = initialRetryBackoff
		}

		s.logger.Warn("pipeline failed, retrying", "account", account.Email, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}
}

// runOnce connects a fresh session and drives the pipeline until it ends
func (s *Supervisor) runOnce(ctx context.Context, account *models.Account) error {
	session, err := s.connect(account)
	if err != nil {
		return err
	}
	defer session.Close()

	return s.runPipeline(ctx, account, session)
}

// connect opens the account's mailbox session
func (s *Supervisor) connect(account *models.Account) (*Session, error) {
	password, err := s.accounts.GetDecryptedPassword(account)
	if err != nil {
		return nil, err
	}

	session := NewSession(account, password, s.logger)
	if err := session.Connect(); err != nil {
		return nil, err
	}
	return session, nil
}

// runPipeline executes one account's backfill-then-watch state machine
func (s *Supervisor) runPipeline(ctx context.Context, account *models.Account, session *Session) error {
	pipeline := NewPipeline(
		account.ID,
		account.Email,
		SessionSource{Session: session},
		s.processor,
		s.states,
		s.notifier,
		s.logger,
	)
	return pipeline.Run(ctx)
}
