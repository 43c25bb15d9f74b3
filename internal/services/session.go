package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	id "github.com/emersion/go-imap-id"
	"github.com/onebox-mail/onebox/internal/database/models"
	"github.com/onebox-mail/onebox/internal/functions"
)

var (
	// ErrConnectionFailed indicates the IMAP connection or login failed
	ErrConnectionFailed = errors.New("IMAP connection failed")
	// ErrFolderAccess indicates a folder could not be selected
	ErrFolderAccess = errors.New("folder access failed")
	// ErrNotConnected indicates an operation was issued before Connect
	ErrNotConnected = errors.New("session not connected")
)

const (
	dialTimeout    = 10 * time.Second
	commandTimeout = 5 * time.Minute
	idleRestart    = 25 * time.Minute
	fetchBatchSize = 10
)

// Session is one authenticated, long-lived IMAP connection serving exactly
// one account for the lifetime of that account's pipeline run. The folder
// lock is the session's one mutual-exclusion primitive: it scopes one
// in-flight operation per folder at a time.
type Session struct {
	account  *models.Account
	password string
	client   *client.Client
	logger   *slog.Logger
	mu       sync.Mutex // folder lock
}

// NewSession creates a session for one account. Connect must be called
// before any folder operation.
func NewSession(account *models.Account, password string, logger *slog.Logger) *Session {
	return &Session{
		account:  account,
		password: password,
		logger:   logger.With("component", "session", "account", account.Email),
	}
}

// Connect establishes the TLS connection and authenticates. Network and
// authentication failures are fatal for this account's run.
func (s *Session) Connect() error {
	addr := fmt.Sprintf("%s:%d", s.account.IMAPHost, s.account.IMAPPort)
	dialer := &net.Dialer{Timeout: dialTimeout}

	tlsConfig := &tls.Config{ServerName: s.account.IMAPHost}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	c.Timeout = commandTimeout

	// Some providers require client identification before login
	if ok, _ := c.Support("ID"); ok {
		idClient := id.NewClient(c)
		if _, err := idClient.ID(id.ID{
			id.FieldName:    "onebox",
			id.FieldVersion: "1.0.0",
		}); err != nil {
			s.logger.Debug("IMAP ID command failed", "error", err)
		}
	}

	if err := c.Login(s.account.Email, s.password); err != nil {
		c.Logout()
		return fmt.Errorf("%w: login failed: %v", ErrConnectionFailed, err)
	}

	s.client = c
	s.logger.Info("connected to IMAP server", "server", addr)
	return nil
}

// Close logs out and drops the connection
func (s *Session) Close() {
	if s.client != nil {
		s.client.Logout()
		s.client = nil
	}
}

// FolderLock is an exclusive handle on one selected folder. No other folder
// operation can be issued on this session until Release is called.
type FolderLock struct {
	session *Session
	Name    string
	Mailbox *imap.MailboxStatus
}

// Lock selects a folder and returns the exclusive handle for it
func (s *Session) Lock(folder string) (*FolderLock, error) {
	if s.client == nil {
		return nil, ErrNotConnected
	}

	s.mu.Lock()
	mbox, err := s.client.Select(folder, false)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s: %v", ErrFolderAccess, folder, err)
	}

	return &FolderLock{session: s, Name: folder, Mailbox: mbox}, nil
}

// Release gives up the folder lock
func (l *FolderLock) Release() {
	l.session.mu.Unlock()
}

// FetchSince streams every message received at or after the given date
// through handle, in server-reported order. Handler errors are returned to
// the caller; the stream stops at the first one.
func (l *FolderLock) FetchSince(since time.Time, handle func(functions.RawMessage) error) error {
	c := l.session.client

	if l.Mailbox.Messages == 0 {
		return nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, time.UTC)

	seqNums, err := c.Search(criteria)
	if err != nil {
		return fmt.Errorf("%w: %s: search: %v", ErrFolderAccess, l.Name, err)
	}
	if len(seqNums) == 0 {
		return nil
	}

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	for i := 0; i < len(seqNums); i += fetchBatchSize {
		end := i + fetchBatchSize
		if end > len(seqNums) {
			end = len(seqNums)
		}

		seqSet := new(imap.SeqSet)
		seqSet.AddNum(seqNums[i:end]...)

		messages := make(chan *imap.Message, fetchBatchSize)
		done := make(chan error, 1)
		go func() {
			done <- c.Fetch(seqSet, items, messages)
		}()

		var handleErr error
		for msg := range messages {
			if msg == nil {
				continue
			}
			if handleErr != nil {
				continue // drain the channel; the fetch must run to completion
			}
			handleErr = handle(rawFromMessage(msg, section))
		}

		if err := <-done; err != nil {
			return fmt.Errorf("%w: %s: fetch: %v", ErrFolderAccess, l.Name, err)
		}
		if handleErr != nil {
			return handleErr
		}
	}

	return nil
}

// FetchLatest fetches the single most-recently-arrived message in the folder.
// The second return value is false when the folder is empty.
func (l *FolderLock) FetchLatest() (functions.RawMessage, bool, error) {
	c := l.session.client

	status, err := c.Status(l.Name, []imap.StatusItem{imap.StatusMessages})
	if err != nil {
		return functions.RawMessage{}, false, fmt.Errorf("%w: %s: status: %v", ErrFolderAccess, l.Name, err)
	}
	if status.Messages == 0 {
		return functions.RawMessage{}, false, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(status.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, items, messages)
	}()

	var raw functions.RawMessage
	found := false
	for msg := range messages {
		if msg == nil {
			continue
		}
		raw = rawFromMessage(msg, section)
		found = true
	}

	if err := <-done; err != nil {
		return functions.RawMessage{}, false, fmt.Errorf("%w: %s: fetch: %v", ErrFolderAccess, l.Name, err)
	}

	return raw, found, nil
}

// Watch blocks in an IDLE loop on the locked folder, invoking onNew for each
// new-message event until the context ends or the connection drops. The
// handler runs with the folder lock still held, one event at a time.
func (l *FolderLock) Watch(ctx context.Context, onNew func(functions.RawMessage)) error {
	c := l.session.client

	updates := make(chan client.Update, 16)
	c.Updates = updates

	for {
		stop := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- c.Idle(stop, &client.IdleOptions{LogoutTimeout: idleRestart})
		}()

		var arrived bool
		select {
		case <-ctx.Done():
			close(stop)
			<-done
			return ctx.Err()
		case upd := <-updates:
			_, arrived = upd.(*client.MailboxUpdate)
			close(stop)
			if err := <-done; err != nil {
				return fmt.Errorf("%w: idle: %v", ErrConnectionFailed, err)
			}
		case err := <-done:
			if err != nil {
				return fmt.Errorf("%w: idle: %v", ErrConnectionFailed, err)
			}
			continue // idle timed out cleanly, re-enter
		}

		if !arrived {
			continue
		}

		raw, found, err := l.FetchLatest()
		drainUpdates(updates)
		if err != nil {
			l.session.logger.Error("failed to fetch latest message", "folder", l.Name, "error", err)
			continue
		}
		if found {
			onNew(raw)
		}
	}
}

// drainUpdates discards unilateral updates buffered while a command ran
func drainUpdates(updates <-chan client.Update) {
	for {
		select {
		case <-updates:
		default:
			return
		}
	}
}

// rawFromMessage extracts the raw source bytes from a fetched message.
// Messages with no retrievable body literal yield an empty Source.
func rawFromMessage(msg *imap.Message, section *imap.BodySectionName) functions.RawMessage {
	raw := functions.RawMessage{UID: msg.Uid}

	if literal := msg.GetBody(section); literal != nil {
		if content, err := io.ReadAll(literal); err == nil {
			raw.Source = content
		}
	}

	return raw
}
