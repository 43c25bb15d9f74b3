package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/onebox-mail/onebox/internal/database/models"
	"github.com/onebox-mail/onebox/internal/functions"
	"github.com/onebox-mail/onebox/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawEmail builds a minimal RFC 822 message for pipeline tests
func rawEmail(messageID, subject, body string) []byte {
	return []byte("Message-Id: <" + messageID + ">\r\n" +
		"From: sender@example.com\r\n" +
		"To: me@example.com\r\n" +
		"Subject: " + subject + "\r\n" +
		"Date: Mon, 11 Aug 2025 10:00:00 +0000\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		body + "\r\n")
}

// fakeStream replays scripted backfill messages and live events
type fakeStream struct {
	folder        string
	messages      []functions.RawMessage
	liveEvents    []functions.RawMessage
	released      bool
	fetchSinceErr error
}

func (f *fakeStream) Release() { f.released = true }

func (f *fakeStream) FetchSince(since time.Time, handle func(functions.RawMessage) error) error {
	if f.fetchSinceErr != nil {
		return f.fetchSinceErr
	}
	for _, m := range f.messages {
		if err := handle(m); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStream) FetchLatest() (functions.RawMessage, bool, error) {
	if len(f.messages) == 0 {
		return functions.RawMessage{}, false, nil
	}
	return f.messages[len(f.messages)-1], true, nil
}

func (f *fakeStream) Watch(ctx context.Context, onNew func(functions.RawMessage)) error {
	for _, ev := range f.liveEvents {
		onNew(ev)
	}
	return nil
}

// fakeSession hands out per-folder fake streams
type fakeSession struct {
	streams  map[string]*fakeStream
	lockErrs map[string]error
	locked   []string
}

func (f *fakeSession) Lock(folder string) (FolderStream, error) {
	f.locked = append(f.locked, folder)
	if err, ok := f.lockErrs[folder]; ok {
		return nil, err
	}
	stream, ok := f.streams[folder]
	if !ok {
		stream = &fakeStream{folder: folder}
		if f.streams == nil {
			f.streams = map[string]*fakeStream{}
		}
		f.streams[folder] = stream
	}
	return stream, nil
}

// fakeClassifier returns a fixed label per subject substring
type fakeClassifier struct {
	labels map[string]string
	err    error
}

func (f *fakeClassifier) Categorize(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	for needle, label := range f.labels {
		if needle != "" && containsFold(text, needle) {
			return label, nil
		}
	}
	return models.LabelNotInterested, nil
}

func containsFold(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := 0; j < len(needle); j++ {
			a, b := haystack[i+j], needle[j]
			if a >= 'A' && a <= 'Z' {
				a += 'a' - 'A'
			}
			if b >= 'A' && b <= 'Z' {
				b += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

type fakeSuggester struct{}

func (fakeSuggester) SuggestReply(text string) string { return "Thanks, noted." }

// fakeIndexer records indexed documents in memory, keyed by doc ID
type fakeIndexer struct {
	docs map[string]*models.EmailDocument
	err  error
}

func (f *fakeIndexer) IndexDocument(doc *models.EmailDocument) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.docs == nil {
		f.docs = map[string]*models.EmailDocument{}
	}
	f.docs[doc.DocID] = doc
	return doc.DocID, nil
}

// fakeNotifier counts delivered leads
type fakeNotifier struct {
	leads []notify.InterestedLead
}

func (f *fakeNotifier) NotifyInterested(lead notify.InterestedLead) {
	f.leads = append(f.leads, lead)
}

func newTestPipeline(t *testing.T, session MailboxSession, classifier functions.Classifier, indexer functions.DocumentIndexer, notifier InterestedNotifier) (*Pipeline, *SyncStateService) {
	t.Helper()
	db, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	states := NewSyncStateService(db, testLogger())
	processor := functions.NewProcessor(classifier, fakeSuggester{}, indexer, testLogger())
	return NewPipeline(1, "acct-1", session, processor, states, notifier, testLogger()), states
}

func TestPipeline_BackfillIndexesWindowAndFlipsFlag(t *testing.T) {
	session := &fakeSession{streams: map[string]*fakeStream{
		"INBOX": {messages: []functions.RawMessage{
			{UID: 10, Source: rawEmail("m1@x", "First", "hello one")},
			{UID: 11, Source: rawEmail("m2@x", "Second", "hello two")},
			{UID: 12, Source: rawEmail("m3@x", "Third", "hello three")},
		}},
	}}
	indexer := &fakeIndexer{}
	notifier := &fakeNotifier{}

	pipeline, states := newTestPipeline(t, session, &fakeClassifier{}, indexer, notifier)

	err := pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, indexer.docs, 3)
	assert.Contains(t, indexer.docs, "m1@x")

	state, err := states.GetOrCreate(1)
	require.NoError(t, err)
	assert.True(t, state.InitialSyncDone)
	assert.Equal(t, uint32(12), FolderCursors(state)["INBOX"].LastSeenUID)

	// All monitored folders were attempted, INBOX once more for the watch
	assert.Len(t, session.locked, len(MonitoredFolders)+1)
}

func TestPipeline_FolderFailureSkippedFlagStillFlips(t *testing.T) {
	session := &fakeSession{
		streams: map[string]*fakeStream{
			"INBOX": {messages: []functions.RawMessage{
				{UID: 1, Source: rawEmail("ok@x", "Fine", "body")},
			}},
		},
		lockErrs: map[string]error{
			"[Gmail]/Spam": errors.New("mailbox does not exist"),
		},
	}
	indexer := &fakeIndexer{}

	pipeline, states := newTestPipeline(t, session, &fakeClassifier{}, indexer, &fakeNotifier{})

	require.NoError(t, pipeline.Run(context.Background()))

	assert.Len(t, indexer.docs, 1)
	state, _ := states.GetOrCreate(1)
	assert.True(t, state.InitialSyncDone)
}

func TestPipeline_SecondRunSkipsBackfill(t *testing.T) {
	session := &fakeSession{streams: map[string]*fakeStream{
		"INBOX": {messages: []functions.RawMessage{
			{UID: 1, Source: rawEmail("again@x", "Hi", "body")},
		}},
	}}
	indexer := &fakeIndexer{}

	pipeline, states := newTestPipeline(t, session, &fakeClassifier{}, indexer, &fakeNotifier{})

	state, err := states.GetOrCreate(1)
	require.NoError(t, err)
	require.NoError(t, states.MarkInitialSyncDone(state))

	require.NoError(t, pipeline.Run(context.Background()))

	// Only the watch lock on INBOX, no backfill scans
	assert.Equal(t, []string{"INBOX"}, session.locked)
	assert.Empty(t, indexer.docs)
}

func TestPipeline_InterestedLiveMessageNotifiesOnce(t *testing.T) {
	session := &fakeSession{streams: map[string]*fakeStream{
		"INBOX": {liveEvents: []functions.RawMessage{
			{UID: 100, Source: rawEmail("lead@x", "Budget approved", "We are interested in a demo")},
			{UID: 101, Source: rawEmail("noise@x", "Newsletter", "weekly digest")},
		}},
	}}
	indexer := &fakeIndexer{}
	notifier := &fakeNotifier{}
	classifier := &fakeClassifier{labels: map[string]string{
		"interested in a demo": "interested", // lower-case label still matches
	}}

	pipeline, states := newTestPipeline(t, session, classifier, indexer, notifier)

	state, err := states.GetOrCreate(1)
	require.NoError(t, err)
	require.NoError(t, states.MarkInitialSyncDone(state))

	require.NoError(t, pipeline.Run(context.Background()))

	require.Len(t, notifier.leads, 1)
	lead := notifier.leads[0]
	assert.Equal(t, "acct-1", lead.AccountID)
	assert.Equal(t, "Budget approved", lead.Subject)
	assert.Len(t, indexer.docs, 2)

	// Live processing advances the cursor timestamp
	reloaded, _ := states.GetOrCreate(1)
	assert.False(t, reloaded.LastSyncedAt.IsZero())
}

func TestPipeline_LabelWithTrailingContentDoesNotNotify(t *testing.T) {
	session := &fakeSession{streams: map[string]*fakeStream{
		"INBOX": {liveEvents: []functions.RawMessage{
			{UID: 1, Source: rawEmail("almost@x", "Maybe", "interested but not now")},
		}},
	}}
	notifier := &fakeNotifier{}
	classifier := &fakeClassifier{labels: map[string]string{
		"interested but": "Interested - follow up later",
	}}

	pipeline, states := newTestPipeline(t, session, classifier, &fakeIndexer{}, notifier)

	state, _ := states.GetOrCreate(1)
	require.NoError(t, states.MarkInitialSyncDone(state))

	require.NoError(t, pipeline.Run(context.Background()))
	assert.Empty(t, notifier.leads)
}

func TestPipeline_EmptyLiveEventIsSkipped(t *testing.T) {
	session := &fakeSession{streams: map[string]*fakeStream{
		"INBOX": {liveEvents: []functions.RawMessage{
			{UID: 5, Source: nil},
		}},
	}}
	indexer := &fakeIndexer{}
	notifier := &fakeNotifier{}

	pipeline, states := newTestPipeline(t, session, &fakeClassifier{}, indexer, notifier)

	state, _ := states.GetOrCreate(1)
	require.NoError(t, states.MarkInitialSyncDone(state))

	require.NoError(t, pipeline.Run(context.Background()))

	assert.Empty(t, indexer.docs)
	assert.Empty(t, notifier.leads)

	reloaded, _ := states.GetOrCreate(1)
	assert.True(t, reloaded.LastSyncedAt.IsZero())
}

func TestPipeline_ClassifierFailureFallsBackToUncategorized(t *testing.T) {
	session := &fakeSession{streams: map[string]*fakeStream{
		"INBOX": {messages: []functions.RawMessage{
			{UID: 1, Source: rawEmail("deg@x", "Hello", "body text")},
		}},
	}}
	indexer := &fakeIndexer{}

	classifier := &fakeClassifier{err: fmt.Errorf("model unavailable")}
	pipeline, _ := newTestPipeline(t, session, classifier, indexer, &fakeNotifier{})

	require.NoError(t, pipeline.Run(context.Background()))

	require.Len(t, indexer.docs, 1)
	for _, doc := range indexer.docs {
		assert.Equal(t, models.LabelUncategorized, doc.Label)
		assert.Equal(t, "Hello", doc.Subject)
	}
}
