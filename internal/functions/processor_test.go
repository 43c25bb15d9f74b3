package functions

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/onebox-mail/onebox/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingClassifier captures the text handed to it
type recordingClassifier struct {
	text  string
	label string
	err   error
}

func (r *recordingClassifier) Categorize(text string) (string, error) {
	r.text = text
	if r.err != nil {
		return "", r.err
	}
	if r.label == "" {
		return models.LabelNotInterested, nil
	}
	return r.label, nil
}

type recordingSuggester struct {
	text  string
	reply string
}

func (r *recordingSuggester) SuggestReply(text string) string {
	r.text = text
	if r.reply == "" {
		return "generic reply"
	}
	return r.reply
}

type memoryIndexer struct {
	docs []*models.EmailDocument
	err  error
}

func (m *memoryIndexer) IndexDocument(doc *models.EmailDocument) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.docs = append(m.docs, doc)
	return doc.DocID, nil
}

func buildRaw(headers map[string]string, body string) RawMessage {
	var b strings.Builder
	for k, v := range headers {
		b.WriteString(k + ": " + v + "\r\n")
	}
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body + "\r\n")
	return RawMessage{UID: 1, Source: []byte(b.String())}
}

func newTestProcessor() (*Processor, *recordingClassifier, *recordingSuggester, *memoryIndexer) {
	classifier := &recordingClassifier{}
	suggester := &recordingSuggester{}
	indexer := &memoryIndexer{}
	return NewProcessor(classifier, suggester, indexer, discardLogger()), classifier, suggester, indexer
}

func TestProcessor_EmptySourceIsSkipped(t *testing.T) {
	processor, _, _, indexer := newTestProcessor()

	enriched, err := processor.Process(RawMessage{UID: 9}, "acct", "INBOX", ModeLive)
	require.NoError(t, err)
	assert.Nil(t, enriched)
	assert.Empty(t, indexer.docs)
}

func TestProcessor_ParseFailureIsFatal(t *testing.T) {
	processor, _, _, indexer := newTestProcessor()

	raw := RawMessage{UID: 2, Source: []byte("this is not an rfc822 message\r\nno header colon\r\n")}
	_, err := processor.Process(raw, "acct", "INBOX", ModeLive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParseFailed))
	assert.Empty(t, indexer.docs)
}

func TestProcessor_ClassifierFailureDegradesToUncategorized(t *testing.T) {
	processor, classifier, _, indexer := newTestProcessor()
	classifier.err = errors.New("timeout")

	raw := buildRaw(map[string]string{
		"From":    "a@example.com",
		"To":      "b@example.com",
		"Subject": "Quarterly report",
	}, "see attached")

	enriched, err := processor.Process(raw, "acct", "INBOX", ModeBackfill)
	require.NoError(t, err)
	require.NotNil(t, enriched)

	assert.Equal(t, models.LabelUncategorized, enriched.Label)
	assert.Equal(t, "Quarterly report", enriched.Subject)
	assert.Equal(t, "a@example.com", enriched.From)
	require.Len(t, indexer.docs, 1)
	assert.Equal(t, models.LabelUncategorized, indexer.docs[0].Label)
}

func TestProcessor_IndexWriteFailurePropagates(t *testing.T) {
	processor, _, _, indexer := newTestProcessor()
	indexer.err = errors.New("disk full")

	raw := buildRaw(map[string]string{"Subject": "Hi"}, "body")
	_, err := processor.Process(raw, "acct", "INBOX", ModeLive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIndexWriteFailed))
}

func TestProcessor_MultipleRecipientsJoined(t *testing.T) {
	processor, _, _, indexer := newTestProcessor()

	raw := buildRaw(map[string]string{
		"From":    "Alice <alice@example.com>",
		"To":      "bob@example.com, Carol <carol@example.com>",
		"Subject": "Meeting",
	}, "see you there")

	enriched, err := processor.Process(raw, "acct", "INBOX", ModeLive)
	require.NoError(t, err)

	assert.Equal(t, "Alice <alice@example.com>", enriched.From)
	assert.Equal(t, "bob@example.com, Carol <carol@example.com>", enriched.To)
	require.Len(t, indexer.docs, 1)
	assert.Equal(t, enriched.To, indexer.docs[0].ToAddrs)
}

func TestProcessor_BackfillClassificationTextIncludesSubject(t *testing.T) {
	processor, classifier, _, _ := newTestProcessor()

	raw := buildRaw(map[string]string{"Subject": "Invitation"}, "please join us")

	_, err := processor.Process(raw, "acct", "INBOX", ModeBackfill)
	require.NoError(t, err)
	assert.Equal(t, "Invitation\nplease join us", classifier.text)
}

func TestProcessor_LiveClassificationTextUsesBodyOnly(t *testing.T) {
	processor, classifier, suggester, _ := newTestProcessor()

	raw := buildRaw(map[string]string{"Subject": "Invitation"}, "please join us")

	_, err := processor.Process(raw, "acct", "INBOX", ModeLive)
	require.NoError(t, err)
	assert.Equal(t, "please join us", strings.TrimSpace(classifier.text))
	assert.NotContains(t, classifier.text, "Invitation")
	assert.Equal(t, classifier.text, suggester.text)
}

func TestProcessor_SubjectOnlyMessageFallsBackToSubject(t *testing.T) {
	processor, classifier, _, _ := newTestProcessor()

	raw := buildRaw(map[string]string{"Subject": "Ping"}, "")

	_, err := processor.Process(raw, "acct", "INBOX", ModeLive)
	require.NoError(t, err)
	// Blank body collapses to whitespace; the subject is the enrichment text
	assert.Equal(t, "Ping", strings.TrimSpace(classifier.text))
}

func TestProcessor_SuggestedReplyStored(t *testing.T) {
	processor, _, suggester, indexer := newTestProcessor()
	suggester.reply = "Happy to chat, pick a slot."

	raw := buildRaw(map[string]string{"Subject": "Demo"}, "can we talk")

	enriched, err := processor.Process(raw, "acct", "INBOX", ModeLive)
	require.NoError(t, err)
	assert.Equal(t, "Happy to chat, pick a slot.", enriched.SuggestedReply)
	require.Len(t, indexer.docs, 1)
	assert.Equal(t, enriched.SuggestedReply, indexer.docs[0].SuggestedReply)
}

func TestDeriveDocID(t *testing.T) {
	t.Run("message id wins", func(t *testing.T) {
		assert.Equal(t, "abc@mail", deriveDocID("abc@mail", []byte("source"), "acct"))
	})

	t.Run("content hash when no message id", func(t *testing.T) {
		id := deriveDocID("", []byte("source"), "acct")
		assert.True(t, strings.HasPrefix(id, "sha256:"))
		// Same bytes, same id
		assert.Equal(t, id, deriveDocID("", []byte("source"), "other"))
	})

	t.Run("account timestamp as last resort", func(t *testing.T) {
		id := deriveDocID("", nil, "acct")
		assert.True(t, strings.HasPrefix(id, "acct-"))
	})
}

func TestProperty_DocIDDeterministicForSameSource(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	// Without a message id the doc id depends only on the source bytes
	properties.Property("same_source_same_docid", prop.ForAll(
		func(body string) bool {
			source := []byte("Subject: x\r\n\r\n" + body)
			return deriveDocID("", source, "a") == deriveDocID("", source, "b")
		},
		gen.AnyString().SuchThat(func(s string) bool { return len(s) > 0 }),
	))

	// Distinct sources get distinct hash ids
	properties.Property("distinct_sources_distinct_docids", prop.ForAll(
		func(a, b string) bool {
			if a == b {
				return true
			}
			return deriveDocID("", []byte(a+"!"), "x") != deriveDocID("", []byte(b+"?"), "x")
		},
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
	))

	properties.TestingRun(t)
}
