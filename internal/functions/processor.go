package functions

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/onebox-mail/onebox/internal/database/models"
	"github.com/onebox-mail/onebox/internal/parser"
)

var (
	// ErrParseFailed indicates the raw message could not be parsed
	ErrParseFailed = errors.New("message parse failed")
	// ErrIndexWriteFailed indicates the enriched document could not be indexed
	ErrIndexWriteFailed = errors.New("index write failed")
)

// Classifier assigns a category label to an email text
type Classifier interface {
	Categorize(text string) (string, error)
}

// ReplySuggester produces a suggested reply for an email text. It never
// fails: implementations degrade to a generic reply internally.
type ReplySuggester interface {
	SuggestReply(text string) string
}

// DocumentIndexer writes enriched documents to the search index
type DocumentIndexer interface {
	IndexDocument(doc *models.EmailDocument) (string, error)
}

// RawMessage is one message as delivered by a mailbox session. Source holds
// the full RFC 822 bytes; an empty Source marks a transient event with nothing
// to process.
type RawMessage struct {
	UID    uint32
	Source []byte
}

// Mode selects which ingestion path a message arrived through
type Mode int

const (
	// ModeBackfill marks messages streamed by the historical folder scan
	ModeBackfill Mode = iota
	// ModeLive marks messages delivered by the real-time watcher
	ModeLive
)

// Enriched is the processor's output: the canonical fields of one message
// plus its AI-derived category and suggested reply.
type Enriched struct {
	DocID          string
	From           string
	To             string
	Subject        string
	Body           string
	Date           time.Time
	Label          string
	SuggestedReply string
}

// Processor turns raw messages into enriched, indexed documents. It holds no
// state of its own; parse failures are fatal per message, enrichment failures
// degrade to fallback values so a flaky AI call never drops a message.
type Processor struct {
	classifier Classifier
	suggester  ReplySuggester
	index      DocumentIndexer
	logger     *slog.Logger
}

// NewProcessor creates a new Processor instance
func NewProcessor(classifier Classifier, suggester ReplySuggester, index DocumentIndexer, logger *slog.Logger) *Processor {
	return &Processor{
		classifier: classifier,
		suggester:  suggester,
		index:      index,
		logger:     logger.With("component", "processor"),
	}
}

// parsedMessage holds the structured fields extracted from raw source bytes
type parsedMessage struct {
	MessageID string
	From      string
	To        string
	Subject   string
	BodyText  string
	BodyHTML  string
	Date      time.Time
}

// Process parses, classifies and indexes one raw message. A message without
// source bytes is silently skipped (nil, nil). Parse and index-write errors
// are returned to the caller; enrichment errors are absorbed via fallbacks.
func (p *Processor) Process(raw RawMessage, accountID, folder string, mode Mode) (*Enriched, error) {
	if len(raw.Source) == 0 {
		return nil, nil
	}

	parsed, err := parseMessage(raw.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	label := p.classify(classificationText(parsed, mode))
	reply := p.suggester.SuggestReply(enrichmentText(parsed))

	date := parsed.Date
	if date.IsZero() {
		date = time.Now()
	}

	enriched := &Enriched{
		DocID:          deriveDocID(parsed.MessageID, raw.Source, accountID),
		From:           parsed.From,
		To:             parsed.To,
		Subject:        parsed.Subject,
		Body:           parsed.BodyText,
		Date:           date,
		Label:          label,
		SuggestedReply: reply,
	}

	doc := &models.EmailDocument{
		DocID:          enriched.DocID,
		AccountID:      accountID,
		Folder:         folder,
		FromAddr:       enriched.From,
		ToAddrs:        enriched.To,
		Subject:        enriched.Subject,
		Body:           enriched.Body,
		Date:           enriched.Date,
		Label:          enriched.Label,
		SuggestedReply: enriched.SuggestedReply,
	}

	if _, err := p.index.IndexDocument(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexWriteFailed, err)
	}

	return enriched, nil
}

// classify calls the classification collaborator, falling back to
// Uncategorized so a failed AI call never fails the message
func (p *Processor) classify(text string) string {
	label, err := p.classifier.Categorize(text)
	if err != nil {
		p.logger.Warn("classification failed, using fallback", "error", err)
		return models.LabelUncategorized
	}
	return label
}

// classificationText picks the text handed to the classifier. The backfill
// path prepends the subject; the live path uses the plain fallback chain.
func classificationText(m *parsedMessage, mode Mode) string {
	if mode == ModeBackfill {
		return strings.TrimSpace(m.Subject + "\n" + m.BodyText)
	}
	return enrichmentText(m)
}

// enrichmentText falls back from plain body to HTML-derived text to subject.
// A whitespace-only body counts as absent.
func enrichmentText(m *parsedMessage) string {
	if strings.TrimSpace(m.BodyText) != "" {
		return m.BodyText
	}
	if m.BodyHTML != "" {
		if text := parser.HTMLToText(m.BodyHTML); strings.TrimSpace(text) != "" {
			return text
		}
	}
	if m.Subject != "" {
		return m.Subject
	}
	return "No content"
}

// parseMessage parses raw RFC 822 bytes into structured fields
func parseMessage(source []byte) (*parsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(source))
	if err != nil {
		return nil, err
	}

	parsed := &parsedMessage{}
	parsed.Subject, _ = mr.Header.Subject()
	parsed.Date, _ = mr.Header.Date()
	parsed.MessageID, _ = mr.Header.MessageID()
	parsed.From = addressText(mr.Header, "From")
	parsed.To = addressText(mr.Header, "To")

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		mediaType, _, _ := header.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(mediaType, "text/plain") && parsed.BodyText == "":
			parsed.BodyText = string(body)
		case strings.HasPrefix(mediaType, "text/html") && parsed.BodyHTML == "":
			parsed.BodyHTML = string(body)
		}
	}

	return parsed, nil
}

// addressText renders an address header as display text, joining multiple
// addresses with ", ". Absent or unparseable headers yield an empty string.
func addressText(header mail.Header, key string) string {
	addrs, err := header.AddressList(key)
	if err != nil || len(addrs) == 0 {
		return ""
	}

	parts := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr.Name != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", addr.Name, addr.Address))
		} else {
			parts = append(parts, addr.Address)
		}
	}
	return strings.Join(parts, ", ")
}

// deriveDocID derives the index idempotency key: the protocol message
// identifier when present, else a content hash of the raw source, else an
// account-scoped timestamp as last resort.
func deriveDocID(messageID string, source []byte, accountID string) string {
	if messageID != "" {
		return messageID
	}
	if len(source) > 0 {
		sum := sha256.Sum256(source)
		return "sha256:" + hex.EncodeToString(sum[:])
	}
	return fmt.Sprintf("%s-%d", accountID, time.Now().UnixNano())
}
