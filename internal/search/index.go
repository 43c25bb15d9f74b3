package search

import (
	"errors"
	"log/slog"
	"time"

	"github.com/onebox-mail/onebox/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxResults caps how many documents a search returns
const maxResults = 50

// ErrMissingDocID indicates a document without an identifier was submitted
var ErrMissingDocID = errors.New("document has no identifier")

// Index is the search index the enrichment pipeline writes into. Documents are
// keyed by DocID: indexing the same identifier twice overwrites rather than
// duplicates.
type Index struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewIndex creates a new Index instance
func NewIndex(db *gorm.DB, logger *slog.Logger) *Index {
	return &Index{
		db:     db,
		logger: logger.With("component", "search_index"),
	}
}

// Query describes a keyword search with optional filters
type Query struct {
	Keywords  string
	Folder    string
	AccountID string
}

// IndexDocument writes one enriched document, overwriting any existing
// document with the same DocID. Returns the document identifier.
func (i *Index) IndexDocument(doc *models.EmailDocument) (string, error) {
	if doc.DocID == "" {
		return "", ErrMissingDocID
	}
	if doc.Date.IsZero() {
		doc.Date = time.Now()
	}

	err := i.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"account_id", "folder", "from_addr", "to_addrs",
			"subject", "body", "date", "label", "suggested_reply",
		}),
	}).Create(doc).Error
	if err != nil {
		return "", err
	}

	return doc.DocID, nil
}

// Search returns up to 50 documents matching the query, newest first
func (i *Index) Search(q Query) ([]models.EmailDocument, error) {
	tx := i.db.Model(&models.EmailDocument{})

	if q.Keywords != "" {
		pattern := "%" + q.Keywords + "%"
		tx = tx.Where(
			"subject LIKE ? OR body LIKE ? OR from_addr LIKE ? OR to_addrs LIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}
	if q.Folder != "" {
		tx = tx.Where("folder = ?", q.Folder)
	}
	if q.AccountID != "" {
		tx = tx.Where("account_id = ?", q.AccountID)
	}

	var docs []models.EmailDocument
	if err := tx.Order("date DESC").Limit(maxResults).Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// CountByAccount returns how many documents are indexed for an account
func (i *Index) CountByAccount(accountID string) (int64, error) {
	var count int64
	err := i.db.Model(&models.EmailDocument{}).Where("account_id = ?", accountID).Count(&count).Error
	return count, err
}
