package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/onebox-mail/onebox/internal/database/models"
	"github.com/onebox-mail/onebox/internal/search"
)

// EmailHandler serves search queries over indexed email documents
type EmailHandler struct {
	index  *search.Index
	logger *slog.Logger
}

// NewEmailHandler creates a new EmailHandler instance
func NewEmailHandler(index *search.Index, logger *slog.Logger) *EmailHandler {
	return &EmailHandler{
		index:  index,
		logger: logger.With("component", "email_handler"),
	}
}

// EmailResponse represents an indexed email document
type EmailResponse struct {
	ID             string `json:"id"`
	AccountID      string `json:"accountId"`
	Folder         string `json:"folder"`
	From           string `json:"from"`
	To             string `json:"to"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	Date           int64  `json:"date"`
	Label          string `json:"label"`
	SuggestedReply string `json:"suggestedReply,omitempty"`
}

func toEmailResponse(doc *models.EmailDocument) EmailResponse {
	return EmailResponse{
		ID:             doc.DocID,
		AccountID:      doc.AccountID,
		Folder:         doc.Folder,
		From:           doc.FromAddr,
		To:             doc.ToAddrs,
		Subject:        doc.Subject,
		Body:           doc.Body,
		Date:           doc.Date.Unix(),
		Label:          doc.Label,
		SuggestedReply: doc.SuggestedReply,
	}
}

// SearchEmails searches indexed emails with optional keyword and filters
// GET /emails?q=&folder=&accountId=
func (h *EmailHandler) SearchEmails(c *gin.Context) {
	q := search.Query{
		Keywords:  c.Query("q"),
		Folder:    c.Query("folder"),
		AccountID: c.Query("accountId"),
	}

	docs, err := h.index.Search(q)
	if err != nil {
		h.logger.Error("email search failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to fetch emails"})
		return
	}

	response := make([]EmailResponse, 0, len(docs))
	for i := range docs {
		response = append(response, toEmailResponse(&docs[i]))
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "total": len(response), "emails": response})
}

// CountEmails returns how many documents are indexed for an account
// GET /emails/count?accountId=
func (h *EmailHandler) CountEmails(c *gin.Context) {
	accountID := c.Query("accountId")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "accountId query parameter is required"})
		return
	}

	count, err := h.index.CountByAccount(accountID)
	if err != nil {
		h.logger.Error("email count failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to count emails"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}
