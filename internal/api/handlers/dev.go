package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/onebox-mail/onebox/internal/database/models"
	"github.com/onebox-mail/onebox/internal/functions"
	"github.com/onebox-mail/onebox/internal/search"
)

// DevHandler serves development-only endpoints
type DevHandler struct {
	classifier functions.Classifier
	index      *search.Index
	logger     *slog.Logger
}

// NewDevHandler creates a new DevHandler instance
func NewDevHandler(classifier functions.Classifier, index *search.Index, logger *slog.Logger) *DevHandler {
	return &DevHandler{
		classifier: classifier,
		index:      index,
		logger:     logger.With("component", "dev_handler"),
	}
}

// MockEmailRequest represents a synthetic email to classify and index
type MockEmailRequest struct {
	AccountID string `json:"accountId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Text      string `json:"text" binding:"required"`
}

// MockEmail classifies and indexes a synthetic email for pipeline testing
// POST /dev/mock-email
func (h *DevHandler) MockEmail(c *gin.Context) {
	var req MockEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "text is required"})
		return
	}

	if req.AccountID == "" {
		req.AccountID = "mock-account"
	}

	label, err := h.classifier.Categorize(strings.TrimSpace(req.Subject + "\n" + req.Text))
	if err != nil {
		h.logger.Warn("mock email classification failed", "error", err)
		label = models.LabelUncategorized
	}

	now := time.Now()
	doc := &models.EmailDocument{
		DocID:     fmt.Sprintf("%s-%d", req.AccountID, now.UnixNano()),
		AccountID: req.AccountID,
		Folder:    "INBOX",
		FromAddr:  req.From,
		ToAddrs:   req.To,
		Subject:   req.Subject,
		Body:      req.Text,
		Date:      now,
		Label:     label,
	}

	docID, err := h.index.IndexDocument(doc)
	if err != nil {
		h.logger.Error("failed to index mock email", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to index mock email"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "id": docID, "label": label})
}
