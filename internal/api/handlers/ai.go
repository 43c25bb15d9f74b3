package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/onebox-mail/onebox/internal/functions/ai"
)

// AIHandler serves reply suggestion and knowledge base management requests
type AIHandler struct {
	knowledge *ai.KnowledgeBase
	chat      *ai.Client
	logger    *slog.Logger
}

// NewAIHandler creates a new AIHandler instance
func NewAIHandler(knowledge *ai.KnowledgeBase, chat *ai.Client, logger *slog.Logger) *AIHandler {
	return &AIHandler{
		knowledge: knowledge,
		chat:      chat,
		logger:    logger.With("component", "ai_handler"),
	}
}

// SuggestReply returns a suggested reply for the given email text
// GET /ai/suggest?text=
func (h *AIHandler) SuggestReply(c *gin.Context) {
	text := c.Query("text")
	if text == "" {
		text = c.Query("q")
	}
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "text query parameter is required"})
		return
	}

	reply := h.knowledge.SuggestReply(text)
	c.JSON(http.StatusOK, gin.H{"success": true, "reply": reply})
}

// TrainRequest carries reply examples for the knowledge base
type TrainRequest struct {
	Texts []string `json:"texts" binding:"required"`
}

// Train stores new training examples in the knowledge base
// POST /ai/train
func (h *AIHandler) Train(c *gin.Context) {
	var req TrainRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Texts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "texts array is required"})
		return
	}

	stored, err := h.knowledge.StoreTrainingData(req.Texts)
	if err != nil {
		h.logger.Error("failed to store training data", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to store training data"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stored": stored})
}

// Initialize seeds the knowledge base with the built-in sample replies
// POST /ai/initialize
func (h *AIHandler) Initialize(c *gin.Context) {
	stored, err := h.knowledge.InitializeTrainingData()
	if err != nil {
		h.logger.Error("failed to initialize training data", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to initialize training data"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stored": stored})
}

// ReplySuggestRequest carries the email context for a direct reply suggestion
type ReplySuggestRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body" binding:"required"`
}

// DirectReply produces a reply suggestion without knowledge base retrieval
// POST /reply/suggest
func (h *AIHandler) DirectReply(c *gin.Context) {
	var req ReplySuggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "body is required"})
		return
	}

	text := req.Body
	if req.Subject != "" {
		text = req.Subject + "\n" + req.Body
	}

	reply, err := h.chat.Chat([]ai.ChatMessage{
		{Role: "system", Content: "You are a professional email assistant. Write a polite, concise reply to the email below."},
		{Role: "user", Content: text},
	}, 0.7, 200)
	if err != nil {
		h.logger.Warn("direct reply generation failed", "error", err)
		reply = ai.FallbackReply
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "reply": reply})
}
