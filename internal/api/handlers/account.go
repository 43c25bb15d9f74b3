package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/onebox-mail/onebox/internal/database/models"
	"github.com/onebox-mail/onebox/internal/services"
)

// AccountHandler handles mailbox account registry requests
type AccountHandler struct {
	accountService *services.AccountService
	supervisor     *services.Supervisor
	logger         *slog.Logger
}

// NewAccountHandler creates a new AccountHandler instance
func NewAccountHandler(accountService *services.AccountService, supervisor *services.Supervisor, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		supervisor:     supervisor,
		logger:         logger.With("component", "account_handler"),
	}
}

// CreateAccountRequest represents the request to register a mailbox account
type CreateAccountRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	IMAPHost string `json:"imapHost" binding:"required"`
	IMAPPort int    `json:"imapPort"`
	SMTPHost string `json:"smtpHost"`
	SMTPPort int    `json:"smtpPort"`
	Name     string `json:"name"`
}

// UpdateAccountRequest represents the request to update a mailbox account
type UpdateAccountRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	IMAPHost string `json:"imapHost"`
	IMAPPort int    `json:"imapPort"`
	SMTPHost string `json:"smtpHost"`
	SMTPPort int    `json:"smtpPort"`
	Name     string `json:"name"`
	IsActive *bool  `json:"isActive"`
}

// AccountResponse represents an account with credentials redacted
type AccountResponse struct {
	ID        uint   `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	IMAPHost  string `json:"imapHost"`
	IMAPPort  int    `json:"imapPort"`
	SMTPHost  string `json:"smtpHost"`
	SMTPPort  int    `json:"smtpPort"`
	IsActive  bool   `json:"isActive"`
	CreatedAt int64  `json:"createdAt"`
}

// toAccountResponse converts an Account model to AccountResponse
func toAccountResponse(account *models.Account) AccountResponse {
	return AccountResponse{
		ID:        account.ID,
		Email:     account.Email,
		Name:      account.Name,
		IMAPHost:  account.IMAPHost,
		IMAPPort:  account.IMAPPort,
		SMTPHost:  account.SMTPHost,
		SMTPPort:  account.SMTPPort,
		IsActive:  account.IsActive,
		CreatedAt: account.CreatedAt.Unix(),
	}
}

// parseAccountID extracts the :id path parameter
func parseAccountID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid account id"})
		return 0, false
	}
	return uint(id), true
}

// ListAccounts returns all accounts, passwords redacted
// GET /accounts
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.accountService.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	response := make([]AccountResponse, 0, len(accounts))
	for i := range accounts {
		response = append(response, toAccountResponse(&accounts[i]))
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "accounts": response})
}

// GetAccount returns a single account by ID
// GET /accounts/:id
func (h *AccountHandler) GetAccount(c *gin.Context) {
	id, ok := parseAccountID(c)
	if !ok {
		return
	}

	account, err := h.accountService.GetByID(id)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "account": toAccountResponse(account)})
}

// CreateAccount registers a new mailbox account and starts its pipeline
// POST /accounts
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Email, password, and IMAP host are required"})
		return
	}

	account, err := h.accountService.Create(services.CreateAccountInput{
		Email:    req.Email,
		Name:     req.Name,
		IMAPHost: req.IMAPHost,
		IMAPPort: req.IMAPPort,
		SMTPHost: req.SMTPHost,
		SMTPPort: req.SMTPPort,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, services.ErrAccountAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": "Account with this email already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	// Start the pipeline for the new account without blocking the request
	go func() {
		if err := h.supervisor.StartOne(context.Background(), account.ID); err != nil {
			h.logger.Error("failed to start pipeline for new account", "email", account.Email, "error", err)
		}
	}()

	c.JSON(http.StatusCreated, gin.H{"success": true, "account": toAccountResponse(account)})
}

// UpdateAccount updates a mailbox account
// PUT /accounts/:id
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	id, ok := parseAccountID(c)
	if !ok {
		return
	}

	var req UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	account, err := h.accountService.Update(id, services.UpdateAccountInput{
		Email:    req.Email,
		Name:     req.Name,
		IMAPHost: req.IMAPHost,
		IMAPPort: req.IMAPPort,
		SMTPHost: req.SMTPHost,
		SMTPPort: req.SMTPPort,
		Password: req.Password,
		IsActive: req.IsActive,
	})
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	if req.IsActive != nil && !*req.IsActive {
		h.supervisor.StopOne(account.ID)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "account": toAccountResponse(account)})
}

// DeleteAccount removes a mailbox account
// DELETE /accounts/:id
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	id, ok := parseAccountID(c)
	if !ok {
		return
	}

	h.supervisor.StopOne(id)

	if err := h.accountService.Delete(id); err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Account deleted successfully"})
}

// ToggleAccount flips an account's active flag
// PATCH /accounts/:id/toggle
func (h *AccountHandler) ToggleAccount(c *gin.Context) {
	id, ok := parseAccountID(c)
	if !ok {
		return
	}

	account, err := h.accountService.ToggleActive(id)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	if account.IsActive {
		// Reactivation restarts the pipeline in the background
		go func() {
			if err := h.supervisor.StartOne(context.Background(), account.ID); err != nil {
				h.logger.Error("failed to restart pipeline", "email", account.Email, "error", err)
			}
		}()
	} else {
		h.supervisor.StopOne(account.ID)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "account": toAccountResponse(account)})
}

// TestConnectionRequest represents a direct connection probe request
type TestConnectionRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	IMAPHost string `json:"imapHost" binding:"required"`
	IMAPPort int    `json:"imapPort"`
}

// TestConnection probes an IMAP server without persisting anything
// POST /accounts/test
func (h *AccountHandler) TestConnection(c *gin.Context) {
	var req TestConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "email, password and imapHost are required"})
		return
	}

	port := req.IMAPPort
	if port == 0 {
		port = 993
	}

	result := services.TestIMAPConnection(req.IMAPHost, port, req.Email, req.Password)
	c.JSON(http.StatusOK, gin.H{"success": result.Success, "message": result.Message})
}
