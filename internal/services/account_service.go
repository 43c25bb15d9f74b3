package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"github.com/onebox-mail/onebox/internal/database/models"
	"gorm.io/gorm"
)

var (
	// ErrAccountNotFound indicates the account was not found
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountAlreadyExists indicates an account with this email already exists
	ErrAccountAlreadyExists = errors.New("account with this email already exists")
	// ErrInvalidAccountData indicates invalid account data
	ErrInvalidAccountData = errors.New("invalid account data")
	// ErrEncryptionFailed indicates password encryption failed
	ErrEncryptionFailed = errors.New("password encryption failed")
	// ErrDecryptionFailed indicates password decryption failed
	ErrDecryptionFailed = errors.New("password decryption failed")
)

// AccountService is the account registry: mailbox credentials and the active
// flag. The pipeline only reads it.
type AccountService struct {
	db            *gorm.DB
	encryptionKey []byte // 32 bytes for AES-256
}

// NewAccountService creates a new AccountService instance
func NewAccountService(db *gorm.DB, encryptionKey []byte) *AccountService {
	key := make([]byte, 32)
	copy(key, encryptionKey)
	return &AccountService{
		db:            db,
		encryptionKey: key,
	}
}

// encryptPassword encrypts a password using AES-256-GCM
func (s *AccountService) encryptPassword(password string) (string, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", ErrEncryptionFailed
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrEncryptionFailed
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ErrEncryptionFailed
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(password), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decryptPassword decrypts a password using AES-256-GCM
func (s *AccountService) decryptPassword(encryptedPassword string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedPassword)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrDecryptionFailed
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// CreateAccountInput represents the input for creating an account
type CreateAccountInput struct {
	Email    string
	Name     string
	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
	Password string
}

// Create creates a new mailbox account, active by default
func (s *AccountService) Create(input CreateAccountInput) (*models.Account, error) {
	if input.Email == "" || input.IMAPHost == "" || input.Password == "" {
		return nil, ErrInvalidAccountData
	}

	var existing models.Account
	if err := s.db.Where("email = ?", input.Email).First(&existing).Error; err == nil {
		return nil, ErrAccountAlreadyExists
	}

	encryptedPassword, err := s.encryptPassword(input.Password)
	if err != nil {
		return nil, err
	}

	port := input.IMAPPort
	if port == 0 {
		port = 993
	}
	smtpPort := input.SMTPPort
	if smtpPort == 0 {
		smtpPort = 587
	}

	account := &models.Account{
		Email:             input.Email,
		Name:              input.Name,
		IMAPHost:          input.IMAPHost,
		IMAPPort:          port,
		SMTPHost:          input.SMTPHost,
		SMTPPort:          smtpPort,
		PasswordEncrypted: encryptedPassword,
		IsActive:          true,
	}

	if err := s.db.Create(account).Error; err != nil {
		return nil, err
	}

	return account, nil
}

// GetByID retrieves an account by ID
func (s *AccountService) GetByID(id uint) (*models.Account, error) {
	var account models.Account
	if err := s.db.First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// List retrieves all accounts
func (s *AccountService) List() ([]models.Account, error) {
	var accounts []models.Account
	if err := s.db.Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListActive retrieves all accounts flagged active
func (s *AccountService) ListActive() ([]models.Account, error) {
	var accounts []models.Account
	if err := s.db.Where("is_active = ?", true).Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// UpdateAccountInput represents the input for updating an account. Password
// is only updated when non-empty.
type UpdateAccountInput struct {
	Email    string
	Name     string
	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
	Password string
	IsActive *bool
}

// Update updates an account's fields
func (s *AccountService) Update(id uint, input UpdateAccountInput) (*models.Account, error) {
	account, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	if input.Email != "" {
		account.Email = input.Email
	}
	if input.Name != "" {
		account.Name = input.Name
	}
	if input.IMAPHost != "" {
		account.IMAPHost = input.IMAPHost
	}
	if input.IMAPPort != 0 {
		account.IMAPPort = input.IMAPPort
	}
	if input.SMTPHost != "" {
		account.SMTPHost = input.SMTPHost
	}
	if input.SMTPPort != 0 {
		account.SMTPPort = input.SMTPPort
	}
	if input.Password != "" {
		encrypted, err := s.encryptPassword(input.Password)
		if err != nil {
			return nil, err
		}
		account.PasswordEncrypted = encrypted
	}
	if input.IsActive != nil {
		account.IsActive = *input.IsActive
	}

	if err := s.db.Save(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

// Delete removes an account
func (s *AccountService) Delete(id uint) error {
	result := s.db.Delete(&models.Account{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ToggleActive flips an account's active flag and returns the updated account
func (s *AccountService) ToggleActive(id uint) (*models.Account, error) {
	account, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	account.IsActive = !account.IsActive
	if err := s.db.Save(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

// SetActive sets an account's active flag
func (s *AccountService) SetActive(id uint, active bool) (*models.Account, error) {
	account, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	account.IsActive = active
	if err := s.db.Save(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

// GetDecryptedPassword returns the account's decrypted mailbox password
func (s *AccountService) GetDecryptedPassword(account *models.Account) (string, error) {
	return s.decryptPassword(account.PasswordEncrypted)
}
