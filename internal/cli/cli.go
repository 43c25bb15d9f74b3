package cli

import (
	"os"

	"github.com/onebox-mail/onebox/internal/config"
	"github.com/onebox-mail/onebox/internal/services"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	db             *gorm.DB
	cfg            *config.Config
	accountService *services.AccountService
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "onebox",
	Short: "Onebox multi-account email sync and enrichment service",
	Long: `Onebox synchronizes multiple IMAP mailboxes, classifies incoming email
and indexes it for search.

This command line tool manages the account registry and inspects sync state:
  onebox account list         # list registered mailbox accounts
  onebox account add          # interactively register a mailbox account
  onebox account enable <id>  # activate an account
  onebox account disable <id> # deactivate an account
  onebox state show           # show per-account sync state`,
}

// Execute runs the CLI with the provided database and config
func Execute(database *gorm.DB, config *config.Config) {
	db = database
	cfg = config
	accountService = services.NewAccountService(db, cfg.GetEncryptionKey())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(stateCmd)
}
