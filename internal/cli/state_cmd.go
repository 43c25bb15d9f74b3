package cli

import (
	"fmt"
	"os"

	"github.com/onebox-mail/onebox/internal/database/models"
	"github.com/onebox-mail/onebox/internal/services"
	"github.com/spf13/cobra"
)

// stateCmd represents the state command group
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect sync state",
	Long:  `Show per-account synchronization progress: initial sync status, last sync time and folder cursors.`,
}

// stateShowCmd prints the sync state of every account
var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show per-account sync state",
	Run: func(cmd *cobra.Command, args []string) {
		accounts, err := accountService.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: failed to list accounts: %v\n", err)
			os.Exit(1)
		}

		if len(accounts) == 0 {
			fmt.Println("No accounts registered.")
			return
		}

		var states []models.SyncState
		if err := db.Find(&states).Error; err != nil {
			fmt.Fprintf(os.Stderr, "error: failed to load sync states: %v\n", err)
			os.Exit(1)
		}
		byAccount := make(map[uint]*models.SyncState, len(states))
		for i := range states {
			byAccount[states[i].AccountID] = &states[i]
		}

		for _, a := range accounts {
			fmt.Printf("%s (id %d)\n", a.Email, a.ID)

			state, ok := byAccount[a.ID]
			if !ok {
				fmt.Println("  no sync state yet")
				continue
			}

			fmt.Printf("  initial sync done: %t\n", state.InitialSyncDone)
			if state.LastSyncedAt.IsZero() {
				fmt.Println("  last synced:       never")
			} else {
				fmt.Printf("  last synced:       %s\n", state.LastSyncedAt.Format("2006-01-02 15:04:05"))
			}

			cursors := services.FolderCursors(state)
			if len(cursors) == 0 {
				fmt.Println("  folders:           none")
				continue
			}
			fmt.Println("  folders:")
			for folder, cursor := range cursors {
				fmt.Printf("    %-25s uid %-8d synced %s\n",
					folder, cursor.LastSeenUID, cursor.LastSyncedAt.Format("2006-01-02 15:04:05"))
			}
		}
	},
}

func init() {
	stateCmd.AddCommand(stateShowCmd)
}
