package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/onebox-mail/onebox/internal/services"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// accountCmd represents the account command group
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage mailbox accounts",
	Long:  `List, register, enable and disable the mailbox accounts the service synchronizes.`,
}

// accountListCmd lists all registered accounts
var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered mailbox accounts",
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

		fmt.Printf("%-5s %-35s %-30s %-8s\n", "ID", "EMAIL", "IMAP", "ACTIVE")
		for _, a := range accounts {
			fmt.Printf("%-5d %-35s %-30s %-8t\n",
				a.ID, a.Email, fmt.Sprintf("%s:%d", a.IMAPHost, a.IMAPPort), a.IsActive)
		}
	},
}

// accountAddCmd interactively registers a new mailbox account
var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new mailbox account",
	Long:  `Interactively register a mailbox account. The password is read without echo and stored encrypted.`,
	Run: func(cmd *cobra.Command, args []string) {
		reader := bufio.NewReader(os.Stdin)

		email := promptLine(reader, "Email address: ")
		if email == "" {
			fmt.Fprintln(os.Stderr, "error: email must not be empty")
			os.Exit(1)
		}

		imapHost := promptLine(reader, "IMAP host: ")
		if imapHost == "" {
			fmt.Fprintln(os.Stderr, "error: IMAP host must not be empty")
			os.Exit(1)
		}

		imapPort := 0
		if portStr := promptLine(reader, "IMAP port (default 993): "); portStr != "" {
			p, err := strconv.Atoi(portStr)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error: IMAP port must be a number")
				os.Exit(1)
			}
			imapPort = p
		}

		fmt.Print("Password: ")
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nerror: failed to read password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println()
		if len(passwordBytes) == 0 {
			fmt.Fprintln(os.Stderr, "error: password must not be empty")
			os.Exit(1)
		}

		name := promptLine(reader, "Display name (optional): ")

		account, err := accountService.Create(services.CreateAccountInput{
			Email:    email,
			Name:     name,
			IMAPHost: imapHost,
			IMAPPort: imapPort,
			Password: string(passwordBytes),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: failed to create account: %v\n", err)
			os.Exit(1)
		}

		fmt.Println()
		fmt.Println("Account registered.")
		fmt.Printf("  ID:    %d\n", account.ID)
		fmt.Printf("  Email: %s\n", account.Email)
		fmt.Printf("  IMAP:  %s:%d\n", account.IMAPHost, account.IMAPPort)
	},
}

// accountEnableCmd activates an account
var accountEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Activate a mailbox account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setAccountActive(args[0], true)
	},
}

// accountDisableCmd deactivates an account
var accountDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Deactivate a mailbox account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setAccountActive(args[0], false)
	},
}

func setAccountActive(idArg string, active bool) {
	id, err := strconv.ParseUint(idArg, 10, 32)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: account id must be a number")
		os.Exit(1)
	}

	account, err := accountService.SetActive(uint(id), active)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to update account: %v\n", err)
		os.Exit(1)
	}

	state := "disabled"
	if account.IsActive {
		state = "enabled"
	}
	fmt.Printf("Account %s %s.\n", account.Email, state)
}

func promptLine(reader *bufio.Reader, prompt string) string {
	fmt.Print(prompt)
	line, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to read input: %v\n", err)
		os.Exit(1)
	}
	return strings.TrimSpace(line)
}

func init() {
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountEnableCmd)
	accountCmd.AddCommand(accountDisableCmd)
}
