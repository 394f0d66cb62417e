package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ipamtools/bamsync/internal/bam"
	"github.com/ipamtools/bamsync/internal/config"
	"github.com/ipamtools/bamsync/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the server and store the session token",
	Long: `Login exchanges a username and password for an API token and stores it in
the global config file. The password is prompted without echo; set
BAMSYNC_PASSWORD for non-interactive use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server := config.GetString("server")
		if server == "" {
			return errors.New("no server configured: set --server, BAMSYNC_SERVER, or server in the config file")
		}
		username, _ := cmd.Flags().GetString("username")
		if username == "" {
			username = config.GetString("username")
		}
		if username == "" {
			return errors.New("no username: pass --username or set username in the config file")
		}

		password, err := readPassword()
		if err != nil {
			return err
		}

		token, err := bam.Login(rootCtx, server, username, password)
		if err != nil {
			return err
		}
		path, err := config.SetValue("token", token)
		if err != nil {
			return fmt.Errorf("login succeeded but storing the token failed: %w", err)
		}
		ui.Successf("logged in to %s as %s (token stored in %s)", server, username, path)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringP("username", "u", "", "Username (default from config)")
	rootCmd.AddCommand(loginCmd)
}

// readPassword takes the password from BAMSYNC_PASSWORD or a no-echo prompt.
func readPassword() (string, error) {
	if pw := os.Getenv("BAMSYNC_PASSWORD"); pw != "" {
		return pw, nil
	}
	if !ui.IsTTY(os.Stdin) {
		return "", errors.New("stdin is not a terminal; set BAMSYNC_PASSWORD for non-interactive login")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimSpace(string(raw))
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}
