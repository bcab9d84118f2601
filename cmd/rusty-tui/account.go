package main

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cli/go-gh/v2/pkg/jsonpretty"
	"github.com/cli/go-gh/v2/pkg/term"
	"github.com/spf13/cobra"

	"github.com/rusty-ci/rusty-tui/internal/config"
)

var errNotLoggedIn = errors.New("no token configured: run rusty-tui login or set RUSTY_TOKEN")

func newLoginCmd(configPath *string) *cobra.Command {
	var (
		username   string
		printToken bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the token to the config file",
		Long: `Log in with a username and password and save the returned token to the
config file. The password is prompted for on a terminal, otherwise it is
read from the first line of stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" {
				return errors.New("--username is required")
			}
			rt, err := setup(cmd, *configPath, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			password, err := newSecretReader(cmd).read("Password")
			if err != nil {
				return err
			}
			tok, err := rt.client.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			if printToken {
				fmt.Fprintln(cmd.OutOrStdout(), string(tok))
				return nil
			}
			path, err := config.SaveToken(*configPath, string(tok))
			if err != nil {
				return err
			}
			rt.log.Info().Str("user", username).Str("config", path).Msg("logged in")
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s, token saved to %s\n", username, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account name")
	cmd.Flags().BoolVar(&printToken, "print", false, "print the token instead of saving it")
	return cmd
}

func newAccountCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Show the account of the configured token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd, *configPath, true)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.cred == "" {
				return errNotLoggedIn
			}

			u, err := rt.client.CurrentUser(cmd.Context(), rt.cred)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Username  %s\n", u.Username)
			fmt.Fprintf(w, "Email     %s\n", u.Email)
			fmt.Fprintf(w, "ID        %s\n", u.ID)
			if prefs := bytes.TrimSpace(u.Preferences); len(prefs) > 0 && !bytes.Equal(prefs, []byte("null")) {
				fmt.Fprintln(w, "Preferences")
				return jsonpretty.Format(w, bytes.NewReader(prefs), "  ", term.FromEnv().IsColorEnabled())
			}
			return nil
		},
	}
	cmd.AddCommand(newPasswdCmd(configPath))
	return cmd
}

// newPasswdCmd changes the password of the configured account. The server
// may invalidate the old token, so it logs in again with the new password
// and saves the fresh token.
func newPasswdCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the account password",
		Long: `Change the password of the account the configured token belongs to.
On a terminal the current and new passwords are prompted for; otherwise they
are read from the first two lines of stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd, *configPath, true)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.cred == "" {
				return errNotLoggedIn
			}

			ctx := cmd.Context()
			u, err := rt.client.CurrentUser(ctx, rt.cred)
			if err != nil {
				return err
			}

			secrets := newSecretReader(cmd)
			oldPassword, err := secrets.read("Current password")
			if err != nil {
				return err
			}
			newPassword, err := secrets.read("New password")
			if err != nil {
				return err
			}
			if newPassword == "" {
				return errors.New("new password must not be empty")
			}
			if secrets.interactive() {
				again, err := secrets.read("Repeat new password")
				if err != nil {
					return err
				}
				if again != newPassword {
					return errors.New("passwords do not match")
				}
			}

			if err := rt.client.ChangePassword(ctx, rt.cred, u.Username, oldPassword, newPassword); err != nil {
				return err
			}
			tok, err := rt.client.Login(ctx, u.Username, newPassword)
			if err != nil {
				return fmt.Errorf("password changed, but logging in again failed: %w", err)
			}
			path, err := config.SaveToken(*configPath, string(tok))
			if err != nil {
				return err
			}
			rt.log.Info().Str("user", u.Username).Msg("password changed")
			fmt.Fprintf(cmd.OutOrStdout(), "password changed for %s, token saved to %s\n", u.Username, path)
			return nil
		},
	}
}
