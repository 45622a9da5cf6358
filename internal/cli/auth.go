// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/parley/internal/auth"
	"github.com/jeranaias/parley/internal/notify"
	"github.com/jeranaias/parley/internal/session"
)

// alreadySignedIn is printed when the route policy turns a sign-in or
// sign-up away.
func alreadySignedIn(a *App, view session.View) bool {
	next, redirect := a.Store.Route(view)
	if !redirect || next != session.ViewHome {
		return false
	}
	fmt.Fprintf(a.out, "Already signed in as %s. Run 'parley logout' to switch accounts.\n",
		a.Store.Current().Username)
	return true
}

// signIn prompts for any missing credentials and stores the session.
func signIn(ctx context.Context, a *App, p prompter, username string) error {
	var err error
	if username == "" {
		if username, err = p.Prompt("Username: "); err != nil {
			return err
		}
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("username is required")
	}
	password, err := p.PasswordPrompt("Password: ")
	if err != nil {
		return err
	}

	sess, err := a.Accounts.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("sign in failed: %w", err)
	}
	fmt.Fprintln(a.out, a.Theme.Status(notify.KindSuccess, "Signed in as "+sess.Username))
	return nil
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the chat service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if alreadySignedIn(a, session.ViewSignIn) {
				return nil
			}
			return signIn(cmd.Context(), a, newLinePrompter(cmd.InOrStdin(), a.out), username)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	return cmd
}

func newSignupCmd(opts *rootOptions) *cobra.Command {
	var form auth.SignupRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if alreadySignedIn(a, session.ViewSignUp) {
				return nil
			}

			p := newLinePrompter(cmd.InOrStdin(), a.out)
			if form.Username == "" {
				if form.Username, err = p.Prompt("Username: "); err != nil {
					return err
				}
			}
			if form.Email == "" {
				if form.Email, err = p.Prompt("Email: "); err != nil {
					return err
				}
			}
			if form.Password, err = p.PasswordPrompt("Password: "); err != nil {
				return err
			}
			if form.Confirm, err = p.PasswordPrompt("Confirm password: "); err != nil {
				return err
			}
			form.Username = strings.TrimSpace(form.Username)
			form.Email = strings.TrimSpace(form.Email)

			if err := a.Accounts.Signup(cmd.Context(), form); err != nil {
				var verr auth.ValidationErrors
				if errors.As(err, &verr) {
					for _, problem := range verr {
						fmt.Fprintln(a.errOut, a.Theme.Status(notify.KindError, problem))
					}
					return reported(err)
				}
				return fmt.Errorf("sign up failed: %w", err)
			}
			fmt.Fprintln(a.out, a.Theme.Status(notify.KindSuccess,
				"Account created. Verify your email, then run 'parley login'."))
			return nil
		},
	}
	cmd.Flags().StringVarP(&form.Username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&form.Email, "email", "e", "", "email address")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Accounts.Logout(cmd.Context()); err != nil {
				return fmt.Errorf("sign out failed: %w", err)
			}
			fmt.Fprintln(a.out, "Signed out.")
			return nil
		},
	}
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.require(session.ViewProfile); err != nil {
				return err
			}

			p, err := a.Accounts.Me(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load profile: %w", err)
			}
			fmt.Fprintln(a.out, a.Theme.Title.Render(p.DisplayName()))
			fmt.Fprintf(a.out, "  Username: %s\n", p.Username)
			fmt.Fprintf(a.out, "  Email:    %s\n", p.Email)
			return nil
		},
	}
}
