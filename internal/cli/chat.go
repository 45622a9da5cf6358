// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/parley/internal/chat"
	"github.com/jeranaias/parley/internal/session"
	"github.com/jeranaias/parley/internal/ui/history"
)

// newLineEditor edits lines with liner when the command reads the terminal
// and reads plain lines otherwise.
func newLineEditor(cmd *cobra.Command, a *App) lineEditor {
	if in, ok := cmd.InOrStdin().(*os.File); ok && in == os.Stdin && IsTTY() {
		return NewChatCLI(a.Config.UI.HistoryFile)
	}
	return newLinePrompter(cmd.InOrStdin(), a.out)
}

// startChat opens conversation id, creating one when id is empty, and runs
// the REPL. initial is submitted as the first question when set.
func startChat(ctx context.Context, a *App, cli lineEditor, id, initial string) error {
	if id == "" {
		created, err := a.Dir.Create(ctx)
		if err != nil {
			return reported(err)
		}
		id = created
	}

	r := newREPL(a, cli)
	if err := r.open(ctx, id); err != nil {
		if errors.Is(err, chat.ErrNoConversation) {
			return errors.New("no conversation selected")
		}
		return err
	}
	return r.run(ctx, initial)
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [conversation-id]",
		Short: "Chat interactively, continuing a conversation or starting a new one",
		Long: `Chat interactively. With no id a new conversation is created.

Replies stream as they arrive; press Ctrl+C to stop one early. Type /help
inside the chat for the available commands.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.require(session.ViewChat); err != nil {
				return err
			}

			var id string
			if len(args) == 1 {
				id = args[0]
			}
			cli := newLineEditor(cmd, a)
			defer cli.Close()
			return startChat(cmd.Context(), a, cli, id, "")
		},
	}
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Start a new conversation with a question",
		Long: `Start a new conversation with a question and keep chatting.

When no one is signed in you are asked to sign in first; the question is
kept and sent once the sign-in succeeds.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return errors.New("question is empty")
			}

			a, err := openApp(cmd, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			cli := newLineEditor(cmd, a)
			defer cli.Close()

			if next, redirect := a.Store.Route(session.ViewChat); redirect && next == session.ViewSignIn {
				fmt.Fprintln(a.out, "Sign in to continue. Your question will be sent afterwards.")
				if err := signIn(cmd.Context(), a, cli, ""); err != nil {
					return err
				}
			}
			return startChat(cmd.Context(), a, cli, "", query)
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Browse, rename, delete and share conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := RequiresTTY("browse history"); err != nil {
				return err
			}
			a, err := openApp(cmd, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.require(session.ViewChat); err != nil {
				return err
			}

			a.quiet(true)
			m := history.New(a.Dir, a.Center, a.Theme, history.WithClipboard(copyToClipboard))
			final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
			a.quiet(false)
			if err != nil {
				return fmt.Errorf("history browser failed: %w", err)
			}

			hm, ok := final.(history.Model)
			if !ok || hm.Chosen() == "" {
				return nil
			}
			cli := newLineEditor(cmd, a)
			defer cli.Close()
			return startChat(cmd.Context(), a, cli, hm.Chosen(), "")
		},
	}
}
