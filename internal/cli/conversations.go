// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/notify"
	"github.com/jeranaias/parley/internal/session"
	"github.com/jeranaias/parley/internal/ui/styles"
)

// openSignedIn opens the app and checks the session for view.
func openSignedIn(cmd *cobra.Command, opts *rootOptions, view session.View) (*App, error) {
	a, err := openApp(cmd, opts, false)
	if err != nil {
		return nil, err
	}
	if err := a.require(view); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// printBuckets writes the conversation list grouped by age.
func printBuckets(w io.Writer, theme *styles.Theme, set model.BucketSet) {
	if set.Total() == 0 {
		fmt.Fprintln(w, theme.Empty.Render("No conversations yet. Run 'parley ask' to start one."))
		return
	}
	first := true
	for _, b := range model.Buckets {
		convs := set.Get(b)
		if len(convs) == 0 {
			continue
		}
		if !first {
			fmt.Fprintln(w)
		}
		first = false
		fmt.Fprintln(w, theme.BucketHeader.Render(b.Title()))
		for _, c := range convs {
			fmt.Fprintf(w, "  %s  %s\n", theme.Muted.Render(c.ID), c.DisplaySummary())
		}
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSignedIn(cmd, opts, session.ViewChat)
			if err != nil {
				return err
			}
			defer a.Close()

			set, err := a.Dir.List(cmd.Context())
			if err != nil {
				return reported(err)
			}
			printBuckets(a.out, a.Theme, set)
			return nil
		},
	}
}

func newNewCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Create an empty conversation and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSignedIn(cmd, opts, session.ViewChat)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.Dir.Create(cmd.Context())
			if err != nil {
				return reported(err)
			}
			fmt.Fprintln(a.out, id)
			return nil
		},
	}
}

func newRenameCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <summary>",
		Short: "Change a conversation's summary",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSignedIn(cmd, opts, session.ViewChat)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Dir.RenameSummary(cmd.Context(), args[0], strings.Join(args[1:], " ")); err != nil {
				return reported(err)
			}
			fmt.Fprintln(a.out, a.Theme.Status(notify.KindSuccess, "Conversation renamed"))
			return nil
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSignedIn(cmd, opts, session.ViewChat)
			if err != nil {
				return err
			}
			defer a.Close()

			if !yes {
				if err := RequiresTTY("confirm deletion"); err != nil {
					return fmt.Errorf("%w (pass --yes)", err)
				}
				p := newLinePrompter(cmd.InOrStdin(), a.out)
				if !PromptYesNo(p, fmt.Sprintf("Delete conversation %s?", args[0])) {
					fmt.Fprintln(a.out, "Cancelled.")
					return nil
				}
			}
			if _, err := a.Dir.Delete(cmd.Context(), args[0]); err != nil {
				return reported(err)
			}
			fmt.Fprintln(a.out, a.Theme.Status(notify.KindSuccess, "Conversation deleted"))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// copyToClipboard is replaced in tests.
var copyToClipboard = clipboard.WriteAll

func newShareCmd(opts *rootOptions) *cobra.Command {
	var copyLink bool
	cmd := &cobra.Command{
		Use:   "share <id>",
		Short: "Share a conversation and print its link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSignedIn(cmd, opts, session.ViewChat)
			if err != nil {
				return err
			}
			defer a.Close()

			link, err := a.Dir.Share(cmd.Context(), args[0])
			if err != nil {
				return reported(err)
			}
			fmt.Fprintln(a.out, link)
			if copyLink {
				if err := copyToClipboard(link); err != nil {
					a.Center.Warn("Could not copy the link: " + err.Error())
				} else {
					a.Center.Success("Share link copied")
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&copyLink, "copy", "c", false, "copy the link to the clipboard")
	return cmd
}
