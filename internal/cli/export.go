// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/parley/internal/export"
	"github.com/jeranaias/parley/internal/notify"
	"github.com/jeranaias/parley/internal/session"
)

type exportOptions struct {
	format       string
	output       string
	dir          string
	open         bool
	noMetadata   bool
	noTimestamps bool
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	eo := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export <conversation-id>",
		Short: "Export a conversation to JSON, Markdown or YAML",
		Long: `Export a conversation to a file.

Without --output the file is named after the conversation summary and the
current time, e.g. conversation_Trip_plans_20250314_092653.md. Use
--output - to write to stdout.`,
		Example: `  parley export 65f1c2 --format markdown
  parley export 65f1c2 -f json -o chat.json
  parley export 65f1c2 -f yaml -o -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSignedIn(cmd, opts, session.ViewChat)
			if err != nil {
				return err
			}
			defer a.Close()
			return runExport(cmd, a, args[0], eo)
		},
	}
	cmd.Flags().StringVarP(&eo.format, "format", "f", "markdown",
		"output format ("+strings.Join(export.Formats, ", ")+")")
	cmd.Flags().StringVarP(&eo.output, "output", "o", "", "output file, or - for stdout")
	cmd.Flags().StringVarP(&eo.dir, "dir", "d", ".", "directory for generated file names")
	cmd.Flags().BoolVar(&eo.open, "open", false, "open the file after exporting")
	cmd.Flags().BoolVar(&eo.noMetadata, "no-metadata", false, "omit front matter and the information section")
	cmd.Flags().BoolVar(&eo.noTimestamps, "no-timestamps", false, "omit per-message times")
	return cmd
}

func runExport(cmd *cobra.Command, a *App, id string, eo *exportOptions) error {
	xo := &export.Options{
		OutputDir:         eo.dir,
		OpenAfterExport:   eo.open,
		IncludeMetadata:   !eo.noMetadata,
		IncludeTimestamps: !eo.noTimestamps,
		Now:               time.Now,
	}
	exporter, err := export.ForFormat(eo.format, xo)
	if err != nil {
		return err
	}

	if _, err := a.Dir.List(cmd.Context()); err != nil {
		return reported(err)
	}
	conv, _, ok := a.Dir.Find(id)
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}

	switch eo.output {
	case "":
		path, err := export.ToFile(&conv, exporter, xo)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, a.Theme.Status(notify.KindSuccess, "Exported to "+path))
		return nil
	case "-":
		content, err := exporter.Export(&conv)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(content)
		return err
	default:
		content, err := exporter.Export(&conv)
		if err != nil {
			return err
		}
		if err := export.ToPath(content, eo.output); err != nil {
			return err
		}
		fmt.Fprintln(a.out, a.Theme.Status(notify.KindSuccess, "Exported to "+eo.output))
		return nil
	}
}
