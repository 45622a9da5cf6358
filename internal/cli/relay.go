// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/relay"
)

// shutdownTimeout bounds how long in-flight uploads may finish.
const shutdownTimeout = 30 * time.Second

func newUploadCmd(opts *rootOptions) *cobra.Command {
	var relayURL string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file through the relay and print its download link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if relayURL == "" {
				relayURL = a.Config.Relay.URL
			}
			if relayURL == "" {
				return fmt.Errorf("no relay configured; set relay.url or pass --relay")
			}

			resp, err := relay.NewClient(relayURL, nil, a.Log).Upload(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "File ID:  %s\n", resp.FileID)
			fmt.Fprintf(a.out, "Name:     %s\n", resp.FileName)
			fmt.Fprintf(a.out, "Download: %s\n", a.Theme.LinkStyle.Render(resp.DownloadURL))
			return nil
		},
	}
	cmd.Flags().StringVar(&relayURL, "relay", "", "relay base URL (default from config)")
	return cmd
}

func newRelayCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "File relay server",
	}

	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Accept uploads and forward them to Appwrite storage",
		Long: `Run the upload relay.

POST /api/insert-file takes a multipart "file" field, stores it in the
configured Appwrite bucket and answers {fileId, downloadUrl, fileName}.
GET /health reports status and counters.

Appwrite settings come from the [relay.appwrite] config section or the
APPWRITE_ENDPOINT, APPWRITE_PROJECT_ID, APPWRITE_API_KEY and
APPWRITE_BUCKET_ID variables, which may also be set in a .env file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.Config
			if err := cfg.RelayReady(); err != nil {
				return fmt.Errorf("relay is not configured: %w", err)
			}
			if addr != "" {
				cfg.Relay.Addr = addr
			}

			storage, err := relay.NewAppwriteStorage(cfg.Relay.Appwrite, relay.WithAppwriteLogger(a.Log))
			if err != nil {
				return err
			}
			srv := relay.NewServer(storage, relay.Options{
				Addr:           cfg.Relay.Addr,
				UploadDir:      cfg.Relay.UploadDir,
				MaxUploadBytes: int64(cfg.Relay.MaxUploadMB) << 20,
				RatePerMinute:  cfg.Relay.RatePerMinute,
				Burst:          cfg.Relay.Burst,
				AllowedOrigins: cfg.Relay.AllowedOrigins,
			}, a.Log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			fmt.Fprintf(a.out, "Relay listening on %s\n", srv.Addr())

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				a.Log.Warn("relay shutdown", zap.Error(err))
				return err
			}
			select {
			case err := <-errCh:
				return err
			case <-sctx.Done():
				return nil
			}
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.AddCommand(serve)
	return cmd
}
