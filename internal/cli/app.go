// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/auth"
	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/directory"
	"github.com/jeranaias/parley/internal/logging"
	"github.com/jeranaias/parley/internal/notify"
	"github.com/jeranaias/parley/internal/session"
	"github.com/jeranaias/parley/internal/ui/styles"
)

// ErrNotSignedIn is returned by commands that need a session.
var ErrNotSignedIn = errors.New("not signed in; run 'parley login' first")

// App holds the services a command works with.
type App struct {
	Config *config.Config
	Log    *zap.Logger
	Theme  *styles.Theme
	Center *notify.Center

	Store    *session.Store
	Guard    *auth.Guard
	API      *api.Client
	Accounts *auth.Accounts
	Dir      *directory.Directory

	out     io.Writer
	errOut  io.Writer
	toasts  atomic.Bool
	watcher *session.Watcher
	cancel  context.CancelFunc
}

// loadApp reads the configuration and builds the logger. Commands that talk
// to the backend call connect afterwards.
func loadApp(cmd *cobra.Command, opts *rootOptions, interactive bool) (*App, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	logFile := cfg.Log.File
	if logFile == "" && interactive {
		if dir, derr := config.Dir(); derr == nil {
			logFile = filepath.Join(dir, "parley.log")
		}
	}
	log, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		File:    logFile,
		Verbose: opts.verbose,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		Log:    log,
		Theme:  styles.NewTheme(cfg.UI.NoColor || !IsStdoutTTY()),
		Center: notify.NewCenter(),
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}
	a.toasts.Store(true)
	a.Center.Subscribe(func(n notify.Notification) {
		if a.toasts.Load() {
			fmt.Fprintln(a.errOut, a.Theme.Status(n.Kind, n.Message))
		}
	})
	return a, nil
}

// openApp is loadApp followed by connect. Interactive commands also follow
// session changes made by other processes.
func openApp(cmd *cobra.Command, opts *rootOptions, interactive bool) (*App, error) {
	a, err := loadApp(cmd, opts, interactive)
	if err != nil {
		return nil, err
	}
	if err := a.connect(cmd.Context(), interactive); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// connect opens the session jar and builds the API clients. With watch set,
// sign-ins and sign-outs made by other parley processes are followed.
func (a *App) connect(ctx context.Context, watch bool) error {
	cfg := a.Config
	jar, err := session.OpenJar(cfg.Session.Backend, cfg.Session.Path, cfg.Session.Passphrase)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	a.Store = session.NewStore(jar,
		session.WithTTL(cfg.Session.TTL.Duration),
		session.WithLogger(a.Log))
	if _, err := a.Store.Restore(); err != nil {
		a.Log.Warn("failed to restore session", zap.Error(err))
	}

	a.Guard = auth.NewGuard(a.Store, cfg.API.BaseURL,
		auth.WithSkew(cfg.Session.RefreshSkew.Duration),
		auth.WithLogger(a.Log))
	authed := a.Guard.Client(cfg.API.Timeout.Duration)
	a.API = api.NewClient(cfg.API.BaseURL, authed).
		WithListPath(cfg.API.ListPath).
		WithLogger(a.Log)
	a.Accounts = auth.NewAccounts(cfg.API.BaseURL, a.Store, authed).
		WithPlainTransport(a.Guard.Base()).
		WithLogger(a.Log)
	a.Dir = directory.New(a.API, a.Center, cfg.API.Origin, directory.WithLogger(a.Log))

	if watch && cfg.Session.Watch {
		w, err := session.NewWatcher(a.Store, 0)
		if err != nil {
			a.Log.Warn("session watcher disabled", zap.Error(err))
			return nil
		}
		wctx, cancel := context.WithCancel(ctx)
		a.watcher, a.cancel = w, cancel
		go w.Run(wctx)
	}
	return nil
}

// require returns ErrNotSignedIn when the route policy sends view to sign-in.
func (a *App) require(view session.View) error {
	if next, redirect := a.Store.Route(view); redirect && next == session.ViewSignIn {
		return ErrNotSignedIn
	}
	return nil
}

// quiet stops notifications from being printed, for full-screen programs.
func (a *App) quiet(on bool) {
	a.toasts.Store(!on)
}

// Close releases the watcher, the jar and the logger.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.Store != nil {
		if err := a.Store.Jar().Close(); err != nil {
			a.Log.Warn("failed to close session jar", zap.Error(err))
		}
	}
	_ = a.Log.Sync()
}
