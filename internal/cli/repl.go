// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/chat"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/notify"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
	tty         bool
}

// NewChatCLI creates a line editor whose history is kept in historyFile.
func NewChatCLI(historyFile string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line, historyFile: historyFile, tty: IsTTY() && IsStdoutTTY()}
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line and adds non-empty input to the history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Prompt reads a line without recording it.
func (c *ChatCLI) Prompt(label string) (string, error) {
	return c.line.Prompt(label)
}

// PasswordPrompt reads a line without echo on a terminal.
func (c *ChatCLI) PasswordPrompt(label string) (string, error) {
	if !c.tty {
		return c.line.Prompt(label)
	}
	return c.line.PasswordPrompt(label)
}

// EditPrompt reads a line pre-filled with text.
func (c *ChatCLI) EditPrompt(label, text string) (string, error) {
	return c.line.PromptWithSuggestion(label, text, -1)
}

// SaveHistory writes the history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// lineEditor reads chat input. ChatCLI serves terminals; a linePrompter
// serves piped input.
type lineEditor interface {
	prompter
	ReadInput(prompt string) (string, error)
	EditPrompt(label, text string) (string, error)
	Close()
}

// =============================================================================
// REPL
// =============================================================================

// repl drives one chat session from the terminal. /new swaps the session.
type repl struct {
	app     *App
	cli     lineEditor
	render  func(string) string
	printer *replyPrinter
	sess    atomic.Pointer[chat.Session]
}

func newREPL(a *App, cli lineEditor) *repl {
	render := markdownRenderer(a.Config.UI, IsStdoutTTY())
	return &repl{
		app:     a,
		cli:     cli,
		render:  render,
		printer: newReplyPrinter(a.out, a.Theme, render),
	}
}

// open loads conversation id and makes it current.
func (r *repl) open(ctx context.Context, id string) error {
	s := chat.New(id, r.app.API,
		chat.WithNotifier(r.app.Center),
		chat.WithEnder(r.app.Store),
		chat.WithLogger(r.app.Log))
	s.OnEvent(r.printer.handle)
	if err := s.Open(ctx); err != nil {
		return err
	}
	if old := r.sess.Swap(s); old != nil {
		old.Close()
	}
	r.app.Dir.SetOpen(id)

	fmt.Fprintln(r.app.out, r.app.Theme.Title.Render("Conversation "+id))
	if msgs := s.Transcript(); len(msgs) > 0 {
		printTranscript(r.app.out, r.app.Theme, msgs, r.render)
	}
	return nil
}

// run reads input until the user quits. initial is submitted first when set.
func (r *repl) run(ctx context.Context, initial string) error {
	defer func() {
		if s := r.sess.Load(); s != nil {
			s.Close()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigCh)
		close(done)
	}()
	go r.stopOnSignal(sigCh, done)

	fmt.Fprintln(r.app.out, r.app.Theme.Help.Render("Type /help for commands, Ctrl+C stops a reply, Ctrl+D exits."))
	if strings.TrimSpace(initial) != "" {
		fmt.Fprintln(r.app.out, r.app.Theme.RoleLabel(model.RoleUser))
		fmt.Fprintln(r.app.out, initial)
		if err := r.send(ctx, func(ctx context.Context, s *chat.Session) error {
			return s.Submit(ctx, initial)
		}); err != nil {
			return err
		}
	}

	for {
		input, err := r.cli.ReadInput(r.app.Theme.Prompt.Render("parley> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or a closed stdin.
			fmt.Fprintln(r.app.out)
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := r.command(ctx, input)
			if err != nil {
				if errors.Is(err, errReported) {
					return err
				}
				fmt.Fprintln(r.app.errOut, r.app.Theme.Status(notify.KindError, err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		if err := r.send(ctx, func(ctx context.Context, s *chat.Session) error {
			return s.Submit(ctx, input)
		}); err != nil {
			return err
		}
	}
}

// stopOnSignal stops the streaming reply on each signal until done closes.
func (r *repl) stopOnSignal(sig <-chan os.Signal, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-sig:
			if s := r.sess.Load(); s != nil && s.Stop() {
				fmt.Fprintln(r.app.errOut, "\n"+r.app.Theme.Status(notify.KindWarning, "Stopped"))
			}
		}
	}
}

// send runs one streaming operation with notifications held back, so a
// failure toast does not land in the middle of the reply. Failures that end
// the conversation are returned; others are printed.
func (r *repl) send(ctx context.Context, op func(context.Context, *chat.Session) error) error {
	s := r.sess.Load()
	r.app.quiet(true)
	err := op(ctx, s)
	r.app.quiet(false)
	if err == nil {
		return nil
	}

	var failure *chat.Failure
	if !errors.As(err, &failure) {
		fmt.Fprintln(r.app.errOut, r.app.Theme.Status(notify.KindError, err.Error()))
		return nil
	}
	fmt.Fprintln(r.app.errOut, r.app.Theme.Status(notify.KindError, failure.Outcome.Message))
	switch failure.Outcome.Kind {
	case chat.KindAuth:
		r.app.Log.Info("session ended by the backend", zap.String("conversation", s.ConversationID()))
		return reported(ErrNotSignedIn)
	case chat.KindNotFound:
		r.app.Dir.SetOpen("")
		return reported(failure)
	}
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

const replHelp = `Commands:
  /edit [n]          Rewrite question n (default: the last) and ask again
  /regenerate, /r    Ask for a new answer to the last question
  /new               Start a new conversation
  /history           Show the conversation so far
  /share             Print a share link
  /stop              How to stop a reply
  /quit, /q          Exit chat`

// command runs a slash command and reports whether the REPL should exit.
func (r *repl) command(ctx context.Context, input string) (bool, error) {
	fields := strings.Fields(input)
	name, args := strings.ToLower(fields[0]), fields[1:]
	s := r.sess.Load()

	switch name {
	case "/quit", "/q", "/exit":
		return true, nil

	case "/help", "/h", "/?":
		fmt.Fprintln(r.app.out, replHelp)

	case "/stop":
		fmt.Fprintln(r.app.out, "Nothing is streaming. Press Ctrl+C while a reply arrives to stop it.")

	case "/history":
		printTranscript(r.app.out, r.app.Theme, s.Transcript(), r.render)

	case "/edit":
		return false, r.edit(ctx, s, args)

	case "/regenerate", "/r":
		var ok bool
		err := r.send(ctx, func(ctx context.Context, s *chat.Session) error {
			var err error
			ok, err = s.Regenerate(ctx)
			return err
		})
		if err != nil {
			return false, err
		}
		if !ok {
			fmt.Fprintln(r.app.out, "Nothing to regenerate.")
		}

	case "/new":
		id, err := r.app.Dir.Create(ctx)
		if err != nil {
			return false, nil
		}
		return false, r.open(ctx, id)

	case "/share":
		link, err := r.app.Dir.Share(ctx, s.ConversationID())
		if err != nil {
			return false, nil
		}
		fmt.Fprintln(r.app.out, r.app.Theme.LinkStyle.Render(link))

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

// edit lets the user rewrite an earlier question and replays from there.
func (r *repl) edit(ctx context.Context, s *chat.Session, args []string) error {
	var questions []string
	for _, m := range s.Transcript() {
		if m.Role == model.RoleUser {
			questions = append(questions, m.Content)
		}
	}
	if len(questions) == 0 {
		fmt.Fprintln(r.app.out, "Nothing to edit.")
		return nil
	}

	n := len(questions)
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 || v > len(questions) {
			return fmt.Errorf("question number must be between 1 and %d", len(questions))
		}
		n = v
	}
	old := questions[n-1]

	edited, err := r.cli.EditPrompt(r.app.Theme.Prompt.Render("edit> "), old)
	if err != nil || strings.TrimSpace(edited) == "" || edited == old {
		fmt.Fprintln(r.app.out, "Unchanged.")
		return nil
	}

	var ok bool
	if err := r.send(ctx, func(ctx context.Context, s *chat.Session) error {
		var err error
		ok, err = s.Replay(ctx, old, edited)
		return err
	}); err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(r.app.out, "That question is no longer in the conversation.")
	}
	return nil
}
