// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

const (
	// DefaultTerminalWidth is the fallback width when detection fails.
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the narrowest width used for wrapping.
	MinTerminalWidth = 40
)

// TerminalWidth returns the width of stdout, or DefaultTerminalWidth.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	return width
}

// TTYRequiredError is returned when an operation needs a terminal.
type TTYRequiredError struct {
	Operation string
}

func (e *TTYRequiredError) Error() string {
	return "stdin is not a terminal; cannot " + e.Operation + " interactively"
}

// RequiresTTY returns an error if stdin is not a terminal.
func RequiresTTY(operation string) error {
	if !IsTTY() {
		return &TTYRequiredError{Operation: operation}
	}
	return nil
}

// =============================================================================
// PROMPTS
// =============================================================================

// prompter reads answers from the user.
type prompter interface {
	Prompt(label string) (string, error)
	PasswordPrompt(label string) (string, error)
}

// linePrompter reads whole lines from in. Passwords are read without echo
// when in is a terminal.
type linePrompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

func newLinePrompter(in io.Reader, out io.Writer) *linePrompter {
	p := &linePrompter{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd, p.tty = int(f.Fd()), true
	}
	return p
}

func (p *linePrompter) Prompt(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *linePrompter) PasswordPrompt(label string) (string, error) {
	if !p.tty {
		return p.Prompt(label)
	}
	fmt.Fprint(p.out, label)
	pw, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// ReadInput reads one line of chat input.
func (p *linePrompter) ReadInput(prompt string) (string, error) {
	return p.Prompt(prompt)
}

// EditPrompt shows text and reads its replacement. A blank answer keeps text.
func (p *linePrompter) EditPrompt(label, text string) (string, error) {
	fmt.Fprintln(p.out, text)
	answer, err := p.Prompt(label)
	if err != nil || strings.TrimSpace(answer) == "" {
		return text, err
	}
	return answer, nil
}

// Close implements lineEditor.
func (p *linePrompter) Close() {}

// PromptYesNo asks a yes/no question. Anything but y or yes is a no.
func PromptYesNo(p prompter, question string) bool {
	answer, err := p.Prompt(question + " [y/N]: ")
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
