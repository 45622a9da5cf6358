// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/logging"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/notify"
)

// MsgHistoryUnavailable is shown when the history fetch fails.
const MsgHistoryUnavailable = "Error fetching conversation messages"

// readChunkSize is the read buffer for the reply stream.
const readChunkSize = 4096

var (
	// ErrNoConversation is returned by Open without a conversation id; the
	// caller should navigate back.
	ErrNoConversation = errors.New("no conversation selected")

	// ErrBusy is returned while a reply is streaming.
	ErrBusy = errors.New("a reply is already streaming")

	// ErrNotReady is returned before Open has finished.
	ErrNotReady = errors.New("conversation is not loaded")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("chat session closed")
)

// =============================================================================
// STATE
// =============================================================================

// State is the session's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateStreaming
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// EventKind identifies what an Event reports.
type EventKind int

const (
	// EventState reports a state transition.
	EventState EventKind = iota

	// EventReset reports a change other than an append or in-place update;
	// listeners should redraw the whole transcript.
	EventReset

	// EventMessage reports an appended or updated message.
	EventMessage

	// EventFailed reports a classified stream failure.
	EventFailed
)

// Event is delivered to listeners in the order changes happened.
type Event struct {
	Kind    EventKind
	State   State
	Message model.Message
	Outcome Outcome
}

// Failure is returned by Submit, Replay and Regenerate when the reply could
// not be produced. Outcome holds the user-facing classification.
type Failure struct {
	Outcome Outcome
	Err     error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return f.Outcome.Message
}

// Unwrap returns the underlying error.
func (f *Failure) Unwrap() error {
	return f.Err
}

// =============================================================================
// SESSION
// =============================================================================

// Backend is what the session needs from the API client.
type Backend interface {
	ListConversations(ctx context.Context) (model.BucketSet, error)
	Stream(ctx context.Context, conversationID string, messages []model.WireMessage) (io.ReadCloser, error)
}

// Ender ends the signed-in session when the backend rejects it.
type Ender interface {
	Logout() error
}

// Session is one open conversation. Methods are safe for concurrent use;
// Submit, Replay and Regenerate block until their reply ends.
type Session struct {
	id       string
	backend  Backend
	notifier notify.Notifier
	ender    Ender
	log      *zap.Logger

	mu         sync.Mutex
	state      State
	sending    bool // a reply is connecting or streaming
	transcript *model.Transcript
	stream     streamCanceler

	listenMu  sync.Mutex
	listeners []func(Event)
}

// Option configures a Session.
type Option func(*Session)

// WithNotifier sets where failures are reported.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Session) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithEnder sets what is logged out on authentication failures.
func WithEnder(e Ender) Option {
	return func(s *Session) { s.ender = e }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = logging.OrNop(l).Named("chat") }
}

// New creates an Idle session for conversationID.
func New(conversationID string, backend Backend, opts ...Option) *Session {
	s := &Session{
		id:         conversationID,
		backend:    backend,
		notifier:   notify.Discard,
		log:        zap.NewNop(),
		transcript: model.NewTranscript(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConversationID returns the conversation this session shows.
func (s *Session) ConversationID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns copies of the messages in order.
func (s *Session) Transcript() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Messages()
}

// OnEvent registers a listener. Listeners run on the goroutine that caused
// the change, outside the session lock.
func (s *Session) OnEvent(fn func(Event)) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) emit(ev Event) {
	s.listenMu.Lock()
	fns := append(([]func(Event))(nil), s.listeners...)
	s.listenMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// setState must be called with s.mu held. It returns the event to emit.
func (s *Session) setState(next State) Event {
	s.state = next
	return Event{Kind: EventState, State: next}
}

// =============================================================================
// LOADING
// =============================================================================

// Open loads the conversation history. A missing id returns
// ErrNoConversation and leaves the session Idle. A failed fetch is reported
// and the session still becomes Ready with an empty transcript.
func (s *Session) Open(ctx context.Context) error {
	if s.id == "" {
		return ErrNoConversation
	}

	s.mu.Lock()
	switch {
	case s.state == StateClosed:
		s.mu.Unlock()
		return ErrClosed
	case s.sending, s.state == StateLoading:
		s.mu.Unlock()
		return ErrBusy
	}
	ev := s.setState(StateLoading)
	s.mu.Unlock()
	s.emit(ev)

	msgs, err := s.fetchHistory(ctx)
	if err != nil {
		s.log.Warn("history fetch failed", zap.String("conversation", s.id), zap.Error(err))
		s.notifier.Error(MsgHistoryUnavailable)
		msgs = nil
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.transcript.Reset(msgs)
	ev = s.setState(StateReady)
	s.mu.Unlock()

	s.emit(Event{Kind: EventReset, State: StateReady})
	s.emit(ev)
	return nil
}

// fetchHistory finds the conversation in any bucket of the list endpoint.
// An unlisted conversation has no history yet.
func (s *Session) fetchHistory(ctx context.Context) ([]*model.Message, error) {
	set, err := s.backend.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	conv, _, ok := set.Find(s.id)
	if !ok {
		s.log.Debug("conversation not listed yet", zap.String("conversation", s.id))
		return nil, nil
	}
	out := make([]*model.Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		if m == nil {
			continue
		}
		cp := *m
		cp.Role = model.NormalizeRole(string(m.Role))
		out = append(out, &cp)
	}
	return out, nil
}

// =============================================================================
// STREAMING
// =============================================================================

// turn describes how prepare changed the transcript.
type turn struct {
	reset bool
	user  *model.Message
}

// Submit sends input as a new user turn and streams the reply. Blank input is
// ignored. It returns ErrBusy while another reply streams and a *Failure when
// the reply failed; a stopped reply is not a failure.
func (s *Session) Submit(ctx context.Context, input string) error {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	_, err := s.run(ctx, func(t *model.Transcript) (turn, bool) {
		return turn{user: t.AppendUser(input)}, true
	})
	return err
}

// Replay discards the first user turn whose content equals oldContent
// exactly, along with everything after it, then submits newContent. It
// returns false without doing anything when no turn matches.
func (s *Session) Replay(ctx context.Context, oldContent, newContent string) (bool, error) {
	if strings.TrimSpace(newContent) == "" {
		return false, nil
	}
	return s.run(ctx, func(t *model.Transcript) (turn, bool) {
		if !t.TruncateAtUserContent(oldContent) {
			return turn{}, false
		}
		return turn{reset: true, user: t.AppendUser(newContent)}, true
	})
}

// Regenerate drops the last reply and streams a new answer to the user turn
// before it. It returns false when the transcript does not end in a reply to
// a user turn.
func (s *Session) Regenerate(ctx context.Context) (bool, error) {
	return s.run(ctx, func(t *model.Transcript) (turn, bool) {
		msgs := t.Messages()
		if len(msgs) < 2 || msgs[len(msgs)-2].Role != model.RoleUser || !t.TrimTrailingReply() {
			return turn{}, false
		}
		return turn{reset: true}, true
	})
}

// Stop aborts the in-flight reply, keeping what has arrived. It reports
// whether a reply was streaming.
func (s *Session) Stop() bool {
	return s.stream.fire()
}

// Close stops any reply and moves the session to Closed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	ev := s.setState(StateClosed)
	s.mu.Unlock()

	s.stream.fire()
	s.emit(ev)
}

// run applies prepare to the transcript and, when it reports true, streams a
// reply. prepare runs under the session lock and only from Ready. The session
// moves to Streaming once the backend has accepted the request.
func (s *Session) run(ctx context.Context, prepare func(*model.Transcript) (turn, bool)) (bool, error) {
	s.mu.Lock()
	switch {
	case s.state == StateClosed:
		s.mu.Unlock()
		return false, ErrClosed
	case s.sending:
		s.mu.Unlock()
		return false, ErrBusy
	case s.state != StateReady:
		s.mu.Unlock()
		return false, ErrNotReady
	}
	tn, ok := prepare(s.transcript)
	if !ok {
		s.mu.Unlock()
		return false, nil
	}

	var events []Event
	if tn.reset {
		events = append(events, Event{Kind: EventReset, State: StateReady})
	}
	if tn.user != nil {
		events = append(events, Event{Kind: EventMessage, State: StateReady, Message: *tn.user})
	}
	wire := s.transcript.Wire()
	placeholder := *s.transcript.BeginAssistant()
	s.sending = true

	sctx, cancel := context.WithCancel(ctx)
	s.stream.set(cancel)
	s.mu.Unlock()

	for _, ev := range events {
		s.emit(ev)
	}

	body, err := s.backend.Stream(sctx, s.id, wire)
	opened := err == nil
	if opened {
		err = s.consume(body, placeholder)
	}
	stopped := sctx.Err() != nil
	s.stream.fire()
	cancel()

	return true, s.finish(err, stopped, opened)
}

// consume enters Streaming and copies body into the placeholder.
func (s *Session) consume(body io.ReadCloser, placeholder model.Message) error {
	defer body.Close()

	s.mu.Lock()
	var events []Event
	if s.state == StateReady {
		events = append(events,
			s.setState(StateStreaming),
			Event{Kind: EventMessage, State: StateStreaming, Message: placeholder})
	}
	s.mu.Unlock()
	for _, ev := range events {
		s.emit(ev)
	}

	var acc []byte
	buf := make([]byte, readChunkSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
			s.update(string(completeRunes(acc)))
		}
		if rerr == io.EOF {
			s.update(string(acc))
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// update replaces the placeholder content and notifies listeners.
func (s *Session) update(content string) {
	s.mu.Lock()
	cur := s.transcript.Streaming()
	if cur == nil || cur.Content == content || !s.transcript.UpdateStreaming(content) {
		s.mu.Unlock()
		return
	}
	msg := *s.transcript.Streaming()
	s.mu.Unlock()
	s.emit(Event{Kind: EventMessage, State: StateStreaming, Message: msg})
}

// finish settles the placeholder and returns to Ready. Failures are
// classified, reported once and, for authentication failures, end the
// signed-in session. opened reports whether the placeholder was announced.
func (s *Session) finish(err error, stopped, opened bool) error {
	var failure *Failure
	if err != nil && !stopped {
		failure = &Failure{Outcome: Classify(s.id, err), Err: err}
	}

	s.mu.Lock()
	s.sending = false
	var events []Event
	if !s.transcript.DropEmptyStreaming() {
		if msg := s.transcript.FinalizeStreaming(); msg != nil {
			events = append(events, Event{Kind: EventMessage, State: StateReady, Message: *msg})
		}
	} else if opened {
		events = append(events, Event{Kind: EventReset, State: StateReady})
	}
	if s.state == StateStreaming {
		events = append(events, s.setState(StateReady))
	}
	s.mu.Unlock()

	if failure != nil {
		s.log.Warn("reply failed",
			zap.String("conversation", s.id),
			zap.String("kind", failure.Outcome.Kind.String()),
			zap.Error(err))
		s.notifier.Error(failure.Outcome.Message)
		if failure.Outcome.SignIn() && s.ender != nil {
			if lerr := s.ender.Logout(); lerr != nil {
				s.log.Warn("logout after rejected session", zap.Error(lerr))
			}
		}
		events = append([]Event{{Kind: EventFailed, State: StateReady, Outcome: failure.Outcome}}, events...)
	} else if stopped {
		s.log.Debug("reply stopped", zap.String("conversation", s.id))
	}

	for _, ev := range events {
		s.emit(ev)
	}
	if failure != nil {
		return failure
	}
	return nil
}

// completeRunes trims a trailing partial UTF-8 sequence so a rune split
// across reads is never shown half-decoded.
func completeRunes(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			break
		}
	}
	return b
}
