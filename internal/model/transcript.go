// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Transcript is the ordered message list of the open conversation. At most one
// message, always the last, is streaming.
type Transcript struct {
	messages []*Message
}

// NewTranscript returns a transcript holding msgs.
func NewTranscript(msgs ...*Message) *Transcript {
	t := &Transcript{}
	t.Reset(msgs)
	return t
}

// Reset replaces the whole transcript.
func (t *Transcript) Reset(msgs []*Message) {
	t.messages = make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		if m != nil {
			t.messages = append(t.messages, m)
		}
	}
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Messages returns copies of the messages in order.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = *m
	}
	return out
}

// Last returns the final message, or nil when empty.
func (t *Transcript) Last() *Message {
	if len(t.messages) == 0 {
		return nil
	}
	return t.messages[len(t.messages)-1]
}

// AppendUser adds a user turn.
func (t *Transcript) AppendUser(content string) *Message {
	msg := NewMessage(RoleUser, content)
	t.messages = append(t.messages, msg)
	return msg
}

// BeginAssistant adds the streaming placeholder for the next reply. If one is
// already open it is returned instead of adding a second.
func (t *Transcript) BeginAssistant() *Message {
	if s := t.Streaming(); s != nil {
		return s
	}
	msg := NewMessage(RoleAssistant, "")
	msg.streaming = true
	t.messages = append(t.messages, msg)
	return msg
}

// Streaming returns the in-progress assistant message, or nil.
func (t *Transcript) Streaming() *Message {
	if last := t.Last(); last != nil && last.streaming {
		return last
	}
	return nil
}

// UpdateStreaming replaces the content of the in-progress message in place.
func (t *Transcript) UpdateStreaming(content string) bool {
	if s := t.Streaming(); s != nil {
		return s.SetContent(content)
	}
	return false
}

// FinalizeStreaming freezes the in-progress message and returns it.
func (t *Transcript) FinalizeStreaming() *Message {
	s := t.Streaming()
	if s != nil {
		s.Finalize()
	}
	return s
}

// DropEmptyStreaming removes the in-progress message when nothing arrived.
func (t *Transcript) DropEmptyStreaming() bool {
	s := t.Streaming()
	if s == nil || s.Content != "" {
		return false
	}
	t.messages = t.messages[:len(t.messages)-1]
	return true
}

// TrimTrailingReply removes the last message when it is a finished assistant
// reply, so the preceding user turn can be answered again.
func (t *Transcript) TrimTrailingReply() bool {
	last := t.Last()
	if last == nil || last.Role != RoleAssistant || last.streaming {
		return false
	}
	t.messages[len(t.messages)-1] = nil
	t.messages = t.messages[:len(t.messages)-1]
	return true
}

// TruncateAtUserContent keeps only the messages before the first user message
// whose content equals content exactly. It reports false, leaving the
// transcript unchanged, when there is no such message. Identical user turns
// always resolve to the earliest one.
func (t *Transcript) TruncateAtUserContent(content string) bool {
	for i, m := range t.messages {
		if m.Role == RoleUser && m.Content == content {
			for j := i; j < len(t.messages); j++ {
				t.messages[j] = nil
			}
			t.messages = t.messages[:i]
			return true
		}
	}
	return false
}

// Wire returns the transcript as completion request context, skipping the
// in-progress placeholder.
func (t *Transcript) Wire() []WireMessage {
	out := make([]WireMessage, 0, len(t.messages))
	for _, m := range t.messages {
		if m.streaming {
			continue
		}
		out = append(out, m.Wire())
	}
	return out
}
