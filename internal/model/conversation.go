// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"math"
	"time"

	"github.com/jeranaias/parley/internal/util"
)

// MaxSummaryWidth is how many columns of a summary the history view shows.
const MaxSummaryWidth = 30

// =============================================================================
// CONVERSATION
// =============================================================================

// Conversation is a backend conversation with its full history.
type Conversation struct {
	ID        string     `json:"id" yaml:"id"`
	Summary   string     `json:"summary" yaml:"summary"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated_at"`
	Messages  []*Message `json:"messages" yaml:"messages"`
}

// DisplaySummary returns the summary cut to MaxSummaryWidth columns, falling
// back to the first message when the summary is empty.
func (c *Conversation) DisplaySummary() string {
	s := c.Summary
	if s == "" && len(c.Messages) > 0 {
		s = c.Messages[0].Content
	}
	if s == "" {
		s = "New chat"
	}
	return util.TruncateDisplay(util.FirstLine(s), MaxSummaryWidth)
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	msgs := make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		cp := *m
		msgs[i] = &cp
	}
	c.Messages = msgs
	return c
}

// =============================================================================
// RECENCY BUCKETS
// =============================================================================

// Bucket names a recency partition. Values match the backend's keys.
type Bucket string

const (
	BucketToday      Bucket = "today"
	BucketYesterday  Bucket = "yesterday"
	BucketLast7Days  Bucket = "last7Days"
	BucketBeforeThat Bucket = "beforeThat"
)

// Buckets lists the partitions newest first.
var Buckets = []Bucket{BucketToday, BucketYesterday, BucketLast7Days, BucketBeforeThat}

// Title returns the heading shown above a bucket.
func (b Bucket) Title() string {
	switch b {
	case BucketToday:
		return "Today"
	case BucketYesterday:
		return "Yesterday"
	case BucketLast7Days:
		return "Previous 7 days"
	default:
		return "Older"
	}
}

// BucketFor applies the backend's partition rule: whole days between t and
// now of 0, 1, fewer than 7, or more. Timestamps in the future count as today.
func BucketFor(now, t time.Time) Bucket {
	days := int(math.Floor(now.Sub(t).Hours() / 24))
	switch {
	case days <= 0:
		return BucketToday
	case days == 1:
		return BucketYesterday
	case days < 7:
		return BucketLast7Days
	default:
		return BucketBeforeThat
	}
}

// BucketSet partitions conversations by recency. A conversation appears in
// exactly one bucket.
type BucketSet struct {
	Today      []Conversation `json:"today" yaml:"today"`
	Yesterday  []Conversation `json:"yesterday" yaml:"yesterday"`
	Last7Days  []Conversation `json:"last7Days" yaml:"last7Days"`
	BeforeThat []Conversation `json:"beforeThat" yaml:"beforeThat"`
}

// Get returns the conversations of bucket b.
func (s *BucketSet) Get(b Bucket) []Conversation {
	switch b {
	case BucketToday:
		return s.Today
	case BucketYesterday:
		return s.Yesterday
	case BucketLast7Days:
		return s.Last7Days
	case BucketBeforeThat:
		return s.BeforeThat
	}
	return nil
}

// Add appends c to bucket b.
func (s *BucketSet) Add(b Bucket, c Conversation) {
	switch b {
	case BucketToday:
		s.Today = append(s.Today, c)
	case BucketYesterday:
		s.Yesterday = append(s.Yesterday, c)
	case BucketLast7Days:
		s.Last7Days = append(s.Last7Days, c)
	default:
		s.BeforeThat = append(s.BeforeThat, c)
	}
}

// All returns every conversation, newest bucket first.
func (s *BucketSet) All() []Conversation {
	out := make([]Conversation, 0, s.Total())
	for _, b := range Buckets {
		out = append(out, s.Get(b)...)
	}
	return out
}

// Total returns the number of conversations across all buckets.
func (s *BucketSet) Total() int {
	return len(s.Today) + len(s.Yesterday) + len(s.Last7Days) + len(s.BeforeThat)
}

// Find looks id up in every bucket.
func (s *BucketSet) Find(id string) (Conversation, Bucket, bool) {
	for _, b := range Buckets {
		for _, c := range s.Get(b) {
			if c.ID == id {
				return c, b, true
			}
		}
	}
	return Conversation{}, "", false
}

// Contains reports whether id is in any bucket.
func (s *BucketSet) Contains(id string) bool {
	_, _, ok := s.Find(id)
	return ok
}

// Clone returns a deep copy so callers can hold it without locking.
func (s BucketSet) Clone() BucketSet {
	var out BucketSet
	for _, b := range Buckets {
		for _, c := range s.Get(b) {
			out.Add(b, c.Clone())
		}
	}
	return out
}
