// Staysync - Property Management Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/staysync

package models

import (
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ThreadPayload is the stored payload of a message thread: the conversation
// object as returned by the remote API plus its messages, oldest first.
type ThreadPayload struct {
	Conversation json.RawMessage   `json:"conversation"`
	Messages     []json.RawMessage `json:"messages"`
}

// messageTimeFields are consulted in order for a message's send time.
var messageTimeFields = []string{"sentChannelDate", "date", "insertedOn", "updatedOn"}

var messageTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseRemoteTime parses the timestamp formats used by the remote API.
// Values without a zone are taken as UTC.
func ParseRemoteTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range messageTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// MessageTime returns the send time of a raw message.
func MessageTime(msg json.RawMessage) (time.Time, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg, &fields); err != nil {
		return time.Time{}, false
	}
	for _, f := range messageTimeFields {
		s, ok := ScalarString(fields[f])
		if !ok {
			continue
		}
		if t, ok := ParseRemoteTime(s); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// SortMessages orders messages oldest first. Messages without a usable time
// sort after timed ones and keep their relative order.
func SortMessages(msgs []json.RawMessage) {
	type keyed struct {
		t  time.Time
		ok bool
	}
	keys := make(map[int]keyed, len(msgs))
	idx := make([]int, len(msgs))
	for i, m := range msgs {
		t, ok := MessageTime(m)
		keys[i] = keyed{t, ok}
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka.ok != kb.ok {
			return ka.ok
		}
		return ka.t.Before(kb.t)
	})
	sorted := make([]json.RawMessage, len(msgs))
	for i, j := range idx {
		sorted[i] = msgs[j]
	}
	copy(msgs, sorted)
}

// MergeMessage inserts msg into the thread, replacing an existing message
// with the same id, and re-sorts. It reports whether the thread changed.
func (p *ThreadPayload) MergeMessage(msg json.RawMessage) bool {
	id, hasID := FieldString(msg, "id")
	if hasID {
		for i, existing := range p.Messages {
			if eid, ok := FieldString(existing, "id"); ok && eid == id {
				if string(existing) == string(msg) {
					return false
				}
				p.Messages[i] = msg
				SortMessages(p.Messages)
				return true
			}
		}
	}
	p.Messages = append(p.Messages, msg)
	SortMessages(p.Messages)
	return true
}

// ThreadMessage is the normalized form of one message.
type ThreadMessage struct {
	SentAt         time.Time `json:"sent_at"`
	Sender         string    `json:"sender"` // "them" for guest messages, "us" otherwise
	Body           string    `json:"body"`
	ConversationID string    `json:"conversation_id,omitempty"`
	ListingID      string    `json:"listing_id,omitempty"`
}

// ThreadView is the normalized read model of a stored thread.
type ThreadView struct {
	ThreadID      string          `json:"thread_id"`
	TenantID      int64           `json:"account_id"`
	ReservationID string          `json:"reservation_id,omitempty"`
	Messages      []ThreadMessage `json:"messages"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NormalizeThread renders a stored thread record as a ThreadView. Messages
// with no parseable send time are left out.
func NormalizeThread(rec *Record) (*ThreadView, error) {
	var payload ThreadPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return nil, err
	}

	view := &ThreadView{
		ThreadID:      rec.ID,
		TenantID:      rec.TenantID,
		ReservationID: rec.ParentID,
		Messages:      make([]ThreadMessage, 0, len(payload.Messages)),
		UpdatedAt:     rec.UpdatedAt,
	}
	for _, raw := range payload.Messages {
		sentAt, ok := MessageTime(raw)
		if !ok {
			continue
		}
		var m struct {
			Body       *string     `json:"body"`
			IsIncoming interface{} `json:"isIncoming"`
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		msg := ThreadMessage{SentAt: sentAt, Sender: "us"}
		if truthy(m.IsIncoming) {
			msg.Sender = "them"
		}
		if m.Body != nil {
			msg.Body = *m.Body
		}
		msg.ConversationID, _ = FieldString(raw, "conversationId")
		msg.ListingID, _ = FieldString(raw, "listingMapId")
		view.Messages = append(view.Messages, msg)
	}
	sort.SliceStable(view.Messages, func(i, j int) bool {
		return view.Messages[i].SentAt.Before(view.Messages[j].SentAt)
	})
	return view, nil
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case string:
		return t != "" && t != "0" && t != "false"
	}
	return false
}
