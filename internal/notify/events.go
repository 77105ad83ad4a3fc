// Package notify reads the external notification aggregator's pending
// events, deduplicates them across polls, and formats wake messages.
package notify

import "fmt"

// Message is one pending item inside an event. Chat messages carry
// timestamp/content; slack wake-triggers carry channel fields instead.
type Message struct {
	Timestamp   any    `json:"timestamp,omitempty"`
	Content     string `json:"content,omitempty"`
	User        string `json:"user,omitempty"`
	Text        string `json:"text,omitempty"`
	ChannelID   string `json:"channel_id,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`
	Unread      int    `json:"unread,omitempty"`
}

// Channel is an unread-count source without per-message ids; the count is
// what distinguishes successive states.
type Channel struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	Unread   int       `json:"unread"`
	Messages []Message `json:"messages,omitempty"`
}

// Event is one pending external event as published by the aggregator.
type Event struct {
	Type     string    `json:"type"`
	Source   string    `json:"source,omitempty"`
	ID       any       `json:"id,omitempty"`
	Message  string    `json:"message,omitempty"`
	Content  string    `json:"content,omitempty"`
	Count    int       `json:"count,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Channels []Channel `json:"channels,omitempty"`
}

// DedupKeys derives the identity keys for an event: per-message timestamps,
// reminder ids, and channel+unread tuples. The unread count is deliberately
// part of the channel key so new messages bump it into a fresh key while
// repeated polls of an unchanged channel never re-trigger. When an event
// carries several key sources, all of them are recorded; any single unseen
// key admits the event.
func (e Event) DedupKeys() map[string]struct{} {
	keys := make(map[string]struct{})
	for _, msg := range e.Messages {
		if msg.Timestamp != nil {
			keys[fmt.Sprintf("%v", msg.Timestamp)] = struct{}{}
		}
	}
	if e.Type == "reminder" {
		keys[fmt.Sprintf("reminder-%v", e.ID)] = struct{}{}
	}
	for _, ch := range e.Channels {
		keys[fmt.Sprintf("%s-%s-%d", e.Source, ch.ID, ch.Unread)] = struct{}{}
	}
	if len(keys) == 0 && e.Type != "" {
		keys[fmt.Sprintf("%s-%s-%d", e.Type, e.Source, e.Count)] = struct{}{}
	}
	return keys
}
