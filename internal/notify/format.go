package notify

import (
	"fmt"
	"strings"
)

const groupSeparator = "\n\n---\n\n"

// FormatWakeMessage renders pending events into the single message injected
// into the agent on wake, grouped by event type.
func FormatWakeMessage(events []Event) string {
	order := make([]string, 0)
	byType := make(map[string][]Event)
	for _, event := range events {
		typ := event.Type
		if typ == "" {
			typ = "unknown"
		}
		if _, ok := byType[typ]; !ok {
			order = append(order, typ)
		}
		byType[typ] = append(byType[typ], event)
	}

	parts := make([]string, 0, len(events))
	for _, typ := range order {
		switch typ {
		case "message":
			parts = append(parts, formatChat(byType[typ])...)
		case "reminder":
			parts = append(parts, formatReminders(byType[typ])...)
		case "email":
			parts = append(parts, formatEmail(byType[typ])...)
		case "slack":
			parts = append(parts, formatSlack(byType[typ])...)
		default:
			parts = append(parts, formatUnknown(byType[typ])...)
		}
	}
	return strings.Join(parts, groupSeparator)
}

func formatSlackChannel(ch Channel) string {
	name := ch.Name
	if name == "" {
		name = ch.ID
	}
	if name == "" {
		name = "?"
	}
	lines := []string{"#" + name + ":"}
	for _, msg := range ch.Messages {
		user := msg.User
		if user == "" {
			user = "?"
		}
		text := strings.TrimSpace(msg.Text)
		if text != "" {
			lines = append(lines, fmt.Sprintf("  <@%s>: %s", user, text))
		}
	}
	if len(ch.Messages) == 0 {
		lines = append(lines, fmt.Sprintf("  (%d new message(s))", ch.Unread))
	}
	return strings.Join(lines, "\n")
}

func formatChat(events []Event) []string {
	parts := make([]string, 0, len(events))
	for _, event := range events {
		switch {
		case event.Source == "slack":
			chParts := make([]string, 0, len(event.Channels))
			for _, ch := range event.Channels {
				chParts = append(chParts, formatSlackChannel(ch))
			}
			parts = append(parts, "New Slack messages:\n"+strings.Join(chParts, "\n\n"))
		case len(event.Messages) > 0:
			lines := make([]string, 0, len(event.Messages))
			for _, msg := range event.Messages {
				lines = append(lines, msg.Content)
			}
			parts = append(parts, strings.Join(lines, "\n"))
		default:
			parts = append(parts, "New chat message (check unread to view)")
		}
	}
	return parts
}

func formatReminders(events []Event) []string {
	parts := make([]string, 0, len(events))
	for _, event := range events {
		id := "?"
		if event.ID != nil {
			id = fmt.Sprintf("%v", event.ID)
		}
		body := event.Message
		if body == "" {
			body = "(no message)"
		}
		parts = append(parts, fmt.Sprintf("⏰ REMINDER (ID %s):\n\n%s", id, body))
	}
	return parts
}

func formatEmail(events []Event) []string {
	parts := make([]string, 0, len(events))
	for _, event := range events {
		count := event.Count
		if count == 0 {
			count = len(event.Messages)
		}
		source := event.Source
		if source == "" {
			source = "Email"
		}
		noun := "emails"
		if count == 1 {
			noun = "email"
		}
		parts = append(parts, fmt.Sprintf("✉️ %d unread %s in %s", count, noun, source))
	}
	return parts
}

// formatSlack handles type=slack wake-trigger events, whose channel fields
// arrive flattened into the message list.
func formatSlack(events []Event) []string {
	tagged := make([]Event, 0, len(events))
	for _, event := range events {
		channels := make([]Channel, 0, len(event.Messages))
		for _, msg := range event.Messages {
			id := msg.ChannelID
			if id == "" {
				id = "?"
			}
			channels = append(channels, Channel{
				ID:     id,
				Name:   msg.ChannelName,
				Unread: msg.Unread,
			})
		}
		clone := event
		clone.Source = "slack"
		clone.Channels = channels
		tagged = append(tagged, clone)
	}
	return formatChat(tagged)
}

func formatUnknown(events []Event) []string {
	parts := make([]string, 0, len(events))
	for _, event := range events {
		typ := event.Type
		if typ == "" {
			typ = "unknown"
		}
		body := event.Message
		if body == "" {
			body = event.Content
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", typ, body))
	}
	return parts
}
