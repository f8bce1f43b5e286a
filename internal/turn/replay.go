package turn

import (
	"strings"

	"orchat/internal/api"
	"orchat/internal/partial"
)

// ReplayedMessage is one prior conversation entry rebuilt from the history
// service for display.
type ReplayedMessage struct {
	Role     string
	Content  string
	Thoughts string
}

// ReplayHistory re-derives an approximate view of persisted messages. An
// assistant message that still embeds the supervisor's JSON object is parsed
// with the same whole-object fallback used on stream completion; anything
// else is shown verbatim.
func ReplayHistory(messages []api.HistoryMessage) []ReplayedMessage {
	out := make([]ReplayedMessage, 0, len(messages))
	for _, msg := range messages {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		replayed := ReplayedMessage{Role: role, Content: content}
		if role == "assistant" {
			if doc, ok := partial.ParseDocument(content); ok && doc.Response != "" {
				replayed.Content = doc.Response
				replayed.Thoughts = doc.Thoughts
			}
		}
		out = append(out, replayed)
	}
	return out
}
