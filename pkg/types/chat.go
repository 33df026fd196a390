package types

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Sender identifies who authored a chat message
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// PlaceholderSessionPrefix marks client-generated session identifiers that
// have not been persisted yet
const PlaceholderSessionPrefix = "temp-"

// sessionNameLimit is the rune length of a derived session name
const sessionNameLimit = 30

// ChatSession is a persisted conversation owned by one user
type ChatSession struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatMessage is one immutable turn within a session
type ChatMessage struct {
	ID        int64
	SessionID string
	Sender    Sender
	Text      string
	CreatedAt time.Time
}

// HistoryEntry is a prior turn as supplied by the client
type HistoryEntry struct {
	Text   string `json:"text"`
	Sender Sender `json:"sender"`
}

// ChatRequest is the body of one chat turn
type ChatRequest struct {
	Message        string         `json:"message"`
	SessionID      string         `json:"sessionId"`
	SessionHistory []HistoryEntry `json:"sessionHistory"`
}

// ChatReply is the result of one chat turn
type ChatReply struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
}

// ParseSender maps a client-supplied sender name to a Sender, ignoring case.
// An empty name is a user turn.
func ParseSender(name string) (Sender, error) {
	switch Sender(strings.ToLower(strings.TrimSpace(name))) {
	case "", SenderUser:
		return SenderUser, nil
	case SenderBot:
		return SenderBot, nil
	}
	return "", fmt.Errorf("%w: unknown sender %q", ErrInvalidHistory, name)
}

// NormalizeHistory returns a copy of history with every sender parsed by
// ParseSender.
func NormalizeHistory(history []HistoryEntry) ([]HistoryEntry, error) {
	if len(history) == 0 {
		return history, nil
	}
	out := make([]HistoryEntry, len(history))
	for i, h := range history {
		sender, err := ParseSender(string(h.Sender))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out[i] = HistoryEntry{Text: h.Text, Sender: sender}
	}
	return out, nil
}

// IsPlaceholderSessionID reports whether id still needs a persisted session.
// An empty id is treated as a placeholder.
func IsPlaceholderSessionID(id string) bool {
	return id == "" || strings.HasPrefix(id, PlaceholderSessionPrefix)
}

// SessionNameFromMessage derives a display name from the first message of a session
func SessionNameFromMessage(message string) string {
	name := strings.Join(strings.Fields(message), " ")
	if name == "" {
		return "New chat"
	}
	if utf8.RuneCountInString(name) <= sessionNameLimit {
		return name
	}
	runes := []rune(name)
	return string(runes[:sessionNameLimit]) + "..."
}
