package domain

import "time"

// ContentType distinguishes prose messages from fenced code blocks.
type ContentType string

const (
	ContentText ContentType = "text"
	ContentCode ContentType = "code"
)

// MaxContentLength is the hard cap enforced by the admission pipeline
// before a message is persisted or published (spec.md §8, property 4).
const MaxContentLength = 4096

// Message is immutable except for EditedAt.
type Message struct {
	ID          string
	ChannelID   string
	AuthorID    string
	Content     string
	ContentType ContentType
	CreatedAt   time.Time
	EditedAt    *time.Time
}

// ValidContent reports whether content satisfies the admission pipeline's
// non-empty, length-capped rule.
func ValidContent(content string) bool {
	n := len(content)
	return n > 0 && n <= MaxContentLength
}
