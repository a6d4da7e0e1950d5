package storage

import "time"

// ProfileRecord is one stored profile document. Doc is the JSON encoding;
// the profile package owns its shape.
type ProfileRecord struct {
	Username  string
	Doc       []byte
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one chat turn inside a saved conversation.
type Message struct {
	Role    string   `json:"role"`
	Text    string   `json:"text"`
	Sources []string `json:"sources,omitempty"`
}

// Conversation is a saved chat thread owned by one user.
type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
	Username string    `json:"-"`
}

// ChatLog is one answered chat request.
type ChatLog struct {
	UserID      string
	Message     string
	Reply       string
	Source      string
	FAQCategory string
	FAQScore    int
	TS          time.Time
}
