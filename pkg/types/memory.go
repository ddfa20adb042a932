// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultConversationTitle is the title of a conversation until its first
// user message names it.
const DefaultConversationTitle = "New Chat"

// Message is one chat turn.
type Message struct {
	ID             string    `json:"id" yaml:"id"`
	ConversationID string    `json:"conversationId" yaml:"conversation_id"`
	Role           Role      `json:"role" yaml:"role"`
	Content        string    `json:"content" yaml:"content"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
}

// Entity is a document or other artifact attached to a conversation.
type Entity struct {
	// ID identifies the entity; the global profile keeps one copy per ID.
	ID string `json:"id" yaml:"id"`

	// Name is a display name such as the uploaded file name.
	Name string `json:"name" yaml:"name"`

	// Content is the raw extracted text.
	Content string `json:"content" yaml:"content"`

	// Fields are structured values extracted from the content.
	Fields map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`

	// AttachedAt is when the entity was first attached.
	AttachedAt time.Time `json:"attachedAt" yaml:"attached_at"`
}

// Conversation is an ordered list of messages plus attached entity IDs.
type Conversation struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Messages  []Message `json:"messages" yaml:"messages"`
	EntityIDs []string  `json:"files" yaml:"entity_ids"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updated_at"`
}

// GlobalProfile is the cross-conversation view: every attached entity once,
// and a rolling window of all messages.
type GlobalProfile struct {
	Entities    []Entity  `json:"files" yaml:"entities"`
	Messages    []Message `json:"allPastMessages" yaml:"messages"`
	LastUpdated time.Time `json:"lastUpdated" yaml:"last_updated"`
}
