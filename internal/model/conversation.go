package model

import "time"

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ConversationMessage is one entry of the crisis dialogue transcript.
// The transcript is append-only and separate from GameState.
type ConversationMessage struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// CrisisContext is what the user pastes in before the support conversation
// starts. Image bytes are never transmitted, only their count.
type CrisisContext struct {
	HatefulComment string `json:"hatefulComment"`
	OriginalPost   string `json:"originalPost,omitempty"`
	ImageCount     int    `json:"imageCount,omitempty"`
}

// Strategy is one of the predefined coping strategies offered as the final
// stage of the crisis funnel. The list is static, not generated.
type Strategy struct {
	ID                   string `json:"id"`
	Title                string `json:"title"`
	Icon                 string `json:"icon"`
	Description          string `json:"description"`
	MentalHealthImpact   int    `json:"mentalHealthImpact"`
	CommunityTrustImpact int    `json:"communityTrustImpact"`
	Warning              string `json:"warning,omitempty"`
	Recommended          bool   `json:"recommended,omitempty"`
}
