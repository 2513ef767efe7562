package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewChatMessage(role Role, text string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// Visualization is the character portrait found for an onboarding book title.
type Visualization struct {
	CharacterName string `json:"characterName"`
	ImageURL      string `json:"imageUrl"`
}

type PaywallPlan struct {
	ID            string  `json:"id"`
	ProductID     string  `json:"productId"`
	Title         string  `json:"title"`
	Price         string  `json:"price"`
	BillingDetail string  `json:"billingDetail"`
	TrialDetail   *string `json:"trialDetail,omitempty"`
}
