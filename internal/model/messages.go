package model

// MessageType identifies a channel message
type MessageType string

const (
	// Outbound
	MessageChallenge MessageType = "challenge-for-credentials"
	MessageRejected  MessageType = "rejected"
	MessageAccepted  MessageType = "accepted"

	// Inbound
	MessageSubmitCredentials MessageType = "submit-credentials"
	MessageLeave             MessageType = "leave"
	MessageIntentionalLeave  MessageType = "intentional-leave"
)

// OutboundMessage is sent from the server to a channel
type OutboundMessage struct {
	Type     MessageType `json:"type"`
	Reasons  []string    `json:"reasons,omitempty"`
	GameCode string      `json:"gamecode,omitempty"`
}

// Credentials is the payload of a submit-credentials message
type Credentials struct {
	Token       string `json:"token"`
	DisplayName string `json:"displayName"`
	GameCode    string `json:"gamecode"`
}

// InboundMessage is received from a channel
type InboundMessage struct {
	Type        MessageType `json:"type"`
	Credentials             // submit-credentials
	Reason      string      `json:"reason,omitempty"` // leave
}
