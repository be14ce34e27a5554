package models

import "time"

// InboundMessage is the normalized record handed to the dispatch layer
type InboundMessage struct {
	Surface     string   `json:"surface"`
	Provider    string   `json:"provider"`
	AccountID   string   `json:"accountId"`
	From        string   `json:"from"`
	FromName    string   `json:"fromName"`
	To          string   `json:"to"` // thread id
	ChatType    string   `json:"chatType"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	RawBody     string   `json:"rawBody"`
	MessageID   string   `json:"messageSid"`
	Attachments []string `json:"attachments,omitempty"`
}

// InboundContext is an InboundMessage enriched for dispatch
type InboundContext struct {
	InboundMessage
	SessionKey string    `json:"sessionKey"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// ReplyPayload is one reply chunk produced by the dispatch layer
type ReplyPayload struct {
	Text     string `json:"text"`
	MediaURL string `json:"mediaUrl,omitempty"`
	FilePath string `json:"filePath,omitempty"`
}
