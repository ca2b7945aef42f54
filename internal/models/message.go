package models

// Message is an immutable snapshot of one Gmail message, fetched once per
// sorting run. It is never persisted.
type Message struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	Body    string `json:"body"` // sanitized plain-text excerpt
	Snippet string `json:"snippet"`
}

// ProviderLabel is a Gmail label as seen through the provider API.
type ProviderLabel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // "system" or "user"
}

// CategoryScore is the transient per-flag score computed for one message.
type CategoryScore struct {
	FlagName string  `json:"flagName"`
	Score    float64 `json:"score"`
}

// FlagSuggestion is one AI-proposed flag for a message.
type FlagSuggestion struct {
	Flag       string  `json:"flag"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}
