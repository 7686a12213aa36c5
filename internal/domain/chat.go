package domain

// ChatMessage is the provider-agnostic prompt message shape passed to the
// completion provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is a provider response with the usage needed for cost accounting.
type Completion struct {
	Text   string
	Model  string
	Tokens int
}
