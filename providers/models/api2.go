package models

// API2Reply is the responses style document.
type API2Reply struct {
	ID        string       `json:"id"`
	Object    string       `json:"object"`
	CreatedAt int64        `json:"created_at"`
	Status    string       `json:"status"`
	Model     string       `json:"model"`
	Output    []API2Output `json:"output"`
	Usage     *API2Usage   `json:"usage"`
	Error     *APIError    `json:"error"`
}

type API2Output struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Status  string        `json:"status"`
	Role    string        `json:"role"`
	Content []API2Content `json:"content"`
}

type API2Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type API2Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
