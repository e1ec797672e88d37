package types

// TokenUsage is the model token count of a run
type TokenUsage struct {
	InputTokens  int32 `json:"inputTokens"`
	OutputTokens int32 `json:"outputTokens"`
	TotalTokens  int32 `json:"totalTokens"`
}

// CustomizeReport describes a finished customization run
type CustomizeReport struct {
	RequestID string     `json:"requestId"`
	Output    string     `json:"output"`
	SizeBytes int64      `json:"sizeBytes"`
	Entries   []string   `json:"entries"`
	Usage     TokenUsage `json:"usage"`
}

// ExtractReport holds the text extracted from a resume document
type ExtractReport struct {
	Source     string `json:"source"`
	Format     string `json:"format"`
	Paragraphs int    `json:"paragraphs"`
	Text       string `json:"text"`
}

// ArtifactReport lists files written by the convert and package commands
type ArtifactReport struct {
	Inputs    []string `json:"inputs"`
	Output    string   `json:"output"`
	SizeBytes int64    `json:"sizeBytes"`
}
