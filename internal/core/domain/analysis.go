package domain

// Message is one chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is the output of the prompt builder for one pair.
type Prompt struct {
	Messages       []Message `json:"messages"`
	Tokens         int       `json:"tokens"`
	DocumentTokens int       `json:"document_tokens"`
	KeptTokens     int       `json:"kept_tokens"`
	Truncated      bool      `json:"truncated"`
}

// AnalysisRequest pairs one document with one case for a single model call.
// It is built fresh per pair and never reused.
type AnalysisRequest struct {
	DocumentID string
	CaseName   string
	Model      string
	Prompt     Prompt
}

// Quote is a verbatim passage the model relates to the case.
type Quote struct {
	Context  string `json:"context"`
	Position string `json:"position"`
	Text     string `json:"text"`
	Relation string `json:"relation"`
}

// Insights is the structured response expected from the model.
type Insights struct {
	GeneralContext  string  `json:"general_context"`
	GeneralRelation string  `json:"general_relation"`
	Quotes          []Quote `json:"quotes"`
}

// Analysis is a successful model response.
type Analysis struct {
	Insights         Insights
	Raw              string
	Attempts         int
	PromptTokens     int
	CompletionTokens int
}

// AnalysisResult is the outcome of one pair. Err is set when the pair failed;
// the result is not mutated after creation.
type AnalysisResult struct {
	DocumentID string
	CaseName   string
	Criteria   string
	Model      string
	Analysis   Analysis
	Truncated  bool
	Prompt     Prompt
	Err        error
}

func (r AnalysisResult) Failed() bool {
	return r.Err != nil
}
