package domain

// InsightsSchema returns the JSON Schema the model output must satisfy. It is
// sent in the prompt and used to validate responses.
func InsightsSchema() map[string]any {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	quote := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"context":  str("Context of the quote within the document."),
			"position": str("Where the quote is located in the document, e.g. Page 3, Paragraph 2."),
			"text":     str("Verbatim text of the quote."),
			"relation": str("How the quote might provide guidance on the issue, translated to the person's context."),
		},
		"required": []string{"context", "position", "text", "relation"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"general_context":  str("General context of the source document."),
			"general_relation": str("How the general context might help the person, or not."),
			"quotes": map[string]any{
				"type":  "array",
				"items": quote,
			},
		},
		"required": []string{"general_context", "general_relation", "quotes"},
	}
}
