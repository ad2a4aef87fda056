package inference

import "strings"

const promptTemplate = `You are a service that MUST output valid JSON.
Analyze the uploaded file and respond ONLY with JSON in this exact format:
{ "category": "short label", "summary": "concise summary" }

File Content:
`

// BuildPrompt embeds the file content verbatim after the JSON-only instructions.
func BuildPrompt(content string) string {
	var b strings.Builder
	b.Grow(len(promptTemplate) + len(content))
	b.WriteString(promptTemplate)
	b.WriteString(content)
	return b.String()
}
