package chat

import (
	"fmt"
	"strings"
	"text/template"
)

// systemPrompt mirrors the answering policy: concise answers grounded in the
// retrieved context, admitting ignorance instead of guessing.
const systemPrompt = "You are an assistant for question-answering tasks. " +
	"Use the retrieved context to answer the question. If you don't know the " +
	"answer, say that you don't know. Use three sentences maximum and keep " +
	"the answer concise. Always refer to the context when answering."

const promptTemplateText = `Retrieved Context:
{{- range .Context}}
{{.}}
{{- end}}
{{- if .History}}

Conversation History:
{{- range .History}}
Human: {{.Query}}
Assistant: {{.Answer}}
{{- end}}
{{- end}}

Question: {{.Query}}`

var promptTemplate = template.Must(template.New("prompt").Parse(promptTemplateText))

type promptData struct {
	Context []string
	History []Turn
	Query   string
}

// buildPrompt assembles the generation prompt from retrieved chunk texts in
// rank order, the bounded recent history and the new query
func buildPrompt(contextChunks []string, history []Turn, query string) (string, error) {
	var sb strings.Builder
	err := promptTemplate.Execute(&sb, promptData{
		Context: contextChunks,
		History: history,
		Query:   query,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	return sb.String(), nil
}
