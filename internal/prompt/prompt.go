// Package prompt assembles the final model prompt from the geographic
// context, the merged provider contexts and the user's question.
package prompt

import (
	"strings"
)

// Assemble concatenates the context blocks into the final prompt. It is a
// pure function: identical inputs always yield byte-identical output. No
// truncation happens here; each provider already bounded its own block.
func Assemble(geo string, contexts []string, question string) string {
	if geo == "" {
		geo = "No especificado"
	}

	var b strings.Builder
	b.WriteString("Contexto geográfico: ")
	b.WriteString(geo)
	b.WriteString("\n")
	for _, c := range contexts {
		b.WriteString(c)
	}
	b.WriteString("\n\n---\n\nPregunta del usuario: ")
	b.WriteString(question)
	return b.String()
}
