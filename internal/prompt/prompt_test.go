package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleIsDeterministic(t *testing.T) {
	contexts := []string{"### Contexto de Búsqueda Externa:\nalgo\n", "### Contexto de Documentos Internos (RAG):\notro\n"}

	first := Assemble("CR", contexts, "¿Qué es el control de convencionalidad?")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Assemble("CR", contexts, "¿Qué es el control de convencionalidad?"))
	}
}

func TestAssembleStructure(t *testing.T) {
	out := Assemble("MX", []string{"bloque-a", "bloque-b"}, "pregunta")

	require.True(t, strings.HasPrefix(out, "Contexto geográfico: MX\n"))
	assert.Contains(t, out, "bloque-a")
	assert.Contains(t, out, "bloque-b")
	assert.True(t, strings.HasSuffix(out, "\n\n---\n\nPregunta del usuario: pregunta"))

	// Contexts keep the order the caller merged them in.
	assert.Less(t, strings.Index(out, "bloque-a"), strings.Index(out, "bloque-b"))
}

func TestAssembleWithoutGeo(t *testing.T) {
	out := Assemble("", nil, "pregunta")
	assert.Contains(t, out, "Contexto geográfico: No especificado\n")
	assert.Contains(t, out, "Pregunta del usuario: pregunta")
}
