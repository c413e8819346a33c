package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderTemplate(t *testing.T) {
	vars := map[string]string{
		"nome":    "Maria",
		"empresa": "Padaria da Maria",
		"cidade":  "Campinas",
	}

	t.Run("Success - substitutes known variables", func(t *testing.T) {
		out := RenderTemplate("Olá {{nome}}, vi que a {{empresa}} fica em {{cidade}}.", vars)
		assert.Equal(t, "Olá Maria, vi que a Padaria da Maria fica em Campinas.", out)
	})

	t.Run("Success - tolerates spacing inside braces", func(t *testing.T) {
		out := RenderTemplate("Olá {{ nome }}!", vars)
		assert.Equal(t, "Olá Maria!", out)
	})

	t.Run("Success - unknown placeholder left verbatim", func(t *testing.T) {
		out := RenderTemplate("Olá {{nome}}, sobre {{produto}}", vars)
		assert.Equal(t, "Olá Maria, sobre {{produto}}", out)
	})

	t.Run("Success - empty value substitutes to empty", func(t *testing.T) {
		out := RenderTemplate("Oi {{nome}}", map[string]string{"nome": ""})
		assert.Equal(t, "Oi ", out)
	})

	t.Run("Success - no placeholders", func(t *testing.T) {
		out := RenderTemplate("Mensagem fixa", vars)
		assert.Equal(t, "Mensagem fixa", out)
	})
}
