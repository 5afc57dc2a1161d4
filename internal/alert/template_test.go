package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderSubstitutesKnownKeys(t *testing.T) {
	out := render("task {{task_name}} exited {{exit_code}}", map[string]string{
		"task_name": "backup",
		"exit_code": "1",
	})
	assert.Equal(t, "task backup exited 1", out)
}

func TestRenderUnknownKeyIsEmpty(t *testing.T) {
	out := render("value=[{{nope}}]", map[string]string{})
	assert.Equal(t, "value=[]", out)
}

func TestRenderLiteralBraces(t *testing.T) {
	out := render("literal {{{{not_a_key}}", map[string]string{})
	assert.Equal(t, "literal {{not_a_key}}", out)
}

func TestRenderNoControlStructures(t *testing.T) {
	// The renderer treats "{{#if}}"-style tokens as plain unknown keys,
	// not as control structures — there is no conditional evaluation.
	out := render("{{#if x}}yes{{/if}}", map[string]string{})
	assert.Equal(t, "yes", out)
}

func TestRenderUnterminatedPlaceholderIsVerbatim(t *testing.T) {
	out := render("trailing {{oops", map[string]string{"oops": "x"})
	assert.Equal(t, "trailing {{oops", out)
}
