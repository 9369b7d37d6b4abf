package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "", Excerpt("anything", 0))
	assert.Equal(t, "short review", Excerpt("short   review", 50))

	long := "A sweeping account of the fall of the republic, told through letters and court records."
	got := Excerpt(long, 40)
	assert.LessOrEqual(t, len(got), 44)
	assert.Contains(t, got, "…")
	// cut lands on a word boundary
	assert.NotContains(t, got, "republi…")
}

func TestExcerptCollapsesWhitespace(t *testing.T) {
	got := Excerpt("lines\nand\ttabs   everywhere", 100)
	assert.Equal(t, "lines and tabs everywhere", got)
}
