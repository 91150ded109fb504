package csvbuf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSectionsRegisterInTOC(t *testing.T) {
	b := New()
	b.AddTOC(3)
	b.AddSection("First")
	b.AddLine("data; 1")
	b.AddSection("Second")

	out := b.String()
	lines := strings.Split(out, "\n")
	assert.Contains(t, lines[0], "Table of Contents")
	assert.Contains(t, lines[1], "First")
	assert.Contains(t, lines[2], "Second")
	assert.Contains(t, out, "## First")
	assert.Contains(t, out, "## Second")

	// the first section is registered in the TOC with a row number
	var tocEntry string
	for _, l := range lines {
		if strings.Contains(l, "1 @ row") {
			tocEntry = l
			break
		}
	}
	assert.NotEmpty(t, tocEntry)
}
