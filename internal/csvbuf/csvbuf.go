// Package csvbuf builds multi-section ';'-separated CSV files with a table
// of contents pointing at the row numbers of the sections.
package csvbuf

import (
	"fmt"
	"os"
	"strings"
)

// Buffer accumulates lines; sections register themselves in a reserved
// table-of-contents block at the top.
type Buffer struct {
	lines    []string
	startTOC int
	tocIndex int
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// NumLines returns the number of lines buffered so far.
func (b *Buffer) NumLines() int {
	return len(b.lines)
}

// AddEmptyLines appends n empty lines.
func (b *Buffer) AddEmptyLines(n int) {
	for i := 0; i < n; i++ {
		b.lines = append(b.lines, "")
	}
}

// AddTOC reserves space for a table of contents with maxEntries slots.
func (b *Buffer) AddTOC(maxEntries int) {
	b.startTOC = len(b.lines)
	b.tocIndex = 1 // entry 0 holds the title
	b.lines = append(b.lines, "Table of Contents of this file (starting rows of sections):")
	b.AddEmptyLines(maxEntries)
}

// AddSection starts a new section and registers it in the reserved TOC.
func (b *Buffer) AddSection(title string) {
	b.AddEmptyLines(2)
	b.lines = append(b.lines, "## "+title)
	if slot := b.startTOC + b.tocIndex; slot < len(b.lines) {
		b.lines[slot] = fmt.Sprintf("%3d @ row %d: %s", b.tocIndex, len(b.lines), title)
	}
	b.tocIndex++
}

// AddLine appends one line.
func (b *Buffer) AddLine(line string) {
	b.lines = append(b.lines, line)
}

// AddLines appends all lines.
func (b *Buffer) AddLines(lines []string) {
	b.lines = append(b.lines, lines...)
}

// WriteFile dumps the buffer to path.
func (b *Buffer) WriteFile(path string) error {
	return os.WriteFile(path, []byte(strings.Join(b.lines, "\n")), 0o644)
}

// String renders the buffered content.
func (b *Buffer) String() string {
	return strings.Join(b.lines, "\n")
}
