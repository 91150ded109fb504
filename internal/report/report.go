// Package report collects run-level findings in chapters and dumps them to a
// single report file at the end of an analysis.
package report

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Chapter orders the sections of the report file.
type Chapter int

const (
	Summary Chapter = iota
	Issues
	Ingest
	Analysis
	Details
	numChapters
)

var chapterNames = [numChapters]string{"Summary", "Issues", "Ingest", "Analysis", "Details"}

func (c Chapter) String() string {
	if c < 0 || c >= numChapters {
		return "Unknown"
	}
	return chapterNames[c]
}

var (
	mu    sync.Mutex
	store [numChapters][]string
)

// Add appends a message to a chapter. Summary messages are echoed to the log
// so they are visible while the run progresses.
func Add(chapter Chapter, msg string) {
	if chapter == Summary {
		log.Info().Msg(msg)
	}
	mu.Lock()
	defer mu.Unlock()
	store[chapter] = append(store[chapter], msg)
}

// Addf is Add with formatting.
func Addf(chapter Chapter, format string, args ...any) {
	Add(chapter, fmt.Sprintf(format, args...))
}

// Write dumps all chapters to path and clears the buffer.
func Write(path string) error {
	mu.Lock()
	defer mu.Unlock()

	var sb strings.Builder
	for i := Chapter(0); i < numChapters; i++ {
		sb.WriteString(chapterNames[i])
		sb.WriteString("\n")
		sb.WriteString(strings.Join(store[i], "\n"))
		sb.WriteString("\n\n")
	}
	for i := range store {
		store[i] = nil
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
