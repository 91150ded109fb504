package ingest

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/spanlens/spanlens/internal/report"
)

// ReadBundleFile reads and parses one Jaeger JSON dump. Exported tooling can
// hand over files saved from browsers or Windows hosts, so any UTF byte
// order mark is detected, honoured and stripped before parsing.
func ReadBundleFile(path string) (*RawTrace, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data, encoding, malformed := decodeWithBOM(raw)
	if encoding != "" {
		report.Addf(report.Details, "File %s: found encoding %s for a file with size %d", path, encoding, len(raw))
	}
	if malformed {
		report.Addf(report.Issues, "File %s contained malformed %s sequences", path, encoding)
	}

	var jt RawTrace
	if err := json.Unmarshal(data, &jt); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(jt.Errors) > 0 {
		report.Addf(report.Ingest, "File %s reported %d errors in its error section", path, len(jt.Errors))
	}
	return &jt, nil
}

// decodeWithBOM strips a UTF-8 BOM or transcodes UTF-16 (either endianness)
// to UTF-8. It returns the decoded bytes, the detected encoding name ("" for
// plain input) and whether malformed sequences were replaced.
func decodeWithBOM(raw []byte) (data []byte, encoding string, malformed bool) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}):
		data = raw[3:]
		return data, "UTF-8", !utf8.Valid(data)
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}):
		data, malformed = decodeUTF16(raw[2:], binary.LittleEndian)
		return data, "UTF-16LE", malformed
	case bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		data, malformed = decodeUTF16(raw[2:], binary.BigEndian)
		return data, "UTF-16BE", malformed
	default:
		return raw, "", false
	}
}

func decodeUTF16(b []byte, order binary.ByteOrder) ([]byte, bool) {
	malformed := len(b)%2 != 0
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, order.Uint16(b[i:]))
	}
	runes := utf16.Decode(units)
	for _, r := range runes {
		if r == utf8.RuneError {
			malformed = true
			break
		}
	}
	return []byte(string(runes)), malformed
}

// Item is one raw trace labelled with the index of the file it came from.
type Item struct {
	Raw           RawItem
	SourceFileIdx int
}

// FileTracker assigns a stable index to every input file of a run.
type FileTracker struct {
	files []string
}

// Add registers a file and returns its index.
func (ft *FileTracker) Add(name string) int {
	ft.files = append(ft.files, name)
	return len(ft.files) - 1
}

// FileName returns the name registered at idx.
func (ft *FileTracker) FileName(idx int) string {
	return ft.files[idx]
}

// NumFiles returns the number of registered files.
func (ft *FileTracker) NumFiles() int {
	return len(ft.files)
}

// ReadFileOrFolder reads all trace bundles from a .json file or from every
// .json file directly inside a folder. One file's failure does not abort the
// walk: the file is skipped and recorded. Returns the items and the folder
// that output should be written next to; tracker counts the files read.
func ReadFileOrFolder(path string, tracker *FileTracker) ([]Item, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", err
	}

	var files []string
	var folder string
	switch {
	case !info.IsDir() && strings.HasSuffix(path, ".json"):
		files = []string{path}
		folder = filepath.Dir(path)
	case info.IsDir():
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, "", err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if strings.HasSuffix(name, ".json") {
				files = append(files, filepath.Join(path, name))
			} else {
				log.Debug().Str("file", name).Msg("ignoring file without .json suffix")
			}
		}
		folder = path
	default:
		return nil, "", fmt.Errorf("expected a .json file or a folder, received %q", path)
	}

	report.Addf(report.Summary, "Reading all traces from: %s", path)

	var items []Item
	for _, file := range files {
		jt, err := ReadBundleFile(file)
		if err != nil {
			report.Addf(report.Issues, "Skipped file %s: %v", file, err)
			log.Warn().Err(err).Str("file", file).Msg("skipping unreadable trace bundle")
			continue
		}
		idx := tracker.Add(file)
		for _, item := range jt.Data {
			items = append(items, Item{Raw: item, SourceFileIdx: idx})
		}
	}

	report.Addf(report.Summary, "Read %d traces in total from %d files.", len(items), tracker.NumFiles())
	return items, folder, nil
}
