package stitch

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/spanlens/spanlens/backend/stats"
)

// Source is one line of a stitch list. Column is nil for comment lines and
// carries the 1-based snapshot index otherwise (placeholders included).
type Source struct {
	Column      *int   `json:"column" msgpack:"column"`
	Description string `json:"description" msgpack:"description"`
}

// StitchList enumerates the per-run stats files to merge, in file order.
// A nil path is a placeholder that becomes an empty column.
type StitchList struct {
	Sources []Source
	Paths   []*string
}

// ReadStitchList parses a stitch-list file. Non-empty lines are either
// comments (leading '#', not numbered), placeholders (leading '%', counted
// as an empty column) or paths to per-run stats files. An inline '#' trims
// the rest of the line, and paths are resolved relative to the list file's
// directory.
func ReadStitchList(path string) (*StitchList, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	basePath := filepath.Dir(abs)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sl := &StitchList{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line[0] {
		case '#':
			sl.Sources = append(sl.Sources, Source{Description: line})
		case '%':
			sl.Paths = append(sl.Paths, nil)
			sl.addNumbered(line)
		default:
			resolved, err := resolvePath(basePath, line)
			if err != nil {
				return nil, err
			}
			sl.Paths = append(sl.Paths, &resolved)
			sl.addNumbered(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sl, nil
}

func (sl *StitchList) addNumbered(line string) {
	column := len(sl.Paths)
	sl.Sources = append(sl.Sources, Source{Column: &column, Description: line})
}

// resolvePath strips an inline comment and canonicalises the path relative
// to the stitch-list directory. The file must exist.
func resolvePath(basePath, line string) (string, error) {
	if pos := strings.Index(line, "#"); pos >= 0 {
		line = line[:pos]
	}
	line = strings.TrimSpace(line)
	path := line
	if !filepath.IsAbs(path) {
		path = filepath.Join(basePath, path)
	}
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("stitch-list entry %q: %w", line, err)
	}
	return path, nil
}

// ReadData loads every listed stats file; placeholders yield nil entries.
func (sl *StitchList) ReadData() ([]*stats.StatsRec, error) {
	data := make([]*stats.StatsRec, len(sl.Paths))
	for i, path := range sl.Paths {
		if path == nil {
			log.Info().Int("column", i+1).Msg("no data for placeholder column")
			continue
		}
		log.Info().Int("column", i+1).Str("file", *path).Msg("reading stats snapshot")
		sr, err := stats.ReadFile(*path)
		if err != nil {
			return nil, err
		}
		data[i] = sr
	}
	return data, nil
}
