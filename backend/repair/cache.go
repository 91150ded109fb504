// Package repair fixes unrooted call chains of incomplete traces against a
// catalogue of known-good chains. The catalogue is kept per endpoint in
// plain-text .cchain files and loaded lazily.
package repair

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/spanlens/spanlens/backend/chain"
)

// Cache is the process-wide call-chain catalogue, keyed by endpoint.
// Entries are read from disk on first access and shared read-only for the
// duration of a repair pass.
type Cache struct {
	folder string

	mu      sync.Mutex
	entries map[string][]chain.Key
	loaded  map[string]bool
}

// NewCache creates a catalogue over the given folder. The folder is created
// when missing so newly observed endpoints can be persisted.
func NewCache(folder string) (*Cache, error) {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("cannot prepare call-chain catalogue folder %q: %w", folder, err)
	}
	return &Cache{
		folder:  folder,
		entries: make(map[string][]chain.Key),
		loaded:  make(map[string]bool),
	}, nil
}

// Filename returns the catalogue file name for an endpoint key.
func Filename(endpoint string) string {
	return endpoint + ".cchain"
}

// Entry returns the known chains of an endpoint, loading them on first
// access. A missing file is not an error: repair proceeds without
// assistance and the entry stays empty.
func (c *Cache) Entry(endpoint string) []chain.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded[endpoint] {
		c.loaded[endpoint] = true
		path := filepath.Join(c.folder, Filename(endpoint))
		keys, err := ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Debug().Str("endpoint", endpoint).Msg("no catalogue file for endpoint")
		case err != nil:
			log.Warn().Err(err).Str("endpoint", endpoint).Msg("failed loading catalogue entry")
		default:
			c.entries[endpoint] = keys
		}
	}
	return c.entries[endpoint]
}

// CreateOrUpdate merges newly observed chains into the endpoint's entry and
// rewrites its file. Chains from complete traces feed the catalogue so later
// runs can repair incomplete ones.
func (c *Cache) CreateOrUpdate(endpoint string, observed []chain.Key) error {
	existing := c.Entry(endpoint)

	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool, len(existing))
	merged := append([]chain.Key(nil), existing...)
	for _, key := range existing {
		seen[key.String()] = true
	}
	for _, key := range observed {
		if keyStr := key.String(); !seen[keyStr] {
			seen[keyStr] = true
			merged = append(merged, key)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].String() < merged[j].String() })
	c.entries[endpoint] = merged
	c.loaded[endpoint] = true

	return writeFile(filepath.Join(c.folder, Filename(endpoint)), merged)
}

// ReadFile parses a catalogue file: one canonical key per line, blank lines
// and '#' comments ignored.
func ReadFile(path string) ([]chain.Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var keys []chain.Key
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, err := chain.ParseKey(line)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		keys = append(keys, key)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func writeFile(path string, keys []chain.Key) error {
	var sb strings.Builder
	for _, key := range keys {
		sb.WriteString(key.String())
		sb.WriteString("\n")
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
