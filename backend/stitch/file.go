package stitch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// WriteFile persists the stitched dataset; the extension selects
// human-readable .json or compact binary .bincode.
func (s *Stitched) WriteFile(path string) error {
	var data []byte
	var err error
	switch ext := filepath.Ext(path); ext {
	case ".json":
		data, err = json.MarshalIndent(s, "", "  ")
	case ".bincode":
		data, err = msgpack.Marshal(s)
	default:
		return fmt.Errorf("unknown stitched-file extension %q on %s", ext, path)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile loads a stitched dataset. Legacy metric labels are mapped to the
// current labels so older files keep working.
func ReadFile(path string) (*Stitched, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Stitched
	switch ext := filepath.Ext(path); ext {
	case ".json":
		err = json.Unmarshal(data, &s)
	case ".bincode":
		err = msgpack.Unmarshal(data, &s)
	default:
		return nil, fmt.Errorf("unknown stitched-file extension %q on %s", ext, path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	s.normalizeMetrics()
	return &s, nil
}

// normalizeMetrics up-converts legacy metric labels in place.
func (s *Stitched) normalizeMetrics() {
	normalizeSet(s.Basic)
	for i := range s.ServiceOperation {
		normalizeSet(s.ServiceOperation[i].Set)
	}
	for i := range s.CallChain {
		for j := range s.CallChain[i].Chains {
			normalizeSet(s.CallChain[i].Chains[j].Data)
		}
	}
}

func normalizeSet(set StitchedSet) {
	for i := range set {
		set[i].Metric = NormalizeMetric(string(set[i].Metric))
	}
}
