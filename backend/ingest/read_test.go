package ingest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bundleJSON = `{
  "data": [
    {
      "traceID": "abc",
      "spans": [
        {
          "traceID": "abc", "spanID": "s1", "flags": 1,
          "operationName": "GET /x",
          "references": [],
          "startTime": 1000, "duration": 500,
          "tags": [{"key": "span.kind", "type": "string", "value": "server"}],
          "logs": [],
          "processID": "p1"
        }
      ],
      "processes": {"p1": {"serviceName": "svc", "tags": []}}
    }
  ],
  "total": 1, "limit": 0, "offset": 0
}`

func TestReadBundlePlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, os.WriteFile(path, []byte(bundleJSON), 0o644))

	jt, err := ReadBundleFile(path)
	require.NoError(t, err)
	require.Len(t, jt.Data, 1)
	assert.Equal(t, "abc", jt.Data[0].TraceID)
	require.Len(t, jt.Data[0].Spans, 1)
	assert.Equal(t, int64(1000), jt.Data[0].Spans[0].StartTime)
}

func TestReadBundleUTF8BOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(bundleJSON)...)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	jt, err := ReadBundleFile(path)
	require.NoError(t, err)
	require.Len(t, jt.Data, 1)
}

func TestReadBundleUTF16LE(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	units := utf16.Encode([]rune(bundleJSON))
	data := []byte{0xFF, 0xFE}
	for _, u := range units {
		data = binary.LittleEndian.AppendUint16(data, u)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	jt, err := ReadBundleFile(path)
	require.NoError(t, err)
	require.Len(t, jt.Data, 1)
	assert.Equal(t, "abc", jt.Data[0].TraceID)
}

func TestTagAccessors(t *testing.T) {
	str := RawTag{Key: "k", Type: "string", Value: "v"}
	got, err := str.GetString()
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	num := RawTag{Key: "k", Type: "int64", Value: float64(42)}
	_, err = num.GetString()
	assert.Error(t, err)
	n, err := num.GetInt()
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.Equal(t, "42", num.AsString())
}

func TestReadFolderSkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.json"), []byte(bundleJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{nope"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	tracker := &FileTracker{}
	items, folder, err := ReadFileOrFolder(dir, tracker)
	require.NoError(t, err)
	assert.Equal(t, dir, folder)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, tracker.NumFiles())
}

func TestReadSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.json")
	require.NoError(t, os.WriteFile(path, []byte(bundleJSON), 0o644))

	tracker := &FileTracker{}
	items, folder, err := ReadFileOrFolder(path, tracker)
	require.NoError(t, err)
	assert.Equal(t, dir, folder)
	require.Len(t, items, 1)
	assert.Equal(t, 0, items[0].SourceFileIdx)
}
