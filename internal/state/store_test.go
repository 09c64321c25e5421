// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/fulltext-harvester/pkg/types"
)

func boolPtr(b bool) *bool { return &b }

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestLoadFlushRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.jsonl")
	input := `{"doi":"10.1101/798496","title":"A preprint","success":true,"type":"pdf","path":"out/10.1101_798496.pdf","url":"https://example.com/a.pdf"}
{"doi":"10.1000/xyz","relevant":true,"success":false}
{"doi":"10.1000/abc","success":null}
`
	require.NoError(t, os.WriteFile(path, []byte(input), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	rec := s.Get("10.1101/798496")
	require.NotNil(t, rec)
	assert.True(t, rec.Succeeded())
	assert.Equal(t, types.KindPDF, rec.Kind)

	rec = s.Get("10.1000/abc")
	require.NotNil(t, rec)
	assert.Nil(t, rec.Success)

	require.NoError(t, s.Flush())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, again.Len())
	assert.True(t, again.Get("10.1101/798496").Succeeded())
}

func TestFlushIsDeterministic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.jsonl")
	s, err := Load(path)
	require.NoError(t, err)

	s.Put(&types.Record{DOI: "10.1000/b", Success: boolPtr(false)})
	s.Put(&types.Record{DOI: "10.1000/a", Success: boolPtr(true), Kind: types.KindXML, Path: "x.xml"})
	s.Put(&types.Record{DOI: "10.1000/c"})

	require.NoError(t, s.Flush())
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	// Reload and flush again with no intervening writes.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, reloaded.Flush())
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestFlushPreservesUpstreamFields(t *testing.T) {
	// The metadata producer writes fields the harvester does not model;
	// rewriting the file must not lose them.
	path := filepath.Join(t.TempDir(), "state.jsonl")
	input := `{"doi":"10.1101/798496","title":"A preprint","date":"2019-10-08","authors":["Doe, Jane","Roe, Ken"],"journal":"bioRxiv","abstract":"Text.","success":null}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(input), 0o644))

	s, err := Load(path)
	require.NoError(t, err)

	rec := s.Get("10.1101/798496")
	require.NotNil(t, rec)
	rec.MarkSuccess(types.KindPDF, "out/10.1101_798496.pdf", "https://example.com/a.pdf")
	s.Put(rec)
	require.NoError(t, s.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "2019-10-08", line["date"])
	assert.Equal(t, "bioRxiv", line["journal"])
	assert.Equal(t, "Text.", line["abstract"])
	assert.Equal(t, []any{"Doe, Jane", "Roe, Ken"}, line["authors"])
	assert.Equal(t, true, line["success"])
	assert.Equal(t, "pdf", line["type"])

	// And again through a reload, so the fields survive repeated runs.
	again, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, again.Flush())
	data2, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(data2))
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"doi\":\"10.1/a\"}\nnot json\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadDropsRecordsWithoutIdentifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"title":"no doi here"}`+"\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestPendingFiltering(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "state.jsonl"))
	require.NoError(t, err)

	s.Put(&types.Record{DOI: "10.1/pending"})
	s.Put(&types.Record{DOI: "10.1/failed-last-run", Success: boolPtr(false)})
	s.Put(&types.Record{DOI: "10.1/done", Success: boolPtr(true), Kind: types.KindPDF})
	s.Put(&types.Record{DOI: "10.1/irrelevant", Relevant: boolPtr(false)})

	pending := s.Pending()
	dois := make([]string, 0, len(pending))
	for _, rec := range pending {
		dois = append(dois, rec.DOI)
	}
	assert.Equal(t, []string{"10.1/failed-last-run", "10.1/pending"}, dois)
}

func TestLastWriteWins(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "state.jsonl"))
	require.NoError(t, err)

	s.Put(&types.Record{DOI: "10.1/x"})
	rec := &types.Record{DOI: "10.1/x"}
	rec.MarkSuccess(types.KindPDF, "out/x.pdf", "https://example.com/x.pdf")
	s.Put(rec)

	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Get("10.1/x").Succeeded())
}
