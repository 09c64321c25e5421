// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package state persists per-DOI harvest outcomes as line-delimited JSON,
// one self-contained record per line. The file is the durable, resumable
// memory of the harvester: it is loaded once at orchestrator start and
// rewritten in full on every flush.
package state

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pdiddy/fulltext-harvester/pkg/types"
)

// maxLineBytes bounds a single state file line. Records carry titles and
// abstract-free metadata only, so 1 MiB is generous.
const maxLineBytes = 1 << 20

// knownFields are the record keys the harvester models. Anything else on a
// state line belongs to the upstream producer and must survive a rewrite.
var knownFields = map[string]bool{
	"doi":      true,
	"title":    true,
	"relevant": true,
	"success":  true,
	"type":     true,
	"path":     true,
	"url":      true,
}

// Store maps DOI to the last known acquisition outcome. Workers write only
// their own identifier's entry; the map lock serializes the bookkeeping,
// while durable flushes remain a single-writer operation performed by the
// orchestrator.
//
// The state file is shared with an upstream metadata producer, so fields
// the harvester does not model (authors, dates, classification output) are
// retained verbatim per DOI and merged back on every flush.
type Store struct {
	path string

	mu      sync.Mutex
	records map[string]*types.Record
	extras  map[string]map[string]json.RawMessage
}

// Load reads the state file at path. A missing file yields an empty store;
// a malformed line is an input error and aborts the load. Records without
// an identifier are dropped: they can never be scheduled or keyed.
func Load(path string) (*Store, error) {
	s := &Store{
		path:    path,
		records: make(map[string]*types.Record),
		extras:  make(map[string]map[string]json.RawMessage),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("opening state file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec types.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("state file %s line %d: %w", path, lineNo, err)
		}
		if rec.DOI == "" {
			continue
		}
		s.records[rec.DOI] = &rec

		var raw map[string]json.RawMessage
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("state file %s line %d: %w", path, lineNo, err)
		}
		for key := range raw {
			if knownFields[key] {
				delete(raw, key)
			}
		}
		if len(raw) > 0 {
			s.extras[rec.DOI] = raw
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading state file %s: %w", path, err)
	}
	return s, nil
}

// Get returns the record for doi, or nil if unknown.
func (s *Store) Get(doi string) *types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[doi]
}

// Put inserts or replaces the record for rec.DOI. Last write wins.
func (s *Store) Put(rec *types.Record) {
	if rec == nil || rec.DOI == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.DOI] = rec
}

// Len returns the number of distinct identifiers.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Pending returns the records eligible for scheduling: identifier present,
// not flagged irrelevant by the classifier, and no prior success. The
// slice is sorted by DOI so runs visit identifiers in a stable order.
func (s *Store) Pending() []*types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*types.Record
	for _, rec := range s.records {
		if rec.Excluded() || rec.Succeeded() {
			continue
		}
		pending = append(pending, rec)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].DOI < pending[j].DOI })
	return pending
}

// marshalLine serializes one state line, folding the upstream producer's
// unmodeled fields back in. Map marshaling sorts keys, so merged lines stay
// deterministic.
func marshalLine(rec *types.Record, extras map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if len(extras) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range extras {
		merged[key] = value
	}
	return json.Marshal(merged)
}

// Flush rewrites the entire state file atomically: records are marshaled
// one per line, sorted by DOI, into a temp file that replaces the original
// on success. Sorting makes repeated flushes of identical state
// byte-identical, which keeps reruns diffable.
func (s *Store) Flush() error {
	s.mu.Lock()
	dois := make([]string, 0, len(s.records))
	for doi := range s.records {
		dois = append(dois, doi)
	}
	sort.Strings(dois)
	lines := make([][]byte, 0, len(dois))
	for _, doi := range dois {
		data, err := marshalLine(s.records[doi], s.extras[doi])
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("marshaling record %s: %w", doi, err)
		}
		lines = append(lines, data)
	}
	s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		w.Write(line)
		w.WriteByte('\n')
	}
	flushErr := w.Flush()
	closeErr := tmp.Close()
	if flushErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing state file: %w", flushErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp state file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
