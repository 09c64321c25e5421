// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package meca locates and extracts full-text PDFs from the bioRxiv
// requester-pays archive. Preprints live in monthly folders as MECA
// containers (zip files) whose object keys carry an opaque UUID, so the
// locator has to find the right container by searching candidate objects
// for the DOI rather than by key.
package meca

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gocloud.dev/blob"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/fulltext-harvester/internal/httputil"
	"github.com/pdiddy/fulltext-harvester/internal/sources"
	"github.com/pdiddy/fulltext-harvester/pkg/types"
)

// depositAPIBase is the bioRxiv details endpoint used to learn a preprint's
// deposit date. Declared as a var so tests can substitute an httptest server.
var depositAPIBase = "https://api.biorxiv.org/details/biorxiv/"

// probeWindow is the number of bytes read from each end of a candidate
// container. The head covers the manifest entries at the start of the zip;
// the tail covers the central directory, where every member name appears.
const probeWindow = 4096

// eocdSignature marks the zip end-of-central-directory record. A tail
// window without it is not a readable container and is skipped.
var eocdSignature = []byte("PK\x05\x06")

const defaultProbeWorkers = 32

var errNoPDFEntry = errors.New("container has no PDF entry")

// Locator finds a DOI's MECA container in the archive bucket and extracts
// its PDF. It implements the same strategy contract as the network sources
// and slots into a chain after them.
type Locator struct {
	// Bucket is the opened archive bucket. The caller owns its lifecycle.
	Bucket *blob.Bucket

	// Prefix is prepended to every key, for buckets that nest the archive
	// under a folder.
	Prefix string

	UserAgent string

	// Workers bounds concurrent candidate probes. Zero means the default.
	Workers int

	mu     sync.Mutex
	months map[string][]string

	// fullFetches counts whole-container downloads. At most one per Fetch.
	fullFetches int
}

func (l *Locator) Name() string { return "biorxiv-s3" }

func (l *Locator) Fetch(ctx context.Context, client *http.Client, doi, destStem string) (sources.Outcome, error) {
	date, err := l.depositDate(ctx, client, doi)
	if err != nil {
		return sources.Outcome{}, err
	}

	keys, err := l.monthKeys(ctx, monthFolder(date))
	if err != nil {
		return sources.Outcome{}, err
	}
	if len(keys) == 0 {
		return sources.Outcome{}, fmt.Errorf("no containers in archive for %s", monthFolder(date))
	}

	key, err := l.findContainer(ctx, keys, doiToken(doi))
	if err != nil {
		return sources.Outcome{}, err
	}

	pdf, err := l.extractPDF(ctx, key)
	if err != nil {
		return sources.Outcome{}, fmt.Errorf("extracting %s: %w", key, err)
	}

	destPath := destStem + ".pdf"
	if err := writeArtifact(destPath, pdf); err != nil {
		return sources.Outcome{}, err
	}
	return sources.Outcome{Kind: types.KindPDF, URL: "s3://" + key, Path: destPath}, nil
}

// depositDate looks up the preprint's most recent deposit date.
func (l *Locator) depositDate(ctx context.Context, client *http.Client, doi string) (time.Time, error) {
	req, err := httputil.NewRequest(ctx, depositAPIBase+doi, l.UserAgent)
	if err != nil {
		return time.Time{}, fmt.Errorf("creating details request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("details request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("details API returned HTTP %d", resp.StatusCode)
	}

	var details struct {
		Collection []struct {
			Date string `json:"date"`
		} `json:"collection"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return time.Time{}, fmt.Errorf("parsing details response: %w", err)
	}
	if len(details.Collection) == 0 {
		return time.Time{}, fmt.Errorf("no deposit record for %s", doi)
	}

	// The last collection entry is the most recent version.
	raw := details.Collection[len(details.Collection)-1].Date
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing deposit date %q: %w", raw, err)
	}
	return date, nil
}

// monthFolder maps a deposit date to the archive's monthly folder name.
// Deposits on the last day of a month are batched into the following
// month's folder.
func monthFolder(date time.Time) string {
	if date.AddDate(0, 0, 1).Day() == 1 {
		date = date.AddDate(0, 0, 1)
	}
	return date.Format("January_2006")
}

// doiToken returns the portion of the DOI that appears inside container
// member names: the final slash segment, stripped to its final dot segment.
func doiToken(doi string) string {
	token := doi
	if i := strings.LastIndex(token, "/"); i >= 0 {
		token = token[i+1:]
	}
	if i := strings.LastIndex(token, "."); i >= 0 {
		token = token[i+1:]
	}
	return strings.ToLower(token)
}

// monthKeys lists the month folder's container keys, caching per folder so
// repeated lookups in the same month pay for one listing.
func (l *Locator) monthKeys(ctx context.Context, folder string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if keys, ok := l.months[folder]; ok {
		return keys, nil
	}

	prefix := l.Prefix + "Current_Content/" + folder + "/"
	var keys []string
	iter := l.Bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, err)
		}
		if strings.HasSuffix(obj.Key, ".meca") {
			keys = append(keys, obj.Key)
		}
	}

	if l.months == nil {
		l.months = make(map[string][]string)
	}
	l.months[folder] = keys
	return keys, nil
}

// errFound stops the probe group as soon as one worker matches.
var errFound = errors.New("container found")

// findContainer races bounded probes over the candidate keys and returns
// the first container whose sampled windows mention the DOI token.
func (l *Locator) findContainer(ctx context.Context, keys []string, token string) (string, error) {
	workers := l.Workers
	if workers <= 0 {
		workers = defaultProbeWorkers
	}

	var mu sync.Mutex
	var found string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, key := range keys {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			match, err := l.probe(gctx, key, token)
			if err != nil || !match {
				// A failed probe only rules out this candidate.
				return nil
			}
			mu.Lock()
			if found == "" {
				found = key
			}
			mu.Unlock()
			return errFound
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, errFound) {
		return "", err
	}
	if found == "" {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("no container mentions %q", token)
	}
	return found, nil
}

// probe samples a window from each end of the object and reports whether
// the token appears in either. Objects no larger than both windows are read
// whole.
func (l *Locator) probe(ctx context.Context, key, token string) (bool, error) {
	attrs, err := l.Bucket.Attributes(ctx, key)
	if err != nil {
		return false, fmt.Errorf("attributes for %s: %w", key, err)
	}

	var sample []byte
	if attrs.Size <= 2*probeWindow {
		sample, err = readRange(ctx, l.Bucket, key, 0, attrs.Size)
		if err != nil {
			return false, err
		}
		if !bytes.Contains(sample, eocdSignature) {
			return false, nil
		}
	} else {
		head, err := readRange(ctx, l.Bucket, key, 0, probeWindow)
		if err != nil {
			return false, err
		}
		tail, err := readRange(ctx, l.Bucket, key, attrs.Size-probeWindow, probeWindow)
		if err != nil {
			return false, err
		}
		if !bytes.Contains(tail, eocdSignature) {
			return false, nil
		}
		sample = append(head, tail...)
	}

	return bytes.Contains(bytes.ToLower(sample), []byte(token)), nil
}

func readRange(ctx context.Context, bucket *blob.Bucket, key string, offset, length int64) ([]byte, error) {
	r, err := bucket.NewRangeReader(ctx, key, offset, length, nil)
	if err != nil {
		return nil, fmt.Errorf("range read %s: %w", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("range read %s: %w", key, err)
	}
	return data, nil
}

// extractPDF downloads the whole container and returns the bytes of its
// first PDF member.
func (l *Locator) extractPDF(ctx context.Context, key string) ([]byte, error) {
	data, err := readAll(ctx, l.Bucket, key)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.fullFetches++
	l.mu.Unlock()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening container: %w", err)
	}
	for _, f := range zr.File {
		if strings.ToLower(path.Ext(f.Name)) != ".pdf" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening member %s: %w", f.Name, err)
		}
		pdf, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading member %s: %w", f.Name, err)
		}
		return pdf, nil
	}
	return nil, errNoPDFEntry
}

// writeArtifact writes data to destPath via a temporary file in the same
// directory, renaming on success. A failed extraction never leaves a
// partial artifact behind.
func writeArtifact(destPath string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".fetch-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing artifact: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func readAll(ctx context.Context, bucket *blob.Bucket, key string) ([]byte, error) {
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}
