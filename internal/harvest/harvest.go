// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package harvest runs the acquisition pipeline over the pending entries
// of a state store: a bounded worker pool drains identifiers through the
// strategy chain, records outcomes, and flushes the state file whether the
// run completes, hits its artifact quota, or is cancelled.
package harvest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/fulltext-harvester/internal/httputil"
	"github.com/pdiddy/fulltext-harvester/internal/progress"
	"github.com/pdiddy/fulltext-harvester/internal/proxy"
	"github.com/pdiddy/fulltext-harvester/internal/sources"
	"github.com/pdiddy/fulltext-harvester/internal/state"
	"github.com/pdiddy/fulltext-harvester/pkg/types"
)

const defaultWorkers = 10

// metadataDir is the subdirectory of the output dir holding per-identifier
// YAML sidecars.
const metadataDir = "metadata"

// Fetcher resolves one identifier to an artifact. The strategy chain
// implements it.
type Fetcher interface {
	Fetch(ctx context.Context, client *http.Client, doi, destStem string) (sources.Outcome, bool)
}

// Options configures a harvest run.
type Options struct {
	// Workers is the download pool size. Zero means the default.
	Workers int

	// MaxArtifacts stops the run once the output directory holds this
	// many artifacts. Zero disables the quota.
	MaxArtifacts int

	// OutputDir receives artifacts and metadata sidecars. It must exist.
	OutputDir string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// Fetcher is the strategy chain applied to every identifier.
	Fetcher Fetcher

	// Archive, when non-nil, is tried for preprint-server identifiers
	// after the chain declines.
	Archive sources.Strategy

	// Proxies hands out egress proxies round-robin, one per identifier.
	// Nil means direct egress for every request.
	Proxies proxy.Pool

	// Log receives per-identifier progress notes. Nil discards them.
	Log io.Writer
}

// archiveDOIPrefix marks identifiers registered by the preprint server
// whose monthly archive the locator searches.
const archiveDOIPrefix = "10.1101/"

// Summary holds the outcome counts of a harvest run.
type Summary struct {
	Attempted int
	Succeeded int
	Skipped   int
	Failed    int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d succeeded, %d skipped, %d failed (attempted: %d)",
		s.Succeeded, s.Skipped, s.Failed, s.Attempted)
}

type job struct {
	rec *types.Record
}

// Run drains the store's pending identifiers through the chain. The state
// file is flushed before Run returns, regardless of how the run ended.
// Cancelling ctx stops scheduling new identifiers; in-flight downloads
// finish and their outcomes are recorded.
func Run(ctx context.Context, store *state.Store, opts Options) (Summary, error) {
	if opts.Fetcher == nil {
		return Summary{}, fmt.Errorf("no fetcher configured")
	}
	info, err := os.Stat(opts.OutputDir)
	if err != nil || !info.IsDir() {
		return Summary{}, fmt.Errorf("output directory %s does not exist", opts.OutputDir)
	}
	if err := os.MkdirAll(filepath.Join(opts.OutputDir, metadataDir), 0o755); err != nil {
		return Summary{}, fmt.Errorf("creating metadata directory: %w", err)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	log := opts.Log
	if log == nil {
		log = io.Discard
	}

	pending := store.Pending()
	reporter := progress.NewReporter(progress.Options{Total: len(pending), Output: log})
	reporter.Start()
	defer reporter.Stop()

	jobs := make(chan job)
	var wg sync.WaitGroup

	var mu sync.Mutex
	var summary Summary

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				outcome := runOne(ctx, j.rec, opts, log)
				mu.Lock()
				summary.Attempted++
				switch outcome {
				case outcomeSkipped:
					summary.Skipped++
				case outcomeSucceeded:
					summary.Succeeded++
				default:
					summary.Failed++
				}
				mu.Unlock()
				store.Put(j.rec)
				switch outcome {
				case outcomeSkipped:
					reporter.ItemSkipped()
				case outcomeSucceeded:
					reporter.ItemCompleted()
				default:
					reporter.ItemFailed()
				}
			}
		}()
	}

feed:
	for _, rec := range pending {
		if ctx.Err() != nil {
			break
		}
		if opts.MaxArtifacts > 0 {
			n, err := countArtifacts(opts.OutputDir)
			if err != nil {
				fmt.Fprintf(log, "quota check: %v\n", err)
			} else if n >= opts.MaxArtifacts {
				fmt.Fprintf(log, "artifact quota reached (%d), stopping\n", n)
				break
			}
		}
		select {
		case jobs <- job{rec: rec}:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := store.Flush(); err != nil {
		return summary, fmt.Errorf("flushing state: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeSucceeded
	outcomeSkipped
)

// runOne resolves a single identifier: adopt a sibling artifact if one
// already exists on disk, otherwise run the chain and, for preprint-server
// identifiers, the archive locator.
func runOne(ctx context.Context, rec *types.Record, opts Options, log io.Writer) outcome {
	stem := filepath.Join(opts.OutputDir, Slug(rec.DOI))

	if kind, path := findArtifact(opts.OutputDir, Slug(rec.DOI)); kind != types.KindNone {
		adoptArtifact(rec, kind, path)
		fmt.Fprintf(log, "skipped: %s (already on disk)\n", rec.DOI)
		return outcomeSkipped
	}

	var proxyURL *url.URL
	if opts.Proxies != nil {
		proxyURL = opts.Proxies.Next()
	}
	client := httputil.NewClient(opts.Timeout, proxyURL)

	out, ok := opts.Fetcher.Fetch(ctx, client, rec.DOI, stem)
	if !ok && opts.Archive != nil && strings.HasPrefix(rec.DOI, archiveDOIPrefix) {
		var err error
		out, err = opts.Archive.Fetch(ctx, client, rec.DOI, stem)
		if err != nil {
			fmt.Fprintf(log, "  %s declined for %s: %v\n", opts.Archive.Name(), rec.DOI, err)
		} else {
			ok = true
		}
	}
	if !ok {
		rec.MarkFailure()
		fmt.Fprintf(log, "failed:  %s\n", rec.DOI)
		return outcomeFailed
	}

	rec.MarkSuccess(out.Kind, out.Path, out.URL)
	if err := writeMetadata(opts.OutputDir, rec); err != nil {
		fmt.Fprintf(log, "metadata for %s: %v\n", rec.DOI, err)
	}
	fmt.Fprintf(log, "fetched: %s -> %s\n", rec.DOI, out.Path)
	return outcomeSucceeded
}

// Slug maps a DOI to its on-disk artifact stem.
func Slug(doi string) string {
	return strings.ReplaceAll(doi, "/", "_")
}

// findArtifact searches the output directory and every sibling run
// directory beside it for an artifact already harvested for slug. The
// output directory is checked first; within a directory PDF wins over XML.
func findArtifact(outputDir, slug string) (types.ArtifactKind, string) {
	dirs := []string{outputDir}
	parent := filepath.Dir(outputDir)
	if entries, err := os.ReadDir(parent); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(parent, e.Name())
			if dir == filepath.Clean(outputDir) {
				continue
			}
			dirs = append(dirs, dir)
		}
	}

	for _, dir := range dirs {
		if kind, path := existingArtifact(filepath.Join(dir, slug)); kind != types.KindNone {
			return kind, path
		}
	}
	return types.KindNone, ""
}

// existingArtifact reports the artifact already on disk for stem, if any.
func existingArtifact(stem string) (types.ArtifactKind, string) {
	for _, probe := range []struct {
		ext  string
		kind types.ArtifactKind
	}{
		{".pdf", types.KindPDF},
		{".xml", types.KindXML},
	} {
		path := stem + probe.ext
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return probe.kind, path
		}
	}
	return types.KindNone, ""
}

// adoptArtifact marks rec successful from a pre-existing artifact, taking
// the source URL from the metadata sidecar beside the artifact when one
// survives.
func adoptArtifact(rec *types.Record, kind types.ArtifactKind, path string) {
	url := ""
	if prior, err := readMetadata(filepath.Dir(path), rec.DOI); err == nil {
		url = prior.URL
		if rec.Title == "" {
			rec.Title = prior.Title
		}
	}
	rec.MarkSuccess(kind, path, url)
}

// countArtifacts counts regular files directly in dir; the metadata
// subdirectory is not descended into.
func countArtifacts(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() {
			n++
		}
	}
	return n, nil
}

func metadataPath(outputDir, doi string) string {
	return filepath.Join(outputDir, metadataDir, Slug(doi)+".yaml")
}

// writeMetadata stores the record as a YAML sidecar next to the artifact.
func writeMetadata(outputDir string, rec *types.Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	if err := os.WriteFile(metadataPath(outputDir, rec.DOI), data, 0o644); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

// readMetadata loads a record's YAML sidecar.
func readMetadata(outputDir, doi string) (*types.Record, error) {
	data, err := os.ReadFile(metadataPath(outputDir, doi))
	if err != nil {
		return nil, err
	}
	var rec types.Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing metadata for %s: %w", doi, err)
	}
	return &rec, nil
}
