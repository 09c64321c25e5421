// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/fulltext-harvester/pkg/types"
)

const fakePDFContent = "%PDF-1.4 fake"

const testUserAgent = "fulltext-harvester-test/0.1"

func testClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func destStemFor(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "article")
}

// fakeStrategy counts calls and either succeeds or declines.
type fakeStrategy struct {
	name  string
	fail  bool
	calls int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Fetch(ctx context.Context, client *http.Client, doi, destStem string) (Outcome, error) {
	f.calls++
	if f.fail {
		return Outcome{}, errors.New("declined")
	}
	return Outcome{Kind: types.KindPDF, URL: "http://example.com/" + doi, Path: destStem + ".pdf"}, nil
}

func TestChainShortCircuits(t *testing.T) {
	first := &fakeStrategy{name: "first", fail: true}
	second := &fakeStrategy{name: "second"}
	third := &fakeStrategy{name: "third"}
	chain := &Chain{Strategies: []Strategy{first, second, third}}

	out, ok := chain.Fetch(context.Background(), testClient(), "10.1234/test", "/tmp/article")
	if !ok {
		t.Fatal("Fetch() ok = false, want true")
	}
	if out.URL != "http://example.com/10.1234/test" {
		t.Errorf("Fetch() URL = %q", out.URL)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d, %d, want 1, 1", first.calls, second.calls)
	}
	if third.calls != 0 {
		t.Errorf("third strategy ran %d times after a success", third.calls)
	}
}

func TestChainAllDecline(t *testing.T) {
	first := &fakeStrategy{name: "first", fail: true}
	second := &fakeStrategy{name: "second", fail: true}
	var log bytes.Buffer
	chain := &Chain{Strategies: []Strategy{first, second}, Log: &log}

	_, ok := chain.Fetch(context.Background(), testClient(), "10.1234/test", "/tmp/article")
	if ok {
		t.Fatal("Fetch() ok = true with every strategy declining")
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d, %d, want 1, 1", first.calls, second.calls)
	}
	for _, name := range []string{"first", "second"} {
		if !strings.Contains(log.String(), name) {
			t.Errorf("decline log missing %q: %q", name, log.String())
		}
	}
}

func TestChainCancelledContext(t *testing.T) {
	first := &fakeStrategy{name: "first"}
	chain := &Chain{Strategies: []Strategy{first}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := chain.Fetch(ctx, testClient(), "10.1234/test", "/tmp/article")
	if ok {
		t.Fatal("Fetch() ok = true on cancelled context")
	}
	if first.calls != 0 {
		t.Errorf("strategy ran %d times on cancelled context", first.calls)
	}
}

func TestDefaultChainOrder(t *testing.T) {
	chain := DefaultChain(testUserAgent)
	want := []string{"arxiv", "doi", "mirror", "pmc", "elife"}
	if len(chain.Strategies) != len(want) {
		t.Fatalf("DefaultChain has %d strategies, want %d", len(chain.Strategies), len(want))
	}
	for i, name := range want {
		if got := chain.Strategies[i].Name(); got != name {
			t.Errorf("strategy %d = %q, want %q", i, got, name)
		}
	}
}

func TestWriteArtifactLeavesNothingOnFailure(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "article.pdf")
	if err := writeArtifact(dest, []byte(fakePDFContent)); err != nil {
		t.Fatalf("writeArtifact() error = %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, ".fetch-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func assertPDFWritten(t *testing.T, out Outcome, destStem string) {
	t.Helper()
	wantPath := destStem + ".pdf"
	if out.Path != wantPath {
		t.Errorf("Path = %q, want %q", out.Path, wantPath)
	}
	if out.Kind != types.KindPDF {
		t.Errorf("Kind = %v, want %v", out.Kind, types.KindPDF)
	}
	assertFileContains(t, wantPath, fakePDFContent)
}

func assertFileContains(t *testing.T, path, want string) {
	t.Helper()
	data, err := readFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	if string(data) != want {
		t.Errorf("%s = %q, want %q", path, data, want)
	}
}

func assertNoArtifact(t *testing.T, destStem string) {
	t.Helper()
	for _, ext := range []string{".pdf", ".xml"} {
		if _, err := readFile(destStem + ext); err == nil {
			t.Errorf("artifact %s%s exists after a decline", destStem, ext)
		}
	}
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
