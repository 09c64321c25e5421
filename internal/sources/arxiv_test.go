// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestArXivModernAccession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pdf/2301.07041" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, fakePDFContent)
	}))
	defer ts.Close()

	orig := arxivPDFBase
	arxivPDFBase = ts.URL + "/pdf/"
	defer func() { arxivPDFBase = orig }()

	stem := destStemFor(t)
	s := &ArXiv{UserAgent: testUserAgent}
	out, err := s.Fetch(context.Background(), testClient(), "10.48550/arXiv.2301.07041", stem)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	assertPDFWritten(t, out, stem)
}

func TestArXivLegacyAccessionProbesCategories(t *testing.T) {
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		// Only the second category has the paper.
		if r.URL.Path != "/pdf/astro-ph/9901001" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, fakePDFContent)
	}))
	defer ts.Close()

	orig := arxivPDFBase
	arxivPDFBase = ts.URL + "/pdf/"
	defer func() { arxivPDFBase = orig }()

	stem := destStemFor(t)
	s := &ArXiv{UserAgent: testUserAgent}
	out, err := s.Fetch(context.Background(), testClient(), "10.48550/arXiv.9901001", stem)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	assertPDFWritten(t, out, stem)
	if len(paths) != 2 {
		t.Errorf("probed %d paths, want 2 (physics miss then astro-ph hit): %v", len(paths), paths)
	}
	if !strings.HasSuffix(out.URL, "/astro-ph/9901001") {
		t.Errorf("URL = %q, want astro-ph candidate", out.URL)
	}
}

func TestArXivDeclines(t *testing.T) {
	tests := []struct {
		name string
		doi  string
	}{
		{"no accession", "10.1038/s41586-024-07487-w"},
		{"malformed accession", "10.48550/arXiv.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stem := destStemFor(t)
			s := &ArXiv{UserAgent: testUserAgent}
			if _, err := s.Fetch(context.Background(), testClient(), tt.doi, stem); err == nil {
				t.Fatal("Fetch() error = nil, want decline")
			}
			assertNoArtifact(t, stem)
		})
	}
}
