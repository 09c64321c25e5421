// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"golang.org/x/net/html"

	"github.com/pdiddy/fulltext-harvester/pkg/types"
)

// doiBase is the generic identifier-resolution service. Declared as a var
// so tests can substitute an httptest server.
var doiBase = "https://doi.org/"

// DOIResolver follows the canonical DOI redirect to the publisher landing
// page and scrapes the citation_pdf_url meta tag for the document URL.
type DOIResolver struct {
	UserAgent string
}

func (s *DOIResolver) Name() string { return "doi" }

func (s *DOIResolver) Fetch(ctx context.Context, client *http.Client, doi, destStem string) (Outcome, error) {
	page, err := getBody(ctx, client, doiBase+doi, s.UserAgent, "")
	if err != nil {
		return Outcome{}, err
	}

	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return Outcome{}, fmt.Errorf("parsing landing page: %w", err)
	}

	pdfURL := metaContent(root, "citation_pdf_url")
	if pdfURL == "" {
		return Outcome{}, fmt.Errorf("no citation_pdf_url meta tag on landing page for %s", doi)
	}

	path, err := downloadPDF(ctx, client, pdfURL, s.UserAgent, destStem)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: types.KindPDF, URL: pdfURL, Path: path}, nil
}
