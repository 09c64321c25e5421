// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/fulltext-harvester/pkg/types"
)

// arxivPDFBase is the arXiv PDF endpoint. Declared as a var so tests can
// substitute an httptest server.
var arxivPDFBase = "https://arxiv.org/pdf/"

// legacyCategories are probed in order for old-style accessions that carry
// no category segment in the DOI.
var legacyCategories = []string{"physics", "astro-ph", "cond-mat"}

// ArXiv resolves DOIs that embed an arXiv accession (e.g.
// "10.48550/arXiv.2301.07041") directly against the arXiv PDF endpoint.
// It declines immediately for identifiers without an accession.
type ArXiv struct {
	UserAgent string
}

func (s *ArXiv) Name() string { return "arxiv" }

func (s *ArXiv) Fetch(ctx context.Context, client *http.Client, doi, destStem string) (Outcome, error) {
	idx := strings.Index(strings.ToLower(doi), "arxiv.")
	if idx < 0 {
		return Outcome{}, fmt.Errorf("identifier %q has no arXiv accession", doi)
	}
	accession := doi[idx+len("arxiv."):]

	var candidates []string
	switch strings.Count(accession, ".") {
	case 0:
		// Legacy accessions predate the unified scheme and live under a
		// category path the DOI does not record.
		for _, cat := range legacyCategories {
			candidates = append(candidates, arxivPDFBase+cat+"/"+accession)
		}
	case 1:
		candidates = []string{arxivPDFBase + accession}
	default:
		return Outcome{}, fmt.Errorf("unrecognized arXiv accession %q", accession)
	}

	var lastErr error
	for _, rawURL := range candidates {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		path, err := downloadPDF(ctx, client, rawURL, s.UserAgent, destStem)
		if err != nil {
			lastErr = err
			continue
		}
		return Outcome{Kind: types.KindPDF, URL: rawURL, Path: path}, nil
	}
	return Outcome{}, lastErr
}
