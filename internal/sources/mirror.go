// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/pdiddy/fulltext-harvester/pkg/types"
)

// mirrorBase is the open-mirror page endpoint. Declared as a var so tests
// can substitute an httptest server.
var mirrorBase = "https://www.sci-hub.ren/"

// Mirror fetches the mirror's article page and follows the document frame
// (iframe or embed) it embeds.
type Mirror struct {
	UserAgent string
}

func (s *Mirror) Name() string { return "mirror" }

func (s *Mirror) Fetch(ctx context.Context, client *http.Client, doi, destStem string) (Outcome, error) {
	page, err := getBody(ctx, client, mirrorBase+doi+"#", s.UserAgent, "")
	if err != nil {
		return Outcome{}, err
	}

	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return Outcome{}, fmt.Errorf("parsing mirror page: %w", err)
	}

	src := frameSource(root)
	if src == "" {
		return Outcome{}, fmt.Errorf("no embedded document frame on mirror page for %s", doi)
	}
	// Frame sources are frequently scheme-relative.
	if !strings.HasPrefix(src, "http") {
		src = "https:" + src
	}

	path, err := downloadPDF(ctx, client, src, s.UserAgent, destStem)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: types.KindPDF, URL: src, Path: path}, nil
}
