// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/pdiddy/fulltext-harvester/internal/httputil"
	"github.com/pdiddy/fulltext-harvester/pkg/types"
)

// Base URLs for the eLife article XML corpus on GitHub. Vars so tests can
// point at httptest servers.
var (
	elifeTreeBase = "https://api.github.com/repos/elifesciences/elife-article-xml/git/trees/master?recursive=1"
	elifeRawBase  = "https://raw.githubusercontent.com/elifesciences/elife-article-xml/master/"
)

var elifeArticleRe = regexp.MustCompile(`^articles/elife-(\d+)-v(\d+)\.xml$`)

// ELife serves article XML from the publisher's public GitHub corpus. The
// repository tree is listed once per process and memoized; every XML file is
// named elife-<accession>-v<version>.xml, and the highest version per
// accession wins.
type ELife struct {
	UserAgent string

	mu    sync.Mutex
	index map[string]elifeEntry
}

type elifeEntry struct {
	version int
	path    string
}

func NewELife(userAgent string) *ELife {
	return &ELife{UserAgent: userAgent}
}

func (s *ELife) Name() string { return "elife" }

func (s *ELife) Fetch(ctx context.Context, client *http.Client, doi, destStem string) (Outcome, error) {
	_, accession, found := strings.Cut(doi, "eLife.")
	if !found || accession == "" {
		return Outcome{}, fmt.Errorf("%s is not an eLife DOI", doi)
	}

	index, err := s.articleIndex(ctx, client)
	if err != nil {
		return Outcome{}, err
	}
	entry, ok := index[accession]
	if !ok {
		return Outcome{}, fmt.Errorf("accession %s not present in article corpus", accession)
	}

	rawURL := elifeRawBase + entry.path
	body, err := getBody(ctx, client, rawURL, s.UserAgent, "application/xml")
	if err != nil {
		return Outcome{}, err
	}

	destPath := destStem + ".xml"
	if err := writeArtifact(destPath, body); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: types.KindXML, URL: rawURL, Path: destPath}, nil
}

// articleIndex lists the corpus tree and maps accession to the
// highest-version article path. The listing is fetched at most once.
func (s *ELife) articleIndex(ctx context.Context, client *http.Client) (map[string]elifeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		return s.index, nil
	}

	req, err := httputil.NewRequest(ctx, elifeTreeBase, s.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("creating tree request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing article tree: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tree listing returned HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading tree listing: %w", err)
	}

	var tree struct {
		Tree []struct {
			Path string `json:"path"`
		} `json:"tree"`
	}
	if err := json.Unmarshal(body, &tree); err != nil {
		return nil, fmt.Errorf("parsing tree listing: %w", err)
	}

	index := make(map[string]elifeEntry)
	for _, node := range tree.Tree {
		m := elifeArticleRe.FindStringSubmatch(node.Path)
		if m == nil {
			continue
		}
		accession := m[1]
		version, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if prev, ok := index[accession]; !ok || version > prev.version {
			index[accession] = elifeEntry{version: version, path: node.Path}
		}
	}
	s.index = index
	return index, nil
}
