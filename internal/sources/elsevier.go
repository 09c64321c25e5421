// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/pdiddy/fulltext-harvester/internal/httputil"
	"github.com/pdiddy/fulltext-harvester/pkg/types"
)

// elsevierAPIBase is the Elsevier article endpoint. Declared as a var so
// tests can substitute an httptest server.
var elsevierAPIBase = "https://api.elsevier.com/content/article/doi/"

// ErrBadCredential reports that the API rejected the configured key, as
// opposed to a transient failure. Once seen, the strategy declines all
// further requests for the run: retrying a bad credential is pointless.
var ErrBadCredential = errors.New("elsevier: API key rejected")

// Elsevier downloads full-text XML through the Elsevier TDM API. It
// requires an API key and is only placed in the chain when one is
// configured. A single attempt per request; the response must parse as
// well-formed XML before it is accepted.
type Elsevier struct {
	APIKey    string
	UserAgent string

	disabled atomic.Bool
}

func (s *Elsevier) Name() string { return "elsevier" }

func (s *Elsevier) Fetch(ctx context.Context, client *http.Client, doi, destStem string) (Outcome, error) {
	if s.disabled.Load() {
		return Outcome{}, ErrBadCredential
	}

	params := url.Values{
		"apiKey":     {s.APIKey},
		"httpAccept": {"text/xml"},
	}
	apiURL := elsevierAPIBase + doi + "?" + params.Encode()

	req, err := httputil.NewRequest(ctx, apiURL, s.UserAgent)
	if err != nil {
		return Outcome{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := client.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("article API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		body, _ := io.ReadAll(resp.Body)
		if bytes.Contains(body, []byte("APIKEY_INVALID")) {
			s.disabled.Store(true)
			return Outcome{}, ErrBadCredential
		}
		return Outcome{}, fmt.Errorf("article API returned HTTP 401")
	}
	if resp.StatusCode != http.StatusOK {
		return Outcome{}, fmt.Errorf("article API returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, fmt.Errorf("reading article response: %w", err)
	}
	if err := validateXML(body); err != nil {
		return Outcome{}, fmt.Errorf("article API returned invalid XML for %s: %w", doi, err)
	}

	destPath := destStem + ".xml"
	if err := writeArtifact(destPath, body); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: types.KindXML, URL: apiURL, Path: destPath}, nil
}

// validateXML confirms data is well-formed structured markup by running the
// decoder over every token.
func validateXML(data []byte) error {
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		if _, err := d.Token(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
