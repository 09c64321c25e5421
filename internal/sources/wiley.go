// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pdiddy/fulltext-harvester/internal/httputil"
	"github.com/pdiddy/fulltext-harvester/pkg/types"
)

// wileyAPIBase is the Wiley TDM article endpoint. Declared as a var so
// tests can substitute an httptest server.
var wileyAPIBase = "https://api.wiley.com/onlinelibrary/tdm/v1/articles/"

// wileyCooldown is the mandatory pause after every Wiley call, success or
// failure, required by the published rate ceiling. Tests shrink it.
var wileyCooldown = 10 * time.Second

// wileyAttempts bounds the same-source retries per request.
const wileyAttempts = 2

// Wiley downloads PDFs through the Wiley TDM API. It requires a client
// token and is only placed in the chain when one is configured. Unlike
// every other strategy it performs a bounded retry against the same
// endpoint, because the API's transient failures are common enough to be
// worth a second call.
type Wiley struct {
	Token     string
	UserAgent string
}

func (s *Wiley) Name() string { return "wiley" }

func (s *Wiley) Fetch(ctx context.Context, client *http.Client, doi, destStem string) (out Outcome, err error) {
	// The pause is charged per request regardless of outcome; it throttles
	// only this strategy's call sites.
	defer httputil.Wait(ctx, wileyCooldown)

	apiURL := wileyAPIBase + url.PathEscape(doi)
	req, err := httputil.NewRequest(ctx, apiURL, s.UserAgent)
	if err != nil {
		return Outcome{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Wiley-TDM-Client-Token", s.Token)
	req.Header.Set("Accept", "application/pdf")

	// A body with the wrong signature counts as a failed attempt too; the
	// API sometimes serves an interstitial page with HTTP 200.
	body, err := httputil.GetWithRetry(ctx, client, req, wileyAttempts, func(b []byte) error {
		if !bytes.HasPrefix(b, pdfMagic) {
			return ErrNotPDF
		}
		return nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("TDM API request for %s: %w", doi, err)
	}

	destPath := destStem + ".pdf"
	if err := writeArtifact(destPath, body); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: types.KindPDF, URL: apiURL, Path: destPath}, nil
}
