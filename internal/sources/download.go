// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/net/html"

	"github.com/pdiddy/fulltext-harvester/internal/httputil"
)

// pdfMagic is the canonical binary signature a PDF body must start with.
var pdfMagic = []byte("%PDF")

// ErrNotPDF reports a body that claimed to be a PDF but carries the wrong
// binary signature. An HTTP 200 with the wrong magic is still a decline.
var ErrNotPDF = errors.New("response body is not a PDF")

// getBody fetches rawURL and returns the body on HTTP 200. accept, when
// non-empty, is sent as the Accept header.
func getBody(ctx context.Context, client *http.Client, rawURL, userAgent, accept string) ([]byte, error) {
	req, err := httputil.NewRequest(ctx, rawURL, userAgent)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", rawURL, err)
	}
	return body, nil
}

// writeArtifact writes data to destPath via a temporary file in the same
// directory, renaming on success. A failed download never leaves a partial
// artifact behind.
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

// downloadPDF fetches rawURL, validates the PDF signature, and writes the
// body to destStem+".pdf".
func downloadPDF(ctx context.Context, client *http.Client, rawURL, userAgent, destStem string) (string, error) {
	body, err := getBody(ctx, client, rawURL, userAgent, "application/pdf")
	if err != nil {
		return "", err
	}
	if !bytes.HasPrefix(body, pdfMagic) {
		return "", fmt.Errorf("%s: %w", rawURL, ErrNotPDF)
	}
	destPath := destStem + ".pdf"
	if err := writeArtifact(destPath, body); err != nil {
		return "", err
	}
	return destPath, nil
}

// metaContent returns the content attribute of the first <meta name=...>
// element in the document, or "".
func metaContent(root *html.Node, name string) string {
	var content string
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "meta" {
			return false
		}
		if attr(n, "name") != name {
			return false
		}
		content = attr(n, "content")
		return content != ""
	})
	return content
}

// frameSource returns the src attribute of the first iframe or embed
// element in the document, or "".
func frameSource(root *html.Node) string {
	var src string
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		if n.Data != "iframe" && n.Data != "embed" {
			return false
		}
		src = attr(n, "src")
		return src != ""
	})
	return src
}

// walk visits nodes in document order until fn returns true.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if fn(n) {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if walk(c, fn) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
