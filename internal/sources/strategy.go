// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sources implements the acquisition strategies that resolve a DOI
// to a full-text artifact on disk. Each strategy is one independent method
// of obtaining the document; the Chain tries them in a fixed order and
// stops at the first success.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pdiddy/fulltext-harvester/pkg/types"
)

// Outcome reports what a successful strategy produced.
type Outcome struct {
	// Kind is the artifact kind written to disk.
	Kind types.ArtifactKind

	// URL is the resolved source the bytes came from.
	URL string

	// Path is the on-disk artifact path (destStem plus extension).
	Path string
}

// Strategy is one acquisition method. Fetch downloads the artifact for doi
// to destStem plus the kind's extension and reports the outcome. A non-nil
// error means the strategy declined; nothing is left at the destination in
// that case.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, client *http.Client, doi, destStem string) (Outcome, error)
}

// Chain tries strategies in order and short-circuits on the first success.
// Strategy errors never escape the chain: a failing strategy is logged and
// the next one is tried. Each strategy runs at most once per request.
type Chain struct {
	Strategies []Strategy

	// Log receives per-strategy decline notes. Nil discards them.
	Log io.Writer
}

// DefaultChain returns the standard strategy order for a general DOI:
// preprint resolver, identifier-resolution service, open mirror, then the
// open-repository full-text API, with the versioned XML archive last.
func DefaultChain(userAgent string) *Chain {
	return &Chain{
		Strategies: []Strategy{
			&ArXiv{UserAgent: userAgent},
			&DOIResolver{UserAgent: userAgent},
			&Mirror{UserAgent: userAgent},
			&PMC{UserAgent: userAgent},
			NewELife(userAgent),
		},
	}
}

// Fetch runs the chain for doi. The boolean reports whether any strategy
// succeeded; on success the Outcome describes the artifact.
func (c *Chain) Fetch(ctx context.Context, client *http.Client, doi, destStem string) (Outcome, bool) {
	for _, s := range c.Strategies {
		if ctx.Err() != nil {
			return Outcome{}, false
		}
		out, err := s.Fetch(ctx, client, doi, destStem)
		if err != nil {
			fmt.Fprintf(c.log(), "  %s declined for %s: %v\n", s.Name(), doi, err)
			continue
		}
		return out, true
	}
	return Outcome{}, false
}

func (c *Chain) log() io.Writer {
	if c.Log != nil {
		return c.Log
	}
	return io.Discard
}
