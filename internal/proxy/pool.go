// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package proxy supplies optional egress proxies for download tasks.
package proxy

import (
	"fmt"
	"net/url"
	"sync"
)

// Pool hands out a proxy endpoint per request. Next returns nil when no
// proxy is available, in which case the caller uses direct egress.
type Pool interface {
	Next() *url.URL
}

// RoundRobin cycles through a fixed list of proxy endpoints.
type RoundRobin struct {
	mu   sync.Mutex
	next int
	urls []*url.URL
}

// NewRoundRobin parses the endpoint list into a pool. An empty list is
// valid and yields a pool that always reports no proxy.
func NewRoundRobin(endpoints []string) (*RoundRobin, error) {
	p := &RoundRobin{}
	for _, e := range endpoints {
		u, err := url.Parse(e)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy endpoint %q: %w", e, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("proxy endpoint %q must include scheme and host", e)
		}
		p.urls = append(p.urls, u)
	}
	return p, nil
}

// Next returns the next proxy in rotation, or nil when the pool is empty.
func (p *RoundRobin) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.urls) == 0 {
		return nil
	}
	u := p.urls[p.next%len(p.urls)]
	p.next++
	return u
}
