// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package progress prints a running completed/total indicator for a
// harvest run.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// Total is the number of identifiers scheduled for this run.
	Total int

	// Output is where progress lines are written. Default: os.Stdout.
	Output io.Writer

	// UpdateInterval is how often the display refreshes. Default: 500ms.
	UpdateInterval time.Duration
}

// Reporter outputs a periodic one-line status of a harvest run.
type Reporter struct {
	opts Options

	completed atomic.Int32
	failed    atomic.Int32
	skipped   atomic.Int32

	mu        sync.Mutex
	startTime time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopped   bool
}

// NewReporter creates a reporter for a run of opts.Total identifiers.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}
	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress lines.
func (r *Reporter) Start() {
	r.startTime = time.Now()
	go r.updateLoop()
}

// Stop stops the reporter and prints a final status line. It returns once
// the final line has been written.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// ItemCompleted records one finished identifier.
func (r *Reporter) ItemCompleted() { r.completed.Add(1) }

// ItemFailed records one identifier for which every strategy declined.
func (r *Reporter) ItemFailed() {
	r.completed.Add(1)
	r.failed.Add(1)
}

// ItemSkipped records one identifier resolved from a pre-existing artifact.
func (r *Reporter) ItemSkipped() {
	r.completed.Add(1)
	r.skipped.Add(1)
}

func (r *Reporter) updateLoop() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printLine()
			fmt.Fprintln(r.opts.Output)
			return
		case <-ticker.C:
			r.printLine()
		}
	}
}

func (r *Reporter) printLine() {
	completed := r.completed.Load()
	failed := r.failed.Load()
	skipped := r.skipped.Load()
	elapsed := time.Since(r.startTime).Round(time.Second)

	fmt.Fprintf(r.opts.Output, "\r[harvest] %d/%d completed | %d skipped | %d failed | elapsed %s    ",
		completed, r.opts.Total, skipped, failed, elapsed)
}
