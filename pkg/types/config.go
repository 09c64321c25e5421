// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make
// network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "fulltext-harvester/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// HarvestConfig holds settings for a harvest run.
type HarvestConfig struct {
	HTTPConfig `yaml:",inline"`

	// Workers is the size of the download worker pool (default 10).
	Workers int `json:"workers" yaml:"workers"`

	// MaxArtifacts stops the run once the output directory holds this many
	// artifacts. Zero disables the quota.
	MaxArtifacts int `json:"max_artifacts" yaml:"max_artifacts"`

	// OutputDir is the directory artifacts are written to. It must exist
	// before the run starts.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// StateFile is the line-delimited JSON file holding per-DOI outcomes.
	StateFile string `json:"state_file" yaml:"state_file"`
}

// ArchiveConfig holds settings for the requester-pays monthly archive.
type ArchiveConfig struct {
	// BucketURL is a gocloud blob URL for the archive store
	// (e.g. "s3://biorxiv-src-monthly?region=us-east-1").
	BucketURL string `json:"bucket_url" yaml:"bucket_url"`

	// Prefix is the key prefix the month folders live under.
	Prefix string `json:"prefix" yaml:"prefix"`

	// Workers bounds the concurrent container probes (default 32).
	Workers int `json:"workers" yaml:"workers"`
}

// ProxyConfig lists optional egress proxies tried round-robin per task.
type ProxyConfig struct {
	Endpoints []string `json:"endpoints" yaml:"endpoints"`
}
