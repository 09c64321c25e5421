// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/pdiddy/fulltext-harvester/internal/harvest"
	"github.com/pdiddy/fulltext-harvester/internal/meca"
	"github.com/pdiddy/fulltext-harvester/internal/proxy"
	"github.com/pdiddy/fulltext-harvester/internal/secrets"
	"github.com/pdiddy/fulltext-harvester/internal/sources"
	"github.com/pdiddy/fulltext-harvester/internal/state"
	"github.com/pdiddy/fulltext-harvester/pkg/types"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultWorkers   = 10
	defaultUserAgent = "fulltext-harvester/0.1"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [DOIs...]",
	Short: "Download full-text artifacts for pending DOIs",
	Long: `Fetch loads the state file, schedules every pending DOI (plus any DOIs
given as arguments), and runs the acquisition chain over them with a
bounded worker pool. Outcomes are flushed back to the state file even when
the run is interrupted or hits its artifact quota.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().String("state", "state.jsonl", "line-delimited JSON state file")
	fetchCmd.Flags().String("output-dir", "articles", "directory artifacts are written to (must exist)")
	fetchCmd.Flags().Int("workers", 0, "download worker pool size (default 10)")
	fetchCmd.Flags().Int("max-artifacts", 0, "stop once the output directory holds this many files (0 = no quota)")
	fetchCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 60s)")
	fetchCmd.Flags().StringSlice("proxy", nil, "egress proxy endpoints, tried round-robin per DOI")
	fetchCmd.Flags().String("archive-bucket", "", "gocloud blob URL of the preprint monthly archive (e.g. s3://biorxiv-src-monthly?region=us-east-1)")
	fetchCmd.Flags().String("archive-prefix", "", "key prefix the archive's month folders live under")
	fetchCmd.Flags().Int("archive-workers", 0, "concurrent archive container probes (default 32)")

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	statePath, _ := cmd.Flags().GetString("state")
	outputDir, _ := cmd.Flags().GetString("output-dir")
	workers, _ := cmd.Flags().GetInt("workers")
	maxArtifacts, _ := cmd.Flags().GetInt("max-artifacts")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	proxies, _ := cmd.Flags().GetStringSlice("proxy")
	archiveBucket, _ := cmd.Flags().GetString("archive-bucket")
	archivePrefix, _ := cmd.Flags().GetString("archive-prefix")
	archiveWorkers, _ := cmd.Flags().GetInt("archive-workers")

	if workers == 0 {
		workers = defaultWorkers
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}

	cfg := types.HarvestConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   timeout,
			UserAgent: defaultUserAgent,
		},
		Workers:      workers,
		MaxArtifacts: maxArtifacts,
		OutputDir:    outputDir,
		StateFile:    statePath,
	}
	archiveCfg := types.ArchiveConfig{
		BucketURL: archiveBucket,
		Prefix:    archivePrefix,
		Workers:   archiveWorkers,
	}
	proxyCfg := types.ProxyConfig{Endpoints: proxies}

	store, err := state.Load(cfg.StateFile)
	if err != nil {
		return err
	}
	for _, doi := range args {
		if store.Get(doi) == nil {
			store.Put(&types.Record{DOI: doi})
		}
	}
	if len(store.Pending()) == 0 {
		fmt.Println("Nothing pending.")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	chain := sources.DefaultChain(cfg.UserAgent)
	if token, ok := loadedSecrets[secrets.SlotWileyToken]; ok {
		chain.Strategies = append(chain.Strategies, &sources.Wiley{Token: token, UserAgent: cfg.UserAgent})
	}
	if key, ok := loadedSecrets[secrets.SlotElsevierKey]; ok {
		chain.Strategies = append(chain.Strategies, &sources.Elsevier{APIKey: key, UserAgent: cfg.UserAgent})
	}
	chain.Log = os.Stdout

	var archive sources.Strategy
	if archiveCfg.BucketURL != "" {
		bucket, err := openArchiveBucket(ctx, archiveCfg.BucketURL)
		if err != nil {
			return err
		}
		defer bucket.Close()
		archive = &meca.Locator{
			Bucket:    bucket,
			Prefix:    archiveCfg.Prefix,
			UserAgent: cfg.UserAgent,
			Workers:   archiveCfg.Workers,
		}
	}

	pool, err := proxy.NewRoundRobin(proxyCfg.Endpoints)
	if err != nil {
		return err
	}

	summary, err := harvest.Run(ctx, store, harvest.Options{
		Workers:      cfg.Workers,
		MaxArtifacts: cfg.MaxArtifacts,
		OutputDir:    cfg.OutputDir,
		Timeout:      cfg.Timeout,
		Fetcher:      chain,
		Archive:      archive,
		Proxies:      pool,
		Log:          os.Stdout,
	})
	fmt.Printf("\nHarvest summary: %s\n", summary)
	if errors.Is(err, context.Canceled) {
		fmt.Println("Interrupted; state flushed.")
		return nil
	}
	return err
}

// openArchiveBucket opens the requester-pays archive, exporting the AWS
// credential slots to the environment the SDK's default chain reads.
func openArchiveBucket(ctx context.Context, bucketURL string) (*blob.Bucket, error) {
	access, hasAccess := loadedSecrets[secrets.SlotAWSAccessKey]
	secret, hasSecret := loadedSecrets[secrets.SlotAWSSecretKey]
	if !hasAccess || !hasSecret {
		return nil, fmt.Errorf("archive bucket configured but AWS credential slots are missing from .secrets/")
	}
	os.Setenv("AWS_ACCESS_KEY_ID", access)
	os.Setenv("AWS_SECRET_ACCESS_KEY", secret)

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("opening archive bucket %s: %w", bucketURL, err)
	}
	return bucket, nil
}
