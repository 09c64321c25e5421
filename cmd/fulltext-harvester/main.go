// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the fulltext-harvester CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/fulltext-harvester/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup. Absent
// slots silently disable the strategies that need them.
var loadedSecrets map[string]string

// rootCmd is the base command for the fulltext-harvester CLI.
var rootCmd = &cobra.Command{
	Use:   "fulltext-harvester",
	Short: "Multi-source full-text acquisition for scholarly DOIs",
	Long: `fulltext-harvester resolves DOIs to full-text artifacts (PDF or XML) by
trying an ordered chain of sources: the arXiv PDF endpoint, the DOI
resolver's landing-page metadata, an open mirror, the PMC BioC API, and
the eLife article corpus. Credentialed publisher APIs and the bioRxiv
requester-pays archive join the chain when their credentials are present
in .secrets/.

Outcomes are recorded per DOI in a line-delimited JSON state file, making
interrupted runs resumable.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./fulltext-harvester.yaml or ~/.config/fulltext-harvester/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("fulltext-harvester")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "fulltext-harvester"))
		}
	}

	viper.SetEnvPrefix("FULLTEXT_HARVESTER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
