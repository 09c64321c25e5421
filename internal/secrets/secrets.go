// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API credentials from a directory of plain-text files.
// Each file in the directory represents one slot: the filename is the slot
// name and the file contents (trimmed) are the value. An absent slot silently
// disables the acquisition strategy that needs it.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Credential slot names recognized by the harvester.
const (
	SlotWileyToken   = "wiley-tdm-token"
	SlotElsevierKey  = "elsevier-tdm-key"
	SlotAWSAccessKey = "aws-access-key-id"
	SlotAWSSecretKey = "aws-secret-access-key"
)

// Load reads all files in dir and returns a map of slot name to trimmed
// contents. A missing directory or missing files are not errors; Load
// returns an empty map. Unreadable files produce a warning on stderr but
// do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	creds := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			creds[name] = value
		}
	}

	return creds, nil
}
