// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// DataFlags holds the flags common to all subcommands that need access to
// the data directory.
type DataFlags struct {
	dataDir     string
	secretsPath string
}

func (f *DataFlags) SetFlags(fset *flag.FlagSet) {
	fset.StringVar(&f.dataDir, "data-dir", "", "path to the data directory")
	fset.StringVar(&f.secretsPath, "secrets-file", "", "path to credentials file")
}

// Resolve returns the absolute data directory and secrets file paths,
// creating the data directory when it does not exist.
func (f *DataFlags) Resolve() (dataDir, secretsPath string, _ error) {
	dir := f.dataDir
	if len(dir) == 0 {
		dir = filepath.Join(os.Getenv("HOME"), ".shiftbot")
	}
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", "", fmt.Errorf("could not stat data directory %q: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", "", fmt.Errorf("could not create data directory %q: %w", dir, err)
		}
	}
	dataDir, err := filepath.Abs(dir)
	if err != nil {
		return "", "", fmt.Errorf("could not determine data-dir %q absolute path: %w", dir, err)
	}
	secretsPath = f.secretsPath
	if len(secretsPath) == 0 {
		secretsPath = filepath.Join(dataDir, "secrets.json")
	}
	return dataDir, secretsPath, nil
}

// DatabasePath returns the sqlite database file path under the data
// directory.
func DatabasePath(dataDir string) string {
	return filepath.Join(dataDir, "shiftbot.db")
}
