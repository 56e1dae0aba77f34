package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest written next to the config file by `config lock`.
const ChecksumFile = ".checksums"

// ChecksumManifest maps file basenames to BLAKE3 digests.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// LockFileResult captures the checksum outcome for one file.
type LockFileResult struct {
	Filename string
	Exists   bool
	Hash     string
}

// LockReport describes a `config lock` run.
type LockReport struct {
	ChecksumPath string
	Written      bool
	Files        []LockFileResult
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// lockedFiles lists the files covered by the manifest: the config itself and
// any .env files beside it (they can carry the API key).
func lockedFiles(configPath string) []string {
	return []string{filepath.Base(configPath), ".env", ".env.local"}
}

// Lock hashes the config file and its sibling .env files and, unless dryRun,
// writes the manifest.
func Lock(configPath string, dryRun bool) (*LockReport, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %q: %w", configPath, err)
	}
	dir := filepath.Dir(absPath)

	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      make(map[string]string),
	}
	report := &LockReport{ChecksumPath: filepath.Join(dir, ChecksumFile)}

	for _, name := range lockedFiles(absPath) {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			report.Files = append(report.Files, LockFileResult{Filename: name})
			continue
		}
		hash, err := ComputeBlake3Hash(path)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", name, err)
		}
		manifest.Hashes[name] = hash
		report.Files = append(report.Files, LockFileResult{Filename: name, Exists: true, Hash: hash})
	}

	if len(manifest.Hashes) == 0 {
		return nil, fmt.Errorf("config file not found: %s", absPath)
	}
	if dryRun {
		return report, nil
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}
	if err := os.WriteFile(report.ChecksumPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	report.Written = true
	return report, nil
}

// HasManifest reports whether a checksum manifest sits next to configPath.
func HasManifest(configPath string) bool {
	_, err := os.Stat(filepath.Join(filepath.Dir(configPath), ChecksumFile))
	return err == nil
}

// Verify checks the files next to configPath against the manifest. A missing
// manifest is not an error; integrity checking is opt-in via `config lock`.
func Verify(configPath string) error {
	dir := filepath.Dir(configPath)
	data, err := os.ReadFile(filepath.Join(dir, ChecksumFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}

	for _, name := range lockedFiles(configPath) {
		path := filepath.Join(dir, name)
		_, statErr := os.Stat(path)
		expected, locked := manifest.Hashes[name]
		switch {
		case os.IsNotExist(statErr) && locked:
			return fmt.Errorf("%s is in checksums but missing from disk", name)
		case os.IsNotExist(statErr):
			continue
		case !locked:
			return fmt.Errorf("%s has no hash in checksums (run 'texgate config lock')", name)
		}

		actual, err := ComputeBlake3Hash(path)
		if err != nil {
			return fmt.Errorf("failed to compute hash: %w", err)
		}
		if actual != expected {
			return fmt.Errorf("hash mismatch for %s: expected %s, got %s\n"+
				"If you edited this file intentionally, run: texgate config lock", name, expected, actual)
		}
	}
	return nil
}
